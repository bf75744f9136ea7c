// Package store persists Markov models in SQLite.
//
// Each namespace is one model. Contexts are stored as rows keyed by their
// encoded form (see markov.EncodeContext) with the successor list as a JSON
// array, so a checkpoint can rewrite only the contexts that changed. Every
// checkpoint runs in a single transaction: an interrupted save leaves the
// previously committed state intact.
package store

// Names of the counters kept in the stats table.
const (
	StatTotalMessages     = "total_messages"
	StatGeneratedMessages = "generated_messages"
)

// DefaultCheckpointRetention is the number of checkpoint records kept per
// namespace.
const DefaultCheckpointRetention = 100
