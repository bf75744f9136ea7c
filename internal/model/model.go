// Package model defines the data types reported by the CLI and transports.
package model

import "time"

// Stats is the diagnostic snapshot of one namespace.
type Stats struct {
	NS                string  `json:"ns" yaml:"ns"`
	Order             int     `json:"order" yaml:"order"`
	MessagesLearned   int64   `json:"messages_learned" yaml:"messages_learned"`
	MessagesGenerated int64   `json:"messages_generated" yaml:"messages_generated"`
	ContextCount      int     `json:"context_count" yaml:"context_count"`
	SuccessorCount    int     `json:"total_successor_count" yaml:"total_successor_count"`
	Variability       float64 `json:"variability" yaml:"variability"`
}

// NamespaceInfo describes a namespace as persisted by a backend.
type NamespaceInfo struct {
	NS         string    `json:"ns" yaml:"ns"`
	Order      int       `json:"order" yaml:"order"`
	Contexts   int       `json:"contexts" yaml:"contexts"`
	Successors int       `json:"successors" yaml:"successors"`
	Learned    int64     `json:"messages_learned" yaml:"messages_learned"`
	Generated  int64     `json:"messages_generated" yaml:"messages_generated"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// Checkpoint records one successful save of a namespace.
type Checkpoint struct {
	ID         string    `json:"id" yaml:"id"`
	NS         string    `json:"ns" yaml:"ns"`
	Partial    bool      `json:"partial" yaml:"partial"`
	Entries    int       `json:"entries" yaml:"entries"`
	Contexts   int       `json:"contexts" yaml:"contexts"`
	Successors int       `json:"successors" yaml:"successors"`
	Learned    int64     `json:"messages_learned" yaml:"messages_learned"`
	Generated  int64     `json:"messages_generated" yaml:"messages_generated"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// ValidFormats are the output formats understood by the CLI.
var ValidFormats = map[string]bool{
	"json": true,
	"yaml": true,
	"text": true,
}
