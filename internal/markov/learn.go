package markov

// Observation is one (context -> next token) window of a message.
type Observation struct {
	Context Context
	Next    string
}

// Observations returns every window of order+1 consecutive tokens as an
// observation. A message of L tokens yields L-order observations; shorter
// messages yield none. The returned contexts alias tokens.
func Observations(tokens []string, order int) []Observation {
	if order < 1 || len(tokens) < order+1 {
		return nil
	}
	out := make([]Observation, 0, len(tokens)-order)
	for i := 0; i+order < len(tokens); i++ {
		out = append(out, Observation{
			Context: Context(tokens[i : i+order]),
			Next:    tokens[i+order],
		})
	}
	return out
}
