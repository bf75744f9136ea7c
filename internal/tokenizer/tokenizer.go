// Package tokenizer splits message text into word tokens for the Markov chain.
package tokenizer

import (
	"bufio"
	"io"
	"strings"
)

// Sentinel is the empty token appended to every message. It marks the end of
// a message both while learning and while generating.
const Sentinel = ""

// Replacement stands in for every run of invalid UTF-8 bytes.
const Replacement = "\uFFFD"

// Tokenize splits text on whitespace and appends the sentinel token.
// Empty or blank input yields a slice holding only the sentinel. Invalid
// UTF-8 is replaced with Replacement first, so every token survives a JSON
// round trip unchanged.
func Tokenize(text string) []string {
	words := Words(text)
	tokens := make([]string, 0, len(words)+1)
	tokens = append(tokens, words...)
	return append(tokens, Sentinel)
}

// Words splits text on whitespace without appending the sentinel. Invalid
// UTF-8 is replaced as in Tokenize.
func Words(text string) []string {
	return strings.Fields(strings.ToValidUTF8(text, Replacement))
}

// Join renders tokens as a single line of text. Tokens are separated by one
// space and sentinel padding at either end is trimmed.
func Join(tokens []string) string {
	return strings.TrimSpace(strings.Join(tokens, " "))
}

// Messages reads r line by line and calls fn for every non-blank line.
// It is used to feed corpora where each line is one message.
func Messages(r io.Reader, fn func(line string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return sc.Err()
}
