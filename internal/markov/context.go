package markov

import (
	"fmt"
	"strconv"
	"strings"
)

// Context is an ordered window of tokens used as a chain lookup key.
type Context []string

// Equal reports whether c and o hold the same tokens in the same order.
func (c Context) Equal(o Context) bool {
	if len(c) != len(o) {
		return false
	}
	for i := range c {
		if c[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of c that does not share backing storage.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	copy(out, c)
	return out
}

// Key returns the encoded form of c. See EncodeContext.
func (c Context) Key() string {
	return EncodeContext(c)
}

func (c Context) String() string {
	quoted := make([]string, len(c))
	for i, tok := range c {
		quoted[i] = strconv.Quote(tok)
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}

// CodecVersion identifies the context key encoding produced by EncodeContext.
const CodecVersion = "v1"

const codecPrefix = CodecVersion + ";"

// EncodeContext renders c as a versioned, length-prefixed string:
//
//	("the", "cat") -> v1;3:the3:cat
//	("", "x")      -> v1;0:1:x
//
// Every token is prefixed with its byte length, so tokens may contain any
// byte including the separators and the empty sentinel stays distinct.
func EncodeContext(c Context) string {
	n := len(codecPrefix)
	for _, tok := range c {
		n += len(tok) + 4
	}
	var b strings.Builder
	b.Grow(n)
	b.WriteString(codecPrefix)
	for _, tok := range c {
		b.WriteString(strconv.Itoa(len(tok)))
		b.WriteByte(':')
		b.WriteString(tok)
	}
	return b.String()
}

// DecodeContext parses a key produced by EncodeContext. Keys with an unknown
// version, malformed lengths or trailing bytes fail with ErrCorruptState.
func DecodeContext(s string) (Context, error) {
	rest, ok := strings.CutPrefix(s, codecPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported context key %q", ErrCorruptState, s)
	}

	ctx := Context{}
	for rest != "" {
		colon := strings.IndexByte(rest, ':')
		if colon <= 0 {
			return nil, fmt.Errorf("%w: malformed context key %q", ErrCorruptState, s)
		}
		n, err := strconv.Atoi(rest[:colon])
		if err != nil || n < 0 || n > len(rest)-colon-1 {
			return nil, fmt.Errorf("%w: bad token length in context key %q", ErrCorruptState, s)
		}
		ctx = append(ctx, rest[colon+1:colon+1+n])
		rest = rest[colon+1+n:]
	}

	// Lengths like "03" or "+3" parse but are not canonical.
	if EncodeContext(ctx) != s {
		return nil, fmt.Errorf("%w: non-canonical context key %q", ErrCorruptState, s)
	}
	return ctx, nil
}
