package markov

import (
	"errors"
	"testing"
)

func TestEncodeContext(t *testing.T) {
	tests := []struct {
		ctx  Context
		want string
	}{
		{Context{"the", "cat"}, "v1;3:the3:cat"},
		{Context{"", "x"}, "v1;0:1:x"},
		{Context{"x", ""}, "v1;1:x0:"},
		{Context{}, "v1;"},
		{Context{"мир"}, "v1;6:мир"},
	}
	for _, tt := range tests {
		if got := EncodeContext(tt.ctx); got != tt.want {
			t.Errorf("EncodeContext(%s) = %q, want %q", tt.ctx, got, tt.want)
		}
	}
}

func TestDecodeContext_RoundTrip(t *testing.T) {
	ctxs := []Context{
		{"the", "cat"},
		{"", ""},
		{"a:b", "3:x"},
		{"v1;", "('the', 'cat')"},
		{"12345", " spaced "},
		{"one", "two", "three"},
	}
	for _, ctx := range ctxs {
		got, err := DecodeContext(EncodeContext(ctx))
		if err != nil {
			t.Fatalf("decode %s: %v", ctx, err)
		}
		if !got.Equal(ctx) {
			t.Errorf("round trip: expected %s, got %s", ctx, got)
		}
	}
}

func TestDecodeContext_DistinguishesSentinel(t *testing.T) {
	withSentinel, err := DecodeContext("v1;3:cat0:")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(withSentinel) != 2 || withSentinel[1] != Sentinel {
		t.Errorf("expected trailing sentinel token, got %s", withSentinel)
	}

	without, err := DecodeContext("v1;3:cat")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(without) != 1 {
		t.Errorf("expected a single token, got %s", without)
	}
}

func TestDecodeContext_Corrupt(t *testing.T) {
	bad := []string{
		"",
		"('the', 'cat')",
		"v2;3:the",
		"v1;3the",
		"v1;:the",
		"v1;9:the",
		"v1;-1:x",
		"v1;03:the",
		"v1;+3:the",
		"v1;3:thex",
	}
	for _, s := range bad {
		_, err := DecodeContext(s)
		if !errors.Is(err, ErrCorruptState) {
			t.Errorf("DecodeContext(%q): expected ErrCorruptState, got %v", s, err)
		}
	}
}
