package tokenizer

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestTokenize_EmptyInput(t *testing.T) {
	got := Tokenize("")
	if !reflect.DeepEqual(got, []string{Sentinel}) {
		t.Errorf("expected only sentinel, got %q", got)
	}

	got = Tokenize("  \t\n ")
	if !reflect.DeepEqual(got, []string{Sentinel}) {
		t.Errorf("expected only sentinel for blank input, got %q", got)
	}
}

func TestTokenize_SplitsOnWhitespace(t *testing.T) {
	got := Tokenize("the  cat\tsat\non the mat")
	want := []string{"the", "cat", "sat", "on", "the", "mat", ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestTokenize_KeepsPunctuationAndCase(t *testing.T) {
	got := Tokenize("Привет, Мир!")
	want := []string{"Привет,", "Мир!", ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestJoin_TrimsSentinel(t *testing.T) {
	if got := Join([]string{"the", "cat", "sat", Sentinel}); got != "the cat sat" {
		t.Errorf("expected %q, got %q", "the cat sat", got)
	}
	if got := Join([]string{Sentinel}); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestMessages_SkipsBlankLines(t *testing.T) {
	var lines []string
	err := Messages(strings.NewReader("first line\n\n   \nsecond  line  \n"), func(line string) error {
		lines = append(lines, line)
		return nil
	})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	want := []string{"first line", "second  line"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("expected %q, got %q", want, lines)
	}
}

func TestMessages_StopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := Messages(strings.NewReader("a\nb\nc\n"), func(string) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected stop error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestTokenize_ReplacesInvalidUTF8(t *testing.T) {
	got := Tokenize("a b \xff c\xfe\xfdd")
	want := []string{"a", "b", Replacement, "c" + Replacement + "d", Sentinel}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
	if got := Words("x \xff"); !reflect.DeepEqual(got, []string{"x", Replacement}) {
		t.Errorf("Words should replace invalid bytes too, got %q", got)
	}
}
