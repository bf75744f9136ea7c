// Package snapshot reads and writes self-contained model snapshot files and
// provides a file-per-namespace persistence backend built on them.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RedCat17/mudrets-bot/internal/markov"
)

// Version is the snapshot file format version.
const Version = 1

// Supported file formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Entry is one context and its successors.
type Entry struct {
	Context []string `json:"context" yaml:"context,flow"`
	Next    []string `json:"next" yaml:"next,flow"`
}

// File is the on-disk form of a model snapshot.
type File struct {
	Version   int       `json:"version" yaml:"version"`
	Namespace string    `json:"namespace" yaml:"namespace"`
	Order     int       `json:"order" yaml:"order"`
	Learned   int64     `json:"total_messages" yaml:"total_messages"`
	Generated int64     `json:"generated_messages" yaml:"generated_messages"`
	SavedAt   time.Time `json:"saved_at" yaml:"saved_at"`
	Chain     []Entry   `json:"chain" yaml:"chain"`
}

// FromSnapshot converts a full model snapshot into a file.
func FromSnapshot(ns string, s markov.Snapshot) File {
	f := File{
		Version:   Version,
		Namespace: ns,
		Order:     s.Order,
		Learned:   s.Counters.Learned,
		Generated: s.Counters.Generated,
		SavedAt:   time.Now().UTC(),
		Chain:     make([]Entry, 0, len(s.Entries)),
	}
	for _, e := range s.Entries {
		f.Chain = append(f.Chain, Entry{Context: e.Context.Clone(), Next: append([]string(nil), e.Next...)})
	}
	return f
}

// ToSnapshot converts f back into a full model snapshot. Entries keep file
// order.
func (f File) ToSnapshot() markov.Snapshot {
	s := markov.Snapshot{
		Order:    f.Order,
		Counters: markov.Counters{Learned: f.Learned, Generated: f.Generated},
		Entries:  make([]markov.Entry, 0, len(f.Chain)),
	}
	for i, e := range f.Chain {
		s.Entries = append(s.Entries, markov.Entry{
			Seq:     i,
			Context: markov.Context(e.Context).Clone(),
			Next:    append([]string(nil), e.Next...),
		})
	}
	return s
}

// FormatFor picks the format from a file extension. Anything that is not
// .yaml or .yml is JSON.
func FormatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Encode writes f to w in the given format.
func Encode(w io.Writer, f File, format string) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return err
		}
		return enc.Close()
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(f)
	default:
		return fmt.Errorf("unknown snapshot format %q", format)
	}
}

// Decode parses a snapshot in the given format. Unparseable input and
// unsupported versions fail with markov.ErrCorruptState.
func Decode(r io.Reader, format string) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var f File
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &f)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&f)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", markov.ErrCorruptState, err)
	}
	if f.Version != Version {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", markov.ErrCorruptState, f.Version)
	}
	return &f, nil
}

// ReadFile loads a snapshot file. A missing file returns an error matching
// os.ErrNotExist.
func ReadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	defer fh.Close()

	f, err := Decode(fh, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	return f, nil
}

// WriteFile atomically replaces path with f: the snapshot is written to a
// temporary file in the same directory, synced and renamed over the target,
// so an interrupted write leaves the previous file intact.
func WriteFile(path string, f File) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	err = Encode(tmp, f, FormatFor(path))
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
