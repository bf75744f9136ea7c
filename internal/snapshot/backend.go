package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RedCat17/mudrets-bot/internal/markov"
)

// FileBackend keeps one snapshot file per namespace in Dir. It always writes
// full snapshots.
type FileBackend struct {
	Dir    string
	Format string
}

// NewFileBackend creates dir if needed. An empty format means JSON.
func NewFileBackend(dir, format string) (*FileBackend, error) {
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatYAML {
		return nil, fmt.Errorf("unknown snapshot format %q", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w: %w", markov.ErrStoreUnavailable, err)
	}
	return &FileBackend{Dir: dir, Format: format}, nil
}

// Path returns the file that holds ns.
func (b *FileBackend) Path(ns string) string {
	return filepath.Join(b.Dir, url.PathEscape(ns)+"."+b.Format)
}

// Incremental reports false: every save rewrites the whole namespace.
func (b *FileBackend) Incremental() bool { return false }

// Load reads ns, returning nil and no error when it was never saved.
func (b *FileBackend) Load(ctx context.Context, ns string) (*markov.Snapshot, error) {
	f, err := ReadFile(b.Path(ns))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case errors.Is(err, markov.ErrCorruptState):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("load %q: %w: %w", ns, markov.ErrStoreUnavailable, err)
	}
	if f.Namespace != "" && f.Namespace != ns {
		return nil, fmt.Errorf("%w: %s holds namespace %q", markov.ErrCorruptState, b.Path(ns), f.Namespace)
	}
	snap := f.ToSnapshot()
	return &snap, nil
}

// Save writes a full snapshot of ns.
func (b *FileBackend) Save(ctx context.Context, ns string, snap markov.Snapshot) error {
	if snap.Partial {
		return fmt.Errorf("save %q: file backend needs a full snapshot", ns)
	}
	if err := WriteFile(b.Path(ns), FromSnapshot(ns, snap)); err != nil {
		return fmt.Errorf("save %q: %w: %w", ns, markov.ErrStoreUnavailable, err)
	}
	return nil
}

// Namespaces lists the namespaces with a snapshot file in Dir.
func (b *FileBackend) Namespaces(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w: %w", markov.ErrStoreUnavailable, err)
	}
	suffix := "." + b.Format
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		ns, err := url.PathUnescape(strings.TrimSuffix(name, suffix))
		if err != nil {
			continue
		}
		out = append(out, ns)
	}
	sort.Strings(out)
	return out, nil
}
