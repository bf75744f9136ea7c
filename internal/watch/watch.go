// Package watch learns messages from text files dropped into a directory.
// Each line is one message; appended lines are picked up on the next write.
package watch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/RedCat17/mudrets-bot/internal/tokenizer"
)

const transportName = "watch"

// LearnFunc receives one message line.
type LearnFunc func(ctx context.Context, line string) error

// StateStore remembers how far each file has been read.
type StateStore interface {
	SaveState(ctx context.Context, transport, key, value string) error
	LoadState(ctx context.Context, transport, key string) (string, error)
}

// Watcher feeds new lines of matching files in Dir to Learn.
type Watcher struct {
	Dir      string
	Pattern  string
	Debounce time.Duration
	// Commit, when set, persists what was learned before a file's read
	// position is saved. If it fails the position stays put and the lines
	// are learned again on the next event.
	Commit func(ctx context.Context) error

	learn LearnFunc
	state StateStore
	log   *slog.Logger

	offsets map[string]int64
}

// New creates a watcher. state may be nil, in which case every file is read
// from the start once per process.
func New(dir, pattern string, debounce time.Duration, learn LearnFunc, state StateStore, logger *slog.Logger) *Watcher {
	if pattern == "" {
		pattern = "*.txt"
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		Dir:      dir,
		Pattern:  pattern,
		Debounce: debounce,
		learn:    learn,
		state:    state,
		log:      logger,
		offsets:  make(map[string]int64),
	}
}

// Run ingests the files already present, then watches Dir until ctx is
// cancelled. Bursts of events are batched per Debounce.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}

	existing, err := filepath.Glob(filepath.Join(w.Dir, w.Pattern))
	if err != nil {
		return fmt.Errorf("bad pattern %q: %w", w.Pattern, err)
	}
	w.ingestAll(ctx, existing)

	pending := make(map[string]bool)
	timer := time.NewTimer(w.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.Match(ev.Name) {
				continue
			}
			pending[ev.Name] = true
			timer.Reset(w.Debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch: error", "err", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			pending = make(map[string]bool)
			w.ingestAll(ctx, batch)
		}
	}
}

// Match reports whether path is a file the watcher learns from.
func (w *Watcher) Match(path string) bool {
	ok, _ := filepath.Match(w.Pattern, filepath.Base(path))
	return ok
}

func (w *Watcher) ingestAll(ctx context.Context, paths []string) {
	sort.Strings(paths)
	for _, p := range paths {
		n, err := w.Ingest(ctx, p)
		if err != nil {
			w.log.Warn("watch: ingest failed", "file", p, "err", err)
			continue
		}
		if n > 0 {
			w.log.Info("watch: learned", "file", filepath.Base(p), "messages", n)
		}
	}
}

// Ingest learns the complete lines of path written since the last call and
// returns how many messages it learned. A trailing line without its newline
// is left for a later call. A file that shrank is read from the start.
func (w *Watcher) Ingest(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, nil
	}

	offset := w.offset(ctx, path)
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return 0, nil
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}

	data, err := io.ReadAll(io.LimitReader(f, info.Size()-offset))
	if err != nil {
		return 0, err
	}
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return 0, nil
	}
	data = data[:end+1]

	n := 0
	err = tokenizer.Messages(bytes.NewReader(data), func(line string) error {
		if err := w.learn(ctx, line); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	if n > 0 && w.Commit != nil {
		if err := w.Commit(ctx); err != nil {
			return n, fmt.Errorf("commit: %w", err)
		}
	}
	w.setOffset(ctx, path, offset+int64(len(data)))
	return n, nil
}

func (w *Watcher) offset(ctx context.Context, path string) int64 {
	if off, ok := w.offsets[path]; ok {
		return off
	}
	if w.state == nil {
		return 0
	}
	v, err := w.state.LoadState(ctx, transportName, stateKey(path))
	if err != nil {
		w.log.Warn("watch: load offset", "file", path, "err", err)
		return 0
	}
	off, _ := strconv.ParseInt(v, 10, 64)
	return off
}

func (w *Watcher) setOffset(ctx context.Context, path string, off int64) {
	w.offsets[path] = off
	if w.state == nil {
		return
	}
	if err := w.state.SaveState(ctx, transportName, stateKey(path), strconv.FormatInt(off, 10)); err != nil {
		w.log.Warn("watch: save offset", "file", path, "err", err)
	}
}

func stateKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
