// Package cli implements the mudrets CLI commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/RedCat17/mudrets-bot/internal/bot"
	"github.com/RedCat17/mudrets-bot/internal/config"
	"github.com/RedCat17/mudrets-bot/internal/engine"
	"github.com/RedCat17/mudrets-bot/internal/logging"
	"github.com/RedCat17/mudrets-bot/internal/markov"
	"github.com/RedCat17/mudrets-bot/internal/model"
	"github.com/RedCat17/mudrets-bot/internal/retry"
	"github.com/RedCat17/mudrets-bot/internal/snapshot"
	"github.com/RedCat17/mudrets-bot/internal/store"
	"github.com/spf13/cobra"
)

var (
	dbPath     string
	configPath string
	nsFlag     string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "mudrets",
	Short: "Markov chain chat bot",
	Long: "A Markov chain chat bot. Learns from every message it sees and replies with generated text.\n" +
		"Models are namespaced and persisted to SQLite (default) or snapshot files.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !model.ValidFormats[formatFlag] {
			exitErr("format", fmt.Errorf("unknown output format %q (json, yaml or text)", formatFlag))
		}
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Storage path (default: $MUDRETS_DB or storage.path from config)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $MUDRETS_CONFIG or ~/.config/mudrets/config.toml)")
	RootCmd.PersistentFlags().StringVarP(&nsFlag, "ns", "n", "", "Namespace (default: model.namespace from config)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json, yaml or text")
}

func loadConfig() config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	} else if cfg.Storage.Driver == config.DriverFile && cfg.Storage.Path == config.Default().Storage.Path {
		cfg.Storage.Path = filepath.Join(filepath.Dir(cfg.Storage.Path), "snapshots")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	return cfg
}

// openBackend opens the configured persistence backend. The returned store is
// nil for the file driver.
func openBackend(cfg config.Config) (engine.Backend, *store.SQLiteStore, error) {
	if cfg.Storage.Driver == config.DriverFile {
		b, err := snapshot.NewFileBackend(cfg.Storage.Path, cfg.Storage.Format)
		if err != nil {
			return nil, nil, err
		}
		return b, nil, nil
	}

	path := cfg.Storage.Path
	s, err := store.NewSQLiteStore(path)
	if errors.Is(err, markov.ErrCorruptState) && cfg.Storage.OnCorrupt == engine.OnCorruptReset {
		aside := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405"))
		if rerr := os.Rename(path, aside); rerr != nil {
			return nil, nil, errors.Join(err, rerr)
		}
		os.Remove(path + "-wal")
		os.Remove(path + "-shm")
		slog.Warn("store: corrupt database moved aside", "path", path, "moved_to", aside, "err", err)
		s, err = store.NewSQLiteStore(path)
	}
	if err != nil {
		return nil, nil, err
	}
	s.SetRetention(cfg.Storage.Retention)
	return s, s, nil
}

// stateStore is satisfied by the SQLite store; transports use it to resume.
type stateStore interface {
	SaveState(ctx context.Context, transport, key, value string) error
	LoadState(ctx context.Context, transport, key string) (string, error)
}

// app bundles what a command needs once the models are loaded.
type app struct {
	cfg     config.Config
	backend engine.Backend
	store   *store.SQLiteStore
	engine  *engine.Engine
}

func openApp(ctx context.Context) *app {
	cfg := loadConfig()

	backend, s, err := openBackend(cfg)
	if err != nil {
		exitErr("open store", err)
	}

	rc := retry.DefaultConfig
	if cfg.Storage.RetryAttempts > 0 {
		rc.MaxAttempts = cfg.Storage.RetryAttempts
	}
	eng := engine.New(backend, engine.Config{
		Order:           cfg.Model.Order,
		MaxWords:        cfg.Model.MaxWords,
		SaveInterval:    cfg.Storage.SaveInterval,
		ShutdownTimeout: cfg.Storage.ShutdownTimeout,
		OnCorrupt:       cfg.Storage.OnCorrupt,
		Retry:           rc,
	}, slog.Default())

	a := &app{cfg: cfg, backend: backend, store: s, engine: eng}
	if err := eng.LoadOnStartup(ctx); err != nil {
		a.Close()
		exitErr("load models", err)
	}
	return a
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) namespace() string {
	if nsFlag != "" {
		return nsFlag
	}
	return a.cfg.Model.Namespace
}

// state returns a nil interface for backends without transport state.
func (a *app) state() stateStore {
	if a.store == nil {
		return nil
	}
	return a.store
}

// commit returns the save that must succeed before a transport records how
// far it has read. It is nil when the backend keeps no transport state.
func (a *app) commit() func(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	return a.engine.Flush
}

func (a *app) policy() bot.Policy {
	return bot.Policy{
		Name:          a.cfg.Bot.Name,
		Keyword:       a.cfg.Bot.Keyword,
		ReplyChance:   a.cfg.Bot.ReplyChance,
		MinDelay:      a.cfg.Bot.MinDelay,
		MaxDelay:      a.cfg.Bot.MaxDelay,
		MaxWords:      a.cfg.Model.MaxWords,
		Namespace:     a.namespace(),
		PerChat:       a.cfg.Bot.PerChat,
		StatsCommands: a.cfg.Bot.StatsCommands,
	}
}

func (a *app) flush(ctx context.Context) {
	if err := a.engine.Flush(ctx); err != nil {
		exitErr("save", err)
	}
}

// runEngine starts autosave in the background. The returned stop function
// cancels it and waits for the final flush.
func (a *app) runEngine() (stop func() error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.engine.Run(ctx) }()
	return func() error {
		cancel()
		return <-done
	}
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
