// Package config loads mudrets settings from a TOML file
// (~/.config/mudrets/config.toml by default) and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete process configuration.
type Config struct {
	Model    ModelConfig    `toml:"model"`
	Storage  StorageConfig  `toml:"storage"`
	Log      LogConfig      `toml:"log"`
	Bot      BotConfig      `toml:"bot"`
	Telegram TelegramConfig `toml:"telegram"`
	Matrix   MatrixConfig   `toml:"matrix"`
	Watch    WatchConfig    `toml:"watch"`
}

type ModelConfig struct {
	Order     int    `toml:"order"`
	MaxWords  int    `toml:"max_words"`
	Namespace string `toml:"namespace"`
}

// StorageConfig selects the persistence backend. For the sqlite driver Path
// is the database file, for the file driver a directory of snapshots.
type StorageConfig struct {
	Driver          string        `toml:"driver"`
	Path            string        `toml:"path"`
	Format          string        `toml:"format"`
	SaveInterval    time.Duration `toml:"save_interval"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	OnCorrupt       string        `toml:"on_corrupt"`
	RetryAttempts   int           `toml:"retry_attempts"`
	Retention       int           `toml:"checkpoint_retention"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type BotConfig struct {
	Name          string        `toml:"name"`
	Keyword       string        `toml:"keyword"`
	ReplyChance   float64       `toml:"reply_chance"`
	MinDelay      time.Duration `toml:"min_delay"`
	MaxDelay      time.Duration `toml:"max_delay"`
	PerChat       bool          `toml:"per_chat"`
	StatsCommands []string      `toml:"stats_commands"`
}

type TelegramConfig struct {
	Token       string        `toml:"token"`
	APIBase     string        `toml:"api_base"`
	PollTimeout time.Duration `toml:"poll_timeout"`
}

type MatrixConfig struct {
	Homeserver  string   `toml:"homeserver"`
	UserID      string   `toml:"user_id"`
	AccessToken string   `toml:"access_token"`
	Rooms       []string `toml:"rooms"`
	// DirectRooms are treated like private chats: every message gets a reply.
	DirectRooms []string `toml:"direct_rooms"`
}

type WatchConfig struct {
	Pattern  string        `toml:"pattern"`
	Debounce time.Duration `toml:"debounce"`
}

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// Default returns the built-in settings.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Model: ModelConfig{
			Order:     2,
			MaxWords:  100,
			Namespace: "default",
		},
		Storage: StorageConfig{
			Driver:          DriverSQLite,
			Path:            filepath.Join(home, ".mudrets", "mudrets.db"),
			Format:          "json",
			SaveInterval:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			OnCorrupt:       "abort",
			RetryAttempts:   3,
			Retention:       100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Bot: BotConfig{
			Name:          "mudrets_robot",
			Keyword:       "мудрец",
			ReplyChance:   0.1,
			MinDelay:      time.Second,
			MaxDelay:      3 * time.Second,
			StatsCommands: []string{"/wisdom", "/мудрость", "мудрость"},
		},
		Telegram: TelegramConfig{
			APIBase:     "https://api.telegram.org",
			PollTimeout: 30 * time.Second,
		},
		Watch: WatchConfig{
			Pattern:  "*.txt",
			Debounce: 500 * time.Millisecond,
		},
	}
}

// DefaultPath returns $MUDRETS_CONFIG or ~/.config/mudrets/config.toml.
func DefaultPath() (string, error) {
	if p := os.Getenv("MUDRETS_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mudrets", "config.toml"), nil
}

// Load reads the config file at path over the defaults, applies environment
// overrides and validates the result. An empty path means DefaultPath; a
// missing default file is not an error, a missing explicit one is.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		_, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, os.ErrNotExist) && !explicit:
		case err != nil:
			return cfg, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg as TOML, creating the parent directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create: %w", err)
	}
	defer f.Close()
	return Encode(f, cfg)
}

// Encode writes cfg as TOML.
func Encode(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	var errs []error
	if c.Model.Order < 1 {
		errs = append(errs, fmt.Errorf("model.order must be at least 1, got %d", c.Model.Order))
	}
	if c.Model.MaxWords < 1 {
		errs = append(errs, fmt.Errorf("model.max_words must be at least 1, got %d", c.Model.MaxWords))
	}
	if c.Model.Namespace == "" {
		errs = append(errs, errors.New("model.namespace must not be empty"))
	}
	switch c.Storage.Driver {
	case DriverSQLite, DriverFile:
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %q or %q, got %q", DriverSQLite, DriverFile, c.Storage.Driver))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path must not be empty"))
	}
	switch c.Storage.Format {
	case "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("storage.format must be json or yaml, got %q", c.Storage.Format))
	}
	switch c.Storage.OnCorrupt {
	case "abort", "reset":
	default:
		errs = append(errs, fmt.Errorf("storage.on_corrupt must be abort or reset, got %q", c.Storage.OnCorrupt))
	}
	if c.Storage.SaveInterval <= 0 {
		errs = append(errs, errors.New("storage.save_interval must be positive"))
	}
	if c.Bot.ReplyChance < 0 || c.Bot.ReplyChance > 1 {
		errs = append(errs, fmt.Errorf("bot.reply_chance must be within [0, 1], got %g", c.Bot.ReplyChance))
	}
	if c.Bot.MinDelay < 0 || c.Bot.MinDelay > c.Bot.MaxDelay {
		errs = append(errs, fmt.Errorf("bot delays must satisfy 0 <= min_delay <= max_delay, got %s..%s", c.Bot.MinDelay, c.Bot.MaxDelay))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}
