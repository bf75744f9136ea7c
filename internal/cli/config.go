package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/RedCat17/mudrets-bot/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Long:  "Print the configuration after defaults, the config file and environment overrides. Secrets are masked.",
		Run:   runConfigShow,
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Run:   runConfigInit,
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(showCmd, initCmd)
	RootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if err := config.Encode(os.Stdout, redact(cfg)); err != nil {
		exitErr("config show", err)
	}
}

func redact(cfg config.Config) config.Config {
	if cfg.Telegram.Token != "" {
		cfg.Telegram.Token = "********"
	}
	if cfg.Matrix.AccessToken != "" {
		cfg.Matrix.AccessToken = "********"
	}
	return cfg
}

func runConfigInit(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")

	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			exitErr("config init", err)
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil && !force {
		exitErr("config init", fmt.Errorf("%s already exists (use --force to overwrite)", path))
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		exitErr("config init", err)
	}

	if err := config.Save(path, config.Default()); err != nil {
		exitErr("config init", err)
	}
	printOut(map[string]any{"ok": true, "path": path}, nil)
}
