package cli

import (
	"fmt"
	"io"

	"github.com/RedCat17/mudrets-bot/internal/bot"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show model statistics",
		Long:  "Show counters and chain size of a namespace. With --db-info, show database statistics instead (sqlite only).",
		Run:   runStats,
	}

	cmd.Flags().Bool("db-info", false, "Show database statistics")

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	dbInfo, _ := cmd.Flags().GetBool("db-info")
	ctx := cmd.Context()

	if dbInfo {
		cfg := loadConfig()
		_, s, err := openBackend(cfg)
		if err != nil {
			exitErr("open store", err)
		}
		if s == nil {
			exitErr("stats", fmt.Errorf("--db-info needs the %q driver", "sqlite"))
		}
		defer s.Close()

		st, err := s.Stats(ctx)
		if err != nil {
			exitErr("stats", err)
		}
		printOut(st, nil)
		return
	}

	a := openApp(ctx)
	defer a.Close()

	st, err := a.engine.Stats(ctx, a.namespace())
	if err != nil {
		exitErr("stats", err)
	}

	printOut(st, func(w io.Writer) {
		fmt.Fprintln(w, bot.FormatStats(st))
	})
}
