package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/RedCat17/mudrets-bot/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Show save history",
		Long:  "Show the most recent saves, newest first. Without -n all namespaces are listed. SQLite driver only.",
		Run:   runCheckpoints,
	}

	cmd.Flags().Int("limit", 20, "Maximum number of records")

	RootCmd.AddCommand(cmd)
}

func runCheckpoints(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	ctx := cmd.Context()
	cfg := loadConfig()

	_, s, err := openBackend(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	if s == nil {
		exitErr("checkpoints", fmt.Errorf("save history needs the %q driver", "sqlite"))
	}
	defer s.Close()

	rows, err := s.Checkpoints(ctx, nsFlag, limit)
	if err != nil {
		exitErr("checkpoints", err)
	}
	if rows == nil {
		rows = []model.Checkpoint{}
	}

	printOut(rows, func(w io.Writer) {
		for _, cp := range rows {
			kind := "full"
			if cp.Partial {
				kind = "partial"
			}
			fmt.Fprintf(w, "%s  %s  %-12s %-7s entries=%d contexts=%d learned=%d generated=%d\n",
				cp.ID, cp.CreatedAt.Local().Format(time.DateTime), cp.NS, kind,
				cp.Entries, cp.Contexts, cp.Learned, cp.Generated)
		}
	})
}
