package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/RedCat17/mudrets-bot/internal/watch"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Learn from text files as they grow",
		Long: `Watch a directory and learn every new line appended to matching files,
one message per line. Files already present are read first. With the sqlite
driver, read positions survive restarts.

Press Ctrl-C to stop.`,
		Args: cobra.ExactArgs(1),
		Run:  runWatch,
	}

	cmd.Flags().String("pattern", "", "File name glob (default: watch.pattern)")
	cmd.Flags().Duration("debounce", 0, "Batch window for file events (default: watch.debounce)")

	RootCmd.AddCommand(cmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	pattern, _ := cmd.Flags().GetString("pattern")
	debounce, _ := cmd.Flags().GetDuration("debounce")
	dir := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if info, err := os.Stat(dir); err != nil {
		exitErr("watch", err)
	} else if !info.IsDir() {
		exitErr("watch", fmt.Errorf("%s is not a directory", dir))
	}

	a := openApp(ctx)
	defer a.Close()

	if pattern == "" {
		pattern = a.cfg.Watch.Pattern
	}
	if debounce <= 0 {
		debounce = a.cfg.Watch.Debounce
	}

	ns := a.namespace()
	learn := func(ctx context.Context, line string) error {
		_, err := a.engine.OnTextReceived(ctx, ns, line)
		return err
	}
	w := watch.New(dir, pattern, debounce, learn, a.state(), slog.Default())
	w.Commit = a.commit()

	stopEngine := a.runEngine()
	fmt.Fprintf(os.Stderr, "Watching %s/%s into %q. Press Ctrl-C to stop.\n", dir, pattern, ns)

	err := w.Run(ctx)
	if ferr := stopEngine(); ferr != nil {
		exitErr("final save", ferr)
	}
	if err != nil {
		exitErr("watch", err)
	}
}
