package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RedCat17/mudrets-bot/internal/bot"
	"github.com/RedCat17/mudrets-bot/internal/matrix"
	"github.com/RedCat17/mudrets-bot/internal/telegram"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:       "serve <telegram|matrix>",
		Short:     "Run the bot on a chat transport",
		Long:      "Run the bot until SIGINT/SIGTERM. Every message is learned; some get a generated reply.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"telegram", "matrix"},
		Run:       runServe,
	}

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := openApp(ctx)
	defer a.Close()

	b := bot.New(a.engine, a.policy(), slog.Default())
	stopEngine := a.runEngine()

	var err error
	switch args[0] {
	case "telegram":
		err = serveTelegram(ctx, a, b)
	case "matrix":
		err = serveMatrix(ctx, a, b)
	default:
		err = fmt.Errorf("unknown transport %q (telegram or matrix)", args[0])
	}

	// replies still draining inside the transport may have generated
	if ferr := stopEngine(); ferr != nil {
		err = errors.Join(err, fmt.Errorf("final save: %w", ferr))
	}
	if err != nil {
		exitErr("serve", err)
	}
}

func serveTelegram(ctx context.Context, a *app, b *bot.Bot) error {
	tc := a.cfg.Telegram
	if tc.Token == "" {
		return errors.New("telegram token is required (BOT_TOKEN or telegram.token)")
	}
	client := telegram.NewClient(telegram.BotURL(tc.APIBase, tc.Token), tc.PollTimeout+10*time.Second)
	srv := telegram.NewServer(client, b, a.state(), slog.Default())
	srv.PollTimeout = tc.PollTimeout
	srv.Commit = a.commit()
	return srv.Run(ctx)
}

func serveMatrix(ctx context.Context, a *app, b *bot.Bot) error {
	mc := a.cfg.Matrix
	srv, err := matrix.New(matrix.Config{
		Homeserver:  mc.Homeserver,
		UserID:      mc.UserID,
		AccessToken: mc.AccessToken,
		Rooms:       mc.Rooms,
		DirectRooms: mc.DirectRooms,
	}, b, a.state(), slog.Default())
	if err != nil {
		return err
	}
	srv.Commit = a.commit()
	return srv.Run(ctx)
}
