package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/RedCat17/mudrets-bot/internal/tokenizer"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "learn [text]",
		Short: "Learn messages",
		Long: "Learn messages into a namespace. Text can be a positional arg (one message),\n" +
			"piped via stdin or read from --file, one message per line.",
		Run: runLearn,
	}

	cmd.Flags().StringSliceP("file", "F", nil, "Text files to learn, one message per line")

	RootCmd.AddCommand(cmd)
}

type learnResult struct {
	OK           bool   `json:"ok" yaml:"ok"`
	NS           string `json:"ns" yaml:"ns"`
	Messages     int    `json:"messages" yaml:"messages"`
	Observations int    `json:"observations" yaml:"observations"`
}

func runLearn(cmd *cobra.Command, args []string) {
	files, _ := cmd.Flags().GetStringSlice("file")
	ctx := cmd.Context()

	a := openApp(ctx)
	defer a.Close()

	res := learnResult{OK: true, NS: a.namespace()}
	learnLine := func(line string) error {
		n, err := a.engine.OnTextReceived(ctx, res.NS, line)
		if err != nil {
			return err
		}
		res.Messages++
		res.Observations += n
		return nil
	}

	switch {
	case len(files) > 0:
		for _, path := range files {
			if err := learnFile(path, learnLine); err != nil {
				exitErr("learn "+path, err)
			}
		}
	case len(args) > 0:
		if err := learnLine(strings.Join(args, " ")); err != nil {
			exitErr("learn", err)
		}
	default:
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			if err := tokenizer.Messages(os.Stdin, learnLine); err != nil {
				exitErr("read stdin", err)
			}
		}
	}

	if res.Messages == 0 {
		exitErr("learn", errors.New("text is required (positional arg, stdin or --file)"))
	}

	a.flush(ctx)

	printOut(res, func(w io.Writer) {
		fmt.Fprintf(w, "learned %d messages (%d observations) into %q\n", res.Messages, res.Observations, res.NS)
	})
}

func learnFile(path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions64(info.Size(),
		progressbar.OptionSetDescription("  Learning "+filepath.Base(path)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	err = tokenizer.Messages(io.TeeReader(f, bar), fn)
	_ = bar.Finish()
	return err
}
