package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/RedCat17/mudrets-bot/internal/markov"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate text",
		Long: "Generate text from a namespace. With --seed the walk continues the last\n" +
			"order words of the seed instead of starting from a random context.",
		Run: runGenerate,
	}

	cmd.Flags().String("seed", "", "Continue from the last words of this text")
	cmd.Flags().Int("max-words", -1, "Maximum words appended after the seed; negative uses model.max_words")
	cmd.Flags().IntP("count", "k", 1, "Number of messages to generate")

	RootCmd.AddCommand(cmd)
}

type generateResult struct {
	NS       string   `json:"ns" yaml:"ns"`
	Messages []string `json:"messages" yaml:"messages"`
}

func runGenerate(cmd *cobra.Command, args []string) {
	seed, _ := cmd.Flags().GetString("seed")
	maxWords, _ := cmd.Flags().GetInt("max-words")
	count, _ := cmd.Flags().GetInt("count")
	ctx := cmd.Context()

	if count < 1 {
		exitErr("generate", fmt.Errorf("--count must be at least 1, got %d", count))
	}

	a := openApp(ctx)
	defer a.Close()

	res := generateResult{NS: a.namespace()}
	for i := 0; i < count; i++ {
		var text string
		var err error
		if seed != "" {
			text, err = a.engine.GenerateFrom(ctx, res.NS, seed, maxWords)
		} else {
			text, err = a.engine.RequestGeneration(ctx, res.NS, maxWords)
		}
		if errors.Is(err, markov.ErrEmptyModel) {
			exitErr("generate", fmt.Errorf("namespace %q has nothing learned yet: %w", res.NS, err))
		}
		if err != nil {
			exitErr("generate", err)
		}
		res.Messages = append(res.Messages, text)
	}

	// generated counters are persisted like learned ones
	a.flush(ctx)

	printOut(res, func(w io.Writer) {
		for _, m := range res.Messages {
			fmt.Fprintln(w, m)
		}
	})
}
