package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/RedCat17/mudrets-bot/internal/tokenizer"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "successors <word>...",
		Short: "Show the successors of a context",
		Long: "Show the successor list of the context spelled by the given words. The number\n" +
			"of words must match the namespace order. The end-of-message marker prints as <end>.",
		Args: cobra.MinimumNArgs(1),
		Run:  runSuccessors,
	}

	RootCmd.AddCommand(cmd)
}

type successorsResult struct {
	NS         string   `json:"ns" yaml:"ns"`
	Context    []string `json:"context" yaml:"context"`
	Found      bool     `json:"found" yaml:"found"`
	Successors []string `json:"successors" yaml:"successors"`
}

func runSuccessors(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := openApp(ctx)
	defer a.Close()

	text := strings.Join(args, " ")
	next, ok, err := a.engine.Successors(ctx, a.namespace(), text)
	if err != nil {
		exitErr("successors", err)
	}

	res := successorsResult{
		NS:         a.namespace(),
		Context:    tokenizer.Words(text),
		Found:      ok,
		Successors: next,
	}
	if res.Successors == nil {
		res.Successors = []string{}
	}

	printOut(res, func(w io.Writer) {
		if !ok {
			fmt.Fprintf(w, "context %q not found in %q\n", text, res.NS)
			return
		}
		for _, s := range next {
			if s == tokenizer.Sentinel {
				s = "<end>"
			}
			fmt.Fprintln(w, s)
		}
	})
}
