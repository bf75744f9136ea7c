package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/RedCat17/mudrets-bot/internal/snapshot"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a namespace as a snapshot file",
		Long: "Export a namespace as a JSON or YAML snapshot. Without --out the snapshot is\n" +
			"written to stdout (YAML with -f yaml, JSON otherwise).",
		Run: runExport,
	}

	cmd.Flags().StringP("out", "o", "", "Output file; the extension picks the format")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	out, _ := cmd.Flags().GetString("out")
	ctx := cmd.Context()

	a := openApp(ctx)
	defer a.Close()

	ns := a.namespace()
	snap, ok, err := a.engine.Export(ctx, ns)
	if err != nil {
		exitErr("export", err)
	}
	if !ok {
		exitErr("export", fmt.Errorf("namespace %q not found", ns))
	}
	f := snapshot.FromSnapshot(ns, snap)

	if out == "" {
		format := snapshot.FormatJSON
		if formatFlag == "yaml" {
			format = snapshot.FormatYAML
		}
		if err := snapshot.Encode(os.Stdout, f, format); err != nil {
			exitErr("export", err)
		}
		return
	}

	if err := snapshot.WriteFile(out, f); err != nil {
		exitErr("export", err)
	}
	printOut(map[string]any{"ok": true, "ns": ns, "path": out, "contexts": len(f.Chain)}, func(w io.Writer) {
		fmt.Fprintf(w, "exported %q (%d contexts) to %s\n", ns, len(f.Chain), out)
	})
}
