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
		Use:   "import",
		Short: "Import a snapshot file",
		Long: "Replace a namespace with the model in a snapshot file. The target namespace is -n,\n" +
			"else the one recorded in the snapshot. Without --in the snapshot is read from stdin.",
		Run: runImport,
	}

	cmd.Flags().StringP("in", "i", "", "Snapshot file; the extension picks the format")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	in, _ := cmd.Flags().GetString("in")
	ctx := cmd.Context()

	var f *snapshot.File
	var err error
	if in == "" || in == "-" {
		format := snapshot.FormatJSON
		if formatFlag == "yaml" {
			format = snapshot.FormatYAML
		}
		f, err = snapshot.Decode(os.Stdin, format)
	} else {
		f, err = snapshot.ReadFile(in)
	}
	if err != nil {
		exitErr("read snapshot", err)
	}

	a := openApp(ctx)
	defer a.Close()

	ns := nsFlag
	if ns == "" {
		ns = f.Namespace
	}
	if ns == "" {
		ns = a.namespace()
	}

	if err := a.engine.Import(ctx, ns, f.ToSnapshot()); err != nil {
		exitErr("import", err)
	}
	a.flush(ctx)

	printOut(map[string]any{"ok": true, "ns": ns, "contexts": len(f.Chain)}, func(w io.Writer) {
		fmt.Fprintf(w, "imported %d contexts into %q\n", len(f.Chain), ns)
	})
}
