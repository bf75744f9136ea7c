package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X github.com/RedCat17/mudrets-bot/internal/cli.Version=v1.2.3".
var Version = "dev"

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			v := map[string]string{"version": Version, "go": runtime.Version()}
			printOut(v, func(w io.Writer) {
				fmt.Fprintf(w, "mudrets %s (%s)\n", Version, runtime.Version())
			})
		},
	})
}
