package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// printOut writes v to stdout in the selected format. Commands without a
// text rendering pass a nil text func and get JSON.
func printOut(v any, text func(w io.Writer)) {
	if err := writeOut(os.Stdout, formatFlag, v, text); err != nil {
		exitErr("write output", err)
	}
}

func writeOut(w io.Writer, format string, v any, text func(w io.Writer)) error {
	switch {
	case format == "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case format == "text" && text != nil:
		text(w)
		return nil
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
}
