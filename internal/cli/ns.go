package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/RedCat17/mudrets-bot/internal/model"
	"github.com/RedCat17/mudrets-bot/internal/snapshot"
	"github.com/spf13/cobra"
)

func init() {
	nsCmd := &cobra.Command{
		Use:   "ns",
		Short: "Namespace management",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all namespaces",
		Run:   runNSList,
	}

	dropCmd := &cobra.Command{
		Use:   "drop <ns>",
		Short: "Delete a namespace and everything learned into it",
		Args:  cobra.ExactArgs(1),
		Run:   runNSDrop,
	}

	nsCmd.AddCommand(listCmd, dropCmd)
	RootCmd.AddCommand(nsCmd)
}

func runNSList(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	cfg := loadConfig()

	backend, s, err := openBackend(cfg)
	if err != nil {
		exitErr("open store", err)
	}

	var rows []model.NamespaceInfo
	if s != nil {
		defer s.Close()
		rows, err = s.ListNamespaces(ctx)
		if err != nil {
			exitErr("list namespaces", err)
		}
	} else {
		names, err := backend.Namespaces(ctx)
		if err != nil {
			exitErr("list namespaces", err)
		}
		for _, ns := range names {
			snap, err := backend.Load(ctx, ns)
			if err != nil {
				exitErr("load "+ns, err)
			}
			if snap == nil {
				continue
			}
			info := model.NamespaceInfo{
				NS:        ns,
				Order:     snap.Order,
				Contexts:  len(snap.Entries),
				Learned:   snap.Counters.Learned,
				Generated: snap.Counters.Generated,
			}
			for _, e := range snap.Entries {
				info.Successors += len(e.Next)
			}
			rows = append(rows, info)
		}
	}
	if rows == nil {
		rows = []model.NamespaceInfo{}
	}

	printOut(rows, func(w io.Writer) {
		for _, r := range rows {
			fmt.Fprintf(w, "%s\torder=%d\tcontexts=%d\tsuccessors=%d\tlearned=%d\tgenerated=%d\n",
				r.NS, r.Order, r.Contexts, r.Successors, r.Learned, r.Generated)
		}
	})
}

func runNSDrop(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	ns := args[0]
	cfg := loadConfig()

	backend, s, err := openBackend(cfg)
	if err != nil {
		exitErr("open store", err)
	}

	if s != nil {
		defer s.Close()
		err = s.Drop(ctx, ns)
	} else {
		err = os.Remove(backend.(*snapshot.FileBackend).Path(ns))
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
	}
	if err != nil {
		exitErr("drop namespace", err)
	}

	printOut(map[string]any{"ok": true, "dropped": ns}, func(w io.Writer) {
		fmt.Fprintf(w, "dropped %q\n", ns)
	})
}
