package main

import (
	"os"

	"github.com/RedCat17/mudrets-bot/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
