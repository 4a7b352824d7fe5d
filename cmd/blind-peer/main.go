package main

import (
	"os"

	"github.com/holepunchto/blind-peer-cli/cmd/blind-peer/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
