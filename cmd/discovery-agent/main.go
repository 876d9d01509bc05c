package main

import (
	"os"

	"github.com/snowops/discovery-agent/cmd/discovery-agent/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
