package main

import (
	"os"

	"github.com/marmos91/woram/cmd/woramctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("%v", err)
		os.Exit(1)
	}
}
