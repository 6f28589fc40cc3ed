// Command khavayye is the entry point for the Khavayye AI Pune food guide.
// It provides a CLI interface (via Cobra) for indexing the restaurant dataset,
// asking one-shot questions, and running the HTTP chat server.
package main

import (
	"fmt"
	"os"

	"github.com/taniishka21/KhavayyePeth/cmd/khavayye/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
