// Command steering runs the content steering service.
package main

import (
	"fmt"
	"os"

	"github.com/steering/content-steering/cmd/steering/commands"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit)
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
