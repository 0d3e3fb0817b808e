// Command radiocap simulates, tests and serves the radio capability
// manager.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/radiocap/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "radiocap:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
