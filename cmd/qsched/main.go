// Command qsched compiles, runs and verifies quasi-static reactor programs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/qsched/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
