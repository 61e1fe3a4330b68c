// Command loopmerge projects a match's tracker and game event streams into
// rendering deltas.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/loopmerge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "loopmerge:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
