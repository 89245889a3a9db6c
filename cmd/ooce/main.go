// Command ooce is a demonstration driver for the out-of-core execution
// engine: it maps backing files, submits a synthetic task graph, and
// blocks for completion.
package main

import (
	"fmt"
	"os"

	"github.com/flashcore/ooce/cmd/ooce/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
