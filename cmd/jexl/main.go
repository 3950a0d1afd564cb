// Command jexl is the CLI front end for the JEXL engine: parse, run and
// reformat JEXL source from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/cwbudde/go-jexl/cmd/jexl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
