package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information (set by build flags)
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "jexl",
	Short: "JEXL expression and Unified EL template interpreter",
	Long: `jexl is a Go implementation of the JEXL expression language and its
Unified Expression Language template engine.

It provides:
  - An arithmetic/coercion engine spanning booleans, 32/64-bit integers,
    arbitrary-precision integers and decimals, characters and strings
  - Reflection-based host object introspection
  - A tree-walking interpreter with strict/lenient and silent evaluation modes
  - A unified "${immediate}"/"#{deferred}" template engine`,
	Version: Version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(`{{with .Name}}{{printf "%%s " .}}{{end}}{{printf "version %%s" .Version}}
Commit: %s
Built:  %s
`, GitCommit, BuildDate))

	rootCmd.PersistentFlags().Bool("strict", false, "fail on null operands instead of coercing")
	rootCmd.PersistentFlags().Bool("silent", false, "return null for recoverable errors instead of failing")
}
