package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/cwbudde/go-jexl/internal/ast"
	"github.com/cwbudde/go-jexl/internal/debug"
	"github.com/cwbudde/go-jexl/internal/jexlerr"
	"github.com/cwbudde/go-jexl/internal/parser"
	"github.com/spf13/cobra"
)

var (
	parseExpression bool
	parseAsScript   bool
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse JEXL source and print its canonical form",
	Long: `Parse JEXL source code and print the pretty-printer's canonical
reconstruction of the resulting AST.

If no file is provided, reads from stdin.
Use -e to parse a single expression from the command line.
Use --script to parse a full statement sequence instead of one expression.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().BoolVarP(&parseExpression, "expression", "e", false, "parse an expression from the command line")
	parseCmd.Flags().BoolVar(&parseAsScript, "script", false, "parse as a full script (statement sequence)")
}

func runParse(cmd *cobra.Command, args []string) error {
	input, err := readSource(parseExpression, args)
	if err != nil {
		return err
	}

	var root = parseInput(input)
	if root.err != nil {
		return root.err
	}

	src, _, _ := debug.Render(root.node, nil)
	fmt.Println(src)
	return nil
}

type parseResult struct {
	node ast.Node
	err  error
}

func parseInput(input string) parseResult {
	if parseAsScript {
		n, errs := parser.ParseScript(input)
		if len(errs) > 0 {
			return parseResult{err: fmt.Errorf("%s", jexlerr.FormatErrors(errs, false))}
		}
		return parseResult{node: n}
	}
	n, errs := parser.ParseExpression(input)
	if len(errs) > 0 {
		return parseResult{err: fmt.Errorf("%s", jexlerr.FormatErrors(errs, false))}
	}
	return parseResult{node: n}
}

func readSource(asExpr bool, args []string) (string, error) {
	if asExpr {
		if len(args) == 0 {
			return "", fmt.Errorf("no expression provided")
		}
		return args[0], nil
	}
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("error reading file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("error reading stdin: %w", err)
	}
	return string(data), nil
}
