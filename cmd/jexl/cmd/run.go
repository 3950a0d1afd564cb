package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cwbudde/go-jexl/internal/context"
	"github.com/cwbudde/go-jexl/internal/debug"
	"github.com/cwbudde/go-jexl/internal/jexlerr"
	"github.com/cwbudde/go-jexl/internal/parser"
	"github.com/cwbudde/go-jexl/internal/value"
	"github.com/cwbudde/go-jexl/pkg/jexl"
	"github.com/spf13/cobra"
)

var (
	runEval    string
	runDumpAST bool
	runVars    []string
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Evaluate a JEXL script or expression",
	Long: `Evaluate a JEXL script from a file, from stdin, or from an inline
expression, printing its result value.

Examples:
  # Run a script file
  jexl run script.jexl

  # Evaluate an inline expression
  jexl run -e "1 + 2 * 3"

  # Bind variables for the run
  jexl run -e "x + y" --var x=1 --var y=2

  # Dump the canonical AST reconstruction before running
  jexl run --dump-ast script.jexl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runEval, "eval", "e", "", "evaluate inline source instead of reading from file")
	runCmd.Flags().BoolVar(&runDumpAST, "dump-ast", false, "print the canonical AST reconstruction before running")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "bind a context variable as name=value (repeatable)")
}

func runRun(cmd *cobra.Command, args []string) error {
	var src string
	switch {
	case runEval != "":
		src = runEval
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file %s: %w", args[0], err)
		}
		src = string(data)
	default:
		return fmt.Errorf("either provide a file path or use -e for inline source")
	}

	strict, _ := cmd.Flags().GetBool("strict")
	silent, _ := cmd.Flags().GetBool("silent")
	engine := jexl.New(jexl.WithLenient(!strict), jexl.WithSilent(silent))

	ctx := context.NewMapContext()
	for _, kv := range runVars {
		name, lit, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--var %q: expected name=value", kv)
		}
		ctx.Set(name, parseVarLiteral(lit))
	}

	if runDumpAST {
		root, errs := parser.ParseScript(src)
		if len(errs) > 0 {
			return fmt.Errorf("%s", jexlerr.FormatErrors(errs, false))
		}
		rendered, _, _ := debug.Render(root, nil)
		fmt.Println(rendered)
	}

	script, err := engine.CreateScript(src)
	if err != nil {
		return err
	}

	result, err := script.Execute(ctx)
	if err != nil {
		return err
	}
	fmt.Println(result.String())
	return nil
}

// parseVarLiteral interprets a --var value as an integer, float, boolean or
// else a plain string, since command-line input always arrives untyped.
func parseVarLiteral(lit string) value.Value {
	switch lit {
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	case "null":
		return value.NullValue
	}
	if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return value.Int64(i)
	}
	if f, err := strconv.ParseFloat(lit, 64); err == nil {
		return value.Float64(f)
	}
	return value.Str(lit)
}
