package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/cwbudde/go-jexl/internal/debug"
	"github.com/cwbudde/go-jexl/internal/jexlerr"
	"github.com/cwbudde/go-jexl/internal/parser"
	"github.com/spf13/cobra"
)

var (
	fmtWrite  bool
	fmtList   bool
	fmtScript bool
)

var fmtCmd = &cobra.Command{
	Use:   "fmt [files...]",
	Short: "Reformat JEXL source into its canonical form",
	Long: `Parse JEXL source and re-print it in canonical form: consistent
operator spacing, quoting and literal syntax.

By default fmt formats the files named on the command line and writes the
result to standard output. If no file is given, it reads from stdin.

Flags:
  -w   overwrite each file with its formatted form
  -l   list files whose formatting would change, without printing them
  --script   format as a full script (statement sequence) instead of a
             single expression`,
	RunE: runFmtCmd,
}

func init() {
	rootCmd.AddCommand(fmtCmd)

	fmtCmd.Flags().BoolVarP(&fmtWrite, "write", "w", false, "overwrite file with formatted result")
	fmtCmd.Flags().BoolVarP(&fmtList, "list", "l", false, "list files whose formatting would change")
	fmtCmd.Flags().BoolVar(&fmtScript, "script", false, "format as a full script instead of an expression")
}

func runFmtCmd(cmd *cobra.Command, args []string) error {
	if fmtWrite && fmtList {
		return fmt.Errorf("cannot use -w and -l together")
	}

	if len(args) == 0 {
		src, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		formatted, err := formatSource(string(src))
		if err != nil {
			return err
		}
		fmt.Print(formatted)
		return nil
	}

	hasErrors := false
	for _, path := range args {
		if err := formatFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			hasErrors = true
		}
	}
	if hasErrors {
		return fmt.Errorf("formatting failed for one or more files")
	}
	return nil
}

func formatFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	formatted, err := formatSource(string(src))
	if err != nil {
		return err
	}
	changed := string(src) != formatted

	switch {
	case fmtList:
		if changed {
			fmt.Println(path)
		}
	case fmtWrite:
		if changed {
			if err := os.WriteFile(path, []byte(formatted), 0644); err != nil {
				return fmt.Errorf("writing file: %w", err)
			}
		}
	default:
		fmt.Print(formatted)
	}
	return nil
}

func formatSource(src string) (string, error) {
	var root, errs = parser.ParseExpression(src)
	if fmtScript {
		root, errs = parser.ParseScript(src)
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("%s", jexlerr.FormatErrors(errs, false))
	}
	rendered, _, _ := debug.Render(root, nil)
	return rendered + "\n", nil
}
