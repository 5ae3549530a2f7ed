package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/storehaus/internal/config"
	"github.com/roach88/storehaus/internal/query"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Dialect string
	Output  string // write the SQL text here as well
}

// CompileResult is the compiled form of one query document.
type CompileResult struct {
	Table    string   `json:"table"`
	Mode     string   `json:"mode"`
	Dialect  string   `json:"dialect"`
	SQL      string   `json:"sql"`
	Params   []any    `json:"params"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <query.yaml>",
		Short: "Compile a query document to SQL",
		Long: `Compile a YAML query document to the SQL statement and bound
parameters the store engine would execute. Use "-" to read stdin.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", "sqlite", "SQL dialect (sqlite|postgres)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "also write the SQL to this file")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	dialect, err := config.ParseDialect(opts.Dialect)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("invalid --dialect %q", opts.Dialect), err)
	}

	src, err := readInput(path, cmd.InOrStdin())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("query file not found: %s", path), nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "reading query file", err)
	}

	doc, err := query.ParseDocumentBytes(src)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeParse, err.Error(), nil)
	}
	formatter.VerboseLog("Parsed %s query on %s", doc.Mode, doc.Table)

	stmt, warnings, err := doc.Compile(dialect)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeCompile, err.Error(), nil)
	}

	result := CompileResult{
		Table:    doc.Table,
		Mode:     string(doc.Mode),
		Dialect:  string(dialect),
		SQL:      stmt.SQL,
		Params:   stmt.Params,
		Warnings: warnings,
	}
	if result.Params == nil {
		result.Params = []any{}
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(stmt.SQL+"\n"), 0o644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "writing output file", err)
		}
		formatter.VerboseLog("Wrote SQL to %s", opts.Output)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeCompileText(formatter.Writer, result)
	return nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func writeCompileText(w io.Writer, r CompileResult) {
	fmt.Fprintf(w, "-- %s: %s (%s)\n", r.Table, r.Mode, r.Dialect)
	fmt.Fprintln(w, r.SQL)
	if len(r.Params) > 0 {
		fmt.Fprintln(w, "-- params")
		for i, p := range r.Params {
			fmt.Fprintf(w, "$%d = %s\n", i+1, formatParam(p))
		}
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "-- warning: %s\n", warn)
	}
}

func formatParam(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("%q", x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = formatParam(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}
