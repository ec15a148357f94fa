package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/docquery/internal/exec"
)

// NewRunCommand creates the run command.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	var dsn string
	var childPool int

	cmd := &cobra.Command{
		Use:   "run <doctypes-dir> <request.yaml>",
		Short: "Assemble a request and execute it against a database",
		Long: `Assemble the request against the doctype metadata, execute it on the
database behind --dsn, and print the resulting rows. Child queries on
the plan run afterwards and their rows are stitched onto the parents.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts, args[0], args[1], dsn, childPool)
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "database DSN for the configured dialect (required)")
	cmd.Flags().IntVar(&childPool, "child-pool", 0, "concurrent child queries per run (0 = sequential)")
	cmd.MarkFlagRequired("dsn")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RootOptions, dir, requestPath, dsn string, childPool int) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	plan, d, err := assemblePlan(opts, dir, requestPath)
	if err != nil {
		return reportAssemblyError(formatter, err)
	}

	runner, err := exec.Open(d, dsn, slog.Default())
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer runner.Close()
	runner.ChildPoolSize = childPool

	rows, err := runner.Run(cmd.Context(), plan)
	if err != nil {
		formatter.Error("EXECUTION_ERROR", err.Error(), nil)
		return NewExitError(ExitFailure, "query execution failed")
	}
	formatter.VerboseLog("fetched %d rows from %s", len(rows), plan.Doctype)

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"doctype": plan.Doctype,
			"rows":    rows,
		})
	}

	rowsJSON, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return WrapExitError(ExitCommandError, "marshal rows", err)
	}
	return formatter.Success(fmt.Sprintf("%d rows\n%s", len(rows), rowsJSON))
}
