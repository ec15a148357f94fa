package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docquery/internal/dialect"
	"github.com/roach88/docquery/internal/engine"
	"github.com/roach88/docquery/internal/harness"
	"github.com/roach88/docquery/internal/meta"
	"github.com/roach88/docquery/internal/qerr"
	"github.com/roach88/docquery/internal/querysql"
)

// NewRenderCommand creates the render command.
func NewRenderCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "render <doctypes-dir> <request.yaml>",
		Short: "Render a request to SQL without executing it",
		Long: `Assemble the request against the doctype metadata and print the SQL
and bind parameters the configured dialect would execute.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, opts, args[0], args[1])
		},
	}
}

func runRender(cmd *cobra.Command, opts *RootOptions, dir, requestPath string) error {
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
	formatter.VerboseLog("assembled plan %s for %s", plan.Token, plan.Doctype)

	compiled, err := querysql.Compile(plan, d)
	if err != nil {
		return reportAssemblyError(formatter, err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"doctype": plan.Doctype,
			"sql":     compiled.SQL,
			"params":  paramsOrEmpty(compiled.Params),
		})
	}

	paramsJSON, err := json.Marshal(paramsOrEmpty(compiled.Params))
	if err != nil {
		return WrapExitError(ExitCommandError, "marshal params", err)
	}
	return formatter.Success(fmt.Sprintf("%s\n-- params\n%s", compiled.SQL, paramsJSON))
}

// assemblePlan loads metadata and the request, then assembles the plan
// for the configured dialect. Load failures come back as command errors;
// assembly failures come back as the engine's own error types.
func assemblePlan(opts *RootOptions, dir, requestPath string) (*engine.Plan, dialect.Dialect, error) {
	d, err := dialect.FromName(opts.Dialect)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "dialect", err)
	}

	provider, err := meta.LoadDir(dir)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load doctypes", err)
	}

	req, err := LoadRequest(requestPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load request", err)
	}

	eng := &engine.Engine{
		Meta:    provider,
		Perms:   harness.BuildOracle(req.Permissions),
		Dialect: d,
	}
	plan, err := eng.GetQuery(req.Query.Args())
	if err != nil {
		return nil, d, err
	}
	return plan, d, nil
}

// reportAssemblyError prints engine failures through the formatter and
// maps them to exit codes. Command-level errors pass through untouched.
func reportAssemblyError(formatter *OutputFormatter, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}

	code := "QUERY_ERROR"
	switch {
	case qerr.IsPermission(err):
		code = "PERMISSION_DENIED"
	case qerr.IsValidation(err):
		code = "VALIDATION_ERROR"
	case qerr.IsType(err):
		code = "TYPE_ERROR"
	}
	formatter.Error(code, err.Error(), nil)
	return NewExitError(ExitFailure, "query assembly failed")
}

func paramsOrEmpty(params []any) []any {
	if params == nil {
		return []any{}
	}
	return params
}
