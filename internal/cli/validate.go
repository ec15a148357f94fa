package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/docquery/internal/meta"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <doctypes-dir>",
		Short: "Validate doctype definitions",
		Long:  "Load all CUE doctype definitions from a directory and report errors.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args[0])
		},
	}
}

func runValidate(cmd *cobra.Command, opts *RootOptions, dir string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	provider, err := meta.LoadDir(dir)
	if err != nil {
		var loadErr *meta.LoadError
		if errors.As(err, &loadErr) {
			formatter.Error("LOAD_ERROR", loadErr.Error(), nil)
			return NewExitError(ExitFailure, "doctype validation failed")
		}
		return WrapExitError(ExitCommandError, "load doctypes", err)
	}

	names := provider.Names()
	sort.Strings(names)
	formatter.VerboseLog("loaded %d doctypes from %s", len(names), dir)

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"doctypes": names})
	}
	return formatter.Success(fmt.Sprintf("valid: %d doctypes (%s)", len(names), strings.Join(names, ", ")))
}
