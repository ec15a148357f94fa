// Package engine assembles metadata-driven, permission-filtered query
// plans. GetQuery runs a fixed pipeline: resolve the doctype, check
// document permission, parse and permission-filter the select list,
// convert filters, apply paging and ordering, layer in permission
// conditions, and freeze the plan. All validation happens here, eagerly;
// the execution layer never sees an unsafe or ambiguous plan.
package engine

import (
	"log/slog"
	"regexp"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/docquery/internal/dialect"
	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/meta"
	"github.com/roach88/docquery/internal/perms"
	"github.com/roach88/docquery/internal/qerr"
)

// doctypeNamePattern is the allow-list for doctype names: word
// characters, spaces, and hyphens. Everything else is rejected before
// the name can reach a table reference.
var doctypeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_ -]+$`)

// TreeResolver resolves nested-set hierarchy operators to the matching
// node names. doctype must carry lft/rgt bounds.
type TreeResolver interface {
	HierarchyNodes(hierarchy, doctype, name string) ([]string, error)
}

// Engine assembles query plans. It is stateless across calls: every
// GetQuery builds fresh per-call state, so one Engine may serve
// concurrent callers.
type Engine struct {
	Meta    meta.Provider
	Perms   perms.Oracle
	Hooks   *perms.HookRegistry
	Scripts *perms.ScriptStore
	Dialect dialect.Dialect
	Tree    TreeResolver

	// StrictUserPermissions removes the NULL-passthrough leniency from
	// user-permission conditions: a restricted link field must match an
	// allowed value even when empty.
	StrictUserPermissions bool

	Logger *slog.Logger

	// Now supplies the clock for timespan/previous/next filters.
	// Defaults to time.Now.
	Now func() time.Time
}

// QueryArgs are the caller-facing query parameters.
type QueryArgs struct {
	Doctype string

	// Fields holds select entries: strings ("name", "link.field as x",
	// "*") and maps (function/operator entries, child-query entries).
	Fields []any

	// Filters and OrFilters accept every shape the filter parser does.
	// OrFilters entries combine with OR at the top level.
	Filters   any
	OrFilters any

	OrderBy string
	GroupBy string

	// Limit and Offset must be non-negative integers when set; any other
	// type fails with TypeError.
	Limit  any
	Offset any

	Distinct   bool
	ForUpdate  bool
	SkipLocked bool
	NoWait     bool

	IgnorePermissions     bool
	IgnoreUserPermissions bool

	// Compat switches on legacy list-query behavior: lenient defaults
	// for order directions and nil IN values.
	Compat bool

	User             string
	ParentDoctype    string
	ReferenceDoctype string
}

// builder is the per-call assembly state.
type builder struct {
	eng  *Engine
	args QueryArgs
	dt   *meta.Doctype
	plan *Plan

	applyPerms  bool
	permDoctype string

	aliases        map[string]struct{}
	permittedCache map[string][]string

	logger *slog.Logger
	now    time.Time
}

// GetQuery assembles a frozen plan for the given arguments.
func (e *Engine) GetQuery(args QueryArgs) (*Plan, error) {
	args.Doctype = norm.NFC.String(args.Doctype)
	if !doctypeNamePattern.MatchString(args.Doctype) {
		return nil, qerr.Validationf("invalid doctype: %s", args.Doctype)
	}

	dt, err := e.Meta.Doctype(args.Doctype)
	if err != nil {
		return nil, err
	}

	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}

	b := &builder{
		eng:            e,
		args:           args,
		dt:             dt,
		plan:           NewPlan(args.Doctype),
		applyPerms:     !args.IgnorePermissions,
		permDoctype:    args.Doctype,
		aliases:        map[string]struct{}{},
		permittedCache: map[string][]string{},
		logger:         logger.With("doctype", args.Doctype),
		now:            now,
	}
	if args.ParentDoctype != "" {
		b.permDoctype = args.ParentDoctype
	}

	if b.applyPerms {
		if err := b.checkReadPermission(); err != nil {
			return nil, err
		}
	}

	if err := b.applyFields(args.Fields); err != nil {
		return nil, err
	}

	if err := b.applyFilters(args.Filters, false); err != nil {
		return nil, err
	}
	if err := b.applyFilters(args.OrFilters, true); err != nil {
		return nil, err
	}

	if err := b.applyLimitOffset(args.Limit, args.Offset); err != nil {
		return nil, err
	}

	b.plan.Distinct = args.Distinct
	b.plan.ForUpdate = args.ForUpdate
	b.plan.SkipLocked = args.SkipLocked
	b.plan.NoWait = args.NoWait

	if args.GroupBy != "" {
		if err := b.applyGroupBy(args.GroupBy); err != nil {
			return nil, err
		}
	}

	if err := b.applyOrderByStage(args); err != nil {
		return nil, err
	}

	if b.applyPerms {
		if err := b.addPermissionConditions(); err != nil {
			return nil, err
		}
	}

	b.plan.Freeze()
	return b.plan, nil
}

// applyOrderByStage applies explicit ordering, or the doctype's default
// ordering when none was given. Postgres cannot order DISTINCT or
// grouped results by unselected columns, so explicit ordering is dropped
// there with a warning instead of producing an invalid query.
func (b *builder) applyOrderByStage(args QueryArgs) error {
	if args.OrderBy == "" {
		// Grouped results have no meaningful default row order.
		if args.GroupBy != "" {
			return nil
		}
		return b.applyDefaultOrderBy()
	}
	if b.eng.Dialect != nil && b.eng.Dialect.SuppressOrderWithDistinct() && (args.Distinct || args.GroupBy != "") {
		b.logger.Warn("order by ignored: backend requires order fields in the select list with DISTINCT or GROUP BY",
			"order_by", args.OrderBy)
		return nil
	}
	return b.applyOrderBy(args.OrderBy)
}

// applyLimitOffset validates paging arguments. Non-integer or negative
// values are a TypeError, matching the eager-validation contract.
func (b *builder) applyLimitOffset(limit, offset any) error {
	if limit != nil {
		n, err := coerceNonNegativeInt(limit, "limit")
		if err != nil {
			return err
		}
		if n > 0 {
			b.plan.Limit = n
			b.plan.HasLimit = true
		}
	}
	if offset != nil {
		n, err := coerceNonNegativeInt(offset, "offset")
		if err != nil {
			return err
		}
		if n > 0 {
			b.plan.Offset = n
			b.plan.HasOffset = true
		}
	}
	return nil
}

func coerceNonNegativeInt(v any, what string) (int, error) {
	var n int
	switch val := v.(type) {
	case int:
		n = val
	case int8:
		n = int(val)
	case int16:
		n = int(val)
	case int32:
		n = int(val)
	case int64:
		n = int(val)
	case uint:
		n = int(val)
	case uint8:
		n = int(val)
	case uint16:
		n = int(val)
	case uint32:
		n = int(val)
	case uint64:
		n = int(val)
	default:
		return 0, qerr.Typef("%s must be a non-negative integer, got %T", what, v)
	}
	if n < 0 {
		return 0, qerr.Typef("%s must be a non-negative integer", what)
	}
	return n, nil
}

// normalizeFieldString NFC-normalizes caller-supplied field text before
// any pattern matching.
func normalizeFieldString(s string) string {
	return norm.NFC.String(s)
}

// comparisonOps maps scalar filter operators to comparison operators.
var comparisonOps = map[string]ir.CompareOp{
	ir.FilterEq:      ir.CmpEq,
	ir.FilterNe:      ir.CmpNe,
	ir.FilterLt:      ir.CmpLt,
	ir.FilterGt:      ir.CmpGt,
	ir.FilterLe:      ir.CmpLe,
	ir.FilterGe:      ir.CmpGe,
	ir.FilterLike:    ir.CmpLike,
	ir.FilterNotLike: ir.CmpNotLike,
}
