// Package sqlfn parses declarative SQL function and arithmetic-operator
// field entries into IR expressions.
//
// A field entry shaped as {"COUNT": "name", "as": "total"} is the only
// sanctioned way to invoke a SQL function: bare function-call syntax in
// field strings is rejected elsewhere, and the function names accepted
// here form a closed allow-list. The parser classifies every string
// argument before it can reach the renderer, so a quoted literal is
// scanned for injection markers and a bare name is checked against the
// owning doctype's permitted fields.
package sqlfn

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/qerr"
)

// allowedFunctions is the closed set of SQL functions a field entry may
// invoke. Anything outside it fails validation.
var allowedFunctions = map[string]struct{}{
	"COUNT": {}, "SUM": {}, "AVG": {}, "MAX": {}, "MIN": {},
	"ABS": {}, "EXTRACT": {}, "LOCATE": {}, "TIMESTAMP": {},
	"IFNULL": {}, "CONCAT": {}, "NOW": {}, "NULLIF": {},
	"MONTHNAME": {}, "QUARTER": {}, "MONTH": {},
}

// extractDateParts is the closed set of date parts EXTRACT accepts.
// The part renders as a bare SQL keyword, so only these may pass.
var extractDateParts = map[string]struct{}{
	"year": {}, "quarter": {}, "month": {}, "week": {},
	"day": {}, "hour": {}, "minute": {}, "second": {},
}

// arithmeticOps maps operator entry keys to IR operators.
var arithmeticOps = map[string]ir.ArithmeticOp{
	"ADD": ir.OpAdd,
	"SUB": ir.OpSub,
	"MUL": ir.OpMul,
	"DIV": ir.OpDiv,
}

// sqlReservedWords are rejected as aliases regardless of identifier shape.
var sqlReservedWords = map[string]struct{}{
	"select": {}, "insert": {}, "update": {}, "delete": {}, "drop": {},
	"create": {}, "alter": {}, "truncate": {}, "from": {}, "where": {},
	"join": {}, "union": {}, "order": {}, "group": {}, "by": {},
	"having": {}, "limit": {}, "offset": {}, "and": {}, "or": {},
	"not": {}, "null": {}, "table": {}, "into": {}, "values": {},
	"set": {}, "grant": {}, "revoke": {}, "index": {}, "as": {},
}

// injectionMarkers are substrings never legal inside a quoted literal
// argument. Matched case-insensitively.
var injectionMarkers = []string{";", "--", "/*", "drop", "union", "select"}

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	digitPattern      = regexp.MustCompile(`^[0-9]+$`)
	backtickFieldRe   = regexp.MustCompile("^`tab([A-Za-z0-9 _-]+)`\\.`([A-Za-z0-9_]+)`$")
)

// Parser turns function/operator field entries into IR expressions.
// CheckField validates a bare field name against the base doctype and
// the caller's field permissions; RegisterAlias records an alias so
// later group-by/order-by strings can reference it.
type Parser struct {
	BaseTable     string
	CheckField    func(fieldname string) error
	RegisterAlias func(alias string)
}

// IsFunctionEntry reports whether the map is a function entry: exactly
// one non-"as" key, and that key is an allow-listed function name.
func IsFunctionEntry(entry map[string]any) bool {
	name, ok := entryKey(entry)
	if !ok {
		return false
	}
	_, ok = allowedFunctions[strings.ToUpper(name)]
	return ok
}

// IsOperatorEntry reports whether the map is an arithmetic-operator
// entry (ADD/SUB/MUL/DIV).
func IsOperatorEntry(entry map[string]any) bool {
	name, ok := entryKey(entry)
	if !ok {
		return false
	}
	_, ok = arithmeticOps[strings.ToUpper(name)]
	return ok
}

// entryKey extracts the single non-"as" key of a field entry map.
func entryKey(entry map[string]any) (string, bool) {
	var key string
	for k := range entry {
		if strings.EqualFold(k, "as") {
			continue
		}
		if key != "" {
			return "", false
		}
		key = k
	}
	return key, key != ""
}

// Parse dispatches a field entry map to the function or operator parser.
func (p *Parser) Parse(entry map[string]any) (ir.Expr, error) {
	name, ok := entryKey(entry)
	if !ok {
		return nil, qerr.ValidationDetail(entry, "field entry must have exactly one function or operator key")
	}
	upper := strings.ToUpper(name)
	if _, ok := arithmeticOps[upper]; ok {
		return p.ParseOperator(entry)
	}
	if _, ok := allowedFunctions[upper]; ok {
		return p.ParseFunction(entry)
	}
	return nil, qerr.ValidationDetail(entry, "unsupported SQL function %s", name)
}

// ParseFunction parses {"FUNCNAME": args, "as": alias} into a
// FunctionCall. Args may be a single string, a list, a nested entry map,
// or nil for zero-arg functions.
func (p *Parser) ParseFunction(entry map[string]any) (ir.Expr, error) {
	name, ok := entryKey(entry)
	if !ok {
		return nil, qerr.ValidationDetail(entry, "function entry must have exactly one function key")
	}
	upper := strings.ToUpper(name)
	if _, ok := allowedFunctions[upper]; !ok {
		return nil, qerr.ValidationDetail(entry, "unsupported SQL function %s", name)
	}

	alias, err := p.parseAlias(entry)
	if err != nil {
		return nil, err
	}

	var args []ir.Expr
	if upper == "EXTRACT" {
		args, err = p.parseExtractArgs(entry[name])
	} else {
		args, err = p.parseArgs(upper, entry[name])
	}
	if err != nil {
		return nil, err
	}
	return ir.FunctionCall{Name: upper, Args: args, Alias: alias}, nil
}

// parseExtractArgs parses EXTRACT's [part, source] argument pair. The
// part is a date-part keyword, never a field reference or bind value.
func (p *Parser) parseExtractArgs(raw any) ([]ir.Expr, error) {
	list, ok := raw.([]any)
	if !ok || len(list) != 2 {
		return nil, qerr.ValidationDetail(raw, "EXTRACT requires exactly two arguments: date part and source")
	}

	part, ok := list[0].(string)
	if !ok {
		return nil, qerr.ValidationDetail(list[0], "EXTRACT date part must be a string")
	}
	part = strings.ToLower(strings.TrimSpace(part))
	if isQuoted(part) {
		part = part[1 : len(part)-1]
	}
	if _, ok := extractDateParts[part]; !ok {
		return nil, qerr.ValidationDetail(part, "unsupported EXTRACT date part")
	}

	source, err := p.parseArg("EXTRACT", list[1])
	if err != nil {
		return nil, err
	}
	return []ir.Expr{ir.NewValue(part), source}, nil
}

// ParseOperator parses {"ADD"|"SUB"|"MUL"|"DIV": [left, right], "as": alias}
// into an ArithmeticExpr. Exactly two operands are required.
func (p *Parser) ParseOperator(entry map[string]any) (ir.Expr, error) {
	name, ok := entryKey(entry)
	if !ok {
		return nil, qerr.ValidationDetail(entry, "operator entry must have exactly one operator key")
	}
	op, ok := arithmeticOps[strings.ToUpper(name)]
	if !ok {
		return nil, qerr.ValidationDetail(entry, "unsupported arithmetic operator %s", name)
	}

	alias, err := p.parseAlias(entry)
	if err != nil {
		return nil, err
	}

	operands, ok := entry[name].([]any)
	if !ok || len(operands) != 2 {
		return nil, qerr.ValidationDetail(entry, "operator %s requires exactly two operands", strings.ToUpper(name))
	}

	left, err := p.parseArg(strings.ToUpper(name), operands[0])
	if err != nil {
		return nil, err
	}
	right, err := p.parseArg(strings.ToUpper(name), operands[1])
	if err != nil {
		return nil, err
	}
	return ir.ArithmeticExpr{Op: op, Left: left, Right: right, Alias: alias}, nil
}

// parseAlias validates and registers the optional "as" alias.
func (p *Parser) parseAlias(entry map[string]any) (string, error) {
	var raw any
	for k, v := range entry {
		if strings.EqualFold(k, "as") {
			raw = v
			break
		}
	}
	if raw == nil {
		return "", nil
	}
	alias, ok := raw.(string)
	if !ok {
		return "", qerr.ValidationDetail(raw, "alias must be a string")
	}
	if err := ValidateAlias(alias); err != nil {
		return "", err
	}
	if p.RegisterAlias != nil {
		p.RegisterAlias(alias)
	}
	return alias, nil
}

// parseArgs normalizes the args value into a list of IR expressions.
func (p *Parser) parseArgs(funcName string, raw any) ([]ir.Expr, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		list = []any{raw}
	}
	args := make([]ir.Expr, 0, len(list))
	for _, item := range list {
		arg, err := p.parseArg(funcName, item)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

// parseArg resolves a single argument: nested entry maps recurse, strings
// are classified, numbers become bound values.
func (p *Parser) parseArg(funcName string, raw any) (ir.Expr, error) {
	switch v := raw.(type) {
	case map[string]any:
		return p.Parse(v)
	case string:
		return p.parseStringArg(funcName, v)
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return ir.NewValue(v), nil
	default:
		return nil, qerr.ValidationDetail(raw, "unsupported argument type %T for %s", raw, funcName)
	}
}

// parseStringArg classifies a string argument: the * wildcard (COUNT
// only), a quoted literal, a backtick-qualified field reference, a digit
// string, or a bare field name.
func (p *Parser) parseStringArg(funcName, arg string) (ir.Expr, error) {
	arg = strings.TrimSpace(arg)

	if arg == "*" {
		if funcName != "COUNT" {
			return nil, qerr.Validationf("* is only a valid argument to COUNT, not %s", funcName)
		}
		return ir.Star{}, nil
	}

	if isQuoted(arg) {
		literal := arg[1 : len(arg)-1]
		if err := validateStringLiteral(literal); err != nil {
			return nil, err
		}
		return ir.NewValue(literal), nil
	}

	if m := backtickFieldRe.FindStringSubmatch(arg); m != nil {
		return ir.Column{Table: m[1], Name: m[2]}, nil
	}

	if digitPattern.MatchString(arg) {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, qerr.Validationf("invalid numeric argument %q", arg)
		}
		return ir.NewValue(n), nil
	}

	if !identifierPattern.MatchString(arg) {
		return nil, qerr.ValidationDetail(arg, "invalid field argument for %s", funcName)
	}
	if p.CheckField != nil {
		if err := p.CheckField(arg); err != nil {
			return nil, err
		}
	}
	return ir.Column{Table: p.BaseTable, Name: arg}, nil
}

// ValidateAlias requires a plain identifier that is not a SQL reserved
// word.
func ValidateAlias(alias string) error {
	if !identifierPattern.MatchString(alias) {
		return qerr.ValidationDetail(alias, "invalid alias")
	}
	if _, reserved := sqlReservedWords[strings.ToLower(alias)]; reserved {
		return qerr.ValidationDetail(alias, "alias is a SQL reserved word")
	}
	return nil
}

// isQuoted reports whether s is wrapped in matching single or double
// quotes.
func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (s[0] == '\'' && s[len(s)-1] == '\'') ||
		(s[0] == '"' && s[len(s)-1] == '"')
}

// validateStringLiteral scans a quote-stripped literal for statement
// terminators, comment markers, and dangerous keywords.
func validateStringLiteral(literal string) error {
	lower := strings.ToLower(literal)
	for _, marker := range injectionMarkers {
		if strings.Contains(lower, marker) {
			return qerr.ValidationDetail(literal, "disallowed content in string argument")
		}
	}
	return nil
}
