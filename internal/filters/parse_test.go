package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/qerr"
)

func TestParseNil(t *testing.T) {
	expr, err := Parse(nil)
	require.NoError(t, err)
	assert.Nil(t, expr)
}

func TestParseScalarShorthand(t *testing.T) {
	expr, err := Parse("TODO-0001")
	require.NoError(t, err)
	require.IsType(t, Leaf{}, expr)

	leaf := expr.(Leaf)
	assert.Equal(t, "name", leaf.Fieldname)
	assert.Equal(t, ir.FilterEq, leaf.Operator)
	assert.Equal(t, "TODO-0001", leaf.Value)
}

func TestParseScalarListShorthand(t *testing.T) {
	expr, err := Parse([]any{"TODO-0001", "TODO-0002"})
	require.NoError(t, err)
	require.IsType(t, Leaf{}, expr)

	leaf := expr.(Leaf)
	assert.Equal(t, "name", leaf.Fieldname)
	assert.Equal(t, ir.FilterIn, leaf.Operator)
	assert.Equal(t, []any{"TODO-0001", "TODO-0002"}, leaf.Value)
}

func TestParseMapEquivalentToList(t *testing.T) {
	// A dict filter and the flat-list spelling of the same conditions must
	// produce the same tree (map keys are processed in sorted order).
	fromMap, err := Parse(map[string]any{
		"priority": "High",
		"status":   []any{"!=", "Closed"},
	})
	require.NoError(t, err)

	fromList, err := Parse([]any{
		[]any{"priority", "=", "High"},
		[]any{"status", "!=", "Closed"},
	})
	require.NoError(t, err)

	assert.Equal(t, fromList, fromMap)
}

func TestParseMapOperatorPair(t *testing.T) {
	expr, err := Parse(map[string]any{"owner": []any{"like", "%admin%"}})
	require.NoError(t, err)

	leaf := expr.(Leaf)
	assert.Equal(t, "owner", leaf.Fieldname)
	assert.Equal(t, ir.FilterLike, leaf.Operator)
	assert.Equal(t, "%admin%", leaf.Value)
}

func TestParseMapBadOperatorPair(t *testing.T) {
	_, err := Parse(map[string]any{"owner": []any{"like", "%a%", "extra"}})
	require.Error(t, err)
	assert.True(t, qerr.IsValidation(err))
}

func TestParseTuples(t *testing.T) {
	tests := []struct {
		name  string
		input []any
		want  Leaf
	}{
		{
			name:  "two-tuple defaults to equality",
			input: []any{"status", "Open"},
			want:  Leaf{Fieldname: "status", Operator: ir.FilterEq, Value: "Open"},
		},
		{
			name:  "three-tuple",
			input: []any{"status", "in", []any{"Open", "Closed"}},
			want:  Leaf{Fieldname: "status", Operator: ir.FilterIn, Value: []any{"Open", "Closed"}},
		},
		{
			name:  "four-tuple carries doctype",
			input: []any{"ToDo Item", "qty", ">", int64(3)},
			want:  Leaf{Doctype: "ToDo Item", Fieldname: "qty", Operator: ir.FilterGt, Value: int64(3)},
		},
		{
			name:  "operator case folded",
			input: []any{"status", "LIKE", "%x%"},
			want:  Leaf{Fieldname: "status", Operator: ir.FilterLike, Value: "%x%"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := Parse([]any{tt.input})
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr)
		})
	}
}

func TestParseFlatListANDs(t *testing.T) {
	expr, err := Parse([]any{
		[]any{"status", "=", "Open"},
		[]any{"priority", "=", "High"},
	})
	require.NoError(t, err)
	require.IsType(t, And{}, expr)

	and := expr.(And)
	assert.Equal(t, Leaf{Fieldname: "status", Operator: ir.FilterEq, Value: "Open"}, and.Left)
	assert.Equal(t, Leaf{Fieldname: "priority", Operator: ir.FilterEq, Value: "High"}, and.Right)
}

func TestParseOrCombinesTopLevel(t *testing.T) {
	expr, err := ParseOr([]any{
		[]any{"status", "=", "Open"},
		[]any{"priority", "=", "High"},
	})
	require.NoError(t, err)
	require.IsType(t, Or{}, expr)
}

func TestParseNestedTree(t *testing.T) {
	expr, err := Parse([]any{
		[]any{"status", "=", "Open"},
		"or",
		[]any{"priority", "=", "High"},
		"and",
		[]any{"owner", "=", "admin"},
	})
	require.NoError(t, err)

	// Left-fold: ((status or priority) and owner).
	and, ok := expr.(And)
	require.True(t, ok)
	or, ok := and.Left.(Or)
	require.True(t, ok)
	assert.Equal(t, Leaf{Fieldname: "status", Operator: ir.FilterEq, Value: "Open"}, or.Left)
	assert.Equal(t, Leaf{Fieldname: "owner", Operator: ir.FilterEq, Value: "admin"}, and.Right)
}

func TestParseNestedSubtree(t *testing.T) {
	expr, err := Parse([]any{
		[]any{
			[]any{"status", "=", "Open"},
			"or",
			[]any{"status", "=", "Closed"},
		},
		"and",
		[]any{"priority", "=", "High"},
	})
	require.NoError(t, err)

	and, ok := expr.(And)
	require.True(t, ok)
	_, ok = and.Left.(Or)
	assert.True(t, ok)
}

func TestParsePreGroupedTree(t *testing.T) {
	// [[cond, op, cond]] unwraps to the inner tree rather than being read
	// as a flat one-element list.
	grouped, err := Parse([]any{
		[]any{
			[]any{"status", "=", "Open"},
			"or",
			[]any{"priority", "=", "High"},
		},
	})
	require.NoError(t, err)

	direct, err := Parse([]any{
		[]any{"status", "=", "Open"},
		"or",
		[]any{"priority", "=", "High"},
	})
	require.NoError(t, err)
	assert.Equal(t, direct, grouped)
}

func TestParseNestedErrors(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{
			name:  "trailing operator",
			input: []any{[]any{"status", "=", "Open"}, "and"},
		},
		{
			name:  "bad boolean operator",
			input: []any{[]any{"status", "=", "Open"}, "xor", []any{"a", "=", "b"}},
		},
		{
			name:  "leading operator",
			input: []any{"and", []any{"status", "=", "Open"}},
		},
		{
			name:  "operator where condition expected",
			input: []any{[]any{"status", "=", "Open"}, "and", "or"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.True(t, qerr.IsValidation(err), "want ValidationError, got %v", err)
		})
	}
}

func TestParseSimpleErrors(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{name: "one-tuple", input: []any{[]any{"status"}}},
		{name: "five-tuple", input: []any{[]any{"a", "b", "=", "c", "d"}}},
		{name: "unknown operator", input: []any{[]any{"status", "~=", "Open"}}},
		{name: "non-string field", input: []any{[]any{42, "=", "Open"}}},
		{name: "unsupported top-level type", input: struct{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.True(t, qerr.IsValidation(err), "want ValidationError, got %v", err)
		})
	}
}

func TestParseErrorCarriesDetail(t *testing.T) {
	bad := []any{[]any{"status", "=", "Open"}, "xor", []any{"a", "=", "b"}}
	_, err := Parse(bad)
	require.Error(t, err)

	ve, ok := err.(*qerr.ValidationError)
	require.True(t, ok)
	assert.NotNil(t, ve.Detail)
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, int64(1), NormalizeValue(true))
	assert.Equal(t, int64(0), NormalizeValue(false))
	assert.Equal(t, []any{""}, NormalizeValue([]any{}))
	assert.Equal(t, []any{int64(1), "x"}, NormalizeValue([]any{true, "x"}))
	assert.Equal(t, `{"a":1}`, NormalizeValue(map[string]any{"a": 1}))
	assert.Equal(t, 3.5, NormalizeValue(3.5))
}

func TestWalkVisitsAllLeaves(t *testing.T) {
	expr, err := Parse([]any{
		[]any{"status", "=", "Open"},
		"or",
		[]any{"priority", "=", "High"},
	})
	require.NoError(t, err)

	var fields []string
	Walk(expr, func(l Leaf) { fields = append(fields, l.Fieldname) })
	assert.Equal(t, []string{"status", "priority"}, fields)
}
