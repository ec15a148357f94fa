package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAndAllFlattening(t *testing.T) {
	assert.Nil(t, AndAll(nil))

	single := Comparison{Field: Column{Name: "status"}, Op: CmpEq, Value: NewValue("Open")}
	assert.Equal(t, Condition(single), AndAll([]Condition{single}))

	combined := AndAll([]Condition{single, NullCheck{Field: Column{Name: "owner"}}})
	and, ok := combined.(And)
	assert.True(t, ok)
	assert.Len(t, and.Conditions, 2)
}

func TestOrAllFlattening(t *testing.T) {
	assert.Nil(t, OrAll(nil))

	single := Comparison{Field: Column{Name: "status"}, Op: CmpEq, Value: NewValue("Open")}
	assert.Equal(t, Condition(single), OrAll([]Condition{single}))

	combined := OrAll([]Condition{single, single})
	or, ok := combined.(Or)
	assert.True(t, ok)
	assert.Len(t, or.Conditions, 2)
}

func TestOperatorClassification(t *testing.T) {
	assert.True(t, IsFilterOperator("="))
	assert.True(t, IsFilterOperator("NOT IN"))
	assert.True(t, IsFilterOperator(" Between "))
	assert.True(t, IsFilterOperator("descendants of"))
	assert.True(t, IsFilterOperator("timespan"))
	assert.False(t, IsFilterOperator("=~"))
	assert.False(t, IsFilterOperator(""))

	assert.True(t, IsHierarchyOperator("NOT ANCESTORS OF"))
	assert.False(t, IsHierarchyOperator("in"))

	assert.True(t, IsRangeOperator("previous"))
	assert.False(t, IsRangeOperator("between"))

	assert.Equal(t, "not in", NormalizeOperator(" NOT IN "))
}

func TestExprAlias(t *testing.T) {
	assert.Equal(t, "assignee", ExprAlias(Column{Table: "User", Name: "full_name", Alias: "assignee"}))
	assert.Equal(t, "total", ExprAlias(FunctionCall{Name: "COUNT", Alias: "total"}))
	assert.Equal(t, "amount", ExprAlias(ArithmeticExpr{Op: OpMul, Alias: "amount"}))
	assert.Equal(t, "", ExprAlias(NewValue(1)))
	assert.Equal(t, "", ExprAlias(Star{Table: "ToDo"}))
}

func TestColumnWithAlias(t *testing.T) {
	col := Column{Table: "ToDo", Name: "status"}
	aliased := col.WithAlias("state")
	assert.Equal(t, "state", aliased.Alias)
	assert.Empty(t, col.Alias)
}
