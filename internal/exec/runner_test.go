package exec

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docquery/internal/dialect"
	"github.com/roach88/docquery/internal/engine"
	"github.com/roach88/docquery/internal/ir"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedTodos(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec("CREATE TABLE `tabToDo` (name TEXT PRIMARY KEY, status TEXT, priority TEXT)")
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE `tabToDo Item` (" +
		"name TEXT PRIMARY KEY, parent TEXT, parenttype TEXT, parentfield TEXT, idx INTEGER," +
		" item_name TEXT, qty INTEGER)")
	require.NoError(t, err)

	todos := [][]any{
		{"TODO-1", "Open", "High"},
		{"TODO-2", "Open", "Low"},
		{"TODO-3", "Closed", "High"},
	}
	for _, row := range todos {
		_, err = db.Exec("INSERT INTO `tabToDo` VALUES (?, ?, ?)", row...)
		require.NoError(t, err)
	}

	items := [][]any{
		{"ITEM-1", "TODO-1", "ToDo", "items", 2, "Bolt", 4},
		{"ITEM-2", "TODO-1", "ToDo", "items", 1, "Nut", 9},
		{"ITEM-3", "TODO-2", "ToDo", "items", 1, "Washer", 1},
		{"ITEM-4", "TODO-1", "ToDo", "other_items", 1, "Wrong list", 0},
	}
	for _, row := range items {
		_, err = db.Exec("INSERT INTO `tabToDo Item` VALUES (?, ?, ?, ?, ?, ?, ?)", row...)
		require.NoError(t, err)
	}
}

func todoPlan(build func(p *engine.Plan)) *engine.Plan {
	p := engine.NewPlan("ToDo")
	p.AddField(ir.Column{Table: "ToDo", Name: "name"})
	p.AddField(ir.Column{Table: "ToDo", Name: "status"})
	build(p)
	p.Freeze()
	return p
}

func TestRunBasicQuery(t *testing.T) {
	db := openTestDB(t)
	seedTodos(t, db)
	runner := NewRunner(db, dialect.SQLite{}, nil)

	plan := todoPlan(func(p *engine.Plan) {
		p.AddCondition(ir.Comparison{
			Field: ir.Column{Table: "ToDo", Name: "status"},
			Op:    ir.CmpEq,
			Value: ir.NewValue("Open"),
		})
		p.OrderBy = append(p.OrderBy, engine.OrderSpec{
			Expr: ir.Column{Table: "ToDo", Name: "name"},
		})
	})

	rows, err := runner.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "TODO-1", rows[0]["name"])
	assert.Equal(t, "TODO-2", rows[1]["name"])
	assert.Equal(t, "Open", rows[0]["status"])
}

func TestRunReturnsEmptySliceNotNil(t *testing.T) {
	db := openTestDB(t)
	seedTodos(t, db)
	runner := NewRunner(db, dialect.SQLite{}, nil)

	plan := todoPlan(func(p *engine.Plan) {
		p.AddCondition(ir.Comparison{
			Field: ir.Column{Table: "ToDo", Name: "status"},
			Op:    ir.CmpEq,
			Value: ir.NewValue("Missing"),
		})
	})

	rows, err := runner.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestRunStitchesChildQueries(t *testing.T) {
	db := openTestDB(t)
	seedTodos(t, db)
	runner := NewRunner(db, dialect.SQLite{}, nil)

	plan := todoPlan(func(p *engine.Plan) {
		p.AddChildQuery(engine.ChildQuery{
			Doctype:       "ToDo Item",
			Fieldname:     "items",
			Fields:        []string{"item_name", "qty"},
			ParentDoctype: "ToDo",
		})
		p.OrderBy = append(p.OrderBy, engine.OrderSpec{
			Expr: ir.Column{Table: "ToDo", Name: "name"},
		})
	})

	rows, err := runner.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// idx ordering inside the child list, and the wrong parentfield row
	// filtered out.
	first := rows[0]["items"].([]map[string]any)
	require.Len(t, first, 2)
	assert.Equal(t, "Nut", first[0]["item_name"])
	assert.Equal(t, "Bolt", first[1]["item_name"])

	second := rows[1]["items"].([]map[string]any)
	require.Len(t, second, 1)
	assert.Equal(t, "Washer", second[0]["item_name"])

	// Parents without children get an empty list.
	third := rows[2]["items"].([]map[string]any)
	assert.Empty(t, third)
}

func TestRunChildQueriesConcurrently(t *testing.T) {
	db := openTestDB(t)
	seedTodos(t, db)
	runner := NewRunner(db, dialect.SQLite{}, nil)
	runner.ChildPoolSize = 4

	plan := todoPlan(func(p *engine.Plan) {
		p.AddChildQuery(engine.ChildQuery{
			Doctype:       "ToDo Item",
			Fieldname:     "items",
			Fields:        []string{"item_name"},
			ParentDoctype: "ToDo",
		})
		p.AddChildQuery(engine.ChildQuery{
			Doctype:       "ToDo Item",
			Fieldname:     "other_items",
			Fields:        []string{"item_name"},
			ParentDoctype: "ToDo",
		})
	})

	rows, err := runner.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Contains(t, row, "items")
		assert.Contains(t, row, "other_items")
	}
}

func TestChildSelectListRejectsBadNames(t *testing.T) {
	_, err := childSelectList(dialect.SQLite{}, []string{"qty; DROP TABLE x"})
	require.Error(t, err)

	list, err := childSelectList(dialect.SQLite{}, []string{"*", "anything"})
	require.NoError(t, err)
	assert.Equal(t, "*", list)
}

func TestTreeResolver(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec("CREATE TABLE `tabCategory` (name TEXT PRIMARY KEY, lft INTEGER, rgt INTEGER)")
	require.NoError(t, err)

	// All(1,10) -> Tools(2,7) -> Hand(3,4), Power(5,6); Misc(8,9)
	nodes := [][]any{
		{"All", 1, 10},
		{"Tools", 2, 7},
		{"Hand", 3, 4},
		{"Power", 5, 6},
		{"Misc", 8, 9},
	}
	for _, row := range nodes {
		_, err = db.Exec("INSERT INTO `tabCategory` VALUES (?, ?, ?)", row...)
		require.NoError(t, err)
	}

	resolver := NewTreeResolver(db, dialect.SQLite{})

	descendants, err := resolver.HierarchyNodes(ir.HierarchyDescendantsOf, "Category", "Tools")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hand", "Power"}, descendants)

	inclusive, err := resolver.HierarchyNodes(ir.HierarchyDescendantsOfInclusive, "Category", "Tools")
	require.NoError(t, err)
	assert.Equal(t, []string{"Tools", "Hand", "Power"}, inclusive)

	ancestors, err := resolver.HierarchyNodes(ir.HierarchyAncestorsOf, "Category", "Hand")
	require.NoError(t, err)
	assert.Equal(t, []string{"All", "Tools"}, ancestors)

	// Negated operators resolve the same node set.
	notAncestors, err := resolver.HierarchyNodes(ir.HierarchyNotAncestorsOf, "Category", "Hand")
	require.NoError(t, err)
	assert.Equal(t, ancestors, notAncestors)

	_, err = resolver.HierarchyNodes(ir.HierarchyDescendantsOf, "Category", "Nope")
	require.Error(t, err)
}
