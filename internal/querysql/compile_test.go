package querysql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docquery/internal/dialect"
	"github.com/roach88/docquery/internal/engine"
	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/querysql"
)

func frozen(build func(p *engine.Plan)) *engine.Plan {
	p := engine.NewPlan("ToDo")
	build(p)
	p.Freeze()
	return p
}

func TestCompileBasicSelect(t *testing.T) {
	plan := frozen(func(p *engine.Plan) {
		p.AddField(ir.Column{Table: "ToDo", Name: "name"})
		p.AddField(ir.Column{Table: "ToDo", Name: "status"})
		p.AddCondition(ir.Comparison{
			Field: ir.Column{Table: "ToDo", Name: "status"},
			Op:    ir.CmpEq,
			Value: ir.NewValue("Open"),
		})
		p.OrderBy = append(p.OrderBy, engine.OrderSpec{
			Expr: ir.Column{Table: "ToDo", Name: "creation"},
			Desc: true,
		})
		p.Limit = 20
		p.HasLimit = true
	})

	out, err := querysql.Compile(plan, dialect.MariaDB{})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `tabToDo`.`name`, `tabToDo`.`status` FROM `tabToDo`"+
			" WHERE `tabToDo`.`status` = ?"+
			" ORDER BY `tabToDo`.`creation` DESC LIMIT 20",
		out.SQL)
	assert.Equal(t, []any{"Open"}, out.Params)
}

func TestCompilePostgresPlaceholdersAndLike(t *testing.T) {
	plan := frozen(func(p *engine.Plan) {
		p.AddField(ir.Column{Table: "ToDo", Name: "name"})
		p.AddCondition(ir.Comparison{
			Field: ir.Column{Table: "ToDo", Name: "description"},
			Op:    ir.CmpLike,
			Value: ir.NewValue("%urgent%"),
		})
		p.AddCondition(ir.Comparison{
			Field: ir.Column{Table: "ToDo", Name: "status"},
			Op:    ir.CmpNe,
			Value: ir.NewValue("Closed"),
		})
	})

	out, err := querysql.Compile(plan, dialect.Postgres{})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "tabToDo"."name" FROM "tabToDo"`+
			` WHERE "tabToDo"."description" ILIKE $1 AND "tabToDo"."status" != $2`,
		out.SQL)
	assert.Equal(t, []any{"%urgent%", "Closed"}, out.Params)
}

func TestCompileLeftJoinWithAlias(t *testing.T) {
	plan := frozen(func(p *engine.Plan) {
		p.AddField(ir.Column{Table: "ToDo", Name: "name"})
		p.AddField(ir.Column{Table: "User", Name: "full_name", Alias: "assignee"})
		p.AddJoin(engine.Join{
			Kind:    engine.JoinLeft,
			Doctype: "User",
			On: ir.Comparison{
				Field: ir.Column{Table: "User", Name: "name"},
				Op:    ir.CmpEq,
				Value: ir.Column{Table: "ToDo", Name: "allocated_to"},
			},
		})
	})

	out, err := querysql.Compile(plan, dialect.MariaDB{})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `tabToDo`.`name`, `tabUser`.`full_name` AS `assignee` FROM `tabToDo`"+
			" LEFT JOIN `tabUser` ON `tabUser`.`name` = `tabToDo`.`allocated_to`",
		out.SQL)
	assert.Empty(t, out.Params)
}

func TestCompileBooleanTreeParentheses(t *testing.T) {
	plan := frozen(func(p *engine.Plan) {
		p.AddField(ir.Column{Table: "ToDo", Name: "name"})
		p.AddCondition(ir.Comparison{
			Field: ir.Column{Table: "ToDo", Name: "status"},
			Op:    ir.CmpEq,
			Value: ir.NewValue("Open"),
		})
		p.AddCondition(ir.Or{Conditions: []ir.Condition{
			ir.Comparison{Field: ir.Column{Table: "ToDo", Name: "priority"}, Op: ir.CmpEq, Value: ir.NewValue("High")},
			ir.Comparison{Field: ir.Column{Table: "ToDo", Name: "priority"}, Op: ir.CmpEq, Value: ir.NewValue("Urgent")},
		}})
	})

	out, err := querysql.Compile(plan, dialect.SQLite{})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `tabToDo`.`name` FROM `tabToDo`"+
			" WHERE `tabToDo`.`status` = ?"+
			" AND (`tabToDo`.`priority` = ? OR `tabToDo`.`priority` = ?)",
		out.SQL)
	assert.Equal(t, []any{"Open", "High", "Urgent"}, out.Params)
}

func TestCompileAggregateWithGroupBy(t *testing.T) {
	plan := frozen(func(p *engine.Plan) {
		p.AddField(ir.Column{Table: "ToDo", Name: "status"})
		p.AddField(ir.FunctionCall{
			Name:  "COUNT",
			Args:  []ir.Expr{ir.Column{Table: "ToDo", Name: "name"}},
			Alias: "total",
		})
		p.GroupBy = append(p.GroupBy, ir.Column{Table: "ToDo", Name: "status"})
	})

	out, err := querysql.Compile(plan, dialect.MariaDB{})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `tabToDo`.`status`, COUNT(`tabToDo`.`name`) AS `total` FROM `tabToDo`"+
			" GROUP BY `tabToDo`.`status`",
		out.SQL)
}

func TestCompileIfNullRemapsPerDialect(t *testing.T) {
	build := func(p *engine.Plan) {
		p.AddField(ir.Column{Table: "ToDo", Name: "name"})
		p.AddCondition(ir.Comparison{
			Field: ir.FunctionCall{
				Name: "IFNULL",
				Args: []ir.Expr{ir.Column{Table: "ToDo", Name: "company"}, ir.NewValue("")},
			},
			Op:    ir.CmpEq,
			Value: ir.NewValue(""),
		})
	}

	maria, err := querysql.Compile(frozen(build), dialect.MariaDB{})
	require.NoError(t, err)
	assert.Contains(t, maria.SQL, "IFNULL(`tabToDo`.`company`, ?) = ?")

	pg, err := querysql.Compile(frozen(build), dialect.Postgres{})
	require.NoError(t, err)
	assert.Contains(t, pg.SQL, `COALESCE("tabToDo"."company", $1) = $2`)
	assert.Equal(t, []any{"", ""}, pg.Params)
}

func TestCompileExtractKeywordForm(t *testing.T) {
	build := func(p *engine.Plan) {
		p.AddField(ir.FunctionCall{
			Name:  "EXTRACT",
			Args:  []ir.Expr{ir.NewValue("month"), ir.Column{Table: "ToDo", Name: "creation"}},
			Alias: "m",
		})
	}

	maria, err := querysql.Compile(frozen(build), dialect.MariaDB{})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT EXTRACT(MONTH FROM `tabToDo`.`creation`) AS `m` FROM `tabToDo`",
		maria.SQL)
	// The date part is a keyword, never a bind parameter.
	assert.Empty(t, maria.Params)

	pg, err := querysql.Compile(frozen(build), dialect.Postgres{})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT EXTRACT(MONTH FROM "tabToDo"."creation") AS "m" FROM "tabToDo"`,
		pg.SQL)
	assert.Empty(t, pg.Params)
}

func TestCompileExtractRejectsUnknownPart(t *testing.T) {
	plan := frozen(func(p *engine.Plan) {
		p.AddField(ir.FunctionCall{
			Name: "EXTRACT",
			Args: []ir.Expr{ir.NewValue("fortnight"), ir.Column{Table: "ToDo", Name: "creation"}},
		})
	})

	_, err := querysql.Compile(plan, dialect.MariaDB{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported EXTRACT date part")
}

func TestCompileBetweenAndIn(t *testing.T) {
	plan := frozen(func(p *engine.Plan) {
		p.AddField(ir.Column{Table: "ToDo", Name: "name"})
		p.AddCondition(ir.Between{
			Field: ir.Column{Table: "ToDo", Name: "due_date"},
			From:  ir.NewValue("2024-06-01"),
			To:    ir.NewValue("2024-06-30"),
		})
		p.AddCondition(ir.In{
			Field:  ir.Column{Table: "ToDo", Name: "status"},
			Values: []ir.Expr{ir.NewValue("Open"), ir.NewValue("Overdue")},
			Negate: true,
		})
	})

	out, err := querysql.Compile(plan, dialect.MariaDB{})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `tabToDo`.`name` FROM `tabToDo`"+
			" WHERE `tabToDo`.`due_date` BETWEEN ? AND ?"+
			" AND `tabToDo`.`status` NOT IN (?, ?)",
		out.SQL)
	assert.Equal(t, []any{"2024-06-01", "2024-06-30", "Open", "Overdue"}, out.Params)
}

func TestCompileEmptyInListFails(t *testing.T) {
	plan := frozen(func(p *engine.Plan) {
		p.AddField(ir.Column{Table: "ToDo", Name: "name"})
		p.AddCondition(ir.In{Field: ir.Column{Table: "ToDo", Name: "status"}})
	})

	_, err := querysql.Compile(plan, dialect.MariaDB{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no values")
}

func TestCompileNullChecksAndRaw(t *testing.T) {
	plan := frozen(func(p *engine.Plan) {
		p.AddField(ir.Column{Table: "ToDo", Name: "name"})
		p.AddCondition(ir.NullCheck{Field: ir.Column{Table: "ToDo", Name: "description"}, Negate: true})
		p.AddCondition(ir.RawCondition{SQL: "(`tabToDo`.`docstatus` < 2)"})
	})

	out, err := querysql.Compile(plan, dialect.MariaDB{})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `tabToDo`.`name` FROM `tabToDo`"+
			" WHERE `tabToDo`.`description` IS NOT NULL"+
			" AND (`tabToDo`.`docstatus` < 2)",
		out.SQL)
	assert.Empty(t, out.Params)
}

func TestCompileDistinctLockingAndPaging(t *testing.T) {
	plan := frozen(func(p *engine.Plan) {
		p.AddField(ir.Column{Table: "ToDo", Name: "status"})
		p.Distinct = true
		p.Limit = 10
		p.HasLimit = true
		p.Offset = 30
		p.HasOffset = true
		p.ForUpdate = true
		p.SkipLocked = true
	})

	out, err := querysql.Compile(plan, dialect.Postgres{})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT DISTINCT "tabToDo"."status" FROM "tabToDo" LIMIT 10 OFFSET 30 FOR UPDATE SKIP LOCKED`,
		out.SQL)
}

func TestCompileStarAndRawExpr(t *testing.T) {
	plan := frozen(func(p *engine.Plan) {
		p.AddField(ir.Star{Table: "ToDo"})
		p.GroupBy = append(p.GroupBy, ir.Raw{SQL: "1"})
	})

	out, err := querysql.Compile(plan, dialect.MariaDB{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `tabToDo`.* FROM `tabToDo` GROUP BY 1", out.SQL)
}

func TestCompileArithmeticExpr(t *testing.T) {
	plan := frozen(func(p *engine.Plan) {
		p.AddField(ir.ArithmeticExpr{
			Op:    ir.OpMul,
			Left:  ir.Column{Table: "ToDo Item", Name: "qty"},
			Right: ir.Column{Table: "ToDo Item", Name: "rate"},
			Alias: "amount",
		})
	})

	out, err := querysql.Compile(plan, dialect.MariaDB{})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT (`tabToDo Item`.`qty` * `tabToDo Item`.`rate`) AS `amount` FROM `tabToDo`",
		out.SQL)
}

func TestCompileRejectsUnfrozenPlan(t *testing.T) {
	p := engine.NewPlan("ToDo")
	p.AddField(ir.Column{Table: "ToDo", Name: "name"})

	_, err := querysql.Compile(p, dialect.MariaDB{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not frozen")
}

func TestCompileRejectsEmptySelectList(t *testing.T) {
	p := engine.NewPlan("ToDo")
	p.Freeze()

	_, err := querysql.Compile(p, dialect.MariaDB{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no select fields")
}
