package harness

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/docquery/internal/dialect"
	"github.com/roach88/docquery/internal/engine"
	"github.com/roach88/docquery/internal/querysql"
)

// scenarioClock is the fixed assembly clock, so timespan filters render
// the same dates on every run.
var scenarioClock = time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)

// Rendered is the outcome of running a scenario: the SQL a deployment
// would execute and its bind parameters.
type Rendered struct {
	Scenario string
	Dialect  string
	SQL      string
	Params   []any
}

// Run assembles and renders the scenario's query.
func Run(s *Scenario) (*Rendered, error) {
	d, err := dialect.FromName(s.Dialect)
	if err != nil {
		return nil, err
	}
	provider, err := buildProvider(s)
	if err != nil {
		return nil, err
	}

	eng := &engine.Engine{
		Meta:    provider,
		Perms:   BuildOracle(s.Permissions),
		Dialect: d,
		Now:     func() time.Time { return scenarioClock },
	}

	plan, err := eng.GetQuery(s.Query.Args())
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	compiled, err := querysql.Compile(plan, d)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	return &Rendered{
		Scenario: s.Name,
		Dialect:  s.Dialect,
		SQL:      compiled.SQL,
		Params:   compiled.Params,
	}, nil
}

// Text serializes the rendered query for golden-file comparison.
func (r *Rendered) Text() ([]byte, error) {
	params := r.Params
	if params == nil {
		params = []any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "-- scenario: %s\n", r.Scenario)
	fmt.Fprintf(&sb, "-- dialect: %s\n", r.Dialect)
	sb.WriteString(r.SQL)
	sb.WriteString("\n-- params\n")
	sb.Write(paramsJSON)
	sb.WriteString("\n")
	return []byte(sb.String()), nil
}
