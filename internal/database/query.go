package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Op is a comparison operator usable in a Query filter.
type Op string

const (
	OpEq    Op = "="
	OpNe    Op = "<>"
	OpLt    Op = "<"
	OpLte   Op = "<="
	OpGt    Op = ">"
	OpGte   Op = ">="
	OpIn    Op = "IN"
	OpNotIn Op = "NOT IN"
	// OpAfter matches rows strictly after a keyset position.
	// Column holds the comma separated key columns and Value their values.
	OpAfter Op = "AFTER"
)

// Cond is a single column filter. Conditions of a Query are ANDed.
type Cond struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, value any) Cond  { return Cond{Column: column, Op: OpEq, Value: value} }
func Ne(column string, value any) Cond  { return Cond{Column: column, Op: OpNe, Value: value} }
func Lt(column string, value any) Cond  { return Cond{Column: column, Op: OpLt, Value: value} }
func Lte(column string, value any) Cond { return Cond{Column: column, Op: OpLte, Value: value} }
func Gt(column string, value any) Cond  { return Cond{Column: column, Op: OpGt, Value: value} }
func Gte(column string, value any) Cond { return Cond{Column: column, Op: OpGte, Value: value} }
func In(column string, values any) Cond { return Cond{Column: column, Op: OpIn, Value: values} }
func NotIn(column string, values any) Cond {
	return Cond{Column: column, Op: OpNotIn, Value: values}
}

// After filters the rows that come strictly after values in the order of columns,
// ascending on every column. A single column is a plain ">" filter.
func After(columns []string, values []any) Cond {
	if len(columns) == 1 && len(values) == 1 {
		return Gt(columns[0], values[0])
	}
	return Cond{Column: strings.Join(columns, ","), Op: OpAfter, Value: values}
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Query is a table-scoped SELECT with filtering, ordering, column projection and paging.
// Builder methods return copies, so a base query can be shared.
type Query struct {
	Table   string
	Columns []string
	Where   []Cond
	OrderBy []Order
	Offset  int
	Limit   int
}

// From starts a query over table.
func From(table string) Query {
	return Query{Table: table}
}

func (q Query) Select(columns ...string) Query {
	q.Columns = append([]string(nil), columns...)
	return q
}

func (q Query) Filter(conds ...Cond) Query {
	q.Where = append(append([]Cond(nil), q.Where...), conds...)
	return q
}

func (q Query) Asc(column string) Query {
	q.OrderBy = append(append([]Order(nil), q.OrderBy...), Order{Column: column})
	return q
}

func (q Query) Desc(column string) Query {
	q.OrderBy = append(append([]Order(nil), q.OrderBy...), Order{Column: column, Desc: true})
	return q
}

func (q Query) Skip(n int) Query {
	q.Offset = n
	return q
}

func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Build renders the query with "?" placeholders expanded by sqlx.In and
// rebound for the target driver.
func (q Query) Build(rebind func(string) string) (string, []any, error) {
	columns := "*"
	if len(q.Columns) > 0 {
		columns = strings.Join(q.Columns, ", ")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", columns, q.Table)
	args, err := q.writeWhere(&sb)
	if err != nil {
		return "", nil, err
	}
	if len(q.OrderBy) > 0 {
		terms := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			terms[i] = o.Column
			if o.Desc {
				terms[i] += " DESC"
			}
		}
		sb.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
		if q.Offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, q.Offset)
		}
	}
	return expand(sb.String(), args, rebind)
}

// BuildCount renders SELECT COUNT(*) for the query filters, ignoring paging and ordering.
func (q Query) BuildCount(rebind func(string) string) (string, []any, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT COUNT(*) FROM %s", q.Table)
	args, err := q.writeWhere(&sb)
	if err != nil {
		return "", nil, err
	}
	return expand(sb.String(), args, rebind)
}

func (q Query) writeWhere(sb *strings.Builder) ([]any, error) {
	var (
		terms []string
		args  []any
	)
	for _, c := range q.Where {
		switch c.Op {
		case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
			terms = append(terms, fmt.Sprintf("%s %s ?", c.Column, c.Op))
			args = append(args, c.Value)
		case OpAfter:
			term, values, err := keysetTerm(c)
			if err != nil {
				return nil, err
			}
			terms = append(terms, term)
			args = append(args, values...)
		case OpIn, OpNotIn:
			n, err := sliceLen(c.Value)
			if err != nil {
				return nil, fmt.Errorf("filter on %s: %w", c.Column, err)
			}
			if n == 0 {
				// sqlx.In rejects empty slices
				if c.Op == OpIn {
					terms = append(terms, "1 = 0")
				}
				continue
			}
			terms = append(terms, fmt.Sprintf("%s %s (?)", c.Column, c.Op))
			args = append(args, c.Value)
		default:
			return nil, fmt.Errorf("unsupported operator %q on %s", c.Op, c.Column)
		}
	}
	if len(terms) > 0 {
		sb.WriteString(" WHERE " + strings.Join(terms, " AND "))
	}
	return args, nil
}

// keysetTerm renders (a > ? OR (a = ? AND b > ?) OR ...) for the columns of c.
func keysetTerm(c Cond) (string, []any, error) {
	columns := strings.Split(c.Column, ",")
	values, ok := c.Value.([]any)
	if !ok || len(values) != len(columns) {
		return "", nil, fmt.Errorf("keyset on %s needs %d values, got %v", c.Column, len(columns), c.Value)
	}

	var (
		alternatives []string
		args         []any
	)
	for i, column := range columns {
		var parts []string
		for j := range i {
			parts = append(parts, columns[j]+" = ?")
			args = append(args, values[j])
		}
		parts = append(parts, column+" > ?")
		args = append(args, values[i])
		if len(parts) == 1 {
			alternatives = append(alternatives, parts[0])
		} else {
			alternatives = append(alternatives, "("+strings.Join(parts, " AND ")+")")
		}
	}
	return "(" + strings.Join(alternatives, " OR ") + ")", args, nil
}

func sliceLen(v any) (int, error) {
	switch s := v.(type) {
	case []int64:
		return len(s), nil
	case []int:
		return len(s), nil
	case []string:
		return len(s), nil
	case []any:
		return len(s), nil
	default:
		return 0, fmt.Errorf("unsupported IN value %T", v)
	}
}

func expand(query string, args []any, rebind func(string) string) (string, []any, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("sqlx.In() > %w", err)
	}
	if rebind != nil {
		query = rebind(query)
	}
	return query, args, nil
}

// SelectQuery runs q and scans the rows into dest, a pointer to a slice.
func SelectQuery(ctx context.Context, ext sqlx.ExtContext, dest any, q Query) error {
	query, args, err := q.Build(ext.Rebind)
	if err != nil {
		return err
	}
	if err := sqlx.SelectContext(ctx, ext, dest, query, args...); err != nil {
		return fmt.Errorf("select from %s: %w", q.Table, err)
	}
	return nil
}

// CountQuery returns the number of rows matching the filters of q.
func CountQuery(ctx context.Context, ext sqlx.ExtContext, q Query) (int, error) {
	query, args, err := q.BuildCount(ext.Rebind)
	if err != nil {
		return 0, err
	}
	var n int
	if err := sqlx.GetContext(ctx, ext, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Table, err)
	}
	return n, nil
}
