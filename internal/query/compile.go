package query

import (
	"fmt"
	"strings"
	"time"

	"codexcore/pkg/domain"
)

// Compilation turns filters into the backing store's native predicate form.
// Only canonical columns compile; a filter touching a payload key forces the
// store back to in-memory evaluation, mirroring the hybrid strategy of the
// original design.

// Compiled holds a SQL fragment set ready to append to a SELECT over the
// nodes table. Placeholders are `?`; call Rebind for drivers that number them.
type Compiled struct {
	Predicate string // bare predicate without WHERE, empty when no filters
	Order     string // includes leading "ORDER BY", empty when unordered
	Limit     string // "LIMIT n OFFSET m", empty when unpaginated
	Args      []any
}

// CanCompile reports whether filters and options translate to SQL without
// changing meaning: every field must be a canonical column, and the logical
// chain must be uniform. Mixed AND/OR chains evaluate left to right here but
// with precedence in SQL, so they stay on the in-memory path.
func CanCompile(filters []domain.Filter, opts domain.QueryOptions) bool {
	for _, f := range filters {
		if _, ok := canonicalFields[f.Field]; !ok {
			return false
		}
	}
	for i := 2; i < len(filters); i++ {
		prev, cur := filters[i-1].Logical, filters[i].Logical
		if prev == "" {
			prev = domain.LogicalAnd
		}
		if cur == "" {
			cur = domain.LogicalAnd
		}
		if prev != cur {
			return false
		}
	}
	if opts.OrderBy != "" {
		if _, ok := canonicalFields[opts.OrderBy]; !ok {
			return false
		}
	}
	return true
}

// Compile builds the WHERE/ORDER/LIMIT fragments for filters and options.
// Filters must already be validated and compilable.
func Compile(filters []domain.Filter, opts domain.QueryOptions) (Compiled, error) {
	if err := Validate(filters); err != nil {
		return Compiled{}, err
	}
	if !CanCompile(filters, opts) {
		return Compiled{}, domain.Errf(domain.KindInvalidFilter, "filters reference non-column fields")
	}
	var c Compiled
	var parts []string
	for i, f := range filters {
		if i > 0 {
			logical := f.Logical
			if logical == "" {
				logical = domain.LogicalAnd
			}
			parts = append(parts, string(logical))
		}
		frag, args, err := compileFilter(f)
		if err != nil {
			return Compiled{}, err
		}
		parts = append(parts, frag)
		c.Args = append(c.Args, args...)
	}
	if len(parts) > 0 {
		c.Predicate = strings.Join(parts, " ")
	}
	if opts.OrderBy != "" {
		dir := opts.Direction
		if dir != domain.OrderAsc && dir != domain.OrderDesc {
			dir = domain.OrderAsc
		}
		c.Order = fmt.Sprintf("ORDER BY %s %s", opts.OrderBy, dir)
	}
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1 // sqlite: no limit; postgres treats via OFFSET only below
		}
		if opts.Offset > 0 {
			c.Limit = fmt.Sprintf("LIMIT %d OFFSET %d", limit, opts.Offset)
		} else {
			c.Limit = fmt.Sprintf("LIMIT %d", limit)
		}
	}
	return c, nil
}

func compileFilter(f domain.Filter) (string, []any, error) {
	op := normalizeOp(f.Op)
	switch op {
	case domain.OpEq, domain.OpNeq, domain.OpGt, domain.OpLt, domain.OpGte, domain.OpLte:
		return fmt.Sprintf("%s %s ?", f.Field, op), []any{bindValue(f.Value)}, nil
	case domain.OpLike:
		// wildcard-wrapped pattern, substring semantics
		return fmt.Sprintf("%s LIKE ?", f.Field), []any{"%" + stringify(f.Value) + "%"}, nil
	case domain.OpIn, domain.OpNotIn:
		values := membershipValues(f.Value)
		if len(values) == 0 {
			// empty set: IN matches nothing, NOT IN matches everything
			if op == domain.OpIn {
				return "1 = 0", nil, nil
			}
			return "1 = 1", nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
		args := make([]any, len(values))
		for i, v := range values {
			args[i] = bindValue(v)
		}
		return fmt.Sprintf("%s %s (%s)", f.Field, op, placeholders), args, nil
	}
	return "", nil, domain.Errf(domain.KindInvalidFilter, "unrecognized operator %q", f.Op)
}

func membershipValues(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	}
	return []any{v}
}

// TimeLayout is the timestamp encoding for TEXT columns. The fraction is
// fixed-width, never trimmed, so lexicographic comparison matches time order;
// RFC3339Nano would sort "05.5Z" after "05.51Z".
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// bindValue converts domain values to driver-friendly forms; timestamps bind
// as fixed-width UTC text matching the stored column encoding.
func bindValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(TimeLayout)
	case domain.TypeTag:
		return string(t)
	case domain.WaterState:
		return string(t)
	case domain.EpistemicLabel:
		return string(t)
	case domain.FractalLayer:
		return int64(t)
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

// Rebind rewrites `?` placeholders to `$1..$n` for drivers that require
// numbered parameters.
func Rebind(sql string) string {
	var b strings.Builder
	n := 0
	for _, r := range sql {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
