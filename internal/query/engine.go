// Package query evaluates declarative filters against node collections,
// independent of how the nodes are stored. Evaluation is a pure function over
// a point-in-time slice: no side effects, safe to run concurrently with reads.
package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"codexcore/pkg/domain"
)

// canonicalFields are resolvable directly from node attributes; anything else
// is looked up in the payload.
var canonicalFields = map[string]struct{}{
	"id": {}, "type_tag": {}, "name": {}, "parent_id": {},
	"water_state": {}, "energy_level": {}, "fractal_layer": {},
	"epistemic_label": {}, "created_at": {}, "updated_at": {}, "is_deleted": {},
}

var validOperators = map[domain.Operator]struct{}{
	domain.OpEq: {}, domain.OpNeq: {}, domain.OpGt: {}, domain.OpLt: {},
	domain.OpGte: {}, domain.OpLte: {}, domain.OpLike: {}, domain.OpIn: {}, domain.OpNotIn: {},
}

// Validate rejects malformed filters up front so stores can fail fast with a
// typed invalid-filter error before touching any backend.
func Validate(filters []domain.Filter) error {
	for i, f := range filters {
		if strings.TrimSpace(f.Field) == "" {
			return domain.Errf(domain.KindInvalidFilter, "filter %d: field must not be empty", i)
		}
		if _, ok := validOperators[normalizeOp(f.Op)]; !ok {
			return domain.Errf(domain.KindInvalidFilter, "filter %d: unrecognized operator %q", i, f.Op)
		}
		switch f.Logical {
		case "", domain.LogicalAnd, domain.LogicalOr:
		default:
			return domain.Errf(domain.KindInvalidFilter, "filter %d: unrecognized logical operator %q", i, f.Logical)
		}
	}
	return nil
}

// Evaluate applies filters and options to nodes and returns the matching
// subset in a fresh slice. Filters join left to right via each filter's
// logical operator; there is no parenthesized grouping. Options order and
// paginate after filtering.
func Evaluate(nodes []domain.Node, filters []domain.Filter, opts domain.QueryOptions) ([]domain.Node, error) {
	if err := Validate(filters); err != nil {
		return nil, err
	}
	matched := make([]domain.Node, 0, len(nodes))
	for _, n := range nodes {
		ok, err := matches(n, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, n)
		}
	}
	if err := order(matched, opts); err != nil {
		return nil, err
	}
	return paginate(matched, opts), nil
}

func matches(n domain.Node, filters []domain.Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	result, err := matchOne(n, filters[0])
	if err != nil {
		return false, err
	}
	for _, f := range filters[1:] {
		m, err := matchOne(n, f)
		if err != nil {
			return false, err
		}
		if f.Logical == domain.LogicalOr {
			result = result || m
		} else {
			result = result && m
		}
	}
	return result, nil
}

func matchOne(n domain.Node, f domain.Filter) (bool, error) {
	fv, present := fieldValue(n, f.Field)
	switch normalizeOp(f.Op) {
	case domain.OpEq:
		return present && compareEqual(fv, f.Value), nil
	case domain.OpNeq:
		return present && !compareEqual(fv, f.Value), nil
	case domain.OpGt, domain.OpLt, domain.OpGte, domain.OpLte:
		if !present {
			return false, nil
		}
		c, ok := compareOrder(fv, f.Value)
		if !ok {
			return false, nil
		}
		switch normalizeOp(f.Op) {
		case domain.OpGt:
			return c > 0, nil
		case domain.OpLt:
			return c < 0, nil
		case domain.OpGte:
			return c >= 0, nil
		default:
			return c <= 0, nil
		}
	case domain.OpLike:
		if !present {
			return false, nil
		}
		return strings.Contains(stringify(fv), stringify(f.Value)), nil
	case domain.OpIn:
		return present && containedIn(fv, f.Value), nil
	case domain.OpNotIn:
		return present && !containedIn(fv, f.Value), nil
	}
	return false, domain.Errf(domain.KindInvalidFilter, "unrecognized operator %q", f.Op)
}

// fieldValue resolves a filter field against canonical attributes first, then
// the payload.
func fieldValue(n domain.Node, field string) (any, bool) {
	switch field {
	case "id":
		return n.ID, true
	case "type_tag":
		return string(n.TypeTag), true
	case "name":
		return n.Name, true
	case "parent_id":
		if n.ParentID == nil {
			return nil, false
		}
		return *n.ParentID, true
	case "water_state":
		return string(n.WaterState), true
	case "energy_level":
		return n.EnergyLevel, true
	case "fractal_layer":
		return int64(n.FractalLayer), true
	case "epistemic_label":
		return string(n.EpistemicLabel), true
	case "created_at":
		return n.CreatedAt, true
	case "updated_at":
		return n.UpdatedAt, true
	case "is_deleted":
		return n.Deleted, true
	}
	if v, ok := n.Payload.Get(field); ok {
		return v.Interface(), true
	}
	return nil, false
}

func normalizeOp(op domain.Operator) domain.Operator {
	return domain.Operator(strings.ToUpper(strings.TrimSpace(string(op))))
}

func compareEqual(a, b any) bool {
	if c, ok := compareOrder(a, b); ok {
		return c == 0
	}
	return stringify(a) == stringify(b)
}

// compareOrder returns -1/0/1 when both values share an ordered domain:
// numbers compare numerically, everything else by string form. Booleans and
// nils are equality-only.
func compareOrder(a, b any) (int, bool) {
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt), true
		}
	}
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	if aNum != bNum {
		return 0, false
	}
	return strings.Compare(stringify(a), stringify(b)), true
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case domain.FractalLayer:
		return float64(t), true
	}
	return 0, false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// containedIn treats a scalar membership value as a single-element set.
func containedIn(fv, set any) bool {
	switch s := set.(type) {
	case []any:
		for _, e := range s {
			if compareEqual(fv, e) {
				return true
			}
		}
		return false
	case []string:
		for _, e := range s {
			if compareEqual(fv, e) {
				return true
			}
		}
		return false
	}
	return compareEqual(fv, set)
}

func order(nodes []domain.Node, opts domain.QueryOptions) error {
	if opts.OrderBy == "" {
		return nil
	}
	dir := opts.Direction
	if dir != domain.OrderAsc && dir != domain.OrderDesc {
		dir = domain.OrderAsc
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		vi, okI := fieldValue(nodes[i], opts.OrderBy)
		vj, okJ := fieldValue(nodes[j], opts.OrderBy)
		if okI != okJ {
			return okI // nodes lacking the field sort last regardless of direction
		}
		if !okI {
			return false
		}
		c, ok := compareOrder(vi, vj)
		if !ok {
			c = strings.Compare(stringify(vi), stringify(vj))
		}
		if dir == domain.OrderDesc {
			return c > 0
		}
		return c < 0
	})
	return nil
}

func paginate(nodes []domain.Node, opts domain.QueryOptions) []domain.Node {
	if opts.Offset > 0 {
		if opts.Offset >= len(nodes) {
			return []domain.Node{}
		}
		nodes = nodes[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(nodes) {
		nodes = nodes[:opts.Limit]
	}
	return nodes
}
