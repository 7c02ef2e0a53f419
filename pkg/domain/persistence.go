package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Operator names the comparison applied by a query filter.
type Operator string

// Supported filter operators. LIKE is case-sensitive substring containment
// over the stringified field value.
const (
	OpEq    Operator = "="
	OpNeq   Operator = "!="
	OpGt    Operator = ">"
	OpLt    Operator = "<"
	OpGte   Operator = ">="
	OpLte   Operator = "<="
	OpLike  Operator = "LIKE"
	OpIn    Operator = "IN"
	OpNotIn Operator = "NOT IN"
)

// LogicalOperator joins a filter to the previous one in sequence.
type LogicalOperator string

// Filters are combined strictly left to right; there is no grouping.
const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Filter is one declarative predicate over a node field. Field may name a
// canonical column (id, type_tag, name, parent_id, water_state, energy_level,
// fractal_layer, epistemic_label, created_at, updated_at) or a payload key.
type Filter struct {
	Field   string
	Op      Operator
	Value   any
	Logical LogicalOperator // join with the preceding filter; defaults to AND
}

// OrderDirection controls result ordering.
type OrderDirection string

// Supported order directions.
const (
	OrderAsc  OrderDirection = "ASC"
	OrderDesc OrderDirection = "DESC"
)

// QueryOptions carries ordering and pagination. The zero value means
// insertion order, no limit.
type QueryOptions struct {
	OrderBy   string
	Direction OrderDirection
	Limit     int // 0 = unlimited
	Offset    int
}

// OperationType names a store operation for result reporting and metrics.
type OperationType string

// Store operation types.
const (
	OpCreateNode         OperationType = "create_node"
	OpReadNode           OperationType = "read_node"
	OpUpdateNode         OperationType = "update_node"
	OpDeleteNode         OperationType = "delete_node"
	OpQueryNodes         OperationType = "query_nodes"
	OpPutRelationship    OperationType = "put_relationship"
	OpDeleteRelationship OperationType = "delete_relationship"
	OpListRelationships  OperationType = "list_relationships"
)

// OperationResult is the uniform envelope returned by every store operation.
// Expected conditions (not found, duplicate key) are reported through Err and
// Success rather than panics, so callers branch on fields, not recover().
type OperationResult struct {
	Op            OperationType `json:"operation_type"`
	Success       bool          `json:"success"`
	Data          any           `json:"data,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
	Timestamp     time.Time     `json:"timestamp"`
	RowsAffected  int64         `json:"rows_affected"`
	Err           error         `json:"-"`
}

// ErrKind returns the classified kind of the operation's error, if any.
func (r OperationResult) ErrKind() ErrorKind { return KindOf(r.Err) }

// ErrorMessage returns the error text, empty on success.
func (r OperationResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// MarshalJSON flattens Err into an error_message field, since error values
// carry no JSON form of their own.
func (r OperationResult) MarshalJSON() ([]byte, error) {
	type plain OperationResult
	return json.Marshal(struct {
		plain
		ErrorMessage string `json:"error_message,omitempty"`
	}{plain: plain(r), ErrorMessage: r.ErrorMessage()})
}

// Node result data accessors keep call sites free of type assertions.

// NodeData returns the single node carried by a read result.
func (r OperationResult) NodeData() (Node, bool) {
	n, ok := r.Data.(Node)
	return n, ok
}

// NodesData returns the node list carried by a query result.
func (r OperationResult) NodesData() ([]Node, bool) {
	ns, ok := r.Data.([]Node)
	return ns, ok
}

// RelationshipsData returns the relationship list carried by a list result.
func (r OperationResult) RelationshipsData() ([]RelationshipRecord, bool) {
	rs, ok := r.Data.([]RelationshipRecord)
	return rs, ok
}

// NodeStore is the durable CRUD contract implemented by every persistence
// driver. All calls are synchronous and honor ctx deadlines; a call that
// exceeds its deadline reports KindTimeout rather than blocking.
type NodeStore interface {
	CreateNode(ctx context.Context, node Node) OperationResult
	ReadNode(ctx context.Context, id string) OperationResult
	UpdateNode(ctx context.Context, node Node) OperationResult
	DeleteNode(ctx context.Context, id string) OperationResult
	QueryNodes(ctx context.Context, filters []Filter, options QueryOptions) OperationResult
	PutRelationship(ctx context.Context, rec RelationshipRecord) OperationResult
	DeleteRelationship(ctx context.Context, sourceID, targetID, relType string) OperationResult
	ListRelationships(ctx context.Context, nodeID string) OperationResult
	Close() error
}
