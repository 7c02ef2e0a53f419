// Package memory provides a map-backed NodeStore used by tests and by
// deployments that want no durable file. Semantics match the sqlite driver,
// including soft deletes and relationship upserts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"codexcore/internal/query"
	"codexcore/pkg/domain"
)

var _ domain.NodeStore = (*Store)(nil)

// Store holds all records in process memory behind a single mutex. Nodes keep
// their insertion order so unordered queries are deterministic.
type Store struct {
	mu            sync.RWMutex
	nodes         map[string]domain.Node
	order         []string
	relationships map[string]domain.RelationshipRecord
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		nodes:         map[string]domain.Node{},
		relationships: map[string]domain.RelationshipRecord{},
	}
}

func ok(op domain.OperationType, start time.Time, data any, rows int64) domain.OperationResult {
	return domain.OperationResult{
		Op:            op,
		Success:       true,
		Data:          data,
		ExecutionTime: time.Since(start),
		Timestamp:     time.Now().UTC(),
		RowsAffected:  rows,
	}
}

func fail(op domain.OperationType, start time.Time, err error) domain.OperationResult {
	return domain.OperationResult{
		Op:            op,
		ExecutionTime: time.Since(start),
		Timestamp:     time.Now().UTC(),
		Err:           err,
	}
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return domain.Wrap(domain.KindTimeout, err, "context done")
	}
	return nil
}

// CreateNode stores a new node, rejecting duplicate ids whether live or
// soft-deleted.
func (s *Store) CreateNode(ctx context.Context, node domain.Node) domain.OperationResult {
	start := time.Now()
	if err := ctxErr(ctx); err != nil {
		return fail(domain.OpCreateNode, start, err)
	}
	if node.ID == "" {
		return fail(domain.OpCreateNode, start, domain.Validationf("node id must not be empty"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nodes[node.ID]; exists {
		return fail(domain.OpCreateNode, start, domain.Errf(domain.KindDuplicateKey, "node %s already exists", node.ID))
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}
	node.Touch()
	s.nodes[node.ID] = node.Clone()
	s.order = append(s.order, node.ID)
	s.linkParent(node)
	return ok(domain.OpCreateNode, start, node, 1)
}

// ReadNode returns a copy of the node; soft-deleted nodes report not-found.
func (s *Store) ReadNode(ctx context.Context, id string) domain.OperationResult {
	start := time.Now()
	if err := ctxErr(ctx); err != nil {
		return fail(domain.OpReadNode, start, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, exists := s.nodes[id]
	if !exists || node.Deleted {
		return fail(domain.OpReadNode, start, domain.Errf(domain.KindNotFound, "node %s not found", id))
	}
	return ok(domain.OpReadNode, start, node.Clone(), 1)
}

// UpdateNode replaces the node with upsert semantics.
func (s *Store) UpdateNode(ctx context.Context, node domain.Node) domain.OperationResult {
	start := time.Now()
	if err := ctxErr(ctx); err != nil {
		return fail(domain.OpUpdateNode, start, err)
	}
	if node.ID == "" {
		return fail(domain.OpUpdateNode, start, domain.Validationf("node id must not be empty"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}
	node.Touch()
	if _, exists := s.nodes[node.ID]; !exists {
		s.order = append(s.order, node.ID)
	}
	s.nodes[node.ID] = node.Clone()
	s.linkParent(node)
	return ok(domain.OpUpdateNode, start, node, 1)
}

// DeleteNode soft-deletes; absent or already deleted ids succeed with zero
// rows affected.
func (s *Store) DeleteNode(ctx context.Context, id string) domain.OperationResult {
	start := time.Now()
	if err := ctxErr(ctx); err != nil {
		return fail(domain.OpDeleteNode, start, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	node, exists := s.nodes[id]
	if !exists || node.Deleted {
		return ok(domain.OpDeleteNode, start, nil, 0)
	}
	node.Deleted = true
	node.Touch()
	s.nodes[id] = node
	return ok(domain.OpDeleteNode, start, nil, 1)
}

// QueryNodes evaluates filters in memory over a snapshot of the live nodes.
func (s *Store) QueryNodes(ctx context.Context, filters []domain.Filter, options domain.QueryOptions) domain.OperationResult {
	start := time.Now()
	if err := ctxErr(ctx); err != nil {
		return fail(domain.OpQueryNodes, start, err)
	}
	if err := query.Validate(filters); err != nil {
		return fail(domain.OpQueryNodes, start, err)
	}
	includeDeleted := filtersReferenceDeleted(filters)
	s.mu.RLock()
	candidates := make([]domain.Node, 0, len(s.order))
	for _, id := range s.order {
		node := s.nodes[id]
		if node.Deleted && !includeDeleted {
			continue
		}
		candidates = append(candidates, node.Clone())
	}
	s.mu.RUnlock()
	nodes, err := query.Evaluate(candidates, filters, options)
	if err != nil {
		return fail(domain.OpQueryNodes, start, err)
	}
	return ok(domain.OpQueryNodes, start, nodes, int64(len(nodes)))
}

// PutRelationship upserts by composite key.
func (s *Store) PutRelationship(ctx context.Context, rec domain.RelationshipRecord) domain.OperationResult {
	start := time.Now()
	if err := ctxErr(ctx); err != nil {
		return fail(domain.OpPutRelationship, start, err)
	}
	if err := rec.Validate(); err != nil {
		return fail(domain.OpPutRelationship, start, err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.relationships[rec.Key()] = rec
	s.mu.Unlock()
	return ok(domain.OpPutRelationship, start, rec, 1)
}

// DeleteRelationship removes by composite key; absent keys succeed with zero
// rows affected.
func (s *Store) DeleteRelationship(ctx context.Context, sourceID, targetID, relType string) domain.OperationResult {
	start := time.Now()
	if err := ctxErr(ctx); err != nil {
		return fail(domain.OpDeleteRelationship, start, err)
	}
	key := domain.RelationshipRecord{SourceID: sourceID, TargetID: targetID, Type: relType}.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.relationships[key]; !exists {
		return ok(domain.OpDeleteRelationship, start, nil, 0)
	}
	delete(s.relationships, key)
	return ok(domain.OpDeleteRelationship, start, nil, 1)
}

// ListRelationships returns every record touching nodeID, ordered by key.
func (s *Store) ListRelationships(ctx context.Context, nodeID string) domain.OperationResult {
	start := time.Now()
	if err := ctxErr(ctx); err != nil {
		return fail(domain.OpListRelationships, start, err)
	}
	s.mu.RLock()
	recs := []domain.RelationshipRecord{}
	for _, rec := range s.relationships {
		if rec.SourceID == nodeID || rec.TargetID == nodeID {
			recs = append(recs, rec)
		}
	}
	s.mu.RUnlock()
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key() < recs[j].Key() })
	return ok(domain.OpListRelationships, start, recs, int64(len(recs)))
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

func (s *Store) linkParent(node domain.Node) {
	if node.ParentID == nil || *node.ParentID == "" {
		return
	}
	parent, exists := s.nodes[*node.ParentID]
	if !exists || parent.HasChild(node.ID) {
		return
	}
	parent.AttachChild(node.ID)
	s.nodes[parent.ID] = parent
}

func filtersReferenceDeleted(filters []domain.Filter) bool {
	for _, f := range filters {
		if f.Field == "is_deleted" {
			return true
		}
	}
	return false
}
