// Package core exposes the service facade over the node store, the in-memory
// registry collections, and whole-system snapshot save/load.
package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"codexcore/internal/snapshot"
	"codexcore/pkg/domain"
)

// Service fronts a NodeStore with metrics, structured logging, registry
// collections (cross references and per-agent consciousness states), and
// snapshot persistence. All methods are safe for concurrent use.
type Service struct {
	store     domain.NodeStore
	log       *zap.Logger
	metrics   MetricsRecorder
	snapshots *snapshot.Manager

	mu        sync.RWMutex
	crossRefs map[string]domain.CrossReference
	states    map[string]domain.ConsciousnessState
	raw       map[string]map[string]map[string]any
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger attaches a structured logger; the default is a nop logger.
func WithLogger(log *zap.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetricsRecorder attaches a metrics sink for store operations.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithSnapshotManager enables SaveSystemState/LoadSystemState.
func WithSnapshotManager(m *snapshot.Manager) ServiceOption {
	return func(s *Service) { s.snapshots = m }
}

// NewService wraps store.
func NewService(store domain.NodeStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		log:       zap.NewNop(),
		metrics:   NoopMetricsRecorder{},
		crossRefs: map[string]domain.CrossReference{},
		states:    map[string]domain.ConsciousnessState{},
		raw:       map[string]map[string]map[string]any{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close releases the underlying store.
func (s *Service) Close() error { return s.store.Close() }

func (s *Service) observe(ctx context.Context, res domain.OperationResult) domain.OperationResult {
	s.metrics.Observe(ctx, string(res.Op), res.Success, res.ExecutionTime)
	if res.Err != nil {
		s.log.Warn("store operation failed",
			zap.String("operation", string(res.Op)),
			zap.String("kind", string(res.ErrKind())),
			zap.Error(res.Err))
	}
	return res
}

// CreateNode stores node, generating a UUID when the caller supplies no id.
func (s *Service) CreateNode(ctx context.Context, node domain.Node) domain.OperationResult {
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	return s.observe(ctx, s.store.CreateNode(ctx, node))
}

// ReadNode fetches a node by id.
func (s *Service) ReadNode(ctx context.Context, id string) domain.OperationResult {
	return s.observe(ctx, s.store.ReadNode(ctx, id))
}

// UpdateNode replaces a node with upsert semantics.
func (s *Service) UpdateNode(ctx context.Context, node domain.Node) domain.OperationResult {
	return s.observe(ctx, s.store.UpdateNode(ctx, node))
}

// DeleteNode soft-deletes a node.
func (s *Service) DeleteNode(ctx context.Context, id string) domain.OperationResult {
	return s.observe(ctx, s.store.DeleteNode(ctx, id))
}

// QueryNodes evaluates filters and options against the store.
func (s *Service) QueryNodes(ctx context.Context, filters []domain.Filter, options domain.QueryOptions) domain.OperationResult {
	return s.observe(ctx, s.store.QueryNodes(ctx, filters, options))
}

// PutRelationship upserts a relationship record.
func (s *Service) PutRelationship(ctx context.Context, rec domain.RelationshipRecord) domain.OperationResult {
	return s.observe(ctx, s.store.PutRelationship(ctx, rec))
}

// DeleteRelationship removes a relationship record.
func (s *Service) DeleteRelationship(ctx context.Context, sourceID, targetID, relType string) domain.OperationResult {
	return s.observe(ctx, s.store.DeleteRelationship(ctx, sourceID, targetID, relType))
}

// ListRelationships returns all records touching nodeID.
func (s *Service) ListRelationships(ctx context.Context, nodeID string) domain.OperationResult {
	return s.observe(ctx, s.store.ListRelationships(ctx, nodeID))
}

// PutCrossReference registers a term-to-node mapping, replacing any existing
// entry with the same composite key.
func (s *Service) PutCrossReference(ref domain.CrossReference) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.crossRefs[ref.Key()] = ref
	s.mu.Unlock()
	return nil
}

// DeleteCrossReference removes a mapping, reporting whether it existed.
func (s *Service) DeleteCrossReference(term, nodeID string) bool {
	key := domain.CrossReference{Term: term, NodeID: nodeID}.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.crossRefs[key]; !exists {
		return false
	}
	delete(s.crossRefs, key)
	return true
}

// ResolveTerm returns every cross reference registered for term, highest
// weight first.
func (s *Service) ResolveTerm(term string) []domain.CrossReference {
	s.mu.RLock()
	var refs []domain.CrossReference
	for _, ref := range s.crossRefs {
		if ref.Term == term {
			refs = append(refs, ref)
		}
	}
	s.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Weight != refs[j].Weight {
			return refs[i].Weight > refs[j].Weight
		}
		return refs[i].NodeID < refs[j].NodeID
	})
	return refs
}

// PutConsciousnessState records the enumerated state for an agent node id.
func (s *Service) PutConsciousnessState(id string, st domain.ConsciousnessState) error {
	if id == "" {
		return domain.Validationf("state requires an agent id")
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.states[id] = st
	s.mu.Unlock()
	return nil
}

// ConsciousnessStateOf returns the recorded state for an agent node id.
func (s *Service) ConsciousnessStateOf(id string) (domain.ConsciousnessState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, exists := s.states[id]
	return st, exists
}

// SaveSystemState archives all live nodes, their relationships, and the
// registry collections through the snapshot manager. It reports success and
// never panics; failures are logged.
func (s *Service) SaveSystemState(ctx context.Context) bool {
	if s.snapshots == nil {
		s.log.Warn("save system state skipped, no snapshot manager configured")
		return false
	}
	state, ok := s.collectState(ctx)
	if !ok {
		return false
	}
	if err := s.snapshots.Save(ctx, state); err != nil {
		s.log.Error("save system state failed", zap.Error(err))
		return false
	}
	return true
}

// LoadSystemState restores an archived snapshot into the store and registry.
// The restore merges: archived records upsert over live rows, and live nodes
// absent from the archive are left in place. Callers wanting a point-in-time
// restore start from an empty store. Registry collections, unlike nodes, are
// replaced wholesale. It reports success; an absent or corrupt archive logs
// and returns false.
func (s *Service) LoadSystemState(ctx context.Context) bool {
	if s.snapshots == nil {
		s.log.Warn("load system state skipped, no snapshot manager configured")
		return false
	}
	state, err := s.snapshots.Load(ctx)
	if err != nil {
		s.log.Error("load system state failed",
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err))
		return false
	}

	ids := make([]string, 0, len(state.Nodes))
	for id := range state.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic restore order; parent linkage is idempotent
	restored := true
	for _, id := range ids {
		if res := s.UpdateNode(ctx, state.Nodes[id]); !res.Success {
			restored = false
		}
	}
	for _, rec := range state.Relationships {
		if res := s.PutRelationship(ctx, rec); !res.Success {
			restored = false
		}
	}

	s.mu.Lock()
	s.crossRefs = make(map[string]domain.CrossReference, len(state.CrossReferences))
	for key, ref := range state.CrossReferences {
		s.crossRefs[key] = ref
	}
	s.states = make(map[string]domain.ConsciousnessState, len(state.ConsciousnessStates))
	for id, st := range state.ConsciousnessStates {
		s.states[id] = st
	}
	s.raw = state.Raw
	s.mu.Unlock()

	if !restored {
		s.log.Warn("system state loaded with record failures")
	}
	return true
}

// collectState gathers the live store contents and registry collections.
func (s *Service) collectState(ctx context.Context) (snapshot.State, bool) {
	state := snapshot.NewState()

	res := s.QueryNodes(ctx, nil, domain.QueryOptions{})
	if !res.Success {
		s.log.Error("collect system state failed", zap.Error(res.Err))
		return snapshot.State{}, false
	}
	nodes, _ := res.NodesData()
	for _, node := range nodes {
		state.Nodes[node.ID] = node
	}
	for _, node := range nodes {
		lres := s.ListRelationships(ctx, node.ID)
		if !lres.Success {
			s.log.Error("collect relationships failed",
				zap.String("node", node.ID), zap.Error(lres.Err))
			return snapshot.State{}, false
		}
		recs, _ := lres.RelationshipsData()
		for _, rec := range recs {
			state.Relationships[rec.Key()] = rec
		}
	}

	s.mu.RLock()
	for key, ref := range s.crossRefs {
		state.CrossReferences[key] = ref
	}
	for id, st := range s.states {
		state.ConsciousnessStates[id] = st
	}
	for name, records := range s.raw {
		cp := make(map[string]map[string]any, len(records))
		for id, rec := range records {
			cp[id] = rec
		}
		state.Raw[name] = cp
	}
	s.mu.RUnlock()
	return state, true
}
