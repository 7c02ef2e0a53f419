// Package snapshot serializes the whole system state to a single JSON
// document and rebuilds it with per-record typed reconstruction. A record
// that fails reconstruction is kept in its raw form rather than aborting the
// load; only an unparseable document is fatal.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"codexcore/internal/blob"
	"codexcore/pkg/domain"
)

// SchemaVersion identifies the document layout. Loads accept any version and
// rely on per-record fallback for forward compatibility.
const SchemaVersion = "1.0"

// DefaultKey is the blob key snapshots are archived under.
const DefaultKey = "system_state.json"

const contentType = "application/json"

// Registered collection names.
const (
	CollectionNodes               = "nodes"
	CollectionRelationships       = "relationships"
	CollectionCrossReferences     = "cross_references"
	CollectionConsciousnessStates = "consciousness_states"
)

// Document is the on-disk snapshot form: metadata plus named collections of
// id-keyed generic records.
type Document struct {
	Metadata    Metadata                             `json:"metadata"`
	Collections map[string]map[string]map[string]any `json:"collections"`
}

// wireDocument is the decode-side shape. Records stay raw so node payloads
// can be decoded through the ordered codec; a generic map would sort keys.
type wireDocument struct {
	Metadata    Metadata                              `json:"metadata"`
	Collections map[string]map[string]json.RawMessage `json:"collections"`
}

// Metadata describes the snapshot itself.
type Metadata struct {
	SaveTimestamp   string `json:"save_timestamp"`
	SchemaVersion   string `json:"schema_version"`
	CollectionCount int    `json:"collection_count"`
}

// State is the typed in-memory form of a snapshot. Raw holds records that
// could not be reconstructed, keyed by collection then record id, so a
// save/load cycle never silently drops data.
type State struct {
	Nodes               map[string]domain.Node
	Relationships       map[string]domain.RelationshipRecord
	CrossReferences     map[string]domain.CrossReference
	ConsciousnessStates map[string]domain.ConsciousnessState
	Raw                 map[string]map[string]map[string]any
}

// NewState returns an empty state with all collections allocated.
func NewState() State {
	return State{
		Nodes:               map[string]domain.Node{},
		Relationships:       map[string]domain.RelationshipRecord{},
		CrossReferences:     map[string]domain.CrossReference{},
		ConsciousnessStates: map[string]domain.ConsciousnessState{},
		Raw:                 map[string]map[string]map[string]any{},
	}
}

// Manager archives snapshot documents through a blob store.
type Manager struct {
	store blob.Store
	key   string
	log   *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithKey overrides the archive blob key.
func WithKey(key string) Option {
	return func(m *Manager) {
		if key != "" {
			m.key = key
		}
	}
}

// WithLogger attaches a structured logger; the default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager returns a Manager writing to store under DefaultKey.
func NewManager(store blob.Store, opts ...Option) *Manager {
	m := &Manager{store: store, key: DefaultKey, log: zap.NewNop()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Key returns the blob key snapshots are written under.
func (m *Manager) Key() string { return m.key }

// Save serializes state into a document and writes it through the blob store.
// The filesystem backend stages to a temp file and renames, so a failed save
// leaves the previous snapshot intact.
func (m *Manager) Save(ctx context.Context, state State) error {
	doc := BuildDocument(state, time.Now().UTC())
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	info, err := m.store.Put(ctx, m.key, bytes.NewReader(data), blob.PutOptions{ContentType: contentType})
	if err != nil {
		return domain.Wrap(domain.KindStoreUnavailable, err, "archive snapshot")
	}
	m.log.Info("saved system state",
		zap.String("key", m.key),
		zap.Int64("bytes", info.Size),
		zap.Int("collections", doc.Metadata.CollectionCount))
	return nil
}

// Load reads the archived document and reconstructs typed records. A missing
// archive reports not-found; an unparseable document reports a corrupt
// snapshot. Individual record failures are logged with the record id and the
// raw record is kept.
func (m *Manager) Load(ctx context.Context) (State, error) {
	_, rc, err := m.store.Get(ctx, m.key)
	if err == blob.ErrNotFound {
		return State{}, domain.Errf(domain.KindNotFound, "snapshot %s not found", m.key)
	}
	if err != nil {
		return State{}, domain.Wrap(domain.KindStoreUnavailable, err, "open snapshot")
	}
	defer func() { _ = rc.Close() }()

	var doc wireDocument
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return State{}, domain.Wrap(domain.KindCorruptSnapshot, err, "parse snapshot %s", m.key)
	}
	state, err := m.restore(doc)
	if err != nil {
		return State{}, domain.Wrap(domain.KindCorruptSnapshot, err, "parse snapshot %s", m.key)
	}
	m.checkReferences(state)
	m.log.Info("loaded system state",
		zap.String("key", m.key),
		zap.String("saved_at", doc.Metadata.SaveTimestamp),
		zap.Int("nodes", len(state.Nodes)),
		zap.Int("relationships", len(state.Relationships)))
	return state, nil
}

// BuildDocument assembles the serialized form of state. Unreconstructed raw
// records ride along in their original collections.
func BuildDocument(state State, savedAt time.Time) Document {
	collections := map[string]map[string]map[string]any{
		CollectionNodes:               {},
		CollectionRelationships:       {},
		CollectionCrossReferences:     {},
		CollectionConsciousnessStates: {},
	}
	for id, node := range state.Nodes {
		collections[CollectionNodes][id] = node.ToGeneric()
	}
	for key, rec := range state.Relationships {
		collections[CollectionRelationships][key] = rec.ToGeneric()
	}
	for key, ref := range state.CrossReferences {
		collections[CollectionCrossReferences][key] = ref.ToGeneric()
	}
	for id, st := range state.ConsciousnessStates {
		collections[CollectionConsciousnessStates][id] = st.ToGeneric()
	}
	for name, records := range state.Raw {
		if collections[name] == nil {
			collections[name] = map[string]map[string]any{}
		}
		for id, rec := range records {
			if _, taken := collections[name][id]; !taken {
				collections[name][id] = rec
			}
		}
	}
	return Document{
		Metadata: Metadata{
			SaveTimestamp:   savedAt.Format(time.RFC3339Nano),
			SchemaVersion:   SchemaVersion,
			CollectionCount: len(collections),
		},
		Collections: collections,
	}
}

func (m *Manager) restore(doc wireDocument) (State, error) {
	state := NewState()
	for name, records := range doc.Collections {
		ids := make([]string, 0, len(records))
		for id := range records {
			ids = append(ids, id)
		}
		sort.Strings(ids) // deterministic warning order
		for _, id := range ids {
			raw, err := decodeRecord(name, records[id])
			if err != nil {
				return State{}, fmt.Errorf("collection %s record %s: %w", name, id, err)
			}
			m.restoreRecord(&state, name, id, raw)
		}
	}
	return state, nil
}

// decodeRecord unpacks one raw record. Node payloads are decoded a second
// time through the Payload codec, which keeps key order where the generic
// map cannot.
func decodeRecord(collection string, data json.RawMessage) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if collection != CollectionNodes {
		return raw, nil
	}
	if _, isObject := raw["payload"].(map[string]any); isObject {
		var aux struct {
			Payload domain.Payload `json:"payload"`
		}
		if err := json.Unmarshal(data, &aux); err == nil {
			raw["payload"] = aux.Payload
		}
	}
	return raw, nil
}

func (m *Manager) restoreRecord(state *State, collection, id string, raw map[string]any) {
	var warnings []string
	var err error
	switch collection {
	case CollectionNodes:
		var node domain.Node
		if node, warnings, err = domain.NodeFromGeneric(id, raw); err == nil {
			state.Nodes[id] = node
		}
	case CollectionRelationships:
		var rec domain.RelationshipRecord
		if rec, warnings, err = domain.RelationshipFromGeneric(raw); err == nil {
			state.Relationships[id] = rec
		}
	case CollectionCrossReferences:
		var ref domain.CrossReference
		if ref, warnings, err = domain.CrossReferenceFromGeneric(raw); err == nil {
			state.CrossReferences[id] = ref
		}
	case CollectionConsciousnessStates:
		var st domain.ConsciousnessState
		if st, warnings, err = domain.ConsciousnessStateFromGeneric(id, raw); err == nil {
			state.ConsciousnessStates[id] = st
		}
	default:
		err = fmt.Errorf("unrecognized collection")
	}
	for _, w := range warnings {
		m.log.Warn("snapshot record defaulted",
			zap.String("collection", collection),
			zap.String("record", id),
			zap.String("detail", w))
	}
	if err != nil {
		m.log.Warn("snapshot record kept in raw form",
			zap.String("collection", collection),
			zap.String("record", id),
			zap.Error(err))
		if state.Raw[collection] == nil {
			state.Raw[collection] = map[string]map[string]any{}
		}
		state.Raw[collection][id] = raw
	}
}

// checkReferences logs dangling parent and relationship endpoints. Weak
// references are tolerated by design of the node model, so nothing is fatal.
func (m *Manager) checkReferences(state State) {
	for id, node := range state.Nodes {
		if node.ParentID != nil && *node.ParentID != "" {
			if _, exists := state.Nodes[*node.ParentID]; !exists {
				m.log.Warn("node references missing parent",
					zap.String("record", id),
					zap.String("parent", *node.ParentID))
			}
		}
	}
	for key, rec := range state.Relationships {
		if _, exists := state.Nodes[rec.SourceID]; !exists {
			m.log.Warn("relationship references missing source",
				zap.String("record", key),
				zap.String("source", rec.SourceID))
		}
		if _, exists := state.Nodes[rec.TargetID]; !exists {
			m.log.Warn("relationship references missing target",
				zap.String("record", key),
				zap.String("target", rec.TargetID))
		}
	}
}
