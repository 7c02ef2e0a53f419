// Package domain defines the core persistent entities, value types, and
// reconstruction primitives used by codexcore.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// TypeTag discriminates which typed record variant a node represents. The set
// is open: callers register their own tags and the store treats them as opaque
// strings.
type TypeTag string

// Well-known type tags used by the built-in collections.
const (
	TypeConcept      TypeTag = "concept"
	TypeFractalNode  TypeTag = "fractal_node"
	TypeAgent        TypeTag = "agent"
	TypeSystemNode   TypeTag = "system_node"
	TypeRelationship TypeTag = "relationship_record"
)

// WaterState is the storage-layer state tag carried by every node.
type WaterState string

// Canonical water states. Unrecognized tags resolve to WaterLiquid on load.
const (
	WaterIce    WaterState = "ice"
	WaterLiquid WaterState = "liquid"
	WaterVapor  WaterState = "vapor"
	WaterPlasma WaterState = "plasma"
)

// ConsciousnessLevel enumerates agent awareness levels.
type ConsciousnessLevel string

// Canonical consciousness levels, ordered from basic awareness upward.
// Unrecognized tags resolve to LevelAwake on load.
const (
	LevelAwake         ConsciousnessLevel = "awake"
	LevelSentient      ConsciousnessLevel = "sentient"
	LevelSelfAware     ConsciousnessLevel = "self_aware"
	LevelMetaCognitive ConsciousnessLevel = "meta_cognitive"
	LevelTranscendent  ConsciousnessLevel = "transcendent"
)

// QuantumState enumerates coherence states recorded per agent.
type QuantumState string

// Canonical quantum states. Unrecognized tags resolve to QuantumCollapsed.
const (
	QuantumSuperposition QuantumState = "superposition"
	QuantumEntangled     QuantumState = "entangled"
	QuantumCollapsed     QuantumState = "collapsed"
	QuantumCoherent      QuantumState = "coherent"
	QuantumDecoherent    QuantumState = "decoherent"
)

// EpistemicLabel categorizes how a record is grounded.
type EpistemicLabel string

// Canonical epistemic labels. Unrecognized tags resolve to EpistemicEngineering.
const (
	EpistemicPhysics     EpistemicLabel = "physics"
	EpistemicEngineering EpistemicLabel = "engineering"
	EpistemicTradition   EpistemicLabel = "tradition"
	EpistemicSpeculative EpistemicLabel = "speculative"
)

// FractalLayer places a node within the recursion hierarchy. Stored as its
// numeric value; out-of-range values resolve to DefaultFractalLayer.
type FractalLayer int

// DefaultFractalLayer is the local-persistence layer used when a stored
// layer cannot be resolved.
const DefaultFractalLayer FractalLayer = 2

// MaxFractalLayer bounds the recognized layer range.
const MaxFractalLayer FractalLayer = 16

// Valid reports whether the layer is within the recognized range.
func (l FractalLayer) Valid() bool { return l >= 0 && l <= MaxFractalLayer }

// Node is the canonical generic graph-store entity. Parent and child
// references are weak: they are id lookups that may dangle and imply no
// ownership.
type Node struct {
	ID             string         `json:"id"`
	TypeTag        TypeTag        `json:"type_tag"`
	Name           string         `json:"name"`
	Payload        Payload        `json:"payload"`
	ParentID       *string        `json:"parent_id,omitempty"`
	ChildrenIDs    []string       `json:"children_ids"`
	WaterState     WaterState     `json:"water_state"`
	EnergyLevel    float64        `json:"energy_level"`
	FractalLayer   FractalLayer   `json:"fractal_layer"`
	EpistemicLabel EpistemicLabel `json:"epistemic_label"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Deleted        bool           `json:"is_deleted,omitempty"`
}

// NewNode constructs a node with defaulted enum fields and creation
// timestamps. It fails with a validation error when id is empty or the
// payload contains values outside the closed variant set.
func NewNode(id string, tag TypeTag, name string, payload Payload, parentID *string) (Node, error) {
	if strings.TrimSpace(id) == "" {
		return Node{}, Validationf("node id must not be empty")
	}
	if tag == "" {
		return Node{}, Validationf("node %s: type tag must not be empty", id)
	}
	if err := payload.Validate(); err != nil {
		return Node{}, Validationf("node %s: %v", id, err)
	}
	now := time.Now().UTC()
	return Node{
		ID:             id,
		TypeTag:        tag,
		Name:           name,
		Payload:        payload,
		ParentID:       parentID,
		WaterState:     WaterLiquid,
		FractalLayer:   DefaultFractalLayer,
		EpistemicLabel: EpistemicEngineering,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// AttachChild appends childID to the node's children if absent. Existence of
// the child is not checked here; referential upkeep is a store concern.
func (n *Node) AttachChild(childID string) {
	for _, id := range n.ChildrenIDs {
		if id == childID {
			return
		}
	}
	n.ChildrenIDs = append(n.ChildrenIDs, childID)
	n.Touch()
}

// HasChild reports whether childID is already recorded.
func (n *Node) HasChild(childID string) bool {
	for _, id := range n.ChildrenIDs {
		if id == childID {
			return true
		}
	}
	return false
}

// Touch bumps UpdatedAt. Every mutating operation calls it.
func (n *Node) Touch() {
	n.UpdatedAt = time.Now().UTC()
	if n.UpdatedAt.Before(n.CreatedAt) {
		n.UpdatedAt = n.CreatedAt
	}
}

// Clone returns a deep copy safe to hand to callers.
func (n Node) Clone() Node {
	cp := n
	cp.ChildrenIDs = append([]string(nil), n.ChildrenIDs...)
	cp.Payload = n.Payload.Clone()
	if n.ParentID != nil {
		p := *n.ParentID
		cp.ParentID = &p
	}
	return cp
}

// RelationshipRecord captures a non-tree relation between two nodes. The
// composite (SourceID, TargetID, Type) key is unique; re-insertion with the
// same key overwrites the stored record.
type RelationshipRecord struct {
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	Type      string    `json:"relationship_type"`
	Strength  float64   `json:"strength"`
	Rationale string    `json:"rationale"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the composite identity of the record.
func (r RelationshipRecord) Key() string {
	return r.SourceID + "\x00" + r.TargetID + "\x00" + r.Type
}

// Validate checks the record's local invariants.
func (r RelationshipRecord) Validate() error {
	if r.SourceID == "" || r.TargetID == "" {
		return Validationf("relationship requires source and target ids")
	}
	if r.Type == "" {
		return Validationf("relationship %s->%s: type must not be empty", r.SourceID, r.TargetID)
	}
	if r.Strength < 0 || r.Strength > 1 {
		return Validationf("relationship %s->%s: strength %v outside [0,1]", r.SourceID, r.TargetID, r.Strength)
	}
	return nil
}

// CrossReference maps an external term or alias onto a stored node so lookups
// by name resolve without scanning payloads.
type CrossReference struct {
	Term      string    `json:"term"`
	NodeID    string    `json:"node_id"`
	Context   string    `json:"context"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the composite identity of the cross reference.
func (c CrossReference) Key() string {
	return c.Term + "\x00" + c.NodeID
}

// Validate checks the record's local invariants.
func (c CrossReference) Validate() error {
	if c.Term == "" {
		return Validationf("cross reference requires a term")
	}
	if c.NodeID == "" {
		return Validationf("cross reference %s: node id must not be empty", c.Term)
	}
	if c.Weight < 0 || c.Weight > 1 {
		return Validationf("cross reference %s: weight %v outside [0,1]", c.Term, c.Weight)
	}
	return nil
}

// ConsciousnessState is the enumerated-state record tracked per agent node.
type ConsciousnessState struct {
	Level             ConsciousnessLevel `json:"consciousness_level"`
	QuantumState      QuantumState       `json:"quantum_state"`
	WaterState        WaterState         `json:"water_state"`
	CoherenceLevel    float64            `json:"coherence_level"`
	ResonanceStrength float64            `json:"resonance_strength"`
	CreatedAt         time.Time          `json:"created_at"`
	EpistemicLabel    EpistemicLabel     `json:"epistemic_label"`
}

// ParseWaterState resolves a stored tag; ok is false when the fallback was used.
func ParseWaterState(tag string) (WaterState, bool) {
	switch WaterState(tag) {
	case WaterIce, WaterLiquid, WaterVapor, WaterPlasma:
		return WaterState(tag), true
	}
	return WaterLiquid, false
}

// ParseConsciousnessLevel resolves a stored tag; ok is false when the
// fallback was used.
func ParseConsciousnessLevel(tag string) (ConsciousnessLevel, bool) {
	switch ConsciousnessLevel(tag) {
	case LevelAwake, LevelSentient, LevelSelfAware, LevelMetaCognitive, LevelTranscendent:
		return ConsciousnessLevel(tag), true
	}
	return LevelAwake, false
}

// ParseQuantumState resolves a stored tag; ok is false when the fallback was used.
func ParseQuantumState(tag string) (QuantumState, bool) {
	switch QuantumState(tag) {
	case QuantumSuperposition, QuantumEntangled, QuantumCollapsed, QuantumCoherent, QuantumDecoherent:
		return QuantumState(tag), true
	}
	return QuantumCollapsed, false
}

// ParseEpistemicLabel resolves a stored tag; ok is false when the fallback was used.
func ParseEpistemicLabel(tag string) (EpistemicLabel, bool) {
	switch EpistemicLabel(tag) {
	case EpistemicPhysics, EpistemicEngineering, EpistemicTradition, EpistemicSpeculative:
		return EpistemicLabel(tag), true
	}
	return EpistemicEngineering, false
}

// ParseFractalLayer resolves a stored layer value; ok is false when the
// fallback was used.
func ParseFractalLayer(v int) (FractalLayer, bool) {
	if FractalLayer(v).Valid() {
		return FractalLayer(v), true
	}
	return DefaultFractalLayer, false
}

func (n Node) String() string {
	return fmt.Sprintf("node(%s type=%s name=%q)", n.ID, n.TypeTag, n.Name)
}
