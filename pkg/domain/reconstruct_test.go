package domain

import (
	"strings"
	"testing"
	"time"
)

func genericNode(id string) map[string]any {
	return map[string]any{
		"id":              id,
		"type_tag":        "concept",
		"name":            "Water",
		"payload":         map[string]any{"formula": "H2O"},
		"water_state":     "liquid",
		"energy_level":    3.5,
		"fractal_layer":   float64(4),
		"epistemic_label": "physics",
		"created_at":      "2026-01-02T03:04:05Z",
		"updated_at":      "2026-01-02T03:04:06Z",
	}
}

func TestNodeFromGenericHappyPath(t *testing.T) {
	node, warnings, err := NodeFromGeneric("n1", genericNode("n1"))
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if node.TypeTag != TypeConcept || node.Name != "Water" {
		t.Fatalf("basic fields wrong: %+v", node)
	}
	if node.WaterState != WaterLiquid || node.EpistemicLabel != EpistemicPhysics || node.FractalLayer != 4 {
		t.Fatalf("enum fields wrong: %+v", node)
	}
	v, _ := node.Payload.Get("formula")
	if s, _ := v.AsString(); s != "H2O" {
		t.Fatalf("payload lost: %v", s)
	}
	if node.CreatedAt.Format(time.RFC3339) != "2026-01-02T03:04:05Z" {
		t.Fatalf("created_at wrong: %v", node.CreatedAt)
	}
}

func TestNodeFromGenericWarnsAndDefaults(t *testing.T) {
	raw := genericNode("n1")
	raw["water_state"] = "steam"
	raw["fractal_layer"] = float64(99)
	raw["created_at"] = "not a time"

	node, warnings, err := NodeFromGeneric("n1", raw)
	if err != nil {
		t.Fatalf("recoverable record should not fail: %v", err)
	}
	if node.WaterState != WaterLiquid || node.FractalLayer != DefaultFractalLayer {
		t.Fatalf("fallbacks not applied: %+v", node)
	}
	if len(warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %v", warnings)
	}
	for _, w := range warnings {
		if !strings.Contains(w, "n1") {
			t.Fatalf("warning should name the record: %q", w)
		}
	}
}

func TestNodeFromGenericHardFailures(t *testing.T) {
	if _, _, err := NodeFromGeneric("", genericNode("n1")); err == nil {
		t.Fatal("expected error for empty id")
	}
	raw := genericNode("n1")
	raw["id"] = "other"
	if _, _, err := NodeFromGeneric("n1", raw); err == nil {
		t.Fatal("expected error for id mismatch")
	}
	raw = genericNode("n1")
	delete(raw, "type_tag")
	if _, _, err := NodeFromGeneric("n1", raw); err == nil {
		t.Fatal("expected error for missing type_tag")
	}
	raw = genericNode("n1")
	raw["payload"] = "not an object"
	if _, _, err := NodeFromGeneric("n1", raw); err == nil {
		t.Fatal("expected error for non-object payload")
	}
	raw = genericNode("n1")
	raw["children_ids"] = []any{"ok", 7}
	if _, _, err := NodeFromGeneric("n1", raw); err == nil {
		t.Fatal("expected error for non-string child id")
	}
}

func TestRelationshipFromGeneric(t *testing.T) {
	raw := map[string]any{
		"source_id":         "a",
		"target_id":         "b",
		"relationship_type": "supports",
		"strength":          0.8,
		"rationale":         "observed",
		"created_at":        "2026-01-02T03:04:05Z",
	}
	rec, warnings, err := RelationshipFromGeneric(raw)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if rec.SourceID != "a" || rec.Type != "supports" || rec.Strength != 0.8 {
		t.Fatalf("fields wrong: %+v", rec)
	}

	delete(raw, "relationship_type")
	if _, _, err := RelationshipFromGeneric(raw); err == nil {
		t.Fatal("expected error for missing relationship_type")
	}
}

func TestCrossReferenceFromGeneric(t *testing.T) {
	ref, _, err := CrossReferenceFromGeneric(map[string]any{
		"term": "water", "node_id": "n1", "weight": 0.9, "context": "chemistry",
	})
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if ref.Term != "water" || ref.NodeID != "n1" || ref.Context != "chemistry" {
		t.Fatalf("fields wrong: %+v", ref)
	}
	if _, _, err := CrossReferenceFromGeneric(map[string]any{"term": "water"}); err == nil {
		t.Fatal("expected error for missing node_id")
	}
}

func TestConsciousnessStateFromGeneric(t *testing.T) {
	st, warnings, err := ConsciousnessStateFromGeneric("agent-1", map[string]any{
		"consciousness_level": "sentient",
		"quantum_state":       "wobbly",
		"coherence_level":     0.7,
	})
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if st.Level != LevelSentient || st.QuantumState != QuantumCollapsed {
		t.Fatalf("enum handling wrong: %+v", st)
	}
	if st.CoherenceLevel != 0.7 || st.ResonanceStrength != 0.5 {
		t.Fatalf("numeric defaults wrong: %+v", st)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "quantum_state") && strings.Contains(w, "agent-1") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected quantum_state warning naming record, got %v", warnings)
	}
}

func TestToGenericRoundTrip(t *testing.T) {
	parent := "p1"
	var p Payload
	p.Set("k", IntValue(42))
	node, err := NewNode("n1", TypeFractalNode, "frac", p, &parent)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	node.AttachChild("c1")
	node.EnergyLevel = 2.5

	back, warnings, err := NodeFromGeneric("n1", node.ToGeneric())
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("round trip warned: %v", warnings)
	}
	if back.TypeTag != node.TypeTag || back.EnergyLevel != node.EnergyLevel {
		t.Fatalf("round trip changed fields: %+v", back)
	}
	if back.ParentID == nil || *back.ParentID != "p1" || len(back.ChildrenIDs) != 1 {
		t.Fatalf("round trip lost links: %+v", back)
	}
	v, _ := back.Payload.Get("k")
	if i, _ := v.AsInt(); i != 42 {
		t.Fatalf("round trip mangled payload: %v", i)
	}
}

func TestToGenericKeepsPayloadOrder(t *testing.T) {
	var p Payload
	p.Set("zeta", IntValue(1))
	p.Set("alpha", IntValue(2))
	node, err := NewNode("n1", TypeConcept, "ordered", p, nil)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	generic := node.ToGeneric()
	carried, ok := generic["payload"].(Payload)
	if !ok {
		t.Fatalf("payload serialized as %T, losing key order", generic["payload"])
	}
	if keys := carried.Keys(); len(keys) != 2 || keys[0] != "zeta" || keys[1] != "alpha" {
		t.Fatalf("payload order changed: %v", keys)
	}

	back, _, err := NodeFromGeneric("n1", generic)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if keys := back.Payload.Keys(); len(keys) != 2 || keys[0] != "zeta" || keys[1] != "alpha" {
		t.Fatalf("round trip reordered payload: %v", keys)
	}
}
