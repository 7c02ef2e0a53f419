package domain

import (
	"fmt"
	"time"
)

// The FromGeneric constructors rebuild typed records from the raw maps a
// snapshot document decodes to. They are explicit and per-type rather than
// reflective so the snapshot loader can treat each record as independently
// failable: a returned error means the caller should keep the raw form.
// Returned warnings describe recoverable substitutions (unknown enum tags,
// unparseable timestamps) that defaulted instead of failing.

// NodeFromGeneric reconstructs a Node from its serialized attribute map.
// id is the record's key in the snapshot collection; an id attribute inside
// raw, when present, must agree with it.
func NodeFromGeneric(id string, raw map[string]any) (Node, []string, error) {
	if id == "" {
		return Node{}, nil, Validationf("node record has empty id")
	}
	if inner, ok := stringAttr(raw, "id"); ok && inner != id {
		return Node{}, nil, Validationf("node %s: id attribute %q disagrees with record key", id, inner)
	}
	tag, ok := stringAttr(raw, "type_tag")
	if !ok || tag == "" {
		return Node{}, nil, Validationf("node %s: missing type_tag", id)
	}

	var warnings []string
	node := Node{ID: id, TypeTag: TypeTag(tag)}
	node.Name, _ = stringAttr(raw, "name")

	switch pv := raw["payload"].(type) {
	case nil:
	case map[string]any:
		p, err := PayloadFromMap(pv)
		if err != nil {
			return Node{}, nil, Validationf("node %s: payload: %v", id, err)
		}
		node.Payload = p
	case Payload:
		node.Payload = pv
	default:
		return Node{}, nil, Validationf("node %s: payload has type %T, expected object", id, raw["payload"])
	}

	if parent, ok := stringAttr(raw, "parent_id"); ok && parent != "" {
		node.ParentID = &parent
	}
	children, err := stringSliceAttr(raw, "children_ids")
	if err != nil {
		return Node{}, nil, Validationf("node %s: %v", id, err)
	}
	node.ChildrenIDs = children

	node.WaterState, warnings = parseEnumAttr(raw, "water_state", id, warnings, ParseWaterState)
	node.EpistemicLabel, warnings = parseEnumAttr(raw, "epistemic_label", id, warnings, ParseEpistemicLabel)

	if f, ok := floatAttr(raw, "energy_level"); ok {
		node.EnergyLevel = f
	}
	layerRaw, hasLayer := floatAttr(raw, "fractal_layer")
	layer, known := ParseFractalLayer(int(layerRaw))
	node.FractalLayer = layer
	if hasLayer && !known {
		warnings = append(warnings, fmt.Sprintf("node %s: fractal_layer %v out of range, using %d", id, layerRaw, DefaultFractalLayer))
	}

	node.CreatedAt, warnings = timeAttr(raw, "created_at", id, warnings)
	node.UpdatedAt, warnings = timeAttr(raw, "updated_at", id, warnings)
	if node.UpdatedAt.Before(node.CreatedAt) {
		node.UpdatedAt = node.CreatedAt
	}
	if b, ok := raw["is_deleted"].(bool); ok {
		node.Deleted = b
	}
	return node, warnings, nil
}

// RelationshipFromGeneric reconstructs a RelationshipRecord from its
// serialized attribute map.
func RelationshipFromGeneric(raw map[string]any) (RelationshipRecord, []string, error) {
	rec := RelationshipRecord{}
	var ok bool
	if rec.SourceID, ok = stringAttr(raw, "source_id"); !ok {
		return RelationshipRecord{}, nil, Validationf("relationship record missing source_id")
	}
	if rec.TargetID, ok = stringAttr(raw, "target_id"); !ok {
		return RelationshipRecord{}, nil, Validationf("relationship record missing target_id")
	}
	if rec.Type, ok = stringAttr(raw, "relationship_type"); !ok {
		return RelationshipRecord{}, nil, Validationf("relationship %s->%s missing relationship_type", rec.SourceID, rec.TargetID)
	}
	if f, ok := floatAttr(raw, "strength"); ok {
		rec.Strength = f
	}
	rec.Rationale, _ = stringAttr(raw, "rationale")
	var warnings []string
	rec.CreatedAt, warnings = timeAttr(raw, "created_at", rec.Key(), warnings)
	if err := rec.Validate(); err != nil {
		return RelationshipRecord{}, nil, err
	}
	return rec, warnings, nil
}

// CrossReferenceFromGeneric reconstructs a CrossReference from its serialized
// attribute map.
func CrossReferenceFromGeneric(raw map[string]any) (CrossReference, []string, error) {
	ref := CrossReference{}
	var ok bool
	if ref.Term, ok = stringAttr(raw, "term"); !ok {
		return CrossReference{}, nil, Validationf("cross reference record missing term")
	}
	if ref.NodeID, ok = stringAttr(raw, "node_id"); !ok {
		return CrossReference{}, nil, Validationf("cross reference %s missing node_id", ref.Term)
	}
	ref.Context, _ = stringAttr(raw, "context")
	if f, ok := floatAttr(raw, "weight"); ok {
		ref.Weight = f
	}
	var warnings []string
	ref.CreatedAt, warnings = timeAttr(raw, "created_at", ref.Key(), warnings)
	if err := ref.Validate(); err != nil {
		return CrossReference{}, nil, err
	}
	return ref, warnings, nil
}

// ConsciousnessStateFromGeneric reconstructs the enumerated-state record kept
// per agent. Unknown enum tags fall back with a warning; missing numeric
// fields default to the original system's neutral 0.5.
func ConsciousnessStateFromGeneric(id string, raw map[string]any) (ConsciousnessState, []string, error) {
	if raw == nil {
		return ConsciousnessState{}, nil, Validationf("state %s: empty record", id)
	}
	var warnings []string
	st := ConsciousnessState{CoherenceLevel: 0.5, ResonanceStrength: 0.5}
	st.Level, warnings = parseEnumAttr(raw, "consciousness_level", id, warnings, ParseConsciousnessLevel)
	st.QuantumState, warnings = parseEnumAttr(raw, "quantum_state", id, warnings, ParseQuantumState)
	st.WaterState, warnings = parseEnumAttr(raw, "water_state", id, warnings, ParseWaterState)
	st.EpistemicLabel, warnings = parseEnumAttr(raw, "epistemic_label", id, warnings, ParseEpistemicLabel)
	if f, ok := floatAttr(raw, "coherence_level"); ok {
		st.CoherenceLevel = f
	}
	if f, ok := floatAttr(raw, "resonance_strength"); ok {
		st.ResonanceStrength = f
	}
	st.CreatedAt, warnings = timeAttr(raw, "created_at", id, warnings)
	return st, warnings, nil
}

// Serialize helpers emit the generic form consumed by the constructors above.
// Enumerated fields are emitted as their plain string tag. The payload is
// carried as its ordered Payload value, not a plain map, so key order
// survives JSON marshalling.

// ToGeneric serializes a node to its attribute map.
func (n Node) ToGeneric() map[string]any {
	out := map[string]any{
		"id":              n.ID,
		"type_tag":        string(n.TypeTag),
		"name":            n.Name,
		"payload":         n.Payload.Clone(),
		"children_ids":    append([]string(nil), n.ChildrenIDs...),
		"water_state":     string(n.WaterState),
		"energy_level":    n.EnergyLevel,
		"fractal_layer":   int(n.FractalLayer),
		"epistemic_label": string(n.EpistemicLabel),
		"created_at":      n.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":      n.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if n.ParentID != nil {
		out["parent_id"] = *n.ParentID
	}
	if n.Deleted {
		out["is_deleted"] = true
	}
	return out
}

// ToGeneric serializes a relationship record to its attribute map.
func (r RelationshipRecord) ToGeneric() map[string]any {
	return map[string]any{
		"source_id":         r.SourceID,
		"target_id":         r.TargetID,
		"relationship_type": r.Type,
		"strength":          r.Strength,
		"rationale":         r.Rationale,
		"created_at":        r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ToGeneric serializes the cross reference to its attribute map.
func (c CrossReference) ToGeneric() map[string]any {
	return map[string]any{
		"term":       c.Term,
		"node_id":    c.NodeID,
		"context":    c.Context,
		"weight":     c.Weight,
		"created_at": c.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ToGeneric serializes the state record to its attribute map.
func (s ConsciousnessState) ToGeneric() map[string]any {
	return map[string]any{
		"consciousness_level": string(s.Level),
		"quantum_state":       string(s.QuantumState),
		"water_state":         string(s.WaterState),
		"coherence_level":     s.CoherenceLevel,
		"resonance_strength":  s.ResonanceStrength,
		"created_at":          s.CreatedAt.UTC().Format(time.RFC3339Nano),
		"epistemic_label":     string(s.EpistemicLabel),
	}
}

func stringAttr(raw map[string]any, key string) (string, bool) {
	s, ok := raw[key].(string)
	return s, ok
}

func floatAttr(raw map[string]any, key string) (float64, bool) {
	switch t := raw[key].(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func stringSliceAttr(raw map[string]any, key string) ([]string, error) {
	switch t := raw[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%s contains non-string element %T", key, e)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s has type %T, expected string list", key, raw[key])
}

func timeAttr(raw map[string]any, key, id string, warnings []string) (time.Time, []string) {
	s, ok := stringAttr(raw, key)
	if !ok || s == "" {
		return time.Now().UTC(), warnings
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, warnings
		}
	}
	warnings = append(warnings, fmt.Sprintf("%s: unparseable %s %q, using current time", id, key, s))
	return time.Now().UTC(), warnings
}

func parseEnumAttr[T ~string](raw map[string]any, key, id string, warnings []string, parse func(string) (T, bool)) (T, []string) {
	s, present := stringAttr(raw, key)
	v, known := parse(s)
	if present && !known {
		warnings = append(warnings, fmt.Sprintf("%s: unknown %s %q, using %q", id, key, s, string(v)))
	}
	return v, warnings
}
