package memory

import (
	"context"
	"testing"

	"codexcore/pkg/domain"
)

func mustNode(t *testing.T, id string, tag domain.TypeTag, name string, parent *string) domain.Node {
	t.Helper()
	node, err := domain.NewNode(id, tag, name, domain.Payload{}, parent)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func TestCreateReadRoundTrip(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	node := mustNode(t, "n1", domain.TypeConcept, "Water", nil)
	res := store.CreateNode(ctx, node)
	if !res.Success || res.RowsAffected != 1 {
		t.Fatalf("create failed: %+v", res)
	}

	res = store.ReadNode(ctx, "n1")
	if !res.Success {
		t.Fatalf("read failed: %v", res.Err)
	}
	got, ok := res.NodeData()
	if !ok || got.Name != "Water" {
		t.Fatalf("read returned %+v", res.Data)
	}
}

func TestCreateDuplicateRejected(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	store.CreateNode(ctx, mustNode(t, "n1", domain.TypeConcept, "a", nil))
	res := store.CreateNode(ctx, mustNode(t, "n1", domain.TypeConcept, "b", nil))
	if res.Success {
		t.Fatal("duplicate create should fail")
	}
	if res.ErrKind() != domain.KindDuplicateKey {
		t.Fatalf("expected duplicate_key, got %s", res.ErrKind())
	}

	// a soft-deleted id still occupies the key space
	store.DeleteNode(ctx, "n1")
	res = store.CreateNode(ctx, mustNode(t, "n1", domain.TypeConcept, "c", nil))
	if res.Success {
		t.Fatal("create over tombstone should fail")
	}
}

func TestUpdateUpserts(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	node := mustNode(t, "n1", domain.TypeConcept, "before", nil)
	res := store.UpdateNode(ctx, node)
	if !res.Success {
		t.Fatalf("update as insert failed: %v", res.Err)
	}

	node.Name = "after"
	if res := store.UpdateNode(ctx, node); !res.Success {
		t.Fatalf("update failed: %v", res.Err)
	}
	got, _ := store.ReadNode(ctx, "n1").NodeData()
	if got.Name != "after" {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Fatal("updated_at must not precede created_at")
	}
}

func TestSoftDeleteSemantics(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	store.CreateNode(ctx, mustNode(t, "n1", domain.TypeConcept, "a", nil))

	res := store.DeleteNode(ctx, "n1")
	if !res.Success || res.RowsAffected != 1 {
		t.Fatalf("delete failed: %+v", res)
	}

	// idempotent: second delete succeeds touching nothing
	res = store.DeleteNode(ctx, "n1")
	if !res.Success || res.RowsAffected != 0 {
		t.Fatalf("second delete should be a no-op success: %+v", res)
	}
	res = store.DeleteNode(ctx, "missing")
	if !res.Success || res.RowsAffected != 0 {
		t.Fatalf("deleting absent node should succeed: %+v", res)
	}

	if res := store.ReadNode(ctx, "n1"); res.Success || res.ErrKind() != domain.KindNotFound {
		t.Fatalf("deleted node should read as not found: %+v", res)
	}
}

func TestQueryExcludesDeletedUnlessAsked(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	store.CreateNode(ctx, mustNode(t, "n1", domain.TypeConcept, "a", nil))
	store.CreateNode(ctx, mustNode(t, "n2", domain.TypeConcept, "b", nil))
	store.DeleteNode(ctx, "n1")

	res := store.QueryNodes(ctx, nil, domain.QueryOptions{})
	nodes, _ := res.NodesData()
	if len(nodes) != 1 || nodes[0].ID != "n2" {
		t.Fatalf("query should hide tombstones: %+v", nodes)
	}

	res = store.QueryNodes(ctx, []domain.Filter{{Field: "is_deleted", Op: domain.OpEq, Value: true}}, domain.QueryOptions{})
	nodes, _ = res.NodesData()
	if len(nodes) != 1 || nodes[0].ID != "n1" {
		t.Fatalf("explicit is_deleted filter should surface tombstones: %+v", nodes)
	}
}

func TestParentLinkMaintained(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	store.CreateNode(ctx, mustNode(t, "p1", domain.TypeConcept, "parent", nil))
	parent := "p1"
	store.CreateNode(ctx, mustNode(t, "c1", domain.TypeConcept, "child", &parent))
	store.CreateNode(ctx, mustNode(t, "c2", domain.TypeConcept, "child2", &parent))

	got, _ := store.ReadNode(ctx, "p1").NodeData()
	if len(got.ChildrenIDs) != 2 || got.ChildrenIDs[0] != "c1" || got.ChildrenIDs[1] != "c2" {
		t.Fatalf("parent children not maintained: %v", got.ChildrenIDs)
	}

	// dangling parent reference is tolerated
	ghost := "ghost"
	if res := store.CreateNode(ctx, mustNode(t, "c3", domain.TypeConcept, "orphan", &ghost)); !res.Success {
		t.Fatalf("dangling parent should not fail create: %v", res.Err)
	}
}

func TestQueryInsertionOrderIsDefault(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	for _, id := range []string{"z", "a", "m"} {
		store.CreateNode(ctx, mustNode(t, id, domain.TypeConcept, id, nil))
	}
	nodes, _ := store.QueryNodes(ctx, nil, domain.QueryOptions{}).NodesData()
	if nodes[0].ID != "z" || nodes[1].ID != "a" || nodes[2].ID != "m" {
		t.Fatalf("expected insertion order, got %v", []string{nodes[0].ID, nodes[1].ID, nodes[2].ID})
	}
}

func TestRelationshipLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	rec := domain.RelationshipRecord{SourceID: "a", TargetID: "b", Type: "supports", Strength: 0.4}
	if res := store.PutRelationship(ctx, rec); !res.Success {
		t.Fatalf("put failed: %v", res.Err)
	}

	// same composite key overwrites
	rec.Strength = 0.9
	rec.Rationale = "revised"
	if res := store.PutRelationship(ctx, rec); !res.Success {
		t.Fatalf("upsert failed: %v", res.Err)
	}
	other := domain.RelationshipRecord{SourceID: "b", TargetID: "c", Type: "contains", Strength: 0.2}
	store.PutRelationship(ctx, other)

	res := store.ListRelationships(ctx, "b")
	recs, _ := res.RelationshipsData()
	if len(recs) != 2 {
		t.Fatalf("expected both directions for b, got %+v", recs)
	}
	for _, r := range recs {
		if r.SourceID == "a" && (r.Strength != 0.9 || r.Rationale != "revised") {
			t.Fatalf("upsert not applied: %+v", r)
		}
	}

	if res := store.DeleteRelationship(ctx, "a", "b", "supports"); !res.Success || res.RowsAffected != 1 {
		t.Fatalf("delete failed: %+v", res)
	}
	if res := store.DeleteRelationship(ctx, "a", "b", "supports"); !res.Success || res.RowsAffected != 0 {
		t.Fatalf("second delete should be a no-op success: %+v", res)
	}

	recs, _ = store.ListRelationships(ctx, "b").RelationshipsData()
	if len(recs) != 1 || recs[0].Type != "contains" {
		t.Fatalf("unexpected remainder: %+v", recs)
	}
}

func TestPutRelationshipValidates(t *testing.T) {
	store := NewStore()
	res := store.PutRelationship(context.Background(), domain.RelationshipRecord{SourceID: "a", TargetID: "b", Type: "x", Strength: 2})
	if res.Success || res.ErrKind() != domain.KindValidation {
		t.Fatalf("expected validation failure: %+v", res)
	}
}

func TestCancelledContextReportsTimeout(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := store.ReadNode(ctx, "n1")
	if res.Success || res.ErrKind() != domain.KindTimeout {
		t.Fatalf("expected timeout kind, got %+v", res)
	}
}

func TestReturnedNodesAreCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	node := mustNode(t, "n1", domain.TypeConcept, "a", nil)
	store.CreateNode(ctx, node)

	got, _ := store.ReadNode(ctx, "n1").NodeData()
	got.Name = "mutated"
	got.Payload.Set("x", domain.IntValue(1))

	again, _ := store.ReadNode(ctx, "n1").NodeData()
	if again.Name != "a" || again.Payload.Len() != 0 {
		t.Fatalf("store state leaked through returned copy: %+v", again)
	}
}
