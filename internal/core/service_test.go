package core_test

import (
	"context"
	"testing"
	"time"

	"codexcore/internal/blob"
	"codexcore/internal/core"
	memstore "codexcore/internal/infra/persistence/memory"
	"codexcore/internal/snapshot"
	"codexcore/pkg/domain"
)

func newTestService(t *testing.T, opts ...core.ServiceOption) *core.Service {
	t.Helper()
	svc := core.NewService(memstore.NewStore(), opts...)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func mustCreate(t *testing.T, svc *core.Service, id, name string) domain.Node {
	t.Helper()
	node, err := domain.NewNode(id, domain.TypeConcept, name, domain.Payload{}, nil)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	res := svc.CreateNode(context.Background(), node)
	if !res.Success {
		t.Fatalf("create %s: %v", id, res.Err)
	}
	created, _ := res.NodeData()
	return created
}

func TestCreateGeneratesIDWhenEmpty(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	node, err := domain.NewNode("placeholder", domain.TypeConcept, "anon", domain.Payload{}, nil)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	node.ID = ""
	res := svc.CreateNode(ctx, node)
	if !res.Success {
		t.Fatalf("create: %v", res.Err)
	}
	created, _ := res.NodeData()
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if read := svc.ReadNode(ctx, created.ID); !read.Success {
		t.Fatalf("generated id not readable: %v", read.Err)
	}
}

func TestServiceDelegatesCRUD(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, "n1", "one")
	mustCreate(t, svc, "n2", "two")

	if res := svc.DeleteNode(ctx, "n1"); !res.Success {
		t.Fatalf("delete: %v", res.Err)
	}
	res := svc.QueryNodes(ctx, nil, domain.QueryOptions{})
	nodes, _ := res.NodesData()
	if len(nodes) != 1 || nodes[0].ID != "n2" {
		t.Fatalf("query after delete wrong: %+v", nodes)
	}

	rec := domain.RelationshipRecord{SourceID: "n2", TargetID: "n1", Type: "recalls", Strength: 0.5}
	if res := svc.PutRelationship(ctx, rec); !res.Success {
		t.Fatalf("put relationship: %v", res.Err)
	}
	recs, _ := svc.ListRelationships(ctx, "n2").RelationshipsData()
	if len(recs) != 1 {
		t.Fatalf("list relationships wrong: %+v", recs)
	}
}

type captureRecorder struct {
	observed []string
	failures int
}

func (c *captureRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.observed = append(c.observed, op)
	if !success {
		c.failures++
	}
}

func TestMetricsObserveEveryOperation(t *testing.T) {
	rec := &captureRecorder{}
	svc := newTestService(t, core.WithMetricsRecorder(rec))
	ctx := context.Background()

	mustCreate(t, svc, "n1", "one")
	svc.ReadNode(ctx, "n1")
	svc.ReadNode(ctx, "missing")

	if len(rec.observed) != 3 {
		t.Fatalf("expected 3 observations, got %v", rec.observed)
	}
	if rec.observed[0] != string(domain.OpCreateNode) || rec.observed[1] != string(domain.OpReadNode) {
		t.Fatalf("operation labels wrong: %v", rec.observed)
	}
	if rec.failures != 1 {
		t.Fatalf("expected 1 failed observation, got %d", rec.failures)
	}
}

func TestExpvarRecorderAggregates(t *testing.T) {
	rec := core.NewExpvarMetricsRecorder("")
	ctx := context.Background()
	rec.Observe(ctx, "create_node", true, 10*time.Millisecond)
	rec.Observe(ctx, "create_node", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond) // ignored

	snap := rec.Snapshot()
	if snap.Results["create_node"]["success"] != 1 || snap.Results["create_node"]["error"] != 1 {
		t.Fatalf("counters wrong: %+v", snap.Results)
	}
	if snap.DurationsMS["create_node"] < 15 {
		t.Fatalf("durations wrong: %+v", snap.DurationsMS)
	}
	if rec.Name() == "" {
		t.Fatal("expected generated export name")
	}
}

func TestCrossReferenceRegistry(t *testing.T) {
	svc := newTestService(t)

	if err := svc.PutCrossReference(domain.CrossReference{Term: "water", NodeID: "n1", Weight: 0.5}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := svc.PutCrossReference(domain.CrossReference{Term: "water", NodeID: "n2", Weight: 0.9}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := svc.PutCrossReference(domain.CrossReference{Term: "", NodeID: "n1"}); err == nil {
		t.Fatal("expected validation error for empty term")
	}

	refs := svc.ResolveTerm("water")
	if len(refs) != 2 || refs[0].NodeID != "n2" {
		t.Fatalf("expected highest weight first: %+v", refs)
	}
	if !svc.DeleteCrossReference("water", "n1") {
		t.Fatal("delete should report existing mapping")
	}
	if svc.DeleteCrossReference("water", "n1") {
		t.Fatal("second delete should report absent")
	}
	if refs := svc.ResolveTerm("fire"); len(refs) != 0 {
		t.Fatalf("unknown term should resolve empty: %+v", refs)
	}
}

func TestConsciousnessStateRegistry(t *testing.T) {
	svc := newTestService(t)

	st := domain.ConsciousnessState{Level: domain.LevelMetaCognitive, QuantumState: domain.QuantumEntangled}
	if err := svc.PutConsciousnessState("agent-1", st); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := svc.PutConsciousnessState("", st); err == nil {
		t.Fatal("expected validation error for empty id")
	}
	got, ok := svc.ConsciousnessStateOf("agent-1")
	if !ok || got.Level != domain.LevelMetaCognitive {
		t.Fatalf("state lookup wrong: %+v ok=%v", got, ok)
	}
	if _, ok := svc.ConsciousnessStateOf("agent-2"); ok {
		t.Fatal("unknown agent should miss")
	}
}

func TestSaveAndLoadSystemState(t *testing.T) {
	archive := blob.NewMemory()
	mgr := snapshot.NewManager(archive)
	svc := newTestService(t, core.WithSnapshotManager(mgr))
	ctx := context.Background()

	mustCreate(t, svc, "water", "Water")
	mustCreate(t, svc, "fire", "Fire")
	svc.PutRelationship(ctx, domain.RelationshipRecord{SourceID: "water", TargetID: "fire", Type: "opposes", Strength: 1})
	_ = svc.PutCrossReference(domain.CrossReference{Term: "H2O", NodeID: "water", Weight: 1})
	_ = svc.PutConsciousnessState("water", domain.ConsciousnessState{Level: domain.LevelAwake})

	if !svc.SaveSystemState(ctx) {
		t.Fatal("save should succeed")
	}

	// restore into a fresh service over an empty store
	restored := newTestService(t, core.WithSnapshotManager(mgr))
	if !restored.LoadSystemState(ctx) {
		t.Fatal("load should succeed")
	}
	nodes, _ := restored.QueryNodes(ctx, nil, domain.QueryOptions{}).NodesData()
	if len(nodes) != 2 {
		t.Fatalf("expected 2 restored nodes, got %+v", nodes)
	}
	recs, _ := restored.ListRelationships(ctx, "water").RelationshipsData()
	if len(recs) != 1 || recs[0].Type != "opposes" {
		t.Fatalf("relationship not restored: %+v", recs)
	}
	if refs := restored.ResolveTerm("H2O"); len(refs) != 1 || refs[0].NodeID != "water" {
		t.Fatalf("cross reference not restored: %+v", refs)
	}
	if _, ok := restored.ConsciousnessStateOf("water"); !ok {
		t.Fatal("consciousness state not restored")
	}
}

func TestLoadMergesOverLiveStore(t *testing.T) {
	mgr := snapshot.NewManager(blob.NewMemory())
	svc := newTestService(t, core.WithSnapshotManager(mgr))
	ctx := context.Background()

	mustCreate(t, svc, "archived", "Archived")
	if !svc.SaveSystemState(ctx) {
		t.Fatal("save should succeed")
	}

	// created after the save, so absent from the archive
	mustCreate(t, svc, "extra", "Extra")

	if !svc.LoadSystemState(ctx) {
		t.Fatal("load should succeed")
	}
	nodes, _ := svc.QueryNodes(ctx, nil, domain.QueryOptions{}).NodesData()
	if len(nodes) != 2 {
		t.Fatalf("merge restore must keep live nodes, got %+v", nodes)
	}
	if read := svc.ReadNode(ctx, "extra"); !read.Success {
		t.Fatalf("node outside the archive must survive: %v", read.Err)
	}
}

func TestSnapshotWithoutManagerFailsSoft(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if svc.SaveSystemState(ctx) {
		t.Fatal("save without manager should report failure")
	}
	if svc.LoadSystemState(ctx) {
		t.Fatal("load without manager should report failure")
	}
}

func TestLoadMissingArchiveFailsSoft(t *testing.T) {
	mgr := snapshot.NewManager(blob.NewMemory())
	svc := newTestService(t, core.WithSnapshotManager(mgr))
	if svc.LoadSystemState(context.Background()) {
		t.Fatal("load from empty archive should report failure")
	}
}
