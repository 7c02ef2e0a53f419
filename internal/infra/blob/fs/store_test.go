package fs

import (
	"context"
	"io"
	"strings"
	"testing"

	"codexcore/internal/blob/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	info, err := store.Put(ctx, "snapshots/state.json", strings.NewReader(`{"a":1}`),
		core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"origin": "test"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 7 || info.ETag == "" || info.ContentType != "application/json" {
		t.Fatalf("unexpected info: %+v", info)
	}

	got, rc, err := store.Get(ctx, "snapshots/state.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Fatalf("content mismatch: %s", data)
	}
	if got.ETag != info.ETag || got.Metadata["origin"] != "test" {
		t.Fatalf("metadata mismatch: %+v", got)
	}
}

func TestPutOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, "k", strings.NewReader("old"), core.PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	info, err := store.Put(ctx, "k", strings.NewReader("newer"), core.PutOptions{})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if info.Size != 5 {
		t.Fatalf("overwrite size wrong: %d", info.Size)
	}
	_, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, _ := io.ReadAll(rc)
	if string(data) != "newer" {
		t.Fatalf("overwrite not applied: %s", data)
	}
}

func TestGetMissingReportsNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, _, err := store.Get(context.Background(), "missing"); err != core.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Head(context.Background(), "missing"); err != core.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKeySanitization(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"", "  ", "../escape", "/absolute", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestDeleteAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"a/one", "a/two", "b/three"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "a/one" || infos[1].Key != "a/two" {
		t.Fatalf("list wrong: %+v", infos)
	}

	existed, err := store.Delete(ctx, "a/one")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "a/one")
	if err != nil || existed {
		t.Fatalf("second delete should report absent: existed=%v err=%v", existed, err)
	}
}

func TestPresignOnlyGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	url, err := store.PresignURL(ctx, "k", core.SignedURLOptions{})
	if err != nil || url == "" {
		t.Fatalf("presign get: %v %q", err, url)
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); err != core.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
