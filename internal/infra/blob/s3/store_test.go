package s3

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"codexcore/internal/blob/core"
)

func TestMockedBasicFlow(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if store.Driver() != core.DriverS3 {
		t.Fatalf("expected s3 driver, got %s", store.Driver())
	}

	info, err := store.Put(ctx, "archive/state.json", bytes.NewReader([]byte(`{"v":1}`)), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "archive/state.json" || info.ContentType != "application/json" || info.Size < 7 {
		t.Fatalf("unexpected info %#v", info)
	}
	if _, err := store.Head(ctx, "archive/state.json"); err != nil {
		t.Fatalf("head: %v", err)
	}
	_, rc, err := store.Get(ctx, "archive/state.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != `{"v":1}` {
		t.Fatalf("get mismatch: %q", string(data))
	}
	if url, err := store.PresignURL(ctx, "archive/state.json", core.SignedURLOptions{}); err != nil || url == "" {
		t.Fatalf("presign: %v %s", err, url)
	}
	if ok, err := store.Delete(ctx, "archive/state.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
}

func TestPutOverwrites(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()

	if _, err := store.Put(ctx, "state.json", bytes.NewReader([]byte("first")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "state.json", bytes.NewReader([]byte("second")), core.PutOptions{}); err != nil {
		t.Fatalf("overwrite put: %v", err)
	}
	_, rc, err := store.Get(ctx, "state.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "second" {
		t.Fatalf("overwrite not visible: %q", string(data))
	}
}

func TestListPaginates(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()

	for _, key := range []string{"snap/a.json", "snap/b.json"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "snap/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "snap/a.json" || infos[1].Key != "snap/b.json" {
		t.Fatalf("expected both keys across pages, got %+v", infos)
	}
	if infos, err := store.List(ctx, "elsewhere/"); err != nil || len(infos) != 0 {
		t.Fatalf("expected empty list: %v %+v", err, infos)
	}
}

func TestErrorPaths(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()

	if _, err := store.Head(ctx, "missing"); err == nil {
		t.Fatal("expected head error for missing key")
	}
	if _, _, err := store.Get(ctx, "missing"); err == nil {
		t.Fatal("expected get error for missing key")
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); err != core.ErrUnsupported {
		t.Fatalf("expected unsupported presign method, got %v", err)
	}
}

func TestPresignCustomExpiry(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k.json", bytes.NewReader([]byte("body")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if url, err := store.PresignURL(ctx, "k.json", core.SignedURLOptions{Expiry: 30 * time.Second}); err != nil || url == "" {
		t.Fatalf("presign custom expiry: %v %s", err, url)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestOpenFromEnv(t *testing.T) {
	t.Setenv("CODEXCORE_BLOB_S3_BUCKET", "")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatal("expected error without bucket")
	}

	t.Setenv("CODEXCORE_BLOB_S3_BUCKET", "env-bucket")
	t.Setenv("CODEXCORE_BLOB_S3_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	store, err := OpenFromEnv(context.Background())
	if err != nil {
		t.Fatalf("open from env: %v", err)
	}
	if store.Driver() != core.DriverS3 {
		t.Fatalf("expected s3 driver, got %s", store.Driver())
	}
}

func TestFromHeadNilBranches(t *testing.T) {
	store := NewMockForTests()
	info := store.fromHead("k", 10, nil, strPtr("\"etagval\""), map[string]string{"x": "y"}, nil)
	if info.ETag != "etagval" || info.ContentType != "" || info.Key != "k" || info.Size != 10 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestDecodeChunked(t *testing.T) {
	if _, ok := decodeChunked([]byte("not-chunked")); ok {
		t.Fatal("plain payload must not decode")
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatal("size mismatch must fail")
	}
	if b, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected hello, got %q ok=%v", string(b), ok)
	}
}

func strPtr(s string) *string { return &s }
