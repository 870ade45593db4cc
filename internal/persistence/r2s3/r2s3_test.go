package r2s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestClient_PutSignsRequest(t *testing.T) {
	var (
		mu   sync.Mutex
		got  *http.Request
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		got, body = r, string(b)
		mu.Unlock()
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, Bucket: "mines", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Put(context.Background(), "/agents/miner-1/world.snap.zst", strings.NewReader("hello"), 5); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if got.Method != http.MethodPut || got.URL.Path != "/mines/agents/miner-1/world.snap.zst" || body != "hello" {
		t.Fatalf("request: %s %s body=%q", got.Method, got.URL.Path, body)
	}
	auth := got.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AK/") || !strings.Contains(auth, "/auto/s3/aws4_request") {
		t.Fatalf("authorization: %q", auth)
	}
	if got.Header.Get("Content-Type") != "application/zstd" {
		t.Fatalf("content type: %q", got.Header.Get("Content-Type"))
	}
}

func TestClient_RejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Endpoint: "r2.example.com", Bucket: "b"}); err == nil {
		t.Fatalf("expected missing credentials to fail")
	}
	if k := normalizeObjectKey("../../etc/passwd"); k != "etc/passwd" {
		t.Fatalf("normalize: %q", k)
	}
}

type flakyUploader struct {
	mu    sync.Mutex
	fails int
	keys  []string
}

func (f *flakyUploader) PutFile(ctx context.Context, key, local string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("503")
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirror_RetriesAndKeys(t *testing.T) {
	dir := t.TempDir()
	seg := filepath.Join(dir, "agents", "miner-1", "events", "mining-2026-03-01-10.jsonl.zst")
	if err := os.MkdirAll(filepath.Dir(seg), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(seg, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	up := &flakyUploader{fails: 2}
	m := NewMirror(up, dir, "prod", 1, nil)
	m.backoff = time.Millisecond
	m.Enqueue(seg)
	m.Enqueue(filepath.Join(t.TempDir(), "elsewhere.zst"))
	m.Close()

	st := m.Stats()
	if st.Enqueued != 2 || st.Uploaded != 1 || st.Failed != 0 {
		t.Fatalf("stats: %+v", st)
	}
	if len(up.keys) != 1 || up.keys[0] != "prod/agents/miner-1/events/mining-2026-03-01-10.jsonl.zst" {
		t.Fatalf("keys: %v", up.keys)
	}
}
