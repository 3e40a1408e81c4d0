package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/shiori/internal/chunker"
	"github.com/hyperjump/shiori/internal/config"
	"github.com/hyperjump/shiori/internal/embedding"
	"github.com/hyperjump/shiori/internal/extract"
	"github.com/hyperjump/shiori/internal/gateway"
	"github.com/hyperjump/shiori/internal/loader"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/pipeline"
	"github.com/hyperjump/shiori/internal/splitter"
	"github.com/hyperjump/shiori/internal/vector"
)

func setupTestServer(t *testing.T, opts ...Option) (*Server, http.Handler) {
	t.Helper()
	ctx := context.Background()
	s, err := splitter.New(200, 20)
	if err != nil {
		t.Fatal(err)
	}
	client, err := vector.NewMemoryClient("", embedding.NewHashEmbedder(64), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = client.Close() })
	gw, err := gateway.New(ctx, client, gateway.Config{CollectionName: "api"})
	if err != nil {
		t.Fatal(err)
	}
	p := pipeline.New(loader.New(extract.NewExtractor(), nil), chunker.NewAssembler(s), gw)
	srv := NewServer(p, &config.ServerConfig{Host: "localhost", Port: 0}, nil, opts...)
	return srv, srv.Handler()
}

func docsFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"go.txt":    "Channels let goroutines communicate safely.",
		"bread.txt": "Sourdough needs a lively starter and patience.",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	msg, _ := resp["error"].(string)
	return msg
}

func TestHandleHealth(t *testing.T) {
	_, h := setupTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleIngest_thenQuery(t *testing.T) {
	_, h := setupTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/ingest", map[string]string{"folder": docsFolder(t)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d: %s", rec.Code, rec.Body.String())
	}
	var ingest map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&ingest); err != nil {
		t.Fatal(err)
	}
	if ingest["chunks"] != 2 {
		t.Errorf("chunks = %d, want 2", ingest["chunks"])
	}

	rec = do(t, h, http.MethodPost, "/api/v1/query", models.Query{Query: "goroutines channels", NResults: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("query status = %d: %s", rec.Code, rec.Body.String())
	}
	var result models.QueryResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(result.Matches))
	}
	if got := result.Matches[0].Metadata[models.MetaFilename]; got != "go.txt" {
		t.Errorf("top filename = %q", got)
	}
}

func TestHandleIngest_errors(t *testing.T) {
	_, h := setupTestServer(t)
	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"invalid body", "{not json", http.StatusBadRequest},
		{"missing folder", map[string]string{}, http.StatusBadRequest},
		{"folder not found", map[string]string{"folder": filepath.Join(t.TempDir(), "nope")}, http.StatusNotFound},
		{"no documents", map[string]string{"folder": t.TempDir()}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/ingest", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHandleQuery_errors(t *testing.T) {
	_, h := setupTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/query", models.Query{Query: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank query status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/query", "nope")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/query", models.Query{Query: "anything"})
	if rec.Code != http.StatusConflict {
		t.Errorf("empty collection status = %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg == "" {
		t.Error("expected error message")
	}
}

func TestHandleStatsAndReset(t *testing.T) {
	_, h := setupTestServer(t)
	if rec := do(t, h, http.MethodPost, "/api/v1/ingest", map[string]string{"folder": docsFolder(t)}); rec.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/api/v1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats models.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalChunks != 2 || stats.CollectionName != "api" {
		t.Errorf("stats = %+v", stats)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/stats", nil)
	stats = models.Stats{}
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalChunks != 0 {
		t.Errorf("after reset total = %d", stats.TotalChunks)
	}
}

type stubService struct {
	err error
}

func (s stubService) Ingest(context.Context, string, ...pipeline.IngestOption) (int, error) {
	return 0, s.err
}
func (s stubService) Search(context.Context, string, int) (*models.QueryResult, error) {
	return nil, s.err
}
func (s stubService) Stats(context.Context) (models.Stats, error) { return models.Stats{}, s.err }
func (s stubService) Reset(context.Context) error                 { return s.err }

func TestHandleIngest_partialFailureReportsAdded(t *testing.T) {
	partial := &gateway.PartialIngestionError{Added: 3, Total: 8, Err: errors.New("disk full")}
	srv := NewServer(stubService{err: partial}, &config.ServerConfig{}, nil)
	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/ingest", map[string]string{"folder": "/x"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["added"] != float64(3) || resp["total"] != float64(8) {
		t.Errorf("resp = %v", resp)
	}
}

func TestHandleReset_failure(t *testing.T) {
	srv := NewServer(stubService{err: errors.New("boom")}, &config.ServerConfig{}, nil)
	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/reset", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

type fakeWatch struct {
	dirs []string
}

func (f *fakeWatch) Directories() []string { return f.dirs }
func (f *fakeWatch) AddDirectory(path string, _ bool) error {
	f.dirs = append(f.dirs, path)
	return nil
}
func (f *fakeWatch) RemoveDirectory(path string) error {
	for i, d := range f.dirs {
		if d == path {
			f.dirs = append(f.dirs[:i], f.dirs[i+1:]...)
		}
	}
	return nil
}

func TestWatchDirectories(t *testing.T) {
	_, h := setupTestServer(t)
	if rec := do(t, h, http.MethodGet, "/api/v1/watch/directories", nil); rec.Code != http.StatusNotImplemented {
		t.Errorf("without watch status = %d", rec.Code)
	}

	fw := &fakeWatch{}
	_, h = setupTestServer(t, WithWatch(fw))
	dir := t.TempDir()
	rec := do(t, h, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": dir})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": filepath.Join(dir, "missing")})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing dir status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/watch/directories", nil)
	var list struct {
		Directories []string `json:"directories"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Directories) != 1 {
		t.Errorf("directories = %v", list.Directories)
	}
	rec = do(t, h, http.MethodDelete, "/api/v1/watch/directories?path="+dir, nil)
	if rec.Code != http.StatusOK || len(fw.dirs) != 0 {
		t.Errorf("remove status = %d dirs = %v", rec.Code, fw.dirs)
	}
}
