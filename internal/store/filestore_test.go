package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFileService implements the remote file-store wire contract in memory:
// GET returns {content, version}, PUT checks expected_version and returns 409
// on a stale tag.
type fakeFileService struct {
	mu       sync.Mutex
	files    map[string]json.RawMessage
	versions map[string]int
	// failPuts forces the next N PUTs to return a stale-tag conflict.
	failPuts int
}

func newFakeFileService() *fakeFileService {
	return &fakeFileService{
		files:    make(map[string]json.RawMessage),
		versions: make(map[string]int),
	}
}

func (s *fakeFileService) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		name := strings.TrimPrefix(r.URL.Path, "/")
		switch r.Method {
		case http.MethodGet:
			content, ok := s.files[name]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"content": json.RawMessage(content),
				"version": fmt.Sprintf("v%d", s.versions[name]),
			})

		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			var req struct {
				Content         json.RawMessage `json:"content"`
				ExpectedVersion string          `json:"expected_version"`
			}
			if err := json.Unmarshal(body, &req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if s.failPuts > 0 {
				s.failPuts--
				w.WriteHeader(http.StatusConflict)
				return
			}
			current := ""
			if _, ok := s.files[name]; ok {
				current = fmt.Sprintf("v%d", s.versions[name])
			}
			if req.ExpectedVersion != current {
				w.WriteHeader(http.StatusConflict)
				return
			}
			s.files[name] = req.Content
			s.versions[name]++
			_ = json.NewEncoder(w).Encode(map[string]string{
				"version": fmt.Sprintf("v%d", s.versions[name]),
			})

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newTestFileStore(t *testing.T) (*FileStore, *fakeFileService) {
	t.Helper()
	svc := newFakeFileService()
	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)
	return NewFileStore(srv.URL, "test-token"), svc
}

func TestFileStore_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestFileStore(t)

	v, err := fs.Put(ctx, "documents", "d1", testRecord{Name: "landing"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	rec, err := fs.Get(ctx, "documents", "d1")
	require.NoError(t, err)
	assert.Equal(t, "1", rec.Version)

	var out testRecord
	require.NoError(t, Decode(rec, &out))
	assert.Equal(t, "landing", out.Name)
}

func TestFileStore_MissingRecord(t *testing.T) {
	fs, _ := newTestFileStore(t)
	_, err := fs.Get(context.Background(), "documents", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_RecordPreconditionConflict(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestFileStore(t)

	v1, err := fs.Put(ctx, "documents", "d", testRecord{Name: "v1"}, nil)
	require.NoError(t, err)

	_, err = fs.Put(ctx, "documents", "d", testRecord{Name: "a"}, &Precondition{Version: v1})
	require.NoError(t, err)

	// Second writer holds the stale record version; must surface a conflict,
	// not silently overwrite the first writer.
	_, err = fs.Put(ctx, "documents", "d", testRecord{Name: "b"}, &Precondition{Version: v1})
	assert.ErrorIs(t, err, ErrConflict)

	rec, err := fs.Get(ctx, "documents", "d")
	require.NoError(t, err)
	var out testRecord
	require.NoError(t, Decode(rec, &out))
	assert.Equal(t, "a", out.Name)
}

func TestFileStore_StaleFileTagRetried(t *testing.T) {
	ctx := context.Background()
	fs, svc := newTestFileStore(t)

	_, err := fs.Put(ctx, "jobs", "j", testRecord{Name: "one"}, nil)
	require.NoError(t, err)

	// Force two stale-tag rejections; the store must re-read and succeed.
	svc.mu.Lock()
	svc.failPuts = 2
	svc.mu.Unlock()

	_, err = fs.Put(ctx, "jobs", "j", testRecord{Name: "two"}, nil)
	require.NoError(t, err)

	rec, err := fs.Get(ctx, "jobs", "j")
	require.NoError(t, err)
	var out testRecord
	require.NoError(t, Decode(rec, &out))
	assert.Equal(t, "two", out.Name)
}

func TestFileStore_SlugUniqueness(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestFileStore(t)

	_, err := fs.Put(ctx, "slugs", "spring-sale", map[string]string{"document_id": "d1"}, &Precondition{Absent: true})
	require.NoError(t, err)

	_, err = fs.Put(ctx, "slugs", "spring-sale", map[string]string{"document_id": "d2"}, &Precondition{Absent: true})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestFileStore_Append(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestFileStore(t)

	_, err := fs.Put(ctx, "documents", "d", testRecord{Name: "doc"}, nil)
	require.NoError(t, err)

	require.NoError(t, fs.Append(ctx, "documents", "d", "events", "view"))

	rec, err := fs.Get(ctx, "documents", "d")
	require.NoError(t, err)
	var out testRecord
	require.NoError(t, Decode(rec, &out))
	assert.Equal(t, []string{"view"}, out.Events)
}
