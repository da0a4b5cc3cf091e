package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failPut bool
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if m.failPut {
		return errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memStore) Get(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), ObjectInfo{Key: key, Size: int64(len(data)), ContentType: m.types[key], LastModified: time.Now()}, nil
}

func (m *memStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ObjectInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memStore) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	objs, _ := m.List(ctx, prefix)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range objs {
		delete(m.objects, o.Key)
	}
	return len(objs), nil
}

func stemServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/out/vocals.wav":
			_, _ = w.Write([]byte("vocal-bytes"))
		case "/out/no-ext":
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte("inst-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestArchiveStemStoresObject(t *testing.T) {
	store := newMemStore()
	server := stemServer(t)
	archive := NewStemArchive(store)

	got, err := archive.ArchiveStem(context.Background(), 7, "vocals", server.URL+"/out/vocals.wav?sig=abc")
	if err != nil {
		t.Fatalf("ArchiveStem: %v", err)
	}
	if got != "/static/stems/7/vocals.wav" {
		t.Fatalf("unexpected url %q", got)
	}
	if string(store.objects["stems/7/vocals.wav"]) != "vocal-bytes" {
		t.Fatalf("object not stored: %v", store.objects)
	}

	got, err = archive.ArchiveStem(context.Background(), 7, "instrumental", server.URL+"/out/no-ext")
	if err != nil {
		t.Fatalf("ArchiveStem: %v", err)
	}
	if got != "/static/stems/7/instrumental.mp3" || store.types["stems/7/instrumental.mp3"] != "audio/mpeg" {
		t.Fatalf("unexpected result %q %v", got, store.types)
	}
}

func TestArchiveStemErrors(t *testing.T) {
	server := stemServer(t)

	if _, err := NewStemArchive(newMemStore()).ArchiveStem(context.Background(), 1, "vocals", server.URL+"/missing.mp3"); err == nil {
		t.Fatal("expected error for 404 source")
	}

	store := newMemStore()
	store.failPut = true
	if _, err := NewStemArchive(store).ArchiveStem(context.Background(), 1, "vocals", server.URL+"/out/vocals.wav"); err == nil {
		t.Fatal("expected error when the bucket rejects the object")
	}
}

func TestRemoveTrackOnlyTouchesItsPrefix(t *testing.T) {
	store := newMemStore()
	store.objects["stems/1/vocals.mp3"] = []byte("a")
	store.objects["stems/1/instrumental.mp3"] = []byte("b")
	store.objects["stems/10/vocals.mp3"] = []byte("c")

	if err := NewStemArchive(store).RemoveTrack(context.Background(), 1); err != nil {
		t.Fatalf("RemoveTrack: %v", err)
	}
	if len(store.objects) != 1 || store.objects["stems/10/vocals.mp3"] == nil {
		t.Fatalf("unexpected remaining objects %v", store.objects)
	}
}

func TestStaticHandler(t *testing.T) {
	store := newMemStore()
	store.objects["stems/3/vocals.wav"] = []byte("RIFF")
	handler := NewStaticHandler(store)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/stems/3/vocals.wav", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "RIFF" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("unexpected content type %q", ct)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/stems/3/missing.wav", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
