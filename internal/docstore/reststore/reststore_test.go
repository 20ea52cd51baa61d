package reststore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/cheese-rooms/internal/docstore"
	"github.com/park285/cheese-rooms/internal/docstore/storetest"
)

// fakeAPI is a tiny Appwrite-shaped document server.
type fakeAPI struct {
	mu       sync.Mutex
	docs     map[string]map[string]map[string]any
	failNext atomic.Int32
	project  string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{docs: make(map[string]map[string]map[string]any), project: "proj"}
	mux := http.NewServeMux()
	base := "/v1/databases/{db}/collections/{col}/documents"
	mux.HandleFunc("POST "+base, f.create)
	mux.HandleFunc("GET "+base, f.list)
	mux.HandleFunc("GET "+base+"/{id}", f.get)
	mux.HandleFunc("PATCH "+base+"/{id}", f.update)
	srv := httptest.NewServer(f.guard(mux))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Appwrite-Project") != f.project {
			http.Error(w, `{"message":"project missing"}`, http.StatusUnauthorized)
			return
		}
		if f.failNext.Load() > 0 {
			f.failNext.Add(-1)
			http.Error(w, `{"message":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeAPI) collection(r *http.Request) map[string]map[string]any {
	key := r.PathValue("db") + "/" + r.PathValue("col")
	col := f.docs[key]
	if col == nil {
		col = make(map[string]map[string]any)
		f.docs[key] = col
	}
	return col
}

func render(id string, fields map[string]any) map[string]any {
	out := map[string]any{"$id": id, "$collectionId": "rooms"}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (f *fakeAPI) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string         `json:"documentId"`
		Data       map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	col := f.collection(r)
	if _, ok := col[req.DocumentID]; ok {
		http.Error(w, `{"message":"conflict"}`, http.StatusConflict)
		return
	}
	col[req.DocumentID] = req.Data
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(render(req.DocumentID, req.Data))
}

func (f *fakeAPI) get(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.collection(r)[r.PathValue("id")]
	if !ok {
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(render(r.PathValue("id"), doc))
}

func (f *fakeAPI) list(w http.ResponseWriter, r *http.Request) {
	var filters []query
	for _, raw := range r.URL.Query()["queries[]"] {
		var q query
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filters = append(filters, q)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := []map[string]any{}
	for id, fields := range f.collection(r) {
		match := true
		for _, q := range filters {
			if q.Method != "equal" || len(q.Values) != 1 || fields[q.Attribute] != q.Values[0] {
				match = false
				break
			}
		}
		if match {
			docs = append(docs, render(id, fields))
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"total": len(docs), "documents": docs})
}

func (f *fakeAPI) update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.collection(r)[r.PathValue("id")]
	if !ok {
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
		return
	}
	for k, v := range req.Data {
		doc[k] = v
	}
	_ = json.NewEncoder(w).Encode(render(r.PathValue("id"), doc))
}

func newTestStore(t *testing.T) (*Store, *fakeAPI) {
	t.Helper()
	api, srv := newFakeAPI(t)
	s := New(srv.URL+"/v1", "proj", "db", WithAPIKey("secret"), WithTimeout(2*time.Second))
	return s, api
}

func TestContract(t *testing.T) {
	s, _ := newTestStore(t)
	storetest.Run(t, s, storetest.Options{CallerKeys: false, Subscriptions: false})
}

func TestCreateMintsOwnID(t *testing.T) {
	s, _ := newTestStore(t)
	doc, err := s.Create(context.Background(), "rooms", "12345", docstore.Fields{"roomId": "12345"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.ID == "12345" || doc.ID == "" {
		t.Fatalf("expected server-minted id distinct from room id, got %q", doc.ID)
	}
	if _, ok := doc.Fields["$id"]; ok {
		t.Fatalf("system attributes leaked into fields")
	}
}

func TestRetriesOnUnavailable(t *testing.T) {
	s, api := newTestStore(t)
	ctx := context.Background()
	doc, err := s.Create(ctx, "rooms", "", docstore.Fields{"roomId": "r1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	api.failNext.Store(2)
	if _, err := s.Get(ctx, "rooms", doc.ID); err != nil {
		t.Fatalf("Get after transient failures: %v", err)
	}
}

func TestCreateDoesNotRetry(t *testing.T) {
	s, api := newTestStore(t)
	api.failNext.Store(1)
	_, err := s.Create(context.Background(), "rooms", "", docstore.Fields{"roomId": "r2"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 APIError, got %v", err)
	}
}

func TestCollectionAlias(t *testing.T) {
	api, srv := newFakeAPI(t)
	s := New(srv.URL+"/v1", "proj", "db", WithCollection("rooms", "col_123"))
	if _, err := s.Create(context.Background(), "rooms", "", docstore.Fields{"roomId": "a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.docs["db/col_123"]) != 1 {
		t.Fatalf("expected document under aliased collection, got %v", api.docs)
	}
}

func TestWrongProjectIsAPIError(t *testing.T) {
	_, srv := newFakeAPI(t)
	s := New(srv.URL+"/v1", "other", "db")
	_, err := s.Get(context.Background(), "rooms", "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}
