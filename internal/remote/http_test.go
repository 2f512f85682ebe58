package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func newTestStore(t *testing.T, h http.HandlerFunc) *HTTPStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPStore(Config{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
		Token:   func(context.Context) string { return "tok-123" },
	})
}

func TestGetDocument(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/v1/groups/g1" {
			t.Errorf("path = %s, want /v1/groups/g1", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "g1",
			"fields": map[string]any{"name": "Hikers"},
		})
	})

	doc, err := s.Get(context.Background(), CollectionGroups, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.ID != "g1" || doc.Collection != CollectionGroups {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Fields["name"] != "Hikers" {
		t.Errorf("name = %v, want Hikers", doc.Fields["name"])
	}
}

func TestGetStatusMapping(t *testing.T) {
	tests := []struct {
		status      int
		wantErr     error
		unavailable bool
	}{
		{http.StatusNotFound, ErrNotFound, false},
		{http.StatusUnauthorized, ErrUnauthenticated, false},
		{http.StatusForbidden, ErrUnauthenticated, false},
		{http.StatusServiceUnavailable, nil, true},
	}

	for _, tt := range tests {
		s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		_, err := s.Get(context.Background(), CollectionUsers, "u1")
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.wantErr)
		}
		if IsUnavailable(err) != tt.unavailable {
			t.Errorf("status %d: IsUnavailable = %v, want %v", tt.status, IsUnavailable(err), tt.unavailable)
		}
	}
}

func TestGetConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewHTTPStore(Config{BaseURL: url, Timeout: time.Second})
	_, err := s.Get(context.Background(), CollectionUsers, "u1")
	if !IsUnavailable(err) {
		t.Fatalf("err = %v, want transport error", err)
	}
}

func TestQuery(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/voteSubmissions:query" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(req.Where) != 1 || req.Where[0].Field != "proposalId" || req.Where[0].Op != OpEqual {
			t.Errorf("where = %+v", req.Where)
		}
		json.NewEncoder(w).Encode(queryResponse{Documents: []Document{
			{ID: "v1", Fields: map[string]any{"userId": "u1"}},
			{ID: "v2", Fields: map[string]any{"userId": "u2"}},
		}})
	})

	docs, err := s.Query(context.Background(), Query{
		Collection: CollectionVoteSubmissions,
		Field:      "proposalId",
		Op:         OpEqual,
		Value:      "p1",
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].Collection != CollectionVoteSubmissions {
		t.Errorf("collection = %q", docs[0].Collection)
	}
}

func TestCreate(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/activities" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req writeRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Fields["title"] != "Picnic" {
			t.Errorf("title = %v", req.Fields["title"])
		}
		json.NewEncoder(w).Encode(writeResponse{ID: "a-new"})
	})

	id, err := s.Create(context.Background(), CollectionActivities, "", map[string]any{"title": "Picnic"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "a-new" {
		t.Errorf("id = %q, want a-new", id)
	}
}

func TestWatchDeliversDocuments(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/listen" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("id"); got != "g1" {
			t.Errorf("id param = %q, want g1", got)
		}
		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		for _, name := range []string{"Hikers", "Trail Runners"} {
			doc := Document{ID: "g1", Fields: map[string]any{"name": name}}
			if err := wsjson.Write(r.Context(), conn, doc); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		conn.Read(r.Context())
	})

	got := make(chan Document, 2)
	l, err := s.Watch(context.Background(), WatchTarget{Collection: CollectionGroups, ID: "g1"}, func(d Document) {
		got <- d
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer l.Close()

	for _, want := range []string{"Hikers", "Trail Runners"} {
		select {
		case d := <-got:
			if d.Fields["name"] != want {
				t.Errorf("name = %v, want %s", d.Fields["name"], want)
			}
			if d.Collection != CollectionGroups {
				t.Errorf("collection = %q", d.Collection)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for pushed document")
		}
	}

	if err := l.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	// Second close is a no-op.
	l.Close()
}

func TestListenURL(t *testing.T) {
	s := NewHTTPStore(Config{BaseURL: "https://store.example.com/"})
	u, err := s.listenURL(WatchTarget{
		Collection: CollectionVoteSubmissions,
		Query:      &Query{Field: "proposalId", Op: OpEqual, Value: "p1"},
	})
	if err != nil {
		t.Fatalf("listen url: %v", err)
	}
	want := "wss://store.example.com/v1/listen?collection=voteSubmissions&field=proposalId&op=%3D%3D&value=%22p1%22"
	if u != want {
		t.Errorf("url = %s\nwant  %s", u, want)
	}
}
