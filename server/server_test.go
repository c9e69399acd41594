package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smallnest/roadclaw/bus"
	"github.com/smallnest/roadclaw/config"
	"github.com/smallnest/roadclaw/mutate"
	"github.com/smallnest/roadclaw/roadmap"
	"github.com/smallnest/roadclaw/store"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "roadmap.json")

	broadcaster := bus.NewBroadcaster()
	t.Cleanup(broadcaster.Close)

	gateway := mutate.NewGateway(nil, broadcaster)
	if _, err := gateway.Init(path, "demo"); err != nil {
		t.Fatalf("failed to init project: %v", err)
	}

	cfg := &config.Config{}
	cfg.Project.Path = path
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.PingInterval = 30 * time.Second
	cfg.Server.PongTimeout = 60 * time.Second
	cfg.Watch.DebounceMs = 100

	return New(cfg, gateway, broadcaster), path
}

func addTestTask(t *testing.T, s *Server, path, description string, deps ...int) int {
	t.Helper()

	m := &mutate.AddTask{Description: description, Dependencies: deps}
	if _, err := s.gateway.Apply(context.Background(), path, m); err != nil {
		t.Fatalf("failed to add task: %v", err)
	}
	return m.CreatedID
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid health response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health status: %v", body["status"])
	}
}

func TestRoadmapEndpoint(t *testing.T) {
	s, path := newTestServer(t)
	addTestTask(t, s, path, "design schema")

	req := httptest.NewRequest(http.MethodGet, "/api/roadmap", nil)
	rec := httptest.NewRecorder()
	s.handleRoadmap(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var doc roadmap.Roadmap
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid roadmap response: %v", err)
	}
	if doc.Title != "demo" || len(doc.Tasks) != 1 {
		t.Fatalf("unexpected document: title=%q tasks=%d", doc.Title, len(doc.Tasks))
	}
}

func TestRoadmapEndpointUnknownPath(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/roadmap?path=/nowhere/roadmap.json", nil)
	rec := httptest.NewRecorder()
	s.handleRoadmap(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing project, got %d", rec.Code)
	}
}

func TestMutationEndpointAddAndComplete(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"kind":"add_task","description":"write docs","priority":"high"}`
	req := httptest.NewRequest(http.MethodPost, "/api/mutations", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleMutations(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("add_task failed: %d: %s", rec.Code, rec.Body.String())
	}

	var doc roadmap.Roadmap
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if len(doc.Tasks) != 1 || doc.Tasks[0].Priority != roadmap.PriorityHigh {
		t.Fatalf("task not created as requested: %+v", doc.Tasks)
	}

	complete := `{"kind":"complete_task","task_id":1}`
	req = httptest.NewRequest(http.MethodPost, "/api/mutations", strings.NewReader(complete))
	rec = httptest.NewRecorder()
	s.handleMutations(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("complete_task failed: %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMutationEndpointErrorMapping(t *testing.T) {
	s, path := newTestServer(t)
	id1 := addTestTask(t, s, path, "first")
	id2 := addTestTask(t, s, path, "second", id1)

	cases := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{
			name: "unknown task is 404",
			body: map[string]interface{}{"kind": "complete_task", "task_id": 99},
			want: http.StatusNotFound,
		},
		{
			name: "blocked completion is 409",
			body: map[string]interface{}{"kind": "complete_task", "task_id": id2},
			want: http.StatusConflict,
		},
		{
			name: "cycle is 409",
			body: map[string]interface{}{"kind": "add_dependency", "task_id": id1, "depends_on": id2},
			want: http.StatusConflict,
		},
		{
			name: "remove with dependents is 409",
			body: map[string]interface{}{"kind": "remove_task", "task_id": id1},
			want: http.StatusConflict,
		},
		{
			name: "unknown kind is 400",
			body: map[string]interface{}{"kind": "frobnicate"},
			want: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, _ := json.Marshal(tc.body)
			req := httptest.NewRequest(http.MethodPost, "/api/mutations", bytes.NewReader(raw))
			rec := httptest.NewRecorder()
			s.handleMutations(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDepsEndpoint(t *testing.T) {
	s, path := newTestServer(t)
	id1 := addTestTask(t, s, path, "first")
	id2 := addTestTask(t, s, path, "second", id1)

	req := httptest.NewRequest(http.MethodGet, "/api/deps?task=2", nil)
	rec := httptest.NewRecorder()
	s.handleDeps(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("deps failed: %d: %s", rec.Code, rec.Body.String())
	}

	var view mutate.DependencyView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("invalid deps response: %v", err)
	}
	if view.Tree == nil || view.Tree.Task.ID != id2 {
		t.Fatalf("unexpected tree: %+v", view.Tree)
	}
	if len(view.Ready) != 1 || view.Ready[0].ID != id1 {
		t.Fatalf("unexpected ready set: %+v", view.Ready)
	}
	if len(view.Blocked) != 1 || view.Blocked[0].Task.ID != id2 {
		t.Fatalf("unexpected blocked set: %+v", view.Blocked)
	}
}

func TestWebSocketReceivesWelcomeAndMutationEvents(t *testing.T) {
	s, path := newTestServer(t)

	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { s.closeAllConnections() })

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	var welcome bus.Event
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("failed to read welcome: %v", err)
	}
	if welcome.Type != bus.EventWelcome {
		t.Fatalf("expected welcome event, got %q", welcome.Type)
	}

	addTestTask(t, s, path, "observed by viewer")

	var updated bus.Event
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := conn.ReadJSON(&updated); err != nil {
		t.Fatalf("failed to read mutation event: %v", err)
	}
	if updated.Type != bus.EventTaskUpdated {
		t.Fatalf("expected task_updated event, got %q", updated.Type)
	}
}

// dialViewer connects a WebSocket session and consumes the welcome event.
func dialViewer(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { s.closeAllConnections() })

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	var welcome bus.Event
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("failed to read welcome: %v", err)
	}
	if welcome.Type != bus.EventWelcome {
		t.Fatalf("expected welcome event, got %q", welcome.Type)
	}
	return conn
}

// writeExternal simulates another process editing the state file directly.
func writeExternal(t *testing.T, path, description string) {
	t.Helper()

	r, err := store.Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	r.Tasks = append(r.Tasks, &roadmap.Task{
		ID:          r.NextID(),
		Description: description,
		Status:      roadmap.StatusPending,
		Priority:    roadmap.PriorityMedium,
		Phase:       "Backlog",
		CreatedAt:   time.Now().UTC(),
	})
	r.Touch()
	if err := store.Save(path, r); err != nil {
		t.Fatalf("save failed: %v", err)
	}
}

func TestExternalWriteBurstBroadcastsOnce(t *testing.T) {
	s, path := newTestServer(t)
	conn := dialViewer(t, s)

	// Several external writes inside the debounce window collapse into a
	// single project_modified broadcast.
	for i := 0; i < 3; i++ {
		writeExternal(t, path, "external edit")
		time.Sleep(20 * time.Millisecond)
	}

	var event bus.Event
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("failed to read external change event: %v", err)
	}
	if event.Type != bus.EventProjectModified {
		t.Fatalf("expected project_modified, got %q", event.Type)
	}

	// The window has passed; the burst does not produce a second broadcast.
	_ = conn.SetReadDeadline(time.Now().Add(600 * time.Millisecond))
	var extra bus.Event
	if err := conn.ReadJSON(&extra); err == nil {
		t.Fatalf("unexpected second broadcast for the same burst: %+v", extra)
	}
}

func TestGatewaySaveIsNotEchoedAsExternalChange(t *testing.T) {
	s, path := newTestServer(t)
	conn := dialViewer(t, s)

	addTestTask(t, s, path, "through the gateway")

	// The gateway announces its own mutation once.
	var event bus.Event
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("failed to read mutation event: %v", err)
	}
	if event.Type != bus.EventTaskUpdated {
		t.Fatalf("expected task_updated, got %q", event.Type)
	}

	// The watcher sees the same save, but the bridge recognizes the stamp
	// and does not double-announce it.
	_ = conn.SetReadDeadline(time.Now().Add(600 * time.Millisecond))
	var echo bus.Event
	if err := conn.ReadJSON(&echo); err == nil {
		t.Fatalf("gateway save was echoed back as %q", echo.Type)
	}
}

func TestWebSocketPing(t *testing.T) {
	s, _ := newTestServer(t)

	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { s.closeAllConnections() })

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	// Welcome arrives first.
	var welcome bus.Event
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("failed to read welcome: %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("failed to send ping: %v", err)
	}

	var pong map[string]string
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("failed to read pong: %v", err)
	}
	if pong["type"] != "pong" {
		t.Fatalf("expected pong, got %+v", pong)
	}
}
