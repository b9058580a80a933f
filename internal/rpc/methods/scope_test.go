package methods

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"norelock.dev/soundscope/internal/config"
	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/rpc"
	"norelock.dev/soundscope/internal/scope"
	"norelock.dev/soundscope/internal/utils"
	"norelock.dev/soundscope/pkg/jsonrpc"
)

const tracksFixture = `[
	{"kind": "track", "id": 1, "title": "First", "streamable": true,
	 "stream_url": "https://api.example.com/tracks/1/stream", "user": {"kind": "user", "id": 10, "username": "alice"}},
	{"kind": "track", "id": 2, "title": "Second", "user": {"kind": "user", "id": 11, "username": "bob"}},
	{"kind": "user", "id": 12, "username": "carol"}
]`

func tracksHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/tracks.json" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(tracksFixture))
}

func newTestConn(t *testing.T, soundcloud http.Handler) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(newTestURL(t, soundcloud), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestURL serves a scope backed by soundcloud and returns its WebSocket URL.
func newTestURL(t *testing.T, soundcloud http.Handler) string {
	t.Helper()

	api := httptest.NewServer(soundcloud)
	t.Cleanup(api.Close)

	cfg := &config.Config{
		SoundCloud: config.SoundCloudConfig{APIRoot: api.URL, ClientID: "test-client", UserAgent: "test-agent"},
		Scope: config.ScopeConfig{
			Locale:         "en",
			RequestTimeout: 2 * time.Second,
			SearchLimit:    30,
		},
		Features: config.FeaturesConfig{EnableLoginNag: true},
	}

	logger := utils.NewNopLogger()
	s := scope.New(cfg, scope.WithLogger(logger), scope.WithHTTPClient(api.Client()))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)

	router := rpc.NewRouter(logger)
	RegisterAllMethods(router, s, logger)

	server := rpc.NewServer(rpc.ServerConfig{}, router, nil, nil, logger)
	httpServer := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(ctx)
		httpServer.Close()
	})

	return "ws" + strings.TrimPrefix(httpServer.URL, "http")
}

type wireMessage struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *rpc.Error      `json:"error"`
}

func send(t *testing.T, conn *websocket.Conn, id float64, method string, params any) {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// collect reads until the response with the given id, returning it and the
// notifications seen before it.
func collect(t *testing.T, conn *websocket.Conn, id float64) (wireMessage, []wireMessage) {
	t.Helper()
	var notifications []wireMessage
	for {
		msg := read(t, conn)
		if msg.Method != "" {
			notifications = append(notifications, msg)
			continue
		}
		if msg.ID == id {
			return msg, notifications
		}
	}
}

func call(t *testing.T, conn *websocket.Conn, id float64, method string, params, result any) {
	t.Helper()
	send(t, conn, id, method, params)
	msg, _ := collect(t, conn, id)
	if msg.Error != nil {
		t.Fatalf("%s: %+v", method, msg.Error)
	}
	if err := json.Unmarshal(msg.Result, result); err != nil {
		t.Fatalf("%s result %s: %v", method, msg.Result, err)
	}
}

// ---------------------------------------------------------------------------
// scope.search
// ---------------------------------------------------------------------------

func TestSearchMethod(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(tracksHandler))

	var reply models.SearchReply
	call(t, conn, 1, rpc.MethodScopeSearch, map[string]any{"query": "first", "queryId": "q-1"}, &reply)

	if reply.QueryID != "q-1" || reply.Error != "" {
		t.Errorf("reply = %+v", reply)
	}
	var titles []string
	for _, r := range reply.Results {
		titles = append(titles, r.Title)
	}
	if strings.Join(titles, ",") != "First,Second" {
		t.Errorf("titles = %v", titles)
	}
}

func TestSearchMethodStreams(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(tracksHandler))

	send(t, conn, 1, rpc.MethodScopeSearch, map[string]any{"stream": true, "queryId": "q-1"})
	msg, notifications := collect(t, conn, 1)
	if msg.Error != nil {
		t.Fatalf("error = %+v", msg.Error)
	}

	var summary SearchResult
	if err := json.Unmarshal(msg.Result, &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Count != 3 || summary.Cancelled || len(summary.Categories) != 2 {
		t.Errorf("summary = %+v", summary)
	}

	var got []string
	for _, n := range notifications {
		switch n.Method {
		case rpc.EventScopeCategory:
			var ev CategoryEvent
			if err := json.Unmarshal(n.Params, &ev); err != nil {
				t.Fatal(err)
			}
			got = append(got, "category:"+ev.Category.ID)
		case rpc.EventScopeResult:
			var ev ResultEvent
			if err := json.Unmarshal(n.Params, &ev); err != nil {
				t.Fatal(err)
			}
			if ev.QueryID != "q-1" {
				t.Errorf("query id = %q", ev.QueryID)
			}
			got = append(got, ev.Result.Title)
		}
	}

	want := "category:nag,Log in to SoundCloud,category:explore,First,Second"
	if strings.Join(got, ",") != want {
		t.Errorf("notifications = %v, want %s", got, want)
	}
}

func TestSearchThroughClient(t *testing.T) {
	t.Parallel()

	client, err := jsonrpc.Dial(context.Background(), newTestURL(t, http.HandlerFunc(tracksHandler)))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	var titles []string
	client.Handle(rpc.EventScopeResult, func(_ string, params json.RawMessage) {
		var ev ResultEvent
		if err := json.Unmarshal(params, &ev); err == nil {
			titles = append(titles, ev.Result.Title)
		}
	})

	var summary SearchResult
	if err := client.Call(context.Background(), rpc.MethodScopeSearch, map[string]any{"query": "first", "stream": true}, &summary); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if summary.Count != 2 || summary.QueryID == "" {
		t.Errorf("summary = %+v", summary)
	}
	// Notifications are handled before the response is delivered.
	if strings.Join(titles, ",") != "First,Second" {
		t.Errorf("titles = %v", titles)
	}
}

func TestCancelSearch(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	conn := newTestConn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(release) })

	send(t, conn, 1, rpc.MethodScopeSearch, map[string]any{"query": "slow", "queryId": "q-slow", "stream": true})

	// The search response may overtake the answer to the cancel, so both are
	// picked out of the same read loop.
	var (
		searchDone *wireMessage
		cancelled  bool
	)
	for i := 0; i < 100 && !cancelled; i++ {
		id := float64(10 + i)
		send(t, conn, id, rpc.MethodScopeCancel, map[string]any{"queryId": "q-slow"})
		for {
			msg := read(t, conn)
			if msg.ID == float64(1) {
				searchDone = &msg
				continue
			}
			if msg.ID != id {
				continue
			}
			var res map[string]bool
			if err := json.Unmarshal(msg.Result, &res); err != nil {
				t.Fatal(err)
			}
			cancelled = res["cancelled"]
			break
		}
		if !cancelled {
			time.Sleep(10 * time.Millisecond)
		}
	}
	if !cancelled {
		t.Fatal("query never cancelled")
	}

	if searchDone == nil {
		msg, _ := collect(t, conn, 1)
		searchDone = &msg
	}
	var summary SearchResult
	if err := json.Unmarshal(searchDone.Result, &summary); err != nil {
		t.Fatal(err)
	}
	if !summary.Cancelled || summary.Error != "" {
		t.Errorf("summary = %+v", summary)
	}
}

func TestSearchMethodRejectsInvalidParams(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(tracksHandler))

	send(t, conn, 1, rpc.MethodScopeSearch, map[string]any{"query": strings.Repeat("x", 201)})
	msg, _ := collect(t, conn, 1)
	if msg.Error == nil || msg.Error.Code != rpc.ErrInvalidParams {
		t.Errorf("error = %+v", msg.Error)
	}
}

// ---------------------------------------------------------------------------
// scope.preview, scope.activate, scope.departments
// ---------------------------------------------------------------------------

func TestPreviewMethod(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(tracksHandler))

	var search models.SearchReply
	call(t, conn, 1, rpc.MethodScopeSearch, map[string]any{"query": "first"}, &search)
	if len(search.Results) == 0 {
		t.Fatal("no results")
	}

	var preview models.PreviewReply
	call(t, conn, 2, rpc.MethodScopePreview, map[string]any{"result": search.Results[0]}, &preview)
	if preview.Error != "" || len(preview.Layouts) != 1 || len(preview.Widgets) == 0 {
		t.Errorf("preview = %+v", preview)
	}
}

func TestActivateMethod(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(tracksHandler))

	var resp models.ActivationResponse
	params := map[string]any{
		"result":   models.Result{URI: "1", Attributes: map[string]any{"id": 1}},
		"widgetId": scope.WidgetActions,
		"actionId": "play",
	}
	call(t, conn, 1, rpc.MethodScopeActivate, params, &resp)
	if resp.Status != models.ActivationNotHandled {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestActivateBroadcastsToSession(t *testing.T) {
	t.Parallel()

	url := newTestURL(t, http.HandlerFunc(tracksHandler))
	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	actor, watcher := dial(), dial()

	// Both connections are anonymous from the same address and share a session.
	var pong string
	call(t, watcher, 1, rpc.MethodPing, nil, &pong)

	var resp models.ActivationResponse
	params := map[string]any{
		"result":   models.Result{URI: "1", Attributes: map[string]any{"id": 1}},
		"widgetId": scope.WidgetActions,
		"actionId": models.ActionLike,
	}
	call(t, actor, 1, rpc.MethodScopeActivate, params, &resp)
	if resp.Status != models.ActivationShowPreview {
		t.Fatalf("status = %q", resp.Status)
	}

	msg := read(t, watcher)
	if msg.Method != rpc.EventScopeActivated {
		t.Fatalf("method = %q", msg.Method)
	}
	var event ActivatedEvent
	if err := json.Unmarshal(msg.Params, &event); err != nil {
		t.Fatalf("params: %v", err)
	}
	if event.URI != "1" || event.ActionID != models.ActionLike || event.Status != models.ActivationShowPreview {
		t.Errorf("event = %+v", event)
	}
}

func TestDepartmentsMethod(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(tracksHandler))

	var root models.Department
	call(t, conn, 1, rpc.MethodScopeDepartments, map[string]any{"locale": "en"}, &root)
	if root.Label != "Popular Music" || len(root.Subdepartments) == 0 {
		t.Errorf("departments = %+v", root)
	}
}

func TestClearCacheRequiresAdmin(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(tracksHandler))

	send(t, conn, 1, rpc.MethodCacheClear, nil)
	msg, _ := collect(t, conn, 1)
	if msg.Error == nil || msg.Error.Code != rpc.ErrAuthenticationRequired {
		t.Errorf("error = %+v", msg.Error)
	}
}
