package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"norelock.dev/soundscope/internal/auth"
	"norelock.dev/soundscope/internal/config"
	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/scope"
	"norelock.dev/soundscope/internal/services/system"
	"norelock.dev/soundscope/internal/utils"
)

const tracksFixture = `[
	{"kind": "track", "id": 1, "title": "First", "user": {"kind": "user", "id": 10, "username": "alice"}},
	{"kind": "track", "id": 2, "title": "Second", "user": {"kind": "user", "id": 11, "username": "bob"}}
]`

func soundcloudHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/tracks.json" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(tracksFixture))
}

type fakeActivities struct {
	activities []*models.Activity
	summary    []models.ActivitySummary
	since      time.Time
	track      uint
}

func (f *fakeActivities) Create(_ context.Context, a *models.Activity) error {
	f.activities = append(f.activities, a)
	return nil
}

func (f *fakeActivities) FindByID(_ context.Context, id bson.ObjectID) (*models.Activity, error) {
	for _, a := range f.activities {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, models.ErrActivityNotFound
}

func (f *fakeActivities) FindByTrack(_ context.Context, trackID uint, _, _ int) ([]*models.Activity, error) {
	f.track = trackID
	var out []*models.Activity
	for _, a := range f.activities {
		if a.TrackID == trackID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeActivities) Recent(_ context.Context, _, _ int) ([]*models.Activity, error) {
	return f.activities, nil
}

func (f *fakeActivities) Summary(_ context.Context, since time.Time) ([]models.ActivitySummary, error) {
	f.since = since
	return f.summary, nil
}

func (f *fakeActivities) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type testEnv struct {
	server     *httptest.Server
	provider   *auth.JWTProvider
	activities *fakeActivities
}

func newTestEnv(t *testing.T, upstream http.Handler, mutate func(*config.Config)) *testEnv {
	t.Helper()

	api := httptest.NewServer(upstream)
	t.Cleanup(api.Close)

	cfg := &config.Config{
		Environment: "test",
		SoundCloud:  config.SoundCloudConfig{APIRoot: api.URL, ClientID: "test-client", UserAgent: "test-agent"},
		Scope: config.ScopeConfig{
			Locale:         "en",
			RequestTimeout: 2 * time.Second,
			SearchLimit:    30,
		},
		Auth: config.AuthConfig{
			JWTSecret:   "test-secret",
			TokenExpiry: time.Hour,
		},
		Features: config.FeaturesConfig{EnableMetrics: true},
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := utils.NewNopLogger()
	provider, err := auth.NewJWTProvider(cfg.Auth, logger)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}

	s := scope.New(cfg, scope.WithLogger(logger), scope.WithHTTPClient(api.Client()))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)

	activities := &fakeActivities{}
	router := NewRouter(Dependencies{
		Scope:        s,
		AuthProvider: provider,
		Activities:   activities,
		Health:       system.NewHealthService(logger, system.HealthServiceConfig{}),
		Metrics:      system.NewMetricsService(logger),
	}, cfg, logger)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, provider: provider, activities: activities}
}

func (e *testEnv) token(t *testing.T, roles ...string) string {
	t.Helper()
	token, err := e.provider.GenerateToken("session-1", "unity8", roles)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) (int, apiResponse) {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, out
}

// ---------------------------------------------------------------------------
// Scope routes
// ---------------------------------------------------------------------------

func TestSearch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, http.HandlerFunc(soundcloudHandler), nil)

	status, resp := env.do(t, http.MethodGet, "/v1/search?q=first", "", "")
	if status != http.StatusOK || !resp.Success {
		t.Fatalf("status = %d, resp = %+v", status, resp)
	}

	var reply models.SearchReply
	if err := json.Unmarshal(resp.Data, &reply); err != nil {
		t.Fatal(err)
	}
	var titles []string
	for _, r := range reply.Results {
		titles = append(titles, r.Title)
	}
	if strings.Join(titles, ",") != "First,Second" {
		t.Errorf("titles = %v", titles)
	}
	if reply.Departments == nil || len(reply.Categories) != 1 {
		t.Errorf("reply = %+v", reply)
	}
}

func TestSearchErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		upstream http.HandlerFunc
		path     string
		status   int
	}{
		{
			name:     "query too long",
			upstream: soundcloudHandler,
			path:     "/v1/search?q=" + strings.Repeat("x", 201),
			status:   http.StatusBadRequest,
		},
		{
			name:     "invalid locale",
			upstream: soundcloudHandler,
			path:     "/v1/departments?locale=not%20a%20locale",
			status:   http.StatusBadRequest,
		},
		{
			name: "upstream failure",
			upstream: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			path:   "/v1/search?q=first",
			status: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, tt.upstream, nil)
			status, resp := env.do(t, http.MethodGet, tt.path, "", "")
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if resp.Success || resp.Error.Message == "" {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestDepartments(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, http.HandlerFunc(soundcloudHandler), nil)

	status, resp := env.do(t, http.MethodGet, "/v1/departments?locale=en", "", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var root models.Department
	if err := json.Unmarshal(resp.Data, &root); err != nil {
		t.Fatal(err)
	}
	if root.Label != "Popular Music" || len(root.Subdepartments) == 0 {
		t.Errorf("departments = %+v", root)
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, http.HandlerFunc(soundcloudHandler), nil)

	body := `{"result": {"uri": "1", "title": "First", "attributes": {"id": 1, "userid": 10}}}`
	status, resp := env.do(t, http.MethodPost, "/v1/preview", "", body)
	if status != http.StatusOK {
		t.Fatalf("status = %d, resp = %+v", status, resp)
	}
	var reply models.PreviewReply
	if err := json.Unmarshal(resp.Data, &reply); err != nil {
		t.Fatal(err)
	}
	if len(reply.Layouts) != 1 || len(reply.Widgets) == 0 {
		t.Errorf("reply = %+v", reply)
	}
}

func TestActivate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		status int
		want   models.ActivationStatus
	}{
		{
			name:   "unknown action",
			body:   `{"result": {"uri": "1", "attributes": {"id": 1}}, "widgetId": "actions", "actionId": "play"}`,
			status: http.StatusOK,
			want:   models.ActivationNotHandled,
		},
		{
			name:   "missing action",
			body:   `{"result": {"uri": "1"}}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed body",
			body:   `{"result":`,
			status: http.StatusBadRequest,
		},
	}

	env := newTestEnv(t, http.HandlerFunc(soundcloudHandler), nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := env.do(t, http.MethodPost, "/v1/activate", "", tt.body)
			if status != tt.status {
				t.Fatalf("status = %d, want %d (%+v)", status, tt.status, resp)
			}
			if tt.want == "" {
				return
			}
			var got models.ActivationResponse
			if err := json.Unmarshal(resp.Data, &got); err != nil {
				t.Fatal(err)
			}
			if got.Status != tt.want {
				t.Errorf("activation = %q, want %q", got.Status, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, http.HandlerFunc(soundcloudHandler), func(cfg *config.Config) {
		cfg.Auth.Required = true
	})

	if status, _ := env.do(t, http.MethodGet, "/v1/departments", "", ""); status != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/v1/departments", "garbage", ""); status != http.StatusUnauthorized {
		t.Errorf("invalid token status = %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/v1/departments", env.token(t, auth.RoleShell), ""); status != http.StatusOK {
		t.Errorf("valid token status = %d", status)
	}
}

func TestInvalidTokenRejectedWhenOptional(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, http.HandlerFunc(soundcloudHandler), nil)

	status, resp := env.do(t, http.MethodGet, "/v1/departments", "garbage", "")
	if status != http.StatusUnauthorized || resp.Error.Message != "Invalid token" {
		t.Errorf("status = %d, resp = %+v", status, resp)
	}
}

func TestAdminRoutes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, http.HandlerFunc(soundcloudHandler), nil)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"shell", env.token(t, auth.RoleShell), http.StatusForbidden},
		{"admin", env.token(t, auth.RoleAdmin), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := env.do(t, http.MethodPost, "/v1/admin/cache/clear", tt.token, "")
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Activity log
// ---------------------------------------------------------------------------

func TestActivities(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, http.HandlerFunc(soundcloudHandler), nil)
	admin := env.token(t, auth.RoleAdmin)

	liked := models.NewActivity("act-1", models.ActionLike, 1, 10)
	followed := models.NewActivity("act-2", models.ActionFollow, 2, 11)
	env.activities.activities = []*models.Activity{liked, followed}
	env.activities.summary = []models.ActivitySummary{{Action: models.ActionLike, Count: 1}}

	status, resp := env.do(t, http.MethodGet, "/v1/admin/activities?track=2&limit=10", admin, "")
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var list struct {
		Activities []models.Activity `json:"activities"`
		Limit      int               `json:"limit"`
	}
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		t.Fatal(err)
	}
	if env.activities.track != 2 || len(list.Activities) != 1 || list.Activities[0].RequestID != "act-2" || list.Limit != 10 {
		t.Errorf("list = %+v", list)
	}

	status, resp = env.do(t, http.MethodGet, "/v1/admin/activities/"+liked.ID.Hex(), admin, "")
	if status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	var got models.Activity
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Action != models.ActionLike {
		t.Errorf("activity = %+v", got)
	}

	if status, _ := env.do(t, http.MethodGet, "/v1/admin/activities/"+bson.NewObjectID().Hex(), admin, ""); status != http.StatusNotFound {
		t.Errorf("missing activity status = %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/v1/admin/activities/nope", admin, ""); status != http.StatusBadRequest {
		t.Errorf("bad id status = %d", status)
	}

	status, _ = env.do(t, http.MethodGet, "/v1/admin/activities/summary?since=2026-01-02T03:04:05Z", admin, "")
	if status != http.StatusOK {
		t.Fatalf("summary status = %d", status)
	}
	if want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC); !env.activities.since.Equal(want) {
		t.Errorf("since = %v, want %v", env.activities.since, want)
	}
	if status, _ := env.do(t, http.MethodGet, "/v1/admin/activities/summary?since=yesterday", admin, ""); status != http.StatusBadRequest {
		t.Errorf("bad since status = %d", status)
	}
}

// ---------------------------------------------------------------------------
// Ambient routes
// ---------------------------------------------------------------------------

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, http.HandlerFunc(soundcloudHandler), nil)

	resp, err := env.server.Client().Get(env.server.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || health["status"] != string(system.StatusUp) {
		t.Errorf("health = %d %+v", resp.StatusCode, health)
	}

	// One request so the HTTP histogram has a sample.
	env.do(t, http.MethodGet, "/v1/departments", "", "")

	resp, err = env.server.Client().Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}

	resp, err = env.server.Client().Get(env.server.URL + "/ping")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ping status = %d", resp.StatusCode)
	}

	if status, _ := env.do(t, http.MethodGet, "/nope", "", ""); status != http.StatusNotFound {
		t.Errorf("unknown route status = %d", status)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, http.HandlerFunc(soundcloudHandler), func(cfg *config.Config) {
		cfg.Server.AllowedOrigins = []string{"https://shell.example.com", "https://*.example.org"}
	})

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://shell.example.com", true},
		{"https://dash.example.org", true},
		{"https://evil.example.net", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodOptions, env.server.URL+"/v1/search", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)

			resp, err := env.server.Client().Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusNoContent {
				t.Errorf("status = %d", resp.StatusCode)
			}
			got := resp.Header.Get("Access-Control-Allow-Origin")
			if (got == tt.origin) != tt.allowed {
				t.Errorf("allow origin = %q", got)
			}
		})
	}
}
