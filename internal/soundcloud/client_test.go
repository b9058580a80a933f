package soundcloud

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"norelock.dev/soundscope/internal/accounts"
	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/utils"
)

const searchFixture = `[
	{"kind": "track", "id": 1, "title": "First", "user": {"kind": "user", "id": 10, "username": "alice"}},
	{"kind": "user", "id": 10, "username": "alice"},
	{"kind": "track", "id": 2, "title": "Second", "user": {"kind": "user", "id": 11, "username": "bob"}}
]`

func gzipBody(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(body)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func newTestClient(t *testing.T, server *httptest.Server, source accounts.Source) *Client {
	t.Helper()
	settings := DefaultSettings()
	settings.APIRoot = server.URL
	settings.UserAgent = "test-agent"

	client := NewClient(NewConfig(settings, source),
		WithHTTPClient(server.Client()),
		WithLogger(utils.NewNopLogger()),
	)
	t.Cleanup(client.Close)
	return client
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveRequest(endpoint, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, endpoint+":"+outcome)
}

// ---------------------------------------------------------------------------
// Request shape
// ---------------------------------------------------------------------------

func TestSearchTracksAnonymous(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tracks.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("client_id") != DefaultClientID {
			t.Errorf("client_id = %q", q.Get("client_id"))
		}
		if q.Get("q") != "mozart" || q.Has("genres") || q.Get("limit") != "5" {
			t.Errorf("query = %v", q)
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("anonymous request sent Authorization %q", auth)
		}
		if ua := r.Header.Get("User-Agent"); ua != "test-agent (gzip)" {
			t.Errorf("User-Agent = %q", ua)
		}
		if r.Header.Get("Accept-Encoding") != "gzip" {
			t.Errorf("Accept-Encoding = %q", r.Header.Get("Accept-Encoding"))
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(gzipBody(t, searchFixture))
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)

	tracks, err := GetOrThrow(client.SearchTracks(context.Background(), "mozart", "", 5), time.Second)
	if err != nil {
		t.Fatalf("SearchTracks: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2 (users filtered out)", len(tracks))
	}
	if tracks[0].Title != "First" || tracks[1].User.Username != "bob" {
		t.Errorf("tracks = %+v", tracks)
	}
}

func TestSearchTracksByGenre(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Has("q") || q.Get("genres") != "Popular Music" {
			t.Errorf("query = %v", q)
		}
		// Plain body: not every proxy keeps the encoding.
		_, _ = w.Write([]byte(searchFixture))
	}))
	defer server.Close()

	tracks, err := GetOrThrow(newTestClient(t, server, nil).SearchTracks(context.Background(), "", "Popular Music", 0), time.Second)
	if err != nil || len(tracks) != 2 {
		t.Fatalf("SearchTracks = %d tracks, %v", len(tracks), err)
	}
}

func TestAuthenticatedRequestUsesBearer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Query().Has("client_id") {
			t.Error("authenticated request should not carry client_id")
		}
		_, _ = w.Write([]byte(`{"id": 5, "username": "me"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, accounts.NewStatic("secret-token", ""))

	me, err := GetOrThrow(client.Me(context.Background()), time.Second)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.ID != 5 || me.Username != "me" {
		t.Errorf("me = %+v", me)
	}
	if !client.Config().Authenticated() {
		t.Error("config should be authenticated after the request")
	}
}

func TestUserLookups(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/12.json":
			if r.URL.Query().Has("limit") {
				t.Errorf("user lookup sent limit %q", r.URL.Query().Get("limit"))
			}
			_, _ = w.Write([]byte(`{"kind": "user", "id": 12, "username": "carol",
				"followers_count": 300, "followings_count": "7", "description": "bio"}`))
		case "/users/12/tracks.json":
			if got := r.URL.Query().Get("limit"); got != "3" {
				t.Errorf("limit = %q, want 3", got)
			}
			_, _ = w.Write([]byte(`[
				{"kind": "track", "id": 21, "title": "Upload", "user": {"kind": "user", "id": 12, "username": "carol"}},
				{"kind": "playlist", "id": 22}
			]`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	ctx := context.Background()

	user, err := GetOrThrow(client.User(ctx, 12), time.Second)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if user.ID != 12 || user.Username != "carol" || user.FollowersCount != 300 || user.FollowingsCount != 7 || user.Description != "bio" {
		t.Errorf("user = %+v", user)
	}

	tracks, err := GetOrThrow(client.UserTracks(ctx, 12, 3), time.Second)
	if err != nil {
		t.Fatalf("UserTracks: %v", err)
	}
	if len(tracks) != 1 || tracks[0].ID != 21 || tracks[0].User.Username != "carol" {
		t.Errorf("tracks = %+v", tracks)
	}

	if _, err := GetOrThrow(client.User(ctx, 0), time.Second); !errors.Is(err, ErrInvalidID) {
		t.Errorf("User(0) err = %v, want ErrInvalidID", err)
	}
	if _, err := GetOrThrow(client.UserTracks(ctx, 0, 3), time.Second); !errors.Is(err, ErrInvalidID) {
		t.Errorf("UserTracks(0) err = %v, want ErrInvalidID", err)
	}
}

func TestPostCommentForm(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tracks/42/comments.json" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
			return
		}
		if body := r.PostForm.Get("comment[body]"); body != "nice one" {
			t.Errorf("comment[body] = %q", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`<?xml version="1.0"?><comment/>`))
	}))
	defer server.Close()

	ok, err := GetOrThrow(newTestClient(t, server, accounts.NewStatic("tok", "")).PostComment(context.Background(), 42, "nice one"), time.Second)
	if err != nil || !ok {
		t.Errorf("PostComment = %v, %v", ok, err)
	}
}

func TestSocialEndpoints(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		seen []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server, accounts.NewStatic("tok", ""))
	ctx := context.Background()

	for _, f := range []*Future[bool]{
		client.LikeTrack(ctx, 1),
		client.DeleteLikeTrack(ctx, 1),
		client.FollowUser(ctx, 2),
		client.UnfollowUser(ctx, 2),
	} {
		if ok, err := GetOrThrow(f, time.Second); err != nil || !ok {
			t.Errorf("future = %v, %v", ok, err)
		}
	}

	want := []string{
		"PUT /me/favorites/1.json",
		"DELETE /me/favorites/1.json",
		"PUT /me/followings/2.json",
		"DELETE /me/followings/2.json",
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("seen = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestExistenceChecks(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/favorites/1.json", "/me/followings/1.json":
			_, _ = w.Write([]byte(`{"kind": "track", "id": 1}`))
		case "/me/favorites/500.json":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors": [{"error_message": "404 - Not Found"}]}`))
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, accounts.NewStatic("tok", ""))
	ctx := context.Background()

	tests := []struct {
		name    string
		future  *Future[bool]
		want    bool
		wantErr bool
	}{
		{"liked", client.IsTrackLiked(ctx, 1), true, false},
		{"not liked", client.IsTrackLiked(ctx, 2), false, false},
		{"server error", client.IsTrackLiked(ctx, 500), false, true},
		{"following", client.IsFollowing(ctx, 1), true, false},
		{"not following", client.IsFollowing(ctx, 2), false, false},
		{"zero id", client.IsFollowing(ctx, 0), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetOrThrow(tt.future, time.Second)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStreamTracks(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/activities/tracks/affiliated.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"collection": [
			{"type": "track", "origin": {"kind": "track", "id": 7, "title": "From stream"}},
			{"type": "playlist", "origin": {"kind": "playlist", "id": 8}},
			"junk"
		], "next_href": "https://api.soundcloud.com/next"}`))
	}))
	defer server.Close()

	tracks, err := GetOrThrow(newTestClient(t, server, accounts.NewStatic("tok", "")).StreamTracks(context.Background(), 30), time.Second)
	if err != nil {
		t.Fatalf("StreamTracks: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Title != "From stream" {
		t.Errorf("tracks = %+v", tracks)
	}
}

// ---------------------------------------------------------------------------
// Response handling
// ---------------------------------------------------------------------------

func TestResponseHandling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantTracks int
		check      func(t *testing.T, err error)
	}{
		{
			name: "api error message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error": "invalid_token"}`))
			},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("err = %v, want *APIError", err)
				}
				if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "invalid_token" {
					t.Errorf("apiErr = %+v", apiErr)
				}
			},
		},
		{
			name: "api error without body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.Message != "Service Unavailable" {
					t.Errorf("err = %v", err)
				}
			},
		},
		{
			name: "malformed json is empty",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[{"kind": "track", "id": `))
			},
			check: func(t *testing.T, err error) {
				if err != nil {
					t.Errorf("err = %v, want nil", err)
				}
			},
		},
		{
			name: "broken gzip",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", "gzip")
				_, _ = w.Write([]byte("definitely not gzip"))
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrDecompress) {
					t.Errorf("err = %v, want ErrDecompress", err)
				}
			},
		},
		{
			name: "gzip without header",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(gzipBody(t, searchFixture))
			},
			wantTracks: 2,
			check: func(t *testing.T, err error) {
				if err != nil {
					t.Errorf("err = %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			tracks, err := GetOrThrow(newTestClient(t, server, nil).SearchTracks(context.Background(), "x", "", 0), time.Second)
			tt.check(t, err)
			if len(tracks) != tt.wantTracks {
				t.Errorf("got %d tracks, want %d", len(tracks), tt.wantTracks)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	client := newTestClient(t, server, nil)
	server.Close()

	_, err := GetOrThrow(client.Track(context.Background(), 1), time.Second)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("err = %v, want ErrTransport", err)
	}
}

// ---------------------------------------------------------------------------
// Cancellation and shutdown
// ---------------------------------------------------------------------------

// blockingServer holds every request until the client goes away.
func blockingServer(t *testing.T) (*httptest.Server, <-chan struct{}) {
	t.Helper()
	started := make(chan struct{}, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(server.Close)
	return server, started
}

func TestCancelAbortsInFlightRequest(t *testing.T) {
	t.Parallel()

	server, started := blockingServer(t)
	observer := &recordingObserver{}

	settings := DefaultSettings()
	settings.APIRoot = server.URL
	client := NewClient(NewConfig(settings, nil),
		WithHTTPClient(server.Client()),
		WithLogger(utils.NewNopLogger()),
		WithObserver(observer),
	)
	defer client.Close()

	inflight := client.SearchTracks(context.Background(), "slow", "", 0)
	queued := client.Track(context.Background(), 3)
	<-started

	client.Cancel()

	if _, err := GetOrThrow(inflight, 2*time.Second); !errors.Is(err, ErrCancelled) {
		t.Errorf("in-flight err = %v, want ErrCancelled", err)
	}
	if _, err := GetOrThrow(queued, 2*time.Second); !errors.Is(err, ErrCancelled) {
		t.Errorf("queued err = %v, want ErrCancelled", err)
	}
	if !client.Cancelled() {
		t.Error("Cancelled() should report true")
	}

	client.Reset()
	if client.Cancelled() {
		t.Error("Reset should clear the flag")
	}

	observer.mu.Lock()
	defer observer.mu.Unlock()
	if len(observer.outcomes) != 2 || observer.outcomes[0] != "tracks:cancelled" || observer.outcomes[1] != "track:cancelled" {
		t.Errorf("outcomes = %v", observer.outcomes)
	}
}

func TestCloseFailsPendingRequests(t *testing.T) {
	t.Parallel()

	server, started := blockingServer(t)
	client := newTestClient(t, server, nil)

	inflight := client.SearchTracks(context.Background(), "slow", "", 0)
	queued := client.Favorites(context.Background(), 10)
	<-started

	client.Close()
	client.Close()

	for name, f := range map[string]interface{ Done() <-chan struct{} }{"inflight": inflight, "queued": queued} {
		select {
		case <-f.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("%s future not resolved after Close", name)
		}
	}
	if _, err := inflight.Wait(time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("in-flight err = %v, want ErrClosed", err)
	}
	if _, err := queued.Wait(time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("queued err = %v, want ErrClosed", err)
	}
	if _, err := client.Me(context.Background()).Wait(time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("after close err = %v, want ErrClosed", err)
	}
}

func TestCloseWithFullQueue(t *testing.T) {
	t.Parallel()

	server, started := blockingServer(t)
	settings := DefaultSettings()
	settings.APIRoot = server.URL
	client := NewClient(NewConfig(settings, nil),
		WithHTTPClient(server.Client()),
		WithLogger(utils.NewNopLogger()),
		WithQueueSize(1),
	)

	inflight := client.SearchTracks(context.Background(), "slow", "", 0)
	<-started
	queued := client.Track(context.Background(), 1)

	// Both submitters block on the full queue.
	blocked := make(chan *Future[[]models.Track], 2)
	for range 2 {
		go func() {
			blocked <- client.SearchTracks(context.Background(), "more", "", 0)
		}()
	}
	time.Sleep(50 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		client.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return with submitters blocked on a full queue")
	}

	if _, err := inflight.Wait(time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("in-flight err = %v, want ErrClosed", err)
	}
	if _, err := queued.Wait(time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("queued err = %v, want ErrClosed", err)
	}
	for range 2 {
		select {
		case f := <-blocked:
			if _, err := f.Wait(time.Second); !errors.Is(err, ErrClosed) {
				t.Errorf("blocked submitter err = %v, want ErrClosed", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("blocked submitter never returned")
		}
	}
}

func TestCallerContextEndsRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ctx     func() (context.Context, context.CancelFunc)
		want    error
		outcome string
	}{
		{
			name:    "cancelled",
			ctx:     func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			want:    ErrCancelled,
			outcome: "tracks:cancelled",
		},
		{
			name: "deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 100*time.Millisecond)
			},
			want:    ErrTimeout,
			outcome: "tracks:timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server, started := blockingServer(t)
			observer := &recordingObserver{}
			settings := DefaultSettings()
			settings.APIRoot = server.URL
			client := NewClient(NewConfig(settings, nil),
				WithHTTPClient(server.Client()),
				WithLogger(utils.NewNopLogger()),
				WithObserver(observer),
			)
			defer client.Close()

			ctx, cancel := tt.ctx()
			defer cancel()

			f := client.SearchTracks(ctx, "slow", "", 0)
			<-started
			if tt.want == ErrCancelled {
				cancel()
			}

			_, err := GetOrThrow(f, 2*time.Second)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if errors.Is(err, ErrTransport) {
				t.Errorf("err = %v, should not be a transport error", err)
			}

			observer.mu.Lock()
			defer observer.mu.Unlock()
			if len(observer.outcomes) != 1 || observer.outcomes[0] != tt.outcome {
				t.Errorf("outcomes = %v, want [%s]", observer.outcomes, tt.outcome)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

func TestConfigRefresh(t *testing.T) {
	t.Parallel()

	var (
		creds accounts.Credentials
		err   error
	)
	source := accounts.SourceFunc(func(context.Context) (accounts.Credentials, error) { return creds, err })
	cfg := NewConfig(Settings{}, source)

	if s := cfg.Snapshot(); s.APIRoot != DefaultAPIRoot || s.ClientID != DefaultClientID || s.UserAgent != DefaultUserAgent {
		t.Errorf("defaults not applied: %+v", s)
	}

	creds = accounts.Credentials{Enabled: true, AccessToken: "tok", ClientID: "other"}
	if e := cfg.Refresh(context.Background()); e != nil {
		t.Fatalf("Refresh: %v", e)
	}
	if s := cfg.Snapshot(); !s.Authenticated || s.AccessToken != "tok" || s.ClientID != "other" {
		t.Errorf("authenticated snapshot = %+v", s)
	}

	creds = accounts.Credentials{Enabled: true, AccessToken: "tok", Error: "expired"}
	_ = cfg.Refresh(context.Background())
	if s := cfg.Snapshot(); s.Authenticated || s.AccessToken != "" || s.ClientID != DefaultClientID {
		t.Errorf("error-state snapshot = %+v", s)
	}

	creds, err = accounts.Credentials{}, errors.New("daemon down")
	if e := cfg.Refresh(context.Background()); e == nil {
		t.Error("Refresh should report the source error")
	}
	if cfg.Authenticated() {
		t.Error("config should be anonymous after a failed refresh")
	}
}
