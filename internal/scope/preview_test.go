package scope

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"norelock.dev/soundscope/internal/config"
	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/soundcloud"
)

// hostResult returns the first explore result the way the host hands it back: JSON round-tripped.
func hostResult(t *testing.T, s *Scope) models.Result {
	t.Helper()

	reply := NewSearchCollector("q", 0)
	s.Search(models.SearchRequest{Department: "Ambient"}, Metadata{}).Run(context.Background(), reply)

	for _, r := range reply.Reply().Results {
		if r.Category != CategoryExplore {
			continue
		}
		raw, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var res models.Result
		if err := json.Unmarshal(raw, &res); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return res
	}
	t.Fatal("no explore result")
	return models.Result{}
}

func widgetsByID(reply models.PreviewReply) map[string]*models.PreviewWidget {
	widgets := make(map[string]*models.PreviewWidget, len(reply.Widgets))
	for _, w := range reply.Widgets {
		widgets[w.ID] = w
	}
	return widgets
}

func actionIDs(w *models.PreviewWidget) []string {
	actions, _ := w.Values["actions"].([]previewAction)
	ids := make([]string, 0, len(actions))
	for _, a := range actions {
		ids = append(ids, a.ID)
	}
	return ids
}

func trackSource(t *testing.T, w *models.PreviewWidget) *url.URL {
	t.Helper()
	tracks, _ := w.Values["tracks"].([]map[string]any)
	if len(tracks) != 1 {
		t.Fatalf("tracks = %v", w.Values["tracks"])
	}
	u, err := url.Parse(tracks[0]["source"].(string))
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	return u
}

// ---------------------------------------------------------------------------
// Preview
// ---------------------------------------------------------------------------

func TestPreviewAnonymous(t *testing.T) {
	t.Parallel()

	s, fake := newTestScope(t)
	res := hostResult(t, s)

	reply := NewPreviewCollector()
	s.Preview(res, Metadata{}).Run(context.Background(), reply)
	got := reply.Reply()

	if len(got.Layouts) != 1 {
		t.Fatalf("layouts = %d", len(got.Layouts))
	}
	wantIDs := []string{WidgetHeader, WidgetArt, WidgetStatistics, WidgetTracks, WidgetActions, WidgetDescription}
	if cols := got.Layouts[0].Columns; len(cols) != 1 || !equalStrings(cols[0], wantIDs) {
		t.Errorf("layout = %v", got.Layouts[0].Columns)
	}

	widgets := widgetsByID(got)
	if len(widgets) != len(wantIDs) {
		t.Errorf("widgets = %d, want %d", len(widgets), len(wantIDs))
	}
	if title := widgets[WidgetStatistics].Values["title"]; title != "▶ 12   ♥ 3" {
		t.Errorf("statistics = %q", title)
	}
	if ids := actionIDs(widgets[WidgetActions]); !equalStrings(ids, []string{"play"}) {
		t.Errorf("actions = %v", ids)
	}
	if m := widgets[WidgetHeader].Mappings; m["title"] != "title" || m["subtitle"] != "username" {
		t.Errorf("header mappings = %v", m)
	}

	source := trackSource(t, widgets[WidgetTracks])
	if source.Query().Get("client_id") != "test-client" || source.Query().Has("oauth_token") {
		t.Errorf("stream url = %s", source)
	}

	for _, r := range fake.recorded() {
		if r.URL.Path != "/tracks.json" {
			t.Errorf("anonymous preview requested %s", r.URL.Path)
		}
	}
}

func TestPreviewSocial(t *testing.T) {
	t.Parallel()

	s, _ := newTestScope(t, authenticated())
	res := hostResult(t, s)

	reply := NewPreviewCollector()
	s.Preview(res, Metadata{Locale: "en-US"}).Run(context.Background(), reply)
	got := reply.Reply()

	wantIDs := []string{WidgetHeader, WidgetArt, WidgetStatistics, WidgetTracks, WidgetActions,
		WidgetComment, WidgetDescription, WidgetComments}
	if cols := got.Layouts[0].Columns; !equalStrings(cols[0], wantIDs) {
		t.Errorf("layout = %v", cols)
	}

	widgets := widgetsByID(got)
	actions := widgets[WidgetActions]
	if ids := actionIDs(actions); !equalStrings(ids, []string{"play", models.ActionLike, models.ActionUnfollow}) {
		t.Errorf("actions = %v", ids)
	}
	list, _ := actions.Values["actions"].([]previewAction)
	if last := list[len(list)-1]; last.Label != "Unfollow alice" {
		t.Errorf("follow label = %q", last.Label)
	}

	comments := widgets[WidgetComments]
	if comments.Type != "expandable" || comments.Values["title"] != "Comments (2)" {
		t.Errorf("comments = %+v", comments.Values)
	}
	children, _ := comments.Values["widgets"].([]*models.PreviewWidget)
	if len(children) != 1 || children[0].ID != "comment-100" || children[0].Values["author"] != "dave" {
		t.Errorf("comment widgets = %v", children)
	}
	if children[0].Values["subtitle"] != "2014/01/02" {
		t.Errorf("comment date = %v", children[0].Values["subtitle"])
	}

	source := trackSource(t, widgets[WidgetTracks])
	if source.Query().Get("oauth_token") != "secret-token" || source.Query().Has("client_id") {
		t.Errorf("stream url = %s", source)
	}
}

func TestPreviewSocialDisabled(t *testing.T) {
	t.Parallel()

	s, fake := newTestScopeWith(t, func(cfg *config.Config) {
		cfg.Features.EnableSocial = false
	}, authenticated())
	res := hostResult(t, s)

	reply := NewPreviewCollector()
	s.Preview(res, Metadata{}).Run(context.Background(), reply)

	if _, ok := widgetsByID(reply.Reply())[WidgetComment]; ok {
		t.Error("comment input shown with social features disabled")
	}
	if fake.find(http.MethodGet, "/me/favorites/1.json") != nil {
		t.Error("like state requested with social features disabled")
	}
}

func TestPreviewSocialFailuresDropWidgets(t *testing.T) {
	t.Parallel()

	s, fake := newTestScope(t, authenticated())
	res := hostResult(t, s)
	fake.set(func(f *fakeSoundCloud) { f.failing = true })

	reply := NewPreviewCollector()
	s.Preview(res, Metadata{}).Run(context.Background(), reply)
	got := reply.Reply()

	if got.Error != "" {
		t.Errorf("error = %q", got.Error)
	}
	widgets := widgetsByID(got)
	if _, ok := widgets[WidgetComments]; ok {
		t.Error("comments shown although they could not be loaded")
	}
	if ids := actionIDs(widgets[WidgetActions]); !equalStrings(ids, []string{"play"}) {
		t.Errorf("actions = %v", ids)
	}
}

func TestPreviewOptionalActions(t *testing.T) {
	t.Parallel()

	s, _ := newTestScope(t)
	res := models.Result{URI: "7", Title: "Buyable", Attributes: map[string]any{
		"purchase-url":  "https://shop.example.com/7",
		"video-url":     "https://youtu.be/x",
		"permalink-url": "https://soundcloud.com/x/7",
		"streamable":    false,
	}}

	reply := NewPreviewCollector()
	s.Preview(res, Metadata{}).Run(context.Background(), reply)
	widgets := widgetsByID(reply.Reply())

	if ids := actionIDs(widgets[WidgetActions]); !equalStrings(ids, []string{"buy", "video", "play"}) {
		t.Errorf("actions = %v", ids)
	}
	if _, ok := widgets[WidgetTracks].Values["tracks"]; ok {
		t.Error("tracks filled for a non-streamable result")
	}
}

func TestPreviewDropsInvalidLinks(t *testing.T) {
	t.Parallel()

	s, _ := newTestScope(t)
	res := models.Result{URI: "7", Title: "Tampered", Attributes: map[string]any{
		"purchase-url":  "not a url",
		"video-url":     "https://youtu.be/x",
		"permalink-url": "https://evil.example.com/soundcloud.com/x",
		"streamable":    false,
	}}

	reply := NewPreviewCollector()
	s.Preview(res, Metadata{}).Run(context.Background(), reply)
	widgets := widgetsByID(reply.Reply())

	if ids := actionIDs(widgets[WidgetActions]); !equalStrings(ids, []string{"video", "play"}) {
		t.Errorf("actions = %v", ids)
	}
	actions, _ := widgets[WidgetActions].Values["actions"].([]previewAction)
	for _, a := range actions {
		if a.ID == "play" && a.URI != "" {
			t.Errorf("play URI = %q, want it dropped", a.URI)
		}
	}
}

func TestSignStreamURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		settings soundcloud.Settings
		want     string
	}{
		{"empty", "", soundcloud.Settings{ClientID: "id"}, ""},
		{"anonymous", "https://api.example.com/tracks/1/stream", soundcloud.Settings{ClientID: "id"},
			"https://api.example.com/tracks/1/stream?client_id=id"},
		{"authenticated", "https://api.example.com/tracks/1/stream?x=1",
			soundcloud.Settings{ClientID: "id", AccessToken: "tok", Authenticated: true},
			"https://api.example.com/tracks/1/stream?oauth_token=tok&x=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := signStreamURL(tt.raw, tt.settings); got != tt.want {
				t.Errorf("signStreamURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
