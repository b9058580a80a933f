package scope

import "norelock.dev/soundscope/internal/models"

// Category ids.
const (
	CategoryStream  = "stream"
	CategoryNag     = "nag"
	CategoryExplore = "explore"
	CategorySearch  = "search"
	CategoryYouTube = "youtube"
)

func trackRenderer() models.Renderer {
	return models.Renderer{
		SchemaVersion: 1,
		Template: models.RendererTemplate{
			CategoryLayout: "grid",
			CardSize:       "large",
			Overlay:        true,
			CardBackground: "color:///#000000",
		},
		Components: map[string]any{
			"title": "title",
			"art": map[string]any{
				"field":        "art",
				"aspect-ratio": 4.0,
			},
			"subtitle":   "subtitle",
			"mascot":     "mascot",
			"attributes": "attributes",
		},
	}
}

func nagRenderer() models.Renderer {
	return models.Renderer{
		SchemaVersion: 1,
		Template: models.RendererTemplate{
			CategoryLayout: "grid",
			CardSize:       "large",
			CardBackground: "color:///#DD4814",
		},
		Components: map[string]any{
			"title":      "title",
			"background": "background",
			"art": map[string]any{
				"aspect-ratio": 100.0,
			},
		},
	}
}

func videoRenderer() models.Renderer {
	return models.Renderer{
		SchemaVersion: 1,
		Template: models.RendererTemplate{
			CategoryLayout: "grid",
			CardSize:       "medium",
		},
		Components: map[string]any{
			"title":    "title",
			"art":      "art",
			"subtitle": "subtitle",
		},
	}
}
