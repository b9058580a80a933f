package models

// SearchRequest is the input of a search over REST or JSON-RPC.
type SearchRequest struct {
	// Query is the raw query string; it is trimmed before use.
	Query string `json:"query" validate:"max=200"`

	// Department is the selected department id, "" for the root.
	Department string `json:"department" validate:"max=64"`

	// Locale selects the message catalog, e.g. "en-US".
	Locale string `json:"locale" validate:"locale"`

	// Limit overrides the configured number of tracks.
	Limit int `json:"limit" validate:"min=0,max=200"`
}

// PreviewRequest asks for the preview of a previously returned result.
type PreviewRequest struct {
	Result Result `json:"result" validate:"required"`
	Locale string `json:"locale" validate:"locale"`
}

// ActivateRequest performs an action on a result.
type ActivateRequest struct {
	Result   Result `json:"result" validate:"required"`
	WidgetID string `json:"widgetId"`
	ActionID string `json:"actionId" validate:"required,max=32"`

	// ScopeData carries widget input, such as the "comment" text.
	ScopeData map[string]any `json:"scopeData,omitempty"`
	Locale    string         `json:"locale" validate:"locale"`
}

// SearchReply is the collected output of a search.
type SearchReply struct {
	QueryID     string      `json:"queryId"`
	Departments *Department `json:"departments,omitempty"`
	Categories  []*Category `json:"categories"`
	Results     []*Result   `json:"results"`
	Error       string      `json:"error,omitempty"`
}

// PreviewReply is the collected output of a preview.
type PreviewReply struct {
	Layouts []ColumnLayout   `json:"layouts"`
	Widgets []*PreviewWidget `json:"widgets"`
	Error   string           `json:"error,omitempty"`
}
