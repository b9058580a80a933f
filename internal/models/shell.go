package models

import (
	"encoding/json"
	"strconv"
)

// Renderer is the declarative card template a category is drawn with.
type Renderer struct {
	SchemaVersion int              `json:"schema-version"`
	Template      RendererTemplate `json:"template"`
	Components    map[string]any   `json:"components"`
}

// RendererTemplate holds the layout part of a Renderer.
type RendererTemplate struct {
	CategoryLayout string `json:"category-layout"`
	CardSize       string `json:"card-size,omitempty"`
	Overlay        bool   `json:"overlay,omitempty"`
	CardBackground string `json:"card-background,omitempty"`
}

// Category groups results in a search reply.
type Category struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Icon     string   `json:"icon,omitempty"`
	Renderer Renderer `json:"renderer"`
}

// Result is a single categorised search result. The host hands it back
// unchanged when asking for a preview or an activation.
type Result struct {
	URI        string         `json:"uri" validate:"required"`
	Title      string         `json:"title"`
	Art        string         `json:"art,omitempty"`
	Category   string         `json:"category"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// ResultLinks are the outbound links a result carries. The host hands results
// back verbatim, so they are validated before being offered as actions.
type ResultLinks struct {
	Permalink string `json:"permalink-url" validate:"omitempty,soundcloud_url"`
	Purchase  string `json:"purchase-url" validate:"omitempty,url"`
	Video     string `json:"video-url" validate:"omitempty,url"`
}

// Drop clears the link stored under the json name field.
func (l *ResultLinks) Drop(field string) {
	switch field {
	case "permalink-url":
		l.Permalink = ""
	case "purchase-url":
		l.Purchase = ""
	case "video-url":
		l.Video = ""
	}
}

// NewResult creates an empty result in the given category.
func NewResult(category *Category) *Result {
	return &Result{
		Category:   category.ID,
		Attributes: make(map[string]any),
	}
}

// Links returns the link attributes of the result.
func (r *Result) Links() ResultLinks {
	return ResultLinks{
		Permalink: r.String("permalink-url"),
		Purchase:  r.String("purchase-url"),
		Video:     r.String("video-url"),
	}
}

// Set stores an attribute on the result.
func (r *Result) Set(key string, value any) {
	if r.Attributes == nil {
		r.Attributes = make(map[string]any)
	}
	r.Attributes[key] = value
}

// String returns an attribute rendered as a string. Numbers and booleans are
// formatted, anything else missing yields "".
func (r *Result) String(key string) string {
	switch v := r.Attributes[key].(type) {
	case string:
		return v
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Bool returns a boolean attribute, false when absent.
func (r *Result) Bool(key string) bool {
	switch v := r.Attributes[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// Uint returns a numeric attribute, 0 when absent or malformed.
func (r *Result) Uint(key string) uint {
	if s, ok := r.Attributes[key].(string); ok {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return 0
		}
		return uint(n)
	}
	if v, ok := r.Attributes[key].(uint); ok {
		return v
	}
	return uintField(r.Attributes, key)
}

// Department is a node in the department tree offered alongside a search.
type Department struct {
	ID             string        `json:"id"`
	Label          string        `json:"label"`
	Subdepartments []*Department `json:"subdepartments,omitempty"`
}

// AddSubdepartment appends child to d.
func (d *Department) AddSubdepartment(child *Department) {
	d.Subdepartments = append(d.Subdepartments, child)
}

// PreviewWidget is a widget of a preview. Values are literal attributes and
// mappings name result attributes the host copies in.
type PreviewWidget struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Values   map[string]any    `json:"values,omitempty"`
	Mappings map[string]string `json:"mappings,omitempty"`
}

// NewPreviewWidget creates an empty widget.
func NewPreviewWidget(id, widgetType string) *PreviewWidget {
	return &PreviewWidget{ID: id, Type: widgetType}
}

// AddAttributeValue sets a literal attribute.
func (w *PreviewWidget) AddAttributeValue(key string, value any) {
	if w.Values == nil {
		w.Values = make(map[string]any)
	}
	w.Values[key] = value
}

// AddAttributeMapping maps widget attribute key to result attribute field.
func (w *PreviewWidget) AddAttributeMapping(key, field string) {
	if w.Mappings == nil {
		w.Mappings = make(map[string]string)
	}
	w.Mappings[key] = field
}

// ColumnLayout lists the widget ids of every column for a given column count.
type ColumnLayout struct {
	Columns [][]string `json:"columns"`
}

// NewColumnLayout creates a layout with n empty columns.
func NewColumnLayout(n int) ColumnLayout {
	return ColumnLayout{Columns: make([][]string, 0, n)}
}

// AddColumn appends a column holding the given widget ids.
func (l *ColumnLayout) AddColumn(widgetIDs ...string) {
	l.Columns = append(l.Columns, widgetIDs)
}

// ActivationStatus tells the host what to do after an activation.
type ActivationStatus string

const (
	ActivationNotHandled   ActivationStatus = "not_handled"
	ActivationShowDash     ActivationStatus = "show_dash"
	ActivationHideDash     ActivationStatus = "hide_dash"
	ActivationShowPreview  ActivationStatus = "show_preview"
	ActivationPerformQuery ActivationStatus = "perform_query"
	ActivationUpdateResult ActivationStatus = "update_result"
)

// ActivationResponse is returned for every performed action.
type ActivationResponse struct {
	Status ActivationStatus `json:"status"`
}

// AccountLoginAction is what the host does after a login attempt started from a nag.
type AccountLoginAction int

const (
	_ AccountLoginAction = iota
	LoginDoNothing
	LoginInvalidateResults
	LoginContinueActivation
)

// OnlineAccountDetails is attached to the login nag result.
type OnlineAccountDetails struct {
	ServiceName       string             `json:"service_name"`
	ServiceType       string             `json:"service_type"`
	ProviderName      string             `json:"provider_name"`
	LoginPassedAction AccountLoginAction `json:"login_passed_action"`
	LoginFailedAction AccountLoginAction `json:"login_failed_action"`
}
