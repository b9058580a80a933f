package scope

import (
	"sync"

	"norelock.dev/soundscope/internal/models"
)

// SearchReply receives the output of a query as it is produced.
type SearchReply interface {
	RegisterDepartments(root *models.Department)
	RegisterCategory(id, title, icon string, renderer models.Renderer) *models.Category
	// Push delivers one result. It returns false once the receiver is no
	// longer interested, and the query stops pushing.
	Push(result *models.Result) bool
	Error(err error)
}

// PreviewReply receives the layouts and widgets of a preview.
type PreviewReply interface {
	RegisterLayout(layouts ...models.ColumnLayout)
	Push(widgets ...*models.PreviewWidget) bool
	Error(err error)
}

// SearchCollector is a SearchReply that keeps everything for a single response.
// OnPush, when set, sees every result as it arrives and may stop the query.
type SearchCollector struct {
	OnPush func(*models.Category, *models.Result) bool

	mu         sync.Mutex
	reply      models.SearchReply
	categories map[string]*models.Category
	limit      int
	stopped    bool
}

// NewSearchCollector creates a collector for query id. A positive limit stops
// the query after that many results.
func NewSearchCollector(queryID string, limit int) *SearchCollector {
	return &SearchCollector{
		reply: models.SearchReply{
			QueryID:    queryID,
			Categories: []*models.Category{},
			Results:    []*models.Result{},
		},
		categories: make(map[string]*models.Category),
		limit:      limit,
	}
}

// RegisterDepartments implements SearchReply.
func (c *SearchCollector) RegisterDepartments(root *models.Department) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply.Departments = root
}

// RegisterCategory implements SearchReply. Registering an id twice returns the first category.
func (c *SearchCollector) RegisterCategory(id, title, icon string, renderer models.Renderer) *models.Category {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cat, ok := c.categories[id]; ok {
		return cat
	}
	cat := &models.Category{ID: id, Title: title, Icon: icon, Renderer: renderer}
	c.categories[id] = cat
	c.reply.Categories = append(c.reply.Categories, cat)
	return cat
}

// Push implements SearchReply.
func (c *SearchCollector) Push(result *models.Result) bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	c.reply.Results = append(c.reply.Results, result)
	if c.limit > 0 && len(c.reply.Results) >= c.limit {
		c.stopped = true
	}
	cat := c.categories[result.Category]
	onPush := c.OnPush
	stopped := c.stopped
	c.mu.Unlock()

	if onPush != nil && !onPush(cat, result) {
		c.Stop()
		return false
	}
	return !stopped
}

// Error implements SearchReply.
func (c *SearchCollector) Error(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply.Error = err.Error()
}

// Stop makes every further Push return false.
func (c *SearchCollector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

// Reply returns the collected reply.
func (c *SearchCollector) Reply() models.SearchReply {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reply
}

// PreviewCollector is a PreviewReply that keeps everything for a single response.
type PreviewCollector struct {
	mu    sync.Mutex
	reply models.PreviewReply
}

// NewPreviewCollector creates an empty collector.
func NewPreviewCollector() *PreviewCollector {
	return &PreviewCollector{
		reply: models.PreviewReply{
			Layouts: []models.ColumnLayout{},
			Widgets: []*models.PreviewWidget{},
		},
	}
}

// RegisterLayout implements PreviewReply.
func (c *PreviewCollector) RegisterLayout(layouts ...models.ColumnLayout) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply.Layouts = append(c.reply.Layouts, layouts...)
}

// Push implements PreviewReply.
func (c *PreviewCollector) Push(widgets ...*models.PreviewWidget) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply.Widgets = append(c.reply.Widgets, widgets...)
	return true
}

// Error implements PreviewReply.
func (c *PreviewCollector) Error(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply.Error = err.Error()
}

// Reply returns the collected reply.
func (c *PreviewCollector) Reply() models.PreviewReply {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reply
}
