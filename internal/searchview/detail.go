package searchview

import (
	"sync"

	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/query"
)

// DetailView is a headless detail pane. It records which entity is shown
// and how often it was refreshed.
type DetailView struct {
	mu       sync.Mutex
	shown    entity.Entity
	focused  bool
	renders  int
	selected []query.ResultEntry
}

func NewDetailView() *DetailView {
	return &DetailView{}
}

func (d *DetailView) IsShownEntity(id entity.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown != nil && d.shown.EntityID() == id
}

func (d *DetailView) ShowEntity(e entity.Entity, focus bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown = e
	d.focused = focus
	d.renders++
}

// ElementSelected clears the pane unless exactly one entry is selected.
func (d *DetailView) ElementSelected(entries []query.ResultEntry, _, _, multi bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selected = append([]query.ResultEntry(nil), entries...)
	if len(entries) != 1 || multi {
		d.shown = nil
		d.focused = false
	}
}

func (d *DetailView) HasViewer() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown != nil
}

func (d *DetailView) Shown() entity.Entity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown
}

// Renders returns how many times an entity was shown.
func (d *DetailView) Renders() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.renders
}

var _ DetailPane = (*DetailView)(nil)
