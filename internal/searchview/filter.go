package searchview

import (
	"time"

	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/restriction"
	"github.com/wesm/vaultsearch/internal/store"
)

// Feature names passed to Notifier.FeatureUnavailable.
const (
	FeatureDateRange = "date range"
	FeatureField     = "field filter"
	FeatureFolder    = "folder filter"
)

// FilterState is the user-editable part of a mail restriction.
type FilterState struct {
	// Start is the oldest selected day; nil searches from the index coverage.
	Start *time.Time `json:"start,omitempty"`
	// End is the newest selected day; nil searches through today.
	End      *time.Time        `json:"end,omitempty"`
	Field    restriction.Field `json:"field,omitempty"`
	FolderID string            `json:"folder_id,omitempty"`
}

// FilterController owns the filter state. User edits go through SetDateRange,
// SetField and SetFolder, which report whether a new search is needed.
// Restrictions decoded from a URL go through ApplyExternal, which never does.
type FilterController struct {
	state    FilterState
	folders  []query.Folder
	tier     Tier
	notifier Notifier
	coverage func() query.Coverage
	now      func() time.Time
}

// NewFilterController creates a controller with an empty filter.
func NewFilterController(tier Tier, notifier Notifier, coverage func() query.Coverage, now func() time.Time) *FilterController {
	if now == nil {
		now = time.Now
	}
	return &FilterController{tier: tier, notifier: notifier, coverage: coverage, now: now}
}

// State returns a copy of the current filter state.
func (f *FilterController) State() FilterState {
	s := f.state
	s.Start = copyTime(s.Start)
	s.End = copyTime(s.End)
	return s
}

// Folders returns the folders currently offered as filter options.
func (f *FilterController) Folders() []query.Folder {
	return append([]query.Folder(nil), f.folders...)
}

// SetDateRange applies a user-chosen range. An end on today and a start on
// the current index day both mean "unbounded" and are stored as nil.
func (f *FilterController) SetDateRange(start, end *time.Time) bool {
	if !f.tier.FilteringAllowed() {
		f.notifier.FeatureUnavailable(FeatureDateRange)
		return false
	}

	now := f.now()
	if end != nil && query.SameDay(now, *end) {
		end = nil
	}
	if start != nil {
		if current := f.coverage().IndexDate(now); current != nil && query.SameDay(*current, *start) {
			start = nil
		}
	}

	f.state.Start = copyTime(start)
	f.state.End = copyTime(end)
	return true
}

// SetField applies a user-chosen search field.
func (f *FilterController) SetField(v restriction.Field) bool {
	if !f.tier.FilteringAllowed() {
		if v != restriction.FieldAll {
			f.state.Field = restriction.FieldAll
			f.notifier.FeatureUnavailable(FeatureField)
		}
		return false
	}
	f.state.Field = v
	return true
}

// SetFolder applies a user-chosen folder. An empty id selects all folders.
func (f *FilterController) SetFolder(listID string) bool {
	if !f.tier.FilteringAllowed() {
		if listID != "" {
			f.state.FolderID = ""
			f.notifier.FeatureUnavailable(FeatureFolder)
		}
		return false
	}
	f.state.FolderID = listID
	return true
}

// ApplyExternal copies the mail filters of r into the state without
// triggering a search. Contact restrictions carry no filters and leave the
// state untouched.
func (f *FilterController) ApplyExternal(r restriction.Restriction) {
	if r.Category != restriction.CategoryMail {
		return
	}
	f.state = FilterState{
		Start:    copyTime(r.Start),
		End:      copyTime(r.End),
		Field:    r.Field,
		FolderID: r.FolderID,
	}
}

// SetFolders replaces the folder options. Spam folders are never offered.
// A selected folder that no longer exists falls back to all folders without
// triggering a search.
func (f *FilterController) SetFolders(folders []query.Folder) {
	f.folders = f.folders[:0]
	for _, folder := range folders {
		if folder.Type == store.FolderSpam {
			continue
		}
		f.folders = append(f.folders, folder)
	}

	if f.state.FolderID == "" {
		return
	}
	for _, folder := range f.folders {
		if folder.ListID == f.state.FolderID {
			return
		}
	}
	f.state.FolderID = ""
}

// Restriction builds the restriction for category from the current state.
// Dates widen to whole days.
func (f *FilterController) Restriction(category restriction.Category) restriction.Restriction {
	if category != restriction.CategoryMail {
		return restriction.Restriction{Category: category}
	}
	r := restriction.Restriction{
		Category: restriction.CategoryMail,
		Field:    f.state.Field,
		FolderID: f.state.FolderID,
	}
	if f.state.Start != nil {
		start := query.StartOfDay(*f.state.Start)
		r.Start = &start
	}
	if f.state.End != nil {
		end := query.EndOfDay(*f.state.End)
		r.End = &end
	}
	return r
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
