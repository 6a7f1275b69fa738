package searchview

import (
	"context"
	"time"

	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/restriction"
)

// SearchEngine runs queries and reports index coverage.
type SearchEngine interface {
	Search(ctx context.Context, text string, r restriction.Restriction, offset, limit int) ([]query.ResultEntry, error)
	IndexCoverage() query.Coverage
}

// CoverageExtender indexes mail further into the past. It returns once
// coverage reaches since, or fails leaving coverage unchanged.
type CoverageExtender interface {
	ExtendCoverage(ctx context.Context, since time.Time) error
}

// EntityLoader loads the full entity behind a result entry.
type EntityLoader interface {
	Load(ctx context.Context, typ entity.Type, id entity.ID) (entity.Entity, error)
}

// FolderLister lists the mail folders offered as filters.
type FolderLister interface {
	ListFolders(ctx context.Context) ([]query.Folder, error)
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// Router holds the current location.
type Router interface {
	// URL returns the full current URL (path and query string).
	URL() string
	// Path returns the path component of URL.
	Path() string
	SetURL(url string)
}

// Notifier surfaces messages to the user.
type Notifier interface {
	FeatureUnavailable(feature string)
	Failure(err error)
}

// Tier describes what the active account may do.
type Tier interface {
	FilteringAllowed() bool
}

// Layout moves focus between the view's columns.
type Layout interface {
	FocusList()
	FocusDetail()
}

// List is the displayed result list.
type List interface {
	// Replace installs the result of a new query and clears the selection.
	Replace(typ entity.Type, entries []query.ResultEntry)
	Entries() []query.ResultEntry

	// IsInSearchResult reports whether id belongs to the last query result.
	IsInSearchResult(typ entity.Type, id entity.ID) bool
	// Generation identifies the installed result. Every Replace advances it.
	Generation() uint64
	// EntityEventReceived applies a change to the result of generation gen
	// and returns once the list reflects it. A change for a result that has
	// since been replaced fails with ErrResultReplaced.
	EntityEventReceived(ctx context.Context, gen uint64, typ entity.Type, id entity.ID, op entity.Operation) error

	IsListAvailable() bool
	IsEntitySelected(elementID string) bool
	// ScrollToIDAndSelect selects the entry with elementID. It reports
	// whether the entry was found.
	ScrollToIDAndSelect(elementID string) bool
	SelectNone()
	// SetSelection selects the given element ids and reports whether the
	// selection changed.
	SetSelection(elementIDs []string) (selected []query.ResultEntry, changed bool)
	SelectedEntities() []query.ResultEntry

	// WaitLoaded blocks until any pending list load has settled.
	WaitLoaded(ctx context.Context) error
}

// DetailPane shows the selected entity.
type DetailPane interface {
	IsShownEntity(id entity.ID) bool
	ShowEntity(e entity.Entity, focus bool)
	// ElementSelected records the list selection. A single changed selection
	// is followed by a ShowEntity call once the entity has loaded.
	ElementSelected(entries []query.ResultEntry, clicked, changed, multi bool)
	// HasViewer reports whether an entity is being shown.
	HasViewer() bool
	Shown() entity.Entity
}
