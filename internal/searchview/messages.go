package searchview

import (
	"time"

	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/restriction"
)

// NavigateMsg reports that the location changed to URL, either by the user
// or by the view itself.
type NavigateMsg struct {
	URL string
}

// SetDateRangeMsg is a user edit of the date range filter.
type SetDateRangeMsg struct {
	Start *time.Time
	End   *time.Time
}

// SetFieldMsg is a user edit of the field filter.
type SetFieldMsg struct {
	Field restriction.Field
}

// SetFolderMsg is a user edit of the folder filter.
type SetFolderMsg struct {
	FolderID string
}

// FoldersChangedMsg replaces the folder filter options.
type FoldersChangedMsg struct {
	Folders []query.Folder
}

// SelectMsg is a user selection in the result list.
type SelectMsg struct {
	ElementIDs []string
	Clicked    bool
	Multi      bool
}

// EntityUpdateMsg carries entity change events from the server.
type EntityUpdateMsg struct {
	Updates []entity.Update
}

// SnapshotMsg requests the current view state. The loop sends exactly one
// value on Reply, which must be buffered.
type SnapshotMsg struct {
	Reply chan<- Snapshot
}

// urlWrittenMsg is sent when a URL written by the view is due for
// navigation.
type urlWrittenMsg struct {
	url string
}

// confirmResultMsg is sent when the user answered the coverage prompt.
type confirmResultMsg struct {
	since     time.Time
	confirmed bool
	err       error
}

// coverageExtendedMsg is sent when a coverage extension settled.
type coverageExtendedMsg struct {
	since time.Time
	err   error
}

// searchResultsMsg is sent when a query completes.
type searchResultsMsg struct {
	entries     []query.ResultEntry
	restriction restriction.Restriction
	err         error
	requestID   uint64 // To detect stale responses
}

// listMutatedMsg is sent when the list applied an entity change.
type listMutatedMsg struct {
	update  entity.Update
	skipped bool // created entity does not match the result
	err     error
}

// entityReloadedMsg is sent when a shown entity was reloaded after an update.
type entityReloadedMsg struct {
	update entity.Update
	entity entity.Entity
	err    error
}

// detailLoadedMsg is sent when the entity for a new single selection loaded.
type detailLoadedMsg struct {
	entry     query.ResultEntry
	entity    entity.Entity
	focus     bool
	err       error
	requestID uint64
}

// focusDetailMsg is sent once the list settled after a click.
type focusDetailMsg struct {
	err error
}

// foldersLoadedMsg is sent when the folder list loaded.
type foldersLoadedMsg struct {
	folders []query.Folder
	err     error
}
