package query

import (
	"context"
	"time"

	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/restriction"
)

// Engine provides search operations for vaultsearch data.
type Engine interface {
	// Search returns the entries matching text within r, ordered for
	// display. A limit <= 0 returns all matches.
	Search(ctx context.Context, text string, r restriction.Restriction, offset, limit int) ([]ResultEntry, error)

	// Load returns the full entity for a result entry, or ErrNotFound.
	Load(ctx context.Context, typ entity.Type, id entity.ID) (entity.Entity, error)

	// ListFolders returns every mail folder.
	ListFolders(ctx context.Context) ([]Folder, error)

	// IndexCoverage returns the cached index coverage without blocking.
	IndexCoverage() Coverage

	// RefreshCoverage reloads the coverage from storage.
	RefreshCoverage(ctx context.Context) (Coverage, error)

	// ExtendCoverage indexes mail back to since. Extending to a point
	// already covered is a no-op.
	ExtendCoverage(ctx context.Context, since time.Time) error

	// Close releases any resources held by the engine.
	Close() error
}
