// Package querytest provides shared test doubles for the query.Engine interface.
package querytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/restriction"
)

// SearchCall records the arguments of one Search invocation.
type SearchCall struct {
	Text        string
	Restriction restriction.Restriction
	Offset      int
	Limit       int
}

// MockEngine implements query.Engine for testing. Each method delegates to an
// optional function field; when the field is nil, the canned data is used.
// It is safe for concurrent use.
type MockEngine struct {
	SearchResults []query.ResultEntry
	Entities      map[entity.ID]entity.Entity
	Folders       []query.Folder
	Coverage      query.Coverage

	// Optional per-test overrides.
	SearchFunc func(context.Context, string, restriction.Restriction, int, int) ([]query.ResultEntry, error)
	LoadFunc   func(context.Context, entity.Type, entity.ID) (entity.Entity, error)
	ExtendFunc func(context.Context, time.Time) error

	mu          sync.Mutex
	searchCalls []SearchCall
	loadCalls   []entity.ID
	extendCalls []time.Time
}

// Compile-time check.
var _ query.Engine = (*MockEngine)(nil)

func (m *MockEngine) Search(ctx context.Context, text string, r restriction.Restriction, offset, limit int) ([]query.ResultEntry, error) {
	m.mu.Lock()
	m.searchCalls = append(m.searchCalls, SearchCall{Text: text, Restriction: r, Offset: offset, Limit: limit})
	fn := m.SearchFunc
	results := m.SearchResults
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, r, offset, limit)
	}
	return append([]query.ResultEntry(nil), results...), nil
}

func (m *MockEngine) Load(ctx context.Context, typ entity.Type, id entity.ID) (entity.Entity, error) {
	m.mu.Lock()
	m.loadCalls = append(m.loadCalls, id)
	fn := m.LoadFunc
	e, ok := m.Entities[id]
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, typ, id)
	}
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", typ, id, query.ErrNotFound)
	}
	return e, nil
}

func (m *MockEngine) ListFolders(_ context.Context) ([]query.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]query.Folder(nil), m.Folders...), nil
}

func (m *MockEngine) IndexCoverage() query.Coverage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Coverage
}

func (m *MockEngine) RefreshCoverage(_ context.Context) (query.Coverage, error) {
	return m.IndexCoverage(), nil
}

// ExtendCoverage records the call and, unless ExtendFunc fails, moves the
// coverage back to since.
func (m *MockEngine) ExtendCoverage(ctx context.Context, since time.Time) error {
	m.mu.Lock()
	m.extendCalls = append(m.extendCalls, since)
	fn := m.ExtendFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, since); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Coverage.NeedsExtension(since) {
		m.Coverage = query.CoverageFrom(since)
	}
	return nil
}

func (m *MockEngine) Close() error { return nil }

// SetSearchResults replaces the canned search results.
func (m *MockEngine) SetSearchResults(results []query.ResultEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchResults = results
}

// PutEntity adds or replaces an entity returned by Load.
func (m *MockEngine) PutEntity(e entity.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Entities == nil {
		m.Entities = make(map[entity.ID]entity.Entity)
	}
	m.Entities[e.EntityID()] = e
}

// SearchCalls returns a copy of the recorded Search calls.
func (m *MockEngine) SearchCalls() []SearchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SearchCall(nil), m.searchCalls...)
}

// LoadCalls returns the ids passed to Load, in call order.
func (m *MockEngine) LoadCalls() []entity.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.ID(nil), m.loadCalls...)
}

// ExtendCalls returns the instants passed to ExtendCoverage.
func (m *MockEngine) ExtendCalls() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.extendCalls...)
}
