package searchview

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/query"
)

// ErrResultReplaced reports an entity change dropped because a newer query
// result was installed after the change started.
var ErrResultReplaced = errors.New("result replaced")

// ResultList is an in-memory ordered result list with a selection. It is
// safe for concurrent use; entity changes are applied from command
// goroutines while the loop reads it.
type ResultList struct {
	loader EntityLoader

	mu        sync.Mutex
	gen       uint64
	typ       entity.Type
	entries   []query.ResultEntry
	selected  map[entity.ID]bool
	available bool

	pending int
	idle    chan struct{}
}

// NewResultList creates an empty list that loads changed entities through
// loader.
func NewResultList(loader EntityLoader) *ResultList {
	return &ResultList{loader: loader, selected: make(map[entity.ID]bool)}
}

// Replace installs a new result and clears the selection.
func (l *ResultList) Replace(typ entity.Type, entries []query.ResultEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.typ = typ
	l.entries = append([]query.ResultEntry(nil), entries...)
	l.selected = make(map[entity.ID]bool)
	l.available = true
}

func (l *ResultList) Generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}

// Type returns the entity type of the current result.
func (l *ResultList) Type() entity.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.typ
}

func (l *ResultList) Entries() []query.ResultEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]query.ResultEntry(nil), l.entries...)
}

func (l *ResultList) IsInSearchResult(typ entity.Type, id entity.ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return typ == l.typ && l.indexOf(id) >= 0
}

// indexOf returns the position of id, or -1. Callers hold mu.
func (l *ResultList) indexOf(id entity.ID) int {
	for i, e := range l.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// EntityEventReceived applies op for id to the result of generation gen.
// Created and updated entities are loaded and placed by sort key; a deleted
// entity leaves the list and the selection. An update for an entity that
// left the list while loading is dropped.
func (l *ResultList) EntityEventReceived(ctx context.Context, gen uint64, typ entity.Type, id entity.ID, op entity.Operation) error {
	l.mu.Lock()
	current, listed := l.gen, l.typ
	l.mu.Unlock()
	if gen != current {
		return ErrResultReplaced
	}
	if typ != listed {
		return nil
	}

	switch op {
	case entity.OpCreate, entity.OpUpdate:
		l.beginLoad()
		defer l.endLoad()
		e, err := l.loader.Load(ctx, typ, id)
		if err != nil {
			return fmt.Errorf("load %s %s: %w", typ, id, err)
		}
		return l.put(gen, query.EntryFor(e), op == entity.OpUpdate)
	case entity.OpDelete:
		return l.remove(gen, id)
	default:
		return fmt.Errorf("apply %s to %s: unsupported operation", op, id)
	}
}

// put places entry by sort key. With member set, entry must already be
// listed.
func (l *ResultList) put(gen uint64, entry query.ResultEntry, member bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return ErrResultReplaced
	}
	if i := l.indexOf(entry.ID); i >= 0 {
		l.entries = append(l.entries[:i], l.entries[i+1:]...)
	} else if member {
		return nil
	}
	i := sort.Search(len(l.entries), func(i int) bool {
		return query.Less(l.typ, entry, l.entries[i])
	})
	l.entries = append(l.entries, query.ResultEntry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = entry
	return nil
}

func (l *ResultList) remove(gen uint64, id entity.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return ErrResultReplaced
	}
	if i := l.indexOf(id); i >= 0 {
		l.entries = append(l.entries[:i], l.entries[i+1:]...)
	}
	delete(l.selected, id)
	return nil
}

// IsListAvailable reports whether a result has been installed.
func (l *ResultList) IsListAvailable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available
}

func (l *ResultList) IsEntitySelected(elementID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range l.selected {
		if id.ElementID == elementID {
			return true
		}
	}
	return false
}

// ScrollToIDAndSelect makes the first entry with elementID the only
// selected entry.
func (l *ResultList) ScrollToIDAndSelect(elementID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.ID.ElementID == elementID {
			l.selected = map[entity.ID]bool{e.ID: true}
			return true
		}
	}
	return false
}

func (l *ResultList) SelectNone() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selected = make(map[entity.ID]bool)
}

// SetSelection selects the entries with the given element ids. Ids not in
// the list are ignored.
func (l *ResultList) SetSelection(elementIDs []string) ([]query.ResultEntry, bool) {
	want := make(map[string]bool, len(elementIDs))
	for _, id := range elementIDs {
		want[id] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	next := make(map[entity.ID]bool)
	for _, e := range l.entries {
		if want[e.ID.ElementID] {
			next[e.ID] = true
		}
	}
	changed := len(next) != len(l.selected)
	if !changed {
		for id := range next {
			if !l.selected[id] {
				changed = true
				break
			}
		}
	}
	l.selected = next
	return l.selectedLocked(), changed
}

// SelectedEntities returns the selected entries in list order.
func (l *ResultList) SelectedEntities() []query.ResultEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.selectedLocked()
}

func (l *ResultList) selectedLocked() []query.ResultEntry {
	var out []query.ResultEntry
	for _, e := range l.entries {
		if l.selected[e.ID] {
			out = append(out, e)
		}
	}
	return out
}

func (l *ResultList) beginLoad() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == 0 {
		l.idle = make(chan struct{})
	}
	l.pending++
}

func (l *ResultList) endLoad() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending--
	if l.pending == 0 {
		close(l.idle)
	}
}

// WaitLoaded blocks until no entity load is in progress.
func (l *ResultList) WaitLoaded(ctx context.Context) error {
	l.mu.Lock()
	if l.pending == 0 {
		l.mu.Unlock()
		return nil
	}
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ List = (*ResultList)(nil)
