// Package query provides the search layer for vaultsearch.
// It runs restriction-scoped searches, loads entities for detail views and
// owns the mail index coverage state.
package query

import (
	"errors"
	"fmt"
	"time"

	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/store"
)

// ErrNotFound is returned by Load when the entity does not exist.
var ErrNotFound = errors.New("entity not found")

// ResultEntry is one row of a search result.
type ResultEntry struct {
	ID      entity.ID   `json:"id"`
	Type    entity.Type `json:"type"`
	SortKey string      `json:"sort_key"`
}

// EntryFor builds the result entry for e.
func EntryFor(e entity.Entity) ResultEntry {
	return ResultEntry{ID: e.EntityID(), Type: e.EntityType(), SortKey: e.SortKey()}
}

// Less reports whether a sorts before b in a result list of type typ.
// Ties on the sort key break on element id in the same direction.
func Less(typ entity.Type, a, b ResultEntry) bool {
	if a.SortKey != b.SortKey {
		if typ.Descending() {
			return a.SortKey > b.SortKey
		}
		return a.SortKey < b.SortKey
	}
	if typ.Descending() {
		return a.ID.ElementID > b.ID.ElementID
	}
	return a.ID.ElementID < b.ID.ElementID
}

// Folder is a mail folder offered as a search filter.
type Folder = store.Folder

// CoverageKind describes how much of the mailbox is indexed.
type CoverageKind int

const (
	// CoverageNone means nothing is indexed yet.
	CoverageNone CoverageKind = iota
	// CoverageFull means the whole mailbox is indexed.
	CoverageFull
	// CoverageSince means mail received at or after Coverage.Since is indexed.
	CoverageSince
)

func (k CoverageKind) String() string {
	switch k {
	case CoverageNone:
		return store.CoverageNone
	case CoverageFull:
		return store.CoverageFull
	case CoverageSince:
		return store.CoverageSince
	default:
		return fmt.Sprintf("CoverageKind(%d)", int(k))
	}
}

// Coverage is the index coverage state.
type Coverage struct {
	Kind  CoverageKind
	Since time.Time
}

// FullCoverage returns a coverage spanning the whole mailbox.
func FullCoverage() Coverage { return Coverage{Kind: CoverageFull} }

// NoCoverage returns an empty coverage.
func NoCoverage() Coverage { return Coverage{Kind: CoverageNone} }

// CoverageFrom returns a coverage of all mail received at or after since.
func CoverageFrom(since time.Time) Coverage {
	return Coverage{Kind: CoverageSince, Since: since}
}

// IndexDate is the oldest indexed day as shown to the user: nil when the
// whole mailbox is indexed, the end of today when nothing is indexed, and
// the coverage start otherwise.
func (c Coverage) IndexDate(now time.Time) *time.Time {
	switch c.Kind {
	case CoverageFull:
		return nil
	case CoverageNone:
		eod := EndOfDay(now)
		return &eod
	default:
		since := c.Since
		return &since
	}
}

// NeedsExtension reports whether searching from start requires indexing
// further into the past.
func (c Coverage) NeedsExtension(start time.Time) bool {
	switch c.Kind {
	case CoverageFull:
		return false
	case CoverageNone:
		return true
	default:
		return start.Before(c.Since)
	}
}

// Covers reports whether mail received at t is indexed.
func (c Coverage) Covers(t time.Time) bool {
	switch c.Kind {
	case CoverageFull:
		return true
	case CoverageNone:
		return false
	default:
		return !t.Before(c.Since)
	}
}

func (c Coverage) String() string {
	if c.Kind == CoverageSince {
		return "since " + c.Since.Format(time.RFC3339)
	}
	return c.Kind.String()
}

// StartOfDay returns midnight at the start of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last millisecond of t's day in t's location.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}

// SameDay reports whether a and b fall on the same calendar day in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
