package searchview

import "sync"

// Column is a column of the search view.
type Column string

const (
	ColumnList   Column = "list"
	ColumnDetail Column = "detail"
)

// LayoutTracker records which column has focus.
type LayoutTracker struct {
	mu    sync.Mutex
	focus Column
}

func (l *LayoutTracker) FocusList()   { l.set(ColumnList) }
func (l *LayoutTracker) FocusDetail() { l.set(ColumnDetail) }

func (l *LayoutTracker) set(c Column) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.focus = c
}

// Focus returns the focused column, "" before the first move.
func (l *LayoutTracker) Focus() Column {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.focus
}

// StaticTier is an account tier fixed at startup.
type StaticTier struct {
	// Restricted accounts cannot use the search filters.
	Restricted bool
}

func (t StaticTier) FilteringAllowed() bool { return !t.Restricted }

var (
	_ Layout = (*LayoutTracker)(nil)
	_ Tier   = StaticTier{}
)
