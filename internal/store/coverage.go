package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Index coverage kinds as stored in index_state.coverage_kind.
const (
	CoverageNone  = "none"
	CoverageFull  = "full"
	CoverageSince = "since"
)

// IndexState is the persisted mail index coverage.
type IndexState struct {
	Kind      string
	Since     time.Time // Only meaningful for CoverageSince
	UpdatedAt time.Time
}

// GetIndexState returns the stored index coverage. A database that was never
// indexed reports CoverageNone.
func (s *Store) GetIndexState() (IndexState, error) {
	var st IndexState
	var since sql.NullInt64
	var updated int64
	err := s.db.QueryRow(`
		SELECT coverage_kind, covered_since, updated_at FROM index_state WHERE id = 1
	`).Scan(&st.Kind, &since, &updated)
	if err == sql.ErrNoRows {
		return IndexState{Kind: CoverageNone}, nil
	}
	if err != nil {
		return IndexState{}, fmt.Errorf("get index state: %w", err)
	}
	if since.Valid {
		st.Since = time.UnixMilli(since.Int64).UTC()
	}
	st.UpdatedAt = time.UnixMilli(updated).UTC()
	return st, nil
}

// SetIndexState replaces the stored index coverage.
func (s *Store) SetIndexState(kind string, since time.Time) error {
	switch kind {
	case CoverageNone, CoverageFull, CoverageSince:
	default:
		return fmt.Errorf("set index state: unknown coverage kind %q", kind)
	}

	var sinceArg any
	if kind == CoverageSince {
		sinceArg = since.UnixMilli()
	}
	_, err := s.db.Exec(`
		INSERT INTO index_state (id, coverage_kind, covered_since, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			coverage_kind = excluded.coverage_kind,
			covered_since = excluded.covered_since,
			updated_at = excluded.updated_at
	`, kind, sinceArg, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set index state: %w", err)
	}
	return nil
}

// OldestMail returns the receive time of the oldest stored mail, or the zero
// time when there is none.
func (s *Store) OldestMail() (time.Time, error) {
	var oldest sql.NullInt64
	if err := s.db.QueryRow(`SELECT MIN(received_at) FROM mails`).Scan(&oldest); err != nil {
		return time.Time{}, fmt.Errorf("oldest mail: %w", err)
	}
	if !oldest.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(oldest.Int64).UTC(), nil
}
