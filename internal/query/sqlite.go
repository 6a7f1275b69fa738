package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/restriction"
	"github.com/wesm/vaultsearch/internal/search"
	"github.com/wesm/vaultsearch/internal/store"
)

// SQLiteEngine implements Engine using direct SQLite queries.
type SQLiteEngine struct {
	st     *store.Store
	logger *slog.Logger

	// Coverage cache. Only successful loads are cached; errors cause a
	// retry on the next call.
	covMu     sync.Mutex
	coverage  Coverage
	covLoaded bool
}

// NewSQLiteEngine creates a new SQLite-backed search engine.
func NewSQLiteEngine(st *store.Store, logger *slog.Logger) *SQLiteEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteEngine{st: st, logger: logger}
}

// Close is a no-op for SQLiteEngine since it doesn't own the store.
func (e *SQLiteEngine) Close() error {
	return nil
}

// escapeLike escapes LIKE wildcards so terms match literally. Queries using
// it must declare ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\") // Escape backslash first
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

// mailFieldColumns maps a restriction field to the mail columns searched.
func mailFieldColumns(f restriction.Field) []string {
	switch f {
	case restriction.FieldSubject:
		return []string{"m.subject"}
	case restriction.FieldBody:
		return []string{"m.body"}
	case restriction.FieldSender:
		return []string{"m.sender"}
	case restriction.FieldTo:
		return []string{"m.recipients"}
	default:
		return []string{"m.subject", "m.body", "m.sender", "m.recipients"}
	}
}

var contactColumns = []string{"first_name", "last_name", "email", "company", "comment"}

// termConditions builds one condition per term, each requiring the term to
// occur in at least one of columns.
func termConditions(q *search.Query, columns []string) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}
	for _, term := range q.Terms {
		pattern := "%" + escapeLike(term) + "%"
		ors := make([]string, len(columns))
		for i, col := range columns {
			ors[i] = col + ` LIKE ? ESCAPE '\'`
			args = append(args, pattern)
		}
		conditions = append(conditions, "("+strings.Join(ors, " OR ")+")")
	}
	return conditions, args
}

// Search returns the entries matching text within r.
func (e *SQLiteEngine) Search(ctx context.Context, text string, r restriction.Restriction, offset, limit int) ([]ResultEntry, error) {
	q := search.Parse(text)
	switch r.Category {
	case restriction.CategoryContact:
		return e.searchContacts(ctx, q, offset, limit)
	case restriction.CategoryMail:
		return e.searchMails(ctx, q, r, offset, limit)
	default:
		return nil, fmt.Errorf("search: %w: category %q", restriction.ErrInvalidRestriction, r.Category)
	}
}

func limitClause(offset, limit int) (string, []interface{}) {
	if limit <= 0 {
		if offset > 0 {
			return "LIMIT -1 OFFSET ?", []interface{}{offset}
		}
		return "", nil
	}
	return "LIMIT ? OFFSET ?", []interface{}{limit, offset}
}

func (e *SQLiteEngine) searchMails(ctx context.Context, q *search.Query, r restriction.Restriction, offset, limit int) ([]ResultEntry, error) {
	cov := e.IndexCoverage()
	if cov.Kind == CoverageNone {
		return []ResultEntry{}, nil
	}

	var conditions []string
	var args []interface{}
	if cov.Kind == CoverageSince {
		conditions = append(conditions, "m.received_at >= ?")
		args = append(args, cov.Since.UnixMilli())
	}
	if r.Start != nil {
		conditions = append(conditions, "m.received_at >= ?")
		args = append(args, r.Start.UnixMilli())
	}
	if r.End != nil {
		conditions = append(conditions, "m.received_at <= ?")
		args = append(args, r.End.UnixMilli())
	}
	if r.FolderID != "" {
		conditions = append(conditions, "m.list_id = ?")
		args = append(args, r.FolderID)
	}
	termConds, termArgs := termConditions(q, mailFieldColumns(r.Field))
	conditions = append(conditions, termConds...)
	args = append(args, termArgs...)

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	limitSQL, limitArgs := limitClause(offset, limit)
	args = append(args, limitArgs...)

	sqlStr := fmt.Sprintf(`
		SELECT m.list_id, m.element_id, m.subject, m.body, m.sender, m.recipients, m.received_at
		FROM mails m
		%s
		ORDER BY m.received_at DESC, m.element_id DESC
		%s
	`, where, limitSQL)

	rows, err := e.st.DB().QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("search mails: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []ResultEntry{}
	for rows.Next() {
		m, err := store.ScanMail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mail: %w", err)
		}
		results = append(results, EntryFor(m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mails: %w", err)
	}
	return results, nil
}

func (e *SQLiteEngine) searchContacts(ctx context.Context, q *search.Query, offset, limit int) ([]ResultEntry, error) {
	conditions, args := termConditions(q, contactColumns)
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	limitSQL, limitArgs := limitClause(offset, limit)
	args = append(args, limitArgs...)

	sqlStr := fmt.Sprintf(`
		SELECT %s
		FROM contacts
		%s
		ORDER BY LOWER(TRIM(last_name || ' ' || first_name)) ASC, element_id ASC
		%s
	`, store.ContactColumns, where, limitSQL)

	rows, err := e.st.DB().QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []ResultEntry{}
	for rows.Next() {
		c, err := store.ScanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		results = append(results, EntryFor(c))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return results, nil
}

// Load returns the full entity for id.
func (e *SQLiteEngine) Load(ctx context.Context, typ entity.Type, id entity.ID) (entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch typ {
	case entity.TypeMail:
		m, err := e.st.GetMail(id)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, fmt.Errorf("mail %s: %w", id, ErrNotFound)
		}
		return m, nil
	case entity.TypeContact:
		c, err := e.st.GetContact(id)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("contact %s: %w", id, ErrNotFound)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("load %s %s: %w", typ, id, ErrNotFound)
	}
}

// ListFolders returns every mail folder.
func (e *SQLiteEngine) ListFolders(ctx context.Context) ([]Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.st.ListFolders()
}

// IndexCoverage returns the cached coverage, loading it on first use.
// A load failure reports no coverage and is retried on the next call.
func (e *SQLiteEngine) IndexCoverage() Coverage {
	e.covMu.Lock()
	if e.covLoaded {
		cov := e.coverage
		e.covMu.Unlock()
		return cov
	}
	e.covMu.Unlock()

	cov, err := e.RefreshCoverage(context.Background())
	if err != nil {
		e.logger.Warn("load index coverage", "error", err)
		return NoCoverage()
	}
	return cov
}

// RefreshCoverage reloads the coverage from storage.
func (e *SQLiteEngine) RefreshCoverage(ctx context.Context) (Coverage, error) {
	if err := ctx.Err(); err != nil {
		return Coverage{}, err
	}
	state, err := e.st.GetIndexState()
	if err != nil {
		return Coverage{}, err
	}

	var cov Coverage
	switch state.Kind {
	case store.CoverageFull:
		cov = FullCoverage()
	case store.CoverageSince:
		cov = CoverageFrom(state.Since)
	default:
		cov = NoCoverage()
	}

	e.covMu.Lock()
	e.coverage = cov
	e.covLoaded = true
	e.covMu.Unlock()
	return cov, nil
}

// ExtendCoverage moves the coverage start back to since. When since reaches
// the oldest stored mail the mailbox becomes fully indexed.
func (e *SQLiteEngine) ExtendCoverage(ctx context.Context, since time.Time) error {
	cov, err := e.RefreshCoverage(ctx)
	if err != nil {
		return fmt.Errorf("extend coverage: %w", err)
	}
	if !cov.NeedsExtension(since) {
		return nil
	}

	oldest, err := e.st.OldestMail()
	if err != nil {
		return fmt.Errorf("extend coverage: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if !oldest.IsZero() && !since.After(oldest) {
		err = e.st.SetIndexState(store.CoverageFull, time.Time{})
	} else {
		err = e.st.SetIndexState(store.CoverageSince, since)
	}
	if err != nil {
		return fmt.Errorf("extend coverage: %w", err)
	}

	cov, err = e.RefreshCoverage(ctx)
	if err != nil {
		return fmt.Errorf("extend coverage: %w", err)
	}
	e.logger.Info("index coverage extended", "coverage", cov.String())
	return nil
}

// Compile-time check.
var _ Engine = (*SQLiteEngine)(nil)
