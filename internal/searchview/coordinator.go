package searchview

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/metrics"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/restriction"
)

// DefaultPageSize caps mail results per query. Contact searches are unbounded.
const DefaultPageSize = 100

// issuedQuery is the query text and restriction of the last issued search.
type issuedQuery struct {
	text        string
	restriction restriction.Restriction
}

// Coordinator decides when a query runs. It gates searches that need older
// mail behind a confirmation and a coverage extension, and writes the
// resulting URL so that navigation, not the filter edit, issues the query.
type Coordinator struct {
	ctx       context.Context
	engine    SearchEngine
	extender  CoverageExtender
	confirmer Confirmer
	router    Router
	notifier  Notifier
	filter    *FilterController
	list      List
	layout    Layout
	pageSize  int
	logger    *slog.Logger
	metrics   *metrics.Metrics

	last            *issuedQuery
	shown           *issuedQuery // query behind the displayed result
	requestID       uint64
	inFlight        bool
	pendingSelectID string
	// steps counts confirm, extend and URL-write commands whose result
	// has not reached the loop yet.
	steps int
}

// LastQuery returns the text of the last issued query, or "" if none.
func (c *Coordinator) LastQuery() string {
	if c.last == nil {
		return ""
	}
	return c.last.text
}

// LastRestriction returns the restriction of the last issued query.
func (c *Coordinator) LastRestriction() (restriction.Restriction, bool) {
	if c.last == nil {
		return restriction.Restriction{}, false
	}
	return c.last.restriction, true
}

// IsNewSearch reports whether text and r differ from the last issued query.
func (c *Coordinator) IsNewSearch(text string, r restriction.Restriction) bool {
	if c.last == nil {
		return true
	}
	return c.last.text != text || !c.last.restriction.Equal(r)
}

// InFlight reports whether a query has been issued and not yet answered.
func (c *Coordinator) InFlight() bool {
	return c.inFlight
}

// Busy reports whether a search is under way, from the filter edit or URL
// write that starts it until its results arrive.
func (c *Coordinator) Busy() bool {
	return c.inFlight || c.steps > 0
}

// currentCategory is the category of the current route, mail if the route
// does not name one.
func (c *Coordinator) currentCategory() restriction.Category {
	r, err := restriction.Decode(c.router.URL())
	if err != nil {
		return restriction.CategoryMail
	}
	return r.Category
}

// currentURL encodes the filter state for the current category with the
// last query text.
func (c *Coordinator) currentURL() string {
	return restriction.Encode(c.filter.Restriction(c.currentCategory()), c.LastQuery(), "")
}

// SearchAgain runs after a user edit of the filter. If the edit reaches
// before the index coverage the user is asked first; otherwise the new URL
// is written right away.
func (c *Coordinator) SearchAgain() tea.Cmd {
	r := c.filter.Restriction(c.currentCategory())
	if r.Category == restriction.CategoryMail && r.Start != nil {
		if cov := c.engine.IndexCoverage(); cov.NeedsExtension(*r.Start) {
			return c.confirmExtension(*r.Start)
		}
	}
	return c.WriteURL(c.currentURL())
}

// WriteURL moves the router to url. The view navigates there once the
// returned command's message reaches the loop.
func (c *Coordinator) WriteURL(url string) tea.Cmd {
	c.router.SetURL(url)
	c.steps++
	return func() tea.Msg {
		return urlWrittenMsg{url: url}
	}
}

// handleWritten accounts for a URL write arriving on the loop.
func (c *Coordinator) handleWritten() {
	c.steps--
}

func (c *Coordinator) confirmExtension(since time.Time) tea.Cmd {
	ctx := c.ctx
	confirmer := c.confirmer
	c.steps++
	message := fmt.Sprintf("The search index does not reach back to %s. Index older mail and continue the search?",
		since.Format("2006-01-02"))
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = confirmResultMsg{since: since, err: fmt.Errorf("confirm panic: %v", r)}
			}
		}()
		ok, err := confirmer.Confirm(ctx, message)
		return confirmResultMsg{since: since, confirmed: ok, err: err}
	}
}

func (c *Coordinator) handleConfirm(msg confirmResultMsg) tea.Cmd {
	c.steps--
	if msg.err != nil {
		c.logger.Warn("coverage prompt failed", "error", msg.err)
		c.metrics.RecordCoverageExtension("declined")
		return nil
	}
	if !msg.confirmed {
		c.logger.Debug("coverage extension declined", "since", msg.since)
		c.metrics.RecordCoverageExtension("declined")
		return nil
	}

	ctx := c.ctx
	extender := c.extender
	since := msg.since
	c.steps++
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = coverageExtendedMsg{since: since, err: fmt.Errorf("extend coverage panic: %v", r)}
			}
		}()
		return coverageExtendedMsg{since: since, err: extender.ExtendCoverage(ctx, since)}
	}
}

func (c *Coordinator) handleExtended(msg coverageExtendedMsg) tea.Cmd {
	c.steps--
	if msg.err != nil {
		c.metrics.RecordCoverageExtension("error")
		c.notifier.Failure(fmt.Errorf("extend search index to %s: %w", msg.since.Format("2006-01-02"), msg.err))
		return nil
	}
	c.metrics.RecordCoverageExtension("ok")
	c.logger.Info("search coverage extended", "since", msg.since)
	return c.WriteURL(c.currentURL())
}

// UpdateURL issues a query for r unless it repeats the last one. Without a
// query parameter the last query text is reused. selectID is selected once
// the results arrive.
func (c *Coordinator) UpdateURL(r restriction.Restriction, args restriction.Args) tea.Cmd {
	var text string
	switch {
	case args.HasQuery:
		text = args.Query
	case c.last != nil:
		text = c.last.text
	default:
		return nil
	}

	if !c.IsNewSearch(text, r) {
		if c.inFlight {
			c.pendingSelectID = args.ID
		}
		return nil
	}

	limit := 0
	if r.Category == restriction.CategoryMail {
		limit = c.pageSize
	}

	c.requestID++
	c.inFlight = true
	c.pendingSelectID = args.ID
	c.last = &issuedQuery{text: text, restriction: r.Normalize()}
	return c.search(c.requestID, text, r.Normalize(), limit)
}

func (c *Coordinator) search(requestID uint64, text string, r restriction.Restriction, limit int) tea.Cmd {
	ctx := c.ctx
	engine := c.engine
	m := c.metrics
	c.logger.Debug("search", "query", text, "category", r.Category, "limit", limit, "request_id", requestID)
	return func() (msg tea.Msg) {
		defer func() {
			if rec := recover(); rec != nil {
				msg = searchResultsMsg{restriction: r, err: fmt.Errorf("search panic: %v", rec), requestID: requestID}
			}
		}()
		start := time.Now()
		entries, err := engine.Search(ctx, text, r, 0, limit)
		m.RecordSearch(string(r.Category), time.Since(start), err)
		return searchResultsMsg{entries: entries, restriction: r, err: err, requestID: requestID}
	}
}

// handleResults installs a query result. It reports the element id to
// select and whether the result was applied.
func (c *Coordinator) handleResults(msg searchResultsMsg) (string, bool) {
	// Ignore stale responses from superseded queries
	if msg.requestID != c.requestID {
		c.metrics.RecordStaleResult()
		c.logger.Debug("discarding stale search result", "request_id", msg.requestID, "current", c.requestID)
		return "", false
	}
	c.inFlight = false
	selectID := c.pendingSelectID
	c.pendingSelectID = ""

	if msg.err != nil {
		// Forget the query so that navigating to the same URL retries it.
		c.last = nil
		c.notifier.Failure(fmt.Errorf("search: %w", msg.err))
		return "", false
	}

	c.shown = c.last
	c.list.Replace(msg.restriction.EntityType(), msg.entries)
	c.filter.ApplyExternal(msg.restriction)
	c.layout.FocusList()
	return selectID, true
}

// resultMatcher returns the membership test for entities of type typ
// created after the displayed result was queried.
func (c *Coordinator) resultMatcher(typ entity.Type) (matcher, bool) {
	if c.shown == nil || c.shown.restriction.EntityType() != typ {
		return nil, false
	}
	return newMatcher(c.shown.text, c.shown.restriction, c.engine.IndexCoverage()), true
}

// CoverageState exposes the engine's coverage for snapshots.
func (c *Coordinator) CoverageState() query.Coverage {
	return c.engine.IndexCoverage()
}
