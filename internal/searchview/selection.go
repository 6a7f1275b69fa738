package searchview

import (
	"context"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/restriction"
)

// SelectionBridge connects the result list selection with the URL and the
// detail pane. It is also the entry point for inbound navigation.
type SelectionBridge struct {
	ctx    context.Context
	coord  *Coordinator
	filter *FilterController
	list   List
	detail DetailPane
	loader EntityLoader
	router Router
	layout Layout
	logger *slog.Logger

	detailRequestID uint64
}

// ElementSelected handles a selection change in the list. A single,
// non-multi selection is written into the URL while the route is a search
// route. A direct click moves focus to the detail column once the list has
// settled.
func (b *SelectionBridge) ElementSelected(entries []query.ResultEntry, clicked, changed, multi bool) tea.Cmd {
	b.detail.ElementSelected(entries, clicked, changed, multi)

	var cmds []tea.Cmd
	single := len(entries) == 1 && !multi
	if single && (changed || !b.detail.HasViewer()) {
		cmds = append(cmds, b.loadDetail(entries[0], clicked))
		if restriction.InScope(b.router.Path()) {
			cmds = append(cmds, b.coord.WriteURL(b.selectionURL(entries[0].ID.ElementID)))
		}
	}
	if clicked && !multi {
		cmds = append(cmds, b.focusDetailWhenLoaded())
	}
	return tea.Batch(cmds...)
}

// selectionURL is the current route with the last query and elementID.
func (b *SelectionBridge) selectionURL(elementID string) string {
	r, err := restriction.Decode(b.router.URL())
	if err != nil {
		r = restriction.Mail()
	}
	return restriction.Encode(r, b.coord.LastQuery(), elementID)
}

func (b *SelectionBridge) loadDetail(entry query.ResultEntry, focus bool) tea.Cmd {
	b.detailRequestID++
	requestID := b.detailRequestID
	ctx, loader := b.ctx, b.loader
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = detailLoadedMsg{entry: entry, focus: focus, err: fmt.Errorf("load panic: %v", r), requestID: requestID}
			}
		}()
		e, err := loader.Load(ctx, entry.Type, entry.ID)
		return detailLoadedMsg{entry: entry, entity: e, focus: focus, err: err, requestID: requestID}
	}
}

func (b *SelectionBridge) handleDetailLoaded(msg detailLoadedMsg) {
	// Ignore stale responses from earlier selections
	if msg.requestID != b.detailRequestID {
		return
	}
	if msg.err != nil {
		b.logger.Warn("load selected entity", "id", msg.entry.ID, "error", msg.err)
		return
	}
	if !b.list.IsEntitySelected(msg.entry.ID.ElementID) {
		return
	}
	b.detail.ShowEntity(msg.entity, msg.focus)
}

func (b *SelectionBridge) focusDetailWhenLoaded() tea.Cmd {
	ctx, list := b.ctx, b.list
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = focusDetailMsg{err: fmt.Errorf("wait for list panic: %v", r)}
			}
		}()
		return focusDetailMsg{err: list.WaitLoaded(ctx)}
	}
}

func (b *SelectionBridge) handleFocusDetail(msg focusDetailMsg) {
	if msg.err != nil {
		b.logger.Debug("list did not settle", "error", msg.err)
		return
	}
	b.layout.FocusDetail()
}

// UpdateURL handles navigation to url. An undecodable URL is replaced by a
// mail search for the same query text.
func (b *SelectionBridge) UpdateURL(url string) tea.Cmd {
	args := restriction.ParseArgs(url)
	r, err := restriction.Decode(url)
	if err != nil {
		b.logger.Debug("invalid search url", "url", url, "error", err)
		return b.coord.WriteURL(restriction.Encode(restriction.Mail(), args.Query, ""))
	}

	cmd := b.coord.UpdateURL(r, args)
	b.filter.ApplyExternal(r)
	if cmd != nil {
		return cmd
	}
	if b.coord.InFlight() {
		// Selection follows when the pending result arrives.
		return nil
	}
	return b.reconcileSelection(args.ID)
}

// reconcileSelection makes the list selection match the id from the URL.
func (b *SelectionBridge) reconcileSelection(elementID string) tea.Cmd {
	if !b.list.IsListAvailable() {
		return nil
	}
	if elementID != "" {
		if b.list.IsEntitySelected(elementID) {
			return nil
		}
		if !b.list.ScrollToIDAndSelect(elementID) {
			b.logger.Debug("url selection not in result", "element_id", elementID)
			return nil
		}
		return b.ElementSelected(b.list.SelectedEntities(), false, true, false)
	}
	if len(b.list.SelectedEntities()) == 0 {
		return nil
	}
	b.list.SelectNone()
	return b.ElementSelected(nil, false, true, false)
}
