package searchview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/metrics"
)

// Reconciler merges entity change events into the displayed result. Changes
// are applied to the list one at a time in arrival order. Only after the
// list reflects an update is the detail pane refreshed, and only when it
// shows the updated entity.
type Reconciler struct {
	ctx     context.Context
	coord   *Coordinator
	list    List
	detail  DetailPane
	loader  EntityLoader
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue []entity.Update
	busy  bool
}

// Pending returns the number of updates not yet applied, including the one
// in progress.
func (r *Reconciler) Pending() int {
	if r.busy {
		return len(r.queue) + 1
	}
	return len(r.queue)
}

// Receive queues updates and starts applying them unless a mutation is
// already running.
func (r *Reconciler) Receive(updates []entity.Update) tea.Cmd {
	for _, u := range updates {
		if !u.Type.Searchable() {
			r.metrics.RecordEntityEvent(string(u.Type), u.Operation.String(), "ignored")
			continue
		}
		r.queue = append(r.queue, u)
	}
	if r.busy {
		return nil
	}
	return r.next()
}

// next starts the first queued update that concerns the result.
func (r *Reconciler) next() tea.Cmd {
	for len(r.queue) > 0 {
		u := r.queue[0]
		r.queue = r.queue[1:]
		if cmd := r.start(u); cmd != nil {
			r.busy = true
			return cmd
		}
		r.metrics.RecordEntityEvent(string(u.Type), u.Operation.String(), "ignored")
	}
	r.busy = false
	return nil
}

// start begins applying u to the displayed result, or returns nil when u
// does not concern it.
func (r *Reconciler) start(u entity.Update) tea.Cmd {
	gen := r.list.Generation()
	switch u.Operation {
	case entity.OpCreate:
		// A new entity cannot be in the result yet; it joins when it
		// matches the query behind it.
		match, ok := r.coord.resultMatcher(u.Type)
		if !ok {
			return nil
		}
		return r.create(gen, u, match)
	case entity.OpUpdate, entity.OpDelete:
		if !r.list.IsInSearchResult(u.Type, u.ID) {
			return nil
		}
		return r.mutate(gen, u)
	default:
		r.logger.Warn("unknown entity operation", "type", u.Type, "id", u.ID, "operation", u.Operation)
		return nil
	}
}

func (r *Reconciler) create(gen uint64, u entity.Update, match matcher) tea.Cmd {
	ctx, list, loader := r.ctx, r.list, r.loader
	return func() (msg tea.Msg) {
		defer func() {
			if rec := recover(); rec != nil {
				msg = listMutatedMsg{update: u, err: fmt.Errorf("create panic: %v", rec)}
			}
		}()
		e, err := loader.Load(ctx, u.Type, u.ID)
		if err != nil {
			return listMutatedMsg{update: u, err: err}
		}
		if !match(e) {
			return listMutatedMsg{update: u, skipped: true}
		}
		return listMutatedMsg{update: u, err: list.EntityEventReceived(ctx, gen, u.Type, u.ID, u.Operation)}
	}
}

func (r *Reconciler) mutate(gen uint64, u entity.Update) tea.Cmd {
	ctx, list := r.ctx, r.list
	return func() (msg tea.Msg) {
		defer func() {
			if rec := recover(); rec != nil {
				msg = listMutatedMsg{update: u, err: fmt.Errorf("mutation panic: %v", rec)}
			}
		}()
		return listMutatedMsg{update: u, err: list.EntityEventReceived(ctx, gen, u.Type, u.ID, u.Operation)}
	}
}

func (r *Reconciler) handleMutated(msg listMutatedMsg) tea.Cmd {
	u := msg.update
	var cmds []tea.Cmd
	switch {
	case errors.Is(msg.err, ErrResultReplaced):
		r.metrics.RecordEntityEvent(string(u.Type), u.Operation.String(), "stale")
		r.logger.Debug("dropping entity change for replaced result", "type", u.Type, "id", u.ID, "operation", u.Operation)
	case msg.err != nil:
		r.metrics.RecordEntityEvent(string(u.Type), u.Operation.String(), "failed")
		r.logger.Warn("apply entity change", "type", u.Type, "id", u.ID, "operation", u.Operation, "error", msg.err)
	case msg.skipped:
		r.metrics.RecordEntityEvent(string(u.Type), u.Operation.String(), "ignored")
	default:
		r.metrics.RecordEntityEvent(string(u.Type), u.Operation.String(), "applied")
		switch u.Operation {
		case entity.OpUpdate:
			if r.detail.IsShownEntity(u.ID) {
				cmds = append(cmds, r.reload(u))
			}
		case entity.OpCreate, entity.OpDelete:
		}
	}
	cmds = append(cmds, r.next())
	return tea.Batch(cmds...)
}

func (r *Reconciler) reload(u entity.Update) tea.Cmd {
	ctx, loader := r.ctx, r.loader
	return func() (msg tea.Msg) {
		defer func() {
			if rec := recover(); rec != nil {
				msg = entityReloadedMsg{update: u, err: fmt.Errorf("reload panic: %v", rec)}
			}
		}()
		e, err := loader.Load(ctx, u.Type, u.ID)
		return entityReloadedMsg{update: u, entity: e, err: err}
	}
}

func (r *Reconciler) handleReloaded(msg entityReloadedMsg) {
	r.metrics.RecordDetailReload(msg.err)
	if msg.err != nil {
		// The pane keeps the previous version.
		r.logger.Debug("reload shown entity", "id", msg.update.ID, "error", msg.err)
		return
	}
	if !r.detail.IsShownEntity(msg.update.ID) || !r.list.IsInSearchResult(msg.update.Type, msg.update.ID) {
		r.logger.Debug("dropping reload for entity no longer shown", "id", msg.update.ID)
		return
	}
	r.detail.ShowEntity(msg.entity, false)
}
