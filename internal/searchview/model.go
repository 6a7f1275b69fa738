// Package searchview keeps a search screen consistent: the user-editable
// filter, the URL-encoded restriction and a live result list that absorbs
// entity change events while a detail pane may show one of the results.
//
// All state changes happen in Model.Update on a single Bubble Tea loop.
// Blocking work (confirmation, coverage extension, queries, list mutations
// and entity loads) runs in tea.Cmds whose results come back as messages.
package searchview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/metrics"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/restriction"
)

// Options configures a search view. Engine backs every engine-side
// collaborator that is not set explicitly. Nil UI collaborators get the
// headless implementations of this package.
type Options struct {
	Context context.Context

	Engine   query.Engine
	Search   SearchEngine
	Extender CoverageExtender
	Loader   EntityLoader
	Folders  FolderLister

	Confirmer Confirmer
	Router    Router
	Notifier  Notifier
	Tier      Tier
	Layout    Layout
	List      List
	Detail    DetailPane

	// PageSize caps mail results; <= 0 uses DefaultPageSize.
	PageSize   int
	InitialURL string
	Now        func() time.Time
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Model is the search view state machine.
type Model struct {
	ctx        context.Context
	coord      *Coordinator
	filter     *FilterController
	reconciler *Reconciler
	bridge     *SelectionBridge

	folders    FolderLister
	router     Router
	notifier   Notifier
	layout     Layout
	list       List
	detail     DetailPane
	logger     *slog.Logger
	initialURL string
}

// New wires a Model from opts.
func New(opts Options) (Model, error) {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Engine != nil {
		if opts.Search == nil {
			opts.Search = opts.Engine
		}
		if opts.Extender == nil {
			opts.Extender = opts.Engine
		}
		if opts.Loader == nil {
			opts.Loader = opts.Engine
		}
		if opts.Folders == nil {
			opts.Folders = opts.Engine
		}
	}
	switch {
	case opts.Search == nil:
		return Model{}, errors.New("searchview: no search engine")
	case opts.Extender == nil:
		return Model{}, errors.New("searchview: no coverage extender")
	case opts.Loader == nil:
		return Model{}, errors.New("searchview: no entity loader")
	case opts.Folders == nil:
		return Model{}, errors.New("searchview: no folder lister")
	}

	if opts.Confirmer == nil {
		opts.Confirmer = AutoConfirmer(false)
	}
	if opts.Router == nil {
		opts.Router = NewMemoryRouter("")
	}
	if opts.Notifier == nil {
		opts.Notifier = NewNoticeBoard(opts.Logger, opts.Metrics)
	}
	if opts.Tier == nil {
		opts.Tier = StaticTier{}
	}
	if opts.Layout == nil {
		opts.Layout = &LayoutTracker{}
	}
	if opts.List == nil {
		opts.List = NewResultList(opts.Loader)
	}
	if opts.Detail == nil {
		opts.Detail = NewDetailView()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	filter := NewFilterController(opts.Tier, opts.Notifier, opts.Search.IndexCoverage, opts.Now)
	coord := &Coordinator{
		ctx:       opts.Context,
		engine:    opts.Search,
		extender:  opts.Extender,
		confirmer: opts.Confirmer,
		router:    opts.Router,
		notifier:  opts.Notifier,
		filter:    filter,
		list:      opts.List,
		layout:    opts.Layout,
		pageSize:  opts.PageSize,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	return Model{
		ctx:    opts.Context,
		coord:  coord,
		filter: filter,
		reconciler: &Reconciler{
			ctx:     opts.Context,
			coord:   coord,
			list:    opts.List,
			detail:  opts.Detail,
			loader:  opts.Loader,
			logger:  opts.Logger,
			metrics: opts.Metrics,
		},
		bridge: &SelectionBridge{
			ctx:    opts.Context,
			coord:  coord,
			filter: filter,
			list:   opts.List,
			detail: opts.Detail,
			loader: opts.Loader,
			router: opts.Router,
			layout: opts.Layout,
			logger: opts.Logger,
		},
		folders:    opts.Folders,
		router:     opts.Router,
		notifier:   opts.Notifier,
		layout:     opts.Layout,
		list:       opts.List,
		detail:     opts.Detail,
		logger:     opts.Logger,
		initialURL: opts.InitialURL,
	}, nil
}

// Init loads the folder filter options and navigates to the initial URL.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadFolders()}
	if m.initialURL != "" {
		cmds = append(cmds, m.coord.WriteURL(m.initialURL))
	}
	return tea.Batch(cmds...)
}

// Update handles a message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case NavigateMsg:
		m.router.SetURL(msg.URL)
		return m, m.bridge.UpdateURL(msg.URL)

	case urlWrittenMsg:
		m.coord.handleWritten()
		m.router.SetURL(msg.url)
		return m, m.bridge.UpdateURL(msg.url)

	case SetDateRangeMsg:
		if m.filter.SetDateRange(msg.Start, msg.End) {
			return m, m.coord.SearchAgain()
		}
		return m, nil

	case SetFieldMsg:
		if m.filter.SetField(msg.Field) {
			return m, m.coord.SearchAgain()
		}
		return m, nil

	case SetFolderMsg:
		if m.filter.SetFolder(msg.FolderID) {
			return m, m.coord.SearchAgain()
		}
		return m, nil

	case FoldersChangedMsg:
		m.filter.SetFolders(msg.Folders)
		return m, nil

	case foldersLoadedMsg:
		if msg.err != nil {
			m.logger.Warn("load folders", "error", msg.err)
			return m, nil
		}
		m.filter.SetFolders(msg.folders)
		return m, nil

	case SelectMsg:
		selected, changed := m.list.SetSelection(msg.ElementIDs)
		return m, m.bridge.ElementSelected(selected, msg.Clicked, changed, msg.Multi)

	case EntityUpdateMsg:
		cmds := []tea.Cmd{m.reconciler.Receive(msg.Updates)}
		for _, u := range msg.Updates {
			if u.Type == entity.TypeFolder {
				cmds = append(cmds, m.loadFolders())
				break
			}
		}
		return m, tea.Batch(cmds...)

	case SnapshotMsg:
		select {
		case msg.Reply <- m.Snapshot():
		default:
			m.logger.Warn("snapshot reply channel full")
		}
		return m, nil

	case confirmResultMsg:
		return m, m.coord.handleConfirm(msg)

	case coverageExtendedMsg:
		return m, m.coord.handleExtended(msg)

	case searchResultsMsg:
		selectID, ok := m.coord.handleResults(msg)
		if !ok {
			return m, nil
		}
		return m, m.bridge.reconcileSelection(selectID)

	case listMutatedMsg:
		return m, m.reconciler.handleMutated(msg)

	case entityReloadedMsg:
		m.reconciler.handleReloaded(msg)
		return m, nil

	case detailLoadedMsg:
		m.bridge.handleDetailLoaded(msg)
		return m, nil

	case focusDetailMsg:
		m.bridge.handleFocusDetail(msg)
		return m, nil
	}
	return m, nil
}

// View renders nothing; the view is consumed through snapshots.
func (m Model) View() string {
	return ""
}

func (m Model) loadFolders() tea.Cmd {
	ctx, lister := m.ctx, m.folders
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = foldersLoadedMsg{err: fmt.Errorf("list folders panic: %v", r)}
			}
		}()
		folders, err := lister.ListFolders(ctx)
		return foldersLoadedMsg{folders: folders, err: err}
	}
}

// Process handles msg and every message its commands produce, running the
// commands synchronously in breadth-first order. It is the loop used by
// one-shot callers and tests; commands must not block indefinitely.
func (m Model) Process(msg tea.Msg) Model {
	queue := []tea.Msg{msg}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		if batch, ok := next.(tea.BatchMsg); ok {
			for _, cmd := range batch {
				if cmd != nil {
					queue = append(queue, cmd())
				}
			}
			continue
		}
		updated, cmd := m.Update(next)
		m = updated.(Model)
		if cmd != nil {
			queue = append(queue, cmd())
		}
	}
	return m
}

// ProcessCmd runs cmd and processes its result.
func (m Model) ProcessCmd(cmd tea.Cmd) Model {
	if cmd == nil {
		return m
	}
	return m.Process(cmd())
}

// Snapshot is the observable view state.
type Snapshot struct {
	URL            string              `json:"url"`
	Query          string              `json:"query"`
	Category       string              `json:"category,omitempty"`
	Filter         FilterState         `json:"filter"`
	Results        []query.ResultEntry `json:"results"`
	Selected       []query.ResultEntry `json:"selected"`
	Shown          entity.Entity       `json:"shown,omitempty"`
	Focus          Column              `json:"focus,omitempty"`
	Coverage       string              `json:"coverage"`
	IndexDate      *time.Time          `json:"index_date,omitempty"`
	Folders        []query.Folder      `json:"folders"`
	Notices        []Notice            `json:"notices,omitempty"`
	// Searching holds from a filter edit or URL write until the results of
	// the query it starts arrive.
	Searching      bool                `json:"searching"`
	PendingUpdates int                 `json:"pending_updates"`
}

// Settled reports whether no search is under way and no entity update is
// waiting to be applied.
func (s Snapshot) Settled() bool {
	return !s.Searching && s.PendingUpdates == 0
}

// Snapshot captures the current state. It must be called on the loop.
func (m Model) Snapshot() Snapshot {
	cov := m.coord.CoverageState()
	s := Snapshot{
		URL:            m.router.URL(),
		Query:          m.coord.LastQuery(),
		Filter:         m.filter.State(),
		Results:        m.list.Entries(),
		Selected:       m.list.SelectedEntities(),
		Shown:          m.detail.Shown(),
		Coverage:       cov.String(),
		IndexDate:      cov.IndexDate(m.filter.now()),
		Folders:        m.filter.Folders(),
		Searching:      m.coord.Busy(),
		PendingUpdates: m.reconciler.Pending(),
	}
	if r, ok := m.coord.LastRestriction(); ok {
		s.Category = string(r.Category)
	} else if r, err := restriction.Decode(s.URL); err == nil {
		s.Category = string(r.Category)
	}
	if f, ok := m.layout.(interface{ Focus() Column }); ok {
		s.Focus = f.Focus()
	}
	if n, ok := m.notifier.(interface{ Notices() []Notice }); ok {
		s.Notices = n.Notices()
	}
	return s
}

// Coordinator returns the view's search coordinator.
func (m Model) Coordinator() *Coordinator { return m.coord }

// Filter returns the view's filter controller.
func (m Model) Filter() *FilterController { return m.filter }
