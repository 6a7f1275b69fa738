package searchview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/query/querytest"
	"github.com/wesm/vaultsearch/internal/restriction"
	"github.com/wesm/vaultsearch/internal/store"
)

// day returns midnight local time. Filter dates widen to whole days in the
// local zone, so tests stay in it too.
func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.Local)
}

func dayPtr(year int, month time.Month, d int) *time.Time {
	t := day(year, month, d)
	return &t
}

// testNow is the clock of every view built by ViewBuilder.
var testNow = day(2024, time.March, 15).Add(12 * time.Hour)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mail builds a mail in list "inbox" received at the given local day.
func mail(elementID string, received time.Time) *entity.Mail {
	return &entity.Mail{
		ID:         entity.ID{ListID: "inbox", ElementID: elementID},
		Subject:    "Subject " + elementID,
		Sender:     "sender@example.com",
		Recipients: []string{"me@example.com"},
		ReceivedAt: received,
	}
}

func mailID(elementID string) entity.ID {
	return entity.ID{ListID: "inbox", ElementID: elementID}
}

func entriesFor(typ entity.Type, es ...entity.Entity) []query.ResultEntry {
	out := make([]query.ResultEntry, 0, len(es))
	for _, e := range es {
		out = append(out, query.EntryFor(e))
	}
	sort.SliceStable(out, func(i, j int) bool { return query.Less(typ, out[i], out[j]) })
	return out
}

func elementIDs(entries []query.ResultEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID.ElementID
	}
	return ids
}

// eventLog records collaborator calls in order across goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeConfirmer answers every prompt the same way and records the prompts.
type fakeConfirmer struct {
	answer bool
	err    error

	mu       sync.Mutex
	messages []string
}

func (f *fakeConfirmer) Confirm(_ context.Context, message string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return f.answer, f.err
}

func (f *fakeConfirmer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// recordingList wraps ResultList and logs settled mutations.
type recordingList struct {
	*ResultList
	log *eventLog
}

func (l *recordingList) EntityEventReceived(ctx context.Context, gen uint64, typ entity.Type, id entity.ID, op entity.Operation) error {
	err := l.ResultList.EntityEventReceived(ctx, gen, typ, id, op)
	l.log.add("mutated %s %s", op, id.ElementID)
	return err
}

// entityStore is the backing data of the fake engine's Load.
type entityStore struct {
	mu   sync.Mutex
	byID map[entity.ID]entity.Entity
}

func (s *entityStore) put(e entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[e.EntityID()] = e
}

func (s *entityStore) remove(id entity.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

func (s *entityStore) get(id entity.ID) (entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, query.ErrNotFound)
	}
	return e, nil
}

// ViewBuilder constructs a search view with fake collaborators.
type ViewBuilder struct {
	entities   []entity.Entity
	coverage   query.Coverage
	folders    []query.Folder
	restricted bool
	confirm    *fakeConfirmer
	pageSize   int
	initialURL string
}

func NewViewBuilder() *ViewBuilder {
	return &ViewBuilder{
		coverage: query.FullCoverage(),
		confirm:  &fakeConfirmer{},
	}
}

// WithEntities makes es loadable and the canned result of every search.
func (b *ViewBuilder) WithEntities(es ...entity.Entity) *ViewBuilder {
	b.entities = append(b.entities, es...)
	return b
}

func (b *ViewBuilder) WithCoverage(c query.Coverage) *ViewBuilder {
	b.coverage = c
	return b
}

func (b *ViewBuilder) WithFolders(folders ...query.Folder) *ViewBuilder {
	b.folders = folders
	return b
}

func (b *ViewBuilder) Restricted() *ViewBuilder {
	b.restricted = true
	return b
}

func (b *ViewBuilder) Confirming(answer bool) *ViewBuilder {
	b.confirm.answer = answer
	return b
}

func (b *ViewBuilder) WithPageSize(n int) *ViewBuilder {
	b.pageSize = n
	return b
}

func (b *ViewBuilder) WithInitialURL(u string) *ViewBuilder {
	b.initialURL = u
	return b
}

// testView bundles a model with its fakes.
type testView struct {
	t       *testing.T
	model   Model
	engine  *querytest.MockEngine
	confirm *fakeConfirmer
	router  *MemoryRouter
	notices *NoticeBoard
	layout  *LayoutTracker
	list    *recordingList
	detail  *DetailView
	log     *eventLog
	stored  *entityStore
}

func (b *ViewBuilder) Build(t *testing.T) *testView {
	t.Helper()
	log := &eventLog{}
	eng := &querytest.MockEngine{Coverage: b.coverage, Folders: b.folders}
	var mails, contacts []entity.Entity
	for _, e := range b.entities {
		if e.EntityType() == entity.TypeMail {
			mails = append(mails, e)
		} else {
			contacts = append(contacts, e)
		}
	}
	mailEntries := entriesFor(entity.TypeMail, mails...)
	contactEntries := entriesFor(entity.TypeContact, contacts...)
	eng.SearchFunc = func(_ context.Context, text string, r restriction.Restriction, _, _ int) ([]query.ResultEntry, error) {
		log.add("search %q %s", text, r.Category)
		if r.Category == restriction.CategoryContact {
			return append([]query.ResultEntry(nil), contactEntries...), nil
		}
		return append([]query.ResultEntry(nil), mailEntries...), nil
	}
	stored := &entityStore{byID: make(map[entity.ID]entity.Entity)}
	for _, e := range b.entities {
		stored.put(e)
	}
	eng.LoadFunc = func(_ context.Context, _ entity.Type, id entity.ID) (entity.Entity, error) {
		log.add("load %s", id.ElementID)
		return stored.get(id)
	}

	tv := &testView{
		t:       t,
		engine:  eng,
		confirm: b.confirm,
		router:  NewMemoryRouter(""),
		notices: NewNoticeBoard(discardLogger(), nil),
		layout:  &LayoutTracker{},
		detail:  NewDetailView(),
		log:     log,
		stored:  stored,
	}
	tv.list = &recordingList{ResultList: NewResultList(eng), log: log}

	m, err := New(Options{
		Engine:     eng,
		Confirmer:  b.confirm,
		Router:     tv.router,
		Notifier:   tv.notices,
		Tier:       StaticTier{Restricted: b.restricted},
		Layout:     tv.layout,
		List:       tv.list,
		Detail:     tv.detail,
		PageSize:   b.pageSize,
		InitialURL: b.initialURL,
		Now:        func() time.Time { return testNow },
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tv.model = m.ProcessCmd(m.Init())
	return tv
}

// send processes msg and everything it triggers.
func (v *testView) send(msg any) {
	v.t.Helper()
	v.model = v.model.Process(msg)
}

func (v *testView) navigate(url string) {
	v.t.Helper()
	v.send(NavigateMsg{URL: url})
}

func (v *testView) searchCount() int {
	return len(v.engine.SearchCalls())
}

func (v *testView) snapshot() Snapshot {
	return v.model.Snapshot()
}

// folder is a shorthand for a custom folder.
func folder(listID, name, typ string) query.Folder {
	return store.Folder{ListID: listID, Name: name, Type: typ}
}
