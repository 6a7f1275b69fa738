package query

import (
	"context"
	"testing"
	"time"

	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/restriction"
	"github.com/wesm/vaultsearch/internal/store"
	"github.com/wesm/vaultsearch/internal/testutil"
)

// testEnv encapsulates the store, engine and context setup for tests.
type testEnv struct {
	T      *testing.T
	Store  *store.Store
	Engine *SQLiteEngine
	Ctx    context.Context
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

// newTestEnv creates a store with the standard folders and a small data set:
//
//	inbox/m1  2024-03-10  "Quarterly budget"  from alice
//	inbox/m2  2024-02-01  "Lunch plans"       from bob
//	sent/m3   2024-01-05  "Re: budget"        to alice
//	archive/m4 2023-06-20 "Old budget notes"  from carol
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := testutil.NewTestStore(t)
	testutil.SeedFolders(t, st)

	mails := []*entity.Mail{
		testutil.NewMail("inbox", "m1").WithSubject("Quarterly budget").WithBody("see attached numbers").
			WithSender("alice@example.com").WithReceivedAt(day(2024, 3, 10)).Build(),
		testutil.NewMail("inbox", "m2").WithSubject("Lunch plans").WithBody("budget friendly place?").
			WithSender("bob@example.com").WithReceivedAt(day(2024, 2, 1)).Build(),
		testutil.NewMail("sent", "m3").WithSubject("Re: budget").WithSender("me@example.com").
			WithRecipients("alice@example.com").WithReceivedAt(day(2024, 1, 5)).Build(),
		testutil.NewMail("archive", "m4").WithSubject("Old budget notes").WithSender("carol@example.com").
			WithReceivedAt(day(2023, 6, 20)).Build(),
	}
	for _, m := range mails {
		testutil.MustNoErr(t, st.UpsertMail(m), "seed mail "+m.ID.String())
	}

	contacts := []*entity.Contact{
		testutil.NewContact("c1", "Ada", "Lovelace").WithEmail("ada@example.com").Build(),
		testutil.NewContact("c2", "Charles", "Babbage").WithCompany("Difference Engines").Build(),
		testutil.NewContact("c3", "Grace", "Hopper").WithComment("compiler pioneer").Build(),
	}
	for _, c := range contacts {
		testutil.MustNoErr(t, st.UpsertContact(c), "seed contact "+c.ID.String())
	}

	testutil.MustNoErr(t, st.SetIndexState(store.CoverageFull, time.Time{}), "set coverage")

	return &testEnv{
		T:      t,
		Store:  st,
		Engine: NewSQLiteEngine(st, nil),
		Ctx:    context.Background(),
	}
}

// MustSearch calls Search and fails the test on error.
func (e *testEnv) MustSearch(text string, r restriction.Restriction, limit int) []ResultEntry {
	e.T.Helper()
	results, err := e.Engine.Search(e.Ctx, text, r, 0, limit)
	if err != nil {
		e.T.Fatalf("Search(%q): %v", text, err)
	}
	return results
}

// SetCoverage stores the coverage and refreshes the engine cache.
func (e *testEnv) SetCoverage(kind string, since time.Time) {
	e.T.Helper()
	testutil.MustNoErr(e.T, e.Store.SetIndexState(kind, since), "SetIndexState")
	if _, err := e.Engine.RefreshCoverage(e.Ctx); err != nil {
		e.T.Fatalf("RefreshCoverage: %v", err)
	}
}

// elementIDs extracts element ids from results for compact assertions.
func elementIDs(results []ResultEntry) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID.ElementID
	}
	return ids
}
