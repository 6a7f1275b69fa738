package store_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/store"
	"github.com/wesm/vaultsearch/internal/testutil"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	st := testutil.NewTestStore(t)
	testutil.SeedFolders(t, st)
	return st
}

func TestOpenInMemory(t *testing.T) {
	st, err := store.Open(":memory:")
	testutil.MustNoErr(t, err, "Open")
	defer st.Close()
	testutil.MustNoErr(t, st.InitSchema(), "InitSchema")

	stats, err := st.GetStats()
	testutil.MustNoErr(t, err, "GetStats")
	if stats.DatabaseSize != 0 {
		t.Errorf("in-memory DatabaseSize = %d", stats.DatabaseSize)
	}
}

func TestInitSchemaIdempotent(t *testing.T) {
	st := testutil.NewTestStore(t)
	testutil.MustNoErr(t, st.InitSchema(), "second InitSchema")
}

func TestMailRoundTrip(t *testing.T) {
	st := setupStore(t)
	want := testutil.NewMail("inbox", "m1").
		WithSubject("Quarterly report").
		WithBody("numbers inside").
		WithRecipients("a@example.com", "b@example.com").
		Build()

	testutil.MustNoErr(t, st.UpsertMail(want), "UpsertMail")
	got, err := st.GetMail(want.ID)
	testutil.MustNoErr(t, err, "GetMail")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetMail mismatch (-want +got):\n%s", diff)
	}

	want.Subject = "Quarterly report (v2)"
	testutil.MustNoErr(t, st.UpsertMail(want), "UpsertMail update")
	got, err = st.GetMail(want.ID)
	testutil.MustNoErr(t, err, "GetMail after update")
	if got.Subject != want.Subject {
		t.Errorf("Subject = %q, want %q", got.Subject, want.Subject)
	}

	stats, err := st.GetStats()
	testutil.MustNoErr(t, err, "GetStats")
	if stats.MailCount != 1 {
		t.Errorf("MailCount = %d, want 1", stats.MailCount)
	}
}

func TestUpsertMailUnknownFolder(t *testing.T) {
	st := setupStore(t)
	err := st.UpsertMail(testutil.NewMail("nowhere", "m1").Build())
	if !errors.Is(err, store.ErrUnknownFolder) {
		t.Errorf("UpsertMail err = %v, want ErrUnknownFolder", err)
	}
}

func TestGetMissing(t *testing.T) {
	st := setupStore(t)
	m, err := st.GetMail(entity.ID{ListID: "inbox", ElementID: "nope"})
	testutil.MustNoErr(t, err, "GetMail")
	if m != nil {
		t.Errorf("GetMail = %+v, want nil", m)
	}
	c, err := st.GetContact(entity.ID{ListID: "contacts", ElementID: "nope"})
	testutil.MustNoErr(t, err, "GetContact")
	if c != nil {
		t.Errorf("GetContact = %+v, want nil", c)
	}
}

func TestDeleteMail(t *testing.T) {
	st := setupStore(t)
	m := testutil.NewMail("inbox", "m1").Build()
	testutil.MustNoErr(t, st.UpsertMail(m), "UpsertMail")

	deleted, err := st.DeleteMail(m.ID)
	testutil.MustNoErr(t, err, "DeleteMail")
	if !deleted {
		t.Error("DeleteMail returned false for existing mail")
	}
	deleted, err = st.DeleteMail(m.ID)
	testutil.MustNoErr(t, err, "DeleteMail again")
	if deleted {
		t.Error("DeleteMail returned true for missing mail")
	}
}

func TestMoveMail(t *testing.T) {
	st := setupStore(t)
	m := testutil.NewMail("inbox", "m1").Build()
	testutil.MustNoErr(t, st.UpsertMail(m), "UpsertMail")

	testutil.MustNoErr(t, st.MoveMail(m.ID, "archive"), "MoveMail")
	got, err := st.GetMail(entity.ID{ListID: "archive", ElementID: "m1"})
	testutil.MustNoErr(t, err, "GetMail")
	if got == nil {
		t.Fatal("mail not found in archive after move")
	}

	err = st.MoveMail(got.ID, "nowhere")
	if !errors.Is(err, store.ErrUnknownFolder) {
		t.Errorf("MoveMail to unknown folder err = %v", err)
	}
}

func TestDeleteFolderCascades(t *testing.T) {
	st := setupStore(t)
	testutil.MustNoErr(t, st.UpsertMail(testutil.NewMail("sent", "m1").Build()), "UpsertMail")

	ok, err := st.DeleteFolder("sent")
	testutil.MustNoErr(t, err, "DeleteFolder")
	if !ok {
		t.Fatal("DeleteFolder returned false")
	}
	stats, err := st.GetStats()
	testutil.MustNoErr(t, err, "GetStats")
	if stats.MailCount != 0 {
		t.Errorf("MailCount = %d after deleting folder, want 0", stats.MailCount)
	}
}

func TestListFolders(t *testing.T) {
	st := setupStore(t)
	folders, err := st.ListFolders()
	testutil.MustNoErr(t, err, "ListFolders")

	var names []string
	for _, f := range folders {
		names = append(names, f.Name)
	}
	testutil.AssertStrings(t, names, "Archive", "Inbox", "Sent", "Spam")

	f, err := st.GetFolder("spam")
	testutil.MustNoErr(t, err, "GetFolder")
	if f == nil || f.Type != store.FolderSpam {
		t.Errorf("GetFolder(spam) = %+v", f)
	}
}

func TestContactRoundTrip(t *testing.T) {
	st := setupStore(t)
	want := testutil.NewContact("c1", "Ada", "Lovelace").
		WithEmail("ada@example.com").
		WithCompany("Analytical Engines").
		Build()

	testutil.MustNoErr(t, st.UpsertContact(want), "UpsertContact")
	got, err := st.GetContact(want.ID)
	testutil.MustNoErr(t, err, "GetContact")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetContact mismatch (-want +got):\n%s", diff)
	}

	deleted, err := st.DeleteContact(want.ID)
	testutil.MustNoErr(t, err, "DeleteContact")
	if !deleted {
		t.Error("DeleteContact returned false")
	}
}

func TestIndexState(t *testing.T) {
	st := setupStore(t)

	state, err := st.GetIndexState()
	testutil.MustNoErr(t, err, "GetIndexState")
	if state.Kind != store.CoverageNone {
		t.Errorf("fresh Kind = %q, want none", state.Kind)
	}

	since := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	testutil.MustNoErr(t, st.SetIndexState(store.CoverageSince, since), "SetIndexState")
	state, err = st.GetIndexState()
	testutil.MustNoErr(t, err, "GetIndexState")
	if state.Kind != store.CoverageSince || !state.Since.Equal(since) {
		t.Errorf("state = %+v, want since %v", state, since)
	}

	testutil.MustNoErr(t, st.SetIndexState(store.CoverageFull, time.Time{}), "SetIndexState full")
	state, err = st.GetIndexState()
	testutil.MustNoErr(t, err, "GetIndexState")
	if state.Kind != store.CoverageFull || !state.Since.IsZero() {
		t.Errorf("state = %+v, want full", state)
	}

	if err := st.SetIndexState("partial", since); err == nil {
		t.Error("SetIndexState accepted unknown kind")
	}
}

func TestOldestMail(t *testing.T) {
	st := setupStore(t)
	oldest, err := st.OldestMail()
	testutil.MustNoErr(t, err, "OldestMail")
	if !oldest.IsZero() {
		t.Errorf("OldestMail on empty db = %v", oldest)
	}

	early := time.Date(2020, 3, 1, 8, 0, 0, 0, time.UTC)
	testutil.MustNoErr(t, st.UpsertMail(testutil.NewMail("inbox", "a").WithReceivedAt(early).Build()), "UpsertMail")
	testutil.MustNoErr(t, st.UpsertMail(testutil.NewMail("inbox", "b").Build()), "UpsertMail")

	oldest, err = st.OldestMail()
	testutil.MustNoErr(t, err, "OldestMail")
	if !oldest.Equal(early) {
		t.Errorf("OldestMail = %v, want %v", oldest, early)
	}
}

func TestMailIDsInFolder(t *testing.T) {
	st := setupStore(t)
	testutil.MustNoErr(t, st.UpsertMail(testutil.NewMail("inbox", "b").Build()), "upsert b")
	testutil.MustNoErr(t, st.UpsertMail(testutil.NewMail("inbox", "a").Build()), "upsert a")
	testutil.MustNoErr(t, st.UpsertMail(testutil.NewMail("sent", "c").Build()), "upsert c")

	ids, err := st.MailIDsInFolder("inbox")
	testutil.MustNoErr(t, err, "MailIDsInFolder")
	want := []entity.ID{{ListID: "inbox", ElementID: "a"}, {ListID: "inbox", ElementID: "b"}}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}
