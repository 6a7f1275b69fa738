package testutil

import (
	"path/filepath"
	"testing"

	"github.com/wesm/vaultsearch/internal/store"
)

// NewTestStore creates a temporary database for testing.
// The database is automatically cleaned up when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() {
		st.Close()
	})

	if err := st.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	return st
}

// StandardFolders is the folder set seeded by SeedFolders.
var StandardFolders = []store.Folder{
	{ListID: "inbox", Name: "Inbox", Type: store.FolderInbox},
	{ListID: "sent", Name: "Sent", Type: store.FolderSent},
	{ListID: "archive", Name: "Archive", Type: store.FolderArchive},
	{ListID: "spam", Name: "Spam", Type: store.FolderSpam},
}

// SeedFolders inserts StandardFolders into st.
func SeedFolders(t *testing.T, st *store.Store) {
	t.Helper()
	for i := range StandardFolders {
		MustNoErr(t, st.UpsertFolder(&StandardFolders[i]), "seed folder "+StandardFolders[i].ListID)
	}
}
