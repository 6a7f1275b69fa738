package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/searchview"
)

type searchOutput struct {
	URL      string `json:"url"`
	Query    string `json:"query"`
	Category string `json:"category"`
	Coverage string `json:"coverage"`
	Results  []struct {
		ID entity.ID `json:"id"`
	} `json:"results"`
}

func (o searchOutput) elementIDs() []string {
	ids := make([]string, len(o.Results))
	for i, r := range o.Results {
		ids[i] = r.ID.ElementID
	}
	return ids
}

func decodeSearch(t *testing.T, out string) searchOutput {
	t.Helper()
	var o searchOutput
	if err := json.Unmarshal([]byte(out), &o); err != nil {
		t.Fatalf("decode search output %q: %v", out, err)
	}
	return o
}

// seed stores two folders, three mails and two contacts.
func seed(t *testing.T, home string) {
	t.Helper()
	mustRun(t, "--home", home, "put-folder", "--list", "inbox", "--name", "Inbox", "--type", "inbox")
	mustRun(t, "--home", home, "put-folder", "--list", "archive", "--name", "Archive", "--type", "archive")
	mustRun(t, "--home", home, "put-mail", "--list", "inbox", "--id", "m1",
		"--subject", "Invoice March", "--from", "billing@example.com", "--to", "me@example.com",
		"--received", "2024-03-01")
	mustRun(t, "--home", home, "put-mail", "--list", "archive", "--id", "m2",
		"--subject", "Invoice January", "--from", "billing@example.com", "--received", "2024-01-15")
	mustRun(t, "--home", home, "put-mail", "--list", "inbox", "--id", "m3",
		"--subject", "Lunch", "--body", "invoice attached", "--from", "bob@example.com", "--received", "2024-02-10")
	mustRun(t, "--home", home, "put-contact", "--list", "contacts", "--id", "c1",
		"--first", "Ada", "--last", "Smith", "--email", "ada@example.com")
	mustRun(t, "--home", home, "put-contact", "--list", "contacts", "--id", "c2",
		"--first", "Bob", "--last", "Jones")
}

func TestSearchCmd(t *testing.T) {
	home := t.TempDir()
	seed(t, home)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "all fields newest first", args: []string{"invoice"}, want: []string{"m1", "m3", "m2"}},
		{name: "subject only", args: []string{"invoice", "--field", "subject"}, want: []string{"m1", "m2"}},
		{name: "folder", args: []string{"invoice", "--folder", "archive"}, want: []string{"m2"}},
		{name: "date range", args: []string{"invoice", "--start", "2024-02-01", "--end", "2024-02-29"}, want: []string{"m3"}},
		{name: "contacts", args: []string{"smith", "--category", "contact"}, want: []string{"c1"}},
		{name: "url", args: []string{"--url", "/search/mail?query=invoice&field=subject&folder=inbox"}, want: []string{"m1"}},
		{name: "no match", args: []string{"nothing-matches-this"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--home", home, "search", "--yes", "--json"}, tt.args...)
			o := decodeSearch(t, mustRun(t, args...))
			if diff := cmp.Diff(tt.want, o.elementIDs()); diff != "" {
				t.Errorf("results mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSearchCmdExtendsCoverage(t *testing.T) {
	home := t.TempDir()
	seed(t, home)

	out := mustRun(t, "--home", home, "index", "status")
	if !strings.Contains(out, "nothing indexed") {
		t.Errorf("status before search = %q, want nothing indexed", out)
	}

	o := decodeSearch(t, mustRun(t, "--home", home, "search", "--yes", "--json", "invoice"))
	if o.Coverage != "full" {
		t.Errorf("coverage = %q, want full", o.Coverage)
	}
	if len(o.Results) != 3 {
		t.Errorf("got %d results, want 3", len(o.Results))
	}
}

func TestSearchCmdInvalidArgs(t *testing.T) {
	home := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"bad category", []string{"--category", "notes", "x"}},
		{"bad date", []string{"--start", "03/01/2024", "x"}},
		{"bad field", []string{"--field", "cc", "x"}},
		{"url outside search", []string{"--url", "/settings"}},
		{"url with query", []string{"--url", "/search/mail?query=x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--home", home, "search", "--yes"}, tt.args...)
			if _, err := runCLI(t, args...); err == nil {
				t.Errorf("search %v: expected error", tt.args)
			}
		})
	}
}

func TestSearchCmdTable(t *testing.T) {
	home := t.TempDir()
	seed(t, home)

	out := mustRun(t, "--home", home, "search", "--yes", "invoice", "--folder", "inbox")
	for _, want := range []string{"ID", "SUBJECT", "m1", "Invoice March", "Showing 2 results"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDeleteEntityCmd(t *testing.T) {
	home := t.TempDir()
	seed(t, home)

	mustRun(t, "--home", home, "delete-entity", "contact", "contacts", "c1")
	if _, err := runCLI(t, "--home", home, "delete-entity", "contact", "contacts", "c1"); err == nil {
		t.Error("deleting a missing contact should fail")
	}

	o := decodeSearch(t, mustRun(t, "--home", home, "search", "--json", "--category", "contact", "smith"))
	if len(o.Results) != 0 {
		t.Errorf("deleted contact still found: %v", o.elementIDs())
	}

	// Deleting a folder deletes its mail.
	mustRun(t, "--home", home, "delete-entity", "folder", "archive")
	o = decodeSearch(t, mustRun(t, "--home", home, "search", "--yes", "--json", "invoice"))
	if diff := cmp.Diff([]string{"m1", "m3"}, o.elementIDs()); diff != "" {
		t.Errorf("results after folder delete (-want +got):\n%s", diff)
	}

	for _, args := range [][]string{
		{"delete-entity", "folder", "inbox", "m1"},
		{"delete-entity", "mail", "inbox"},
		{"delete-entity", "note", "x", "y"},
	} {
		if _, err := runCLI(t, append([]string{"--home", home}, args...)...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestMoveMailCmd(t *testing.T) {
	home := t.TempDir()
	seed(t, home)

	out := mustRun(t, "--home", home, "move-mail", "inbox", "m1", "archive")
	if !strings.Contains(out, "archive/m1") {
		t.Errorf("move output = %q", out)
	}

	o := decodeSearch(t, mustRun(t, "--home", home, "search", "--yes", "--json", "invoice", "--folder", "archive"))
	if diff := cmp.Diff([]string{"m1", "m2"}, o.elementIDs()); diff != "" {
		t.Errorf("archive after move (-want +got):\n%s", diff)
	}
}

func TestPutMailCmdRequiresID(t *testing.T) {
	home := t.TempDir()
	if _, err := runCLI(t, "--home", home, "put-mail", "--list", "inbox", "--subject", "x"); err == nil {
		t.Error("put-mail without --id should fail")
	}
	if _, err := runCLI(t, "--home", home, "put-mail", "--list", "inbox", "--id", "m1", "--received", "yesterday"); err == nil {
		t.Error("put-mail with a bad --received should fail")
	}
}

func TestImportCmd(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "seed.jsonl")
	lines := strings.Join([]string{
		`{"type":"folder","folder":{"list_id":"inbox","name":"Inbox","type":"inbox"}}`,
		`{"type":"mail","mail":{"id":{"list_id":"inbox","element_id":"m1"},"subject":"Hello","received_at":"2024-03-01T10:00:00Z"}}`,
		`{"type":"contact","contact":{"id":{"list_id":"contacts","element_id":"c1"},"last_name":"Smith"}}`,
		`not json`,
		``,
	}, "\n")
	if err := os.WriteFile(path, []byte(lines), 0600); err != nil {
		t.Fatalf("write import: %v", err)
	}

	out := mustRun(t, "--home", home, "import", path)
	if !strings.Contains(out, "3 created, 0 updated, 1 failed") {
		t.Errorf("import summary = %q", out)
	}

	out = mustRun(t, "--home", home, "import", path)
	if !strings.Contains(out, "0 created, 3 updated, 1 failed") {
		t.Errorf("second import summary = %q", out)
	}
}

func TestIndexCmds(t *testing.T) {
	home := t.TempDir()
	seed(t, home)

	// Decline extending the index during searches.
	prevConfirmer := newConfirmer
	newConfirmer = func() searchview.Confirmer { return searchview.AutoConfirmer(false) }
	t.Cleanup(func() { newConfirmer = prevConfirmer })

	out := mustRun(t, "--home", home, "index", "extend", "--since", "2024-02-01")
	if !strings.Contains(out, "mail since 2024-02-01") {
		t.Errorf("extend output = %q", out)
	}

	o := decodeSearch(t, mustRun(t, "--home", home, "search", "--json", "invoice"))
	if diff := cmp.Diff([]string{"m1", "m3"}, o.elementIDs()); diff != "" {
		t.Errorf("results inside coverage (-want +got):\n%s", diff)
	}

	out = mustRun(t, "--home", home, "index", "status")
	for _, want := range []string{"mail since 2024-02-01", "Oldest mail: 2024-01-15"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}

	// Reaching the oldest mail indexes everything.
	out = mustRun(t, "--home", home, "index", "extend", "--since", "2024-01-01")
	if !strings.Contains(out, "all mail") {
		t.Errorf("extend to oldest = %q", out)
	}

	if _, err := runCLI(t, "--home", home, "index", "extend", "--since", "2024-01-01", "--days", "3"); err == nil {
		t.Error("--since with --days should fail")
	}
}

func TestIndexExtendStepsLikeBackfill(t *testing.T) {
	home := t.TempDir()
	writeTestConfig(t, home, `
[index]
backfill_step_days = 10
`)
	mustRun(t, "--home", home, "init-db")

	out := mustRun(t, "--home", home, "index", "extend")
	if !strings.Contains(out, "mail since") {
		t.Errorf("extend output = %q", out)
	}
}

func TestInitDBCmd(t *testing.T) {
	home := t.TempDir()
	out := mustRun(t, "--home", home, "init-db")
	for _, want := range []string{"vaultsearch.db", "Mail:     0", "Contacts: 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("init-db output missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(filepath.Join(home, "vaultsearch.db")); err != nil {
		t.Errorf("database not created: %v", err)
	}
}
