package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/restriction"
	"github.com/wesm/vaultsearch/internal/searchview"
)

var (
	searchCategory string
	searchStart    string
	searchEnd      string
	searchField    string
	searchFolder   string
	searchURL      string
	searchLimit    int
	searchJSON     bool
	searchYes      bool
)

// newConfirmer asks questions during a search. Tests replace it.
var newConfirmer = func() searchview.Confirmer {
	return searchview.NewTerminalConfirmer()
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search mail or contacts",
	Long: `Search mail or contacts the way the search view does and print the
settled result list.

Bare words must all match; "quoted phrases" match literally. Mail can be
narrowed to a received date range, a single field or one folder. When the
start date lies before the indexed range you are asked whether older mail
should be indexed first; --yes accepts without asking.

Examples:
  vaultsearch search invoice --start 2024-01-01 --end 2024-03-31
  vaultsearch search alice --field from --folder inbox
  vaultsearch search --category contact smith
  vaultsearch search --url '/search/mail?query=report&field=subject'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")

		var r restriction.Restriction
		if searchURL != "" {
			if len(args) > 0 {
				return errors.New("--url cannot be combined with a query")
			}
			if !restriction.InScope(searchURL) {
				return fmt.Errorf("%q is not a search url", searchURL)
			}
			var err error
			if r, err = restriction.Decode(searchURL); err != nil {
				return err
			}
		} else {
			var err error
			r, err = restriction.Params{
				Category: searchCategory,
				Start:    searchStart,
				End:      searchEnd,
				Field:    searchField,
				FolderID: searchFolder,
			}.Restriction()
			if err != nil {
				return err
			}
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		s, engine, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		confirmer := newConfirmer()
		if searchYes {
			confirmer = searchview.AutoConfirmer(true)
		}
		oldest, err := s.OldestMail()
		if err != nil {
			return fmt.Errorf("oldest mail: %w", err)
		}
		if err := ensureCoverage(ctx, engine, confirmer, r, oldest); err != nil {
			return err
		}

		opts := viewOptions(ctx, engine, confirmer, nil)
		if searchLimit > 0 {
			opts.PageSize = searchLimit
		}

		prog, err := startView(opts)
		if err != nil {
			return err
		}
		defer func() {
			prog.Quit()
			_ = prog.Wait()
		}()

		if searchURL != "" {
			prog.Navigate(searchURL)
		} else {
			prog.Search(text, r)
		}

		snap, err := prog.SettledSnapshot(ctx, 0)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		for _, n := range snap.Notices {
			fmt.Fprintf(os.Stderr, "%s\n", n.Message)
		}

		results, err := loadResults(ctx, engine, snap.Results)
		if err != nil {
			return err
		}
		if searchJSON {
			return outputSearchJSON(os.Stdout, snap, results)
		}
		if len(results) == 0 {
			fmt.Println("No results found.")
			return nil
		}
		return outputSearchTable(os.Stdout, snap, results)
	},
}

// ensureCoverage asks whether to index older mail when a mail search
// reaches before the indexed range. Without a start the search reaches back
// to the oldest stored mail. A confirmer that cannot ask searches the
// indexed range only.
func ensureCoverage(ctx context.Context, engine query.Engine, confirmer searchview.Confirmer, r restriction.Restriction, oldest time.Time) error {
	if r.Category != restriction.CategoryMail {
		return nil
	}
	since := oldest
	if r.Start != nil {
		since = *r.Start
	}
	cov := engine.IndexCoverage()
	if since.IsZero() || !cov.NeedsExtension(since) {
		return nil
	}

	ok, err := confirmer.Confirm(ctx, fmt.Sprintf(
		"The search index does not reach back to %s. Index older mail first?",
		since.Local().Format(restriction.DateLayout)))
	if errors.Is(err, searchview.ErrNotTerminal) {
		logger.Warn("cannot ask to extend the index; searching indexed mail only", "coverage", cov.String())
		return nil
	}
	if err != nil || !ok {
		return err
	}
	if err := engine.ExtendCoverage(ctx, since); err != nil {
		return fmt.Errorf("extend index: %w", err)
	}
	return nil
}

// loadResults loads the entities behind entries. Entries deleted since the
// search ran are skipped.
func loadResults(ctx context.Context, engine query.Engine, entries []query.ResultEntry) ([]entity.Entity, error) {
	out := make([]entity.Entity, 0, len(entries))
	for _, e := range entries {
		ent, err := engine.Load(ctx, e.Type, e.ID)
		if errors.Is(err, query.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s %s: %w", e.Type, e.ID, err)
		}
		out = append(out, ent)
	}
	return out, nil
}

func outputSearchTable(out io.Writer, snap searchview.Snapshot, results []entity.Entity) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	switch snap.Category {
	case string(restriction.CategoryContact):
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tCOMPANY")
		fmt.Fprintln(w, "──\t────\t─────\t───────")
	default:
		fmt.Fprintln(w, "ID\tDATE\tFROM\tSUBJECT")
		fmt.Fprintln(w, "──\t────\t────\t───────")
	}

	for _, e := range results {
		switch e := e.(type) {
		case *entity.Mail:
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.ID.ElementID,
				e.ReceivedAt.Local().Format("2006-01-02"),
				truncate(e.Sender, 30),
				truncate(e.Subject, 50),
			)
		case *entity.Contact:
			name := strings.TrimSpace(e.FirstName + " " + e.LastName)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.ID.ElementID,
				truncate(name, 30),
				truncate(e.Email, 30),
				truncate(e.Company, 30),
			)
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nShowing %d results\n", len(results))
	if snap.IndexDate != nil && snap.Category != string(restriction.CategoryContact) {
		fmt.Fprintf(out, "Mail indexed since %s\n", snap.IndexDate.Local().Format(restriction.DateLayout))
	}
	return nil
}

func outputSearchJSON(out io.Writer, snap searchview.Snapshot, results []entity.Entity) error {
	output := struct {
		URL      string          `json:"url"`
		Query    string          `json:"query"`
		Category string          `json:"category"`
		Coverage string          `json:"coverage"`
		Results  []entity.Entity `json:"results"`
	}{
		URL:      snap.URL,
		Query:    snap.Query,
		Category: snap.Category,
		Coverage: snap.Coverage,
		Results:  results,
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// truncate fits s into max terminal cells on a single line.
func truncate(s string, max int) string {
	s = strings.NewReplacer("\r", "", "\n", " ", "\t", " ").Replace(s)
	if runewidth.StringWidth(s) <= max {
		return s
	}
	if max <= 3 {
		return runewidth.Truncate(s, max, "")
	}
	return runewidth.Truncate(s, max, "...")
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchCategory, "category", "mail", "What to search: mail or contact")
	searchCmd.Flags().StringVar(&searchStart, "start", "", "Only mail received on or after this day (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchEnd, "end", "", "Only mail received on or before this day (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchField, "field", "", "Limit mail search to one field: subject, body, from or to")
	searchCmd.Flags().StringVar(&searchFolder, "folder", "", "List id of the folder to search")
	searchCmd.Flags().StringVar(&searchURL, "url", "", "Search URL to open instead of building one from flags")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum number of mail results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")
	searchCmd.Flags().BoolVarP(&searchYes, "yes", "y", false, "Index older mail without asking")
}
