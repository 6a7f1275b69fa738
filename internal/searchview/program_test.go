package searchview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/query/querytest"
	"github.com/wesm/vaultsearch/internal/restriction"
)

// waitForSnapshot polls the program until cond holds.
func waitForSnapshot(t *testing.T, p *Program, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		snap, err := p.Snapshot(ctx)
		cancel()
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached; last snapshot %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// startProgram runs a view for opts until the test ends.
func startProgram(t *testing.T, opts Options) *Program {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	opts.Context = ctx
	opts.Logger = discardLogger()
	m, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := NewProgram(ctx, m)
	p.Start()
	t.Cleanup(func() {
		p.Quit()
		_ = p.Wait()
	})
	return p
}

// settle waits for the view to settle.
func settle(t *testing.T, p *Program) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := p.SettledSnapshot(ctx, 0)
	if err != nil {
		t.Fatalf("SettledSnapshot: %v", err)
	}
	return snap
}

func TestProgram_SearchAndUpdate(t *testing.T) {
	m1 := mail("m1", day(2024, 3, 10))
	eng := &querytest.MockEngine{
		Coverage:      query.FullCoverage(),
		SearchResults: entriesFor(entity.TypeMail, m1),
	}
	eng.PutEntity(m1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m, err := New(Options{Context: ctx, Engine: eng, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := NewProgram(ctx, m)
	p.Start()

	p.Search("subject", restriction.Mail())
	waitForSnapshot(t, p, func(s Snapshot) bool { return len(s.Results) == 1 })

	p.Select([]string{"m1"}, true, false)
	snap := waitForSnapshot(t, p, func(s Snapshot) bool { return s.Shown != nil && s.Focus == ColumnDetail })
	if got := restriction.ParseArgs(snap.URL).ID; got != "m1" {
		t.Errorf("URL id = %q, want m1", got)
	}

	eng.PutEntity(mail("m2", day(2024, 3, 11)))
	p.PublishUpdates([]entity.Update{{Type: entity.TypeMail, ID: mailID("m2"), Operation: entity.OpCreate}})
	waitForSnapshot(t, p, func(s Snapshot) bool { return len(s.Results) == 2 })

	p.Quit()
	if err := p.Wait(); err != nil {
		t.Errorf("Wait: %v", err)
	}
	if _, err := p.Snapshot(context.Background()); err == nil {
		t.Error("Snapshot after quit succeeded")
	}
}

func TestProgram_SettledSnapshotWaitsForFilterSearch(t *testing.T) {
	m1 := mail("m1", day(2024, 3, 10))
	eng := &querytest.MockEngine{Coverage: query.FullCoverage()}
	eng.PutEntity(m1)
	eng.SearchFunc = func(_ context.Context, _ string, r restriction.Restriction, _, _ int) ([]query.ResultEntry, error) {
		if r.Field == restriction.FieldSubject {
			time.Sleep(50 * time.Millisecond)
			return nil, nil
		}
		return entriesFor(entity.TypeMail, m1), nil
	}
	p := startProgram(t, Options{Engine: eng})

	p.Search("subject", restriction.Mail())
	if snap := settle(t, p); len(snap.Results) != 1 {
		t.Fatalf("setup: results = %v, want m1", elementIDs(snap.Results))
	}

	p.SetField(restriction.FieldSubject)
	snap := settle(t, p)

	calls := eng.SearchCalls()
	if len(calls) != 2 || calls[1].Restriction.Field != restriction.FieldSubject {
		t.Fatalf("search calls = %+v, want a second search on subject", calls)
	}
	if snap.Filter.Field != restriction.FieldSubject {
		t.Errorf("filter field = %q, want subject", snap.Filter.Field)
	}
	if len(snap.Results) != 0 {
		t.Errorf("results = %v, want the empty subject result", elementIDs(snap.Results))
	}
	if got := restriction.ParseArgs(snap.URL).Query; got != "subject" {
		t.Errorf("URL query = %q, want subject", got)
	}
}

func TestProgram_SettledSnapshotWaitsForCoverageConfirmation(t *testing.T) {
	now := time.Now()
	today := day(now.Year(), now.Month(), now.Day())
	m1 := mail("m1", today.AddDate(0, 0, -60))
	eng := &querytest.MockEngine{
		Coverage:      query.CoverageFrom(today.AddDate(0, 0, -30)),
		SearchResults: entriesFor(entity.TypeMail, m1),
	}
	eng.PutEntity(m1)
	prompts := NewPromptConfirmer(time.Minute)
	p := startProgram(t, Options{Engine: eng, Confirmer: prompts})

	p.Search("subject", restriction.Mail())
	settle(t, p)

	start := today.AddDate(0, 0, -90)
	p.SetDateRange(&start, nil)

	snap, err := p.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Settled() {
		t.Fatal("view settled while the coverage question is unanswered")
	}

	var prompt Prompt
	deadline := time.Now().Add(5 * time.Second)
	for {
		var ok bool
		if prompt, ok = prompts.Pending(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("coverage question never asked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_, err = p.SettledSnapshot(ctx, 0)
	cancel()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("SettledSnapshot while asking = %v, want deadline exceeded", err)
	}

	if err := prompts.Answer(prompt.ID, true); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	snap = settle(t, p)

	if got := eng.ExtendCalls(); len(got) != 1 || !got[0].Equal(start) {
		t.Errorf("extend calls = %v, want [%v]", got, start)
	}
	calls := eng.SearchCalls()
	last := calls[len(calls)-1].Restriction
	if len(calls) != 2 || last.Start == nil || !last.Start.Equal(start) {
		t.Errorf("search calls = %+v, want a second search from %v", calls, start)
	}
	if len(snap.Results) != 1 {
		t.Errorf("results = %v, want m1", elementIDs(snap.Results))
	}
}

func TestProgram_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m, err := New(Options{Context: ctx, Engine: &querytest.MockEngine{}, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := NewProgram(ctx, m)
	p.Start()

	cancel()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("program did not stop")
	}
	if err := p.Wait(); err != nil {
		t.Errorf("Wait: %v", err)
	}
}

func TestNew_RequiresEngine(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New without engine succeeded")
	}
}
