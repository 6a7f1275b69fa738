package searchview

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/restriction"
)

// shownView returns a view with m1 and m2 listed and m1 shown in the detail
// pane.
func shownView(t *testing.T) *testView {
	t.Helper()
	v := NewViewBuilder().
		WithEntities(mail("m1", day(2024, 3, 10)), mail("m2", day(2024, 3, 12))).
		Build(t)
	v.navigate("/search/mail?query=subject")
	v.send(SelectMsg{ElementIDs: []string{"m1"}, Clicked: true})
	if !v.detail.IsShownEntity(mailID("m1")) {
		t.Fatalf("setup: m1 not shown; log %v", v.log.all())
	}
	return v
}

// eventsSince returns the log entries recorded after the first n.
func eventsSince(v *testView, n int) []string {
	return v.log.all()[n:]
}

func update(op entity.Operation, elementID string) entity.Update {
	return entity.Update{Type: entity.TypeMail, ID: mailID(elementID), Operation: op}
}

func TestReconcile_UpdateReloadsAfterMutation(t *testing.T) {
	v := shownView(t)
	changed := mail("m1", day(2024, 3, 10))
	changed.Subject = "Subject m1 (edited)"
	v.stored.put(changed)
	mark := len(v.log.all())

	v.send(EntityUpdateMsg{Updates: []entity.Update{update(entity.OpUpdate, "m1")}})

	want := []string{"load m1", "mutated update m1", "load m1"}
	if diff := cmp.Diff(want, eventsSince(v, mark)); diff != "" {
		t.Errorf("event order mismatch (-want +got):\n%s", diff)
	}
	shown, ok := v.detail.Shown().(*entity.Mail)
	if !ok || shown.Subject != "Subject m1 (edited)" {
		t.Errorf("detail shows %+v, want the edited mail", v.detail.Shown())
	}
}

func TestReconcile_UpdateOfOtherEntityDoesNotReload(t *testing.T) {
	v := shownView(t)
	renders := v.detail.Renders()
	mark := len(v.log.all())

	v.send(EntityUpdateMsg{Updates: []entity.Update{update(entity.OpUpdate, "m2")}})

	want := []string{"load m2", "mutated update m2"}
	if diff := cmp.Diff(want, eventsSince(v, mark)); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if got := v.detail.Renders(); got != renders {
		t.Errorf("detail renders = %d, want %d", got, renders)
	}
}

func TestReconcile_DeleteShownEntity(t *testing.T) {
	v := shownView(t)
	v.stored.remove(mailID("m1"))
	mark := len(v.log.all())

	v.send(EntityUpdateMsg{Updates: []entity.Update{update(entity.OpDelete, "m1")}})

	if diff := cmp.Diff([]string{"mutated delete m1"}, eventsSince(v, mark)); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	snap := v.snapshot()
	if diff := cmp.Diff([]string{"m2"}, elementIDs(snap.Results)); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if len(snap.Selected) != 0 {
		t.Errorf("selected = %v, want none", elementIDs(snap.Selected))
	}
	if n := v.notices.Notices(); len(n) != 0 {
		t.Errorf("notices = %+v, want none", n)
	}
}

func TestReconcile_ReloadFailureIsSwallowed(t *testing.T) {
	v := shownView(t)
	original := v.detail.Shown()
	loads := 0
	v.engine.LoadFunc = func(_ context.Context, _ entity.Type, id entity.ID) (entity.Entity, error) {
		loads++
		if loads > 1 {
			return nil, errors.New("entity gone")
		}
		return v.stored.get(id)
	}

	v.send(EntityUpdateMsg{Updates: []entity.Update{update(entity.OpUpdate, "m1")}})

	if loads != 2 {
		t.Errorf("loads = %d, want 2 (mutation and reload)", loads)
	}
	if v.detail.Shown() != original {
		t.Errorf("detail shows %+v, want the previous version", v.detail.Shown())
	}
	if n := v.notices.Notices(); len(n) != 0 {
		t.Errorf("notices = %+v, want none", n)
	}
}

func TestReconcile_IgnoresOutsiders(t *testing.T) {
	v := shownView(t)
	mark := len(v.log.all())

	v.send(EntityUpdateMsg{Updates: []entity.Update{
		update(entity.OpUpdate, "unknown"),
		update(entity.OpDelete, "unknown"),
		{Type: entity.TypeFolder, ID: entity.ID{ListID: "folders", ElementID: "inbox"}, Operation: entity.OpUpdate},
		{Type: entity.TypeContact, ID: mailID("m1"), Operation: entity.OpUpdate},
	}})

	if got := eventsSince(v, mark); len(got) != 0 {
		t.Errorf("events = %v, want none", got)
	}
	if got := len(v.snapshot().Results); got != 2 {
		t.Errorf("results = %d, want 2", got)
	}
}

func TestReconcile_AppliesInArrivalOrder(t *testing.T) {
	v := shownView(t)
	v.stored.put(mail("m3", day(2024, 3, 11)))
	mark := len(v.log.all())

	v.send(EntityUpdateMsg{Updates: []entity.Update{
		update(entity.OpDelete, "m2"),
		update(entity.OpCreate, "m3"),
		update(entity.OpUpdate, "m3"),
	}})

	var mutations []string
	for _, e := range eventsSince(v, mark) {
		if strings.HasPrefix(e, "mutated") {
			mutations = append(mutations, e)
		}
	}
	want := []string{"mutated delete m2", "mutated create m3", "mutated update m3"}
	if diff := cmp.Diff(want, mutations); diff != "" {
		t.Errorf("mutation order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"m3", "m1"}, elementIDs(v.snapshot().Results)); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_CreateJoinsOnlyWhenMatching(t *testing.T) {
	v := shownView(t)
	newer := mail("m9", day(2024, 3, 14))
	other := mail("m8", day(2024, 3, 13))
	other.Subject = "Lunch"
	v.stored.put(newer)
	v.stored.put(other)

	v.send(EntityUpdateMsg{Updates: []entity.Update{
		update(entity.OpCreate, "m9"),
		update(entity.OpCreate, "m8"),
	}})

	if diff := cmp.Diff([]string{"m9", "m2", "m1"}, elementIDs(v.snapshot().Results)); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_StaleReloadDropped(t *testing.T) {
	v := shownView(t)
	shown := v.detail.Shown()
	renders := v.detail.Renders()

	// A reload for m2 arrives although the pane shows m1.
	v.send(entityReloadedMsg{update: update(entity.OpUpdate, "m2"), entity: mail("m2", day(2024, 3, 12))})

	if v.detail.Shown() != shown || v.detail.Renders() != renders {
		t.Errorf("detail changed to %+v", v.detail.Shown())
	}
}

func TestReconcile_ChangeStartedBeforeNewQueryDropped(t *testing.T) {
	m1, m2 := mail("m1", day(2024, 3, 10)), mail("m2", day(2024, 3, 12))
	v := NewViewBuilder().WithEntities(m1, m2).Build(t)
	results := map[string][]query.ResultEntry{
		"alpha": entriesFor(entity.TypeMail, m1, m2),
		"beta":  entriesFor(entity.TypeMail, m2),
	}
	v.engine.SearchFunc = func(_ context.Context, text string, _ restriction.Restriction, _, _ int) ([]query.ResultEntry, error) {
		return append([]query.ResultEntry(nil), results[text]...), nil
	}
	v.navigate("/search/mail?query=alpha")

	// The update of m1 starts against the alpha result but runs late.
	updated, cmd := v.model.Update(EntityUpdateMsg{Updates: []entity.Update{update(entity.OpUpdate, "m1")}})
	v.model = updated.(Model)
	if cmd == nil {
		t.Fatal("update of a listed mail started nothing")
	}

	v.navigate("/search/mail?query=beta")
	if diff := cmp.Diff([]string{"m2"}, elementIDs(v.snapshot().Results)); diff != "" {
		t.Fatalf("beta results mismatch (-want +got):\n%s", diff)
	}

	v.model = v.model.ProcessCmd(cmd)

	snap := v.snapshot()
	if diff := cmp.Diff([]string{"m2"}, elementIDs(snap.Results)); diff != "" {
		t.Errorf("results after late update mismatch (-want +got):\n%s", diff)
	}
	if snap.PendingUpdates != 0 {
		t.Errorf("pending updates = %d, want 0", snap.PendingUpdates)
	}
}
