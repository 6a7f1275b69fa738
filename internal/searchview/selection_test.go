package searchview

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/vaultsearch/internal/restriction"
)

func listedView(t *testing.T) *testView {
	t.Helper()
	v := NewViewBuilder().
		WithEntities(mail("m1", day(2024, 3, 10)), mail("m2", day(2024, 3, 12))).
		Build(t)
	v.navigate("/search/mail?query=subject")
	return v
}

func TestSelection_SingleSelectionWritesURL(t *testing.T) {
	v := listedView(t)

	v.send(SelectMsg{ElementIDs: []string{"m1"}})

	args := restriction.ParseArgs(v.router.URL())
	want := restriction.Args{Query: "subject", HasQuery: true, ID: "m1"}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Errorf("URL args mismatch (-want +got):\n%s", diff)
	}
	if !v.detail.IsShownEntity(mailID("m1")) {
		t.Error("m1 not shown in detail pane")
	}
	if got := v.searchCount(); got != 1 {
		t.Errorf("search calls = %d, want 1 (URL write must not re-query)", got)
	}
	if got := v.layout.Focus(); got != ColumnList {
		t.Errorf("focus = %q, want list for a keyboard selection", got)
	}
}

func TestSelection_OutOfScopeRouteNotClobbered(t *testing.T) {
	v := listedView(t)
	v.router.SetURL("/settings/account")

	v.send(SelectMsg{ElementIDs: []string{"m1"}, Clicked: true})

	if got := v.router.URL(); got != "/settings/account" {
		t.Errorf("URL = %q, want the route left alone", got)
	}
}

func TestSelection_ClickFocusesDetail(t *testing.T) {
	v := listedView(t)

	v.send(SelectMsg{ElementIDs: []string{"m2"}, Clicked: true})

	if got := v.layout.Focus(); got != ColumnDetail {
		t.Errorf("focus = %q, want %q", got, ColumnDetail)
	}
}

func TestSelection_MultiSelectDoesNotWriteURL(t *testing.T) {
	v := listedView(t)
	before := v.router.URL()

	v.send(SelectMsg{ElementIDs: []string{"m1", "m2"}, Clicked: true, Multi: true})

	if got := v.router.URL(); got != before {
		t.Errorf("URL = %q, want %q", got, before)
	}
	if v.detail.HasViewer() {
		t.Error("detail pane shows an entity during multi-select")
	}
	if got := v.layout.Focus(); got != ColumnList {
		t.Errorf("focus = %q, want list", got)
	}
	if got := len(v.snapshot().Selected); got != 2 {
		t.Errorf("selected = %d, want 2", got)
	}
}

func TestSelection_ReselectShownEntityIsNoop(t *testing.T) {
	v := listedView(t)
	v.send(SelectMsg{ElementIDs: []string{"m1"}})
	history := len(v.router.History())
	renders := v.detail.Renders()

	v.send(SelectMsg{ElementIDs: []string{"m1"}})

	if got := len(v.router.History()); got != history {
		t.Errorf("router history grew to %d, want %d", got, history)
	}
	if got := v.detail.Renders(); got != renders {
		t.Errorf("detail renders = %d, want %d", got, renders)
	}
}

func TestSelection_URLIDSelectedWhenResultsArrive(t *testing.T) {
	v := NewViewBuilder().
		WithEntities(mail("m1", day(2024, 3, 10)), mail("m2", day(2024, 3, 12))).
		WithInitialURL("/search/mail?id=m1&query=subject").
		Build(t)

	snap := v.snapshot()
	if diff := cmp.Diff([]string{"m1"}, elementIDs(snap.Selected)); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}
	if !v.detail.IsShownEntity(mailID("m1")) {
		t.Error("m1 not shown in detail pane")
	}
	if got := v.searchCount(); got != 1 {
		t.Errorf("search calls = %d, want 1", got)
	}
}

func TestSelection_URLWithoutIDClearsSelection(t *testing.T) {
	v := listedView(t)
	v.send(SelectMsg{ElementIDs: []string{"m1"}})

	v.navigate("/search/mail?query=subject")

	if got := v.snapshot().Selected; len(got) != 0 {
		t.Errorf("selected = %v, want none", elementIDs(got))
	}
	if v.detail.HasViewer() {
		t.Error("detail pane still shows an entity")
	}
	if got := v.searchCount(); got != 1 {
		t.Errorf("search calls = %d, want 1", got)
	}
}

func TestSelection_URLChangesSelectedID(t *testing.T) {
	v := listedView(t)
	v.send(SelectMsg{ElementIDs: []string{"m1"}})

	v.navigate("/search/mail?id=m2&query=subject")

	if diff := cmp.Diff([]string{"m2"}, elementIDs(v.snapshot().Selected)); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}
	if !v.detail.IsShownEntity(mailID("m2")) {
		t.Error("m2 not shown in detail pane")
	}
}

func TestSelection_UnknownURLIDIgnored(t *testing.T) {
	v := listedView(t)

	v.navigate("/search/mail?id=missing&query=subject")

	if got := v.snapshot().Selected; len(got) != 0 {
		t.Errorf("selected = %v, want none", elementIDs(got))
	}
}
