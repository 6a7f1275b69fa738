package searchview

import (
	"context"
	"errors"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/restriction"
)

// ErrProgramStopped is returned by Program.Snapshot after the loop exited.
var ErrProgramStopped = errors.New("search view stopped")

// Program runs a Model on a headless Bubble Tea loop. Outer surfaces
// (HTTP, MCP, event streams) talk to the view only through its methods.
type Program struct {
	prog *tea.Program
	done chan struct{}
	err  error
}

// NewProgram creates a program for m. The loop stops when ctx is done.
func NewProgram(ctx context.Context, m Model) *Program {
	return &Program{
		prog: tea.NewProgram(m,
			tea.WithContext(ctx),
			tea.WithoutRenderer(),
			tea.WithInput(nil),
			tea.WithOutput(io.Discard),
			tea.WithoutSignalHandler(),
		),
		done: make(chan struct{}),
	}
}

// Start runs the loop in the background.
func (p *Program) Start() {
	go func() {
		_ = p.Run()
	}()
}

// Run runs the loop until Quit or context cancellation.
func (p *Program) Run() error {
	defer close(p.done)
	_, err := p.prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		err = nil
	}
	p.err = err
	return err
}

// Send delivers msg to the loop.
func (p *Program) Send(msg tea.Msg) {
	p.prog.Send(msg)
}

// Navigate moves the view to url.
func (p *Program) Navigate(url string) {
	p.Send(NavigateMsg{URL: url})
}

// Search navigates to a search for text within r.
func (p *Program) Search(text string, r restriction.Restriction) {
	p.Navigate(restriction.Encode(r, text, ""))
}

func (p *Program) SetDateRange(start, end *time.Time) {
	p.Send(SetDateRangeMsg{Start: start, End: end})
}

func (p *Program) SetField(f restriction.Field) {
	p.Send(SetFieldMsg{Field: f})
}

func (p *Program) SetFolder(listID string) {
	p.Send(SetFolderMsg{FolderID: listID})
}

// Select replaces the list selection as a user would.
func (p *Program) Select(elementIDs []string, clicked, multi bool) {
	p.Send(SelectMsg{ElementIDs: elementIDs, Clicked: clicked, Multi: multi})
}

// PublishUpdates delivers entity change events.
func (p *Program) PublishUpdates(updates []entity.Update) {
	if len(updates) == 0 {
		return
	}
	p.Send(EntityUpdateMsg{Updates: updates})
}

// Snapshot returns the current view state.
func (p *Program) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	// Send blocks until the loop reads the message.
	go p.Send(SnapshotMsg{Reply: reply})

	select {
	case s := <-reply:
		return s, nil
	case <-p.done:
		return Snapshot{}, ErrProgramStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// SettledSnapshot polls until no query is in flight and no entity update is
// queued, then returns the state. It returns the last state seen when ctx
// ends first, together with ctx's error.
func (p *Program) SettledSnapshot(ctx context.Context, interval time.Duration) (Snapshot, error) {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s, err := p.Snapshot(ctx)
		if err != nil || s.Settled() {
			return s, err
		}
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Quit stops the loop.
func (p *Program) Quit() {
	p.prog.Quit()
}

// Wait blocks until the loop exited and returns its error.
func (p *Program) Wait() error {
	<-p.done
	return p.err
}

// Done is closed when the loop exited.
func (p *Program) Done() <-chan struct{} {
	return p.done
}
