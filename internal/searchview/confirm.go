package searchview

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// ErrNoPrompt is returned by PromptConfirmer.Answer when no question is
// waiting for an answer.
var ErrNoPrompt = errors.New("no pending prompt")

// ErrNotTerminal is returned by TerminalConfirmer when stdin is not a
// terminal.
var ErrNotTerminal = errors.New("stdin is not a terminal")

// DefaultPromptTimeout is how long a PromptConfirmer waits before treating
// a question as declined.
const DefaultPromptTimeout = 2 * time.Minute

// Prompt is a question waiting for an answer.
type Prompt struct {
	ID      uint64    `json:"id"`
	Message string    `json:"message"`
	Asked   time.Time `json:"asked"`
}

// PromptConfirmer exposes questions to a remote user (HTTP or MCP) and
// waits for Answer. Only one question is pending at a time; a question not
// answered within the timeout counts as declined.
type PromptConfirmer struct {
	timeout time.Duration

	mu      sync.Mutex
	nextID  uint64
	pending *Prompt
	answer  chan bool
	free    chan struct{} // one slot, held while a question is pending
}

// NewPromptConfirmer creates a confirmer. A timeout <= 0 uses
// DefaultPromptTimeout.
func NewPromptConfirmer(timeout time.Duration) *PromptConfirmer {
	if timeout <= 0 {
		timeout = DefaultPromptTimeout
	}
	free := make(chan struct{}, 1)
	free <- struct{}{}
	return &PromptConfirmer{timeout: timeout, free: free}
}

// Confirm publishes message and blocks until it is answered, the timeout
// passes, or ctx is done.
func (p *PromptConfirmer) Confirm(ctx context.Context, message string) (bool, error) {
	select {
	case <-p.free:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	defer func() { p.free <- struct{}{} }()

	answer := make(chan bool, 1)
	p.mu.Lock()
	p.nextID++
	p.pending = &Prompt{ID: p.nextID, Message: message, Asked: time.Now()}
	p.answer = answer
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.pending = nil
		p.answer = nil
		p.mu.Unlock()
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case ok := <-answer:
		return ok, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Pending returns the question waiting for an answer, if any.
func (p *PromptConfirmer) Pending() (Prompt, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return Prompt{}, false
	}
	return *p.pending, true
}

// Answer answers the pending question. A non-zero id must match it.
func (p *PromptConfirmer) Answer(id uint64, ok bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return ErrNoPrompt
	}
	if id != 0 && id != p.pending.ID {
		return fmt.Errorf("prompt %d: %w", id, ErrNoPrompt)
	}
	select {
	case p.answer <- ok:
	default:
		// Already answered.
	}
	return nil
}

// AutoConfirmer answers every question the same way.
type AutoConfirmer bool

func (a AutoConfirmer) Confirm(context.Context, string) (bool, error) {
	return bool(a), nil
}

// TerminalConfirmer asks on a terminal. Anything but "y" or "yes" declines.
type TerminalConfirmer struct {
	In  io.Reader
	Out io.Writer
	// Fd is checked with isatty; zero skips the check.
	Fd uintptr
}

// NewTerminalConfirmer asks on stdin and stderr.
func NewTerminalConfirmer() *TerminalConfirmer {
	return &TerminalConfirmer{In: os.Stdin, Out: os.Stderr, Fd: os.Stdin.Fd()}
}

func (t *TerminalConfirmer) Confirm(ctx context.Context, message string) (bool, error) {
	if t.Fd != 0 && !isatty.IsTerminal(t.Fd) && !isatty.IsCygwinTerminal(t.Fd) {
		return false, ErrNotTerminal
	}
	if _, err := fmt.Fprintf(t.Out, "%s [y/N]: ", message); err != nil {
		return false, err
	}

	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(t.In).ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = nil
		}
		done <- result{line: line, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return false, r.err
		}
		answer := strings.ToLower(strings.TrimSpace(r.line))
		return answer == "y" || answer == "yes", nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

var (
	_ Confirmer = (*PromptConfirmer)(nil)
	_ Confirmer = AutoConfirmer(false)
	_ Confirmer = (*TerminalConfirmer)(nil)
)
