package searchview

import (
	"net/url"
	"sync"
)

// MemoryRouter keeps the current location and its history in memory.
type MemoryRouter struct {
	mu      sync.Mutex
	current string
	history []string
}

func NewMemoryRouter(initial string) *MemoryRouter {
	r := &MemoryRouter{}
	if initial != "" {
		r.SetURL(initial)
	}
	return r
}

func (r *MemoryRouter) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *MemoryRouter) Path() string {
	u, err := url.Parse(r.URL())
	if err != nil {
		return ""
	}
	return u.Path
}

// SetURL moves to u. Setting the current URL again is not recorded.
func (r *MemoryRouter) SetURL(u string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u == r.current {
		return
	}
	r.current = u
	r.history = append(r.history, u)
}

// History returns every distinct location visited, oldest first.
func (r *MemoryRouter) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.history...)
}

var _ Router = (*MemoryRouter)(nil)
