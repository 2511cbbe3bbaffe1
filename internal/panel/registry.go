package panel

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrPageNotFound   = errors.New("page not found")
	ErrPageRedirected = errors.New("page was redirected")
)

type registryEntry struct {
	page     *Page
	lastSeen time.Time
}

// Registry keeps booted pages for a server host.
type Registry struct {
	mu    sync.Mutex
	pages map[string]*registryEntry
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		pages: make(map[string]*registryEntry),
		now:   time.Now,
	}
}

func (r *Registry) Add(p *Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[p.ID] = &registryEntry{page: p, lastSeen: r.now()}
}

func (r *Registry) Get(id string) (*Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pages[id]
	if !ok {
		return nil, ErrPageNotFound
	}
	e.lastSeen = r.now()
	return e.page, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

// Sweep drops pages idle for longer than maxIdle and returns how many went.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	removed := 0
	for id, e := range r.pages {
		if e.lastSeen.Before(cutoff) {
			delete(r.pages, id)
			removed++
		}
	}
	return removed
}
