package browser

import (
	"context"
	"fmt"
	"net/url"
	"sync"
)

// Window is a page location reported by the browser, plus its frame state.
type Window struct {
	location *url.URL
	topLevel bool
}

func NewWindow(href string, embedded bool) (*Window, error) {
	u, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("parse href: %w", err)
	}
	return &Window{location: u, topLevel: !embedded}, nil
}

func (w *Window) Location() *url.URL {
	u := *w.location
	return &u
}

func (w *Window) IsTopLevel() bool {
	return w.topLevel
}

// Navigation is an instruction for the browser to move its top frame.
type Navigation struct {
	URL    string `json:"url"`
	Target string `json:"target"`
}

// RecordingNavigator collects navigations so a server can hand them back to the page.
type RecordingNavigator struct {
	mu    sync.Mutex
	items []Navigation
}

func (r *RecordingNavigator) NavigateTop(ctx context.Context, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Navigation{URL: target, Target: "_top"})
	return nil
}

// Drain returns and forgets the recorded navigations.
func (r *RecordingNavigator) Drain() []Navigation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.items
	r.items = nil
	return out
}
