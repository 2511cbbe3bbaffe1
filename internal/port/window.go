package port

import (
	"context"
	"net/url"
)

// Window is the page's view of its own frame.
type Window interface {
	// Location is the full page URL including the fragment
	Location() *url.URL

	// IsTopLevel reports whether the window is its own top frame
	IsTopLevel() bool
}

// Navigator moves the top-level frame, never the current embedded one.
type Navigator interface {
	NavigateTop(ctx context.Context, target string) error
}
