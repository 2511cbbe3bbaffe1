package port

import "context"

// SessionStorage is durable storage scoped to one browser tab session.
type SessionStorage interface {
	// Get returns the stored value and whether the key exists
	Get(ctx context.Context, key string) (string, bool, error)

	// Set overwrites a key (last write wins)
	Set(ctx context.Context, key, value string) error

	// SetIfAbsent sets a key only once, returns false if it already existed
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)
}

// TabStore opens the session storage of a tab by id.
type TabStore interface {
	ForTab(tabID string) SessionStorage
}
