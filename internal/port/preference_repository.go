package port

import "context"

// PreferenceRepository persists user preferences across tab sessions.
type PreferenceRepository interface {
	// GetPreference returns the stored value for owner/key, ok is false when unset
	GetPreference(ctx context.Context, owner, key string) (value string, ok bool, err error)

	// PutPreference upserts owner/key
	PutPreference(ctx context.Context, owner, key, value string) error
}
