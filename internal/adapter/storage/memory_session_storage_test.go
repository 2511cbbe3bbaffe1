package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStorage_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStorage()

	ok, err := s.SetIfAbsent(ctx, "lock", "1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetIfAbsent(ctx, "lock", "2")
	require.NoError(t, err)
	assert.False(t, ok)

	v, _, _ := s.Get(ctx, "lock")
	assert.Equal(t, "1", v)
}

func TestMemoryTabs_ForTab(t *testing.T) {
	ctx := context.Background()
	tabs := NewMemoryTabs()

	tabs.ForTab("a").Set(ctx, "sp_shop", "acme.myshopify.com")

	_, ok, _ := tabs.ForTab("b").Get(ctx, "sp_shop")
	assert.False(t, ok)

	v, ok, _ := tabs.ForTab("a").Get(ctx, "sp_shop")
	assert.True(t, ok)
	assert.Equal(t, "acme.myshopify.com", v)
}

func TestMemoryPreferenceRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPreferenceRepository()

	_, ok, err := repo.GetPreference(ctx, "acme", "stockpilot_threshold")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.PutPreference(ctx, "acme", "stockpilot_threshold", "5"))
	v, ok, _ := repo.GetPreference(ctx, "acme", "stockpilot_threshold")
	assert.True(t, ok)
	assert.Equal(t, "5", v)
}
