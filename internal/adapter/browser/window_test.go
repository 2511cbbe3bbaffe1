package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWindow(t *testing.T) {
	w, err := NewWindow("https://panel.example.com/?shop=acme.myshopify.com#/csv?host=abc", true)
	require.NoError(t, err)

	assert.False(t, w.IsTopLevel())
	assert.Equal(t, "acme.myshopify.com", w.Location().Query().Get("shop"))
	assert.Equal(t, "/csv?host=abc", w.Location().Fragment)
}

func TestNewWindow_InvalidHref(t *testing.T) {
	_, err := NewWindow("://bad", false)
	assert.Error(t, err)
}

func TestRecordingNavigator_Drain(t *testing.T) {
	nav := &RecordingNavigator{}
	require.NoError(t, nav.NavigateTop(context.Background(), "https://api.example.com/auth/install-redirect?shop=a"))

	got := nav.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, "_top", got[0].Target)
	assert.Empty(t, nav.Drain())
}
