package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stockpilot/internal/core/domain"
)

const productsFixture = `{
  "products": [
    {
      "title": "Shirt",
      "variants": [
        {"title": "S", "sku": "SH-S", "inventory_quantity": 4, "inventory_item_id": 11, "inventory_management": "shopify"},
        {"title": "M", "sku": null, "inventory_quantity": null, "inventory_item_id": 12, "inventory_management": null}
      ]
    },
    {
      "title": "Mug",
      "variants": [
        {"title": "Default", "sku": "MUG", "inventory_quantity": 0, "inventory_item_id": 21, "inventory_management": "shopify"}
      ]
    }
  ]
}`

func TestClient_ListVariants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products", r.URL.Path)
		assert.Equal(t, "acme.myshopify.com", r.URL.Query().Get("shop"))
		w.Write([]byte(productsFixture))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", "acme.myshopify.com", srv.Client(), nil)

	variants, err := c.ListVariants(context.Background())
	require.NoError(t, err)
	require.Len(t, variants, 3)

	assert.Equal(t, domain.Variant{ID: 11, ProductTitle: "Shirt", VariantTitle: "S", SKU: "SH-S", Quantity: 4, TrackingEnabled: true}, variants[0])
	assert.Equal(t, domain.Variant{ID: 12, ProductTitle: "Shirt", VariantTitle: "M"}, variants[1])
	assert.Equal(t, int64(21), variants[2].ID)
	assert.True(t, variants[2].TrackingEnabled)
}

func TestClient_ApplyDelta(t *testing.T) {
	var got stockUpdateRequest
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/stock/update", r.URL.Path)
		assert.Equal(t, "acme.myshopify.com", r.URL.Query().Get("shop"))
		key = r.Header.Get("Idempotency-Key")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"inventory_item_id":11,"available":7}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api", "acme.myshopify.com", srv.Client(), nil)

	err := c.ApplyDelta(context.Background(), domain.DeltaRequest{VariantID: 11, Delta: -3, IdempotencyKey: "k-1"})
	require.NoError(t, err)
	assert.Equal(t, stockUpdateRequest{InventoryItemID: 11, Delta: -3}, got)
	assert.Equal(t, "k-1", key)
}

func TestClient_ApplyDeltaRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme.myshopify.com", srv.Client(), nil)

	err := c.ApplyDelta(context.Background(), domain.DeltaRequest{VariantID: 11, Delta: 1})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "boom")
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewClient(base, "acme.myshopify.com", http.DefaultClient, nil)

	_, err := c.ListVariants(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_Installed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/installed", r.URL.Path)
		w.Write([]byte(`{"installed":false}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme.myshopify.com", srv.Client(), nil)

	installed, err := c.Installed(context.Background())
	require.NoError(t, err)
	assert.False(t, installed)
}
