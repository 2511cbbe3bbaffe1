package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stockpilot/internal/core/domain"
)

func tracked(id int64, sku string, qty int) domain.Variant {
	return domain.Variant{
		ID:              id,
		ProductTitle:    "Shirt",
		VariantTitle:    sku,
		SKU:             sku,
		Quantity:        qty,
		TrackingEnabled: true,
	}
}

func TestApply_SendsSignedDelta(t *testing.T) {
	gw := newMockGateway(tracked(1, "A-1", 10))
	catalog := loadedCatalog(t, gw)
	editor := NewInventoryEditor(catalog, gw, nil)

	updated, err := editor.Apply(context.Background(), 1, 7)
	require.NoError(t, err)

	assert.Equal(t, 7, updated.Quantity)
	sent := gw.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(1), sent[0].VariantID)
	assert.Equal(t, -3, sent[0].Delta)
	assert.NotEmpty(t, sent[0].IdempotencyKey)
	assert.False(t, catalog.InFlight(1))
}

func TestApply_OptimisticThenRollback(t *testing.T) {
	gw := newMockGateway(tracked(1, "A-1", 10))
	gw.fail[1] = errServer
	catalog := loadedCatalog(t, gw)
	editor := NewInventoryEditor(catalog, gw, nil)

	var during int
	gw.onApply = func(req domain.DeltaRequest) {
		v, _ := catalog.Get(req.VariantID)
		during = v.Quantity
	}

	reverted, err := editor.Apply(context.Background(), 1, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpdateFailed)
	assert.ErrorIs(t, err, errServer)

	assert.Equal(t, 7, during)
	assert.Equal(t, 10, reverted.Quantity)
	v, _ := catalog.Get(1)
	assert.Equal(t, 10, v.Quantity)
	assert.False(t, catalog.InFlight(1))
}

func TestApply_NoChangeSendsNothing(t *testing.T) {
	gw := newMockGateway(tracked(1, "A-1", 10))
	editor := NewInventoryEditor(loadedCatalog(t, gw), gw, nil)

	v, err := editor.Apply(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, v.Quantity)
	assert.Empty(t, gw.sent())
}

func TestApply_NotTracked(t *testing.T) {
	v := tracked(1, "A-1", 10)
	v.TrackingEnabled = false
	gw := newMockGateway(v)
	editor := NewInventoryEditor(loadedCatalog(t, gw), gw, nil)

	_, err := editor.Apply(context.Background(), 1, 3)
	assert.ErrorIs(t, err, ErrNotTracked)
	assert.Empty(t, gw.sent())
}

func TestApply_UnknownVariant(t *testing.T) {
	gw := newMockGateway()
	editor := NewInventoryEditor(loadedCatalog(t, gw), gw, nil)

	_, err := editor.Apply(context.Background(), 42, 3)
	assert.ErrorIs(t, err, ErrVariantNotFound)
}

func TestApply_InFlightGuard(t *testing.T) {
	gw := newMockGateway(tracked(1, "A-1", 10))
	catalog := loadedCatalog(t, gw)
	editor := NewInventoryEditor(catalog, gw, nil)
	ctx := context.Background()

	var nestedErr error
	gw.onApply = func(req domain.DeltaRequest) {
		gw.onApply = nil
		_, nestedErr = editor.Apply(ctx, 1, 2)
	}

	_, err := editor.Apply(ctx, 1, 7)
	require.NoError(t, err)
	assert.ErrorIs(t, nestedErr, ErrUpdateInFlight)
	assert.Len(t, gw.sent(), 1)
}

func TestApply_ReloadWhileInFlight(t *testing.T) {
	for _, fail := range []bool{false, true} {
		gw := newMockGateway(tracked(1, "A-1", 10), tracked(2, "B-1", 3))
		catalog := loadedCatalog(t, gw)
		editor := NewInventoryEditor(catalog, gw, nil)
		if fail {
			gw.fail[1] = errServer
		}

		var during domain.Variant
		gw.onApply = func(req domain.DeltaRequest) {
			gw.mu.Lock()
			gw.variants = []domain.Variant{tracked(1, "A-1", 4), tracked(2, "B-1", 9)}
			gw.mu.Unlock()
			require.NoError(t, catalog.Load(context.Background()))
			during, _ = catalog.Get(1)
		}

		_, err := editor.Apply(context.Background(), 1, 7)

		// The reload refreshes other rows but leaves the in-flight row to release.
		assert.Equal(t, 7, during.Quantity)
		other, _ := catalog.Get(2)
		assert.Equal(t, 9, other.Quantity)

		row, _ := catalog.Get(1)
		if fail {
			assert.ErrorIs(t, err, ErrUpdateFailed)
			assert.Equal(t, 10, row.Quantity)
		} else {
			require.NoError(t, err)
			assert.Equal(t, 7, row.Quantity)
		}
		assert.False(t, catalog.InFlight(1))
	}
}

func TestApply_IdempotencyKeysDiffer(t *testing.T) {
	gw := newMockGateway(tracked(1, "A-1", 10))
	editor := NewInventoryEditor(loadedCatalog(t, gw), gw, nil)
	ctx := context.Background()

	_, err := editor.Apply(ctx, 1, 8)
	require.NoError(t, err)
	_, err = editor.Apply(ctx, 1, 9)
	require.NoError(t, err)

	sent := gw.sent()
	require.Len(t, sent, 2)
	assert.NotEqual(t, sent[0].IdempotencyKey, sent[1].IdempotencyKey)
	assert.Equal(t, 1, sent[1].Delta)
}

func TestAdjust(t *testing.T) {
	tests := []struct {
		name    string
		mode    AdjustMode
		amount  int
		confirm bool
		want    int
		delta   int
		wantErr error
	}{
		{name: "up", mode: AdjustUp, amount: 4, want: 6, delta: 4},
		{name: "down", mode: AdjustDown, amount: 2, want: 0, delta: -2},
		{name: "below zero refused", mode: AdjustDown, amount: 5, want: 2, wantErr: ErrBelowZero},
		{name: "below zero confirmed", mode: AdjustDown, amount: 5, confirm: true, want: -3, delta: -5},
		{name: "clamped", mode: AdjustUp, amount: 5000, want: 1001, delta: MaxAdjustAmount},
		{name: "zero amount", mode: AdjustUp, amount: 0, wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newMockGateway(tracked(1, "A-1", 2))
			editor := NewInventoryEditor(loadedCatalog(t, gw), gw, nil)

			v, err := editor.Adjust(context.Background(), 1, tt.mode, tt.amount, tt.confirm)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, gw.sent())
				if tt.want != 0 {
					assert.Equal(t, tt.want, v.Quantity)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Quantity)
			sent := gw.sent()
			require.Len(t, sent, 1)
			assert.Equal(t, tt.delta, sent[0].Delta)
		})
	}
}

func TestCatalogSearch(t *testing.T) {
	gw := newMockGateway(
		tracked(1, "RED-S", 1),
		tracked(2, "RED-M", 1),
		tracked(3, "BLUE-S", 1),
	)
	catalog := loadedCatalog(t, gw)

	assert.Len(t, catalog.Search("red", 0), 2)
	assert.Len(t, catalog.Search("red", 1), 1)
	assert.Len(t, catalog.Search("shirt", 20), 3)
	assert.Empty(t, catalog.Search("  ", 20))
}

func TestCatalogEnsureLoaded(t *testing.T) {
	gw := newMockGateway(tracked(1, "A-1", 1))
	catalog := NewCatalog(gw, nil)
	require.NoError(t, catalog.EnsureLoaded(context.Background()))

	gw.variants = append(gw.variants, tracked(2, "A-2", 1))
	require.NoError(t, catalog.EnsureLoaded(context.Background()))
	assert.Len(t, catalog.Snapshot(), 1)

	require.NoError(t, catalog.Load(context.Background()))
	assert.Len(t, catalog.Snapshot(), 2)
}
