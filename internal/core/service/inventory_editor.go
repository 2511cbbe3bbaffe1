package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stockpilot/internal/core/domain"
	"github.com/rl1809/stockpilot/internal/port"
)

const MaxAdjustAmount = 999

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrBelowZero     = errors.New("adjustment would take stock below zero")
)

type AdjustMode string

const (
	AdjustDown AdjustMode = "down"
	AdjustUp   AdjustMode = "up"
)

// InventoryEditor applies single-row edits optimistically and rolls back on failure.
type InventoryEditor struct {
	catalog *Catalog
	gateway port.StockGateway
	newKey  func() string
	logger  *zap.Logger
}

func NewInventoryEditor(catalog *Catalog, gateway port.StockGateway, logger *zap.Logger) *InventoryEditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryEditor{
		catalog: catalog,
		gateway: gateway,
		newKey:  uuid.NewString,
		logger:  logger.Named("editor"),
	}
}

// Apply sets a variant to an absolute quantity by sending the signed delta.
// The local row changes before the call returns and is restored if it fails.
func (e *InventoryEditor) Apply(ctx context.Context, variantID int64, quantity int) (domain.Variant, error) {
	current, ok := e.catalog.Get(variantID)
	if !ok {
		return domain.Variant{}, ErrVariantNotFound
	}
	if !current.TrackingEnabled {
		return current, ErrNotTracked
	}
	delta := domain.Delta(current.Quantity, quantity)
	if delta == 0 {
		return current, nil
	}

	prev, err := e.catalog.claim(variantID, quantity, true)
	if err != nil {
		return prev, err
	}
	// Recompute against the claimed snapshot in case the row moved since Get.
	delta = domain.Delta(prev.Quantity, quantity)
	if delta == 0 {
		return e.catalog.release(variantID, prev.Quantity), nil
	}

	req := domain.DeltaRequest{
		VariantID:      variantID,
		Delta:          delta,
		IdempotencyKey: e.newKey(),
	}
	if err := e.gateway.ApplyDelta(ctx, req); err != nil {
		reverted := e.catalog.release(variantID, prev.Quantity)
		e.logger.Warn("stock update failed, reverted",
			zap.Int64("variant_id", variantID),
			zap.Int("delta", delta),
			zap.Int("quantity", prev.Quantity),
			zap.Error(err),
		)
		return reverted, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	updated := e.catalog.release(variantID, quantity)
	e.logger.Info("stock updated",
		zap.Int64("variant_id", variantID),
		zap.Int("delta", delta),
		zap.Int("quantity", quantity),
	)
	return updated, nil
}

// Adjust moves a variant up or down by amount (clamped to MaxAdjustAmount).
// Going below zero requires confirmBelowZero.
func (e *InventoryEditor) Adjust(ctx context.Context, variantID int64, mode AdjustMode, amount int, confirmBelowZero bool) (domain.Variant, error) {
	if amount <= 0 {
		return domain.Variant{}, ErrInvalidAmount
	}
	if amount > MaxAdjustAmount {
		amount = MaxAdjustAmount
	}

	current, ok := e.catalog.Get(variantID)
	if !ok {
		return domain.Variant{}, ErrVariantNotFound
	}
	if !current.TrackingEnabled {
		return current, ErrNotTracked
	}

	delta := amount
	if mode == AdjustDown {
		delta = -amount
	} else if mode != AdjustUp {
		return current, fmt.Errorf("unknown adjust mode %q", mode)
	}

	target := current.Quantity + delta
	if target < 0 && !confirmBelowZero {
		return current, ErrBelowZero
	}

	return e.Apply(ctx, variantID, target)
}
