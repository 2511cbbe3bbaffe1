package port

import (
	"context"

	"github.com/rl1809/stockpilot/internal/core/domain"
)

type StockGateway interface {
	// ListVariants fetches every variant of the shop, flattened in server order
	ListVariants(ctx context.Context) ([]domain.Variant, error)

	// ApplyDelta sends one signed change; any error means the change is not confirmed
	ApplyDelta(ctx context.Context, req domain.DeltaRequest) error

	// Installed reports whether the app is installed for the shop
	Installed(ctx context.Context) (bool, error)
}
