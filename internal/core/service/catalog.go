package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/stockpilot/internal/core/domain"
	"github.com/rl1809/stockpilot/internal/port"
)

var (
	ErrVariantNotFound = errors.New("variant not found")
	ErrNotTracked      = errors.New("inventory tracking disabled")
	ErrUpdateInFlight  = errors.New("update already in flight")
	ErrUpdateFailed    = errors.New("stock update failed")
)

// Catalog owns the in-memory variant collection of one screen. The lock is
// never held across a gateway call.
type Catalog struct {
	gateway port.StockGateway
	logger  *zap.Logger

	mu       sync.Mutex
	variants []domain.Variant
	inFlight map[int64]bool
	loaded   bool
}

func NewCatalog(gateway port.StockGateway, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		gateway:  gateway,
		logger:   logger.Named("catalog"),
		inFlight: make(map[int64]bool),
	}
}

// Load replaces the collection with the server's current view. Rows with an
// update in flight keep their local quantity; release settles them.
func (c *Catalog) Load(ctx context.Context) error {
	variants, err := c.gateway.ListVariants(ctx)
	if err != nil {
		return fmt.Errorf("list variants: %w", err)
	}

	c.mu.Lock()
	for i := range variants {
		if !c.inFlight[variants[i].ID] {
			continue
		}
		if j := c.indexOf(variants[i].ID); j >= 0 {
			variants[i].Quantity = c.variants[j].Quantity
		}
	}
	c.variants = variants
	c.loaded = true
	c.mu.Unlock()

	c.logger.Debug("variants loaded", zap.Int("count", len(variants)))
	return nil
}

// EnsureLoaded loads the collection on first use only.
func (c *Catalog) EnsureLoaded(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.loaded
	c.mu.Unlock()
	if loaded {
		return nil
	}
	return c.Load(ctx)
}

func (c *Catalog) Snapshot() []domain.Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Variant(nil), c.variants...)
}

func (c *Catalog) Get(id int64) (domain.Variant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(id); i >= 0 {
		return c.variants[i], true
	}
	return domain.Variant{}, false
}

// FindBySKU returns the first variant in current order whose trimmed sku matches.
func (c *Catalog) FindBySKU(sku string) (domain.Variant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOfSKU(sku); i >= 0 {
		return c.variants[i], true
	}
	return domain.Variant{}, false
}

func (c *Catalog) InFlight(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[id]
}

// Search returns up to limit variants whose haystack contains query.
func (c *Catalog) Search(query string, limit int) []domain.Variant {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []domain.Variant
	for _, v := range c.variants {
		if strings.Contains(v.Haystack(), q) {
			out = append(out, v)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

func (c *Catalog) indexOf(id int64) int {
	for i := range c.variants {
		if c.variants[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Catalog) indexOfSKU(sku string) int {
	for i := range c.variants {
		if c.variants[i].MatchesSKU(sku) {
			return i
		}
	}
	return -1
}

// claim marks a row in flight and, when optimistic is set, writes target
// immediately. It returns the pre-mutation snapshot.
func (c *Catalog) claim(id int64, target int, optimistic bool) (domain.Variant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return domain.Variant{}, ErrVariantNotFound
	}
	if c.inFlight[id] {
		return c.variants[i], ErrUpdateInFlight
	}

	prev := c.variants[i]
	c.inFlight[id] = true
	if optimistic {
		c.variants[i].Quantity = target
	}
	return prev, nil
}

// release clears the in-flight flag and sets the row quantity.
func (c *Catalog) release(id int64, quantity int) domain.Variant {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, id)
	i := c.indexOf(id)
	if i < 0 {
		return domain.Variant{}
	}
	c.variants[i].Quantity = quantity
	return c.variants[i]
}
