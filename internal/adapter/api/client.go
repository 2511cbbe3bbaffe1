package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/stockpilot/internal/core/domain"
)

// maxErrorBody bounds how much of a rejected response is kept for diagnostics
const maxErrorBody = 4 << 10

var ErrTransport = errors.New("transport failure")

// StatusError is a non-2xx answer. Body is diagnostic only.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
}

type productsResponse struct {
	Products []struct {
		Title    string `json:"title"`
		Variants []struct {
			Title               string  `json:"title"`
			SKU                 *string `json:"sku"`
			InventoryQuantity   *int    `json:"inventory_quantity"`
			InventoryItemID     int64   `json:"inventory_item_id"`
			InventoryManagement *string `json:"inventory_management"`
		} `json:"variants"`
	} `json:"products"`
}

type stockUpdateRequest struct {
	InventoryItemID int64 `json:"inventory_item_id"`
	Delta           int   `json:"delta"`
}

type installedResponse struct {
	Installed bool `json:"installed"`
}

// Client talks to the panel's REST backend for one shop through the dispatcher.
type Client struct {
	baseURL string
	shop    string
	doer    Doer
	logger  *zap.Logger
}

func NewClient(baseURL, shop string, doer Doer, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		shop:    shop,
		doer:    doer,
		logger:  logger.Named("api"),
	}
}

func (c *Client) ListVariants(ctx context.Context) ([]domain.Variant, error) {
	var body productsResponse
	if err := c.call(ctx, "list products", http.MethodGet, "/products", nil, &body); err != nil {
		return nil, err
	}

	var out []domain.Variant
	for _, p := range body.Products {
		for _, v := range p.Variants {
			variant := domain.Variant{
				ID:           v.InventoryItemID,
				ProductTitle: p.Title,
				VariantTitle: v.Title,
			}
			if v.SKU != nil {
				variant.SKU = *v.SKU
			}
			if v.InventoryQuantity != nil {
				variant.Quantity = *v.InventoryQuantity
			}
			variant.TrackingEnabled = v.InventoryManagement != nil && *v.InventoryManagement != ""
			out = append(out, variant)
		}
	}
	return out, nil
}

func (c *Client) ApplyDelta(ctx context.Context, req domain.DeltaRequest) error {
	payload, err := json.Marshal(stockUpdateRequest{InventoryItemID: req.VariantID, Delta: req.Delta})
	if err != nil {
		return fmt.Errorf("encode stock update: %w", err)
	}

	headers := http.Header{}
	if req.IdempotencyKey != "" {
		headers.Set("Idempotency-Key", req.IdempotencyKey)
	}
	return c.callWithHeaders(ctx, "update stock", http.MethodPost, "/stock/update", payload, headers, nil)
}

func (c *Client) Installed(ctx context.Context) (bool, error) {
	var body installedResponse
	if err := c.call(ctx, "installed", http.MethodGet, "/installed", nil, &body); err != nil {
		return false, err
	}
	return body.Installed, nil
}

func (c *Client) call(ctx context.Context, op, method, path string, payload []byte, out any) error {
	return c.callWithHeaders(ctx, op, method, path, payload, nil, out)
}

func (c *Client) callWithHeaders(ctx context.Context, op, method, path string, payload []byte, headers http.Header, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("%s: build url: %w", op, err)
	}
	q := u.Query()
	q.Set("shop", c.shop)
	u.RawQuery = q.Encode()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		c.logger.Error("request failed", zap.String("op", op), zap.String("url", u.String()), zap.Error(err))
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("response", zap.String("op", op), zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("request rejected",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(text)),
		)
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(text)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
