package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/stockpilot/internal/core/domain"
	"github.com/rl1809/stockpilot/internal/port"
)

const RedirectLockKey = "stockpilot_embed_autoredirect_v2"

var ErrShopRequired = errors.New("shop is required")

type RedirectState string

const (
	RedirectStateIdle       RedirectState = "idle"
	RedirectStateRedirected RedirectState = "redirected"
)

// RedirectCoordinator performs at most one automatic top-level navigation per
// tab session to recover a missing host. It is the sole owner of the lock key.
type RedirectCoordinator struct {
	apiBaseURL string
	storage    port.SessionStorage
	navigator  port.Navigator
	logger     *zap.Logger

	mu    sync.Mutex
	state RedirectState
}

func NewRedirectCoordinator(apiBaseURL string, storage port.SessionStorage, navigator port.Navigator, logger *zap.Logger) *RedirectCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectCoordinator{
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		storage:    storage,
		navigator:  navigator,
		logger:     logger.Named("redirect"),
		state:      RedirectStateIdle,
	}
}

func (c *RedirectCoordinator) State() RedirectState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Evaluate fires the rehydration redirect when the page is embedded, has a
// shop and no channel (query, hash or tab storage) carried a host. The
// synthesized host is forwarded. It returns whether a navigation was issued.
func (c *RedirectCoordinator) Evaluate(ctx context.Context, res domain.Resolution, embedded bool) (bool, error) {
	if !embedded || res.Shop == "" || !res.HostMissing() {
		return false, nil
	}
	return c.redirectOnce(ctx, res.Identity)
}

// TriggerInstall is the automatic redirect used when the shop reports the app
// as not installed. It shares the one-shot lock with Evaluate.
func (c *RedirectCoordinator) TriggerInstall(ctx context.Context, id domain.Identity) (bool, error) {
	if id.Shop == "" {
		return false, nil
	}
	return c.redirectOnce(ctx, id)
}

// SubmitShop handles the manual-entry screen. It is the one transition that
// ignores the lock: an explicit submission navigates even when the lock is
// already set, and leaves it set.
func (c *RedirectCoordinator) SubmitShop(ctx context.Context, raw string) (string, error) {
	shop := domain.NormalizeShop(raw)
	if shop == "" {
		return "", ErrShopRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.storage.SetIfAbsent(ctx, RedirectLockKey, "1"); err != nil {
		return "", fmt.Errorf("set redirect lock: %w", err)
	}

	target := c.InstallRedirectURL(domain.Identity{Shop: shop})
	if err := c.navigator.NavigateTop(ctx, target); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	c.state = RedirectStateRedirected
	c.logger.Info("manual shop submitted", zap.String("shop", shop), zap.String("target", target))

	return target, nil
}

func (c *RedirectCoordinator) redirectOnce(ctx context.Context, id domain.Identity) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == RedirectStateRedirected {
		return false, nil
	}

	// The lock is written before navigating so it survives the page replacement.
	ok, err := c.storage.SetIfAbsent(ctx, RedirectLockKey, "1")
	if err != nil {
		return false, fmt.Errorf("set redirect lock: %w", err)
	}
	if !ok {
		c.logger.Debug("redirect lock already set", zap.String("shop", id.Shop))
		return false, nil
	}

	target := c.InstallRedirectURL(id)
	if err := c.navigator.NavigateTop(ctx, target); err != nil {
		return false, fmt.Errorf("navigate: %w", err)
	}
	c.state = RedirectStateRedirected
	c.logger.Info("top-level redirect issued", zap.String("shop", id.Shop), zap.String("target", target))

	return true, nil
}

// InstallRedirectURL builds {api}/auth/install-redirect?shop=<shop>[&host=<host>].
func (c *RedirectCoordinator) InstallRedirectURL(id domain.Identity) string {
	target := c.apiBaseURL + "/auth/install-redirect?shop=" + url.QueryEscape(id.Shop)
	if id.Host != "" {
		target += "&host=" + url.QueryEscape(id.Host)
	}
	return target
}
