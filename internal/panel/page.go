// Package panel assembles the per-page session context: one resolved
// identity, one bridge, one dispatcher and the inventory engines built on
// them. A Page is constructed once per page load and passed by reference.
package panel

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stockpilot/internal/adapter/api"
	"github.com/rl1809/stockpilot/internal/adapter/bridge"
	"github.com/rl1809/stockpilot/internal/adapter/storage"
	"github.com/rl1809/stockpilot/internal/core/domain"
	"github.com/rl1809/stockpilot/internal/core/service"
	"github.com/rl1809/stockpilot/internal/port"
)

// Deps are shared by every page a host boots.
type Deps struct {
	APIBaseURL  string
	AdminDomain string
	Credentials bridge.Credentials
	HTTPClient  api.Doer
	Preferences port.PreferenceRepository
	Logger      *zap.Logger
}

// Page is the session context of one page load.
type Page struct {
	ID         string
	TabID      string
	Resolution domain.Resolution
	Embedded   bool
	// Redirected is set when boot handed the tab to a top-level navigation.
	Redirected bool
	// CanonicalHref is the page URL with shop/host restored in the hash, if it needed repair.
	CanonicalHref string

	Bridge     *bridge.Provider
	Dispatcher *api.Dispatcher
	Gateway    port.StockGateway
	Redirects  *service.RedirectCoordinator
	Catalog    *service.Catalog
	Editor     *service.InventoryEditor
	Batch      *service.BatchImporter
	Dashboard  *service.Dashboard
}

// Boot resolves identity, gives the redirect coordinator first say, and only
// then wires the bridge, dispatcher and inventory engines. Tab storage and
// navigation failures are logged; they never fail the boot.
func Boot(ctx context.Context, deps Deps, tabID string, window port.Window, tab port.SessionStorage, nav port.Navigator) *Page {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	page := &Page{
		ID:       uuid.NewString(),
		TabID:    tabID,
		Embedded: service.NewEmbeddingDetector(window).IsEmbedded(),
	}
	logger = logger.With(zap.String("page_id", page.ID), zap.String("tab_id", tabID))

	res := service.NewContextResolver(tab, deps.AdminDomain, logger).Resolve(ctx, window)
	page.Resolution = res
	page.Redirects = service.NewRedirectCoordinator(deps.APIBaseURL, tab, nav, logger)

	redirected, err := page.Redirects.Evaluate(ctx, res, page.Embedded)
	if err != nil {
		logger.Warn("redirect skipped", zap.Error(err))
	}
	if redirected {
		page.Redirected = true
		return page
	}

	if href, ok := service.RepairHash(window.Location(), res.Identity); ok {
		page.CanonicalHref = href
	}

	page.Bridge = bridge.NewProvider(deps.Credentials, res.Identity, logger)
	page.Dispatcher = api.NewDispatcher(deps.HTTPClient, page.Bridge, logger)
	page.Gateway = api.NewClient(deps.APIBaseURL, res.Shop, page.Dispatcher, logger)

	if res.Shop != "" && !page.Embedded {
		installed, err := page.Gateway.Installed(ctx)
		if err != nil {
			logger.Warn("installed probe failed", zap.Error(err))
		} else if !installed {
			redirected, err := page.Redirects.TriggerInstall(ctx, res.Identity)
			if err != nil {
				logger.Warn("install redirect skipped", zap.Error(err))
			}
			if redirected {
				page.Redirected = true
				return page
			}
		}
	}

	if !page.Embedded {
		if h := page.Bridge.Get(); h != nil && h.ForceTopLevelRedirect {
			if err := nav.NavigateTop(ctx, h.AdminURL()); err != nil {
				logger.Warn("forced redirect failed", zap.Error(err))
			}
		}
	}

	page.Catalog = service.NewCatalog(page.Gateway, logger)
	page.Editor = service.NewInventoryEditor(page.Catalog, page.Gateway, logger)
	page.Batch = service.NewBatchImporter(page.Catalog, page.Gateway, logger)
	prefs := deps.Preferences
	if prefs == nil {
		prefs = storage.NewMemoryPreferenceRepository()
	}
	page.Dashboard = service.NewDashboard(page.Catalog, prefs, res.Shop, logger)

	logger.Info("page booted",
		zap.String("shop", res.Shop),
		zap.String("host", res.Host),
		zap.String("host_source", string(res.HostSource)),
		zap.Bool("embedded", page.Embedded),
	)
	return page
}

// Ready reports an error unless the page can run inventory operations.
func (p *Page) Ready() error {
	if p.Redirected {
		return ErrPageRedirected
	}
	if p.Resolution.Shop == "" || p.Catalog == nil {
		return service.ErrIdentityMissing
	}
	return nil
}
