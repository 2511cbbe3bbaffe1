package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/stockpilot/internal/adapter/bridge"
	"github.com/rl1809/stockpilot/internal/adapter/browser"
	"github.com/rl1809/stockpilot/internal/adapter/storage"
	"github.com/rl1809/stockpilot/internal/config"
	"github.com/rl1809/stockpilot/internal/logger"
	"github.com/rl1809/stockpilot/internal/panel"
	"github.com/rl1809/stockpilot/internal/port"
)

type options struct {
	configPath string
	apiURL     string
	apiKey     string
	apiSecret  string
	href       string
	shop       string
	host       string
	tabID      string
	embedded   bool
	verbose    bool
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "stockctl",
		Short: "StockPilot panel from the command line",
		Long: `stockctl boots a panel page for one shop and runs inventory operations
against the StockPilot API: single-row edits, quick adjustments, dashboard
summaries and sku,qty batch uploads.

The shop is taken from --href (query or hash), --shop/--host, or the tab
storage of --tab when the storage backend is redis.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Config file (default: ./config.toml)")
	pf.StringVar(&opts.apiURL, "api", "", "API base URL (overrides api.base_url)")
	pf.StringVar(&opts.apiKey, "api-key", "", "App credential key (or STOCKPILOT_BRIDGE_API_KEY)")
	pf.StringVar(&opts.apiSecret, "api-secret", "", "App credential secret (or STOCKPILOT_BRIDGE_API_SECRET)")
	pf.StringVar(&opts.href, "href", "", "Full page URL to resolve the shop from")
	pf.StringVar(&opts.shop, "shop", "", "Shop domain or handle")
	pf.StringVar(&opts.host, "host", "", "Encoded admin host")
	pf.StringVar(&opts.tabID, "tab", "cli", "Tab id for session storage")
	pf.BoolVar(&opts.embedded, "embedded", false, "Behave as a page inside the admin frame")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	pf.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Operation timeout")

	root.AddCommand(
		newResolveCmd(opts),
		newListCmd(opts),
		newSearchCmd(opts),
		newSetCmd(opts),
		newAdjustCmd(opts),
		newDashboardCmd(opts),
		newThresholdCmd(opts),
		newCSVCmd(opts),
		newStressCmd(opts),
	)
	return root
}

// session is one booted page plus the resources behind it.
type session struct {
	ctx     context.Context
	page    *panel.Page
	nav     *browser.RecordingNavigator
	log     *zap.Logger
	closers []func() error
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
	_ = s.log.Sync()
}

func (o *options) pageHref() (string, error) {
	if o.href != "" {
		return o.href, nil
	}
	q := url.Values{}
	if o.shop != "" {
		q.Set("shop", o.shop)
	}
	if o.host != "" {
		q.Set("host", o.host)
	}
	u := url.URL{Scheme: "https", Host: "stockctl.local", Path: "/", RawQuery: q.Encode()}
	return u.String(), nil
}

func (o *options) boot(ctx context.Context) (*session, error) {
	cfg, err := config.LoadFrom(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.apiURL != "" {
		cfg.API.BaseURL = o.apiURL
	}
	if o.apiKey != "" {
		cfg.Bridge.APIKey = o.apiKey
	}
	if o.apiSecret != "" {
		cfg.Bridge.APISecret = o.apiSecret
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = "warn"
	if o.verbose {
		logCfg.Level = "debug"
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}
	s := &session{log: log, nav: &browser.RecordingNavigator{}}

	var tab port.SessionStorage
	if cfg.Storage.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, rdb.Close)
		tab = storage.NewRedisTabs(rdb, cfg.Redis.TabTTL).ForTab(o.tabID)
	} else {
		tab = storage.NewMemorySessionStorage()
	}

	var prefs port.PreferenceRepository = storage.NewMemoryPreferenceRepository()
	if cfg.Preferences.Backend == "mysql" {
		db, err := sql.Open("mysql", cfg.MySQL.DSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		repo := storage.NewMySQLPreferenceRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate preferences: %w", err)
		}
		prefs = repo
	}

	href, err := o.pageHref()
	if err != nil {
		s.Close()
		return nil, err
	}
	window, err := browser.NewWindow(href, o.embedded)
	if err != nil {
		s.Close()
		return nil, err
	}

	deps := panel.Deps{
		APIBaseURL:  cfg.API.BaseURL,
		AdminDomain: cfg.Platform.AdminDomain,
		Credentials: bridge.Credentials{
			Key:      cfg.Bridge.APIKey,
			Secret:   cfg.Bridge.APISecret,
			TokenTTL: cfg.Bridge.TokenTTL,
		},
		HTTPClient:  &http.Client{Timeout: cfg.API.Timeout},
		Preferences: prefs,
		Logger:      log,
	}

	s.page = panel.Boot(ctx, deps, o.tabID, window, tab, s.nav)
	return s, nil
}

// ready boots and loads variants, failing when the page cannot run inventory operations.
func (o *options) ready(cmd *cobra.Command) (*session, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)

	s, err := o.boot(ctx)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if err := s.page.Ready(); err != nil {
		printNavigations(cmd, s.nav.Drain())
		s.Close()
		cancel()
		return nil, nil, err
	}
	if err := s.page.Catalog.Load(ctx); err != nil {
		s.Close()
		cancel()
		return nil, nil, err
	}
	s.ctx = ctx
	return s, func() {
		s.Close()
		cancel()
	}, nil
}

func printNavigations(cmd *cobra.Command, navs []browser.Navigation) {
	for _, n := range navs {
		fmt.Fprintf(cmd.OutOrStdout(), "open in browser: %s\n", n.URL)
	}
}
