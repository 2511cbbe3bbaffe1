package api

import (
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/stockpilot/internal/adapter/bridge"
)

// Doer sends one HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// BridgeSource hands out the page's bridge handle, nil when unavailable.
type BridgeSource interface {
	Get() *bridge.Handle
}

// Dispatcher attaches a bridge session token to outbound calls when a bridge
// exists and falls back to anonymous calls otherwise. It never retries and
// never rewrites responses.
type Dispatcher struct {
	client Doer
	bridge BridgeSource
	logger *zap.Logger

	once   sync.Once
	authed Doer
}

func NewDispatcher(client Doer, source BridgeSource, logger *zap.Logger) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		client: client,
		bridge: source,
		logger: logger.Named("dispatcher"),
	}
}

func (d *Dispatcher) Do(req *http.Request) (*http.Response, error) {
	var handle *bridge.Handle
	if d.bridge != nil {
		handle = d.bridge.Get()
	}
	if handle == nil {
		d.logger.Debug("no bridge, anonymous call", zap.String("url", req.URL.String()))
		return d.client.Do(req)
	}

	d.once.Do(func() {
		d.authed = &authenticatedDoer{client: d.client, handle: handle}
	})
	return d.authed.Do(req)
}

type authenticatedDoer struct {
	client Doer
	handle *bridge.Handle
}

func (a *authenticatedDoer) Do(req *http.Request) (*http.Response, error) {
	token, err := a.handle.SessionToken(req.Context())
	if err != nil {
		return nil, fmt.Errorf("session token: %w", err)
	}

	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return a.client.Do(out)
}
