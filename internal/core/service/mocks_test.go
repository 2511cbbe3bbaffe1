package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/rl1809/stockpilot/internal/core/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Mock SessionStorage
type mockStorage struct {
	mu     sync.Mutex
	values map[string]string
	writes int
	err    error
}

func newMockStorage() *mockStorage {
	return &mockStorage{values: make(map[string]string)}
}

func (m *mockStorage) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mockStorage) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	m.writes++
	return nil
}

func (m *mockStorage) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	return true, nil
}

// Mock Navigator
type mockNavigator struct {
	mu      sync.Mutex
	targets []string
}

func (m *mockNavigator) NavigateTop(ctx context.Context, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets = append(m.targets, target)
	return nil
}

func (m *mockNavigator) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.targets)
}

// Fake Window
type fakeWindow struct {
	href     string
	topLevel bool
}

func (f fakeWindow) Location() *url.URL {
	u, err := url.Parse(f.href)
	if err != nil {
		panic(err)
	}
	return u
}

func (f fakeWindow) IsTopLevel() bool {
	return f.topLevel
}

// Mock StockGateway
type mockGateway struct {
	mu       sync.Mutex
	variants []domain.Variant
	requests []domain.DeltaRequest
	fail     map[int64]error
	failAll  error
	// onApply runs before ApplyDelta returns, while the caller is suspended
	onApply   func(req domain.DeltaRequest)
	installed bool
}

var errServer = errors.New("unexpected status 500")

func newMockGateway(variants ...domain.Variant) *mockGateway {
	return &mockGateway{
		variants:  variants,
		fail:      make(map[int64]error),
		installed: true,
	}
}

func (m *mockGateway) ListVariants(ctx context.Context) ([]domain.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Variant(nil), m.variants...), nil
}

func (m *mockGateway) ApplyDelta(ctx context.Context, req domain.DeltaRequest) error {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	err := m.failAll
	if e, ok := m.fail[req.VariantID]; ok {
		err = e
	}
	hook := m.onApply
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	return err
}

func (m *mockGateway) Installed(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.installed, nil
}

func (m *mockGateway) sent() []domain.DeltaRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DeltaRequest(nil), m.requests...)
}

func loadedCatalog(t *testing.T, gw *mockGateway) *Catalog {
	t.Helper()
	c := NewCatalog(gw, nil)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return c
}
