package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/stockpilot/internal/core/domain"
	"github.com/rl1809/stockpilot/internal/port"
)

const (
	DefaultThreshold = 3
	MaxThreshold     = 999
	ThresholdKey     = "stockpilot_threshold"
	lowListLimit     = 25
)

var ErrInvalidThreshold = errors.New("threshold must be between 0 and 999")

type Filter string

const (
	FilterAll Filter = "all"
	FilterLow Filter = "low"
	FilterOut Filter = "out"
)

func ParseFilter(s string) Filter {
	switch Filter(strings.ToLower(s)) {
	case FilterLow:
		return FilterLow
	case FilterOut:
		return FilterOut
	default:
		return FilterAll
	}
}

type Stats struct {
	Total   int `json:"total"`
	Tracked int `json:"tracked"`
	Low     int `json:"low"`
	Out     int `json:"out"`
}

type Overview struct {
	Threshold int
	Stats     Stats
	LowOrOut  []domain.Variant
	Rows      []domain.Variant
}

// Dashboard summarises stock levels against the user's low-stock threshold.
type Dashboard struct {
	catalog *Catalog
	prefs   port.PreferenceRepository
	owner   string
	logger  *zap.Logger

	mu        sync.Mutex
	threshold *int
}

func NewDashboard(catalog *Catalog, prefs port.PreferenceRepository, owner string, logger *zap.Logger) *Dashboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dashboard{
		catalog: catalog,
		prefs:   prefs,
		owner:   owner,
		logger:  logger.Named("dashboard"),
	}
}

// Threshold returns the saved threshold, or the default when nothing valid is stored.
func (d *Dashboard) Threshold(ctx context.Context) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.threshold != nil {
		return *d.threshold
	}

	t := DefaultThreshold
	raw, ok, err := d.prefs.GetPreference(ctx, d.owner, ThresholdKey)
	if err != nil {
		d.logger.Warn("read threshold failed", zap.Error(err))
	} else if ok {
		if n, err := strconv.Atoi(raw); err == nil && validThreshold(n) {
			t = n
		}
	}
	d.threshold = &t
	return t
}

func (d *Dashboard) SetThreshold(ctx context.Context, n int) error {
	if !validThreshold(n) {
		return ErrInvalidThreshold
	}

	d.mu.Lock()
	d.threshold = &n
	d.mu.Unlock()

	if err := d.prefs.PutPreference(ctx, d.owner, ThresholdKey, strconv.Itoa(n)); err != nil {
		return fmt.Errorf("save threshold: %w", err)
	}
	return nil
}

func (d *Dashboard) Overview(ctx context.Context, filter Filter, query string) Overview {
	t := d.Threshold(ctx)
	variants := d.catalog.Snapshot()

	lowOrOut := make([]domain.Variant, 0)
	for _, v := range variants {
		if v.TrackingEnabled && (v.Quantity == 0 || isLow(v, t)) {
			lowOrOut = append(lowOrOut, v)
			if len(lowOrOut) == lowListLimit {
				break
			}
		}
	}

	return Overview{
		Threshold: t,
		Stats:     ComputeStats(variants, t),
		LowOrOut:  lowOrOut,
		Rows:      FilterVariants(variants, filter, query, t),
	}
}

func ComputeStats(variants []domain.Variant, threshold int) Stats {
	s := Stats{Total: len(variants)}
	for _, v := range variants {
		if !v.TrackingEnabled {
			continue
		}
		s.Tracked++
		if isLow(v, threshold) {
			s.Low++
		}
		if v.Quantity == 0 {
			s.Out++
		}
	}
	return s
}

// FilterVariants applies the all/low/out tab and a case-insensitive search.
func FilterVariants(variants []domain.Variant, filter Filter, query string, threshold int) []domain.Variant {
	q := strings.ToLower(strings.TrimSpace(query))

	out := make([]domain.Variant, 0, len(variants))
	for _, v := range variants {
		if filter == FilterLow && !(v.TrackingEnabled && isLow(v, threshold)) {
			continue
		}
		if filter == FilterOut && !(v.TrackingEnabled && v.Quantity == 0) {
			continue
		}
		if q != "" && !strings.Contains(v.Haystack(), q) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func isLow(v domain.Variant, threshold int) bool {
	return v.Quantity > 0 && v.Quantity <= threshold
}

func validThreshold(n int) bool {
	return n >= 0 && n <= MaxThreshold
}
