package service

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stockpilot/internal/core/domain"
	"github.com/rl1809/stockpilot/internal/port"
)

// CSVTemplate is the sample file offered for download.
const CSVTemplate = "sku,qty\nABC-001,10\nABC-002,5\n"

var ErrInvalidHeader = errors.New("csv header must be sku,qty")

var lineSplit = regexp.MustCompile(`\r?\n`)

// ParseReport is the outcome of parsing one upload.
type ParseReport struct {
	Rows    []domain.CSVRow
	Skipped int
	Err     error
}

// BatchReport counts applied rows per status.
type BatchReport struct {
	Total    int `json:"total"`
	OK       int `json:"ok"`
	Errors   int `json:"errors"`
	NotFound int `json:"not_found"`
	NoChange int `json:"no_change"`
	Pending  int `json:"pending"`
}

// BatchImporter turns a sku,qty upload into sequential delta requests.
type BatchImporter struct {
	catalog *Catalog
	gateway port.StockGateway
	newKey  func() string
	logger  *zap.Logger
}

func NewBatchImporter(catalog *Catalog, gateway port.StockGateway, logger *zap.Logger) *BatchImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchImporter{
		catalog: catalog,
		gateway: gateway,
		newKey:  uuid.NewString,
		logger:  logger.Named("batch"),
	}
}

func (b *BatchImporter) Parse(text string) []domain.CSVRow {
	return b.ParseWithReport(text).Rows
}

// ParseWithReport validates the header and matches each row against the
// current variant order. A bad header yields no rows at all. Rows with an
// empty sku or a non-integer quantity are dropped and counted as skipped.
func (b *BatchImporter) ParseWithReport(text string) ParseReport {
	text = strings.TrimPrefix(text, "\ufeff")

	var lines []string
	var numbers []int
	for i, l := range lineSplit.Split(text, -1) {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		lines = append(lines, l)
		numbers = append(numbers, i+1)
	}
	if len(lines) == 0 {
		return ParseReport{}
	}
	if !validHeader(lines[0]) {
		b.logger.Warn("csv header rejected", zap.String("header", lines[0]))
		return ParseReport{Err: ErrInvalidHeader}
	}

	report := ParseReport{}
	for i, line := range lines[1:] {
		cols := splitColumns(line)
		sku := cols[0]
		if sku == "" {
			report.Skipped++
			continue
		}
		qtyRaw := ""
		if len(cols) > 1 {
			qtyRaw = cols[1]
		}
		qty, err := strconv.Atoi(qtyRaw)
		if err != nil {
			report.Skipped++
			continue
		}

		row := domain.CSVRow{
			Line:              numbers[i+1],
			SKU:               sku,
			RequestedQuantity: qty,
			Status:            domain.RowStatusNotFound,
		}
		if v, ok := b.catalog.FindBySKU(sku); ok {
			match := v
			row.Match = &match
			row.Status = domain.RowStatusPending
		}
		report.Rows = append(report.Rows, row)
	}

	b.logger.Debug("csv parsed", zap.Int("rows", len(report.Rows)), zap.Int("skipped", report.Skipped))
	return report
}

// Apply runs rows strictly one after another. Each row's variant is looked up
// again at apply time since earlier rows may have moved it. A failed row is
// marked error and local state is left as it was; nothing is retried.
func (b *BatchImporter) Apply(ctx context.Context, rows []domain.CSVRow) []domain.CSVRow {
	out := make([]domain.CSVRow, 0, len(rows))

	for _, row := range rows {
		out = append(out, b.applyRow(ctx, row))
	}

	report := Summarize(out)
	b.logger.Info("csv batch applied",
		zap.Int("total", report.Total),
		zap.Int("ok", report.OK),
		zap.Int("error", report.Errors),
		zap.Int("not_found", report.NotFound),
		zap.Int("no_change", report.NoChange),
	)
	return out
}

func (b *BatchImporter) applyRow(ctx context.Context, row domain.CSVRow) domain.CSVRow {
	v, ok := b.catalog.FindBySKU(row.SKU)
	if !ok {
		row.Match = nil
		row.Status = domain.RowStatusNotFound
		return row
	}
	match := v
	row.Match = &match
	if !v.TrackingEnabled {
		row.Status = domain.RowStatusNotFound
		return row
	}

	prev, err := b.catalog.claim(v.ID, row.RequestedQuantity, false)
	if err != nil {
		row.Status = domain.RowStatusError
		return row
	}
	delta := domain.Delta(prev.Quantity, row.RequestedQuantity)
	if delta == 0 {
		b.catalog.release(v.ID, prev.Quantity)
		row.Status = domain.RowStatusNoChange
		return row
	}

	req := domain.DeltaRequest{
		VariantID:      v.ID,
		Delta:          delta,
		IdempotencyKey: b.newKey(),
	}
	if err := b.gateway.ApplyDelta(ctx, req); err != nil {
		b.catalog.release(v.ID, prev.Quantity)
		b.logger.Warn("csv row failed",
			zap.String("sku", row.SKU),
			zap.Int64("variant_id", v.ID),
			zap.Int("delta", delta),
			zap.Error(err),
		)
		row.Status = domain.RowStatusError
		return row
	}

	updated := b.catalog.release(v.ID, row.RequestedQuantity)
	row.Match = &updated
	row.Status = domain.RowStatusOK
	return row
}

func Summarize(rows []domain.CSVRow) BatchReport {
	r := BatchReport{Total: len(rows)}
	for _, row := range rows {
		switch row.Status {
		case domain.RowStatusOK:
			r.OK++
		case domain.RowStatusError:
			r.Errors++
		case domain.RowStatusNotFound:
			r.NotFound++
		case domain.RowStatusNoChange:
			r.NoChange++
		case domain.RowStatusPending:
			r.Pending++
		}
	}
	return r
}

func validHeader(line string) bool {
	cols := splitColumns(line)
	for i := range cols {
		cols[i] = strings.ToLower(cols[i])
	}
	return strings.Join(cols, ",") == "sku,qty"
}

func splitColumns(line string) []string {
	cols := strings.Split(line, ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols
}
