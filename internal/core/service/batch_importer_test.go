package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stockpilot/internal/core/domain"
)

func TestParse_DropsInvalidRows(t *testing.T) {
	gw := newMockGateway(tracked(1, "A-1", 2), tracked(2, "A-2", 2), tracked(3, "A-3", 2))
	b := NewBatchImporter(loadedCatalog(t, gw), gw, nil)

	report := b.ParseWithReport("sku,qty\nA-1,5\nA-2,abc\nA-3,\n")
	require.NoError(t, report.Err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, 2, report.Skipped)

	row := report.Rows[0]
	assert.Equal(t, "A-1", row.SKU)
	assert.Equal(t, 5, row.RequestedQuantity)
	assert.Equal(t, 2, row.Line)
	assert.Equal(t, domain.RowStatusPending, row.Status)
	require.NotNil(t, row.Match)
	assert.Equal(t, int64(1), row.Match.ID)
}

func TestParse_Header(t *testing.T) {
	gw := newMockGateway(tracked(1, "A-1", 2))
	b := NewBatchImporter(loadedCatalog(t, gw), gw, nil)

	tests := []struct {
		name    string
		text    string
		rows    int
		wantErr error
	}{
		{name: "wrong header", text: "code,amount\nA-1,5\n", wantErr: ErrInvalidHeader},
		{name: "header only in second line", text: "A-1,5\nsku,qty\n", wantErr: ErrInvalidHeader},
		{name: "crlf and case", text: "SKU, Qty\r\nA-1,5\r\n", rows: 1},
		{name: "bom", text: "\ufeffsku,qty\nA-1,5\n", rows: 1},
		{name: "blank lines", text: "\n\nsku,qty\n\nA-1,5\n\n", rows: 1},
		{name: "empty", text: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := b.ParseWithReport(tt.text)
			assert.ErrorIs(t, report.Err, tt.wantErr)
			assert.Len(t, report.Rows, tt.rows)
		})
	}
}

func TestParse_DuplicateSKUMatchesFirst(t *testing.T) {
	gw := newMockGateway(tracked(7, "DUP", 1), tracked(8, "DUP", 1))
	b := NewBatchImporter(loadedCatalog(t, gw), gw, nil)

	rows := b.Parse("sku,qty\nDUP,3\n")
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Match)
	assert.Equal(t, int64(7), rows[0].Match.ID)
}

func TestParse_UnknownSKU(t *testing.T) {
	gw := newMockGateway(tracked(1, "A-1", 2))
	b := NewBatchImporter(loadedCatalog(t, gw), gw, nil)

	rows := b.Parse("sku,qty\nNOPE,3\n")
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Match)
	assert.Equal(t, domain.RowStatusNotFound, rows[0].Status)
}

func TestBatchApply_Statuses(t *testing.T) {
	untracked := tracked(4, "OFF", 5)
	untracked.TrackingEnabled = false
	gw := newMockGateway(
		tracked(1, "A-1", 2),
		tracked(2, "A-2", 9),
		tracked(3, "A-3", 4),
		untracked,
	)
	gw.fail[3] = errServer
	catalog := loadedCatalog(t, gw)
	b := NewBatchImporter(catalog, gw, nil)

	rows := b.Parse("sku,qty\nA-1,5\nA-2,9\nA-3,1\nOFF,1\nNOPE,1\n")
	require.Len(t, rows, 5)

	out := b.Apply(context.Background(), rows)
	require.Len(t, out, 5)

	assert.Equal(t, domain.RowStatusOK, out[0].Status)
	assert.Equal(t, domain.RowStatusNoChange, out[1].Status)
	assert.Equal(t, domain.RowStatusError, out[2].Status)
	assert.Equal(t, domain.RowStatusNotFound, out[3].Status)
	assert.Equal(t, domain.RowStatusNotFound, out[4].Status)

	// Only A-1 and the failing A-3 reach the gateway; the untracked row never does.
	sent := gw.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, domain.DeltaRequest{VariantID: 1, Delta: 3, IdempotencyKey: sent[0].IdempotencyKey}, sent[0])
	assert.Equal(t, int64(3), sent[1].VariantID)
	assert.Equal(t, -3, sent[1].Delta)

	v, _ := catalog.Get(1)
	assert.Equal(t, 5, v.Quantity)
	v, _ = catalog.Get(3)
	assert.Equal(t, 4, v.Quantity)

	assert.Equal(t, BatchReport{Total: 5, OK: 1, Errors: 1, NotFound: 2, NoChange: 1}, Summarize(out))
}

func TestBatchApply_SequentialAndRelookup(t *testing.T) {
	gw := newMockGateway(tracked(1, "A-1", 2))
	catalog := loadedCatalog(t, gw)
	b := NewBatchImporter(catalog, gw, nil)

	inFlight := 0
	gw.onApply = func(req domain.DeltaRequest) {
		for _, v := range catalog.Snapshot() {
			if catalog.InFlight(v.ID) {
				inFlight++
			}
		}
	}

	// The same sku twice: the second delta is computed from the first result.
	out := b.Apply(context.Background(), b.Parse("sku,qty\nA-1,5\nA-1,8\n"))
	require.Len(t, out, 2)
	assert.Equal(t, domain.RowStatusOK, out[0].Status)
	assert.Equal(t, domain.RowStatusOK, out[1].Status)

	sent := gw.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, 3, sent[0].Delta)
	assert.Equal(t, 3, sent[1].Delta)
	assert.Equal(t, 2, inFlight)

	v, _ := catalog.Get(1)
	assert.Equal(t, 8, v.Quantity)
}

func TestBatchApply_FailureKeepsEarlierRows(t *testing.T) {
	gw := newMockGateway(tracked(1, "A-1", 2), tracked(2, "A-2", 2))
	gw.fail[2] = errServer
	catalog := loadedCatalog(t, gw)
	b := NewBatchImporter(catalog, gw, nil)

	out := b.Apply(context.Background(), b.Parse("sku,qty\nA-1,6\nA-2,6\n"))
	assert.Equal(t, domain.RowStatusOK, out[0].Status)
	assert.Equal(t, domain.RowStatusError, out[1].Status)

	v, _ := catalog.Get(1)
	assert.Equal(t, 6, v.Quantity)
	v, _ = catalog.Get(2)
	assert.Equal(t, 2, v.Quantity)
}
