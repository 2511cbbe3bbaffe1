package domain

type RowStatus string

const (
	RowStatusPending  RowStatus = "pending"
	RowStatusOK       RowStatus = "ok"
	RowStatusError    RowStatus = "error"
	RowStatusNotFound RowStatus = "not_found"
	RowStatusNoChange RowStatus = "no_change"
)

// CSVRow is one accepted line of a batch upload. RequestedQuantity is absolute.
type CSVRow struct {
	Line              int
	SKU               string
	RequestedQuantity int
	Match             *Variant
	Status            RowStatus
}
