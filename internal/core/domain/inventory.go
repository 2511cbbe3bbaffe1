package domain

import "strings"

// Variant is one stock-keeping row as seen by the panel.
type Variant struct {
	ID              int64 // inventory item id
	ProductTitle    string
	VariantTitle    string
	SKU             string
	Quantity        int
	TrackingEnabled bool
}

// Haystack is the lowercase text searched by the dashboard and quick search.
func (v Variant) Haystack() string {
	return strings.TrimSpace(strings.ToLower(v.ProductTitle + " " + v.VariantTitle + " " + v.SKU))
}

// MatchesSKU compares trimmed skus exactly.
func (v Variant) MatchesSKU(sku string) bool {
	return strings.TrimSpace(v.SKU) == strings.TrimSpace(sku)
}

// DeltaRequest is a signed change applied to a remote stock counter.
type DeltaRequest struct {
	VariantID      int64
	Delta          int
	IdempotencyKey string
}

// Delta converts an absolute target into the change from current.
func Delta(current, target int) int {
	return target - current
}
