package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Product is a catalog row snapshot taken at lookup time. Prices are kept as
// catalog text so that a malformed cell never blocks the conversation.
type Product struct {
	Code         string `json:"code"`
	ExtraCode    string `json:"extra_code"`
	Name         string `json:"name"`
	Stock        string `json:"stock"`
	Expiry       string `json:"expiry"`
	PriceNoVAT   string `json:"price_no_vat"`
	PriceWithVAT string `json:"price_with_vat"`
}

// LineItem is a product snapshot with a quantity and derived totals.
type LineItem struct {
	Product
	Qty        int             `json:"qty"`
	SumNoVAT   decimal.Decimal `json:"sum_no_vat"`
	SumWithVAT decimal.Decimal `json:"sum_with_vat"`
}

// NewLineItem builds a line item and computes its totals.
func NewLineItem(p Product, qty int) LineItem {
	item := LineItem{Product: p}
	item.SetQty(qty)
	return item
}

// SetQty updates the quantity and recomputes both line totals.
func (li *LineItem) SetQty(qty int) {
	li.Qty = qty
	li.SumNoVAT = LineTotal(li.PriceNoVAT, qty)
	li.SumWithVAT = LineTotal(li.PriceWithVAT, qty)
}

// LineTotal returns round(price*qty, 2). Unparseable prices yield zero.
func LineTotal(price string, qty int) decimal.Decimal {
	unit, ok := ParsePrice(price)
	if !ok {
		return decimal.Zero
	}
	return unit.Mul(decimal.NewFromInt(int64(qty))).Round(2)
}

// ParsePrice parses a catalog price cell, accepting a comma decimal separator.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	s := NormalizePrice(raw)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// NormalizePrice trims the cell and swaps a decimal comma for a dot.
func NormalizePrice(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
}
