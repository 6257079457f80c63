package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the in-progress order collected by a conversation.
type Order struct {
	Manager         string     `json:"manager"`
	Client          string     `json:"client"`
	Items           []LineItem `json:"products"`
	Note            string     `json:"note"`
	DeliveryDate    string     `json:"delivery_date"`
	DeliveryAddress string     `json:"delivery_address"`
}

// Missing lists the fields that still prevent the order from being complete.
func (o Order) Missing() []string {
	var missing []string
	if o.Manager == "" {
		missing = append(missing, "manager")
	}
	if o.Client == "" {
		missing = append(missing, "client")
	}
	if len(o.Items) == 0 {
		missing = append(missing, "products")
	}
	if o.Note == "" {
		missing = append(missing, "note")
	}
	if o.DeliveryDate == "" {
		missing = append(missing, "delivery_date")
	}
	if o.DeliveryAddress == "" {
		missing = append(missing, "delivery_address")
	}
	return missing
}

// Complete reports whether every field is set and at least one item exists.
func (o Order) Complete() bool {
	return len(o.Missing()) == 0
}

// Total sums the line totals including VAT.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.SumWithVAT)
	}
	return total
}

// Clone returns a deep copy so callers can hand the order to background work.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = make([]LineItem, len(o.Items))
		copy(c.Items, o.Items)
	}
	return c
}

// ArchiveEntry is an immutable snapshot of a confirmed order.
type ArchiveEntry struct {
	ID string `json:"id"`
	Order
	Total     decimal.Decimal `json:"total"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewArchiveEntry stamps an order copy with id, total and time.
func NewArchiveEntry(id string, o Order, at time.Time) ArchiveEntry {
	return ArchiveEntry{
		ID:        id,
		Order:     o.Clone(),
		Total:     o.Total(),
		Timestamp: at,
	}
}
