// Package orders holds in-progress orders keyed by user.
package orders

import (
	"context"
	"fmt"
	"strconv"

	"order-bot/internal/domain"
)

// Field names an order text field that SetField may write.
type Field string

const (
	FieldManager         Field = "manager"
	FieldClient          Field = "client"
	FieldNote            Field = "note"
	FieldDeliveryDate    Field = "delivery_date"
	FieldDeliveryAddress Field = "delivery_address"
)

// Store is the per-user order book. Implementations never expose one user's
// order to another.
type Store interface {
	Create(ctx context.Context, userID int64) (domain.Order, error)
	Get(ctx context.Context, userID int64) (domain.Order, bool, error)
	SetField(ctx context.Context, userID int64, field Field, value string) error
	ReplaceLineItems(ctx context.Context, userID int64, items []domain.LineItem) error
	Delete(ctx context.Context, userID int64) error
	Flush(ctx context.Context) error
}

// ApplyField writes value into the named field of o.
func ApplyField(o *domain.Order, field Field, value string) error {
	switch field {
	case FieldManager:
		o.Manager = value
	case FieldClient:
		o.Client = value
	case FieldNote:
		o.Note = value
	case FieldDeliveryDate:
		o.DeliveryDate = value
	case FieldDeliveryAddress:
		o.DeliveryAddress = value
	default:
		return fmt.Errorf("orders: unknown field %q", field)
	}
	return nil
}

// Key is the string form of a user id used by persisted mappings.
func Key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
