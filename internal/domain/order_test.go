package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewLineItem_ComputesTotals(t *testing.T) {
	item := NewLineItem(Product{Code: "AB1234", PriceNoVAT: "10.00", PriceWithVAT: "12.10"}, 3)
	require.Equal(t, 3, item.Qty)
	require.Equal(t, "30.00", item.SumNoVAT.StringFixed(2))
	require.Equal(t, "36.30", item.SumWithVAT.StringFixed(2))
}

func TestSetQty_RecomputesTotals(t *testing.T) {
	item := NewLineItem(Product{PriceNoVAT: "1,333", PriceWithVAT: "1,613"}, 1)
	item.SetQty(7)
	require.Equal(t, "9.33", item.SumNoVAT.StringFixed(2))
	require.Equal(t, "11.29", item.SumWithVAT.StringFixed(2))

	item.SetQty(0)
	require.True(t, item.SumWithVAT.IsZero())
}

func TestLineTotal_UnparseablePriceIsZero(t *testing.T) {
	require.True(t, LineTotal("", 5).IsZero())
	require.True(t, LineTotal("n/a", 5).IsZero())
	require.Equal(t, "5.00", LineTotal(" 1,00 ", 5).StringFixed(2))
}

func TestOrder_MissingAndComplete(t *testing.T) {
	var o Order
	require.False(t, o.Complete())
	require.Equal(t, []string{"manager", "client", "products", "note", "delivery_date", "delivery_address"}, o.Missing())

	o = Order{
		Manager:         "Anna",
		Client:          "Bravo Ltd",
		Items:           []LineItem{NewLineItem(Product{PriceWithVAT: "12.10"}, 3)},
		Note:            "urgent",
		DeliveryDate:    "28.07",
		DeliveryAddress: "Riga St 1",
	}
	require.True(t, o.Complete())
	require.Empty(t, o.Missing())
}

func TestOrder_Total(t *testing.T) {
	o := Order{Items: []LineItem{
		NewLineItem(Product{PriceWithVAT: "12.10"}, 3),
		NewLineItem(Product{PriceWithVAT: "0.99"}, 2),
		NewLineItem(Product{PriceWithVAT: "broken"}, 2),
	}}
	require.Equal(t, "38.28", o.Total().StringFixed(2))
}

func TestOrder_CloneIsIndependent(t *testing.T) {
	o := Order{Items: []LineItem{NewLineItem(Product{Code: "1"}, 1)}}
	c := o.Clone()
	c.Items[0].SetQty(9)
	require.Equal(t, 1, o.Items[0].Qty)
}

func TestNewArchiveEntry(t *testing.T) {
	at := time.Date(2025, 7, 28, 10, 0, 0, 0, time.UTC)
	o := Order{Manager: "Anna", Items: []LineItem{NewLineItem(Product{PriceWithVAT: "12.10"}, 3)}}
	e := NewArchiveEntry("id-1", o, at)
	require.Equal(t, "id-1", e.ID)
	require.Equal(t, "Anna", e.Manager)
	require.Equal(t, "36.30", e.Total.StringFixed(2))
	require.Equal(t, at, e.Timestamp)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "note", At(StepNote).String())
	require.Equal(t, "note@review", ReturningToReview(StepNote).String())
	require.Equal(t, "review", ReturningToReview(StepReview).String())
}
