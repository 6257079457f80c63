package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"order-bot/internal/domain"
)

// Callback data carried by inline buttons.
const (
	CallbackAddProduct    = "add_product"
	CallbackCancelProduct = "cancel_product"
	CallbackSelectProduct = "select_product_"
	CallbackConfirmOrder  = "confirm_order"
	CallbackEditProducts  = "edit_products_cb"
	CallbackEditDetails   = "edit_details_cb"
	CallbackCancelOrder   = "cancel_order_cb"
)

// Reply keyboard button labels.
const (
	ButtonDone        = "Done"
	ButtonNewOrder    = "Create new order"
	ButtonAddProduct  = "➕ Add product"
	ButtonCancel      = "Cancel"
	ButtonEditNote    = "✏️ Edit note"
	ButtonEditDate    = "✏️ Edit delivery date"
	ButtonEditAddress = "✏️ Edit delivery address"
)

const (
	msgWelcome          = "Welcome to OrderBot!👋🏻\nEnter your name:"
	msgNewOrder         = "Let's start a new order!\nEnter your name:"
	msgNoSession        = "There is no order in progress. Press 'Create new order' or send /start."
	msgEnterClient      = "Enter the client name:"
	msgClientSaved      = "✅ Client saved.\nEnter the last 4️⃣ digits of the product code or press 'Done' when there are no more products."
	msgTypeText         = "Please answer with a text message."
	msgNeedProduct      = "❌ Add at least one product first."
	msgNeedFourDigits   = "❗ Enter exactly 4️⃣ digits of the product code."
	msgNotFound         = "❌ Product not found. Check the code and try again."
	msgCatalogDown      = "⚠️ The product catalog is unavailable right now. Try again in a moment."
	msgSeveralFound     = "Several products found. Choose the one you need:"
	msgBadChoice        = "❌ Invalid product choice. Try again."
	msgEnterQty         = "Enter the quantity:"
	msgProductSkipped   = "Product not added. Enter another product code or press 'Done'."
	msgAddOrCancel      = "Choose '✅ Add' or '❌ Cancel product' (or use the buttons)."
	msgBadQty           = "❗ Enter a valid number greater than zero."
	msgLostProduct      = "❗ Internal error: the product is missing from the session. Enter the product code again."
	msgProductAdded     = "✅ Product added. Enter the next code or press 'Done'."
	msgProductAddedEdit = "✅ Product added."
	msgEnterNote        = "✏️ Enter a note for the accountant:"
	msgEnterDate        = "📅 Enter the delivery date (e.g. 28.07):"
	msgEnterAddress     = "🏢 Enter the delivery address:"
	msgReviewReady      = "📝 Please check the order."
	msgChooseAction     = "Choose an action with the buttons under the preview."
	msgIncomplete       = "❌ The order cannot be sent yet. Missing: %s."
	msgSubmitted        = "📤 Order confirmed. Sending it to the accountant…"
	msgCancelled        = "❌ Order not sent. You can start again."
	msgNothingToEdit    = "There are no products in the order to change."
	msgChooseItem       = "✏️ Choose the number of the product to change:\n"
	msgEditChoiceHelp   = "Enter a product number from the list or press '➕ Add product' / 'Done'."
	msgBadItemNumber    = "Invalid product number."
	msgEnterNewQty      = "Enter the new quantity (0 removes the product):"
	msgBadEditQty       = "Enter a valid quantity (0 or more)."
	msgStaleIndex       = "Invalid product index."
	msgItemRemoved      = "Product removed from the order."
	msgQtyChanged       = "Quantity for '%s' changed to %d."
	msgNewCode          = "Enter the last 4️⃣ digits of the new product code:"
	msgChooseDetail     = "Choose what you want to change:"
	msgDetailHelp       = "Choose one of the menu items: note, delivery date, address or 'Cancel'."
	msgNewNote          = "Enter a new note for the accountant:"
	msgNewDate          = "Enter a new delivery date (e.g. 28.07):"
	msgNewAddress       = "Enter a new delivery address:"
	msgStaleButton      = "This button is no longer active."
)

// Text aliases accepted in place of buttons.
var (
	aliasStart         = []string{"/start", strings.ToLower(ButtonNewOrder), "new order"}
	aliasDone          = []string{"done", "готово"}
	aliasAdd           = []string{"✅ add", "add", "yes", "добавить", "да"}
	aliasCancelProduct = []string{"❌ cancel product", "cancel", "no", "отменить", "нет"}
	aliasConfirm       = []string{"✅ confirm", "confirm", "подтвердить"}
	aliasEditProducts  = []string{"⬅️ products", "edit products", "✏️ edit"}
	aliasEditDetails   = []string{"⬅️ details", "edit details", "🛠 edit details"}
	aliasCancelOrder   = []string{"❌ cancel", "cancel", "отмена"}
	aliasAddProduct    = []string{strings.ToLower(ButtonAddProduct), "add product"}
	aliasCancel        = []string{"cancel", "отмена"}
	aliasEditNote      = []string{strings.ToLower(ButtonEditNote), "edit note"}
	aliasEditDate      = []string{strings.ToLower(ButtonEditDate), "edit delivery date", "edit date"}
	aliasEditAddress   = []string{strings.ToLower(ButtonEditAddress), "edit delivery address", "edit address"}
)

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func oneOf(input string, aliases []string) bool {
	n := normalize(input)
	for _, a := range aliases {
		if n == a {
			return true
		}
	}
	return false
}

func text(msg string) Reply { return Reply{Text: msg} }

func withKeyboard(msg string, kb Keyboard) Reply { return Reply{Text: msg, Keyboard: kb} }

var removeKeyboard = Keyboard{Kind: KeyboardRemove}

func replyKeyboard(rows ...[]string) Keyboard {
	kb := Keyboard{Kind: KeyboardReply}
	for _, r := range rows {
		var row []Button
		for _, label := range r {
			row = append(row, Button{Text: label})
		}
		kb.Rows = append(kb.Rows, row)
	}
	return kb
}

func doneKeyboard() Keyboard { return replyKeyboard([]string{ButtonDone}) }

func newOrderKeyboard() Keyboard { return replyKeyboard([]string{ButtonNewOrder}) }

func detailsKeyboard() Keyboard {
	return replyKeyboard(
		[]string{ButtonEditNote},
		[]string{ButtonEditDate},
		[]string{ButtonEditAddress},
		[]string{ButtonCancel},
	)
}

func productCardKeyboard() Keyboard {
	return Keyboard{Kind: KeyboardInline, Rows: [][]Button{{
		{Text: "✅ Add", Data: CallbackAddProduct},
		{Text: "❌ Cancel product", Data: CallbackCancelProduct},
	}}}
}

func reviewKeyboard() Keyboard {
	return Keyboard{Kind: KeyboardInline, Rows: [][]Button{
		{{Text: "✅ Confirm", Data: CallbackConfirmOrder}, {Text: "⬅️ Products", Data: CallbackEditProducts}},
		{{Text: "⬅️ Details", Data: CallbackEditDetails}, {Text: "❌ Cancel", Data: CallbackCancelOrder}},
	}}
}

func candidatesKeyboard(cands []domain.Product) Keyboard {
	kb := Keyboard{Kind: KeyboardInline}
	for i, p := range cands {
		kb.Rows = append(kb.Rows, []Button{{
			Text: fmt.Sprintf("%s (code %s)", p.Name, p.Code),
			Data: CallbackSelectProduct + strconv.Itoa(i),
		}})
	}
	return kb
}

func editItemsKeyboard(n int) Keyboard {
	var rows [][]string
	for i := 1; i <= n; i++ {
		rows = append(rows, []string{strconv.Itoa(i)})
	}
	rows = append(rows, []string{ButtonAddProduct, ButtonDone}, []string{ButtonCancel})
	return replyKeyboard(rows...)
}

func productCard(p domain.Product) Reply {
	var b strings.Builder
	b.WriteString("🔎 Product found:\n")
	fmt.Fprintf(&b, "📦 %s\n", p.Name)
	fmt.Fprintf(&b, "📦 Stock: %s\n", p.Stock)
	fmt.Fprintf(&b, "🕐 Expiry: %s\n", p.Expiry)
	fmt.Fprintf(&b, "💶 Price excl. VAT: %s €\n", p.PriceNoVAT)
	fmt.Fprintf(&b, "💶 Price incl. VAT: %s €\n\n", p.PriceWithVAT)
	b.WriteString("Add this product?")
	return withKeyboard(b.String(), productCardKeyboard())
}

// Preview renders the order review message.
func Preview(o domain.Order) Reply {
	var items strings.Builder
	for i, item := range o.Items {
		fmt.Fprintf(&items, "%d) %s — %d pcs\n", i+1, item.Name, item.Qty)
		fmt.Fprintf(&items, "   Expiry: %s\n", item.Expiry)
		fmt.Fprintf(&items, "   Price excl. VAT: %s € | incl. VAT: %s €\n", item.PriceNoVAT, item.PriceWithVAT)
		fmt.Fprintf(&items, "   ➡️ Sum: %s €\n\n", item.SumWithVAT.StringFixed(2))
	}
	var b strings.Builder
	b.WriteString("🧾 Order preview:\n")
	fmt.Fprintf(&b, "👤 Manager: %s\n", o.Manager)
	fmt.Fprintf(&b, "💎 Client: %s\n", o.Client)
	fmt.Fprintf(&b, "📅 Delivery: %s\n", o.DeliveryDate)
	fmt.Fprintf(&b, "📍 Address: %s\n\n", o.DeliveryAddress)
	fmt.Fprintf(&b, "📦 Products:\n%s", items.String())
	fmt.Fprintf(&b, "📋 Note: %s\n", o.Note)
	fmt.Fprintf(&b, "💶 Total: %s €\n\n", o.Total().StringFixed(2))
	b.WriteString("✅ All correct? Choose an action:")
	return withKeyboard(b.String(), reviewKeyboard())
}

func itemList(o domain.Order) string {
	var b strings.Builder
	b.WriteString(msgChooseItem)
	for i, item := range o.Items {
		fmt.Fprintf(&b, "%d) %s — %d pcs\n", i+1, item.Name, item.Qty)
	}
	return b.String()
}
