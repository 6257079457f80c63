// Package conversation is the order-intake state machine. It consumes one
// chat event at a time and produces replies, never touching the transport.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"order-bot/internal/domain"
	"order-bot/internal/orders"
)

const codeDigits = 4

// errNoOrder means the session outlived its order, e.g. after a restart
// without a checkpoint.
var errNoOrder = errors.New("conversation: no order for user")

// Finder looks products up by the trailing digits of their code.
type Finder interface {
	FindBySuffix(ctx context.Context, suffix string) ([]domain.Product, error)
}

type Machine struct {
	catalog Finder
	orders  orders.Store
	now     func() time.Time
}

func New(catalog Finder, store orders.Store) (*Machine, error) {
	if catalog == nil {
		return nil, errors.New("conversation: catalog must not be nil")
	}
	if store == nil {
		return nil, errors.New("conversation: order store must not be nil")
	}
	return &Machine{catalog: catalog, orders: store, now: time.Now}, nil
}

// Handle advances sess by one event. sess is nil when the user has no
// conversation in progress. Errors are returned only for order store
// failures; bad input and catalog outages become replies.
func (m *Machine) Handle(ctx context.Context, sess *domain.Session, ev Event) (Outcome, error) {
	if !ev.IsCallback() && oneOf(ev.Text, aliasStart) {
		return m.start(ctx, sess, ev)
	}
	if sess == nil {
		return Outcome{End: true, Replies: []Reply{withKeyboard(msgNoSession, newOrderKeyboard())}}, nil
	}

	s := *sess
	s.ChatID = ev.ChatID
	s.UpdatedAt = m.now()

	var (
		out Outcome
		err error
	)
	switch s.State.Step {
	case domain.StepManager:
		out, err = m.textField(ctx, s, ev, orders.FieldManager)
	case domain.StepClient:
		out, err = m.textField(ctx, s, ev, orders.FieldClient)
	case domain.StepProductCode:
		out, err = m.productCode(ctx, s, ev)
	case domain.StepChooseProduct:
		out, err = m.chooseProduct(ctx, s, ev)
	case domain.StepConfirmProduct:
		out = m.confirmProduct(s, ev)
	case domain.StepQuantity:
		out, err = m.quantity(ctx, s, ev)
	case domain.StepNote:
		out, err = m.textField(ctx, s, ev, orders.FieldNote)
	case domain.StepDeliveryDate:
		out, err = m.textField(ctx, s, ev, orders.FieldDeliveryDate)
	case domain.StepDeliveryAddress:
		out, err = m.textField(ctx, s, ev, orders.FieldDeliveryAddress)
	case domain.StepReview:
		out, err = m.review(ctx, s, ev)
	case domain.StepEditProductChoice:
		out, err = m.editProductChoice(ctx, s, ev)
	case domain.StepEditProductQty:
		out, err = m.editProductQty(ctx, s, ev)
	case domain.StepEditDetailsChoice:
		out, err = m.editDetailsChoice(ctx, s, ev)
	default:
		slog.Warn("conversation: unknown step, restarting", "user_id", s.UserID, "state", s.State.String())
		return m.start(ctx, sess, ev)
	}
	if errors.Is(err, errNoOrder) {
		slog.Warn("conversation: session without order, discarding", "user_id", s.UserID, "state", s.State.String())
		return Outcome{End: true, Replies: []Reply{withKeyboard(msgNoSession, newOrderKeyboard())}}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func stay(s domain.Session, replies ...Reply) Outcome {
	return Outcome{Session: s, Replies: replies}
}

func move(s domain.Session, to domain.State, replies ...Reply) Outcome {
	s.State = to
	return Outcome{Session: s, Replies: replies}
}

func (m *Machine) start(ctx context.Context, prev *domain.Session, ev Event) (Outcome, error) {
	if _, err := m.orders.Create(ctx, ev.UserID); err != nil {
		return Outcome{}, err
	}
	msg := msgWelcome
	if prev != nil {
		msg = msgNewOrder
	}
	s := domain.Session{
		UserID:    ev.UserID,
		ChatID:    ev.ChatID,
		State:     domain.At(domain.StepManager),
		UpdatedAt: m.now(),
	}
	return Outcome{Session: s, Replies: []Reply{withKeyboard(msg, removeKeyboard)}}, nil
}

// textField stores a free-text answer and moves to the step that follows it.
func (m *Machine) textField(ctx context.Context, s domain.Session, ev Event, field orders.Field) (Outcome, error) {
	value := strings.TrimSpace(ev.Text)
	if ev.IsCallback() || value == "" {
		return stay(s, text(msgTypeText)), nil
	}
	// SetField would recreate a lost order with only this one field set.
	if _, err := m.order(ctx, s.UserID); err != nil {
		return Outcome{}, err
	}
	if err := m.orders.SetField(ctx, s.UserID, field, value); err != nil {
		return Outcome{}, err
	}
	if s.State.Flow == domain.FlowReview {
		return m.toReview(ctx, s)
	}

	switch field {
	case orders.FieldManager:
		return move(s, domain.At(domain.StepClient), text(msgEnterClient)), nil
	case orders.FieldClient:
		return move(s, domain.At(domain.StepProductCode), withKeyboard(msgClientSaved, doneKeyboard())), nil
	case orders.FieldNote:
		return move(s, domain.At(domain.StepDeliveryDate), text(msgEnterDate)), nil
	case orders.FieldDeliveryDate:
		return move(s, domain.At(domain.StepDeliveryAddress), text(msgEnterAddress)), nil
	default:
		return m.toReview(ctx, s)
	}
}

func (m *Machine) productCode(ctx context.Context, s domain.Session, ev Event) (Outcome, error) {
	if ev.IsCallback() {
		return stay(s, text(msgStaleButton)), nil
	}
	input := strings.TrimSpace(ev.Text)

	if oneOf(input, aliasDone) {
		o, err := m.order(ctx, s.UserID)
		if err != nil {
			return Outcome{}, err
		}
		if len(o.Items) == 0 {
			return stay(s, text(msgNeedProduct)), nil
		}
		if s.State.Flow == domain.FlowReview {
			return m.toReview(ctx, s)
		}
		return move(s, domain.At(domain.StepNote), withKeyboard(msgEnterNote, removeKeyboard)), nil
	}

	if !isCode(input) {
		return stay(s, text(msgNeedFourDigits)), nil
	}
	matches, err := m.catalog.FindBySuffix(ctx, input)
	if err != nil {
		slog.Error("conversation: catalog lookup failed", "user_id", s.UserID, "err", err)
		return stay(s, text(msgCatalogDown)), nil
	}

	switch len(matches) {
	case 0:
		return stay(s, text(msgNotFound)), nil
	case 1:
		p := matches[0]
		s.Scratch.Product = &p
		s.Scratch.Candidates = nil
		return move(s, domain.State{Step: domain.StepConfirmProduct, Flow: s.State.Flow}, productCard(p)), nil
	default:
		s.Scratch.Product = nil
		s.Scratch.Candidates = matches
		return move(s, domain.State{Step: domain.StepChooseProduct, Flow: s.State.Flow},
			withKeyboard(msgSeveralFound, candidatesKeyboard(matches))), nil
	}
}

func (m *Machine) chooseProduct(ctx context.Context, s domain.Session, ev Event) (Outcome, error) {
	idx := -1
	switch {
	case ev.IsCallback():
		raw, ok := strings.CutPrefix(ev.Callback, CallbackSelectProduct)
		if !ok {
			return stay(s, text(msgStaleButton)), nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return stay(s, text(msgBadChoice)), nil
		}
		idx = n
	case isDigits(strings.TrimSpace(ev.Text)) && len(strings.TrimSpace(ev.Text)) < codeDigits:
		n, _ := strconv.Atoi(strings.TrimSpace(ev.Text))
		idx = n - 1
	case isCode(strings.TrimSpace(ev.Text)):
		// A new code replaces the pending choice.
		s.State.Step = domain.StepProductCode
		s.Scratch.Candidates = nil
		return m.productCode(ctx, s, ev)
	}

	if idx < 0 || idx >= len(s.Scratch.Candidates) {
		return stay(s, text(msgBadChoice)), nil
	}
	p := s.Scratch.Candidates[idx]
	s.Scratch.Product = &p
	s.Scratch.Candidates = nil
	return move(s, domain.State{Step: domain.StepConfirmProduct, Flow: s.State.Flow}, productCard(p)), nil
}

func (m *Machine) confirmProduct(s domain.Session, ev Event) Outcome {
	switch {
	case ev.Callback == CallbackAddProduct || (!ev.IsCallback() && oneOf(ev.Text, aliasAdd)):
		return move(s, domain.State{Step: domain.StepQuantity, Flow: s.State.Flow},
			withKeyboard(msgEnterQty, removeKeyboard))
	case ev.Callback == CallbackCancelProduct || (!ev.IsCallback() && oneOf(ev.Text, aliasCancelProduct)):
		s.Scratch.Product = nil
		return move(s, domain.State{Step: domain.StepProductCode, Flow: s.State.Flow},
			withKeyboard(msgProductSkipped, doneKeyboard()))
	case ev.IsCallback():
		return stay(s, text(msgStaleButton))
	default:
		return stay(s, text(msgAddOrCancel))
	}
}

func (m *Machine) quantity(ctx context.Context, s domain.Session, ev Event) (Outcome, error) {
	qty, ok := parseQty(ev.Text)
	if ev.IsCallback() || !ok || qty == 0 {
		return stay(s, text(msgBadQty)), nil
	}
	if s.Scratch.Product == nil {
		return move(s, domain.State{Step: domain.StepProductCode, Flow: s.State.Flow},
			withKeyboard(msgLostProduct, doneKeyboard())), nil
	}

	o, err := m.order(ctx, s.UserID)
	if err != nil {
		return Outcome{}, err
	}
	items := append(o.Items, domain.NewLineItem(*s.Scratch.Product, qty))
	if err := m.orders.ReplaceLineItems(ctx, s.UserID, items); err != nil {
		return Outcome{}, err
	}
	s.Scratch.Product = nil

	if s.State.Flow == domain.FlowReview {
		out, err := m.toReview(ctx, s)
		out.Replies = append([]Reply{text(msgProductAddedEdit)}, out.Replies...)
		return out, err
	}
	return move(s, domain.At(domain.StepProductCode), withKeyboard(msgProductAdded, doneKeyboard())), nil
}

func (m *Machine) review(ctx context.Context, s domain.Session, ev Event) (Outcome, error) {
	is := func(callback string, aliases []string) bool {
		if ev.IsCallback() {
			return ev.Callback == callback
		}
		return oneOf(ev.Text, aliases)
	}

	switch {
	case is(CallbackConfirmOrder, aliasConfirm):
		return m.confirm(ctx, s)
	case is(CallbackEditProducts, aliasEditProducts):
		return m.showItems(ctx, s)
	case is(CallbackEditDetails, aliasEditDetails):
		return move(s, domain.At(domain.StepEditDetailsChoice), withKeyboard(msgChooseDetail, detailsKeyboard())), nil
	case is(CallbackCancelOrder, aliasCancelOrder):
		if err := m.orders.Delete(ctx, s.UserID); err != nil {
			return Outcome{}, err
		}
		return Outcome{End: true, Cancelled: true, Replies: []Reply{withKeyboard(msgCancelled, newOrderKeyboard())}}, nil
	default:
		return stay(s, text(msgChooseAction)), nil
	}
}

func (m *Machine) confirm(ctx context.Context, s domain.Session) (Outcome, error) {
	o, err := m.order(ctx, s.UserID)
	if err != nil {
		return Outcome{}, err
	}
	if missing := o.Missing(); len(missing) > 0 {
		return stay(s, text(fmt.Sprintf(msgIncomplete, strings.Join(missing, ", ")))), nil
	}
	if err := m.orders.Delete(ctx, s.UserID); err != nil {
		return Outcome{}, err
	}
	snapshot := o.Clone()
	return Outcome{
		End:       true,
		Confirmed: &snapshot,
		Replies:   []Reply{withKeyboard(msgSubmitted, newOrderKeyboard())},
	}, nil
}

func (m *Machine) showItems(ctx context.Context, s domain.Session) (Outcome, error) {
	o, err := m.order(ctx, s.UserID)
	if err != nil {
		return Outcome{}, err
	}
	if len(o.Items) == 0 {
		return move(s, domain.At(domain.StepReview), text(msgNothingToEdit)), nil
	}
	return move(s, domain.At(domain.StepEditProductChoice),
		withKeyboard(itemList(o), editItemsKeyboard(len(o.Items)))), nil
}

func (m *Machine) editProductChoice(ctx context.Context, s domain.Session, ev Event) (Outcome, error) {
	if ev.IsCallback() {
		return stay(s, text(msgStaleButton)), nil
	}
	input := strings.TrimSpace(ev.Text)
	switch {
	case oneOf(input, aliasAddProduct):
		return move(s, domain.ReturningToReview(domain.StepProductCode), withKeyboard(msgNewCode, removeKeyboard)), nil
	case oneOf(input, aliasDone), oneOf(input, aliasCancel):
		return m.toReview(ctx, s)
	case isDigits(input):
		o, err := m.order(ctx, s.UserID)
		if err != nil {
			return Outcome{}, err
		}
		n, err := strconv.Atoi(input)
		if err != nil || n < 1 || n > len(o.Items) {
			return stay(s, text(msgBadItemNumber)), nil
		}
		s.Scratch.EditIndex = n - 1
		return move(s, domain.At(domain.StepEditProductQty), withKeyboard(msgEnterNewQty, removeKeyboard)), nil
	default:
		return stay(s, text(msgEditChoiceHelp)), nil
	}
}

func (m *Machine) editProductQty(ctx context.Context, s domain.Session, ev Event) (Outcome, error) {
	qty, ok := parseQty(ev.Text)
	if ev.IsCallback() || !ok {
		return stay(s, text(msgBadEditQty)), nil
	}
	o, err := m.order(ctx, s.UserID)
	if err != nil {
		return Outcome{}, err
	}
	idx := s.Scratch.EditIndex
	if idx < 0 || idx >= len(o.Items) {
		out, err := m.showItems(ctx, s)
		out.Replies = append([]Reply{text(msgStaleIndex)}, out.Replies...)
		return out, err
	}

	var note string
	items := o.Items
	if qty == 0 {
		items = append(items[:idx:idx], items[idx+1:]...)
		note = msgItemRemoved
	} else {
		items[idx].SetQty(qty)
		note = fmt.Sprintf(msgQtyChanged, items[idx].Name, qty)
	}
	if err := m.orders.ReplaceLineItems(ctx, s.UserID, items); err != nil {
		return Outcome{}, err
	}
	s.Scratch.EditIndex = 0

	out, err := m.toReview(ctx, s)
	out.Replies = append([]Reply{text(note)}, out.Replies...)
	return out, err
}

func (m *Machine) editDetailsChoice(ctx context.Context, s domain.Session, ev Event) (Outcome, error) {
	if ev.IsCallback() {
		return stay(s, text(msgStaleButton)), nil
	}
	switch input := ev.Text; {
	case oneOf(input, aliasEditNote):
		return move(s, domain.ReturningToReview(domain.StepNote), withKeyboard(msgNewNote, removeKeyboard)), nil
	case oneOf(input, aliasEditDate):
		return move(s, domain.ReturningToReview(domain.StepDeliveryDate), withKeyboard(msgNewDate, removeKeyboard)), nil
	case oneOf(input, aliasEditAddress):
		return move(s, domain.ReturningToReview(domain.StepDeliveryAddress), withKeyboard(msgNewAddress, removeKeyboard)), nil
	case oneOf(input, aliasCancel):
		return m.toReview(ctx, s)
	default:
		return stay(s, text(msgDetailHelp)), nil
	}
}

// toReview moves the session to review and renders the order preview.
// Reaching review is a checkpoint for the order store.
func (m *Machine) toReview(ctx context.Context, s domain.Session) (Outcome, error) {
	o, err := m.order(ctx, s.UserID)
	if err != nil {
		return Outcome{}, err
	}
	s.Scratch = domain.Scratch{}
	out := move(s, domain.At(domain.StepReview), withKeyboard(msgReviewReady, removeKeyboard), Preview(o))
	out.Checkpoint = true
	return out, nil
}

func (m *Machine) order(ctx context.Context, userID int64) (domain.Order, error) {
	o, ok, err := m.orders.Get(ctx, userID)
	if err != nil {
		return domain.Order{}, err
	}
	if !ok {
		return domain.Order{}, fmt.Errorf("%w %d", errNoOrder, userID)
	}
	return o, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isCode(s string) bool {
	return len(s) == codeDigits && isDigits(s)
}

// parseQty accepts a plain non-negative decimal integer.
func parseQty(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if !isDigits(raw) {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
