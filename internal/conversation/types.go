package conversation

import "order-bot/internal/domain"

// Event is one inbound chat event: a text message or a button callback.
type Event struct {
	UserID   int64
	ChatID   int64
	Text     string
	Callback string
	// CallbackID identifies the button press for acknowledgement.
	CallbackID string
}

// IsCallback reports whether the event came from an inline button.
func (e Event) IsCallback() bool { return e.Callback != "" }

// KeyboardKind selects how a reply's buttons are presented.
type KeyboardKind int

const (
	// KeyboardNone leaves the client's current keyboard as it is.
	KeyboardNone KeyboardKind = iota
	// KeyboardInline attaches buttons that answer with callback data.
	KeyboardInline
	// KeyboardReply replaces the input keyboard with text buttons.
	KeyboardReply
	// KeyboardRemove hides a previously shown reply keyboard.
	KeyboardRemove
)

// Button is a keyboard button. Data is only used by inline keyboards.
type Button struct {
	Text string
	Data string
}

type Keyboard struct {
	Kind KeyboardKind
	Rows [][]Button
}

// Reply is one outbound chat message.
type Reply struct {
	Text     string
	Keyboard Keyboard
}

// Outcome is the result of handling one event.
type Outcome struct {
	Replies []Reply
	// Session is the updated session. It is meaningless when End is set.
	Session domain.Session
	// End means the session must be discarded.
	End bool
	// Confirmed carries the order snapshot to fulfil.
	Confirmed *domain.Order
	Cancelled bool
	// Checkpoint asks the caller to flush the order store.
	Checkpoint bool
}
