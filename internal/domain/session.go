package domain

import "time"

// Step is a position in the order conversation.
type Step string

const (
	StepManager           Step = "manager"
	StepClient            Step = "client"
	StepProductCode       Step = "product_code"
	StepChooseProduct     Step = "choose_product"
	StepConfirmProduct    Step = "confirm_product"
	StepQuantity          Step = "product_qty"
	StepNote              Step = "note"
	StepDeliveryDate      Step = "delivery_date"
	StepDeliveryAddress   Step = "delivery_address"
	StepReview            Step = "review"
	StepEditProductChoice Step = "editing_product_choice"
	StepEditProductQty    Step = "editing_product_qty"
	StepEditDetailsChoice Step = "editing_details_choice"
)

// Flow tells a step where to go once it completes.
type Flow string

const (
	// FlowIntake is the first, linear pass through the conversation.
	FlowIntake Flow = "intake"
	// FlowReview returns to the order review once the step completes.
	FlowReview Flow = "review"
)

// State is the full state-machine value: a step tagged with its flow.
type State struct {
	Step Step `json:"step"`
	Flow Flow `json:"flow"`
}

// At returns the intake-flow state for a step.
func At(step Step) State { return State{Step: step, Flow: FlowIntake} }

// ReturningToReview returns the review-flow state for a step.
func ReturningToReview(step Step) State { return State{Step: step, Flow: FlowReview} }

func (s State) String() string {
	if s.Flow == FlowReview && s.Step != StepReview {
		return string(s.Step) + "@review"
	}
	return string(s.Step)
}

// Scratch is transient per-session data used between steps.
type Scratch struct {
	Product    *Product  `json:"product,omitempty"`
	Candidates []Product `json:"candidates,omitempty"`
	EditIndex  int       `json:"edit_index"`
}

// Session is the per-user conversation record.
type Session struct {
	UserID    int64     `json:"user_id"`
	ChatID    int64     `json:"chat_id"`
	State     State     `json:"state"`
	Scratch   Scratch   `json:"scratch"`
	UpdatedAt time.Time `json:"updated_at"`
}
