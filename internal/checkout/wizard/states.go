package wizard

import (
	"github.com/angelmondragon/storefront-checkout/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// Step names the wizard screen.
type Step string

const (
	StepAddress   Step = "address"
	StepPayment   Step = "payment"
	StepReview    Step = "review"
	StepPlacing   Step = "placing"
	StepCompleted Step = "completed"
)

// State is one of AddressState, PaymentState, ReviewState, PlacingState or
// CompletedState.
type State interface {
	Step() Step
	state()
}

type AddressState struct{}

type PaymentState struct{}

type ReviewState struct{}

// PlacingState holds the created orders while the gateway widget is open.
// Pending is nil until order creation returns.
type PlacingState struct {
	Pending *types.CreateOrdersResponse
}

// CompletedState is terminal.
type CompletedState struct {
	CheckoutGroupID   string
	OrderIDs          []string
	ConfirmationRoute string
}

func (AddressState) Step() Step   { return StepAddress }
func (PaymentState) Step() Step   { return StepPayment }
func (ReviewState) Step() Step    { return StepReview }
func (PlacingState) Step() Step   { return StepPlacing }
func (CompletedState) Step() Step { return StepCompleted }

func (AddressState) state()   {}
func (PaymentState) state()   {}
func (ReviewState) state()    {}
func (PlacingState) state()   {}
func (CompletedState) state() {}

// Intent is everything the wizard has collected so far.
type Intent struct {
	Address       helpers.AddressSelection
	PaymentMethod enums.PaymentMethod
	Notes         string
	ShopGroups    []types.ShopOrderGroup
}

// Banner is the dismissible message shown after a failed action.
type Banner struct {
	Code    pkgerrors.Code
	Message string
}

// PaymentSession is what the gateway widget needs to collect a payment.
type PaymentSession struct {
	KeyID          string
	GatewayOrderID string
	AmountCents    int
	Currency       string
	OrderIDs       []string
}

// PaymentResult is the gateway's success callback payload.
type PaymentResult struct {
	GatewayOrderID string
	PaymentID      string
	Signature      string
}
