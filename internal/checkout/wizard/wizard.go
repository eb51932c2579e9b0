package wizard

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

const confirmationRoute = "/orders/confirmation"

// ErrSubmissionInFlight is returned when Submit is called while orders are
// being placed.
var ErrSubmissionInFlight = errors.New("order submission already in progress")

// Backend is the storefront API the wizard drives. *storefront.Client
// satisfies it.
type Backend interface {
	GetCart(ctx context.Context) (*types.Cart, error)
	ValidateCart(ctx context.Context) (*types.CartValidation, error)
	ListAddresses(ctx context.Context) ([]types.Address, error)
	QuoteShopCoupon(ctx context.Context, req types.CouponQuoteRequest) (*types.CouponQuote, error)
	CreateOrders(ctx context.Context, idempotencyKey string, req types.CreateOrdersRequest) (*types.CreateOrdersResponse, error)
	VerifyPayment(ctx context.Context, req types.VerifyPaymentRequest) (*types.VerifyPaymentResponse, error)
}

// PaymentWidget opens the gateway's payment UI. The outcome arrives later
// through PaymentSucceeded or PaymentFailed.
type PaymentWidget interface {
	Open(ctx context.Context, session PaymentSession) error
}

type Params struct {
	Backend Backend
	Widget  PaymentWidget
	Logger  *logger.Logger
	TaxRate decimal.Decimal
	NewKey  func() string
}

// Wizard is the checkout state machine for one buyer session. Transitions are
// serialized; each one only accepts specific predecessor states.
type Wizard struct {
	mu      sync.Mutex
	backend Backend
	widget  PaymentWidget
	logg    *logger.Logger
	taxRate decimal.Decimal
	newKey  func() string

	state  State
	intent Intent
	banner *Banner

	// placementKey is reused until the server gives a definitive answer.
	placementKey string
	pending      *types.CreateOrdersResponse
}

// New starts a wizard at the address step with razorpay preselected.
func New(p Params) (*Wizard, error) {
	if p.Backend == nil {
		return nil, errors.New("wizard backend required")
	}
	if p.Widget == nil {
		return nil, errors.New("payment widget required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	newKey := p.NewKey
	if newKey == nil {
		newKey = uuid.NewString
	}
	return &Wizard{
		backend: p.Backend,
		widget:  p.Widget,
		logg:    logg,
		taxRate: p.TaxRate,
		newKey:  newKey,
		state:   AddressState{},
		intent:  Intent{PaymentMethod: enums.DefaultPaymentMethod},
	}, nil
}

// State returns the current state.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Intent returns a copy of the collected selections.
func (w *Wizard) Intent() Intent {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.intent
	out.ShopGroups = append([]types.ShopOrderGroup(nil), w.intent.ShopGroups...)
	return out
}

// Banner returns the current banner, if any.
func (w *Wizard) Banner() *Banner {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.banner == nil {
		return nil
	}
	b := *w.banner
	return &b
}

func (w *Wizard) DismissBanner() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.banner = nil
}

// SubmitAddress validates the address selection and moves to the payment
// step. Missing fields come back as FieldErrors and the wizard stays put.
func (w *Wizard) SubmitAddress(ctx context.Context, sel helpers.AddressSelection) (helpers.FieldErrors, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.state.(AddressState); !ok {
		return nil, w.wrongStep(StepAddress)
	}
	w.intent.Address = sel
	if errs := helpers.ValidateAddressSelection(sel); len(errs) > 0 {
		return errs, nil
	}

	book, err := w.backend.ListAddresses(ctx)
	if err != nil {
		return nil, w.fail(ctx, err, "load address book")
	}
	owned := make(map[string]struct{}, len(book))
	for _, addr := range book {
		owned[addr.ID] = struct{}{}
	}
	errs := helpers.FieldErrors{}
	if _, ok := owned[strings.TrimSpace(sel.ShippingAddressID)]; !ok {
		errs["shipping_address_id"] = "address not found in address book"
	}
	if !sel.UseShippingForBilling {
		if _, ok := owned[strings.TrimSpace(sel.BillingAddressID)]; !ok {
			errs["billing_address_id"] = "address not found in address book"
		}
	}
	if len(errs) > 0 {
		return errs, nil
	}

	w.banner = nil
	w.state = PaymentState{}
	return nil, nil
}

// SelectPayment records the payment method on the payment step.
func (w *Wizard) SelectPayment(method enums.PaymentMethod) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.state.(PaymentState); !ok {
		return w.wrongStep(StepPayment)
	}
	if !method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method must be razorpay or cod")
	}
	w.intent.PaymentMethod = method
	return nil
}

// ContinueToReview fetches the cart and freezes its shop partition for the
// rest of the checkout.
func (w *Wizard) ContinueToReview(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.state.(PaymentState); !ok {
		return w.wrongStep(StepPayment)
	}
	if !w.intent.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "select a payment method")
	}
	current, err := w.backend.GetCart(ctx)
	if err != nil {
		return w.fail(ctx, err, "load cart")
	}
	if len(current.Lines) == 0 {
		return w.fail(ctx, pkgerrors.New(pkgerrors.CodeValidation, "your cart is empty"), "load cart")
	}
	w.intent.ShopGroups = helpers.Partition(*current)
	w.banner = nil
	w.state = ReviewState{}
	return nil
}

// Back steps from payment to address or from review to payment, keeping
// every selection.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state.(type) {
	case PaymentState:
		w.state = AddressState{}
	case ReviewState:
		if w.pending != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "orders are awaiting payment")
		}
		w.state = PaymentState{}
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot go back from "+string(w.state.Step()))
	}
	w.banner = nil
	return nil
}

// SetNotes stores the order notes shown on the review step.
func (w *Wizard) SetNotes(notes string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.state.(ReviewState); !ok {
		return w.wrongStep(StepReview)
	}
	w.intent.Notes = notes
	return nil
}

// ApplyShopCoupon quotes a coupon for one shop and recomputes only that
// shop's group. A rejected coupon leaves the group as it was.
func (w *Wizard) ApplyShopCoupon(ctx context.Context, shopID, code string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	group, err := w.reviewGroup(shopID)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	quote, err := w.backend.QuoteShopCoupon(ctx, types.CouponQuoteRequest{
		ShopID:        shopID,
		Code:          code,
		SubtotalCents: group.SubtotalCents,
	})
	if err != nil {
		return w.fail(ctx, err, "quote coupon")
	}
	w.detachShared(group)
	helpers.ApplyGroupDiscount(group, quote.Code, quote.DiscountCents)
	w.banner = nil
	return nil
}

// RemoveShopCoupon drops one shop's coupon. A cart-wide coupon is dropped
// from every shop.
func (w *Wizard) RemoveShopCoupon(shopID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	group, err := w.reviewGroup(shopID)
	if err != nil {
		return err
	}
	w.detachShared(group)
	helpers.ApplyGroupDiscount(group, "", 0)
	return nil
}

// detachShared clears group's coupon from every group when other groups carry
// it too. The server prices a cart-wide coupon over all the shops carrying it,
// so it cannot be taken off one shop and kept on the rest.
func (w *Wizard) detachShared(group *types.ShopOrderGroup) {
	code := group.CouponCode
	if code == "" {
		return
	}
	carriers := 0
	for i := range w.intent.ShopGroups {
		if strings.EqualFold(w.intent.ShopGroups[i].CouponCode, code) {
			carriers++
		}
	}
	if carriers < 2 {
		return
	}
	for i := range w.intent.ShopGroups {
		if strings.EqualFold(w.intent.ShopGroups[i].CouponCode, code) {
			helpers.ApplyGroupDiscount(&w.intent.ShopGroups[i], "", 0)
		}
	}
}

// GrandTotal is the sum of shop totals plus per-shop tax.
func (w *Wizard) GrandTotal() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	total := 0
	for _, group := range w.intent.ShopGroups {
		total += group.TotalCents + cart.ComputeTax(group.TotalCents, w.taxRate)
	}
	return total
}

// Submit places the orders from the review snapshot. The cart is validated
// as the last read before any order is created. Cash on delivery completes
// immediately; razorpay opens the payment widget. The lock is released while
// the backend is called so a second Submit sees PlacingState and returns
// ErrSubmissionInFlight.
func (w *Wizard) Submit(ctx context.Context) error {
	w.mu.Lock()
	switch w.state.(type) {
	case PlacingState:
		w.mu.Unlock()
		return ErrSubmissionInFlight
	case ReviewState:
	default:
		err := w.wrongStep(StepReview)
		w.mu.Unlock()
		return err
	}
	if w.pending != nil {
		session := w.beginPayment()
		w.mu.Unlock()
		return w.openWidget(ctx, session)
	}

	w.state = PlacingState{}
	w.banner = nil
	if w.placementKey == "" {
		w.placementKey = w.newKey()
	}
	key := w.placementKey
	req := w.createRequest()
	w.mu.Unlock()

	resp, action, err := w.place(ctx, key, req)

	w.mu.Lock()
	if err != nil {
		// a 4xx answer is stored under the key and would be replayed
		if !pkgerrors.Retryable(err) {
			w.placementKey = ""
		}
		w.state = ReviewState{}
		err = w.fail(ctx, err, action)
		w.mu.Unlock()
		return err
	}
	w.placementKey = ""
	if req.PaymentMethod == enums.PaymentMethodCOD {
		w.complete(resp.CheckoutGroupID, resp.OrderIDs())
		w.mu.Unlock()
		return nil
	}
	w.pending = resp
	session := w.beginPayment()
	w.mu.Unlock()
	return w.openWidget(ctx, session)
}

func (w *Wizard) place(ctx context.Context, key string, req types.CreateOrdersRequest) (*types.CreateOrdersResponse, string, error) {
	validation, err := w.backend.ValidateCart(ctx)
	if err != nil {
		return nil, "validate cart", err
	}
	if !validation.Valid {
		return nil, "validate cart", validationError(validation)
	}
	resp, err := w.backend.CreateOrders(ctx, key, req)
	if err != nil {
		return nil, "create orders", err
	}
	return resp, "", nil
}

// RetryPayment reopens the widget for orders that already exist.
func (w *Wizard) RetryPayment(ctx context.Context) error {
	w.mu.Lock()
	if _, ok := w.state.(ReviewState); !ok || w.pending == nil {
		w.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no payment to retry")
	}
	session := w.beginPayment()
	w.mu.Unlock()
	return w.openWidget(ctx, session)
}

// PaymentSucceeded hands the gateway callback to the server for
// verification. Only a verified payment completes the checkout.
func (w *Wizard) PaymentSucceeded(ctx context.Context, result PaymentResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	placing, ok := w.state.(PlacingState)
	if !ok || placing.Pending == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no payment in progress")
	}
	verified, err := w.backend.VerifyPayment(ctx, types.VerifyPaymentRequest{
		OrderIDs:         placing.Pending.OrderIDs(),
		GatewayOrderID:   result.GatewayOrderID,
		GatewayPaymentID: result.PaymentID,
		GatewaySignature: result.Signature,
	})
	if err != nil {
		w.state = ReviewState{}
		return w.fail(ctx, err, "verify payment")
	}
	ids := verified.OrderIDs
	if len(ids) == 0 {
		ids = placing.Pending.OrderIDs()
	}
	w.complete(placing.Pending.CheckoutGroupID, ids)
	return nil
}

// PaymentFailed returns to review with the gateway's description. The
// created orders are kept for RetryPayment.
func (w *Wizard) PaymentFailed(ctx context.Context, description string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.state.(PlacingState); !ok {
		return
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = "payment was not completed"
	}
	w.logg.Warn(ctx, "payment failed: "+description)
	w.state = ReviewState{}
	w.banner = &Banner{Code: pkgerrors.CodePaymentVerificationFailed, Message: description}
}

// beginPayment moves to PlacingState for the pending orders. Callers hold
// the lock.
func (w *Wizard) beginPayment() PaymentSession {
	pending := w.pending
	w.state = PlacingState{Pending: pending}
	w.banner = nil
	return PaymentSession{
		KeyID:          pending.RazorpayKeyID,
		GatewayOrderID: pending.RazorpayOrderID,
		AmountCents:    pending.Amount,
		Currency:       pending.Currency,
		OrderIDs:       pending.OrderIDs(),
	}
}

// openWidget runs without the lock so the widget may report its outcome
// synchronously.
func (w *Wizard) openWidget(ctx context.Context, session PaymentSession) error {
	err := w.widget.Open(ctx, session)
	if err == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.state.(PlacingState); ok {
		w.state = ReviewState{}
	}
	return w.fail(ctx, pkgerrors.Wrap(pkgerrors.CodePaymentGatewayUnavailable, err, "payment gateway unavailable"), "open payment widget")
}

func (w *Wizard) complete(groupID string, orderIDs []string) {
	w.pending = nil
	w.banner = nil
	w.state = CompletedState{
		CheckoutGroupID:   groupID,
		OrderIDs:          orderIDs,
		ConfirmationRoute: confirmationRoute + "?ids=" + url.QueryEscape(strings.Join(orderIDs, ",")),
	}
}

func (w *Wizard) createRequest() types.CreateOrdersRequest {
	sel := w.intent.Address
	req := types.CreateOrdersRequest{
		Orders:            make([]types.CreateShopOrder, 0, len(w.intent.ShopGroups)),
		ShippingAddressID: sel.ShippingAddressID,
		BillingAddressID:  sel.BillingID(),
		PaymentMethod:     w.intent.PaymentMethod,
		Notes:             strings.TrimSpace(w.intent.Notes),
	}
	for _, group := range w.intent.ShopGroups {
		order := types.CreateShopOrder{
			ShopID:     group.ShopID,
			ShopName:   group.ShopName,
			CouponCode: group.CouponCode,
			Items:      make([]types.CreateOrdersItem, 0, len(group.Lines)),
		}
		for _, line := range group.Lines {
			order.Items = append(order.Items, types.CreateOrdersItem{
				ProductID: line.ProductID,
				VariantID: line.VariantID,
				Quantity:  line.Quantity,
			})
		}
		req.Orders = append(req.Orders, order)
	}
	return req
}

func (w *Wizard) reviewGroup(shopID string) (*types.ShopOrderGroup, error) {
	if _, ok := w.state.(ReviewState); !ok {
		return nil, w.wrongStep(StepReview)
	}
	if w.pending != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "orders are awaiting payment")
	}
	for i := range w.intent.ShopGroups {
		if w.intent.ShopGroups[i].ShopID == shopID {
			return &w.intent.ShopGroups[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop is not in this checkout")
}

// fail records a banner for err and returns it.
func (w *Wizard) fail(ctx context.Context, err error, action string) error {
	banner := &Banner{Code: pkgerrors.CodeInternal, Message: "something went wrong, please try again"}
	if typed := pkgerrors.As(err); typed != nil {
		banner.Code = typed.Code()
		banner.Message = typed.Message()
	}
	w.banner = banner
	w.logg.Error(ctx, "checkout "+action+" failed", err)
	return err
}

func (w *Wizard) wrongStep(want Step) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "expected step "+string(want)+", wizard is at "+string(w.state.Step()))
}

func validationError(result *types.CartValidation) error {
	msg := "your cart changed, please review it"
	if len(result.Errors) > 0 && result.Errors[0].Message != "" {
		msg = result.Errors[0].Message
	}
	return pkgerrors.New(pkgerrors.CodeConflict, msg).WithDetails(result.Errors)
}
