package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-checkout/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

type fakeBackend struct {
	mu          sync.Mutex
	cart        types.Cart
	addresses   []types.Address
	validation  types.CartValidation
	quotes      map[string]types.CouponQuote
	createErr   error
	verifyErr   error
	createKeys  []string
	createReqs  []types.CreateOrdersRequest
	verifyCalls []types.VerifyPaymentRequest
	response    types.CreateOrdersResponse
	blockCreate chan struct{}
	entered     chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		cart: types.Cart{Lines: []types.CartLine{
			{ProductID: "p1", ShopID: "s1", ShopName: "Tea House", UnitPriceCents: 1000, Quantity: 2},
			{ProductID: "p2", ShopID: "s2", ShopName: "Mug Co", UnitPriceCents: 500, Quantity: 1},
			{ProductID: "p3", VariantID: "v1", ShopID: "s1", ShopName: "Tea House", UnitPriceCents: 250, Quantity: 4},
		}},
		addresses:  []types.Address{{ID: "ship-1", Type: enums.AddressTypeShipping}, {ID: "bill-1", Type: enums.AddressTypeBilling}},
		validation: types.CartValidation{Valid: true},
		quotes:     map[string]types.CouponQuote{},
		response: types.CreateOrdersResponse{
			CheckoutGroupID: "g1",
			Orders:          []types.CreatedOrder{{ID: "o1", ShopID: "s1"}, {ID: "o2", ShopID: "s2"}},
			Amount:          3500,
			Currency:        "INR",
			RazorpayOrderID: "order_rzp",
			RazorpayKeyID:   "rzp_key",
		},
	}
}

func (f *fakeBackend) GetCart(context.Context) (*types.Cart, error) {
	c := f.cart
	return &c, nil
}

func (f *fakeBackend) ValidateCart(context.Context) (*types.CartValidation, error) {
	v := f.validation
	return &v, nil
}

func (f *fakeBackend) ListAddresses(context.Context) ([]types.Address, error) {
	return f.addresses, nil
}

func (f *fakeBackend) QuoteShopCoupon(_ context.Context, req types.CouponQuoteRequest) (*types.CouponQuote, error) {
	quote, ok := f.quotes[req.ShopID+"/"+req.Code]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon does not exist")
	}
	return &quote, nil
}

func (f *fakeBackend) CreateOrders(_ context.Context, key string, req types.CreateOrdersRequest) (*types.CreateOrdersResponse, error) {
	if f.entered != nil {
		close(f.entered)
		<-f.blockCreate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createKeys = append(f.createKeys, key)
	f.createReqs = append(f.createReqs, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	resp := f.response
	return &resp, nil
}

func (f *fakeBackend) VerifyPayment(_ context.Context, req types.VerifyPaymentRequest) (*types.VerifyPaymentResponse, error) {
	f.verifyCalls = append(f.verifyCalls, req)
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &types.VerifyPaymentResponse{CheckoutGroupID: "g1", OrderIDs: req.OrderIDs, Status: "paid"}, nil
}

func (f *fakeBackend) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createReqs)
}

type fakeWidget struct {
	sessions []PaymentSession
	err      error
}

func (f *fakeWidget) Open(_ context.Context, session PaymentSession) error {
	f.sessions = append(f.sessions, session)
	return f.err
}

func newWizard(t *testing.T, backend *fakeBackend, widget *fakeWidget) *Wizard {
	t.Helper()
	keys := 0
	w, err := New(Params{
		Backend: backend,
		Widget:  widget,
		NewKey: func() string {
			keys++
			return "key-" + string(rune('0'+keys))
		},
	})
	require.NoError(t, err)
	return w
}

func toReview(t *testing.T, w *Wizard, method enums.PaymentMethod) {
	t.Helper()
	ctx := context.Background()
	fieldErrs, err := w.SubmitAddress(ctx, helpers.AddressSelection{ShippingAddressID: "ship-1", UseShippingForBilling: true})
	require.NoError(t, err)
	require.Empty(t, fieldErrs)
	require.NoError(t, w.SelectPayment(method))
	require.NoError(t, w.ContinueToReview(ctx))
	require.IsType(t, ReviewState{}, w.State())
}

func TestNewPreselectsRazorpay(t *testing.T) {
	w := newWizard(t, newFakeBackend(), &fakeWidget{})
	assert.IsType(t, AddressState{}, w.State())
	assert.Equal(t, enums.PaymentMethodRazorpay, w.Intent().PaymentMethod)

	_, err := New(Params{Widget: &fakeWidget{}})
	assert.Error(t, err)
}

func TestSubmitAddressReportsFieldErrors(t *testing.T) {
	w := newWizard(t, newFakeBackend(), &fakeWidget{})
	ctx := context.Background()

	fieldErrs, err := w.SubmitAddress(ctx, helpers.AddressSelection{})
	require.NoError(t, err)
	assert.Equal(t, "select a shipping address", fieldErrs["shipping_address_id"])
	assert.Equal(t, "select a billing address", fieldErrs["billing_address_id"])
	assert.IsType(t, AddressState{}, w.State())

	fieldErrs, err = w.SubmitAddress(ctx, helpers.AddressSelection{ShippingAddressID: "ship-1", BillingAddressID: "someone-else"})
	require.NoError(t, err)
	assert.Contains(t, fieldErrs, "billing_address_id")
	assert.NotContains(t, fieldErrs, "shipping_address_id")
	assert.IsType(t, AddressState{}, w.State())

	fieldErrs, err = w.SubmitAddress(ctx, helpers.AddressSelection{ShippingAddressID: "ship-1", BillingAddressID: "bill-1"})
	require.NoError(t, err)
	assert.Empty(t, fieldErrs)
	assert.IsType(t, PaymentState{}, w.State())
}

func TestTransitionsRejectWrongPredecessor(t *testing.T) {
	w := newWizard(t, newFakeBackend(), &fakeWidget{})
	ctx := context.Background()

	assert.True(t, pkgerrors.IsCode(w.SelectPayment(enums.PaymentMethodCOD), pkgerrors.CodeStateConflict))
	assert.True(t, pkgerrors.IsCode(w.ContinueToReview(ctx), pkgerrors.CodeStateConflict))
	assert.True(t, pkgerrors.IsCode(w.Submit(ctx), pkgerrors.CodeStateConflict))
	assert.True(t, pkgerrors.IsCode(w.Back(), pkgerrors.CodeStateConflict))
	assert.IsType(t, AddressState{}, w.State())
}

func TestBackKeepsSelections(t *testing.T) {
	w := newWizard(t, newFakeBackend(), &fakeWidget{})
	toReview(t, w, enums.PaymentMethodCOD)

	require.NoError(t, w.Back())
	assert.IsType(t, PaymentState{}, w.State())
	require.NoError(t, w.Back())
	assert.IsType(t, AddressState{}, w.State())

	intent := w.Intent()
	assert.Equal(t, "ship-1", intent.Address.ShippingAddressID)
	assert.True(t, intent.Address.UseShippingForBilling)
	assert.Equal(t, enums.PaymentMethodCOD, intent.PaymentMethod)
}

func TestContinueToReviewPartitionsCart(t *testing.T) {
	w := newWizard(t, newFakeBackend(), &fakeWidget{})
	toReview(t, w, enums.PaymentMethodRazorpay)

	groups := w.Intent().ShopGroups
	require.Len(t, groups, 2)
	assert.Equal(t, "s1", groups[0].ShopID)
	assert.Len(t, groups[0].Lines, 2)
	assert.Equal(t, 3000, groups[0].TotalCents)
	assert.Equal(t, 500, groups[1].TotalCents)
	assert.Equal(t, 3500, w.GrandTotal())
}

func TestContinueToReviewRejectsEmptyCart(t *testing.T) {
	backend := newFakeBackend()
	backend.cart = types.Cart{}
	w := newWizard(t, backend, &fakeWidget{})
	ctx := context.Background()
	_, err := w.SubmitAddress(ctx, helpers.AddressSelection{ShippingAddressID: "ship-1", UseShippingForBilling: true})
	require.NoError(t, err)

	require.Error(t, w.ContinueToReview(ctx))
	assert.IsType(t, PaymentState{}, w.State())
	require.NotNil(t, w.Banner())
}

func TestShopCouponOnlyTouchesItsGroup(t *testing.T) {
	backend := newFakeBackend()
	backend.quotes["s1/TEA10"] = types.CouponQuote{Code: "TEA10", ShopID: "s1", DiscountCents: 300}
	w := newWizard(t, backend, &fakeWidget{})
	toReview(t, w, enums.PaymentMethodCOD)
	ctx := context.Background()

	require.NoError(t, w.ApplyShopCoupon(ctx, "s1", " TEA10 "))
	groups := w.Intent().ShopGroups
	assert.Equal(t, "TEA10", groups[0].CouponCode)
	assert.Equal(t, 300, groups[0].DiscountCents)
	assert.Equal(t, 2700, groups[0].TotalCents)
	assert.Equal(t, "", groups[1].CouponCode)
	assert.Equal(t, 500, groups[1].TotalCents)
	assert.Equal(t, 3200, w.GrandTotal())

	err := w.ApplyShopCoupon(ctx, "s2", "TEA10")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidCoupon))
	require.NotNil(t, w.Banner())
	assert.Equal(t, pkgerrors.CodeInvalidCoupon, w.Banner().Code)
	assert.Equal(t, 500, w.Intent().ShopGroups[1].TotalCents)

	w.DismissBanner()
	assert.Nil(t, w.Banner())

	require.NoError(t, w.RemoveShopCoupon("s1"))
	assert.Equal(t, 3000, w.Intent().ShopGroups[0].TotalCents)
	assert.True(t, pkgerrors.IsCode(w.RemoveShopCoupon("nope"), pkgerrors.CodeNotFound))
}

func TestGrandTotalAddsTaxPerShop(t *testing.T) {
	w, err := New(Params{Backend: newFakeBackend(), Widget: &fakeWidget{}, TaxRate: decimal.RequireFromString("0.18")})
	require.NoError(t, err)
	toReview(t, w, enums.PaymentMethodCOD)

	// 3000 + 540, 500 + 90
	assert.Equal(t, 4130, w.GrandTotal())
}

func TestSubmitCashOnDeliveryCompletes(t *testing.T) {
	backend := newFakeBackend()
	widget := &fakeWidget{}
	w := newWizard(t, backend, widget)
	toReview(t, w, enums.PaymentMethodCOD)
	require.NoError(t, w.SetNotes("  leave at door "))

	require.NoError(t, w.Submit(context.Background()))

	completed, ok := w.State().(CompletedState)
	require.True(t, ok, "expected completed, got %T", w.State())
	assert.Equal(t, []string{"o1", "o2"}, completed.OrderIDs)
	assert.Equal(t, "/orders/confirmation?ids=o1%2Co2", completed.ConfirmationRoute)
	assert.Empty(t, widget.sessions)

	require.Len(t, backend.createReqs, 1)
	req := backend.createReqs[0]
	assert.Equal(t, "ship-1", req.BillingAddressID)
	assert.Equal(t, "leave at door", req.Notes)
	require.Len(t, req.Orders, 2)
	assert.Len(t, req.Orders[0].Items, 2)
	assert.Equal(t, "v1", req.Orders[0].Items[1].VariantID)
}

func TestSubmitRazorpayVerifiesPayment(t *testing.T) {
	backend := newFakeBackend()
	widget := &fakeWidget{}
	w := newWizard(t, backend, widget)
	toReview(t, w, enums.PaymentMethodRazorpay)
	ctx := context.Background()

	require.NoError(t, w.Submit(ctx))
	placing, ok := w.State().(PlacingState)
	require.True(t, ok)
	require.NotNil(t, placing.Pending)
	require.Len(t, widget.sessions, 1)
	assert.Equal(t, "order_rzp", widget.sessions[0].GatewayOrderID)
	assert.Equal(t, "rzp_key", widget.sessions[0].KeyID)

	assert.ErrorIs(t, w.Submit(ctx), ErrSubmissionInFlight)
	assert.Equal(t, 1, backend.createCount())

	require.NoError(t, w.PaymentSucceeded(ctx, PaymentResult{GatewayOrderID: "order_rzp", PaymentID: "pay_1", Signature: "sig"}))
	assert.IsType(t, CompletedState{}, w.State())
	require.Len(t, backend.verifyCalls, 1)
	assert.Equal(t, []string{"o1", "o2"}, backend.verifyCalls[0].OrderIDs)
	assert.Equal(t, "pay_1", backend.verifyCalls[0].GatewayPaymentID)
}

func TestGatewayFailureRetriesWithoutRecreatingOrders(t *testing.T) {
	backend := newFakeBackend()
	widget := &fakeWidget{}
	w := newWizard(t, backend, widget)
	toReview(t, w, enums.PaymentMethodRazorpay)
	ctx := context.Background()

	require.NoError(t, w.Submit(ctx))
	w.PaymentFailed(ctx, "card declined")
	assert.IsType(t, ReviewState{}, w.State())
	require.NotNil(t, w.Banner())
	assert.Equal(t, "card declined", w.Banner().Message)

	assert.True(t, pkgerrors.IsCode(w.ApplyShopCoupon(ctx, "s1", "TEA10"), pkgerrors.CodeStateConflict))

	require.NoError(t, w.RetryPayment(ctx))
	assert.IsType(t, PlacingState{}, w.State())
	assert.Len(t, widget.sessions, 2)
	assert.Equal(t, 1, backend.createCount())
	assert.Nil(t, w.Banner())
}

func TestWidgetUnavailableKeepsOrders(t *testing.T) {
	backend := newFakeBackend()
	widget := &fakeWidget{err: errors.New("script blocked")}
	w := newWizard(t, backend, widget)
	toReview(t, w, enums.PaymentMethodRazorpay)
	ctx := context.Background()

	err := w.Submit(ctx)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentGatewayUnavailable))
	assert.IsType(t, ReviewState{}, w.State())
	require.NotNil(t, w.Banner())
	assert.Equal(t, pkgerrors.CodePaymentGatewayUnavailable, w.Banner().Code)

	widget.err = nil
	require.NoError(t, w.Submit(ctx))
	assert.IsType(t, PlacingState{}, w.State())
	assert.Equal(t, 1, backend.createCount())
}

func TestVerificationFailureReturnsToReview(t *testing.T) {
	backend := newFakeBackend()
	backend.verifyErr = pkgerrors.New(pkgerrors.CodePaymentVerificationFailed, "payment could not be verified")
	w := newWizard(t, backend, &fakeWidget{})
	toReview(t, w, enums.PaymentMethodRazorpay)
	ctx := context.Background()

	require.NoError(t, w.Submit(ctx))
	err := w.PaymentSucceeded(ctx, PaymentResult{GatewayOrderID: "order_rzp", PaymentID: "pay_1", Signature: "bad"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentVerificationFailed))
	assert.IsType(t, ReviewState{}, w.State())
	require.NoError(t, w.RetryPayment(ctx))
	assert.Equal(t, 1, backend.createCount())
}

func TestInvalidCartBlocksPlacement(t *testing.T) {
	backend := newFakeBackend()
	backend.validation = types.CartValidation{Errors: []types.CartValidationError{{
		ProductID: "p2", Error: types.LineIssueOutOfStock, Message: "Mug is out of stock",
	}}}
	w := newWizard(t, backend, &fakeWidget{})
	toReview(t, w, enums.PaymentMethodCOD)

	require.Error(t, w.Submit(context.Background()))
	assert.IsType(t, ReviewState{}, w.State())
	assert.Equal(t, "Mug is out of stock", w.Banner().Message)
	assert.Zero(t, backend.createCount())
}

func TestPlacementKeyReusedOnlyAfterServerFailure(t *testing.T) {
	backend := newFakeBackend()
	w := newWizard(t, backend, &fakeWidget{})
	toReview(t, w, enums.PaymentMethodCOD)
	ctx := context.Background()

	backend.createErr = pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")
	require.Error(t, w.Submit(ctx))
	require.Error(t, w.Submit(ctx))

	backend.createErr = pkgerrors.New(pkgerrors.CodeOutOfStock, "not enough stock")
	require.Error(t, w.Submit(ctx))

	backend.createErr = nil
	require.NoError(t, w.Submit(ctx))
	assert.Equal(t, []string{"key-1", "key-1", "key-1", "key-2"}, backend.createKeys)
}

func TestConcurrentSubmitIsRejected(t *testing.T) {
	backend := newFakeBackend()
	backend.entered = make(chan struct{})
	backend.blockCreate = make(chan struct{})
	w := newWizard(t, backend, &fakeWidget{})
	toReview(t, w, enums.PaymentMethodCOD)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- w.Submit(ctx) }()
	<-backend.entered

	assert.ErrorIs(t, w.Submit(ctx), ErrSubmissionInFlight)
	close(backend.blockCreate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, backend.createCount())
	assert.IsType(t, CompletedState{}, w.State())
}
