package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/catalog"
	"github.com/angelmondragon/storefront-checkout/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-checkout/pkg/razorpay"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// Service places multi-shop orders and settles their gateway payments.
type Service interface {
	CreateOrders(ctx context.Context, buyerID uuid.UUID, req types.CreateOrdersRequest) (*types.CreateOrdersResponse, error)
	VerifyPayment(ctx context.Context, buyerID uuid.UUID, req types.VerifyPaymentRequest) (*types.VerifyPaymentResponse, error)
	QuoteShopCoupon(ctx context.Context, buyerID uuid.UUID, req types.CouponQuoteRequest) (*types.CouponQuote, error)
}

// ServiceParams collects the order service collaborators. Gateway and Metrics
// are optional; without a gateway razorpay checkouts are refused.
type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Carts      cartStore
	Catalog    catalog.Lookup
	Coupons    couponQuoter
	Addresses  addressChecker
	Gateway    razorpay.Gateway
	Outbox     outboxPublisher
	Metrics    *metrics.CheckoutMetrics
	Config     config.CartConfig
	Logger     *logger.Logger
}

// Payment statuses the gateway reports for money that reached us.
var settledGatewayStatuses = map[string]bool{
	"authorized": true,
	"captured":   true,
}

type service struct {
	repo      Repository
	tx        txRunner
	carts     cartStore
	catalog   catalog.Lookup
	coupons   couponQuoter
	addresses addressChecker
	gateway   razorpay.Gateway
	outbox    outboxPublisher
	metrics   *metrics.CheckoutMetrics
	taxRate   decimal.Decimal
	currency  string
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the order orchestrator.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repository == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog lookup required")
	case params.Coupons == nil:
		return nil, fmt.Errorf("coupon service required")
	case params.Addresses == nil:
		return nil, fmt.Errorf("address service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	rate, err := params.Config.Tax()
	if err != nil {
		return nil, err
	}
	currency := string(enums.DefaultCurrency)
	if strings.TrimSpace(params.Config.Currency) != "" {
		parsed, err := enums.ParseCurrency(params.Config.Currency)
		if err != nil {
			return nil, err
		}
		currency = string(parsed)
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      params.Repository,
		tx:        params.Tx,
		carts:     params.Carts,
		catalog:   params.Catalog,
		coupons:   params.Coupons,
		addresses: params.Addresses,
		gateway:   params.Gateway,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		taxRate:   rate,
		currency:  currency,
		logg:      logg,
		now:       time.Now,
	}, nil
}

func (s *service) CreateOrders(ctx context.Context, buyerID uuid.UUID, req types.CreateOrdersRequest) (*types.CreateOrdersResponse, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	req.PaymentMethod = helpers.PaymentMethodOrDefault(req.PaymentMethod)
	shipping, billing, err := helpers.ValidateCreateOrders(req)
	if err != nil {
		return nil, err
	}
	if err := s.addresses.EnsureOwned(ctx, buyerID, shipping, billing); err != nil {
		return nil, err
	}

	priced, err := s.priceOrders(ctx, req.Orders)
	if err != nil {
		return nil, err
	}
	grandTotal := 0
	for _, order := range priced {
		grandTotal += order.amount
	}

	group := &models.CheckoutGroup{
		ID:            uuid.New(),
		BuyerID:       buyerID,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: enums.PaymentStatusNotRequired,
		Currency:      s.currency,
		AmountCents:   grandTotal,
		Notes:         optionalString(req.Notes),
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"checkout_group_id": group.ID.String(),
		"payment_method":    req.PaymentMethod,
	})

	// The gateway order is created before anything commits so a gateway
	// outage leaves no orphaned orders behind.
	var gatewayOrder *razorpay.Order
	if req.PaymentMethod.UsesGateway() {
		if s.gateway == nil {
			return nil, pkgerrors.New(pkgerrors.CodePaymentGatewayUnavailable, "payment gateway is not configured")
		}
		gatewayOrder, err = s.gateway.CreateOrder(ctx, grandTotal, s.currency, group.ID.String())
		if err != nil {
			return nil, err
		}
		group.PaymentStatus = enums.PaymentStatusPending
		group.GatewayOrderID = &gatewayOrder.ID
	}

	created := make([]*models.Order, 0, len(priced))
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateCheckoutGroup(ctx, group); err != nil {
			return err
		}
		for _, p := range priced {
			order := p.model(group.ID, buyerID, shipping, billing, req)
			if err := repo.CreateOrder(ctx, order); err != nil {
				return err
			}
			created = append(created, order)
		}
		if err := s.carts.WithTx(tx).RemovePurchased(ctx, buyerID, purchased(priced)); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, orderCreatedEvent(group, created))
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		s.logg.Error(ctx, "failed to persist checkout group", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeOrderCreationFailed, err, "persist orders")
	}

	s.metrics.ObserveGroupCreated(string(req.PaymentMethod), len(created), grandTotal)
	s.logg.Info(s.logg.WithField(ctx, "order_count", len(created)), "checkout group created")

	resp := &types.CreateOrdersResponse{
		CheckoutGroupID: group.ID.String(),
		Orders:          make([]types.CreatedOrder, 0, len(created)),
		Amount:          grandTotal,
		Currency:        s.currency,
		Total:           decimal.New(int64(grandTotal), -2).StringFixed(2),
	}
	for _, order := range created {
		resp.Orders = append(resp.Orders, types.CreatedOrder{
			ID:          order.ID.String(),
			ShopID:      order.ShopID.String(),
			Status:      order.Status,
			AmountCents: order.AmountCents,
		})
	}
	if gatewayOrder != nil {
		resp.RazorpayOrderID = gatewayOrder.ID
		resp.RazorpayKeyID = s.gateway.KeyID()
	}
	return resp, nil
}

func (s *service) VerifyPayment(ctx context.Context, buyerID uuid.UUID, req types.VerifyPaymentRequest) (*types.VerifyPaymentResponse, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	orderIDs, err := parseVerifyRequest(req)
	if err != nil {
		return nil, err
	}
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodePaymentGatewayUnavailable, "payment gateway is not configured")
	}

	group, err := s.repo.FindGroupByGatewayOrder(ctx, req.GatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout group")
	}
	if group.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")
	}
	if !group.PaymentMethod.UsesGateway() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout does not require payment")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"checkout_group_id":  group.ID.String(),
		"gateway_order_id":   req.GatewayOrderID,
		"gateway_payment_id": req.GatewayPaymentID,
	})

	if group.PaymentStatus == enums.PaymentStatusPaid {
		if group.GatewayPaymentID != nil && *group.GatewayPaymentID == req.GatewayPaymentID && sameOrders(group, orderIDs) {
			s.metrics.ObservePayment(metrics.PaymentOutcomeReplayed)
			return verifyResponse(group), nil
		}
		return nil, pkgerrors.New(pkgerrors.CodePaymentVerificationFailed, "checkout is already paid").
			WithDetails(map[string]any{"reason": "already_paid"})
	}

	reason, err := s.rejectReason(ctx, group, orderIDs, req)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return nil, s.failVerification(ctx, group, req, reason)
	}

	paidAt := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).MarkGroupPaid(ctx, group.ID, req.GatewayPaymentID, paidAt); err != nil {
			return err
		}
		return s.outbox.EmitOnce(ctx, tx, orderPaidEvent(group, req, paidAt))
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			return s.VerifyPayment(ctx, buyerID, req)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle checkout group")
	}

	s.metrics.ObservePayment(metrics.PaymentOutcomeVerified)
	s.logg.Info(ctx, "payment verified")

	group.PaymentStatus = enums.PaymentStatusPaid
	for i := range group.Orders {
		if group.Orders[i].Status == enums.OrderStatusPendingPayment {
			group.Orders[i].Status = enums.OrderStatusPaid
		}
	}
	return verifyResponse(group), nil
}

// rejectReason runs every authenticity check and names the first that fails.
// A gateway lookup error is returned as an error instead: the payment may be
// fine and the buyer can retry.
func (s *service) rejectReason(ctx context.Context, group *models.CheckoutGroup, orderIDs []uuid.UUID, req types.VerifyPaymentRequest) (string, error) {
	if !sameOrders(group, orderIDs) {
		return "order_mismatch", nil
	}
	if !s.gateway.VerifySignature(req.GatewayOrderID, req.GatewayPaymentID, req.GatewaySignature) {
		return "signature_mismatch", nil
	}
	payment, err := s.gateway.FetchPayment(ctx, req.GatewayPaymentID)
	if err != nil {
		return "", err
	}
	switch {
	case payment.OrderID != req.GatewayOrderID:
		return "payment_order_mismatch", nil
	case payment.Amount != group.AmountCents:
		return "amount_mismatch", nil
	case payment.Currency != "" && !strings.EqualFold(payment.Currency, group.Currency):
		return "currency_mismatch", nil
	case !settledGatewayStatuses[payment.Status]:
		return "payment_" + strings.ToLower(payment.Status), nil
	}
	return "", nil
}

func (s *service) failVerification(ctx context.Context, group *models.CheckoutGroup, req types.VerifyPaymentRequest, reason string) error {
	s.metrics.ObservePayment(metrics.PaymentOutcomeFailed)
	s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "payment verification failed")

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).MarkGroupFailed(ctx, group.ID, req.GatewayPaymentID, reason); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.Event{
			Type:        enums.EventPaymentFailed,
			Aggregate:   enums.AggregateCheckoutGroup,
			AggregateID: group.ID,
			Actor:       outbox.BuyerActor(group.BuyerID),
			Data: payloads.PaymentFailedEvent{
				CheckoutGroupID:  group.ID,
				BuyerID:          group.BuyerID,
				GatewayOrderID:   req.GatewayOrderID,
				GatewayPaymentID: req.GatewayPaymentID,
				Reason:           reason,
			},
		})
	})
	if err != nil && !errors.Is(err, ErrAlreadySettled) {
		s.logg.Error(ctx, "failed to record payment failure", err)
	}
	return pkgerrors.New(pkgerrors.CodePaymentVerificationFailed, "payment could not be verified").
		WithDetails(map[string]any{"reason": reason})
}

func (s *service) QuoteShopCoupon(ctx context.Context, buyerID uuid.UUID, req types.CouponQuoteRequest) (*types.CouponQuote, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	shopID, err := uuid.Parse(strings.TrimSpace(req.ShopID))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid shop id").
			WithDetails(map[string]string{"shop_id": "must be a valid id"})
	}
	if req.SubtotalCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subtotal must not be negative").
			WithDetails(map[string]string{"subtotal_cents": "must be zero or greater"})
	}
	eval, err := s.coupons.QuoteShop(ctx, req.Code, shopID, req.SubtotalCents)
	if err != nil {
		return nil, err
	}
	return &types.CouponQuote{
		Code:          eval.Code,
		ShopID:        shopID.String(),
		DiscountCents: eval.DiscountCents,
	}, nil
}

func parseVerifyRequest(req types.VerifyPaymentRequest) ([]uuid.UUID, error) {
	details := map[string]string{}
	if strings.TrimSpace(req.GatewayOrderID) == "" {
		details["gateway_order_id"] = "is required"
	}
	if strings.TrimSpace(req.GatewayPaymentID) == "" {
		details["gateway_payment_id"] = "is required"
	}
	if strings.TrimSpace(req.GatewaySignature) == "" {
		details["gateway_signature"] = "is required"
	}
	if len(req.OrderIDs) == 0 {
		details["order_ids"] = "at least one order id is required"
	}
	ids := make([]uuid.UUID, 0, len(req.OrderIDs))
	for _, raw := range req.OrderIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			details["order_ids"] = "must contain valid ids"
			continue
		}
		ids = append(ids, id)
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid verification request").WithDetails(details)
	}
	return ids, nil
}

// sameOrders reports whether ids names exactly the group's orders.
func sameOrders(group *models.CheckoutGroup, ids []uuid.UUID) bool {
	want := make(map[uuid.UUID]bool, len(group.Orders))
	for _, order := range group.Orders {
		want[order.ID] = true
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !want[id] {
			return false
		}
		seen[id] = true
	}
	return len(seen) == len(want)
}

func verifyResponse(group *models.CheckoutGroup) *types.VerifyPaymentResponse {
	ids := make([]string, 0, len(group.Orders))
	for _, order := range group.Orders {
		ids = append(ids, order.ID.String())
	}
	return &types.VerifyPaymentResponse{
		CheckoutGroupID: group.ID.String(),
		OrderIDs:        ids,
		Status:          string(enums.PaymentStatusPaid),
	}
}

func orderCreatedEvent(group *models.CheckoutGroup, created []*models.Order) outbox.Event {
	refs := make([]payloads.ShopOrderRef, 0, len(created))
	for _, order := range created {
		refs = append(refs, payloads.ShopOrderRef{
			OrderID:     order.ID,
			ShopID:      order.ShopID,
			AmountCents: order.AmountCents,
			Status:      order.Status,
		})
	}
	return outbox.Event{
		Type:        enums.EventOrderCreated,
		Aggregate:   enums.AggregateCheckoutGroup,
		AggregateID: group.ID,
		Actor:       outbox.BuyerActor(group.BuyerID),
		Data: payloads.OrderCreatedEvent{
			CheckoutGroupID: group.ID,
			BuyerID:         group.BuyerID,
			PaymentMethod:   group.PaymentMethod,
			AmountCents:     group.AmountCents,
			Currency:        group.Currency,
			Orders:          refs,
		},
	}
}

func orderPaidEvent(group *models.CheckoutGroup, req types.VerifyPaymentRequest, paidAt time.Time) outbox.Event {
	ids := make([]uuid.UUID, 0, len(group.Orders))
	for _, order := range group.Orders {
		ids = append(ids, order.ID)
	}
	return outbox.Event{
		Type:        enums.EventOrderPaid,
		Aggregate:   enums.AggregateCheckoutGroup,
		AggregateID: group.ID,
		Actor:       outbox.BuyerActor(group.BuyerID),
		OccurredAt:  paidAt,
		Data: payloads.OrderPaidEvent{
			CheckoutGroupID:  group.ID,
			BuyerID:          group.BuyerID,
			OrderIDs:         ids,
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: req.GatewayPaymentID,
			AmountCents:      group.AmountCents,
			PaidAt:           paidAt,
		},
	}
}
