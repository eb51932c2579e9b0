package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

func seedGroup(t *testing.T, repo Repository, status enums.PaymentStatus) *models.CheckoutGroup {
	t.Helper()
	ctx := context.Background()
	gatewayOrder := "order_" + uuid.NewString()[:8]
	group := &models.CheckoutGroup{
		BuyerID:        uuid.New(),
		PaymentMethod:  enums.PaymentMethodRazorpay,
		PaymentStatus:  status,
		Currency:       "INR",
		AmountCents:    1180,
		GatewayOrderID: &gatewayOrder,
	}
	if err := repo.CreateCheckoutGroup(ctx, group); err != nil {
		t.Fatalf("create group: %v", err)
	}
	for i := 0; i < 2; i++ {
		order := &models.Order{
			CheckoutGroupID:   group.ID,
			ShopID:            uuid.New(),
			ShopName:          "shop",
			BuyerID:           group.BuyerID,
			ShippingAddressID: uuid.New(),
			BillingAddressID:  uuid.New(),
			PaymentMethod:     group.PaymentMethod,
			SubtotalCents:     500,
			TaxCents:          90,
			AmountCents:       590,
			Status:            enums.OrderStatusPendingPayment,
			Lines: []models.OrderLine{{
				ProductID:      uuid.New(),
				ProductName:    "mug",
				UnitPriceCents: 500,
				Quantity:       1,
				TotalCents:     500,
			}},
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			t.Fatalf("create order: %v", err)
		}
	}
	return group
}

func TestRepositoryFindGroupLoadsOrdersAndLines(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	group := seedGroup(t, repo, enums.PaymentStatusPending)

	found, err := repo.FindGroupByGatewayOrder(context.Background(), *group.GatewayOrderID)
	if err != nil {
		t.Fatalf("find group: %v", err)
	}
	if found.ID != group.ID {
		t.Fatalf("expected group %s, got %s", group.ID, found.ID)
	}
	if len(found.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(found.Orders))
	}
	for _, order := range found.Orders {
		if len(order.Lines) != 1 {
			t.Fatalf("expected 1 line on order %s, got %d", order.ID, len(order.Lines))
		}
	}
}

func TestRepositoryMarkGroupPaidSettlesPendingOrders(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	group := seedGroup(t, repo, enums.PaymentStatusFailed)
	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.MarkGroupPaid(context.Background(), group.ID, "pay_1", paidAt); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	found, err := repo.FindGroupByID(context.Background(), group.ID)
	if err != nil {
		t.Fatalf("find group: %v", err)
	}
	if found.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", found.PaymentStatus)
	}
	for _, order := range found.Orders {
		if order.Status != enums.OrderStatusPaid || order.PaidAt == nil {
			t.Fatalf("expected order %s paid with paid_at, got %s", order.ID, order.Status)
		}
	}

	if err := repo.MarkGroupPaid(context.Background(), group.ID, "pay_2", paidAt); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled on second settle, got %v", err)
	}
}

func TestRepositoryMarkGroupFailedNeverDowngradesPaid(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	group := seedGroup(t, repo, enums.PaymentStatusPaid)

	err := repo.MarkGroupFailed(context.Background(), group.ID, "pay_x", "signature_mismatch")
	if !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
	found, err := repo.FindGroupByID(context.Background(), group.ID)
	if err != nil {
		t.Fatalf("find group: %v", err)
	}
	if found.PaymentStatus != enums.PaymentStatusPaid || found.FailureReason != nil {
		t.Fatalf("paid group was modified: %s %v", found.PaymentStatus, found.FailureReason)
	}
}

func TestRepositoryMarkGroupFailedRecordsReason(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	group := seedGroup(t, repo, enums.PaymentStatusPending)

	if err := repo.MarkGroupFailed(context.Background(), group.ID, "", "amount_mismatch"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	found, err := repo.FindGroupByID(context.Background(), group.ID)
	if err != nil {
		t.Fatalf("find group: %v", err)
	}
	if found.PaymentStatus != enums.PaymentStatusFailed {
		t.Fatalf("expected failed, got %s", found.PaymentStatus)
	}
	if found.FailureReason == nil || *found.FailureReason != "amount_mismatch" {
		t.Fatalf("unexpected failure reason %v", found.FailureReason)
	}
	if found.GatewayPaymentID != nil {
		t.Fatalf("expected payment id untouched, got %v", *found.GatewayPaymentID)
	}
}
