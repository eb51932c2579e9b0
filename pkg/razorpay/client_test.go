package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

type stubOrders struct {
	got  map[string]interface{}
	resp map[string]interface{}
	err  error
}

func (s *stubOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	s.got = data
	return s.resp, s.err
}

type stubPayments struct {
	resp map[string]interface{}
	err  error
}

func (s *stubPayments) Fetch(string, map[string]interface{}, map[string]string) (map[string]interface{}, error) {
	return s.resp, s.err
}

func newStubClient(orders *stubOrders, payments *stubPayments) *Client {
	return &Client{orders: orders, payments: payments, keyID: "rzp_test_key", secret: "shh", logger: logger.Nop()}
}

func TestNewClientValidatesCredentials(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.RazorpayConfig{}, nil); !errors.Is(err, errKeyIDRequired) {
		t.Fatalf("expected key id error, got %v", err)
	}
	if _, err := NewClient(ctx, config.RazorpayConfig{KeyID: "pk_123", KeySecret: "s"}, nil); !errors.Is(err, errInvalidKeyID) {
		t.Fatalf("expected invalid key error, got %v", err)
	}
	if _, err := NewClient(ctx, config.RazorpayConfig{KeyID: "rzp_test_abc"}, nil); !errors.Is(err, errKeySecretRequired) {
		t.Fatalf("expected secret error, got %v", err)
	}
	client, err := NewClient(ctx, config.RazorpayConfig{KeyID: "rzp_test_abc", KeySecret: "s"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.KeyID() != "rzp_test_abc" {
		t.Fatalf("unexpected key id %q", client.KeyID())
	}
}

func TestCreateOrderMapsResponse(t *testing.T) {
	orders := &stubOrders{resp: map[string]interface{}{
		"id":       "order_123",
		"amount":   float64(2124),
		"currency": "INR",
		"receipt":  "grp-1",
		"status":   "created",
	}}
	client := newStubClient(orders, &stubPayments{})

	order, err := client.CreateOrder(context.Background(), 2124, "inr", "grp-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ID != "order_123" || order.Amount != 2124 || order.Receipt != "grp-1" {
		t.Fatalf("unexpected order %+v", order)
	}
	if orders.got["currency"] != "INR" || orders.got["amount"] != 2124 {
		t.Fatalf("unexpected request %+v", orders.got)
	}
}

func TestCreateOrderFailureIsGatewayUnavailable(t *testing.T) {
	client := newStubClient(&stubOrders{err: errors.New("boom")}, &stubPayments{})
	_, err := client.CreateOrder(context.Background(), 100, "INR", "r")
	if !pkgerrors.IsCode(err, pkgerrors.CodePaymentGatewayUnavailable) {
		t.Fatalf("expected gateway unavailable, got %v", err)
	}

	_, err = client.CreateOrder(context.Background(), 0, "INR", "r")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
}

func TestFetchPayment(t *testing.T) {
	client := newStubClient(&stubOrders{}, &stubPayments{resp: map[string]interface{}{
		"id":       "pay_1",
		"order_id": "order_123",
		"amount":   float64(500),
		"currency": "INR",
		"status":   "captured",
	}})
	payment, err := client.FetchPayment(context.Background(), "pay_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.OrderID != "order_123" || payment.Amount != 500 || payment.Status != "captured" {
		t.Fatalf("unexpected payment %+v", payment)
	}
}

func TestVerifySignature(t *testing.T) {
	client := newStubClient(&stubOrders{}, &stubPayments{})
	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write([]byte("order_123|pay_1"))
	signature := hex.EncodeToString(mac.Sum(nil))

	if !client.VerifySignature("order_123", "pay_1", signature) {
		t.Fatal("expected valid signature")
	}
	if client.VerifySignature("order_123", "pay_2", signature) {
		t.Fatal("expected signature mismatch for other payment")
	}
	if client.VerifySignature("", "pay_1", signature) {
		t.Fatal("expected empty order id to fail")
	}
}
