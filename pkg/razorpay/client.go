package razorpay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	rzp "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

const (
	testKeyPrefix = "rzp_test_"
	liveKeyPrefix = "rzp_live_"
)

var (
	errKeyIDRequired     = errors.New("razorpay key id is required")
	errKeySecretRequired = errors.New("razorpay key secret is required")
	errInvalidKeyID      = fmt.Errorf("razorpay key id must start with %q or %q", testKeyPrefix, liveKeyPrefix)
)

// Order is the gateway-side order a hosted checkout is opened against.
type Order struct {
	ID       string
	Amount   int
	Currency string
	Receipt  string
	Status   string
}

// Payment is the gateway's record of a buyer payment.
type Payment struct {
	ID       string
	OrderID  string
	Amount   int
	Currency string
	Status   string
}

// Gateway is the server-side payment surface checkout depends on.
type Gateway interface {
	CreateOrder(ctx context.Context, amountCents int, currency, receipt string) (*Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
	VerifySignature(orderID, paymentID, signature string) bool
	KeyID() string
}

type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type paymentAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Client wraps the Razorpay SDK with storefront error mapping and logging.
type Client struct {
	orders   orderAPI
	payments paymentAPI
	keyID    string
	secret   string
	logger   *logger.Logger
}

// NewClient validates the credentials and builds the SDK client.
func NewClient(ctx context.Context, cfg config.RazorpayConfig, logg *logger.Logger) (*Client, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	if !strings.HasPrefix(keyID, testKeyPrefix) && !strings.HasPrefix(keyID, liveKeyPrefix) {
		return nil, errInvalidKeyID
	}
	secret := strings.TrimSpace(cfg.KeySecret)
	if secret == "" {
		return nil, errKeySecretRequired
	}
	if logg == nil {
		logg = logger.Nop()
	}

	sdk := rzp.NewClient(keyID, secret)
	logg.Info(ctx, fmt.Sprintf("razorpay client initialized (live=%t)", strings.HasPrefix(keyID, liveKeyPrefix)))

	return &Client{
		orders:   sdk.Order,
		payments: sdk.Payment,
		keyID:    keyID,
		secret:   secret,
		logger:   logg,
	}, nil
}

// KeyID is the public key the hosted checkout widget is opened with.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// CreateOrder registers an order of amountCents minor units. The receipt
// ties it back to our checkout group.
func (c *Client) CreateOrder(ctx context.Context, amountCents int, currency, receipt string) (*Order, error) {
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order amount must be positive")
	}
	body, err := c.orders.Create(map[string]interface{}{
		"amount":   amountCents,
		"currency": strings.ToUpper(currency),
		"receipt":  receipt,
	}, nil)
	if err != nil {
		c.logger.Error(c.logger.WithField(ctx, "receipt", receipt), "razorpay order create failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentGatewayUnavailable, err, "create gateway order")
	}
	order := &Order{
		ID:       stringField(body, "id"),
		Amount:   intField(body, "amount"),
		Currency: stringField(body, "currency"),
		Receipt:  stringField(body, "receipt"),
		Status:   stringField(body, "status"),
	}
	if order.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodePaymentGatewayUnavailable, "gateway order response missing id")
	}
	return order, nil
}

// FetchPayment loads a payment by id.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	body, err := c.payments.Fetch(paymentID, nil, nil)
	if err != nil {
		c.logger.Error(c.logger.WithField(ctx, "payment_id", paymentID), "razorpay payment fetch failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentGatewayUnavailable, err, "fetch gateway payment")
	}
	return &Payment{
		ID:       stringField(body, "id"),
		OrderID:  stringField(body, "order_id"),
		Amount:   intField(body, "amount"),
		Currency: stringField(body, "currency"),
		Status:   stringField(body, "status"),
	}, nil
}

// VerifySignature checks the HMAC-SHA256 the widget returns for
// order_id|payment_id against the key secret.
func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	return utils.VerifyPaymentSignature(map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
	}, signature, c.secret)
}

func stringField(body map[string]interface{}, key string) string {
	if v, ok := body[key].(string); ok {
		return v
	}
	return ""
}

func intField(body map[string]interface{}, key string) int {
	switch v := body[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}
