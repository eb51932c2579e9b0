package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

const (
	defaultTimeout             = 10 * time.Second
	errorBodyReadLimit   int64 = 1024
	guestSessionHeader         = "X-Guest-Session"
	idempotencyKeyHeader       = "Idempotency-Key"
)

var errBaseURLRequired = errors.New("storefront base url is required")

// Client calls the storefront cart and checkout API on behalf of one
// signed-in buyer.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      func(ctx context.Context) (string, error)
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithToken sets a fixed bearer token.
func WithToken(token string) Option {
	token = strings.TrimSpace(token)
	return func(c *Client) {
		c.token = func(context.Context) (string, error) { return token, nil }
	}
}

// WithTokenSource resolves the bearer token per request.
func WithTokenSource(source func(ctx context.Context) (string, error)) Option {
	return func(c *Client) {
		if source != nil {
			c.token = source
		}
	}
}

// NewClient builds a client rooted at baseURL (scheme and host, no /api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// GetCart fetches the buyer's cart with current totals.
func (c *Client) GetCart(ctx context.Context) (*types.Cart, error) {
	var cart types.Cart
	if err := c.do(ctx, http.MethodGet, "/api/v1/cart", nil, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// CartCount returns the summed line quantity.
func (c *Client) CartCount(ctx context.Context) (int, error) {
	var count types.CartCount
	if err := c.do(ctx, http.MethodGet, "/api/v1/cart/count", nil, nil, &count); err != nil {
		return 0, err
	}
	return count.Count, nil
}

// ValidateCart runs the pre-checkout gate.
func (c *Client) ValidateCart(ctx context.Context) (*types.CartValidation, error) {
	var result types.CartValidation
	if err := c.do(ctx, http.MethodGet, "/api/v1/cart/validate", nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MergeGuestSession merges the cart stored for a guest session into the
// buyer's cart. The server clears the guest cart afterwards.
func (c *Client) MergeGuestSession(ctx context.Context, session string) (*types.Cart, error) {
	headers := map[string]string{guestSessionHeader: session}
	var result struct {
		Cart *types.Cart `json:"cart"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/cart/merge", headers, nil, &result); err != nil {
		return nil, err
	}
	return result.Cart, nil
}

// ListAddresses returns the buyer's address book.
func (c *Client) ListAddresses(ctx context.Context) ([]types.Address, error) {
	var result struct {
		Addresses []types.Address `json:"addresses"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/addresses", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.Addresses, nil
}

// QuoteShopCoupon asks what a coupon takes off one shop's subtotal.
func (c *Client) QuoteShopCoupon(ctx context.Context, req types.CouponQuoteRequest) (*types.CouponQuote, error) {
	var quote types.CouponQuote
	if err := c.do(ctx, http.MethodPost, "/api/v1/checkout/coupons/quote", nil, req, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// CreateOrders submits one multi-shop order. Reusing idempotencyKey replays
// the first response instead of creating orders twice.
func (c *Client) CreateOrders(ctx context.Context, idempotencyKey string, req types.CreateOrdersRequest) (*types.CreateOrdersResponse, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	headers := map[string]string{idempotencyKeyHeader: idempotencyKey}
	var resp types.CreateOrdersResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/checkout/orders", headers, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyPayment forwards the gateway callback for server-side verification.
func (c *Client) VerifyPayment(ctx context.Context, req types.VerifyPaymentRequest) (*types.VerifyPaymentResponse, error) {
	var resp types.VerifyPaymentResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/checkout/orders/verify", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body, dest any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "storefront client not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "resolve access token")
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s", method, path))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if dest == nil {
		return nil
	}
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode response")
	}
	return nil
}

// decodeError turns an error envelope back into a typed error so callers can
// branch on the same codes the server uses.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit*8))
	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Code != "" {
		typed := pkgerrors.New(pkgerrors.Code(envelope.Error.Code), envelope.Error.Message)
		if envelope.Error.Details != nil {
			typed = typed.WithDetails(envelope.Error.Details)
		}
		return typed
	}
	if len(raw) > int(errorBodyReadLimit) {
		raw = raw[:errorBodyReadLimit]
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency,
		fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), "storefront request failed")
}
