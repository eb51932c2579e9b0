package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-checkout/internal/checkout/wizard"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/env"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/storefront"
)

// couponFlags collects repeated -coupon shopID=CODE values.
type couponFlags map[string]string

func (c couponFlags) String() string { return fmt.Sprint(map[string]string(c)) }

func (c couponFlags) Set(value string) error {
	shopID, code, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(shopID) == "" || strings.TrimSpace(code) == "" {
		return fmt.Errorf("expected shopID=CODE, got %q", value)
	}
	c[strings.TrimSpace(shopID)] = strings.TrimSpace(code)
	return nil
}

// terminalWidget prints the payment session; the gateway outcome is read
// back from stdin.
type terminalWidget struct {
	out io.Writer
}

func (t terminalWidget) Open(_ context.Context, session wizard.PaymentSession) error {
	enc := json.NewEncoder(t.out)
	enc.SetIndent("", "  ")
	fmt.Fprintln(t.out, "complete the payment, then paste the gateway callback JSON or `fail: <reason>`:")
	return enc.Encode(session)
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "checkout-cli"})
	_ = godotenv.Load()

	coupons := couponFlags{}
	baseURL := flag.String("base-url", env.Get("STOREFRONT_API_URL", "http://localhost:8080"), "storefront api base url")
	token := flag.String("token", env.Get("STOREFRONT_ACCESS_TOKEN", ""), "buyer access token")
	guest := flag.String("guest-session", "", "merge this guest session's cart before checkout")
	shipping := flag.String("shipping", "", "shipping address id")
	billing := flag.String("billing", "", "billing address id (defaults to shipping)")
	method := flag.String("method", string(enums.DefaultPaymentMethod), "payment method: razorpay|cod")
	notes := flag.String("notes", "", "order notes")
	taxRate := flag.String("tax-rate", env.Get("STOREFRONT_CART_TAX_RATE", "0"), "flat tax rate used for the displayed total")
	flag.Var(coupons, "coupon", "per-shop coupon as shopID=CODE (repeatable)")
	flag.Parse()

	ctx := context.Background()
	rate, err := decimal.NewFromString(*taxRate)
	if err != nil {
		exit(ctx, logg, "invalid -tax-rate", err)
	}
	client, err := storefront.NewClient(*baseURL, storefront.WithToken(*token))
	if err != nil {
		exit(ctx, logg, "build storefront client", err)
	}

	if *guest != "" {
		merged, err := client.MergeGuestSession(ctx, *guest)
		if err != nil {
			exit(ctx, logg, "merge guest cart", err)
		}
		fmt.Printf("merged guest cart, %d items now in cart\n", merged.ItemCount)
	}

	w, err := wizard.New(wizard.Params{
		Backend: client,
		Widget:  terminalWidget{out: os.Stdout},
		Logger:  logg,
		TaxRate: rate,
	})
	if err != nil {
		exit(ctx, logg, "start checkout", err)
	}

	fieldErrs, err := w.SubmitAddress(ctx, helpers.AddressSelection{
		ShippingAddressID:     *shipping,
		BillingAddressID:      *billing,
		UseShippingForBilling: *billing == "",
	})
	if err != nil {
		exit(ctx, logg, "address step", err)
	}
	if len(fieldErrs) > 0 {
		for field, msg := range fieldErrs {
			fmt.Fprintf(os.Stderr, "%s: %s\n", field, msg)
		}
		os.Exit(2)
	}
	if err := w.SelectPayment(enums.PaymentMethod(*method)); err != nil {
		exit(ctx, logg, "payment step", err)
	}
	if err := w.ContinueToReview(ctx); err != nil {
		exit(ctx, logg, "review step", err)
	}
	for shopID, code := range coupons {
		if err := w.ApplyShopCoupon(ctx, shopID, code); err != nil {
			exit(ctx, logg, "apply coupon for shop "+shopID, err)
		}
	}
	if err := w.SetNotes(*notes); err != nil {
		exit(ctx, logg, "set notes", err)
	}

	for _, group := range w.Intent().ShopGroups {
		fmt.Printf("%-30s %3d items  %s\n", group.ShopName, group.ItemCount(), cents(group.TotalCents))
	}
	fmt.Printf("%-30s            %s\n", "total incl. tax", cents(w.GrandTotal()))

	if err := w.Submit(ctx); err != nil {
		exit(ctx, logg, "place orders", err)
	}
	awaitPayment(ctx, logg, w, bufio.NewReader(os.Stdin))

	if done, ok := w.State().(wizard.CompletedState); ok {
		fmt.Println("orders placed:", strings.Join(done.OrderIDs, ", "))
		fmt.Println(done.ConfirmationRoute)
	}
}

// awaitPayment feeds gateway callbacks from stdin into the wizard until the
// checkout completes. A failed payment is retried once per input line.
func awaitPayment(ctx context.Context, logg *logger.Logger, w *wizard.Wizard, in *bufio.Reader) {
	for {
		switch w.State().(type) {
		case wizard.CompletedState:
			return
		case wizard.ReviewState:
			if banner := w.Banner(); banner != nil {
				fmt.Println(banner.Message)
			}
			if err := w.RetryPayment(ctx); err != nil {
				exit(ctx, logg, "retry payment", err)
			}
		}

		line, err := in.ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			exit(ctx, logg, "read payment result", err)
		}
		line = strings.TrimSpace(line)
		if reason, failed := strings.CutPrefix(line, "fail:"); failed {
			w.PaymentFailed(ctx, reason)
			continue
		}
		var callback struct {
			OrderID   string `json:"razorpay_order_id"`
			PaymentID string `json:"razorpay_payment_id"`
			Signature string `json:"razorpay_signature"`
		}
		if err := json.Unmarshal([]byte(line), &callback); err != nil {
			fmt.Fprintln(os.Stderr, "expected gateway callback JSON:", err)
			continue
		}
		// verification failures land back in review and are retried above
		_ = w.PaymentSucceeded(ctx, wizard.PaymentResult{
			GatewayOrderID: callback.OrderID,
			PaymentID:      callback.PaymentID,
			Signature:      callback.Signature,
		})
	}
}

func cents(amount int) string {
	return decimal.New(int64(amount), -2).StringFixed(2)
}

func exit(ctx context.Context, logg *logger.Logger, msg string, err error) {
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
