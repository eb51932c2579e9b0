package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-checkout/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-checkout/api/controllers/cart"
	guestcartcontrollers "github.com/angelmondragon/storefront-checkout/api/controllers/guestcart"
	"github.com/angelmondragon/storefront-checkout/api/middleware"
	"github.com/angelmondragon/storefront-checkout/internal/addresses"
	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/catalog"
	"github.com/angelmondragon/storefront-checkout/internal/guestcart"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
)

// RouterParams carries everything the HTTP surface is wired to. Pingers and
// the replay store may be nil in tests.
type RouterParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              controllers.Pinger
	Redis           controllers.Pinger
	Replays         middleware.ReplayStore
	Carts           cart.Service
	GuestCarts      *guestcart.Sessions
	Catalog         catalog.Lookup
	Orders          orders.Service
	Addresses       addresses.Service
	CheckoutMetrics *metrics.CheckoutMetrics
	MetricsHandler  http.Handler
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}))
	})
	if p.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", p.MetricsHandler)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Use(middleware.GuestSession(logg))
		r.Get("/ping", controllers.PublicPing())

		r.Route("/v1/guest-cart", func(r chi.Router) {
			r.Get("/", guestcartcontrollers.GuestCartFetch(p.GuestCarts))
			r.Post("/", guestcartcontrollers.GuestCartAdd(p.GuestCarts, p.Catalog, logg))
			r.Delete("/", guestcartcontrollers.GuestCartClear(p.GuestCarts))
			r.Get("/count", guestcartcontrollers.GuestCartCount(p.GuestCarts))
			r.Patch("/{itemId}", guestcartcontrollers.GuestCartUpdate(p.GuestCarts, logg))
			r.Delete("/{itemId}", guestcartcontrollers.GuestCartRemove(p.GuestCarts))
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(p.Replays, logg))
		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(p.Carts, logg))
			r.Post("/", cartcontrollers.CartAddItem(p.Carts, logg))
			r.Delete("/", cartcontrollers.CartClear(p.Carts, logg))
			r.Get("/count", cartcontrollers.CartCount(p.Carts, logg))
			r.Get("/validate", cartcontrollers.CartValidate(p.Carts, logg))
			r.With(middleware.GuestSession(logg)).
				Post("/merge", cartcontrollers.CartMerge(p.Carts, p.GuestCarts, p.CheckoutMetrics, logg))
			r.Post("/coupon", cartcontrollers.CartApplyCoupon(p.Carts, logg))
			r.Delete("/coupon", cartcontrollers.CartRemoveCoupon(p.Carts, logg))
			r.Patch("/{itemId}", cartcontrollers.CartUpdateItem(p.Carts, logg))
			r.Delete("/{itemId}", cartcontrollers.CartRemoveItem(p.Carts, logg))
		})

		r.Route("/v1/checkout", func(r chi.Router) {
			r.Post("/orders", controllers.CheckoutCreateOrders(p.Orders, logg))
			r.Post("/orders/verify", controllers.CheckoutVerifyPayment(p.Orders, logg))
			r.Post("/coupons/quote", controllers.CheckoutQuoteCoupon(p.Orders, logg))
		})

		r.Get("/v1/addresses", controllers.AddressList(p.Addresses, logg))
	})

	return r
}
