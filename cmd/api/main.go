package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-checkout/api/routes"
	"github.com/angelmondragon/storefront-checkout/internal/addresses"
	"github.com/angelmondragon/storefront-checkout/internal/bootstrap"
	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/catalog"
	"github.com/angelmondragon/storefront-checkout/internal/coupons"
	"github.com/angelmondragon/storefront-checkout/internal/guestcart"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/razorpay"
)

const (
	service         = "api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	rt, err := bootstrap.Start(context.Background(), service)
	if err != nil {
		bootstrap.Exit(service, err)
	}
	ctx, stop := rt.Context()

	err = serve(ctx, rt)
	stop()
	code := 0
	if err != nil {
		rt.Logger.Error(ctx, "api server failed", err)
		code = 1
	}
	rt.Close()
	os.Exit(code)
}

func handler(ctx context.Context, rt *bootstrap.Runtime) (http.Handler, error) {
	cfg := rt.Config
	conn := rt.DB.DB()

	redisClient, err := rt.Redis(ctx)
	if err != nil {
		return nil, err
	}
	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)

	catalogRepo := catalog.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	couponService, err := coupons.NewService(coupons.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	addressService, err := addresses.NewService(addresses.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	cartService, err := cart.NewService(cartRepo, rt.DB, catalogRepo, couponService, cfg.Cart, rt.Logger)
	if err != nil {
		return nil, err
	}
	guestKV, err := guestcart.NewRedisKV(redisClient, cfg.Cart.GuestTTL)
	if err != nil {
		return nil, err
	}

	var gateway razorpay.Gateway
	if cfg.Razorpay.Enabled() {
		client, err := razorpay.NewClient(ctx, cfg.Razorpay, rt.Logger)
		if err != nil {
			return nil, err
		}
		gateway = client
	} else {
		rt.Logger.Warn(ctx, "razorpay credentials missing, only cash on delivery checkouts will succeed")
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(conn),
		Tx:         rt.DB,
		Carts:      cartRepo,
		Catalog:    catalogRepo,
		Coupons:    couponService,
		Addresses:  addressService,
		Gateway:    gateway,
		Outbox:     outbox.NewWriter(outbox.NewStore(conn), rt.Logger),
		Metrics:    checkoutMetrics,
		Config:     cfg.Cart,
		Logger:     rt.Logger,
	})
	if err != nil {
		return nil, err
	}

	return routes.NewRouter(routes.RouterParams{
		Config:          cfg,
		Logger:          rt.Logger,
		DB:              rt.DB,
		Redis:           redisClient,
		Replays:         redisClient,
		Carts:           cartService,
		GuestCarts:      guestcart.NewSessions(guestKV, redisClient.GuestCartKey, rt.Logger),
		Catalog:         catalogRepo,
		Orders:          ordersService,
		Addresses:       addressService,
		CheckoutMetrics: checkoutMetrics,
		MetricsHandler:  promhttp.Handler(),
	}), nil
}

func serve(ctx context.Context, rt *bootstrap.Runtime) error {
	h, err := handler(ctx, rt)
	if err != nil {
		return err
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = rt.Config.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx = rt.Logger.WithField(ctx, "addr", server.Addr)
	rt.Logger.Info(ctx, "starting api server")

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	rt.Logger.Info(ctx, "api server shut down gracefully")
	return nil
}
