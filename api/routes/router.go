package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solestack/storefront/api/controllers"
	inventorycontrollers "github.com/solestack/storefront/api/controllers/inventory"
	ordercontrollers "github.com/solestack/storefront/api/controllers/orders"
	webhookcontrollers "github.com/solestack/storefront/api/controllers/webhooks"
	"github.com/solestack/storefront/api/middleware"
	checkoutsvc "github.com/solestack/storefront/internal/checkout"
	"github.com/solestack/storefront/internal/ledger"
	"github.com/solestack/storefront/internal/orders"
	"github.com/solestack/storefront/internal/payments"
	"github.com/solestack/storefront/internal/returns"
	"github.com/solestack/storefront/internal/settlement"
	"github.com/solestack/storefront/internal/webhooks"
	"github.com/solestack/storefront/pkg/config"
	"github.com/solestack/storefront/pkg/enums"
	"github.com/solestack/storefront/pkg/logger"
	"github.com/solestack/storefront/pkg/redis"
)

// Store is the redis surface the HTTP layer needs.
type Store interface {
	redis.IdempotencyStore
	controllers.Pinger
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// Dependencies carries everything the router mounts. Gatherer defaults to
// the prometheus default registry.
type Dependencies struct {
	DB         controllers.Pinger
	Store      Store
	Checkout   checkoutsvc.Service
	Orders     orders.Service
	Returns    returns.Service
	Stock      ledger.Service
	Settlement *settlement.Handler
	Guard      *webhooks.Guard
	CardRail   payments.Rail
	CryptoRail payments.Rail
	Gatherer   prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Tracing(),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Store,
		}))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if deps.Settlement != nil && deps.Guard != nil {
		r.Route("/api/v1/webhooks", func(r chi.Router) {
			if deps.CardRail != nil {
				r.Post("/card", webhookcontrollers.Settlement(deps.CardRail, deps.Settlement, deps.Guard, logg))
			}
			if deps.CryptoRail != nil {
				r.Post("/crypto", webhookcontrollers.Settlement(deps.CryptoRail, deps.Settlement, deps.Guard, logg))
			}
		})
	}

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.CheckoutWindow,
		cfg.RateLimit.CheckoutIPLimit,
		cfg.RateLimit.CheckoutUserLimit,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleCustomer))
			r.Use(middleware.Idempotency(deps.Store, logg))
			r.With(middleware.RateLimit(checkoutPolicy, deps.Store, logg)).
				Post("/checkout", controllers.Checkout(deps.Checkout, logg))
			r.Get("/orders/{orderId}", ordercontrollers.CustomerGet(deps.Orders, logg))
		})

		r.Route("/staff", func(r chi.Router) {
			r.Use(middleware.RequireStaff(logg))
			r.Use(middleware.Idempotency(deps.Store, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.StaffList(deps.Orders, logg))
				r.Post("/fulfill", ordercontrollers.Fulfill(deps.Orders, logg))
				r.Post("/ship", ordercontrollers.Ship(deps.Orders, logg))
				r.Post("/deliver", ordercontrollers.Deliver(deps.Orders, logg))
				r.Post("/cancel", ordercontrollers.Cancel(deps.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.StaffGet(deps.Orders, logg))
				r.Post("/{orderId}/returns", ordercontrollers.CreateReturn(deps.Returns, logg))
				r.Get("/{orderId}/returns", ordercontrollers.ListReturns(deps.Returns, logg))
			})

			r.Route("/variants/{variantId}", func(r chi.Router) {
				r.Get("/", inventorycontrollers.Get(deps.Stock, logg))
				r.Post("/adjustments", inventorycontrollers.Adjust(deps.Stock, logg))
				r.Get("/audit", inventorycontrollers.Audit(deps.Stock, logg))
			})
		})
	})

	return r
}
