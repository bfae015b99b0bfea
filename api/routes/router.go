package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angelmondragon/boxoffice-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/boxoffice-backend/api/controllers/webhooks"
	"github.com/angelmondragon/boxoffice-backend/api/middleware"
	"github.com/angelmondragon/boxoffice-backend/pkg/config"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	"github.com/angelmondragon/boxoffice-backend/pkg/logger"
	"github.com/angelmondragon/boxoffice-backend/pkg/metrics"
	"github.com/angelmondragon/boxoffice-backend/pkg/security"
	"github.com/angelmondragon/boxoffice-backend/pkg/spa"
)

const (
	StripeWebhookPath = "/api/payment/webhook/stripe"
	SquareWebhookPath = "/api/payment/webhook/square"

	operationName = "boxoffice-api"
)

// reservationPages are the SPA segments served under .../reservation/{id}/.
// waitingPayment is the legacy spelling still linked from old emails.
var reservationPages = []string{
	"book",
	"overview",
	"waitingPayment",
	"waiting-payment",
	"deferred-payment",
	"processing-payment",
	"success",
	"not-found",
	"error",
}

// SigningClient exposes the secret a provider signs its webhooks with.
type SigningClient interface {
	SigningSecret() string
}

// EventGuard deduplicates webhook deliveries.
type EventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Deps are the collaborators wired into handlers. Webhook services and the
// metrics gatherer are optional; their routes are skipped when nil.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Resolver controllers.PurchasableResolver
	Statuses controllers.ReservationStatusReader
	Payments controllers.PaymentService
	Shell    *spa.Shell

	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer

	StripeClient SigningClient
	StripeHooks  webhookcontrollers.StripeWebhookService
	StripeGuard  EventGuard

	SquareClient SigningClient
	SquareHooks  webhookcontrollers.SquareWebhookService
	SquareGuard  EventGuard
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)
	if d.HTTPMetrics != nil {
		r.Use(middleware.Metrics(d.HTTPMetrics))
	}

	r.Head("/", controllers.UpAndRunning())
	r.Get("/healthz", controllers.UpAndRunning())

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    d.DB,
			"redis": d.Redis,
		}))
	})

	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	mountSPA(r, d)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.CORS(cfg.Security.CORSAllowedOrigins))

			// Legacy addressing predates subscriptions and always means an event.
			r.Route("/events/{eventName}/reservation/{reservationId}/payment/{method}", func(r chi.Router) {
				r.Post("/init", controllers.PaymentInit(d.Payments, d.Resolver, logg, enums.PurchasableEvent.String()))
				r.Get("/status", controllers.PaymentStatus(d.Payments, d.Resolver, logg, enums.PurchasableEvent.String()))
			})
			r.Route("/{purchasableType}/{purchasableId}/reservation/{reservationId}/payment/{method}", func(r chi.Router) {
				r.Post("/init", controllers.PaymentInit(d.Payments, d.Resolver, logg, ""))
				r.Get("/status", controllers.PaymentStatus(d.Payments, d.Resolver, logg, ""))
			})
			r.Get("/v2/public/{purchasableType}/{purchasableId}/reservation/{reservationId}/transaction/force-check",
				controllers.PaymentForceCheck(d.Payments, d.Resolver, logg))
		})

		r.Route("/payment/webhook", func(r chi.Router) {
			if d.StripeHooks != nil && d.StripeClient != nil && d.StripeGuard != nil {
				r.Post("/stripe", webhookcontrollers.StripeWebhook(d.StripeHooks, d.StripeClient, d.StripeGuard, logg))
			}
			if d.SquareHooks != nil && d.SquareClient != nil && d.SquareGuard != nil {
				r.Post("/square", webhookcontrollers.SquareWebhook(d.SquareHooks, d.SquareClient, d.SquareGuard, cfg.App.BaseURL+SquareWebhookPath, logg))
			}
		})
	})

	return otelhttp.NewHandler(r, operationName)
}

func mountSPA(r chi.Router, d Deps) {
	index := controllers.SPAIndex(controllers.SPAIndexParams{
		Shell:        d.Shell,
		Policy:       security.PolicyFromConfig(d.Config.Security),
		EmbedAllowed: d.Config.Security.EmbedAllowed,
		Resolver:     d.Resolver,
		Logger:       d.Logger,
	})

	for _, path := range []string{
		"/",
		"/events-all",
		"/subscriptions-all",
		"/my-orders",
		"/my-profile",
		"/o/{organization}",
		"/o/{organization}/events-all",
		"/o/{organization}/subscriptions-all",
		"/event/{eventShortName}",
		"/event/{eventShortName}/poll",
		"/event/{eventShortName}/poll/{pollId}",
		"/event/{eventShortName}/ticket/{ticketId}/view",
		"/event/{eventShortName}/ticket/{ticketId}/update",
		"/event/{eventShortName}/ticket/{ticketId}/check-in/{ticketCodeHash}/waiting-room",
		"/subscription/{subscriptionId}",
	} {
		r.Get(path, index)
	}
	for _, page := range reservationPages {
		r.Get("/event/{eventShortName}/reservation/{reservationId}/"+page, index)
		r.Get("/subscription/{subscriptionId}/reservation/{reservationId}/"+page, index)
	}

	r.Get("/event/{eventShortName}/reservation/{reservationId}",
		controllers.ReservationRedirect(enums.PurchasableEvent, d.Resolver, d.Statuses, d.Logger))
	r.Get("/subscription/{subscriptionId}/reservation/{reservationId}",
		controllers.ReservationRedirect(enums.PurchasableSubscription, d.Resolver, d.Statuses, d.Logger))
	r.Get("/e/{eventShortName}", controllers.EventShortLink())
	r.Get("/event/{eventShortName}/code/{code}", controllers.EventCodeLink())
	r.Get("/e/{eventShortName}/c/{code}", controllers.EventCodeLink())
}
