// Package bootstrap assembles the payment stack shared by the API and the
// cron worker.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/boxoffice-backend/internal/payments"
	offlineprovider "github.com/angelmondragon/boxoffice-backend/internal/payments/providers/offline"
	squareprovider "github.com/angelmondragon/boxoffice-backend/internal/payments/providers/square"
	stripeprovider "github.com/angelmondragon/boxoffice-backend/internal/payments/providers/stripe"
	"github.com/angelmondragon/boxoffice-backend/internal/purchasables"
	"github.com/angelmondragon/boxoffice-backend/internal/reservations"
	"github.com/angelmondragon/boxoffice-backend/pkg/config"
	"github.com/angelmondragon/boxoffice-backend/pkg/db"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	"github.com/angelmondragon/boxoffice-backend/pkg/logger"
	"github.com/angelmondragon/boxoffice-backend/pkg/metrics"
	"github.com/angelmondragon/boxoffice-backend/pkg/outbox"
	"github.com/angelmondragon/boxoffice-backend/pkg/redis"
	squareclient "github.com/angelmondragon/boxoffice-backend/pkg/square"
	stripeclient "github.com/angelmondragon/boxoffice-backend/pkg/stripe"
)

type PaymentsParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	Registry prometheus.Registerer
}

// Payments is everything built around the transaction orchestrator. Stripe
// and Square are nil when their credentials are absent.
type Payments struct {
	Service      payments.Service
	Resolver     purchasables.Resolver
	Reservations reservations.Repository
	Transactions payments.TransactionRepository
	Confirmer    *payments.Confirmer
	Stripe       *stripeclient.Client
	Square       *squareclient.Client
}

func NewPayments(ctx context.Context, p PaymentsParams) (*Payments, error) {
	if p.Config == nil || p.Logger == nil || p.DB == nil {
		return nil, fmt.Errorf("config, logger and db are required")
	}
	cfg := p.Config
	gormDB := p.DB.DB()

	reservationRepo := reservations.NewRepository(gormDB)
	transactions := payments.NewTransactionRepository(gormDB)
	resolver, err := purchasables.NewResolver(purchasables.NewRepository(gormDB), reservationRepo)
	if err != nil {
		return nil, err
	}
	emitter := outbox.NewService(outbox.NewRepository(gormDB), p.Logger)
	confirmer, err := payments.NewConfirmer(p.DB, reservationRepo, transactions, emitter, p.Logger)
	if err != nil {
		return nil, err
	}

	out := &Payments{
		Resolver:     resolver,
		Reservations: reservationRepo,
		Transactions: transactions,
		Confirmer:    confirmer,
	}

	var card, external payments.Provider
	if cfg.Stripe.Enabled() {
		out.Stripe, err = stripeclient.NewClient(ctx, cfg.Stripe, p.Logger)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		if card, err = stripeprovider.New(out.Stripe); err != nil {
			return nil, err
		}
	}
	if cfg.Square.Enabled() {
		out.Square, err = squareclient.NewClient(ctx, cfg.Square, p.Logger)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		if external, err = squareprovider.New(out.Square); err != nil {
			return nil, err
		}
	}
	offline := offlineprovider.New(offlineprovider.Instructions{
		IBAN:   cfg.Payments.BankTransferIBAN,
		Holder: cfg.Payments.BankTransferHolder,
	})

	registry, err := BuildRegistry(ctx, p.Logger, cfg.Payments.EnabledMethods, card, external, offline)
	if err != nil {
		return nil, err
	}

	var claimer payments.Claimer
	var cache payments.StatusCache
	if cfg.FeatureFlags.LocalClaims || p.Redis == nil {
		claimer = payments.NewLocalClaimer()
	} else {
		if claimer, err = payments.NewRedisClaimer(p.Redis); err != nil {
			return nil, err
		}
		cache = payments.NewRedisStatusCache(p.Redis, cfg.Payments.StatusCacheTTL, p.Logger)
	}

	out.Service, err = payments.NewService(payments.ServiceParams{
		Config:       cfg.Payments,
		Logger:       p.Logger,
		Tx:           p.DB,
		Resolver:     resolver,
		Reservations: reservationRepo,
		Transactions: transactions,
		Registry:     registry,
		Claimer:      claimer,
		Cache:        cache,
		Confirmer:    confirmer,
		Outbox:       emitter,
		Metrics:      metrics.NewPaymentMetrics(p.Registry),
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BuildRegistry maps each enabled method onto its adapter. A gateway method
// whose provider is not configured is left out with a warning, so it behaves
// as disabled.
func BuildRegistry(ctx context.Context, logg *logger.Logger, enabled []string, card, external, offline payments.Provider) (payments.Registry, error) {
	entries := make(map[enums.PaymentMethod]payments.Provider, len(enabled))
	for _, raw := range enabled {
		method, err := enums.ParsePaymentMethod(raw)
		if err != nil {
			return nil, fmt.Errorf("enabled payment methods: %w", err)
		}
		var provider payments.Provider
		switch method {
		case enums.PaymentMethodCreditCard:
			provider = card
		case enums.PaymentMethodExternal:
			provider = external
		case enums.PaymentMethodBankTransfer, enums.PaymentMethodOnSite:
			provider = offline
		}
		if provider == nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "payment_method", method.String()), "payment method enabled without a configured provider")
			}
			continue
		}
		entries[method] = provider
	}
	return payments.NewRegistry(entries)
}
