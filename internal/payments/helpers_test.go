package payments

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/boxoffice-backend/internal/purchasables"
	"github.com/angelmondragon/boxoffice-backend/internal/reservations"
	"github.com/angelmondragon/boxoffice-backend/pkg/config"
	"github.com/angelmondragon/boxoffice-backend/pkg/db"
	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	"github.com/angelmondragon/boxoffice-backend/pkg/logger"
	"github.com/angelmondragon/boxoffice-backend/pkg/outbox"
)

type fakeProvider struct {
	name string

	mu          sync.Mutex
	initCalls   int
	statusCalls int

	initFn   func(ctx context.Context, req InitRequest) (*Token, error)
	statusFn func(ctx context.Context, req StatusRequest) (PaymentResult, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Initialize(ctx context.Context, req InitRequest) (*Token, error) {
	f.mu.Lock()
	f.initCalls++
	f.mu.Unlock()
	if f.initFn != nil {
		return f.initFn(ctx, req)
	}
	return &Token{ClientSecret: "secret-" + req.Reservation.ID, ProviderReference: "pi_" + req.Reservation.ID}, nil
}

func (f *fakeProvider) CheckStatus(ctx context.Context, req StatusRequest) (PaymentResult, error) {
	f.mu.Lock()
	f.statusCalls++
	f.mu.Unlock()
	if f.statusFn != nil {
		return f.statusFn(ctx, req)
	}
	return Pending(""), nil
}

func (f *fakeProvider) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls, f.statusCalls
}

type memoryStatusCache struct {
	mu      sync.Mutex
	entries map[string]PaymentResult
}

func newMemoryStatusCache() *memoryStatusCache {
	return &memoryStatusCache{entries: map[string]PaymentResult{}}
}

func (c *memoryStatusCache) Get(_ context.Context, reservationID string, method enums.PaymentMethod) (PaymentResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[reservationID+":"+method.String()]
	return res, ok
}

func (c *memoryStatusCache) Put(_ context.Context, reservationID string, method enums.PaymentMethod, result PaymentResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[reservationID+":"+method.String()] = result
}

type harness struct {
	db        *gorm.DB
	svc       Service
	card      *fakeProvider
	offline   *fakeProvider
	claimer   *LocalClaimer
	cache     *memoryStatusCache
	event     *purchasables.Context
	otherCtx  *purchasables.Context
	confirmer *Confirmer
}

type harnessOption func(*ServiceParams)

func withProviderTimeout(d time.Duration) harnessOption {
	return func(p *ServiceParams) { p.Config.ProviderTimeout = d }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(
		&models.Event{},
		&models.SubscriptionDescriptor{},
		&models.Reservation{},
		&models.PaymentTransaction{},
		&models.OutboxEvent{},
	))

	org := uuid.New()
	require.NoError(t, gdb.Create(&models.Event{ShortName: "summer-fest", DisplayName: "Summer Fest", OrganizationID: org, Currency: "EUR"}).Error)
	require.NoError(t, gdb.Create(&models.Event{ShortName: "winter-fest", DisplayName: "Winter Fest", OrganizationID: org, Currency: "EUR"}).Error)

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard, Format: "json"})
	reservationRepo := reservations.NewRepository(gdb)
	resolver, err := purchasables.NewResolver(purchasables.NewRepository(gdb), reservationRepo)
	require.NoError(t, err)
	event, err := resolver.Resolve(context.Background(), enums.PurchasableEvent, "summer-fest")
	require.NoError(t, err)
	other, err := resolver.Resolve(context.Background(), enums.PurchasableEvent, "winter-fest")
	require.NoError(t, err)

	txRunner := db.Wrap(gdb)
	transactions := NewTransactionRepository(gdb)
	emitter := outbox.NewService(outbox.NewRepository(gdb), logg)
	confirmer, err := NewConfirmer(txRunner, reservationRepo, transactions, emitter, logg)
	require.NoError(t, err)

	h := &harness{
		db:        gdb,
		card:      &fakeProvider{name: "card"},
		offline:   &fakeProvider{name: "offline"},
		claimer:   NewLocalClaimer(),
		cache:     newMemoryStatusCache(),
		event:     event,
		otherCtx:  other,
		confirmer: confirmer,
	}
	registry, err := NewRegistry(map[enums.PaymentMethod]Provider{
		enums.PaymentMethodCreditCard:   h.card,
		enums.PaymentMethodBankTransfer: h.offline,
	})
	require.NoError(t, err)

	params := ServiceParams{
		Config: config.PaymentsConfig{
			ProviderTimeout: time.Second,
			InitClaimTTL:    time.Minute,
		},
		Logger:       logg,
		Tx:           txRunner,
		Resolver:     resolver,
		Reservations: reservationRepo,
		Transactions: transactions,
		Registry:     registry,
		Claimer:      h.claimer,
		Cache:        h.cache,
		Confirmer:    confirmer,
		Outbox:       emitter,
	}
	for _, opt := range opts {
		opt(&params)
	}
	h.svc, err = NewService(params)
	require.NoError(t, err)
	return h
}

func (h *harness) seedReservation(t *testing.T, id string, status enums.ReservationStatus, method *enums.PaymentMethod) {
	t.Helper()
	require.NoError(t, h.db.Create(&models.Reservation{
		ID:                  id,
		Status:              status,
		PurchaseContextType: enums.PurchasableEvent,
		PurchaseContextID:   h.event.ID,
		PaymentMethod:       method,
		FinalPrice:          decimal.RequireFromString("25.00"),
		Currency:            "EUR",
	}).Error)
}

func (h *harness) reservation(t *testing.T, id string) models.Reservation {
	t.Helper()
	var res models.Reservation
	require.NoError(t, h.db.Where("id = ?", id).First(&res).Error)
	return res
}

func (h *harness) outboxEvents(t *testing.T, eventType enums.OutboxEventType) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.db.Where("event_type = ?", eventType).Find(&rows).Error)
	return rows
}

func methodPtr(m enums.PaymentMethod) *enums.PaymentMethod { return &m }

// cancelingProvider adds Cancel to the card fake.
type cancelingProvider struct {
	*fakeProvider

	cancelMu  sync.Mutex
	canceled  []string
	cancelErr error
}

func (c *cancelingProvider) Cancel(_ context.Context, row *models.PaymentTransaction) error {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	if c.cancelErr != nil {
		return c.cancelErr
	}
	if row.ProviderReference != nil {
		c.canceled = append(c.canceled, *row.ProviderReference)
	}
	return nil
}

func withCardCanceler(c *cancelingProvider) harnessOption {
	return func(p *ServiceParams) {
		c.fakeProvider = p.Registry[enums.PaymentMethodCreditCard].(*fakeProvider)
		p.Registry[enums.PaymentMethodCreditCard] = c
	}
}
