package purchasables

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/boxoffice-backend/internal/reservations"
	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
)

type fixture struct {
	resolver     Resolver
	event        models.Event
	otherEvent   models.Event
	subscription models.SubscriptionDescriptor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Event{}, &models.SubscriptionDescriptor{}, &models.Reservation{}))

	org := uuid.New()
	f := fixture{
		event:        models.Event{ShortName: "summer-fest", DisplayName: "Summer Fest", OrganizationID: org, Currency: "EUR"},
		otherEvent:   models.Event{ShortName: "winter-fest", DisplayName: "Winter Fest", OrganizationID: org, Currency: "EUR"},
		subscription: models.SubscriptionDescriptor{Title: "Season pass", OrganizationID: org, Currency: "EUR"},
	}
	require.NoError(t, db.Create(&f.event).Error)
	require.NoError(t, db.Create(&f.otherEvent).Error)
	require.NoError(t, db.Create(&f.subscription).Error)

	require.NoError(t, db.Create(&models.Reservation{
		ID:                  "res-event",
		Status:              enums.ReservationPending,
		PurchaseContextType: enums.PurchasableEvent,
		PurchaseContextID:   f.event.ID.String(),
		FinalPrice:          decimal.NewFromInt(10),
		Currency:            "EUR",
	}).Error)
	require.NoError(t, db.Create(&models.Reservation{
		ID:                  "res-sub",
		Status:              enums.ReservationComplete,
		PurchaseContextType: enums.PurchasableSubscription,
		PurchaseContextID:   f.subscription.ID.String(),
		FinalPrice:          decimal.NewFromInt(99),
		Currency:            "EUR",
	}).Error)

	res, err := NewResolver(NewRepository(db), reservations.NewRepository(db))
	require.NoError(t, err)
	f.resolver = res
	return f
}

func TestResolveEventByShortName(t *testing.T) {
	f := newFixture(t)
	pc, err := f.resolver.Resolve(context.Background(), enums.PurchasableEvent, "summer-fest")
	require.NoError(t, err)
	assert.Equal(t, f.event.ID.String(), pc.ID)
	assert.Equal(t, "summer-fest", pc.Identifier)
	assert.Equal(t, f.event.OrganizationID, pc.OrganizationID)
	assert.Equal(t, "Summer Fest", pc.DisplayName)
}

func TestResolveSubscriptionByUUID(t *testing.T) {
	f := newFixture(t)
	pc, err := f.resolver.Resolve(context.Background(), enums.PurchasableSubscription, f.subscription.ID.String())
	require.NoError(t, err)
	assert.Equal(t, enums.PurchasableSubscription, pc.Type)
	assert.Equal(t, "Season pass", pc.DisplayName)
}

func TestResolveMissingIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Resolve(context.Background(), enums.PurchasableEvent, "nope")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.resolver.Resolve(context.Background(), enums.PurchasableSubscription, uuid.NewString())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestResolveRejectsMalformedInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Resolve(context.Background(), enums.PurchasableSubscription, "not-a-uuid")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.resolver.Resolve(context.Background(), enums.PurchasableEvent, "  ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.resolver.Resolve(context.Background(), enums.PurchasableType("TICKET"), "x")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestResolveReservationWithinContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pc, err := f.resolver.Resolve(ctx, enums.PurchasableEvent, "summer-fest")
	require.NoError(t, err)

	res, err := f.resolver.ResolveReservation(ctx, pc, "res-event")
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationPending, res.Status)
}

func TestResolveReservationFailsClosedAcrossContexts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.resolver.Resolve(ctx, enums.PurchasableEvent, "winter-fest")
	require.NoError(t, err)
	_, err = f.resolver.ResolveReservation(ctx, other, "res-event")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	sub, err := f.resolver.Resolve(ctx, enums.PurchasableSubscription, f.subscription.ID.String())
	require.NoError(t, err)
	_, err = f.resolver.ResolveReservation(ctx, sub, "res-event")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	res, err := f.resolver.ResolveReservation(ctx, sub, "res-sub")
	require.NoError(t, err)
	assert.Equal(t, "res-sub", res.ID)
}

func TestParseType(t *testing.T) {
	for _, raw := range []string{"event", "Events", "SUBSCRIPTION", "subscriptions"} {
		_, err := ParseType(raw)
		assert.NoError(t, err, raw)
	}
	_, err := ParseType("ticket")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
