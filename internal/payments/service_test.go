package payments

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
	"github.com/angelmondragon/boxoffice-backend/pkg/outbox"
)

func TestInitTransactionRejectsUnknownMethodWithoutProviderCall(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)

	_, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "bogus", nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.InitTransaction(context.Background(), h.event, "res-1", "on-site", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "disabled method must be rejected")

	initCalls, _ := h.card.calls()
	assert.Zero(t, initCalls)
}

func TestInitTransactionAcceptsLenientMethodNames(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)

	token, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "credit-card", nil)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentMethodCreditCard, token.PaymentMethod)
}

func TestInitTransactionPersistsTransactionAndEmits(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)
	var gotKey string
	h.card.initFn = func(_ context.Context, req InitRequest) (*Token, error) {
		gotKey = req.IdempotencyKey
		return &Token{ClientSecret: "cs_1", ProviderReference: "pi_1"}, nil
	}

	token, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", token.ClientSecret)
	assert.Equal(t, "card", token.Provider)
	assert.Equal(t, "res-1", token.ReservationID)
	assert.Equal(t, "res-res-1-CREDIT_CARD", gotKey)

	var row models.PaymentTransaction
	require.NoError(t, h.db.Where("reservation_id = ?", "res-1").First(&row).Error)
	assert.Equal(t, enums.TransactionPending, row.Status)
	require.NotNil(t, row.ProviderReference)
	assert.Equal(t, "pi_1", *row.ProviderReference)

	res := h.reservation(t, "res-1")
	require.NotNil(t, res.PaymentMethod)
	assert.Equal(t, enums.PaymentMethodCreditCard, *res.PaymentMethod)
	assert.Equal(t, enums.ReservationPending, res.Status)

	assert.Len(t, h.outboxEvents(t, enums.EventPaymentTransactionInitiated), 1)
}

func TestInitTransactionReturnsStoredTokenOnRepeat(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)

	first, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
	require.NoError(t, err)
	second, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
	require.NoError(t, err)

	assert.Equal(t, first.ClientSecret, second.ClientSecret)
	initCalls, _ := h.card.calls()
	assert.Equal(t, 1, initCalls)
}

func TestConcurrentInitCreatesSingleProviderTransaction(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)
	h.card.initFn = func(ctx context.Context, req InitRequest) (*Token, error) {
		time.Sleep(50 * time.Millisecond)
		return &Token{ClientSecret: "cs_once", ProviderReference: "pi_once"}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	secrets := make(chan string, callers)
	failures := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
			if err != nil {
				failures <- err
				return
			}
			secrets <- token.ClientSecret
		}()
	}
	wg.Wait()
	close(secrets)
	close(failures)

	for err := range failures {
		t.Fatalf("unexpected init failure: %v", err)
	}
	for secret := range secrets {
		assert.Equal(t, "cs_once", secret)
	}
	initCalls, _ := h.card.calls()
	assert.Equal(t, 1, initCalls)

	var count int64
	require.NoError(t, h.db.Model(&models.PaymentTransaction{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestInitTransactionConflictsWhileClaimHeldElsewhere(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)

	release, ok, err := h.claimer.Acquire(context.Background(), "res-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	_, err = h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	initCalls, _ := h.card.calls()
	assert.Zero(t, initCalls)
}

func TestInitTransactionRequiresPendingReservation(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationComplete, nil)

	_, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestInitTransactionMissingReservationIsNotFound(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)

	_, err := h.svc.InitTransaction(context.Background(), h.otherCtx, "res-1", "CREDIT_CARD", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	initCalls, _ := h.card.calls()
	assert.Zero(t, initCalls)
}

func TestInitTransactionSurfacesProviderFailures(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)

	h.card.initFn = func(context.Context, InitRequest) (*Token, error) {
		return nil, pkgerrors.New(pkgerrors.CodePaymentRejected, "card declined").
			WithDetails(map[string]any{"reason": "card_declined"})
	}
	_, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentRejected))

	h.card.initFn = func(context.Context, InitRequest) (*Token, error) {
		return nil, errors.New("connection reset")
	}
	_, err = h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	var count int64
	require.NoError(t, h.db.Model(&models.PaymentTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestInitTransactionTimeoutIsDependencyError(t *testing.T) {
	h := newHarness(t, withProviderTimeout(20*time.Millisecond))
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)
	h.card.initFn = func(ctx context.Context, _ InitRequest) (*Token, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestGetTransactionStatusIsIdempotentAndCached(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)
	_, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
	require.NoError(t, err)
	h.card.statusFn = func(_ context.Context, req StatusRequest) (PaymentResult, error) {
		if req.Transaction == nil {
			return PaymentResult{}, ErrNoTransaction
		}
		return Pending("awaiting card"), nil
	}

	first, err := h.svc.GetTransactionStatus(context.Background(), h.event, "res-1", "CREDIT_CARD")
	require.NoError(t, err)
	second, err := h.svc.GetTransactionStatus(context.Background(), h.event, "res-1", "credit_card")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, enums.PaymentResultPending, first.Type)
	_, statusCalls := h.card.calls()
	assert.Equal(t, 1, statusCalls)
	assert.Equal(t, enums.ReservationPending, h.reservation(t, "res-1").Status)
}

func TestGetTransactionStatusDoesNotConfirm(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, methodPtr(enums.PaymentMethodCreditCard))
	h.card.statusFn = func(context.Context, StatusRequest) (PaymentResult, error) {
		return Successful("pi_1"), nil
	}

	res, err := h.svc.GetTransactionStatus(context.Background(), h.event, "res-1", "CREDIT_CARD")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentResultSuccessful, res.Type)
	assert.Equal(t, enums.ReservationPending, h.reservation(t, "res-1").Status)
	assert.Empty(t, h.outboxEvents(t, enums.EventReservationPaymentConfirmed))
}

func TestGetTransactionStatusTimeoutIsPendingAndNotCached(t *testing.T) {
	h := newHarness(t, withProviderTimeout(20*time.Millisecond))
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)
	block := make(chan struct{})
	defer close(block)
	h.card.statusFn = func(context.Context, StatusRequest) (PaymentResult, error) {
		<-block
		return Successful(""), nil
	}

	start := time.Now()
	res, err := h.svc.GetTransactionStatus(context.Background(), h.event, "res-1", "CREDIT_CARD")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, enums.PaymentResultPending, res.Type)
	assert.Equal(t, providerUnavailableMessage, res.Message)

	_, cached := h.cache.Get(context.Background(), "res-1", enums.PaymentMethodCreditCard)
	assert.False(t, cached)
}

func TestGetTransactionStatusProviderErrorIsPending(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)
	h.card.statusFn = func(context.Context, StatusRequest) (PaymentResult, error) {
		return PaymentResult{}, errors.New("503 from provider")
	}

	res, err := h.svc.GetTransactionStatus(context.Background(), h.event, "res-1", "CREDIT_CARD")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentResultPending, res.Type)
}

func TestGetTransactionStatusWithoutTransactionIsNotFound(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)
	h.card.statusFn = func(_ context.Context, req StatusRequest) (PaymentResult, error) {
		if req.Transaction == nil {
			return PaymentResult{}, ErrNoTransaction
		}
		return Pending(""), nil
	}

	_, err := h.svc.GetTransactionStatus(context.Background(), h.event, "res-1", "CREDIT_CARD")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetTransactionStatusRejectsBogusMethod(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)

	_, err := h.svc.GetTransactionStatus(context.Background(), h.event, "res-1", "bogus")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, statusCalls := h.card.calls()
	assert.Zero(t, statusCalls)
}

func TestForceCheckAcrossContextsIsNotFound(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, methodPtr(enums.PaymentMethodCreditCard))

	_, err := h.svc.ForceCheckStatus(context.Background(), h.otherCtx, "res-1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, statusCalls := h.card.calls()
	assert.Zero(t, statusCalls)
}

func TestForceCheckWithoutPaymentMethodIsNotFound(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)

	_, err := h.svc.ForceCheckStatus(context.Background(), h.event, "res-1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestForceCheckSuccessConfirmsReservation(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)
	_, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
	require.NoError(t, err)

	h.cache.Put(context.Background(), "res-1", enums.PaymentMethodCreditCard, Pending("stale"))
	h.card.statusFn = func(context.Context, StatusRequest) (PaymentResult, error) {
		return Successful("pi_res-1"), nil
	}

	res, err := h.svc.ForceCheckStatus(context.Background(), h.event, "res-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentResultSuccessful, res.Type)
	assert.Equal(t, enums.ReservationComplete, h.reservation(t, "res-1").Status)

	var row models.PaymentTransaction
	require.NoError(t, h.db.Where("reservation_id = ?", "res-1").First(&row).Error)
	assert.Equal(t, enums.TransactionSucceeded, row.Status)

	events := h.outboxEvents(t, enums.EventReservationPaymentConfirmed)
	require.Len(t, events, 1)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var payload map[string]any
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, SourceForceCheck, payload["source"])
	assert.Equal(t, "PENDING", payload["previousStatus"])

	cached, ok := h.cache.Get(context.Background(), "res-1", enums.PaymentMethodCreditCard)
	require.True(t, ok)
	assert.Equal(t, enums.PaymentResultSuccessful, cached.Type)

	again, err := h.svc.ForceCheckStatus(context.Background(), h.event, "res-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentResultSuccessful, again.Type)
	assert.Len(t, h.outboxEvents(t, enums.EventReservationPaymentConfirmed), 1)
}

func TestForceCheckProviderFailureIsPending(t *testing.T) {
	h := newHarness(t, withProviderTimeout(20*time.Millisecond))
	h.seedReservation(t, "res-1", enums.ReservationWaitingExternalConfirmation, methodPtr(enums.PaymentMethodCreditCard))
	h.card.statusFn = func(ctx context.Context, _ StatusRequest) (PaymentResult, error) {
		<-ctx.Done()
		return PaymentResult{}, ctx.Err()
	}

	res, err := h.svc.ForceCheckStatus(context.Background(), h.event, "res-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentResultPending, res.Type)
	assert.Equal(t, enums.ReservationWaitingExternalConfirmation, h.reservation(t, "res-1").Status)
}

func TestForceCheckFailureMarksTransactionFailed(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)
	_, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
	require.NoError(t, err)
	h.card.statusFn = func(context.Context, StatusRequest) (PaymentResult, error) {
		return Failed("card declined", "pi_res-1"), nil
	}

	res, err := h.svc.ForceCheckStatus(context.Background(), h.event, "res-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentResultFailed, res.Type)
	assert.Equal(t, enums.ReservationPending, h.reservation(t, "res-1").Status)

	var row models.PaymentTransaction
	require.NoError(t, h.db.Where("reservation_id = ?", "res-1").First(&row).Error)
	assert.Equal(t, enums.TransactionFailed, row.Status)
	require.NotNil(t, row.FailureReason)
	assert.Equal(t, "card declined", *row.FailureReason)
	assert.Len(t, h.outboxEvents(t, enums.EventPaymentTransactionFailed), 1)
}

func TestOfflineInitUsesRegisteredAdapter(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)

	_, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "bank_transfer", nil)
	require.NoError(t, err)
	offlineInit, _ := h.offline.calls()
	cardInit, _ := h.card.calls()
	assert.Equal(t, 1, offlineInit)
	assert.Zero(t, cardInit)
}

func TestReconcileConfirmsWithReconcileSource(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)
	_, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
	require.NoError(t, err)
	h.card.statusFn = func(context.Context, StatusRequest) (PaymentResult, error) {
		return Successful("pi_res-1"), nil
	}

	res := h.reservation(t, "res-1")
	result, err := h.svc.Reconcile(context.Background(), &res)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentResultSuccessful, result.Type)
	assert.Equal(t, enums.ReservationComplete, h.reservation(t, "res-1").Status)

	events := h.outboxEvents(t, enums.EventReservationPaymentConfirmed)
	require.Len(t, events, 1)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var payload map[string]any
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, SourceReconcile, payload["source"])
}

func TestReconcileRejectsNilReservation(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Reconcile(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestInitTransactionSurvivesCallerCancellation(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.card.initFn = func(callCtx context.Context, req InitRequest) (*Token, error) {
		// The first caller disconnects while the provider is working.
		cancel()
		if err := callCtx.Err(); err != nil {
			return nil, err
		}
		return &Token{ClientSecret: "cs_1", ProviderReference: "pi_1"}, nil
	}

	token, err := h.svc.InitTransaction(ctx, h.event, "res-1", "CREDIT_CARD", nil)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", token.ClientSecret)

	var row models.PaymentTransaction
	require.NoError(t, h.db.Where("reservation_id = ?", "res-1").First(&row).Error)
	require.NotNil(t, row.ProviderReference)
	assert.Equal(t, "pi_1", *row.ProviderReference)
}

func TestSwitchingMethodCancelsOpenCardPayment(t *testing.T) {
	canceler := &cancelingProvider{}
	h := newHarness(t, withCardCanceler(canceler))
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)

	_, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
	require.NoError(t, err)
	_, err = h.svc.InitTransaction(context.Background(), h.event, "res-1", "BANK_TRANSFER", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"pi_res-1"}, canceler.canceled)
	var row models.PaymentTransaction
	require.NoError(t, h.db.Where("reservation_id = ?", "res-1").First(&row).Error)
	assert.Equal(t, enums.PaymentMethodBankTransfer, row.Method)
	assert.Equal(t, enums.PaymentMethodBankTransfer, *h.reservation(t, "res-1").PaymentMethod)
}

func TestSwitchingMethodKeepsCardPaymentWhenCancelFails(t *testing.T) {
	canceler := &cancelingProvider{
		cancelErr: pkgerrors.New(pkgerrors.CodeStateConflict, "previous card payment is already being settled"),
	}
	h := newHarness(t, withCardCanceler(canceler))
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)

	_, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
	require.NoError(t, err)
	_, err = h.svc.InitTransaction(context.Background(), h.event, "res-1", "BANK_TRANSFER", nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	offlineInit, _ := h.offline.calls()
	assert.Zero(t, offlineInit)
	var row models.PaymentTransaction
	require.NoError(t, h.db.Where("reservation_id = ?", "res-1").First(&row).Error)
	assert.Equal(t, enums.PaymentMethodCreditCard, row.Method)
	require.NotNil(t, row.ProviderReference)
	assert.Equal(t, "pi_res-1", *row.ProviderReference)
}

func TestLateSuccessOverridesRecordedFailure(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)
	_, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "CREDIT_CARD", nil)
	require.NoError(t, err)

	h.card.statusFn = func(context.Context, StatusRequest) (PaymentResult, error) {
		return Failed("processing error", "pi_res-1"), nil
	}
	_, err = h.svc.ForceCheckStatus(context.Background(), h.event, "res-1")
	require.NoError(t, err)

	h.card.statusFn = func(context.Context, StatusRequest) (PaymentResult, error) {
		return Successful("pi_res-1"), nil
	}
	res, err := h.svc.ForceCheckStatus(context.Background(), h.event, "res-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentResultSuccessful, res.Type)
	assert.Equal(t, enums.ReservationComplete, h.reservation(t, "res-1").Status)

	var row models.PaymentTransaction
	require.NoError(t, h.db.Where("reservation_id = ?", "res-1").First(&row).Error)
	assert.Equal(t, enums.TransactionSucceeded, row.Status)
	assert.Nil(t, row.FailureReason)
}

func TestSupersededConfirmationLeavesCurrentTransaction(t *testing.T) {
	h := newHarness(t)
	h.seedReservation(t, "res-1", enums.ReservationPending, nil)
	_, err := h.svc.InitTransaction(context.Background(), h.event, "res-1", "BANK_TRANSFER", nil)
	require.NoError(t, err)

	changed, err := h.confirmer.Confirm(context.Background(), Confirmation{
		ReservationID: "res-1",
		Method:        enums.PaymentMethodCreditCard,
		Provider:      "card",
		GatewayID:     "pi_old",
		Source:        SourceWebhook,
		Superseded:    true,
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, enums.ReservationComplete, h.reservation(t, "res-1").Status)

	var row models.PaymentTransaction
	require.NoError(t, h.db.Where("reservation_id = ?", "res-1").First(&row).Error)
	assert.Equal(t, enums.PaymentMethodBankTransfer, row.Method)
	assert.Equal(t, enums.TransactionPending, row.Status)
}
