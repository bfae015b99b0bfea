package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/angelmondragon/boxoffice-backend/internal/purchasables"
	"github.com/angelmondragon/boxoffice-backend/internal/reservations"
	"github.com/angelmondragon/boxoffice-backend/pkg/config"
	"github.com/angelmondragon/boxoffice-backend/pkg/db"
	"github.com/angelmondragon/boxoffice-backend/pkg/db/models"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
	"github.com/angelmondragon/boxoffice-backend/pkg/logger"
	"github.com/angelmondragon/boxoffice-backend/pkg/metrics"
	"github.com/angelmondragon/boxoffice-backend/pkg/outbox"
	"github.com/angelmondragon/boxoffice-backend/pkg/outbox/payloads"
)

const (
	tracerName = "github.com/angelmondragon/boxoffice-backend/internal/payments"

	opInitialize  = "initialize"
	opCheckStatus = "check_status"
	opCancel      = "cancel"

	providerUnavailableMessage = "provider unavailable"
)

// Service initializes payment transactions and reports on them.
type Service interface {
	InitTransaction(ctx context.Context, purchasable *purchasables.Context, reservationID, rawMethod string, params map[string]string) (*Token, error)
	GetTransactionStatus(ctx context.Context, purchasable *purchasables.Context, reservationID, rawMethod string) (PaymentResult, error)
	ForceCheckStatus(ctx context.Context, purchasable *purchasables.Context, reservationID string) (PaymentResult, error)
	// Reconcile re-checks an already loaded reservation outside any request scope.
	Reconcile(ctx context.Context, reservation *models.Reservation) (PaymentResult, error)
}

type reservationResolver interface {
	ResolveReservation(ctx context.Context, purchasable *purchasables.Context, reservationID string) (*models.Reservation, error)
}

type ServiceParams struct {
	Config       config.PaymentsConfig
	Logger       *logger.Logger
	Tx           db.TxRunner
	Resolver     reservationResolver
	Reservations reservations.Repository
	Transactions TransactionRepository
	Registry     Registry
	Claimer      Claimer
	Cache        StatusCache
	Confirmer    *Confirmer
	Outbox       outbox.Emitter
	Metrics      *metrics.PaymentMetrics
	Tracer       trace.Tracer
}

type service struct {
	cfg          config.PaymentsConfig
	logg         *logger.Logger
	tx           db.TxRunner
	resolver     reservationResolver
	reservations reservations.Repository
	transactions TransactionRepository
	registry     Registry
	claimer      Claimer
	cache        StatusCache
	confirmer    *Confirmer
	outbox       outbox.Emitter
	metrics      *metrics.PaymentMetrics
	tracer       trace.Tracer
	inflight     singleflight.Group
}

// NewService builds the transaction orchestrator.
func NewService(p ServiceParams) (Service, error) {
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Resolver == nil {
		return nil, fmt.Errorf("reservation resolver required")
	}
	if p.Reservations == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	if p.Transactions == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if len(p.Registry) == 0 {
		return nil, fmt.Errorf("at least one payment provider required")
	}
	if p.Claimer == nil {
		return nil, fmt.Errorf("init claimer required")
	}
	if p.Confirmer == nil {
		return nil, fmt.Errorf("confirmer required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Cache == nil {
		p.Cache = noopStatusCache{}
	}
	if p.Tracer == nil {
		p.Tracer = otel.Tracer(tracerName)
	}
	if p.Config.ProviderTimeout <= 0 {
		p.Config.ProviderTimeout = 10 * time.Second
	}
	if p.Config.InitClaimTTL <= 0 {
		p.Config.InitClaimTTL = 30 * time.Second
	}
	return &service{
		cfg:          p.Config,
		logg:         p.Logger,
		tx:           p.Tx,
		resolver:     p.Resolver,
		reservations: p.Reservations,
		transactions: p.Transactions,
		registry:     p.Registry,
		claimer:      p.Claimer,
		cache:        p.Cache,
		confirmer:    p.Confirmer,
		outbox:       p.Outbox,
		metrics:      p.Metrics,
		tracer:       p.Tracer,
	}, nil
}

// IdempotencyKey is the provider idempotency key for a reservation and method.
func IdempotencyKey(reservationID string, method enums.PaymentMethod) string {
	return fmt.Sprintf("res-%s-%s", reservationID, method)
}

func (s *service) lookupProvider(rawMethod string) (enums.PaymentMethod, Provider, error) {
	method, ok := enums.LookupPaymentMethod(rawMethod)
	if !ok {
		return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"method": rawMethod})
	}
	provider, ok := s.registry.Lookup(method)
	if !ok {
		return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method not enabled").
			WithDetails(map[string]any{"method": method.String()})
	}
	return method, provider, nil
}

func (s *service) InitTransaction(ctx context.Context, purchasable *purchasables.Context, reservationID, rawMethod string, params map[string]string) (*Token, error) {
	method, provider, err := s.lookupProvider(rawMethod)
	if err != nil {
		return nil, err
	}
	reservation, err := s.resolver.ResolveReservation(ctx, purchasable, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation.Status != enums.ReservationPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is not awaiting payment").
			WithDetails(map[string]any{"status": reservation.Status.Raw()})
	}

	ctx = s.logg.WithReservation(ctx, reservation.ID)
	ctx = s.logg.WithField(ctx, "payment_method", method.String())

	key := reservation.ID + "|" + method.String()
	// Followers share the leader's work, so a leader that disconnects must not cancel it.
	flightCtx := context.WithoutCancel(ctx)
	value, err, shared := s.inflight.Do(key, func() (any, error) {
		return s.initialize(flightCtx, purchasable, reservation, method, provider, params)
	})
	if shared {
		s.logg.Debug(ctx, "payment initialization shared with concurrent request")
	}
	if err != nil {
		return nil, err
	}
	return value.(*Token), nil
}

func (s *service) initialize(ctx context.Context, purchasable *purchasables.Context, reservation *models.Reservation, method enums.PaymentMethod, provider Provider, params map[string]string) (*Token, error) {
	if token, err := s.pendingToken(ctx, reservation.ID, method); err != nil || token != nil {
		return token, err
	}

	release, acquired, err := s.claimer.Acquire(ctx, reservation.ID, s.cfg.InitClaimTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim payment initialization")
	}
	if !acquired {
		token, err := s.pendingToken(ctx, reservation.ID, method)
		if err != nil {
			return nil, err
		}
		if token != nil {
			return token, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment initialization already in progress")
	}
	defer release()

	// A holder that finished between our first read and our claim.
	if token, err := s.pendingToken(ctx, reservation.ID, method); err != nil || token != nil {
		return token, err
	}
	if err := s.cancelSuperseded(ctx, reservation.ID, method); err != nil {
		return nil, err
	}

	req := InitRequest{
		Reservation:    reservation,
		Method:         method,
		IdempotencyKey: IdempotencyKey(reservation.ID, method),
		Params:         params,
	}
	if purchasable != nil {
		req.PurchasableType = purchasable.Type
		req.PurchasableID = purchasable.ID
		req.DisplayName = purchasable.DisplayName
	}

	var token *Token
	err = s.callProvider(ctx, provider, opInitialize, func(callCtx context.Context) error {
		var callErr error
		token, callErr = provider.Initialize(callCtx, req)
		return callErr
	})
	if err != nil {
		mapped := initFailure(err)
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payment initialization failed")
		return nil, mapped
	}
	if token == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider returned no token")
	}
	token.ReservationID = reservation.ID
	token.PaymentMethod = method
	if token.Provider == "" {
		token.Provider = provider.Name()
	}
	if token.ExpiresAt == nil && reservation.ExpiresAt != nil {
		expires := *reservation.ExpiresAt
		token.ExpiresAt = &expires
	}

	if err := s.persistInitialization(ctx, reservation.ID, method, req.IdempotencyKey, token); err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "payment transaction initialized")
	return token, nil
}

// pendingToken returns the stored token when a transaction for this method is still open.
func (s *service) pendingToken(ctx context.Context, reservationID string, method enums.PaymentMethod) (*Token, error) {
	row, err := s.transactions.FindByReservation(ctx, reservationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
	}
	if row == nil || row.Method != method || row.Status != enums.TransactionPending || len(row.Token) == 0 {
		return nil, nil
	}
	var token Token
	if err := json.Unmarshal(row.Token, &token); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode stored payment token")
	}
	if row.ProviderReference != nil {
		token.ProviderReference = *row.ProviderReference
	}
	return &token, nil
}

// cancelSuperseded voids the open transaction of another method before its row
// is replaced, so the old provider cannot settle a payment nobody tracks.
func (s *service) cancelSuperseded(ctx context.Context, reservationID string, method enums.PaymentMethod) error {
	row, err := s.transactions.FindByReservation(ctx, reservationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
	}
	if row == nil || row.Method == method || row.Status != enums.TransactionPending {
		return nil
	}
	previous, ok := s.registry.Lookup(row.Method)
	if !ok {
		return nil
	}
	canceler, ok := previous.(Canceler)
	if !ok {
		return nil
	}
	err = s.callProvider(ctx, previous, opCancel, func(callCtx context.Context) error {
		return canceler.Cancel(callCtx, row)
	})
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"error":           err.Error(),
			"previous_method": row.Method.String(),
		}), "cancel superseded payment failed")
		return initFailure(err)
	}
	s.logg.Info(s.logg.WithField(ctx, "previous_method", row.Method.String()), "superseded payment canceled")
	return nil
}

func (s *service) persistInitialization(ctx context.Context, reservationID string, method enums.PaymentMethod, idempotencyKey string, token *Token) error {
	encoded, err := json.Marshal(token)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode payment token")
	}
	row := &models.PaymentTransaction{
		ReservationID:  reservationID,
		Method:         method,
		Provider:       token.Provider,
		IdempotencyKey: idempotencyKey,
		Status:         enums.TransactionPending,
		Token:          encoded,
	}
	if token.ProviderReference != "" {
		ref := token.ProviderReference
		row.ProviderReference = &ref
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.transactions.WithTx(tx).Save(ctx, row); err != nil {
			return err
		}
		if err := s.reservations.WithTx(tx).SetPaymentMethod(ctx, reservationID, method); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentTransactionInitiated,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   row.ID.String(),
			Actor:         &outbox.ActorRef{Source: "api"},
			Data: payloads.PaymentTransactionInitiatedEvent{
				TransactionID: row.ID.String(),
				ReservationID: reservationID,
				PaymentMethod: method.String(),
				Provider:      row.Provider,
			},
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, "ux_payment_transactions_reservation") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment initialization already in progress")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment transaction")
	}
	return nil
}

func (s *service) GetTransactionStatus(ctx context.Context, purchasable *purchasables.Context, reservationID, rawMethod string) (PaymentResult, error) {
	method, provider, err := s.lookupProvider(rawMethod)
	if err != nil {
		return PaymentResult{}, err
	}
	reservation, err := s.resolver.ResolveReservation(ctx, purchasable, reservationID)
	if err != nil {
		return PaymentResult{}, err
	}
	ctx = s.logg.WithReservation(ctx, reservation.ID)

	if cached, ok := s.cache.Get(ctx, reservation.ID, method); ok {
		s.metrics.IncResult(method.String(), cached.Type.String())
		return cached, nil
	}

	result, err := s.checkStatus(ctx, reservation, method, provider)
	if err != nil {
		return PaymentResult{}, err
	}
	return result, nil
}

func (s *service) ForceCheckStatus(ctx context.Context, purchasable *purchasables.Context, reservationID string) (PaymentResult, error) {
	reservation, err := s.resolver.ResolveReservation(ctx, purchasable, reservationID)
	if err != nil {
		return PaymentResult{}, err
	}
	return s.recheck(ctx, reservation, SourceForceCheck)
}

func (s *service) Reconcile(ctx context.Context, reservation *models.Reservation) (PaymentResult, error) {
	if reservation == nil {
		return PaymentResult{}, pkgerrors.New(pkgerrors.CodeValidation, "reservation required")
	}
	return s.recheck(ctx, reservation, SourceReconcile)
}

// recheck queries the provider bound to the reservation's payment method and
// applies a definitive outcome.
func (s *service) recheck(ctx context.Context, reservation *models.Reservation, source string) (PaymentResult, error) {
	if reservation.PaymentMethod == nil {
		return PaymentResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "no payment method associated with reservation")
	}
	method := *reservation.PaymentMethod
	ctx = s.logg.WithReservation(ctx, reservation.ID)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"payment_method": method.String(),
		"source":         source,
	})

	provider, ok := s.registry.Lookup(method)
	if !ok {
		s.logg.Warn(ctx, "status re-check for a payment method that is no longer enabled")
		return Pending(providerUnavailableMessage), nil
	}

	result, err := s.checkStatus(ctx, reservation, method, provider)
	if err != nil {
		return PaymentResult{}, err
	}
	if err := s.applyOutcome(ctx, reservation, method, provider, result, source); err != nil {
		return PaymentResult{}, err
	}
	return result, nil
}

// checkStatus asks the provider and caches definitive answers. Provider
// failures are reported as PENDING and never cached.
func (s *service) checkStatus(ctx context.Context, reservation *models.Reservation, method enums.PaymentMethod, provider Provider) (PaymentResult, error) {
	row, err := s.transactions.FindByReservation(ctx, reservation.ID)
	if err != nil {
		return PaymentResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
	}
	if row != nil && row.Method != method {
		row = nil
	}

	var result PaymentResult
	err = s.callProvider(ctx, provider, opCheckStatus, func(callCtx context.Context) error {
		var callErr error
		result, callErr = provider.CheckStatus(callCtx, StatusRequest{
			Reservation: reservation,
			Method:      method,
			Transaction: row,
		})
		return callErr
	})
	if errors.Is(err, ErrNoTransaction) {
		return PaymentResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	if err != nil || !result.Type.IsValid() {
		if err == nil {
			err = fmt.Errorf("provider returned result type %q", result.Type)
		}
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payment status query failed")
		s.metrics.IncResult(method.String(), enums.PaymentResultPending.String())
		return Pending(providerUnavailableMessage), nil
	}

	s.cache.Put(ctx, reservation.ID, method, result)
	s.metrics.IncResult(method.String(), result.Type.String())
	return result, nil
}

func (s *service) applyOutcome(ctx context.Context, reservation *models.Reservation, method enums.PaymentMethod, provider Provider, result PaymentResult, source string) error {
	in := Confirmation{
		ReservationID: reservation.ID,
		Method:        method,
		Provider:      provider.Name(),
		GatewayID:     result.GatewayID,
		Source:        source,
		Reason:        result.Message,
	}
	switch result.Type {
	case enums.PaymentResultSuccessful:
		if !reservation.Status.AwaitingProviderConfirmation() {
			return nil
		}
		if _, err := s.confirmer.Confirm(ctx, in); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirm reservation payment")
		}
	case enums.PaymentResultFailed:
		if _, err := s.confirmer.RecordFailure(ctx, in); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment failure")
		}
	}
	return nil
}

type callOutcome struct {
	err error
}

// callProvider bounds fn by the provider timeout even when the adapter
// ignores its context.
func (s *service) callProvider(ctx context.Context, provider Provider, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	callCtx, span := s.tracer.Start(callCtx, "payments."+op, trace.WithAttributes(
		attribute.String("payment.provider", provider.Name()),
	))
	defer span.End()

	start := time.Now()
	done := make(chan callOutcome, 1)
	go func() {
		done <- callOutcome{err: fn(callCtx)}
	}()

	var err error
	select {
	case out := <-done:
		err = out.err
	case <-callCtx.Done():
		err = callCtx.Err()
	}

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.metrics.ObserveCall(provider.Name(), op, outcome, time.Since(start))
	return err
}

func initFailure(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider timed out")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider unavailable")
}
