package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/boxoffice-backend/api/responses"
	"github.com/angelmondragon/boxoffice-backend/api/validators"
	"github.com/angelmondragon/boxoffice-backend/internal/payments"
	"github.com/angelmondragon/boxoffice-backend/internal/purchasables"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	"github.com/angelmondragon/boxoffice-backend/pkg/logger"
)

// PurchasableResolver is the slice of the purchase context resolver the
// boundary needs.
type PurchasableResolver interface {
	Resolve(ctx context.Context, kind enums.PurchasableType, identifier string) (*purchasables.Context, error)
}

// PaymentService is the orchestrator surface exposed over HTTP.
type PaymentService interface {
	InitTransaction(ctx context.Context, purchasable *purchasables.Context, reservationID, rawMethod string, params map[string]string) (*payments.Token, error)
	GetTransactionStatus(ctx context.Context, purchasable *purchasables.Context, reservationID, rawMethod string) (payments.PaymentResult, error)
	ForceCheckStatus(ctx context.Context, purchasable *purchasables.Context, reservationID string) (payments.PaymentResult, error)
}

// resolvePath validates the URL addressing and resolves the purchase context.
// An unresolvable context is NOT_FOUND before any reservation lookup happens.
func resolvePath(r *http.Request, logg *logger.Logger, resolver PurchasableResolver, fallbackType string) (context.Context, *purchasables.Context, validators.PurchasePath, error) {
	ctx := r.Context()
	path, err := validators.ParsePurchasePath(r, fallbackType)
	if err != nil {
		return ctx, nil, path, err
	}
	kind, err := purchasables.ParseType(path.PurchasableType)
	if err != nil {
		return ctx, nil, path, err
	}
	if logg != nil {
		ctx = logg.WithPurchasable(ctx, kind.String(), path.PurchasableID)
		ctx = logg.WithReservation(ctx, path.ReservationID)
	}
	purchasable, err := resolver.Resolve(ctx, kind, path.PurchasableID)
	if err != nil {
		return ctx, nil, path, err
	}
	return ctx, purchasable, path, nil
}

// PaymentInit starts (or resumes) the provider handshake for a reservation.
// The form body is forwarded to the adapter untouched.
func PaymentInit(svc PaymentService, resolver PurchasableResolver, logg *logger.Logger, fallbackType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method, err := validators.PaymentMethodParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx, purchasable, path, err := resolvePath(r, logg, resolver, fallbackType)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params, err := validators.FormParams(w, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		token, err := svc.InitTransaction(ctx, purchasable, path.ReservationID, method, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, token)
	}
}

func PaymentStatus(svc PaymentService, resolver PurchasableResolver, logg *logger.Logger, fallbackType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method, err := validators.PaymentMethodParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx, purchasable, path, err := resolvePath(r, logg, resolver, fallbackType)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.GetTransactionStatus(ctx, purchasable, path.ReservationID, method)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		responses.WriteSuccess(w, result)
	}
}

func PaymentForceCheck(svc PaymentService, resolver PurchasableResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, purchasable, path, err := resolvePath(r, logg, resolver, "")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.ForceCheckStatus(ctx, purchasable, path.ReservationID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		responses.WriteSuccess(w, result)
	}
}
