package controllers

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/boxoffice-backend/api/responses"
	"github.com/angelmondragon/boxoffice-backend/api/validators"
	"github.com/angelmondragon/boxoffice-backend/internal/purchasables"
	"github.com/angelmondragon/boxoffice-backend/internal/reservations"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
	"github.com/angelmondragon/boxoffice-backend/pkg/logger"
	"github.com/angelmondragon/boxoffice-backend/pkg/security"
	"github.com/angelmondragon/boxoffice-backend/pkg/spa"
)

const upAndRunning = "Up and running!"

// ReservationStatusReader loads the lightweight status projection used by the
// redirect routes.
type ReservationStatusReader interface {
	FindStatusAndValidation(ctx context.Context, reservationID string) (*reservations.StatusProjection, error)
}

// UpAndRunning answers HEAD / and GET /healthz for load balancers.
func UpAndRunning() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write([]byte(upAndRunning))
		}
	}
}

// SPAIndexParams carries everything the shell handler needs. Policy and
// EmbedAllowed are explicit so the nonce never lives in shared state.
type SPAIndexParams struct {
	Shell        *spa.Shell
	Policy       security.Policy
	EmbedAllowed bool
	Resolver     PurchasableResolver
	Logger       *logger.Logger
}

// SPAIndex serves the application shell. When the path names an event or a
// subscription that resolves, its public info is preloaded into <head>.
func SPAIndex(p SPAIndexParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		nonce, err := p.Policy.Apply(w.Header(), p.EmbedAllowed)
		if err != nil {
			responses.WriteError(ctx, p.Logger, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate csp nonce"))
			return
		}

		var preloads []spa.Preload
		if pc := preloadContext(ctx, r, p.Resolver); pc != nil {
			preloads = append(preloads, spa.Preload{
				ID:    "preload-" + pc.Type.URLSegment(),
				Param: pc.Identifier,
				Data: map[string]string{
					"identifier":  pc.Identifier,
					"displayName": pc.DisplayName,
					"currency":    pc.Currency,
				},
			})
		}

		var buf bytes.Buffer
		if err := p.Shell.Render(&buf, nonce, preloads...); err != nil {
			responses.WriteError(ctx, p.Logger, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render spa shell"))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

func preloadContext(ctx context.Context, r *http.Request, resolver PurchasableResolver) *purchasables.Context {
	if resolver == nil {
		return nil
	}
	kind := enums.PurchasableEvent
	identifier := chi.URLParam(r, "eventShortName")
	if identifier == "" {
		kind = enums.PurchasableSubscription
		identifier = chi.URLParam(r, "subscriptionId")
	}
	if identifier == "" {
		return nil
	}
	pc, err := resolver.Resolve(ctx, kind, identifier)
	if err != nil {
		return nil
	}
	return pc
}

// ReservationRedirect sends /{type}/{id}/reservation/{reservationId} to the
// page matching the reservation's state. A context that does not resolve
// sends the buyer to the site root.
func ReservationRedirect(kind enums.PurchasableType, resolver PurchasableResolver, statuses ReservationStatusReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, purchasable, path, err := resolvePath(r, logg, resolver, kind.String())
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome := reservations.OutcomeNotFound
		projection, err := statuses.FindStatusAndValidation(ctx, path.ReservationID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load reservation status"))
			return
		}
		if projection != nil &&
			projection.PurchaseContextType == purchasable.Type &&
			projection.PurchaseContextID == purchasable.ID {
			outcome = reservations.Classify(projection.Status, projection.Validated)
		}

		target := "/" + purchasable.Type.URLSegment() +
			"/" + url.PathEscape(path.PurchasableID) +
			"/reservation/" + url.PathEscape(path.ReservationID) +
			"/" + outcome.Segment()
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// EventShortLink expands /e/{eventShortName}.
func EventShortLink() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := validators.SanitizeString(chi.URLParam(r, "eventShortName"), 128)
		http.Redirect(w, r, "/event/"+url.PathEscape(name), http.StatusFound)
	}
}

// EventCodeLink expands /event/{eventShortName}/code/{code} and its short form
// to the public code API.
func EventCodeLink() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := validators.SanitizeString(chi.URLParam(r, "eventShortName"), 128)
		code := validators.SanitizeString(chi.URLParam(r, "code"), 128)
		http.Redirect(w, r, "/api/v2/public/event/"+url.PathEscape(name)+"/code/"+url.PathEscape(code), http.StatusFound)
	}
}
