package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/boxoffice-backend/internal/reservations"
	"github.com/angelmondragon/boxoffice-backend/pkg/config"
	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	"github.com/angelmondragon/boxoffice-backend/pkg/security"
	"github.com/angelmondragon/boxoffice-backend/pkg/spa"
)

type stubStatusReader struct {
	projection *reservations.StatusProjection
	err        error
}

func (s stubStatusReader) FindStatusAndValidation(context.Context, string) (*reservations.StatusProjection, error) {
	return s.projection, s.err
}

func redirectRequest(eventShortName, reservationID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return withParams(req, map[string]string{
		"eventShortName": eventShortName,
		"reservationId":  reservationID,
	})
}

func TestReservationRedirectMapsStatusToSegment(t *testing.T) {
	cases := map[enums.ReservationStatus]string{
		enums.ReservationPending:                     "book",
		enums.ReservationComplete:                    "success",
		enums.ReservationOfflinePayment:              "waiting-payment",
		enums.ReservationDeferredOfflinePayment:      "deferred-payment",
		enums.ReservationExternalProcessingPayment:   "processing-payment",
		enums.ReservationWaitingExternalConfirmation: "processing-payment",
		enums.ReservationStuck:                       "error",
	}
	for status, segment := range cases {
		reader := stubStatusReader{projection: &reservations.StatusProjection{
			ID:                  "res-1",
			Status:              status,
			PurchaseContextType: enums.PurchasableEvent,
			PurchaseContextID:   summerFest.ID,
		}}
		handler := ReservationRedirect(enums.PurchasableEvent, &stubResolver{}, reader, testLogger())
		resp := httptest.NewRecorder()
		handler(resp, redirectRequest("summer-fest", "res-1"))

		want := "/event/summer-fest/reservation/res-1/" + segment
		if resp.Code != http.StatusFound || resp.Header().Get("Location") != want {
			t.Fatalf("%s: expected 302 to %s, got %d %s", status, want, resp.Code, resp.Header().Get("Location"))
		}
	}
}

func TestReservationRedirectHidesForeignReservations(t *testing.T) {
	reader := stubStatusReader{projection: &reservations.StatusProjection{
		ID:                  "res-1",
		Status:              enums.ReservationComplete,
		PurchaseContextType: enums.PurchasableEvent,
		PurchaseContextID:   "another-event",
	}}
	handler := ReservationRedirect(enums.PurchasableEvent, &stubResolver{}, reader, testLogger())
	resp := httptest.NewRecorder()
	handler(resp, redirectRequest("summer-fest", "res-1"))

	if got := resp.Header().Get("Location"); got != "/event/summer-fest/reservation/res-1/not-found" {
		t.Fatalf("expected not-found redirect, got %q", got)
	}
}

func TestReservationRedirectUnknownContextGoesHome(t *testing.T) {
	handler := ReservationRedirect(enums.PurchasableEvent, &stubResolver{}, stubStatusReader{}, testLogger())
	resp := httptest.NewRecorder()
	handler(resp, redirectRequest("winter-fest", "res-1"))

	if resp.Code != http.StatusFound || resp.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect home, got %d %q", resp.Code, resp.Header().Get("Location"))
	}
}

func TestReservationRedirectSurfacesLookupFailure(t *testing.T) {
	handler := ReservationRedirect(enums.PurchasableEvent, &stubResolver{}, stubStatusReader{err: errors.New("db down")}, testLogger())
	resp := httptest.NewRecorder()
	handler(resp, redirectRequest("summer-fest", "res-1"))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}

func TestSPAIndexSetsFreshNoncePerRequest(t *testing.T) {
	handler := SPAIndex(SPAIndexParams{
		Shell:    spa.Fallback(),
		Policy:   security.PolicyFromConfig(config.SecurityConfig{}),
		Resolver: &stubResolver{},
		Logger:   testLogger(),
	})

	first := httptest.NewRecorder()
	handler(first, withParams(httptest.NewRequest(http.MethodGet, "/", nil), nil))
	second := httptest.NewRecorder()
	handler(second, withParams(httptest.NewRequest(http.MethodGet, "/", nil), nil))

	a, b := first.Header().Get(security.HeaderCSP), second.Header().Get(security.HeaderCSP)
	if a == "" || a == b {
		t.Fatalf("expected distinct csp headers, got %q and %q", a, b)
	}
	if got := first.Header().Get(security.HeaderFrameOptions); got != "DENY" {
		t.Fatalf("expected DENY frame options, got %q", got)
	}
	if strings.Contains(first.Body.String(), "preload-") {
		t.Fatalf("root page must not carry a preload")
	}
}

func TestSPAIndexSkipsPreloadForUnknownEvent(t *testing.T) {
	handler := SPAIndex(SPAIndexParams{
		Shell:    spa.Fallback(),
		Resolver: &stubResolver{},
		Logger:   testLogger(),
	})
	resp := httptest.NewRecorder()
	handler(resp, withParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"eventShortName": "ghost"}))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "preload-event") {
		t.Fatalf("unresolved event must not be preloaded")
	}
}

func TestUpAndRunningHeadHasNoBody(t *testing.T) {
	resp := httptest.NewRecorder()
	UpAndRunning()(resp, httptest.NewRequest(http.MethodHead, "/", nil))
	if resp.Code != http.StatusOK || resp.Body.Len() != 0 {
		t.Fatalf("unexpected HEAD response %d %q", resp.Code, resp.Body.String())
	}
}
