package webhooks

import (
	"context"
	"net/http"

	"github.com/angelmondragon/boxoffice-backend/api/responses"
	pkgerrors "github.com/angelmondragon/boxoffice-backend/pkg/errors"
	"github.com/angelmondragon/boxoffice-backend/pkg/logger"
)

const maxWebhookBytes = 1 << 20

// eventGuard deduplicates provider deliveries by event id.
type eventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signingClient interface {
	SigningSecret() string
}

// dispatch runs handle once per event id. A failed handle forgets the id so
// the provider's retry is processed.
func dispatch(ctx context.Context, w http.ResponseWriter, logg *logger.Logger, guard eventGuard, eventID string, handle func(context.Context) error) {
	seen, err := guard.CheckAndMark(ctx, eventID)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	if seen {
		if logg != nil {
			logg.Debug(ctx, "duplicate webhook delivery ignored")
		}
		responses.WriteSuccess(w, nil)
		return
	}

	if err := handle(ctx); err != nil {
		if delErr := guard.Delete(context.WithoutCancel(ctx), eventID); delErr != nil && logg != nil {
			logg.Error(ctx, "release webhook idempotency key", delErr)
		}
		responses.WriteError(ctx, logg, w, err)
		return
	}
	if logg != nil {
		logg.Info(ctx, "webhook event processed")
	}
	responses.WriteSuccess(w, nil)
}
