package reservations

import "github.com/angelmondragon/boxoffice-backend/pkg/enums"

// RoutingOutcome is the page a buyer is sent to for a reservation.
type RoutingOutcome int

const (
	OutcomeNotFound RoutingOutcome = iota
	OutcomeBook
	OutcomeOverview
	OutcomeSuccess
	OutcomeWaitingPayment
	OutcomeDeferredPayment
	OutcomeProcessingPayment
	OutcomeError
)

var segments = map[RoutingOutcome]string{
	OutcomeNotFound:          "not-found",
	OutcomeBook:              "book",
	OutcomeOverview:          "overview",
	OutcomeSuccess:           "success",
	OutcomeWaitingPayment:    "waiting-payment",
	OutcomeDeferredPayment:   "deferred-payment",
	OutcomeProcessingPayment: "processing-payment",
	OutcomeError:             "error",
}

// Segment returns the URL path segment of the outcome.
func (o RoutingOutcome) Segment() string {
	if s, ok := segments[o]; ok {
		return s
	}
	return segments[OutcomeNotFound]
}

func (o RoutingOutcome) String() string { return o.Segment() }

// Outcomes lists every outcome, NOT_FOUND first.
func Outcomes() []RoutingOutcome {
	return []RoutingOutcome{
		OutcomeNotFound,
		OutcomeBook,
		OutcomeOverview,
		OutcomeSuccess,
		OutcomeWaitingPayment,
		OutcomeDeferredPayment,
		OutcomeProcessingPayment,
		OutcomeError,
	}
}

// PENDING is resolved separately because it depends on the validated flag.
// IN_PAYMENT and STUCK need operator attention, so the buyer sees the error page.
var statusOutcomes = map[enums.ReservationStatus]RoutingOutcome{
	enums.ReservationComplete:                    OutcomeSuccess,
	enums.ReservationOfflinePayment:              OutcomeWaitingPayment,
	enums.ReservationDeferredOfflinePayment:      OutcomeDeferredPayment,
	enums.ReservationExternalProcessingPayment:   OutcomeProcessingPayment,
	enums.ReservationWaitingExternalConfirmation: OutcomeProcessingPayment,
	enums.ReservationInPayment:                   OutcomeError,
	enums.ReservationStuck:                       OutcomeError,
}

// Classify maps a reservation status to the routing outcome. It is total:
// unrecognized statuses yield OutcomeNotFound. validated is read only for PENDING.
func Classify(status enums.ReservationStatus, validated *bool) RoutingOutcome {
	if status == enums.ReservationPending {
		if validated != nil && *validated {
			return OutcomeOverview
		}
		return OutcomeBook
	}
	if outcome, ok := statusOutcomes[status]; ok {
		return outcome
	}
	return OutcomeNotFound
}
