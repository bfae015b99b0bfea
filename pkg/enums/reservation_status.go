package enums

import "strings"

// ReservationStatus is the lifecycle state stored on a reservation. The set is
// open: values written by other components that this service does not know
// about are kept verbatim and reported through Recognized.
type ReservationStatus string

const (
	ReservationPending                     ReservationStatus = "PENDING"
	ReservationComplete                    ReservationStatus = "COMPLETE"
	ReservationOfflinePayment              ReservationStatus = "OFFLINE_PAYMENT"
	ReservationDeferredOfflinePayment      ReservationStatus = "DEFERRED_OFFLINE_PAYMENT"
	ReservationExternalProcessingPayment   ReservationStatus = "EXTERNAL_PROCESSING_PAYMENT"
	ReservationWaitingExternalConfirmation ReservationStatus = "WAITING_EXTERNAL_CONFIRMATION"
	ReservationInPayment                   ReservationStatus = "IN_PAYMENT"
	ReservationStuck                       ReservationStatus = "STUCK"
)

var knownReservationStatuses = []ReservationStatus{
	ReservationPending,
	ReservationComplete,
	ReservationOfflinePayment,
	ReservationDeferredOfflinePayment,
	ReservationExternalProcessingPayment,
	ReservationWaitingExternalConfirmation,
	ReservationInPayment,
	ReservationStuck,
}

// String implements fmt.Stringer.
func (s ReservationStatus) String() string {
	return string(s)
}

// Recognized reports whether the status is one of the known lifecycle states.
func (s ReservationStatus) Recognized() bool {
	for _, candidate := range knownReservationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Raw returns the stored value, including unrecognized ones.
func (s ReservationStatus) Raw() string {
	return string(s)
}

// AwaitingProviderConfirmation reports whether a provider may still flip the
// reservation to COMPLETE.
func (s ReservationStatus) AwaitingProviderConfirmation() bool {
	switch s {
	case ReservationPending, ReservationExternalProcessingPayment, ReservationWaitingExternalConfirmation:
		return true
	}
	return false
}

// ParseReservationStatus never fails: unknown input is preserved as-is so
// callers can decide how to treat it.
func ParseReservationStatus(value string) ReservationStatus {
	trimmed := strings.TrimSpace(value)
	upper := ReservationStatus(strings.ToUpper(trimmed))
	if upper.Recognized() {
		return upper
	}
	return ReservationStatus(trimmed)
}
