package enums

import "fmt"

// PaymentResultType is the outcome reported to the browser for a transaction.
type PaymentResultType string

const (
	PaymentResultSuccessful PaymentResultType = "SUCCESSFUL"
	PaymentResultFailed     PaymentResultType = "FAILED"
	PaymentResultPending    PaymentResultType = "PENDING"
	PaymentResultRedirect   PaymentResultType = "REDIRECT"
)

var validPaymentResultTypes = []PaymentResultType{
	PaymentResultSuccessful,
	PaymentResultFailed,
	PaymentResultPending,
	PaymentResultRedirect,
}

// String implements fmt.Stringer.
func (p PaymentResultType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentResultType.
func (p PaymentResultType) IsValid() bool {
	for _, candidate := range validPaymentResultTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentResultType converts raw input into a PaymentResultType.
func ParsePaymentResultType(value string) (PaymentResultType, error) {
	for _, candidate := range validPaymentResultTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment result type %q", value)
}
