package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod names the family of payment a buyer selected for a reservation.
type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodOnSite       PaymentMethod = "ON_SITE"
	PaymentMethodExternal     PaymentMethod = "EXTERNAL"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCreditCard,
	PaymentMethodBankTransfer,
	PaymentMethodOnSite,
	PaymentMethodExternal,
}

// PaymentMethods returns every known method in declaration order.
func PaymentMethods() []PaymentMethod {
	out := make([]PaymentMethod, len(validPaymentMethods))
	copy(out, validPaymentMethods)
	return out
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// LookupPaymentMethod is the lenient parser used at the HTTP boundary. Case is
// ignored and dashes are accepted in place of underscores; ok is false for
// anything else.
func LookupPaymentMethod(value string) (PaymentMethod, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for _, candidate := range validPaymentMethods {
		if string(candidate) == normalized {
			return candidate, true
		}
	}
	return "", false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	if method, ok := LookupPaymentMethod(value); ok {
		return method, nil
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
