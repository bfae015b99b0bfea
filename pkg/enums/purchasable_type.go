package enums

import (
	"fmt"
	"strings"
)

// PurchasableType tags the kind of thing a reservation buys into.
type PurchasableType string

const (
	PurchasableEvent        PurchasableType = "EVENT"
	PurchasableSubscription PurchasableType = "SUBSCRIPTION"
)

var validPurchasableTypes = []PurchasableType{
	PurchasableEvent,
	PurchasableSubscription,
}

// String implements fmt.Stringer.
func (p PurchasableType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PurchasableType.
func (p PurchasableType) IsValid() bool {
	for _, candidate := range validPurchasableTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// URLSegment is the lowercase path component used by the front end ("event", "subscription").
func (p PurchasableType) URLSegment() string {
	return strings.ToLower(string(p))
}

// ParsePurchasableType accepts the path forms used by the public API: the
// singular or plural name in any case.
func ParsePurchasableType(value string) (PurchasableType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "event", "events":
		return PurchasableEvent, nil
	case "subscription", "subscriptions":
		return PurchasableSubscription, nil
	}
	return "", fmt.Errorf("invalid purchasable type %q", value)
}
