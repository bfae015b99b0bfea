package payments

import (
	"fmt"
	"sort"

	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
)

// Registry maps each enabled payment method to the adapter that serves it.
type Registry map[enums.PaymentMethod]Provider

// NewRegistry validates the table built at bootstrap.
func NewRegistry(entries map[enums.PaymentMethod]Provider) (Registry, error) {
	reg := make(Registry, len(entries))
	for method, provider := range entries {
		if !method.IsValid() {
			return nil, fmt.Errorf("unknown payment method %q", method)
		}
		if provider == nil {
			return nil, fmt.Errorf("provider for %s is nil", method)
		}
		reg[method] = provider
	}
	return reg, nil
}

// Lookup returns the adapter for method, if one is enabled.
func (r Registry) Lookup(method enums.PaymentMethod) (Provider, bool) {
	provider, ok := r[method]
	return provider, ok
}

// Methods lists enabled methods in a stable order.
func (r Registry) Methods() []enums.PaymentMethod {
	out := make([]enums.PaymentMethod, 0, len(r))
	for method := range r {
		out = append(out, method)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
