// Package wallet describes the connected account that authorizes the
// messaging client on behalf of a user.
package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/xmtp/allow-list-management/v1/models"
)

// Signer is an authorized wallet account.
type Signer interface {
	Address() string
}

// Provider requests access to the user's wallet account.
type Provider interface {
	RequestAccounts(ctx context.Context) (Signer, error)
}

// StaticSigner is a Signer for a fixed address.
type StaticSigner string

// Address returns the signer's wallet address.
func (s StaticSigner) Address() string {
	return string(s)
}

type addressKey struct{}

// WithAddress returns a context carrying an authenticated wallet address.
func WithAddress(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, addressKey{}, address)
}

// AddressFromContext returns the wallet address placed by WithAddress.
func AddressFromContext(ctx context.Context) (string, bool) {
	address, ok := ctx.Value(addressKey{}).(string)
	return address, ok && address != ""
}

// ContextProvider treats the wallet address authenticated for the current
// request as the connected account.
type ContextProvider struct{}

// NewContextProvider creates a provider reading the request context
func NewContextProvider() *ContextProvider {
	return &ContextProvider{}
}

// RequestAccounts returns the authenticated account or
// models.ErrAuthorizationDeclined when the request carries none.
func (p *ContextProvider) RequestAccounts(ctx context.Context) (Signer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	address, ok := AddressFromContext(ctx)
	if !ok || strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("%w: no wallet account on request", models.ErrAuthorizationDeclined)
	}
	return StaticSigner(address), nil
}
