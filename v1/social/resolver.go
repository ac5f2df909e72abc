// Package social resolves wallet addresses to social profile and domain names.
// Enrichment is additive: callers show the consent list without profiles when
// resolution fails.
package social

import (
	"context"
	"strings"

	"github.com/xmtp/allow-list-management/v1/models"
)

// Resolver looks up profiles for a batch of addresses. Addresses with nothing
// to show are omitted from the result.
type Resolver interface {
	Resolve(ctx context.Context, addresses []string) (map[string]models.Profile, error)
}

// NoopResolver is used when enrichment is disabled
type NoopResolver struct{}

// Resolve returns an empty result
func (NoopResolver) Resolve(ctx context.Context, addresses []string) (map[string]models.Profile, error) {
	return map[string]models.Profile{}, nil
}

// filterAddresses drops blank addresses and duplicates, keeping first-seen order
func filterAddresses(addresses []string) []string {
	seen := make(map[string]bool, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if strings.TrimSpace(a) == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
