package market

import (
	"github.com/forecastlab/settle-engine/internal/model"
)

// ResolutionPolicy is the per-kind authorization capability for
// terminal transitions. Keeping this a policy object (rather than
// conditionals spread through the resolver) means adding a market kind
// does not touch unrelated resolution code.
type ResolutionPolicy interface {
	// AllowResolve reports whether caller may drive a market of the
	// given kind to a resolved status.
	AllowResolve(kind model.MarketKind, caller string) error

	// AllowPrivilegedVoid reports whether caller may void an expired
	// market regardless of oracle state.
	AllowPrivilegedVoid(caller string) bool
}

// KindPolicy is the standard policy: oracle-verifiable kinds (PRICE,
// CHAIN_METRIC) are permissionless because the adapter itself is the
// authority; externally-attested kinds (SOCIAL_METRIC) require an
// authorized resolver identity, which is also the set allowed to void.
type KindPolicy struct {
	authorized map[string]bool
}

// NewKindPolicy builds the standard policy from the authorized
// resolver identities.
func NewKindPolicy(resolvers []string) *KindPolicy {
	auth := make(map[string]bool, len(resolvers))
	for _, r := range resolvers {
		if r != "" {
			auth[r] = true
		}
	}
	return &KindPolicy{authorized: auth}
}

// AllowResolve implements ResolutionPolicy.
func (p *KindPolicy) AllowResolve(kind model.MarketKind, caller string) error {
	switch kind {
	case model.KindPrice, model.KindChainMetric:
		return nil
	case model.KindSocialMetric:
		if p.authorized[caller] {
			return nil
		}
		return ErrUnauthorized
	}
	return ErrInvalidKind
}

// AllowPrivilegedVoid implements ResolutionPolicy.
func (p *KindPolicy) AllowPrivilegedVoid(caller string) bool {
	return p.authorized[caller]
}
