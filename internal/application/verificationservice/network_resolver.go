package verificationservice

import (
	"regexp"

	"github.com/nexbit/dvs/internal/domain"
)

var (
	tronHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
	evmHashPattern  = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
)

// NetworkResolver guesses the chain a hash belongs to from its lexical
// shape: Tron ids are bare 64-hex, EVM hashes carry a 0x prefix. The shape
// wins over the user's claim; ambiguity falls back to the claim. It never
// fails and always returns both networks in a deterministic order.
type NetworkResolver struct{}

func NewNetworkResolver() *NetworkResolver {
	return &NetworkResolver{}
}

func (r *NetworkResolver) Resolve(txHash string, claimed domain.Network) []domain.Network {
	txHash = domain.NormalizeTxHash(txHash)

	switch {
	case evmHashPattern.MatchString(txHash):
		return []domain.Network{domain.NetworkEthereum, domain.NetworkTron}
	case tronHashPattern.MatchString(txHash):
		return []domain.Network{domain.NetworkTron, domain.NetworkEthereum}
	}

	if claimed == domain.NetworkEthereum {
		return []domain.Network{domain.NetworkEthereum, domain.NetworkTron}
	}
	return []domain.Network{domain.NetworkTron, domain.NetworkEthereum}
}
