// Package cryptorail prices and addresses cryptocurrency payments.
// Transaction-hash validation here is syntactic only; proof of on-chain
// settlement is an operator responsibility (admin verify) or a processor
// webhook, never format validation.
package cryptorail

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownNetwork = errors.New("unknown crypto network")
	ErrBelowMinimum   = errors.New("amount below network minimum")
	ErrAboveMaximum   = errors.New("amount above network maximum")
)

// Network describes one supported settlement network.
type Network struct {
	ID         string
	Symbol     string
	Name       string
	Decimals   int32           // native display precision for amounts
	Stablecoin bool            // pegged 1:1 to USD, never priced externally
	URIScheme  string          // empty for networks without a URI convention
	Ticker     string          // price-source instrument for non-stablecoins
	MinUSD     decimal.Decimal // bounds enforced before an address is issued
	MaxUSD     decimal.Decimal
	hashRe     *regexp.Regexp
}

var (
	hexHash64 = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	evmHash   = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

var networks = map[string]Network{
	"bitcoin": {
		ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin", Decimals: 8,
		URIScheme: "bitcoin", Ticker: "BTC-USDT",
		MinUSD: decimal.NewFromInt(25), MaxUSD: decimal.NewFromInt(100000),
		hashRe: hexHash64,
	},
	"ethereum": {
		ID: "ethereum", Symbol: "ETH", Name: "Ethereum", Decimals: 8,
		URIScheme: "ethereum", Ticker: "ETH-USDT",
		MinUSD: decimal.NewFromInt(10), MaxUSD: decimal.NewFromInt(100000),
		hashRe: evmHash,
	},
	// token networks use the bare address: ethereum:?amount= denominates in
	// ETH, so a URI here would misdirect wallets sending USDT
	"usdt-erc20": {
		ID: "usdt-erc20", Symbol: "USDT", Name: "Tether (ERC-20)", Decimals: 6,
		Stablecoin: true,
		MinUSD:     decimal.NewFromInt(10), MaxUSD: decimal.NewFromInt(50000),
		hashRe: evmHash,
	},
	"usdt-trc20": {
		ID: "usdt-trc20", Symbol: "USDT", Name: "Tether (TRC-20)", Decimals: 6,
		Stablecoin: true,
		MinUSD:     decimal.NewFromInt(5), MaxUSD: decimal.NewFromInt(50000),
		hashRe: hexHash64,
	},
}

// GetNetwork looks up a supported network by id.
func GetNetwork(id string) (Network, error) {
	n, ok := networks[id]
	if !ok {
		return Network{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, id)
	}
	return n, nil
}

// Networks lists the supported network ids.
func Networks() []string {
	ids := make([]string, 0, len(networks))
	for id := range networks {
		ids = append(ids, id)
	}
	return ids
}

// ValidateTransactionHash checks hash against the network's format. This is a
// syntactic guard only.
func ValidateTransactionHash(networkID, hash string) bool {
	n, ok := networks[networkID]
	if !ok {
		return false
	}
	return n.hashRe.MatchString(hash)
}

// PaymentURI encodes address and amount per the network's scheme convention,
// or returns the bare address for networks without one.
func (n Network) PaymentURI(address string, amount decimal.Decimal) string {
	if n.URIScheme == "" {
		return address
	}
	return fmt.Sprintf("%s:%s?amount=%s", n.URIScheme, address, amount.StringFixed(n.Decimals))
}

// CheckBounds rejects USD amounts outside the network's limits.
func (n Network) CheckBounds(usd decimal.Decimal) error {
	if usd.LessThan(n.MinUSD) {
		return fmt.Errorf("%w: %s requires at least $%s", ErrBelowMinimum, n.Symbol, n.MinUSD.StringFixed(2))
	}
	if usd.GreaterThan(n.MaxUSD) {
		return fmt.Errorf("%w: %s accepts at most $%s", ErrAboveMaximum, n.Symbol, n.MaxUSD.StringFixed(2))
	}
	return nil
}
