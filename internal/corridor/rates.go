// Package corridor holds the static routing tables: exchange rates, wrapped
// settlement-asset addresses, the payout anchor directory, and the delivery
// method registry. Everything here is loaded at startup and never mutated.
package corridor

import (
	"github.com/shopspring/decimal"

	"remit/internal/domain"
	"remit/pkg/errors"
)

// SettlementAsset is the stablecoin every route settles through before the
// anchor payout leg.
const SettlementAsset = "USDC"

// exchangeRates maps destination currency to the USDC rate. Demo constants;
// a production system would feed these from a rate provider.
var exchangeRates = map[domain.Currency]decimal.Decimal{
	domain.PHP: decimal.NewFromFloat(56.50),
	domain.MXN: decimal.NewFromFloat(17.15),
	domain.INR: decimal.NewFromFloat(83.20),
	domain.NGN: decimal.NewFromFloat(1540.00),
	domain.VND: decimal.NewFromFloat(24650.00),
	domain.KES: decimal.NewFromFloat(129.50),
	domain.USD: decimal.NewFromInt(1),
}

// Rate returns the settlement-asset exchange rate for a destination currency.
func Rate(currency domain.Currency) (decimal.Decimal, error) {
	rate, ok := exchangeRates[currency]
	if !ok {
		return decimal.Zero, errors.ErrUnsupportedCurrency
	}
	return rate, nil
}

// settlementAssetAddresses maps source chain to the wrapped USDC contract.
var settlementAssetAddresses = map[domain.Chain]string{
	domain.ChainEthereum: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	domain.ChainPolygon:  "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
	domain.ChainArbitrum: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
	domain.ChainBase:     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
}

// SettlementAssetAddress returns the wrapped settlement-asset contract on the
// given chain, or ErrUnsupportedChain.
func SettlementAssetAddress(chain domain.Chain) (string, error) {
	addr, ok := settlementAssetAddresses[chain]
	if !ok {
		return "", errors.ErrUnsupportedChain
	}
	return addr, nil
}

// Per-step fee fractions for the three route legs.
var (
	SwapFee   = decimal.NewFromFloat(0.003)
	BridgeFee = decimal.NewFromFloat(0.001)
	PayoutFee = decimal.NewFromFloat(0.005)
)

// Per-step time estimates in minutes. The payout leg's estimate comes from
// the anchor directory, not from here.
const (
	SwapMinutes   = 2
	BridgeMinutes = 15
)
