package corridor

import (
	"github.com/shopspring/decimal"

	"remit/internal/domain"
	"remit/pkg/errors"
)

// AssetCapability is what an anchor advertises for one asset code: which
// protocol variants it serves and whether the interactive flow demands a
// prior authentication (which implies mandatory KYC gating).
type AssetCapability struct {
	SEP6Enabled       bool
	SEP24Enabled      bool
	SEP24AuthRequired bool
	MinAmount         decimal.Decimal
	MaxAmount         decimal.Decimal
	FeeFixed          decimal.Decimal
	FeePercent        decimal.Decimal
}

// Anchor is one payout rail: it converts settled stablecoin value into
// local-currency delivery.
type Anchor struct {
	Name          string
	Domain        string
	Country       string
	Currencies    []domain.Currency
	Capabilities  map[string]AssetCapability
	PayoutMinutes map[domain.DeliveryKind]int
}

// SupportsCurrency reports whether the anchor can pay out the currency.
func (a *Anchor) SupportsCurrency(currency domain.Currency) bool {
	for _, c := range a.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}

// Capability returns the advertised capability for an asset code.
func (a *Anchor) Capability(assetCode string) (AssetCapability, bool) {
	cap, ok := a.Capabilities[assetCode]
	return cap, ok
}

// PayoutETA returns the estimated payout minutes for a delivery kind,
// defaulting to 60 when the anchor publishes no figure for it.
func (a *Anchor) PayoutETA(kind domain.DeliveryKind) int {
	if m, ok := a.PayoutMinutes[kind]; ok {
		return m
	}
	return 60
}

// OriginCountry is the fixed origin side of every configured corridor.
const OriginCountry = "US"

// Directory resolves payout anchors for corridors. Static, built at startup.
type Directory struct {
	anchors   []*Anchor
	corridors map[corridorKey]string
}

type corridorKey struct {
	destCountry  string
	destCurrency domain.Currency
}

// NewDirectory builds the demo anchor directory.
func NewDirectory() *Directory {
	usdcCap := func(authRequired bool) map[string]AssetCapability {
		return map[string]AssetCapability{
			SettlementAsset: {
				SEP6Enabled:       true,
				SEP24Enabled:      true,
				SEP24AuthRequired: authRequired,
				MinAmount:         decimal.NewFromInt(1),
				MaxAmount:         decimal.NewFromInt(10000),
				FeeFixed:          decimal.Zero,
				FeePercent:        PayoutFee,
			},
		}
	}

	anchors := []*Anchor{
		{
			Name:         "PesoRail",
			Domain:       "anchor.pesorail.ph",
			Country:      "PH",
			Currencies:   []domain.Currency{domain.PHP},
			Capabilities: usdcCap(false),
			PayoutMinutes: map[domain.DeliveryKind]int{
				domain.DeliveryMobileMoney:  10,
				domain.DeliveryBankTransfer: 120,
				domain.DeliveryEWallet:      10,
			},
		},
		{
			Name:       "AztecaPay",
			Domain:     "anchor.aztecapay.mx",
			Country:    "MX",
			Currencies: []domain.Currency{domain.MXN},
			// Interactive flow requires auth: KYC gating is mandatory.
			Capabilities: usdcCap(true),
			PayoutMinutes: map[domain.DeliveryKind]int{
				domain.DeliveryBankTransfer: 30,
				domain.DeliveryEWallet:      15,
			},
		},
		{
			Name:         "NairaLink",
			Domain:       "anchor.nairalink.ng",
			Country:      "NG",
			Currencies:   []domain.Currency{domain.NGN},
			Capabilities: usdcCap(false),
			PayoutMinutes: map[domain.DeliveryKind]int{
				domain.DeliveryBankTransfer: 45,
				domain.DeliveryMobileMoney:  15,
			},
		},
		{
			Name:         "RupeeBridge",
			Domain:       "anchor.rupeebridge.in",
			Country:      "IN",
			Currencies:   []domain.Currency{domain.INR},
			Capabilities: usdcCap(true),
			PayoutMinutes: map[domain.DeliveryKind]int{
				domain.DeliveryBankTransfer: 60,
				domain.DeliveryEWallet:      20,
			},
		},
	}

	corridors := map[corridorKey]string{
		{"PH", domain.PHP}: "PesoRail",
		{"MX", domain.MXN}: "AztecaPay",
		{"NG", domain.NGN}: "NairaLink",
		{"IN", domain.INR}: "RupeeBridge",
	}

	return &Directory{anchors: anchors, corridors: corridors}
}

// ResolveAnchor finds the payout anchor for a (destCountry, destCurrency)
// pair. It consults the corridor map first, then falls back to the first
// anchor supporting the currency, and fails with ErrNoAnchorAvailable when
// neither matches.
func (d *Directory) ResolveAnchor(destCountry string, destCurrency domain.Currency) (*Anchor, error) {
	if name, ok := d.corridors[corridorKey{destCountry, destCurrency}]; ok {
		if a := d.byName(name); a != nil {
			return a, nil
		}
	}
	for _, a := range d.anchors {
		if a.SupportsCurrency(destCurrency) {
			return a, nil
		}
	}
	return nil, errors.ErrNoAnchorAvailable
}

func (d *Directory) byName(name string) *Anchor {
	for _, a := range d.anchors {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// CorridorInfo summarizes one configured corridor for listing.
type CorridorInfo struct {
	Origin       string          `json:"origin"`
	DestCountry  string          `json:"dest_country"`
	DestCurrency domain.Currency `json:"dest_currency"`
	AnchorName   string          `json:"anchor_name"`
}

// Corridors lists every configured corridor.
func (d *Directory) Corridors() []CorridorInfo {
	out := make([]CorridorInfo, 0, len(d.corridors))
	for key, name := range d.corridors {
		out = append(out, CorridorInfo{
			Origin:       OriginCountry,
			DestCountry:  key.destCountry,
			DestCurrency: key.destCurrency,
			AnchorName:   name,
		})
	}
	return out
}
