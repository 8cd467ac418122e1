package anchor

import (
	"context"
	"fmt"

	"remit/internal/corridor"
	"remit/pkg/errors"
	"remit/pkg/logger"
)

// Protocol names the variant a payout ran through.
type Protocol string

const (
	ProtocolSEP6  Protocol = "sep6"
	ProtocolSEP24 Protocol = "sep24"
)

// Gateway selects the protocol variant per anchor capability and executes
// the withdrawal. Synchronous withdrawal is preferred for latency unless the
// anchor's interactive flow requires authentication for the asset, which
// implies mandatory KYC gating.
type Gateway struct {
	sep6   *SEP6Client
	sep24  *SEP24Client
	logger logger.Logger
}

func NewGateway(sep6 *SEP6Client, sep24 *SEP24Client, log logger.Logger) *Gateway {
	return &Gateway{sep6: sep6, sep24: sep24, logger: log}
}

// SelectProtocol probes the anchor's advertised capability for the asset.
func (g *Gateway) SelectProtocol(a *corridor.Anchor, assetCode string) (Protocol, error) {
	cap, ok := a.Capability(assetCode)
	if !ok {
		return "", errors.Wrap(errors.ErrAnchorUnsupported, fmt.Sprintf("anchor %s, asset %s", a.Name, assetCode))
	}

	switch {
	case cap.SEP24Enabled && cap.SEP24AuthRequired:
		return ProtocolSEP24, nil
	case cap.SEP6Enabled:
		return ProtocolSEP6, nil
	case cap.SEP24Enabled:
		return ProtocolSEP24, nil
	default:
		return "", errors.Wrap(errors.ErrAnchorUnsupported, fmt.Sprintf("anchor %s advertises no withdrawal protocol for %s", a.Name, assetCode))
	}
}

// Payout executes the withdrawal over the selected protocol and returns the
// anchor's payout transaction id.
func (g *Gateway) Payout(ctx context.Context, a *corridor.Anchor, req WithdrawRequest) (string, error) {
	protocol, err := g.SelectProtocol(a, req.AssetCode)
	if err != nil {
		return "", err
	}

	g.logger.Debug("Anchor protocol selected", map[string]interface{}{
		"anchor":   a.Name,
		"protocol": protocol,
	})

	switch protocol {
	case ProtocolSEP6:
		resp, err := g.sep6.Withdraw(ctx, a, req)
		if err != nil {
			return "", err
		}
		return resp.ID, nil

	case ProtocolSEP24:
		handle, err := g.sep24.WithdrawInteractive(ctx, a, req)
		if err != nil {
			return "", err
		}
		tx, err := g.sep24.AwaitCompletion(ctx, a, handle.ID)
		if err != nil {
			return "", err
		}
		if _, completed := IsTerminal(tx.Status); !completed {
			return "", errors.NewCoded("ANCHOR_FAILED", "anchor reported terminal status %q for payout %s", tx.Status, handle.ID)
		}
		return handle.ID, nil

	default:
		return "", errors.ErrAnchorUnsupported
	}
}
