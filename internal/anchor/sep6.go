package anchor

import (
	"context"
	"net/http"
	"time"

	"remit/internal/corridor"
	"remit/pkg/logger"
)

// SEP6Client performs programmatic withdrawals. Every call requires a prior
// auth token.
type SEP6Client struct {
	httpClient *http.Client
	baseURL    string
	auth       *AuthClient
	logger     logger.Logger
}

func NewSEP6Client(baseURL string, timeout time.Duration, auth *AuthClient, log logger.Logger) *SEP6Client {
	return &SEP6Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		auth:       auth,
		logger:     log,
	}
}

// Withdraw submits a synchronous withdrawal and returns the anchor's
// transaction id.
func (c *SEP6Client) Withdraw(ctx context.Context, a *corridor.Anchor, req WithdrawRequest) (*WithdrawResponse, error) {
	token, err := c.auth.Token(ctx, a, req.Account)
	if err != nil {
		return nil, err
	}

	var out WithdrawResponse
	if err := postJSON(ctx, c.httpClient, anchorURL(c.baseURL, a, "/sep6/withdraw"), token, req, &out); err != nil {
		return nil, err
	}

	c.logger.Info("Anchor withdrawal accepted", map[string]interface{}{
		"anchor":     a.Name,
		"payout_id":  out.ID,
		"eta_min":    out.ETA,
		"asset_code": req.AssetCode,
	})
	return &out, nil
}

// Transaction fetches the current status of a withdrawal.
func (c *SEP6Client) Transaction(ctx context.Context, a *corridor.Anchor, id string) (*TransactionStatus, error) {
	token, err := c.auth.Token(ctx, a, "")
	if err != nil {
		return nil, err
	}

	var out TransactionStatus
	if err := getJSON(ctx, c.httpClient, anchorURL(c.baseURL, a, "/sep6/transaction?id="+id), token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
