package anchor

import (
	"context"
	"net/http"
	"time"

	"remit/internal/corridor"
	"remit/pkg/errors"
	"remit/pkg/logger"
)

// SEP24Client performs interactive (hosted-flow) withdrawals: the initiate
// call returns a redirect handle instead of an immediate result, and the
// transaction is polled until it leaves the pending states.
type SEP24Client struct {
	httpClient *http.Client
	baseURL    string
	auth       *AuthClient
	logger     logger.Logger

	pollInterval time.Duration
	maxPolls     int
}

func NewSEP24Client(baseURL string, timeout time.Duration, auth *AuthClient, log logger.Logger) *SEP24Client {
	return &SEP24Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		auth:         auth,
		logger:       log,
		pollInterval: 500 * time.Millisecond,
		maxPolls:     20,
	}
}

// WithdrawInteractive starts a hosted withdrawal flow.
func (c *SEP24Client) WithdrawInteractive(ctx context.Context, a *corridor.Anchor, req WithdrawRequest) (*InteractiveResponse, error) {
	token, err := c.auth.Token(ctx, a, req.Account)
	if err != nil {
		return nil, err
	}

	var out InteractiveResponse
	if err := postJSON(ctx, c.httpClient, anchorURL(c.baseURL, a, "/sep24/transactions/withdraw/interactive"), token, req, &out); err != nil {
		return nil, err
	}

	c.logger.Info("Interactive withdrawal started", map[string]interface{}{
		"anchor":       a.Name,
		"payout_id":    out.ID,
		"redirect_url": out.RedirectURL,
	})
	return &out, nil
}

// Transaction fetches the current status of a hosted withdrawal.
func (c *SEP24Client) Transaction(ctx context.Context, a *corridor.Anchor, id string) (*TransactionStatus, error) {
	token, err := c.auth.Token(ctx, a, "")
	if err != nil {
		return nil, err
	}

	var out TransactionStatus
	if err := getJSON(ctx, c.httpClient, anchorURL(c.baseURL, a, "/sep24/transaction?id="+id), token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AwaitCompletion polls the transaction until it reaches a terminal anchor
// status or the poll budget runs out.
func (c *SEP24Client) AwaitCompletion(ctx context.Context, a *corridor.Anchor, id string) (*TransactionStatus, error) {
	for i := 0; i < c.maxPolls; i++ {
		tx, err := c.Transaction(ctx, a, id)
		if err != nil {
			return nil, err
		}
		if terminal, _ := IsTerminal(tx.Status); terminal {
			return tx, nil
		}

		select {
		case <-time.After(c.pollInterval):
		case <-ctx.Done():
			return nil, errors.NewCoded("ETIMEDOUT", "interactive withdrawal polling cancelled: %v", ctx.Err())
		}
	}
	return nil, errors.NewCoded("ETIMEDOUT", "interactive withdrawal %s did not complete in time", id)
}
