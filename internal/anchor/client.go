package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"remit/internal/corridor"
	"remit/pkg/errors"
)

// WithdrawRequest is the protocol-independent withdrawal ask.
type WithdrawRequest struct {
	AssetCode string            `json:"asset_code"`
	Amount    decimal.Decimal   `json:"amount"`
	Type      string            `json:"type"`
	Dest      map[string]string `json:"dest"`
	Account   string            `json:"account"`
}

// WithdrawResponse is a synchronous withdrawal acknowledgement.
type WithdrawResponse struct {
	ID         string          `json:"id"`
	ETA        int             `json:"eta"`
	FeeFixed   decimal.Decimal `json:"fee_fixed"`
	FeePercent decimal.Decimal `json:"fee_percent"`
}

// InteractiveResponse is the hosted-flow handle.
type InteractiveResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"url"`
}

// TransactionStatus is one anchor-side transaction snapshot.
type TransactionStatus struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ExternalTxID string `json:"external_transaction_id,omitempty"`
}

// postJSON and getJSON translate transport and HTTP failures into coded
// errors the delivery classifier understands. Anchor-supplied error messages
// flow through untouched so text like "KYC required" still classifies.

func postJSON(ctx context.Context, client *http.Client, url string, token string, payload, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to encode anchor request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build anchor request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return doAnchor(client, req, dest)
}

func getJSON(ctx context.Context, client *http.Client, url string, token string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build anchor request")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doAnchor(client, req, dest)
}

func doAnchor(client *http.Client, req *http.Request, dest interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return errors.NewCoded("ETIMEDOUT", "anchor request timed out: %v", err)
		}
		return errors.NewCoded("ECONNREFUSED", "anchor unreachable: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewCoded("ECONNABORTED", "failed to read anchor response: %v", err)
	}

	if resp.StatusCode >= 400 {
		var anchorErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &anchorErr) == nil && anchorErr.Error != "" {
			return &errors.CodedError{Code: anchorErr.Code, Message: anchorErr.Error}
		}
		if resp.StatusCode >= 500 {
			return errors.NewCoded("ESERVER", "anchor returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("anchor rejected request with status %d: %s", resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return errors.Wrap(err, "failed to decode anchor response")
	}
	return nil
}

func anchorURL(override string, a *corridor.Anchor, path string) string {
	return baseURLFor(override, a) + path
}
