// Package aggregator wraps the external DEX-aggregation API: indicative swap
// quotes and swap-transaction builds, with bounded retry on transient
// failures.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"remit/pkg/config"
	"remit/pkg/errors"
	"remit/pkg/logger"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether addr is a well-formed EVM address.
func ValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}

// QuoteRequest asks for an indicative swap quote.
type QuoteRequest struct {
	ChainID     int64
	SrcToken    string
	DstToken    string
	Amount      decimal.Decimal
	FromAddress string
	Slippage    float64
}

// QuoteResponse is the aggregator's indicative quote.
type QuoteResponse struct {
	DstAmount    decimal.Decimal `json:"dstAmount"`
	EstimatedGas int64           `json:"estimatedGas"`
	Protocols    []string        `json:"protocols"`
}

// SwapTx is a built, ready-to-sign swap transaction payload.
type SwapTx struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	Gas      int64  `json:"gas"`
	GasPrice string `json:"gasPrice"`
}

// Client calls the DEX aggregation service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries int
	slippage   float64
	logger     logger.Logger

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// NewClient builds an aggregator client. Every request carries the
// configured timeout; expiry surfaces as an ETIMEDOUT coded error.
func NewClient(cfg config.AggregatorConfig, log logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		slippage:   cfg.Slippage,
		logger:     log,
		sleep:      time.Sleep,
	}
}

// GetQuote fetches an indicative quote for swapping src into dst.
func (c *Client) GetQuote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	if err := validateAddresses(req.SrcToken, req.DstToken); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("src", req.SrcToken)
	params.Set("dst", req.DstToken)
	params.Set("amount", req.Amount.String())
	params.Set("from", req.FromAddress)
	params.Set("slippage", fmt.Sprintf("%g", req.Slippage))

	var out QuoteResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/%d/quote", req.ChainID), params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BuildSwapTx builds the swap transaction payload for execution.
func (c *Client) BuildSwapTx(ctx context.Context, req QuoteRequest) (*SwapTx, error) {
	if err := validateAddresses(req.SrcToken, req.DstToken); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("src", req.SrcToken)
	params.Set("dst", req.DstToken)
	params.Set("amount", req.Amount.String())
	params.Set("from", req.FromAddress)
	params.Set("slippage", fmt.Sprintf("%g", req.Slippage))

	var out struct {
		Tx SwapTx `json:"tx"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/%d/swap", req.ChainID), params, &out); err != nil {
		return nil, err
	}
	return &out.Tx, nil
}

func validateAddresses(addrs ...string) error {
	for _, a := range addrs {
		if !addressPattern.MatchString(a) {
			return errors.Wrap(errors.ErrInvalidAddress, fmt.Sprintf("token address %q", a))
		}
	}
	return nil
}

// getJSON performs the request with retry. Only server-class (5xx) and
// network failures retry, up to maxRetries attempts with 1s/2s/4s backoff;
// client errors map immediately to descriptive errors.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dest interface{}) error {
	var lastErr error
	delay := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		err := c.doOnce(ctx, path, params, dest)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err

		if attempt == c.maxRetries {
			break
		}

		c.logger.Warn("Aggregator call failed, retrying", map[string]interface{}{
			"path":    path,
			"attempt": attempt + 1,
			"error":   err.Error(),
		})

		select {
		case <-ctx.Done():
			return errors.NewCoded("ETIMEDOUT", "aggregator call cancelled: %v", ctx.Err())
		default:
		}
		c.sleep(delay)
		delay *= 2
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, path string, params url.Values, dest interface{}) error {
	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build aggregator request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.NewCoded("ETIMEDOUT", "aggregator request timed out: %v", err)
		}
		return errors.NewCoded("ECONNREFUSED", "aggregator unreachable: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewCoded("ECONNABORTED", "failed to read aggregator response: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(body, dest); err != nil {
			return errors.Wrap(err, "failed to decode aggregator response")
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return errors.ErrAggregatorBadKey
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.ErrAggregatorRateLimit
	case resp.StatusCode == http.StatusNotFound:
		return errors.ErrRouteNotFound
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errors.Wrap(errors.ErrAggregatorBadRequest, fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(body, 200)))
	default:
		return errors.NewCoded("ESERVER", "aggregator returned status %d", resp.StatusCode)
	}
}

func retryable(err error) bool {
	switch errors.Code(err) {
	case "ECONNREFUSED", "ECONNABORTED", "ETIMEDOUT", "ESERVER":
		return true
	}
	return false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
