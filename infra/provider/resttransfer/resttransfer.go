// Package resttransfer is the HTTP client for the external transfer rails.
// Each rail exposes a JSON API; transient 5xx responses are retried with
// backoff, 4xx responses are authoritative rejections, and timeouts surface
// as unknown outcomes so the caller never double-sends.
package resttransfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/nilepay/payfac/pkg/config"
	"github.com/nilepay/payfac/pkg/domain/payout"
	"github.com/nilepay/payfac/pkg/provider/transfer"
)

// Client is a transfer rail reached over HTTP.
type Client struct {
	method  payout.Method
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
	logger  *slog.Logger
}

// New creates a rail client from configuration.
func New(method payout.Method, cfg config.Provider, logger *slog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.HTTPClient.Timeout = cfg.HTTPTimeout
	rc.Logger = nil
	return &Client{
		method:  method,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.ApiKey,
		http:    rc,
		logger:  logger,
	}
}

// Method implements transfer.Provider.
func (c *Client) Method() payout.Method { return c.method }

type transferRequest struct {
	Amount      string             `json:"amount"`
	Currency    string             `json:"currency"`
	Destination payout.Destination `json:"destination"`
	Reference   string             `json:"reference"`
	Narration   string             `json:"narration,omitempty"`
}

type transferResponse struct {
	Status            string `json:"status"`
	ProviderReference string `json:"provider_reference"`
	Message           string `json:"message,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Send implements transfer.Provider.
func (c *Client) Send(ctx context.Context, req transfer.SendRequest) (*transfer.Result, error) {
	body := transferRequest{
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		Destination: req.Destination,
		Reference:   req.Reference,
		Narration:   req.Narration,
	}
	var resp transferResponse
	if err := c.post(ctx, "/transfers", body, &resp); err != nil {
		return nil, err
	}
	return &transfer.Result{
		Success:           resp.Status == "accepted" || resp.Status == "completed",
		ProviderReference: resp.ProviderReference,
		Message:           resp.Message,
		Confirmed:         resp.Status == "completed",
	}, nil
}

type batchRequest struct {
	Reference string             `json:"reference"`
	Items     []batchItemRequest `json:"items"`
}

type batchItemRequest struct {
	Reference   string             `json:"reference"`
	Amount      string             `json:"amount"`
	Destination payout.Destination `json:"destination"`
	Narration   string             `json:"narration,omitempty"`
}

// SubmitBatch implements transfer.BatchProvider.
func (c *Client) SubmitBatch(
	ctx context.Context,
	batchReference string,
	items []transfer.BatchItem,
) (*transfer.BatchResult, error) {
	body := batchRequest{Reference: batchReference}
	for _, item := range items {
		body.Items = append(body.Items, batchItemRequest{
			Reference:   item.Reference,
			Amount:      item.Amount.StringFixed(2),
			Destination: item.Destination,
			Narration:   item.Narration,
		})
	}
	var resp transferResponse
	if err := c.post(ctx, "/batches", body, &resp); err != nil {
		return nil, err
	}
	return &transfer.BatchResult{
		Success:           resp.Status == "accepted" || resp.Status == "completed",
		ProviderReference: resp.ProviderReference,
		Message:           resp.Message,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// A timed-out or interrupted call may have landed on the rail.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %w", transfer.ErrOutcomeUnknown, err)
		}
		return fmt.Errorf("rail call failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var apiErr errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr != nil || apiErr.Message == "" {
			apiErr = errorResponse{Code: "rejected", Message: fmt.Sprintf("rail returned status %d", resp.StatusCode)}
		}
		return &transfer.RejectionError{Code: apiErr.Code, Message: apiErr.Message}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rail returned status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

var (
	_ transfer.Provider      = (*Client)(nil)
	_ transfer.BatchProvider = (*Client)(nil)
)
