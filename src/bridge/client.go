package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fluffle-tools/gateway/src/webclient"
)

// APIError is a non-2xx reply from the bridge backend. Message comes
// from the backend's JSON error body when one is present.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// HealthSnapshot is the backend's health/config report.
type HealthSnapshot struct {
	OK             bool   `json:"ok"`
	Paused         bool   `json:"paused"`
	ArbBalanceWei  string `json:"arbBalanceWei"`
	MegaBalanceWei string `json:"megaBalanceWei"`
	FlatFeeWei     string `json:"flatFeeWei"`
	FeeBps         int    `json:"feeBps"`
	MinDepositWei  string `json:"minDepositWei"`
	MaxDepositWei  string `json:"maxDepositWei"`
}

// DepositRecord is one tracked cross-chain transfer, keyed by its
// source-chain transaction hash. The backend owns the record; this
// client only reads snapshots. Timestamps are set in lifecycle order
// except for ORPHANED/FAILED, which may truncate the sequence.
type DepositRecord struct {
	ArbTxHash   string     `json:"arbTxHash"`
	BlockNumber uint64     `json:"blockNumber"`
	BlockHash   string     `json:"blockHash"`
	Sender      string     `json:"sender"`
	AmountWei   string     `json:"amountWei"`
	FeeWei      string     `json:"feeWei"`
	PayoutWei   string     `json:"payoutWei"`
	Status      Status     `json:"status"`
	MegaTxHash  *string    `json:"megaTxHash"`
	DetectedAt  *time.Time `json:"detectedAt"`
	ConfirmedAt *time.Time `json:"confirmedAt"`
	SentAt      *time.Time `json:"sentAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// StatusResult is a deposit snapshot plus the backend-derived
// presentation fields. Step is the backend's 1..4 stepper position and
// is passed through, never recomputed here.
type StatusResult struct {
	Deposit         DepositRecord `json:"deposit"`
	Step            int           `json:"step"`
	AmountFormatted string        `json:"amountFormatted"`
	PayoutFormatted string        `json:"payoutFormatted"`
}

// SubmitResult is the outcome of a deposit submission. A backend 409
// (deposit already recorded) is a soft success, not an error.
type SubmitResult struct {
	AlreadyRecorded bool   `json:"alreadyRecorded"`
	Message         string `json:"message"`
}

// Client is the single seam between this service and the bridge
// backend's HTTP surface. It does not retry; callers own retry policy.
type Client struct {
	base string
	http *http.Client
	log  zerolog.Logger
}

func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: webclient.NewDefault(15 * time.Second),
		log:  logger.With().Str("component", "bridge-client").Logger(),
	}
}

// Health fetches the backend health snapshot. Never served stale: every
// request carries no-cache headers.
func (c *Client) Health(ctx context.Context) (*HealthSnapshot, error) {
	var out HealthSnapshot
	if err := c.get(ctx, "/health", &out, "bridge backend unavailable"); err != nil {
		return nil, err
	}
	return &out, nil
}

// DepositStatus fetches the current record for one transaction hash.
// A backend 404 and a backend outage both surface as *APIError; callers
// can branch on Status when the distinction matters.
func (c *Client) DepositStatus(ctx context.Context, hash string) (*StatusResult, error) {
	if strings.TrimSpace(hash) == "" {
		return nil, fmt.Errorf("empty transaction hash")
	}
	var out StatusResult
	path := "/status?arbTx=" + url.QueryEscape(hash)
	if err := c.get(ctx, path, &out, "failed to fetch deposit status"); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitDeposit registers a deposit with the backend. HTTP 409 means
// the backend already tracks this hash and resolves as a soft success
// carrying the backend's message.
func (c *Client) SubmitDeposit(ctx context.Context, hash, sender, amountWei string) (*SubmitResult, error) {
	payload, err := json.Marshal(map[string]string{
		"arbTxHash": hash,
		"sender":    sender,
		"amountWei": amountWei,
	})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/deposit", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusConflict {
		return &SubmitResult{
			AlreadyRecorded: true,
			Message:         messageFromBody(body, "deposit already recorded"),
		}, nil
	}
	if status < 200 || status > 299 {
		return nil, &APIError{Status: status, Message: messageFromBody(body, "deposit submission failed")}
	}
	var out SubmitResult
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode deposit response: %w", err)
		}
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}, fallback string) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	status, body, err := c.do(req)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return &APIError{Status: status, Message: messageFromBody(body, fallback)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode bridge response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	// Health and status must never be served stale.
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	return req, nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("url", req.URL.String()).Msg("bridge request failed")
		return 0, nil, fmt.Errorf("bridge backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read bridge response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func messageFromBody(body []byte, fallback string) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return fallback
}
