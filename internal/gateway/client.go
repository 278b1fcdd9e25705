package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Dialer is the provider-agnostic interface used by business logic to place
// outbound calls.
//
// Rules:
// - No gateway HTTP details outside this package.
// - The gateway is opaque: it accepts a dial command and later reports call
//   lifecycle through the events webhook.
type Dialer interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// Dial asks the gateway to originate a call. It returns the gateway's
	// call id, or ErrDialRejected when the gateway refuses the command.
	Dial(ctx context.Context, req DialRequest) (DialResult, error)
}

// DialRequest is the command sent to the telephony gateway.
type DialRequest struct {
	// To is the contact's E.164 number.
	To string `json:"to"`
	// From is the verified caller id.
	From string `json:"from"`

	CampaignID string `json:"campaign_id"`
	ContactID  string `json:"contact_id"`

	// SessionID correlates gateway events back to the local session.
	SessionID string `json:"session_id"`
}

type DialResult struct {
	ExternalCallID string `json:"external_call_id"`
}

// ErrDialRejected means the gateway refused the dial command outright.
// The session is failed and the contact goes through normal requeue logic.
var ErrDialRejected = errors.New("gateway rejected dial")

// HTTPDialer talks to the gateway over its JSON HTTP API.
type HTTPDialer struct {
	baseURL  string
	callerID string
	caps     *Capabilities
	client   *http.Client
}

func NewHTTPDialer(baseURL, callerID string, timeout time.Duration, caps *Capabilities) *HTTPDialer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDialer{
		baseURL:  baseURL,
		callerID: callerID,
		caps:     caps,
		client:   &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDialer) Name() string { return "http_gateway" }

func (d *HTTPDialer) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway health: status %d", resp.StatusCode)
	}
	return nil
}

func (d *HTTPDialer) Dial(ctx context.Context, req DialRequest) (DialResult, error) {
	if req.To == "" || req.SessionID == "" {
		return DialResult{}, errors.New("gateway: to and session_id required")
	}
	if req.From == "" {
		req.From = d.callerID
	}

	body, err := json.Marshal(req)
	if err != nil {
		return DialResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/calls", bytes.NewReader(body))
	if err != nil {
		return DialResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return DialResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// Immediate rejection (bad number, blocked destination, ...).
		return DialResult{}, fmt.Errorf("%w: status %d", ErrDialRejected, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return DialResult{}, fmt.Errorf("gateway dial: status %d", resp.StatusCode)
	}

	var out DialResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return DialResult{}, fmt.Errorf("gateway dial: decode response: %w", err)
	}
	if out.ExternalCallID == "" {
		return DialResult{}, errors.New("gateway dial: missing external_call_id")
	}
	return out, nil
}

// TransferRequest asks the gateway to move a live call to another number.
type TransferRequest struct {
	ExternalCallID string `json:"external_call_id"`
	Target         string `json:"target"`
}

// Transfer hands a live call to another destination. Requires the
// call_transfer capability.
func (d *HTTPDialer) Transfer(ctx context.Context, req TransferRequest) error {
	if err := d.caps.Require(CapabilityCallTransfer); err != nil {
		return err
	}
	if req.ExternalCallID == "" || req.Target == "" {
		return errors.New("gateway transfer: external_call_id and target required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/calls/transfer", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("gateway transfer: status %d", resp.StatusCode)
	}
	return nil
}
