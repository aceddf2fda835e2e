package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/uam-labs/arbiter/pkg/contracts"
)

// HTTPSink posts incident-shaped tickets to an ITSM endpoint
// (ServiceNow-compatible request body). A client-side rate limiter keeps a
// burst of low-score requests from flooding the ticket queue.
type HTTPSink struct {
	endpoint string
	username string
	password string
	client   *http.Client
	limiter  *rate.Limiter
}

// HTTPConfig configures the sink.
type HTTPConfig struct {
	Endpoint    string
	Username    string
	Password    string
	Timeout     time.Duration // default 10s
	RatePerSec  float64       // default 5
	BurstLimit  int           // default 10
}

// NewHTTPSink creates a ticket sink for the configured endpoint.
func NewHTTPSink(cfg HTTPConfig) *HTTPSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.BurstLimit <= 0 {
		cfg.BurstLimit = 10
	}
	return &HTTPSink{
		endpoint: cfg.Endpoint,
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.BurstLimit),
	}
}

type incidentRequest struct {
	ShortDescription string          `json:"short_description"`
	Description      string          `json:"description"`
	Urgency          string          `json:"urgency"`
	CallerID         string          `json:"caller_id"`
	Evaluation       json.RawMessage `json:"u_evaluation"`
}

type incidentResponse struct {
	Result struct {
		SysID  string `json:"sys_id"`
		Number string `json:"number"`
	} `json:"result"`
}

// CreateTicket implements Sink.
func (s *HTTPSink) CreateTicket(ctx context.Context, eval *contracts.RequestEvaluation) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %v", contracts.ErrTicketUnavailable, err)
	}

	evalJSON, err := json.Marshal(eval)
	if err != nil {
		return "", fmt.Errorf("ticket: marshal evaluation: %w", err)
	}
	body, err := json.Marshal(incidentRequest{
		ShortDescription: fmt.Sprintf("Access request review: %s for %s", eval.Permission, eval.UserID),
		Description:      eval.Reasoning,
		Urgency:          urgencyFor(eval.Score),
		CallerID:         eval.UserID,
		Evaluation:       evalJSON,
	})
	if err != nil {
		return "", fmt.Errorf("ticket: marshal incident: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ticket: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contracts.ErrTicketUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: endpoint returned %d", contracts.ErrTicketUnavailable, resp.StatusCode)
	}

	var out incidentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", contracts.ErrTicketUnavailable, err)
	}
	if out.Result.Number != "" {
		return out.Result.Number, nil
	}
	return out.Result.SysID, nil
}

// urgencyFor maps the priority score to ITSM urgency: higher scores mean
// the request was closer to auto-grant and deserves a faster look.
func urgencyFor(score int) string {
	switch {
	case score >= 80:
		return "1"
	case score >= 50:
		return "2"
	default:
		return "3"
	}
}
