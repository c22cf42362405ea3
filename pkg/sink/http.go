package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rmax-ai/auditsim/pkg/action"
)

// Envelope is the JSON body an HTTPSink posts.
type Envelope struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	Role        string    `json:"role"`
	Department  string    `json:"department"`
	Target      string    `json:"target"`
	Operation   string    `json:"operation"`
	Payload     string    `json:"payload"`
	Sensitivity string    `json:"sensitivity"`
	Timestamp   time.Time `json:"timestamp"`
	ScenarioID  string    `json:"scenario_id,omitempty"`
}

// Reply is the JSON body an HTTPSink expects on a 2xx response.
type Reply struct {
	Success   bool   `json:"success"`
	ErrorKind string `json:"error_kind,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Message   string `json:"message,omitempty"`
}

// HTTPSink posts each action to an executor service.
type HTTPSink struct {
	endpoint string
	http     *http.Client
}

// NewHTTPSink posts to endpoint. timeout defaults to 10s.
func NewHTTPSink(endpoint string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

// Submit implements Sink.
func (s *HTTPSink) Submit(ctx context.Context, a action.Action) (action.Outcome, error) {
	body, err := json.Marshal(Envelope{
		ID:          a.ID,
		AgentID:     a.AgentID,
		Role:        string(a.Role),
		Department:  a.Department,
		Target:      a.Target,
		Operation:   string(a.Operation),
		Payload:     a.Payload,
		Sensitivity: a.Sensitivity.String(),
		Timestamp:   a.SimTime,
		ScenarioID:  a.ScenarioID,
	})
	if err != nil {
		return action.Failed(action.ErrInternal, 0, err.Error()), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return action.Failed(action.ErrInternal, 0, err.Error()), nil
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return action.Outcome{Latency: latency}, err
		}
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return action.Outcome{Latency: latency}, NewError(action.ErrTimeout, err)
		}
		return action.Outcome{Latency: latency}, NewError(action.ErrConnection, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return action.Outcome{Latency: latency}, NewError(action.ErrTimeout, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return action.Outcome{Latency: latency}, NewError(action.ErrConnection, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return action.Failed(action.ErrPermission, latency, resp.Status), nil
	case resp.StatusCode == http.StatusConflict:
		return action.Failed(action.ErrConstraint, latency, resp.Status), nil
	case resp.StatusCode >= 400:
		return action.Failed(action.ErrSyntax, latency, resp.Status), nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return action.Failed(action.ErrInternal, latency, resp.Status), nil
	}

	var r Reply
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return action.Failed(action.ErrInternal, latency, "response parsing failed"), nil
	}
	if r.LatencyMS > 0 {
		latency = time.Duration(r.LatencyMS) * time.Millisecond
	}
	if r.Success {
		out := action.Succeeded(latency)
		out.Message = r.Message
		return out, nil
	}
	kind := action.ErrorKind(r.ErrorKind)
	if kind == "" || kind == action.ErrNone {
		kind = action.ErrInternal
	}
	return action.Failed(kind, latency, r.Message), nil
}
