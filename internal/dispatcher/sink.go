package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBodySize caps how much of the sink response is read and stored
// as response_data (1MB).
const maxResponseBodySize = 1 << 20

const defaultSinkTimeout = 30 * time.Second

// SinkRequest describes one outbound call to the external sink.
type SinkRequest struct {
	URL       string
	Token     string
	Timeout   time.Duration
	UserAgent string
	RequestID string
	Payload   OutboundEvent
}

// OutboundEvent is the document posted to the external sink.
type OutboundEvent struct {
	EventID    string          `json:"event_id"`
	SubjectID  string          `json:"subject_id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt string          `json:"occurred_at"`
	Source     string          `json:"source"`
}

// SinkResult is the classified outcome of one external call.
type SinkResult struct {
	StatusCode int
	Body       []byte
	Error      error
	Duration   time.Duration
}

// IsSuccess reports delivery success: a 2xx response whose body is either
// empty or valid JSON. A 2xx with an unparseable body is a permanent
// failure (the sink violated its response contract).
func (r SinkResult) IsSuccess() bool {
	if r.Error != nil || r.StatusCode < 200 || r.StatusCode >= 300 {
		return false
	}
	return len(r.Body) == 0 || json.Valid(r.Body)
}

// IsRetryable reports a transient failure: transport error or timeout,
// 429, or any 5xx. Everything else that is not a success is permanent.
func (r SinkResult) IsRetryable() bool {
	if r.IsSuccess() {
		return false
	}
	if r.Error != nil {
		return true
	}
	if r.StatusCode == 429 {
		return true
	}
	return r.StatusCode >= 500
}

// ResponseData returns the body to store verbatim on success, normalizing
// an empty body to an empty JSON object.
func (r SinkResult) ResponseData() json.RawMessage {
	if len(r.Body) == 0 {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(r.Body)
}

// FailureMessage describes the failure for the delivery log.
func (r SinkResult) FailureMessage() string {
	if r.Error != nil {
		return r.Error.Error()
	}
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return fmt.Sprintf("sink returned %d with non-JSON body", r.StatusCode)
	}
	return fmt.Sprintf("sink returned %d", r.StatusCode)
}

// SinkSender delivers one outbound event to the external sink.
type SinkSender interface {
	Send(ctx context.Context, req SinkRequest) SinkResult
}

// HTTPSinkSender posts outbound events over HTTP with a bounded timeout.
type HTTPSinkSender struct {
	client *http.Client
}

func NewHTTPSinkSender() *HTTPSinkSender {
	return &HTTPSinkSender{client: &http.Client{}}
}

// Send posts the outbound event as JSON.
// Headers: User-Agent, X-Hookrelay-Request-ID, and a bearer credential
// when a token is configured.
func (s *HTTPSinkSender) Send(ctx context.Context, req SinkRequest) SinkResult {
	start := time.Now()

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return SinkResult{Error: fmt.Errorf("marshal: %w", err), Duration: time.Since(start)}
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = defaultSinkTimeout
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return SinkResult{Error: fmt.Errorf("create request: %w", err), Duration: time.Since(start)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", req.UserAgent)
	httpReq.Header.Set("X-Hookrelay-Request-ID", req.RequestID)
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return SinkResult{Error: fmt.Errorf("send: %w", err), Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return SinkResult{StatusCode: resp.StatusCode, Error: fmt.Errorf("read response: %w", err), Duration: time.Since(start)}
	}

	return SinkResult{StatusCode: resp.StatusCode, Body: respBody, Duration: time.Since(start)}
}
