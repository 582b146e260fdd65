package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Event types.
const (
	EventFetchCompleted = "fetch.completed"
	EventFetchFailed    = "fetch.failed"
)

// SignatureHeader carries "sha256=<hex>" when a secret is configured.
const SignatureHeader = "X-Browserfetch-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ, jobID string, data any) *Event {
	return &Event{Type: typ, JobID: jobID, Timestamp: time.Now().Unix(), Data: data}
}

// retryDelays are waited before each delivery attempt.
var retryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Sign returns the HMAC-SHA256 of body keyed by secret, hex encoded.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Headers sent alongside the body so receivers can route without decoding it.
const (
	EventHeader = "X-Browserfetch-Event"
	JobHeader   = "X-Browserfetch-Job"
)

// client does not follow redirects: a signed body is only ever posted to the
// configured URL.
var client = &http.Client{
	Timeout: 10 * time.Second,
	CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: endpoint returned status %d", e.Code)
}

// Temporary reports whether another attempt may succeed. Any other 4xx
// or 3xx means the endpoint rejected the event.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

// Deliver posts one event to url. The body is signed with HMAC-SHA256 when
// secret is non-empty.
func Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal %s event for job %s: %w", event.Type, event.JobID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Browserfetch-Webhook/1.0")
	req.Header.Set(EventHeader, event.Type)
	req.Header.Set(JobHeader, event.JobID)
	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(secret, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post %s event: %w", event.Type, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// DeliverAsync sends an event in the background, retrying transport errors
// and temporary statuses on the retryDelays schedule. The returned channel
// is closed once the event is delivered, rejected, or retries run out.
func DeliverAsync(url, secret string, event *Event) <-chan struct{} {
	done := make(chan struct{})
	log := slog.With("url", url, "event", event.Type, "job_id", event.JobID)
	go func() {
		defer close(done)
		for attempt, delay := range retryDelays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), client.Timeout)
			err := Deliver(ctx, url, secret, event)
			cancel()
			if err == nil {
				log.Info("webhook delivered", "attempt", attempt+1)
				return
			}
			var se *StatusError
			if errors.As(err, &se) && !se.Temporary() {
				log.Warn("webhook rejected by endpoint", "attempt", attempt+1, "status", se.Code)
				return
			}
			log.Warn("webhook delivery failed", "attempt", attempt+1, "error", err)
		}
		log.Error("webhook delivery exhausted all retries", "attempts", len(retryDelays))
	}()
	return done
}
