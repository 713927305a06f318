package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cityforge/webhooks/webhook/signature"
	"github.com/rs/zerolog"
)

/* Dispatcher fans an event out to every enabled endpoint subscribed to
 * its type. Per-endpoint deliveries run independently; retries for one
 * endpoint are strictly sequential. Outcomes surface through logs and
 * metrics only - Send never returns an error to the event's origin.
 */

// Headers set by the dispatcher on every delivery. Endpoint-configured
// custom headers are merged first and cannot override these.
const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderEventID   = "X-Webhook-Id"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// maxResponseDrain bounds how much of a response body is read before
// the connection is released back to the pool.
const maxResponseDrain = 64 * 1024

// EndpointSource resolves the fan-out set for an event type.
// *Service satisfies it.
type EndpointSource interface {
	EndpointsForEvent(ctx context.Context, eventType string) ([]Endpoint, error)
}

// DeliveryMetrics receives per-attempt and final-outcome observations.
type DeliveryMetrics interface {
	ObserveAttempt(ctx context.Context, eventType, endpointID string, success bool, elapsed time.Duration)
	ObserveOutcome(ctx context.Context, eventType, endpointID string, success bool, attempts int)
}

// Outcome is the final result of one endpoint's delivery sequence.
type Outcome struct {
	EndpointID string `json:"endpointId"`
	Attempts   int    `json:"attempts"`
	Success    bool   `json:"success"`
	Status     int    `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// deliveryState drives the per-endpoint attempt loop. Modeled as an
// explicit state machine so the attempt/delay sequence stays iterative
// and unit-testable with an injected sleep function.
type deliveryState int

const (
	stateAttempting deliveryState = iota
	stateWaiting
	stateSucceeded
	stateExhausted
)

type Dispatcher struct {
	Endpoints EndpointSource

	// Enabled is the global kill switch owned by the surrounding
	// application's configuration. When false, Send is a no-op.
	Enabled bool

	// Client issues the delivery requests. The per-attempt timeout
	// comes from each endpoint, so the client carries none itself.
	Client *http.Client

	// Sleep waits between retries. Replaced in tests with a fake
	// clock; the default honors context cancellation.
	Sleep func(ctx context.Context, d time.Duration) error

	// Metrics is optional; nil disables observation.
	Metrics DeliveryMetrics

	Logger zerolog.Logger
}

// NewDispatcher creates a dispatcher with the default HTTP client and
// context-aware sleep.
func NewDispatcher(endpoints EndpointSource, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Endpoints: endpoints,
		Enabled:   true,
		Client:    &http.Client{},
		Sleep:     sleepContext,
		Logger:    logger,
	}
}

// Send delivers the event to every matched endpoint and returns once
// all delivery sequences (including retries) have finished. Callers on
// a request path must not wait for it: spawn it and drop the result.
//
// There is no overall deadline across one endpoint's retry sequence;
// the worst case is timeout x (maxRetries+1) plus the sum of the
// backoff delays. Cancelling ctx aborts waits between attempts.
func (d *Dispatcher) Send(ctx context.Context, event Event) []Outcome {
	if !d.Enabled {
		return nil
	}

	endpoints, err := d.Endpoints.EndpointsForEvent(ctx, event.Type)
	if err != nil {
		d.Logger.Error().Err(err).Str("event_id", event.ID).Str("event_type", event.Type).
			Msg("resolving endpoints for event")
		return nil
	}
	if len(endpoints) == 0 {
		return nil
	}

	// Serialized once: these exact bytes are both the signature input
	// and the request body for every attempt to every endpoint.
	body, err := json.Marshal(event)
	if err != nil {
		d.Logger.Error().Err(err).Str("event_id", event.ID).Msg("serializing event envelope")
		return nil
	}

	outcomes := make([]Outcome, len(endpoints))
	var wg sync.WaitGroup
	for i, endpoint := range endpoints {
		wg.Add(1)
		go func(i int, endpoint Endpoint) {
			defer wg.Done()
			outcomes[i] = d.deliver(ctx, endpoint, event, body)
		}(i, endpoint)
	}
	wg.Wait()

	return outcomes
}

// deliver runs the attempt loop for a single endpoint. The endpoint
// record (secret included) was captured at fan-out resolution: a
// concurrent secret rotation does not re-sign an in-flight sequence.
func (d *Dispatcher) deliver(ctx context.Context, endpoint Endpoint, event Event, body []byte) Outcome {
	outcome := Outcome{EndpointID: endpoint.ID}
	delay := time.Duration(endpoint.RetryPolicy.RetryDelaySeconds) * time.Second

	state := stateAttempting
	for state != stateSucceeded && state != stateExhausted {
		switch state {
		case stateAttempting:
			outcome.Attempts++
			started := time.Now()
			status, err := d.attempt(ctx, endpoint, event, body)
			elapsed := time.Since(started)

			outcome.Status = status
			success := err == nil
			if d.Metrics != nil {
				d.Metrics.ObserveAttempt(ctx, event.Type, endpoint.ID, success, elapsed)
			}

			if success {
				outcome.Success = true
				outcome.Error = ""
				state = stateSucceeded
				continue
			}

			outcome.Error = err.Error()
			d.Logger.Warn().Err(err).
				Str("event_id", event.ID).
				Str("event_type", event.Type).
				Str("endpoint_id", endpoint.ID).
				Int("attempt", outcome.Attempts).
				Msg("webhook delivery attempt failed")

			if outcome.Attempts > endpoint.RetryPolicy.MaxRetries {
				state = stateExhausted
				continue
			}
			state = stateWaiting

		case stateWaiting:
			if err := d.Sleep(ctx, delay); err != nil {
				outcome.Error = fmt.Sprintf("retry wait aborted: %v", err)
				state = stateExhausted
				continue
			}
			if endpoint.RetryPolicy.ExponentialBackoff {
				delay *= 2
			}
			state = stateAttempting
		}
	}

	if d.Metrics != nil {
		d.Metrics.ObserveOutcome(ctx, event.Type, endpoint.ID, outcome.Success, outcome.Attempts)
	}

	if outcome.Success {
		d.Logger.Info().
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Str("endpoint_id", endpoint.ID).
			Int("attempts", outcome.Attempts).
			Msg("webhook delivered")
	} else {
		d.Logger.Error().
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Str("endpoint_id", endpoint.ID).
			Int("attempts", outcome.Attempts).
			Str("last_error", outcome.Error).
			Msg("webhook delivery exhausted retries")
	}

	return outcome
}

// attempt issues one signed HTTP POST. Any 2xx status is success;
// everything else (non-2xx, connection error, timeout) is a failure
// eligible for retry. Returns the HTTP status when one was received.
func (d *Dispatcher) attempt(ctx context.Context, endpoint Endpoint, event Event, body []byte) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, endpoint.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}

	// Custom headers first; the protocol headers below win on conflict.
	for key, value := range endpoint.Headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, event.Type)
	req.Header.Set(HeaderEventID, event.ID)
	req.Header.Set(HeaderTimestamp, fmt.Sprintf("%d", event.Timestamp.Unix()))
	if endpoint.Secret != "" {
		req.Header.Set(signature.Header, signature.Sign(body, endpoint.Secret))
	} else {
		req.Header.Del(signature.Header)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("posting to %s: %w", endpoint.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseDrain))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("endpoint returned %s", resp.Status)
	}
	return resp.StatusCode, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
