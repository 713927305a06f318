package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cityforge/webhooks/webhook"
	"github.com/cityforge/webhooks/webhook/signature"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticEndpoints is a fixed fan-out set for dispatcher tests.
type staticEndpoints []webhook.Endpoint

func (s staticEndpoints) EndpointsForEvent(ctx context.Context, eventType string) ([]webhook.Endpoint, error) {
	matched := make([]webhook.Endpoint, 0, len(s))
	for _, endpoint := range s {
		if endpoint.Enabled && endpoint.SubscribesTo(eventType) {
			matched = append(matched, endpoint)
		}
	}
	return matched, nil
}

// fakeSleep records requested delays and returns immediately.
type fakeSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (f *fakeSleep) sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
	return nil
}

func newTestDispatcher(endpoints staticEndpoints, sleep *fakeSleep) *webhook.Dispatcher {
	d := webhook.NewDispatcher(endpoints, zerolog.Nop())
	d.Sleep = sleep.sleep
	return d
}

func testEndpoint(url string) webhook.Endpoint {
	return webhook.Endpoint{
		ID:             "ep_test",
		Name:           "test",
		URL:            url,
		Enabled:        true,
		Events:         []string{webhook.EventAll},
		RetryPolicy:    webhook.RetryPolicy{MaxRetries: 3, RetryDelaySeconds: 1, ExponentialBackoff: true},
		TimeoutSeconds: 5,
	}
}

func mustEvent(t *testing.T) webhook.Event {
	t.Helper()
	event, err := webhook.NewEvent(webhook.EventSubmissionCreated, map[string]int{"submission_id": 42})
	require.NoError(t, err)
	return event
}

func TestSendFanOut(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to every subscribed endpoint exactly once", func(t *testing.T) {
		var mu sync.Mutex
		hits := map[string]int{}

		newServer := func(name string) *httptest.Server {
			return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				hits[name]++
				mu.Unlock()
				w.WriteHeader(http.StatusOK)
			}))
		}
		first := newServer("first")
		defer first.Close()
		second := newServer("second")
		defer second.Close()

		a := testEndpoint(first.URL)
		a.ID = "ep_first"
		b := testEndpoint(second.URL)
		b.ID = "ep_second"

		d := newTestDispatcher(staticEndpoints{a, b}, &fakeSleep{})
		outcomes := d.Send(ctx, mustEvent(t))

		require.Len(t, outcomes, 2)
		for _, outcome := range outcomes {
			assert.True(t, outcome.Success)
			assert.Equal(t, 1, outcome.Attempts)
		}
		assert.Equal(t, 1, hits["first"])
		assert.Equal(t, 1, hits["second"])
	})

	t.Run("skips endpoints not subscribed to the event type", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("unsubscribed endpoint must not be called")
		}))
		defer server.Close()

		endpoint := testEndpoint(server.URL)
		endpoint.Events = []string{webhook.EventAdminNotification}

		d := newTestDispatcher(staticEndpoints{endpoint}, &fakeSleep{})
		outcomes := d.Send(ctx, mustEvent(t))

		assert.Empty(t, outcomes)
	})

	t.Run("disabled dispatcher is a no-op", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("disabled dispatcher must not deliver")
		}))
		defer server.Close()

		d := newTestDispatcher(staticEndpoints{testEndpoint(server.URL)}, &fakeSleep{})
		d.Enabled = false

		assert.Nil(t, d.Send(ctx, mustEvent(t)))
	})
}

func TestDeliveryHeaders(t *testing.T) {
	ctx := context.Background()

	t.Run("sets the protocol headers and signs the body bytes", func(t *testing.T) {
		var (
			mu       sync.Mutex
			body     []byte
			received http.Header
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			body, _ = io.ReadAll(r.Body)
			received = r.Header.Clone()
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		endpoint := testEndpoint(server.URL)
		endpoint.Secret = "signing-secret"
		endpoint.Headers = map[string]string{"X-Environment": "test"}

		event := mustEvent(t)
		d := newTestDispatcher(staticEndpoints{endpoint}, &fakeSleep{})
		outcomes := d.Send(ctx, event)

		require.Len(t, outcomes, 1)
		require.True(t, outcomes[0].Success)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "application/json", received.Get("Content-Type"))
		assert.Equal(t, event.Type, received.Get(webhook.HeaderEvent))
		assert.Equal(t, event.ID, received.Get(webhook.HeaderEventID))
		assert.Equal(t, "test", received.Get("X-Environment"))
		assert.NotEmpty(t, received.Get(webhook.HeaderTimestamp))

		// The signature must verify against the exact bytes received.
		assert.True(t, signature.Verify(body, "signing-secret", received.Get(signature.Header)))

		var decoded webhook.Event
		require.NoError(t, json.Unmarshal(body, &decoded))
		assert.Equal(t, event.ID, decoded.ID)
	})

	t.Run("omits the signature header without a secret", func(t *testing.T) {
		var (
			mu  sync.Mutex
			sig string
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			sig = r.Header.Get(signature.Header)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		d := newTestDispatcher(staticEndpoints{testEndpoint(server.URL)}, &fakeSleep{})
		outcomes := d.Send(ctx, mustEvent(t))

		require.Len(t, outcomes, 1)
		mu.Lock()
		defer mu.Unlock()
		assert.Empty(t, sig)
	})

	t.Run("custom headers cannot override protocol headers", func(t *testing.T) {
		var (
			mu       sync.Mutex
			received http.Header
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			received = r.Header.Clone()
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		endpoint := testEndpoint(server.URL)
		endpoint.Secret = "signing-secret"
		endpoint.Headers = map[string]string{
			"Content-Type":   "text/plain",
			signature.Header: "spoofed",
		}

		event := mustEvent(t)
		d := newTestDispatcher(staticEndpoints{endpoint}, &fakeSleep{})
		d.Send(ctx, event)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "application/json", received.Get("Content-Type"))
		assert.NotEqual(t, "spoofed", received.Get(signature.Header))
	})
}

func TestDeliveryRetries(t *testing.T) {
	ctx := context.Background()

	t.Run("exhausts after maxRetries+1 attempts with doubling delays", func(t *testing.T) {
		var mu sync.Mutex
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			attempts++
			mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		endpoint := testEndpoint(server.URL)
		endpoint.RetryPolicy = webhook.RetryPolicy{MaxRetries: 2, RetryDelaySeconds: 1, ExponentialBackoff: true}

		sleep := &fakeSleep{}
		d := newTestDispatcher(staticEndpoints{endpoint}, sleep)
		outcomes := d.Send(ctx, mustEvent(t))

		require.Len(t, outcomes, 1)
		assert.False(t, outcomes[0].Success)
		assert.Equal(t, 3, outcomes[0].Attempts)
		assert.Equal(t, http.StatusInternalServerError, outcomes[0].Status)
		assert.NotEmpty(t, outcomes[0].Error)

		mu.Lock()
		assert.Equal(t, 3, attempts)
		mu.Unlock()
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleep.delays)
	})

	t.Run("fixed delay when exponential backoff is off", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		endpoint := testEndpoint(server.URL)
		endpoint.RetryPolicy = webhook.RetryPolicy{MaxRetries: 2, RetryDelaySeconds: 5, ExponentialBackoff: false}

		sleep := &fakeSleep{}
		d := newTestDispatcher(staticEndpoints{endpoint}, sleep)
		d.Send(ctx, mustEvent(t))

		assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleep.delays)
	})

	t.Run("stops retrying on the first success", func(t *testing.T) {
		var mu sync.Mutex
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			if n == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		sleep := &fakeSleep{}
		d := newTestDispatcher(staticEndpoints{testEndpoint(server.URL)}, sleep)
		outcomes := d.Send(ctx, mustEvent(t))

		require.Len(t, outcomes, 1)
		assert.True(t, outcomes[0].Success)
		assert.Equal(t, 2, outcomes[0].Attempts)
		assert.Equal(t, http.StatusAccepted, outcomes[0].Status)
		assert.Empty(t, outcomes[0].Error)
		assert.Len(t, sleep.delays, 1)
	})

	t.Run("maxRetries zero means exactly one attempt", func(t *testing.T) {
		var mu sync.Mutex
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			attempts++
			mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		endpoint := testEndpoint(server.URL)
		endpoint.RetryPolicy = webhook.RetryPolicy{MaxRetries: 0, RetryDelaySeconds: 1, ExponentialBackoff: false}

		sleep := &fakeSleep{}
		d := newTestDispatcher(staticEndpoints{endpoint}, sleep)
		outcomes := d.Send(ctx, mustEvent(t))

		require.Len(t, outcomes, 1)
		assert.Equal(t, 1, outcomes[0].Attempts)
		mu.Lock()
		assert.Equal(t, 1, attempts)
		mu.Unlock()
		assert.Empty(t, sleep.delays)
	})

	t.Run("connection errors are retried like HTTP failures", func(t *testing.T) {
		endpoint := testEndpoint("http://127.0.0.1:1") // nothing listens here
		endpoint.RetryPolicy = webhook.RetryPolicy{MaxRetries: 1, RetryDelaySeconds: 1, ExponentialBackoff: false}

		sleep := &fakeSleep{}
		d := newTestDispatcher(staticEndpoints{endpoint}, sleep)
		outcomes := d.Send(ctx, mustEvent(t))

		require.Len(t, outcomes, 1)
		assert.False(t, outcomes[0].Success)
		assert.Equal(t, 2, outcomes[0].Attempts)
		assert.Zero(t, outcomes[0].Status)
	})
}

func TestDeliveryIsolation(t *testing.T) {
	ctx := context.Background()

	t.Run("one endpoint's failure does not affect the others", func(t *testing.T) {
		healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer healthy.Close()
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer failing.Close()

		good := testEndpoint(healthy.URL)
		good.ID = "ep_good"
		bad := testEndpoint(failing.URL)
		bad.ID = "ep_bad"
		bad.RetryPolicy = webhook.RetryPolicy{MaxRetries: 2, RetryDelaySeconds: 1, ExponentialBackoff: true}

		d := newTestDispatcher(staticEndpoints{good, bad}, &fakeSleep{})
		outcomes := d.Send(ctx, mustEvent(t))

		require.Len(t, outcomes, 2)
		byID := map[string]webhook.Outcome{}
		for _, outcome := range outcomes {
			byID[outcome.EndpointID] = outcome
		}

		assert.True(t, byID["ep_good"].Success)
		assert.Equal(t, 1, byID["ep_good"].Attempts)
		assert.False(t, byID["ep_bad"].Success)
		assert.Equal(t, 3, byID["ep_bad"].Attempts)
	})

	t.Run("cancelled context aborts the retry wait", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()

		d := newTestDispatcher(staticEndpoints{testEndpoint(server.URL)}, &fakeSleep{})
		d.Sleep = func(ctx context.Context, delay time.Duration) error {
			return ctx.Err()
		}
		outcomes := d.Send(cancelCtx, mustEvent(t))

		require.Len(t, outcomes, 1)
		assert.False(t, outcomes[0].Success)
		assert.Contains(t, outcomes[0].Error, "retry wait aborted")
	})
}

func TestDeliveryMetricsObservation(t *testing.T) {
	ctx := context.Background()

	t.Run("observes every attempt and the final outcome", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		endpoint := testEndpoint(server.URL)
		endpoint.RetryPolicy = webhook.RetryPolicy{MaxRetries: 1, RetryDelaySeconds: 1, ExponentialBackoff: false}

		recorder := &recordingMetrics{}
		d := newTestDispatcher(staticEndpoints{endpoint}, &fakeSleep{})
		d.Metrics = recorder
		d.Send(ctx, mustEvent(t))

		assert.Equal(t, 2, recorder.attempts)
		assert.Equal(t, 1, recorder.outcomes)
		assert.False(t, recorder.lastSuccess)
	})
}

type recordingMetrics struct {
	mu          sync.Mutex
	attempts    int
	outcomes    int
	lastSuccess bool
}

func (r *recordingMetrics) ObserveAttempt(ctx context.Context, eventType, endpointID string, success bool, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
}

func (r *recordingMetrics) ObserveOutcome(ctx context.Context, eventType, endpointID string, success bool, attempts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes++
	r.lastSuccess = success
}
