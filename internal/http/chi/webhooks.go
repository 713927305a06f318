package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cityforge/webhooks/metrics"
	"github.com/cityforge/webhooks/webhook"
	"github.com/go-chi/chi/v5"
)

/* HTTP layer DTOs for the endpoint administration API
 * Separate from domain entities to avoid leaking internal structure -
 * in particular, secrets never leave this layer unmasked.
 */

const maskedSecret = "***"

// retryPolicyDTO mirrors webhook.RetryPolicy on the wire
type retryPolicyDTO struct {
	MaxRetries         int  `json:"maxRetries"`
	RetryDelaySeconds  int  `json:"retryDelaySeconds"`
	ExponentialBackoff bool `json:"exponentialBackoff"`
}

// endpointResponse represents an endpoint in API responses. The secret
// is always masked: "***" when one is set, omitted when not.
type endpointResponse struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Secret         string            `json:"secret,omitempty"`
	Enabled        bool              `json:"enabled"`
	Events         []string          `json:"events"`
	Headers        map[string]string `json:"headers,omitempty"`
	RetryPolicy    retryPolicyDTO    `json:"retryPolicy"`
	TimeoutSeconds int               `json:"timeoutSeconds"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func toEndpointResponse(endpoint webhook.Endpoint) endpointResponse {
	secret := ""
	if endpoint.Secret != "" {
		secret = maskedSecret
	}
	events := endpoint.Events
	if events == nil {
		events = []string{}
	}
	return endpointResponse{
		ID:             endpoint.ID,
		Name:           endpoint.Name,
		URL:            endpoint.URL,
		Secret:         secret,
		Enabled:        endpoint.Enabled,
		Events:         events,
		Headers:        endpoint.Headers,
		RetryPolicy:    retryPolicyDTO(endpoint.RetryPolicy),
		TimeoutSeconds: endpoint.TimeoutSeconds,
		CreatedAt:      endpoint.CreatedAt,
		UpdatedAt:      endpoint.UpdatedAt,
	}
}

// createEndpointRequest represents the create payload.
// name, url and events are required.
type createEndpointRequest struct {
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Secret         string            `json:"secret"`
	Enabled        *bool             `json:"enabled"`
	Events         []string          `json:"events"`
	Headers        map[string]string `json:"headers"`
	RetryPolicy    *retryPolicyDTO   `json:"retryPolicy"`
	TimeoutSeconds *int              `json:"timeoutSeconds"`
}

// updateEndpointRequest represents a partial update payload
type updateEndpointRequest struct {
	Name           *string           `json:"name"`
	URL            *string           `json:"url"`
	Secret         *string           `json:"secret"`
	Enabled        *bool             `json:"enabled"`
	Events         []string          `json:"events"`
	Headers        map[string]string `json:"headers"`
	RetryPolicy    *retryPolicyDTO   `json:"retryPolicy"`
	TimeoutSeconds *int              `json:"timeoutSeconds"`
}

// testEventRequest represents the send-test payload
type testEventRequest struct {
	EventType string          `json:"eventType"`
	TestData  json.RawMessage `json:"testData"`
}

// testEventResponse reports the generated event id and the outcome of
// the full delivery run
type testEventResponse struct {
	EventID   string            `json:"eventId"`
	Delivered bool              `json:"delivered"`
	Results   []webhook.Outcome `json:"results"`
}

// listEndpoints handles GET /v1/webhooks
func listEndpoints(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoints, err := svc.ListEndpoints(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		responses := make([]endpointResponse, 0, len(endpoints))
		for _, endpoint := range endpoints {
			responses = append(responses, toEndpointResponse(endpoint))
		}
		writeJSON(w, http.StatusOK, responses)
	})
}

// createEndpoint handles POST /v1/webhooks
func createEndpoint(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createEndpointRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.Name == "" || req.URL == "" || req.Events == nil {
			http.Error(w, "name, url and events are required", http.StatusBadRequest)
			return
		}

		params := webhook.CreateEndpointParams{
			Name:           req.Name,
			URL:            req.URL,
			Secret:         req.Secret,
			Enabled:        req.Enabled,
			Events:         req.Events,
			Headers:        req.Headers,
			TimeoutSeconds: req.TimeoutSeconds,
		}
		if req.RetryPolicy != nil {
			policy := webhook.RetryPolicy(*req.RetryPolicy)
			params.RetryPolicy = &policy
		}

		endpoint, err := svc.CreateEndpoint(r.Context(), params)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toEndpointResponse(endpoint))
	})
}

// getEndpoint handles GET /v1/webhooks/{id}
func getEndpoint(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint, err := svc.GetEndpoint(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEndpointResponse(endpoint))
	})
}

// updateEndpoint handles PATCH /v1/webhooks/{id}
func updateEndpoint(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req updateEndpointRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		params := webhook.UpdateEndpointParams{
			Name:           req.Name,
			URL:            req.URL,
			Secret:         req.Secret,
			Enabled:        req.Enabled,
			Events:         req.Events,
			Headers:        req.Headers,
			TimeoutSeconds: req.TimeoutSeconds,
		}
		if req.RetryPolicy != nil {
			policy := webhook.RetryPolicy(*req.RetryPolicy)
			params.RetryPolicy = &policy
		}

		endpoint, err := svc.UpdateEndpoint(r.Context(), chi.URLParam(r, "id"), params)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEndpointResponse(endpoint))
	})
}

// deleteEndpoint handles DELETE /v1/webhooks/{id}
func deleteEndpoint(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteEndpoint(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// listEventTypes handles GET /v1/webhooks/event-types
func listEventTypes() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, webhook.KnownEventTypes())
	})
}

// sendTestEvent handles POST /v1/webhooks/test
// This is the one place a delivery outcome is user-visible: the admin
// explicitly waits for the full delivery run, retries included.
func sendTestEvent(dispatcher *webhook.Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req testEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.EventType == "" {
			http.Error(w, "eventType is required", http.StatusBadRequest)
			return
		}

		data := req.TestData
		if data == nil {
			data = json.RawMessage(`{"test":true}`)
		}

		event, err := webhook.NewEvent(req.EventType, data)
		if err != nil {
			writeError(w, err)
			return
		}

		outcomes := dispatcher.Send(r.Context(), event)
		if outcomes == nil {
			outcomes = []webhook.Outcome{}
		}

		delivered := len(outcomes) > 0
		for _, outcome := range outcomes {
			if !outcome.Success {
				delivered = false
				break
			}
		}

		writeJSON(w, http.StatusOK, testEventResponse{
			EventID:   event.ID,
			Delivered: delivered,
			Results:   outcomes,
		})
	})
}

// getStats handles GET /v1/webhooks/stats
func getStats(collector metrics.Collector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := collector.Collect(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError maps domain errors onto status codes: validation failures
// become 400s, unknown ids become 404s, everything else a 500.
func writeError(w http.ResponseWriter, err error) {
	var validation *webhook.ValidationError
	switch {
	case errors.As(err, &validation):
		http.Error(w, validation.Reason, http.StatusBadRequest)
	case errors.Is(err, webhook.ErrNotFound):
		http.Error(w, "endpoint not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
