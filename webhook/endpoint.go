package webhook

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

/* Endpoint represents a configured webhook destination
 * Uses value semantics as it represents data, not behavior
 */

// Defaults applied when a create request omits the optional fields.
const (
	DefaultMaxRetries        = 3
	DefaultRetryDelaySeconds = 5
	DefaultTimeoutSeconds    = 30
)

// EventAll subscribes an endpoint to every event type.
const EventAll = "all"

// eventTypePattern validates event types: hierarchical, full-stop delimited, [a-zA-Z0-9_.]
var eventTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

// RetryPolicy controls the delivery attempt loop for one endpoint.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Zero means exactly one attempt.
	MaxRetries int

	// RetryDelaySeconds is the wait before the first retry.
	RetryDelaySeconds int

	// ExponentialBackoff doubles the wait on every subsequent retry
	// (delay sequence: d, 2d, 4d, ...). When false the same delay is
	// reused for every retry.
	ExponentialBackoff bool
}

// DefaultRetryPolicy returns the policy applied when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:         DefaultMaxRetries,
		RetryDelaySeconds:  DefaultRetryDelaySeconds,
		ExponentialBackoff: true,
	}
}

// Validate checks the retry policy bounds
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return &ValidationError{Reason: "retryPolicy.maxRetries cannot be negative"}
	}
	if p.RetryDelaySeconds <= 0 {
		return &ValidationError{Reason: "retryPolicy.retryDelaySeconds must be greater than zero"}
	}
	return nil
}

// Endpoint is a registered webhook destination. The secret is carried
// in full here; masking happens at the HTTP boundary, never in this
// package, so the delivery loop can always sign with the real value.
type Endpoint struct {
	ID             string
	Name           string
	URL            string
	Secret         string
	Enabled        bool
	Events         []string
	Headers        map[string]string
	RetryPolicy    RetryPolicy
	TimeoutSeconds int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the endpoint configuration is deliverable
func (e *Endpoint) Validate() error {
	if e.ID == "" {
		return &ValidationError{Reason: "id cannot be empty"}
	}
	if e.Name == "" {
		return &ValidationError{Reason: "name cannot be empty"}
	}
	if err := ValidateURL(e.URL); err != nil {
		return err
	}
	for _, eventType := range e.Events {
		if err := ValidateEventType(eventType); err != nil {
			return err
		}
	}
	if err := e.RetryPolicy.Validate(); err != nil {
		return err
	}
	if e.TimeoutSeconds <= 0 {
		return &ValidationError{Reason: "timeoutSeconds must be greater than zero"}
	}
	return nil
}

// SubscribesTo reports whether the endpoint is subscribed to the given
// event type, either explicitly or via the "all" wildcard.
func (e *Endpoint) SubscribesTo(eventType string) bool {
	for _, subscribed := range e.Events {
		if subscribed == EventAll || subscribed == eventType {
			return true
		}
	}
	return false
}

// Timeout returns the per-attempt HTTP timeout as a duration.
func (e *Endpoint) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// clone returns a deep copy so registry readers never alias the slices
// and maps held by a stored record.
func (e Endpoint) clone() Endpoint {
	out := e
	if e.Events != nil {
		out.Events = make([]string, len(e.Events))
		copy(out.Events, e.Events)
	}
	if e.Headers != nil {
		out.Headers = make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// Clone returns a deep copy of the endpoint.
func (e Endpoint) Clone() Endpoint {
	return e.clone()
}

// ValidateURL checks that raw parses as an absolute http(s) URL
func ValidateURL(raw string) error {
	if raw == "" {
		return &ValidationError{Reason: "url cannot be empty"}
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("url is not parseable: %v", err)}
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return &ValidationError{Reason: fmt.Sprintf("url must be absolute: %s", raw)}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &ValidationError{Reason: fmt.Sprintf("url scheme must be http or https: %s", raw)}
	}
	return nil
}

// ValidateEventType validates the event type format. Unknown event
// types are permitted (new call sites appear over time); only the
// format is enforced.
func ValidateEventType(eventType string) error {
	if eventType == "" {
		return &ValidationError{Reason: "event type cannot be empty"}
	}
	if strings.EqualFold(eventType, EventAll) {
		return nil
	}
	if !eventTypePattern.MatchString(eventType) {
		return &ValidationError{Reason: fmt.Sprintf("event type must be hierarchical and contain only [a-zA-Z0-9_.]: %s", eventType)}
	}
	return nil
}
