package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

/* Event is the envelope delivered to every subscribed endpoint.
 * It is a transient value object: constructed once per domain
 * occurrence, handed to the dispatcher, never persisted.
 */

// Event types produced by the platform's call sites. The enum is
// advisory: endpoints may subscribe to types not listed here.
const (
	EventSubmissionCreated           = "submission.created"
	EventModificationCreated         = "modification.created"
	EventForumReportCreated          = "forum.report.created"
	EventForumCategoryRequestCreated = "forum.category_request.created"
	EventEmailVerificationRequested  = "auth.email_verification.requested"
	EventPasswordResetRequested      = "auth.password_reset.requested"
	EventAdminNotification           = "admin.notification"
)

// KnownEventTypes returns the advisory enumeration, in a stable order.
func KnownEventTypes() []string {
	return []string{
		EventSubmissionCreated,
		EventModificationCreated,
		EventForumReportCreated,
		EventForumCategoryRequestCreated,
		EventEmailVerificationRequested,
		EventPasswordResetRequested,
		EventAdminNotification,
	}
}

// Event is the wire envelope: {"id","type","timestamp","data"}.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent constructs an event envelope with a fresh unique id and the
// current UTC time. The data is wrapped verbatim; its shape contract
// is owned by the call site, not validated here.
func NewEvent(eventType string, data interface{}) (Event, error) {
	if err := ValidateEventType(eventType); err != nil {
		return Event{}, fmt.Errorf("validating event type: %w", err)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshaling event data: %w", err)
	}

	return Event{
		ID:        newEventID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// MarshalJSON pins the timestamp to RFC 3339 so the body bytes are
// stable for signing.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		Alias:     (*Alias)(&e),
	})
}

// UnmarshalJSON parses the JSON-encoded envelope
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("unmarshaling event: %w", err)
	}

	timestamp, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
	if err != nil {
		timestamp, err = time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parsing timestamp: %w", err)
		}
	}
	e.Timestamp = timestamp

	return nil
}

func newEventID() string {
	return "evt_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

func newEndpointID() string {
	return "ep_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
