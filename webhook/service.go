package webhook

import (
	"context"
	"fmt"
	"time"
)

/* Service represents the business logic layer
 * Uses pointer semantics as it's an API, not data
 */

// UseCase defines the business operations for endpoint management
type UseCase interface {
	CreateEndpoint(ctx context.Context, params CreateEndpointParams) (Endpoint, error)
	GetEndpoint(ctx context.Context, id string) (Endpoint, error)
	ListEndpoints(ctx context.Context) ([]Endpoint, error)
	UpdateEndpoint(ctx context.Context, id string, params UpdateEndpointParams) (Endpoint, error)
	DeleteEndpoint(ctx context.Context, id string) error
	EndpointsForEvent(ctx context.Context, eventType string) ([]Endpoint, error)
}

// CreateEndpointParams carries a create request. Optional fields are
// pointers so absence is distinguishable from the zero value.
type CreateEndpointParams struct {
	Name           string
	URL            string
	Secret         string
	Enabled        *bool
	Events         []string
	Headers        map[string]string
	RetryPolicy    *RetryPolicy
	TimeoutSeconds *int
}

// UpdateEndpointParams carries a partial update. Only non-nil fields
// are merged into the stored record.
type UpdateEndpointParams struct {
	Name           *string
	URL            *string
	Secret         *string
	Enabled        *bool
	Events         []string
	Headers        map[string]string
	RetryPolicy    *RetryPolicy
	TimeoutSeconds *int
}

// BuildEndpoint applies defaults to the params, assigns a fresh id and
// validates the result. Exposed so the seed-file validator can check a
// configuration without a store behind it.
func BuildEndpoint(params CreateEndpointParams) (Endpoint, error) {
	now := time.Now().UTC()

	endpoint := Endpoint{
		ID:             newEndpointID(),
		Name:           params.Name,
		URL:            params.URL,
		Secret:         params.Secret,
		Enabled:        true,
		Events:         params.Events,
		Headers:        params.Headers,
		RetryPolicy:    DefaultRetryPolicy(),
		TimeoutSeconds: DefaultTimeoutSeconds,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if params.Enabled != nil {
		endpoint.Enabled = *params.Enabled
	}
	if params.RetryPolicy != nil {
		endpoint.RetryPolicy = *params.RetryPolicy
	}
	if params.TimeoutSeconds != nil {
		endpoint.TimeoutSeconds = *params.TimeoutSeconds
	}
	if endpoint.Events == nil {
		endpoint.Events = []string{}
	}

	if err := endpoint.Validate(); err != nil {
		return Endpoint{}, err
	}
	return endpoint, nil
}

type Service struct {
	Repo Repository
}

// NewService creates a new registry service with dependency injection
func NewService(repo Repository) *Service {
	return &Service{
		Repo: repo,
	}
}

// CreateEndpoint validates the configuration, applies defaults and
// stores the new endpoint. The returned record includes the secret:
// the caller here is internal, not the HTTP boundary.
func (s *Service) CreateEndpoint(ctx context.Context, params CreateEndpointParams) (Endpoint, error) {
	endpoint, err := BuildEndpoint(params)
	if err != nil {
		return Endpoint{}, err
	}

	if err := s.Repo.Store(ctx, endpoint); err != nil {
		return Endpoint{}, fmt.Errorf("storing endpoint: %w", err)
	}
	return endpoint, nil
}

// GetEndpoint returns the full record or ErrNotFound
func (s *Service) GetEndpoint(ctx context.Context, id string) (Endpoint, error) {
	return s.Repo.Get(ctx, id)
}

// ListEndpoints returns all endpoints with their secrets intact; the
// HTTP layer is responsible for masking before responding to clients.
func (s *Service) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	return s.Repo.List(ctx)
}

// UpdateEndpoint merges only the provided fields, re-validates the
// record and bumps updated_at. Returns ErrNotFound for unknown ids.
func (s *Service) UpdateEndpoint(ctx context.Context, id string, params UpdateEndpointParams) (Endpoint, error) {
	endpoint, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Endpoint{}, err
	}

	if params.Name != nil {
		endpoint.Name = *params.Name
	}
	if params.URL != nil {
		endpoint.URL = *params.URL
	}
	if params.Secret != nil {
		endpoint.Secret = *params.Secret
	}
	if params.Enabled != nil {
		endpoint.Enabled = *params.Enabled
	}
	if params.Events != nil {
		endpoint.Events = params.Events
	}
	if params.Headers != nil {
		endpoint.Headers = params.Headers
	}
	if params.RetryPolicy != nil {
		endpoint.RetryPolicy = *params.RetryPolicy
	}
	if params.TimeoutSeconds != nil {
		endpoint.TimeoutSeconds = *params.TimeoutSeconds
	}
	endpoint.UpdatedAt = time.Now().UTC()

	if err := endpoint.Validate(); err != nil {
		return Endpoint{}, err
	}

	if err := s.Repo.Update(ctx, endpoint); err != nil {
		return Endpoint{}, fmt.Errorf("updating endpoint: %w", err)
	}
	return endpoint, nil
}

// DeleteEndpoint removes the endpoint or returns ErrNotFound
func (s *Service) DeleteEndpoint(ctx context.Context, id string) error {
	return s.Repo.Remove(ctx, id)
}

// EndpointsForEvent returns the enabled endpoints subscribed to the
// given event type. Disabled endpoints are excluded from resolution
// entirely, so the dispatcher never sees them.
func (s *Service) EndpointsForEvent(ctx context.Context, eventType string) ([]Endpoint, error) {
	all, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}

	matched := make([]Endpoint, 0, len(all))
	for _, endpoint := range all {
		if endpoint.Enabled && endpoint.SubscribesTo(eventType) {
			matched = append(matched, endpoint)
		}
	}
	return matched, nil
}
