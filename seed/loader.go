package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/cityforge/webhooks/webhook"
	"gopkg.in/yaml.v3"
)

/* Loader reads endpoint configuration from endpoints.yaml
 * Seeded endpoints are created through the regular registry service at
 * startup, so file-declared and API-created endpoints behave the same.
 */

// File represents the structure of endpoints.yaml
type File struct {
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig represents a single endpoint in the YAML file
type EndpointConfig struct {
	Name               string            `yaml:"name"`
	URL                string            `yaml:"url"`
	Secret             string            `yaml:"secret"`
	Enabled            *bool             `yaml:"enabled"`
	Events             []string          `yaml:"events"`
	Headers            map[string]string `yaml:"headers"`
	MaxRetries         *int              `yaml:"max_retries"`
	RetryDelaySeconds  *int              `yaml:"retry_delay_seconds"`
	ExponentialBackoff *bool             `yaml:"exponential_backoff"`
	TimeoutSeconds     *int              `yaml:"timeout_seconds"`
}

// Params converts the YAML entry into registry create parameters
func (c EndpointConfig) Params() webhook.CreateEndpointParams {
	params := webhook.CreateEndpointParams{
		Name:           c.Name,
		URL:            c.URL,
		Secret:         c.Secret,
		Enabled:        c.Enabled,
		Events:         c.Events,
		Headers:        c.Headers,
		TimeoutSeconds: c.TimeoutSeconds,
	}

	if c.MaxRetries != nil || c.RetryDelaySeconds != nil || c.ExponentialBackoff != nil {
		policy := webhook.DefaultRetryPolicy()
		if c.MaxRetries != nil {
			policy.MaxRetries = *c.MaxRetries
		}
		if c.RetryDelaySeconds != nil {
			policy.RetryDelaySeconds = *c.RetryDelaySeconds
		}
		if c.ExponentialBackoff != nil {
			policy.ExponentialBackoff = *c.ExponentialBackoff
		}
		params.RetryPolicy = &policy
	}

	return params
}

// Load reads and parses an endpoints file, validating every entry.
func Load(filePath string) ([]webhook.CreateEndpointParams, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading endpoints file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing endpoints YAML: %w", err)
	}

	params := make([]webhook.CreateEndpointParams, 0, len(file.Endpoints))
	for i, entry := range file.Endpoints {
		p := entry.Params()
		if _, err := webhook.BuildEndpoint(p); err != nil {
			return nil, fmt.Errorf("validating endpoint %d (%s): %w", i, entry.Name, err)
		}
		params = append(params, p)
	}

	return params, nil
}

// Apply creates every seeded endpoint through the registry service.
// Entries whose name already exists in the registry are skipped, so
// re-running the seed on a persistent store stays idempotent.
func Apply(ctx context.Context, svc webhook.UseCase, params []webhook.CreateEndpointParams) error {
	existing, err := svc.ListEndpoints(ctx)
	if err != nil {
		return fmt.Errorf("listing endpoints: %w", err)
	}
	names := make(map[string]struct{}, len(existing))
	for _, endpoint := range existing {
		names[endpoint.Name] = struct{}{}
	}

	for _, p := range params {
		if _, ok := names[p.Name]; ok {
			continue
		}
		if _, err := svc.CreateEndpoint(ctx, p); err != nil {
			return fmt.Errorf("seeding endpoint %s: %w", p.Name, err)
		}
	}
	return nil
}
