//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/cityforge/webhooks/webhook"
	"github.com/cityforge/webhooks/webhook/redis"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

/* Test Helpers for Redis Integration Tests
 * Following the pattern from: https://eltonminetto.dev/post/2024-02-15-using-test-helpers/
 */

// RedisContainer holds the Redis testcontainer and connection details
type RedisContainer struct {
	Container *testcontainersredis.RedisContainer
	Addr      string
}

// SetupRedisContainer creates and starts a Redis testcontainer
func SetupRedisContainer(t *testing.T, ctx context.Context) (*RedisContainer, func()) {
	t.Helper()

	redisContainer, err := testcontainersredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start Redis container")

	addr, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get Redis connection string")

	// Remove redis:// prefix if present
	if len(addr) > 8 && addr[:8] == "redis://" {
		addr = addr[8:]
	}

	rc := &RedisContainer{
		Container: redisContainer,
		Addr:      addr,
	}

	cleanup := func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	}

	return rc, cleanup
}

// CreateTestRepository creates a Redis repository connected to the test container
func CreateTestRepository(t *testing.T, addr string) *redis.Repository {
	t.Helper()

	repo, err := redis.NewRepository(addr, "", 0)
	require.NoError(t, err, "failed to create Redis repository")

	return repo
}

// NewTestEndpoint builds a valid endpoint record for integration tests
func NewTestEndpoint(t *testing.T, id string) webhook.Endpoint {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	return webhook.Endpoint{
		ID:      id,
		Name:    "endpoint-" + id,
		URL:     "https://hooks.example.com/" + id,
		Secret:  "secret",
		Enabled: true,
		Events:  []string{"submission.created", "modification.created"},
		Headers: map[string]string{"X-Env": "test"},
		RetryPolicy: webhook.RetryPolicy{
			MaxRetries:         3,
			RetryDelaySeconds:  5,
			ExponentialBackoff: true,
		},
		TimeoutSeconds: 30,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
