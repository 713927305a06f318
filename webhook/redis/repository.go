package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cityforge/webhooks/webhook"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of webhook.Repository
 * Uses Redis Hashes for endpoint records and a Set as the id index.
 * Writes go through MULTI/EXEC pipelines so a record and its index
 * entry stay consistent, and are durable (command acknowledged) before
 * the call returns.
 */

const (
	hashPrefix = "webhook:endpoint" // Hash naming: webhook:endpoint:{id}
	indexKey   = "webhook:endpoints"
)

type Repository struct {
	client *redis.Client
}

// NewRepository creates a new Redis repository
func NewRepository(addr, password string, db int) (*Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Repository{
		client: client,
	}, nil
}

// Store persists a new endpoint record and indexes its id
func (r *Repository) Store(ctx context.Context, endpoint webhook.Endpoint) error {
	fields, err := hashFields(endpoint)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hashKey(endpoint.ID), fields)
		pipe.SAdd(ctx, indexKey, endpoint.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing endpoint: %w", err)
	}
	return nil
}

// Get retrieves an endpoint by id from its Redis hash
func (r *Repository) Get(ctx context.Context, id string) (webhook.Endpoint, error) {
	data, err := r.client.HGetAll(ctx, hashKey(id)).Result()
	if err != nil {
		return webhook.Endpoint{}, fmt.Errorf("getting endpoint: %w", err)
	}
	if len(data) == 0 {
		return webhook.Endpoint{}, webhook.ErrNotFound
	}
	return fromHash(data)
}

// List returns all indexed endpoints
func (r *Repository) List(ctx context.Context) ([]webhook.Endpoint, error) {
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing endpoint ids: %w", err)
	}

	endpoints := make([]webhook.Endpoint, 0, len(ids))
	for _, id := range ids {
		endpoint, err := r.Get(ctx, id)
		if err == webhook.ErrNotFound {
			// Index entry outlived its hash; self-heal.
			r.client.SRem(ctx, indexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, nil
}

// Update rewrites the full record; last write wins.
func (r *Repository) Update(ctx context.Context, endpoint webhook.Endpoint) error {
	exists, err := r.client.Exists(ctx, hashKey(endpoint.ID)).Result()
	if err != nil {
		return fmt.Errorf("checking endpoint: %w", err)
	}
	if exists == 0 {
		return webhook.ErrNotFound
	}

	fields, err := hashFields(endpoint)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, hashKey(endpoint.ID))
		pipe.HSet(ctx, hashKey(endpoint.ID), fields)
		pipe.SAdd(ctx, indexKey, endpoint.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating endpoint: %w", err)
	}
	return nil
}

// Remove deletes the record and its index entry
func (r *Repository) Remove(ctx context.Context, id string) error {
	removed, err := r.client.SRem(ctx, indexKey, id).Result()
	if err != nil {
		return fmt.Errorf("removing endpoint from index: %w", err)
	}
	if removed == 0 {
		return webhook.ErrNotFound
	}

	if err := r.client.Del(ctx, hashKey(id)).Err(); err != nil {
		return fmt.Errorf("removing endpoint: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client for advanced operations
func (r *Repository) GetClient() *redis.Client {
	return r.client
}

// Helper functions

func hashKey(id string) string {
	return fmt.Sprintf("%s:%s", hashPrefix, id)
}

func hashFields(endpoint webhook.Endpoint) (map[string]interface{}, error) {
	eventsJSON, err := json.Marshal(endpoint.Events)
	if err != nil {
		return nil, fmt.Errorf("marshaling events: %w", err)
	}
	headersJSON, err := json.Marshal(endpoint.Headers)
	if err != nil {
		return nil, fmt.Errorf("marshaling headers: %w", err)
	}

	return map[string]interface{}{
		"id":                  endpoint.ID,
		"name":                endpoint.Name,
		"url":                 endpoint.URL,
		"secret":              endpoint.Secret,
		"enabled":             strconv.FormatBool(endpoint.Enabled),
		"events":              string(eventsJSON),
		"headers":             string(headersJSON),
		"max_retries":         endpoint.RetryPolicy.MaxRetries,
		"retry_delay_seconds": endpoint.RetryPolicy.RetryDelaySeconds,
		"exponential_backoff": strconv.FormatBool(endpoint.RetryPolicy.ExponentialBackoff),
		"timeout_seconds":     endpoint.TimeoutSeconds,
		"created_at":          endpoint.CreatedAt.Unix(),
		"updated_at":          endpoint.UpdatedAt.Unix(),
	}, nil
}

func fromHash(data map[string]string) (webhook.Endpoint, error) {
	var events []string
	if raw, ok := data["events"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &events); err != nil {
			return webhook.Endpoint{}, fmt.Errorf("unmarshaling events: %w", err)
		}
	}

	var headers map[string]string
	if raw, ok := data["headers"]; ok && raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &headers); err != nil {
			return webhook.Endpoint{}, fmt.Errorf("unmarshaling headers: %w", err)
		}
	}

	endpoint := webhook.Endpoint{
		ID:      data["id"],
		Name:    data["name"],
		URL:     data["url"],
		Secret:  data["secret"],
		Enabled: data["enabled"] == "true",
		Events:  events,
		Headers: headers,
		RetryPolicy: webhook.RetryPolicy{
			MaxRetries:         int(parseInt64(data["max_retries"])),
			RetryDelaySeconds:  int(parseInt64(data["retry_delay_seconds"])),
			ExponentialBackoff: data["exponential_backoff"] == "true",
		},
		TimeoutSeconds: int(parseInt64(data["timeout_seconds"])),
		CreatedAt:      time.Unix(parseInt64(data["created_at"]), 0).UTC(),
		UpdatedAt:      time.Unix(parseInt64(data["updated_at"]), 0).UTC(),
	}
	return endpoint, nil
}

func parseInt64(s string) int64 {
	var result int64
	fmt.Sscanf(s, "%d", &result)
	return result
}
