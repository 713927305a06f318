package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cityforge/webhooks/webhook"
	_ "github.com/lib/pq" // PostgreSQL driver
)

/* PostgreSQL implementation of webhook.Repository
 * One row per endpoint; events, headers and the retry policy are kept
 * as JSONB columns so the record stays a single atomic write.
 */

type Repository struct {
	DB *sql.DB
}

// NewRepository creates a PostgreSQL repository with the default pool (25, 5, 5 min)
func NewRepository(connectionString string) (*Repository, error) {
	return NewRepositoryWithPoolConfig(connectionString, 25, 5, 5)
}

// NewRepositoryWithPoolConfig creates a PostgreSQL repository with a custom pool.
// maxOpenConns: maximum simultaneous connections (0 = unlimited)
// maxIdleConns: maximum idle connections kept in the pool
// maxLifeMinutes: maximum minutes a connection may be reused
func NewRepositoryWithPoolConfig(connectionString string, maxOpenConns, maxIdleConns, maxLifeMinutes int) (*Repository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if maxLifeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(maxLifeMinutes) * time.Minute)
	}

	return &Repository{
		DB: db,
	}, nil
}

// Store inserts a new endpoint row
func (r *Repository) Store(ctx context.Context, endpoint webhook.Endpoint) error {
	query := `
		INSERT INTO webhook_endpoints
			(id, name, url, secret, enabled, events, headers, retry_policy, timeout_seconds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	events, headers, policy, err := marshalColumns(endpoint)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(ctx, query,
		endpoint.ID,
		endpoint.Name,
		endpoint.URL,
		endpoint.Secret,
		endpoint.Enabled,
		events,
		headers,
		policy,
		endpoint.TimeoutSeconds,
		endpoint.CreatedAt,
		endpoint.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting endpoint: %w", err)
	}
	return nil
}

// Get selects an endpoint by id
func (r *Repository) Get(ctx context.Context, id string) (webhook.Endpoint, error) {
	query := `
		SELECT id, name, url, secret, enabled, events, headers, retry_policy, timeout_seconds, created_at, updated_at
		FROM webhook_endpoints WHERE id = $1
	`

	endpoint, err := scanEndpoint(r.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return webhook.Endpoint{}, webhook.ErrNotFound
	}
	if err != nil {
		return webhook.Endpoint{}, fmt.Errorf("selecting endpoint: %w", err)
	}
	return endpoint, nil
}

// List returns all endpoints ordered by creation time
func (r *Repository) List(ctx context.Context) ([]webhook.Endpoint, error) {
	query := `
		SELECT id, name, url, secret, enabled, events, headers, retry_policy, timeout_seconds, created_at, updated_at
		FROM webhook_endpoints ORDER BY created_at
	`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("selecting endpoints: %w", err)
	}
	defer rows.Close()

	endpoints := make([]webhook.Endpoint, 0)
	for rows.Next() {
		endpoint, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning endpoint: %w", err)
		}
		endpoints = append(endpoints, endpoint)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating endpoints: %w", err)
	}
	return endpoints, nil
}

// Update rewrites the full row; last write wins.
func (r *Repository) Update(ctx context.Context, endpoint webhook.Endpoint) error {
	query := `
		UPDATE webhook_endpoints
		SET name = $1, url = $2, secret = $3, enabled = $4, events = $5,
			headers = $6, retry_policy = $7, timeout_seconds = $8, updated_at = $9
		WHERE id = $10
	`

	events, headers, policy, err := marshalColumns(endpoint)
	if err != nil {
		return err
	}

	result, err := r.DB.ExecContext(ctx, query,
		endpoint.Name,
		endpoint.URL,
		endpoint.Secret,
		endpoint.Enabled,
		events,
		headers,
		policy,
		endpoint.TimeoutSeconds,
		endpoint.UpdatedAt,
		endpoint.ID,
	)
	if err != nil {
		return fmt.Errorf("updating endpoint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

// Remove deletes an endpoint row by id
func (r *Repository) Remove(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, "DELETE FROM webhook_endpoints WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting endpoint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

// Close closes the database connection
func (r *Repository) Close(ctx context.Context) error {
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

// CreateTable creates the webhook_endpoints table (useful for tests and first boot)
func (r *Repository) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS webhook_endpoints (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			events JSONB NOT NULL DEFAULT '[]',
			headers JSONB,
			retry_policy JSONB NOT NULL,
			timeout_seconds INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`

	_, err := r.DB.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("creating table: %w", err)
	}
	return nil
}

// DropTable removes the webhook_endpoints table (useful for tests)
func (r *Repository) DropTable(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, "DROP TABLE IF EXISTS webhook_endpoints CASCADE")
	if err != nil {
		return fmt.Errorf("dropping table: %w", err)
	}
	return nil
}

// retryPolicyColumn mirrors webhook.RetryPolicy in the JSONB column.
type retryPolicyColumn struct {
	MaxRetries         int  `json:"maxRetries"`
	RetryDelaySeconds  int  `json:"retryDelaySeconds"`
	ExponentialBackoff bool `json:"exponentialBackoff"`
}

func marshalColumns(endpoint webhook.Endpoint) (events, headers, policy []byte, err error) {
	events, err = json.Marshal(endpoint.Events)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling events: %w", err)
	}
	headers, err = json.Marshal(endpoint.Headers)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling headers: %w", err)
	}
	policy, err = json.Marshal(retryPolicyColumn(endpoint.RetryPolicy))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling retry policy: %w", err)
	}
	return events, headers, policy, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row scanner) (webhook.Endpoint, error) {
	var (
		endpoint webhook.Endpoint
		events   []byte
		headers  []byte
		policy   []byte
	)

	err := row.Scan(
		&endpoint.ID,
		&endpoint.Name,
		&endpoint.URL,
		&endpoint.Secret,
		&endpoint.Enabled,
		&events,
		&headers,
		&policy,
		&endpoint.TimeoutSeconds,
		&endpoint.CreatedAt,
		&endpoint.UpdatedAt,
	)
	if err != nil {
		return webhook.Endpoint{}, err
	}

	if err := json.Unmarshal(events, &endpoint.Events); err != nil {
		return webhook.Endpoint{}, fmt.Errorf("unmarshaling events: %w", err)
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &endpoint.Headers); err != nil {
			return webhook.Endpoint{}, fmt.Errorf("unmarshaling headers: %w", err)
		}
	}
	var column retryPolicyColumn
	if err := json.Unmarshal(policy, &column); err != nil {
		return webhook.Endpoint{}, fmt.Errorf("unmarshaling retry policy: %w", err)
	}
	endpoint.RetryPolicy = webhook.RetryPolicy(column)

	endpoint.CreatedAt = endpoint.CreatedAt.UTC()
	endpoint.UpdatedAt = endpoint.UpdatedAt.UTC()

	return endpoint, nil
}
