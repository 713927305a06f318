//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/cityforge/webhooks/webhook"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

/* Test Helpers para PostgreSQL com Testcontainers
 * Sobe um container Docker real do PostgreSQL, cria o schema e retorna
 * a connection string, com cleanup automático após os testes.
 *
 * Referências:
 * - https://golang.testcontainers.org/modules/postgres/
 * - https://eltonminetto.dev/post/2024-02-15-using-test-helpers/
 */

const (
	defaultDatabase = "testdb"
	defaultUser     = "testuser"
	defaultPassword = "testpass"
)

// PostgresContainer encapsula o container e a conexão
type PostgresContainer struct {
	Container testcontainers.Container
	DB        *sql.DB
	ConnStr   string
}

// SetupPostgresContainer cria e inicia um container PostgreSQL real
func SetupPostgresContainer(t *testing.T, ctx context.Context) (*PostgresContainer, func()) {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(defaultDatabase),
		postgres.WithUsername(defaultUser),
		postgres.WithPassword(defaultPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)

	err = db.PingContext(ctx)
	require.NoError(t, err)

	container := &PostgresContainer{
		Container: pgContainer,
		DB:        db,
		ConnStr:   connStr,
	}

	cleanup := func() {
		if db != nil {
			_ = db.Close()
		}
		if pgContainer != nil {
			_ = pgContainer.Terminate(ctx)
		}
	}

	return container, cleanup
}

// CreateTestRepository cria um repositório conectado ao container, com o
// schema já criado
func CreateTestRepository(t *testing.T, ctx context.Context, connStr string) *Repository {
	t.Helper()

	repo, err := NewRepository(connStr)
	require.NoError(t, err)

	require.NoError(t, repo.CreateTable(ctx))

	return repo
}

// NewTestEndpoint monta um registro válido para os testes de integração
func NewTestEndpoint(t *testing.T, id string) webhook.Endpoint {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
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

// AssertEndpointCount verifica quantos endpoints estão na tabela
func AssertEndpointCount(t *testing.T, ctx context.Context, db *sql.DB, expected int) {
	t.Helper()

	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM webhook_endpoints").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, expected, count)
}
