package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cityforge/webhooks/config"
	"github.com/cityforge/webhooks/webhook"
	"github.com/cityforge/webhooks/webhook/memory"
	"github.com/cityforge/webhooks/webhook/postgres"
	"github.com/cityforge/webhooks/webhook/redis"
	"github.com/rs/zerolog/log"
)

/* send-test - fire one test event through the real delivery engine and
 * print every outcome, retries included.
 * Usage: go run cmd/send-test/main.go <event-type> [json-data]
 */

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: send-test <event-type> [json-data]\n")
		os.Exit(1)
	}
	eventType := os.Args[1]
	data := json.RawMessage(`{"test":true}`)
	if len(os.Args) > 2 {
		data = json.RawMessage(os.Args[2])
	}

	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	ctx := context.Background()

	repo, err := newRepository(ctx, cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer repo.Close(ctx)

	svc := webhook.NewService(repo)
	dispatcher := webhook.NewDispatcher(svc, log.With().Str("component", "dispatcher").Logger())
	dispatcher.Enabled = cfg.WebhooksEnabled

	event, err := webhook.NewEvent(eventType, data)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	fmt.Printf("Sending event %s (%s)\n", event.ID, event.Type)
	outcomes := dispatcher.Send(ctx, event)
	if len(outcomes) == 0 {
		fmt.Println("No enabled endpoints subscribe to this event type")
		return
	}

	failed := 0
	for _, outcome := range outcomes {
		if outcome.Success {
			fmt.Printf("✓ %s delivered after %d attempt(s), status %d\n",
				outcome.EndpointID, outcome.Attempts, outcome.Status)
			continue
		}
		failed++
		fmt.Printf("❌ %s exhausted after %d attempt(s): %s\n",
			outcome.EndpointID, outcome.Attempts, outcome.Error)
	}

	if failed == len(outcomes) {
		if cfg.EmailFallback {
			fmt.Println("All deliveries failed; email fallback would be invoked")
		}
		os.Exit(1)
	}
}

func newRepository(ctx context.Context, cfg *config.Config) (webhook.Repository, error) {
	switch cfg.Store {
	case "memory":
		return memory.NewRepository(), nil
	case "redis":
		return redis.NewRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "postgres":
		repo, err := postgres.NewRepository(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := repo.CreateTable(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store %q (expected memory, redis or postgres)", cfg.Store)
	}
}
