package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cityforge/webhooks/config"
	"github.com/cityforge/webhooks/internal/http/chi"
	"github.com/cityforge/webhooks/metrics"
	"github.com/cityforge/webhooks/seed"
	"github.com/cityforge/webhooks/webhook"
	"github.com/cityforge/webhooks/webhook/memory"
	"github.com/cityforge/webhooks/webhook/postgres"
	"github.com/cityforge/webhooks/webhook/redis"
	"github.com/rs/zerolog/log"
)

const TIMEOUT = 30 * time.Second

/* api - the webhook administration and delivery service.
 * main wires the registry store, the delivery dispatcher and the admin
 * HTTP API together. Imports flow one direction only: the application
 * imports the business layer, which imports the storage layer.
 */

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	repo, err := newRepository(ctx, cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer repo.Close(ctx)

	svc := webhook.NewService(repo)

	recorder, err := metrics.NewRecorder()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer recorder.Shutdown(ctx)

	dispatcher := webhook.NewDispatcher(svc, log.With().Str("component", "dispatcher").Logger())
	dispatcher.Enabled = cfg.WebhooksEnabled
	dispatcher.Metrics = recorder

	if cfg.EndpointsFile != "" {
		params, err := seed.Load(cfg.EndpointsFile)
		if err != nil {
			fmt.Println(err)
			return
		}
		if err := seed.Apply(ctx, svc, params); err != nil {
			fmt.Println(err)
			return
		}
		log.Info().Int("endpoints", len(params)).Str("file", cfg.EndpointsFile).
			Msg("seeded endpoint registry")
	}

	r := chi.Handlers(ctx, svc, dispatcher, recorder, recorder.Handler())
	http.Handle("/", r)
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      http.DefaultServeMux,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	fmt.Printf("Listening on port %s\n", cfg.Port)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
		return
	}
	err = <-errShutdown
	if err != nil {
		fmt.Println(err)
		return
	}
}

// newRepository selects the registry backend from configuration
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

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	}
}
