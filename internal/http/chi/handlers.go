package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/cityforge/webhooks/metrics"
	"github.com/cityforge/webhooks/webhook"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
)

// Handlers sets up the webhook administration API
func Handlers(ctx context.Context, svc webhook.UseCase, dispatcher *webhook.Dispatcher, collector metrics.Collector, metricsHandler http.Handler) *chi.Mux {
	logger := httplog.NewLogger("cityforge-webhooks", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	// Webhook administration routes
	r.Route("/v1/webhooks", func(r chi.Router) {
		r.Get("/", listEndpoints(svc).ServeHTTP)
		r.Post("/", createEndpoint(svc).ServeHTTP)
		r.Get("/event-types", listEventTypes().ServeHTTP)
		r.Post("/test", sendTestEvent(dispatcher).ServeHTTP)
		if collector != nil {
			r.Get("/stats", getStats(collector).ServeHTTP)
		}
		r.Get("/{id}", getEndpoint(svc).ServeHTTP)
		r.Patch("/{id}", updateEndpoint(svc).ServeHTTP)
		r.Delete("/{id}", deleteEndpoint(svc).ServeHTTP)
	})

	return r
}
