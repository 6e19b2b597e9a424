package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/bookstore-api/internal/auth"
	"github.com/joao-fontenele/bookstore-api/internal/cart"
	"github.com/joao-fontenele/bookstore-api/internal/catalog"
	"github.com/joao-fontenele/bookstore-api/internal/orders"
	"github.com/joao-fontenele/bookstore-api/internal/social"
	"github.com/joao-fontenele/bookstore-api/internal/telemetry"
)

type handlers struct {
	cart    *cart.Handler
	orders  *orders.Handler
	social  *social.Handler
	catalog *catalog.Handler
	health  http.Handler
	metrics http.Handler
}

func newRouter(serviceName string, h handlers, authn *auth.Authenticator, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	public := func(pattern string, fn http.Handler) {
		mux.Handle(pattern, telemetry.WithHTTPRoute(fn))
	}
	private := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, telemetry.WithHTTPRoute(authn.Require(logger, fn)))
	}

	public("GET /health", h.health)
	public("GET /metrics", h.metrics)
	public("GET /books/{id}", http.HandlerFunc(h.catalog.HandleGet))
	public("GET /books/{id}/reviews", http.HandlerFunc(h.social.HandleListReviews))

	private("POST /orders", h.orders.HandleCheckout)
	private("GET /orders", h.orders.HandleList)
	private("GET /orders/{id}/invoice", h.orders.HandleInvoice)

	private("POST /cart", h.cart.HandleAdd)
	private("GET /cart", h.cart.HandleList)
	private("PUT /cart/{itemId}", h.cart.HandleUpdate)
	private("DELETE /cart/{itemId}", h.cart.HandleRemove)

	private("POST /reviews", h.social.HandleCreateReview)
	private("DELETE /reviews/{id}", h.social.HandleDeleteReview)
	private("POST /comments", h.social.HandleCreateComment)
	private("GET /comments/{bookId}", h.social.HandleListComments)
	private("POST /favorites/toggle", h.social.HandleToggleFavorite)
	private("POST /shares", h.social.HandleCreateShare)
	private("POST /reactions", h.social.HandleCreateReaction)
	private("GET /reactions", h.social.HandleListReactions)
	private("GET /notifications", h.social.HandleListNotifications)
	private("POST /notifications/{id}/read", h.social.HandleMarkNotificationRead)

	return otelhttp.NewHandler(mux, serviceName,
		otelhttp.WithSpanNameFormatter(telemetry.SpanName),
	)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// healthHandler reports 503 when any store does not answer within a second.
func healthHandler(deps map[string]pinger, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(deps))
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				logger.Warn("health check failed", "dependency", name, "error", err)
				checks[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		body := map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logger.Error("failed to encode response", "error", err)
		}
	})
}
