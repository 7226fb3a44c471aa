// Package httpapi exposes the integration service over HTTP with chi.
//
// Every route except the OAuth callback and /metrics requires the caller
// identity in the X-User-ID header.
package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goliatone/go-integrations/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const HeaderUserID = "X-User-ID"

type Handler struct {
	service  core.IntegrationService
	logger   core.Logger
	metrics  core.MetricsRecorder
	gatherer prometheus.Gatherer
	validate *validator.Validate
}

type Option func(*Handler)

func WithLogger(logger core.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(h *Handler) {
		if metrics != nil {
			h.metrics = metrics
		}
	}
}

// WithGatherer mounts GET /metrics for the given Prometheus gatherer.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.gatherer = gatherer
	}
}

func NewRouter(service core.IntegrationService, opts ...Option) (chi.Router, error) {
	if service == nil {
		return nil, fmt.Errorf("httpapi: integration service is required")
	}
	h := &Handler{
		service:  service,
		metrics:  core.NopMetricsRecorder{},
		validate: newValidator(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.logger == nil {
		_, h.logger = glog.Resolve("httpapi", nil, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.observeRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	// Provider redirects land here without our header; the flow owner is
	// resolved from the state value.
	r.Get("/oauth/{service}/callback", h.handleCallback)

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Get("/oauth/{service}/authorize", h.handleAuthorize)
		r.Post("/oauth/{service}/refresh", h.handleRefresh)

		r.Route("/integrations", func(r chi.Router) {
			r.Get("/", h.handleListIntegrations)
			r.Get("/{id}", h.handleGetIntegration)
			r.Delete("/{id}", h.handleDisconnect)
			r.Post("/{id}/reconnect", h.handleReconnect)
			r.Patch("/{id}/configuration", h.handleUpdateConfiguration)
		})

		r.Route("/operations", func(r chi.Router) {
			r.Get("/", h.handleListOperations)
			r.Post("/", h.handleCreateOperation)
			r.Get("/{id}", h.handleGetOperation)
			r.Get("/{id}/status", h.handleGetOperationStatus)
			r.Post("/{id}/dispatch", h.handleDispatchOperation)
			r.Post("/{id}/cancel", h.handleCancelOperation)
		})

		r.Post("/automations/{id}/trigger", h.handleTriggerAutomation)
	})

	return r, nil
}
