// Package api serves the status of the running blocklock agents over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dcipher-network/dcipher/agent/blocklock"
	"github.com/dcipher-network/dcipher/log"
	"github.com/dcipher-network/dcipher/metrics"
)

const (
	moduleName = "api"
)

// StatusProvider reports the status of an agent. The boolean is false while
// the agent is initializing.
type StatusProvider interface {
	Status() (blocklock.Status, bool)
}

// SchemeStatus is the status of the agent of one scheme.
type SchemeStatus struct {
	SchemeID string            `json:"scheme_id"`
	Ready    bool              `json:"ready"`
	Status   *blocklock.Status `json:"status,omitempty"`
}

// Handler serves the agent status API.
type Handler struct {
	router    *chi.Mux
	providers map[string]StatusProvider
	logger    *log.Logger
}

// NewHandler returns the API handler for the given agents, keyed by scheme.
func NewHandler(providers map[string]StatusProvider, l *log.Logger) *Handler {
	logger := l.WithModule(moduleName)
	h := &Handler{
		router:    chi.NewRouter(),
		providers: providers,
		logger:    logger,
	}

	h.router.Use(MetricsMiddleware(metrics.NewDefaultRequestMetrics(moduleName), logger))
	h.router.Use(middleware.Recoverer)
	h.router.Use(CorsMiddleware)
	h.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.getHealth)
		r.Get("/status", h.getStatuses)
		r.Get("/status/{scheme}", h.getStatus)
	})
	return h
}

// Router returns the router serving the API.
func (h *Handler) Router() http.Handler {
	return h.router
}

func (h *Handler) schemeStatus(scheme string) (SchemeStatus, error) {
	p, ok := h.providers[scheme]
	if !ok {
		return SchemeStatus{}, ErrNotFound
	}
	s := SchemeStatus{SchemeID: scheme}
	if status, ready := p.Status(); ready {
		s.Ready = true
		s.Status = &status
	}
	return s, nil
}

func (h *Handler) getHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getStatuses(w http.ResponseWriter, r *http.Request) {
	schemes := make([]string, 0, len(h.providers))
	for scheme := range h.providers {
		schemes = append(schemes, scheme)
	}
	slices.Sort(schemes)

	statuses := make([]SchemeStatus, 0, len(schemes))
	for _, scheme := range schemes {
		s, err := h.schemeStatus(scheme)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		statuses = append(statuses, s)
	}
	h.writeJSON(w, r, http.StatusOK, statuses)
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	s, err := h.schemeStatus(chi.URLParam(r, "scheme"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !s.Ready {
		h.writeError(w, r, ErrNotReady)
		return
	}
	h.writeJSON(w, r, http.StatusOK, s)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response",
			"request_id", r.Context().Value(requestIDKey),
			"err", err,
		)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeJSON(w, r, HttpCodeForError(err), errorResponse{Msg: err.Error()})
}
