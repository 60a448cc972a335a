// Package api serves the read-side reports over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/report"
)

// Reports is the report surface the API exposes.
type Reports interface {
	OrgMetrics(ctx context.Context, month model.Month, role model.RoleFilter) (*report.ScopeReport, error)
	AreaMetrics(ctx context.Context, month model.Month, role model.RoleFilter) (*report.AreasReport, error)
	AreaDetail(ctx context.Context, area string, month model.Month, role model.RoleFilter) (*report.ScopeReport, error)
	RegionMetrics(ctx context.Context, region string, month model.Month, role model.RoleFilter) (*report.RegionReport, error)
	Months(ctx context.Context, level model.ScopeLevel) ([]model.Month, error)
	Feedback(ctx context.Context, area string, month model.Month, role model.RoleFilter, field model.FeedbackField) (*report.FeedbackReport, error)
	Package(ctx context.Context, id string) (*model.MonthlyPackage, error)
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	Timeout        time.Duration
}

// Handler is the HTTP front end for Reports.
type Handler struct {
	reports Reports
}

// NewHandler creates a Handler.
func NewHandler(r Reports) *Handler {
	return &Handler{reports: r}
}

// Router builds the chi router with CORS and request logging.
func (h *Handler) Router(opts Options) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/months", h.handleMonths)
		r.Get("/org/metrics", h.handleOrgMetrics)
		r.Get("/areas/metrics", h.handleAreaMetrics)
		r.Get("/areas/{area}/metrics", h.handleAreaDetail)
		r.Get("/areas/{area}/feedback", h.handleFeedback)
		r.Get("/regions/{region}/metrics", h.handleRegionMetrics)
		r.Get("/packages/{id}", h.handlePackage)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleMonths(w http.ResponseWriter, r *http.Request) {
	level := model.ScopeLevel(r.URL.Query().Get("level"))
	months, err := h.reports.Months(r.Context(), level)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if months == nil {
		months = []model.Month{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"level": levelOrOrg(level), "months": months})
}

func (h *Handler) handleOrgMetrics(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := h.reports.OrgMetrics(r.Context(), q.month, q.role)
	respond(w, r, rep, err)
}

func (h *Handler) handleAreaMetrics(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := h.reports.AreaMetrics(r.Context(), q.month, q.role)
	respond(w, r, rep, err)
}

func (h *Handler) handleAreaDetail(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := h.reports.AreaDetail(r.Context(), chi.URLParam(r, "area"), q.month, q.role)
	respond(w, r, rep, err)
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := h.reports.Feedback(r.Context(), chi.URLParam(r, "area"), q.month, q.role, q.field)
	respond(w, r, rep, err)
}

func (h *Handler) handleRegionMetrics(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := h.reports.RegionMetrics(r.Context(), chi.URLParam(r, "region"), q.month, q.role)
	respond(w, r, rep, err)
}

func (h *Handler) handlePackage(w http.ResponseWriter, r *http.Request) {
	p, err := h.reports.Package(r.Context(), chi.URLParam(r, "id"))
	respond(w, r, p, err)
}

func levelOrOrg(l model.ScopeLevel) model.ScopeLevel {
	if l == "" {
		return model.LevelOrganization
	}
	return l
}

func respond[T any](w http.ResponseWriter, r *http.Request, v *T, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
