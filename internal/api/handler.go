package api

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pulsewatch/pulsewatch/internal/metric"
	"github.com/pulsewatch/pulsewatch/internal/storage"
	"github.com/pulsewatch/pulsewatch/internal/threshold"
)

const (
	// defaultListLimit applies when ?limit= is absent on history listings.
	defaultListLimit = 50

	// exportLimit bounds how many samples the CSV export emits when no
	// range is given.
	exportLimit = 10000

	// defaultSummaryAlerts is how many recent alert timestamps the
	// summary includes by default.
	defaultSummaryAlerts = 5
)

// Handler serves all /api/v1/* endpoints.
type Handler struct {
	store      storage.Store
	thresholds *threshold.Store
	router     chi.Router
	started    time.Time
}

// New creates a Handler backed by the given stores and registers all routes.
func New(st storage.Store, th *threshold.Store) http.Handler {
	h := &Handler{
		store:      st,
		thresholds: th,
		started:    time.Now().UTC(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)

		r.Get("/thresholds", h.listThresholds)
		r.Put("/thresholds", h.setThreshold)
		r.Delete("/thresholds", h.deleteThreshold)

		r.Get("/metrics", h.recentMetrics)
		r.Get("/metrics/history", h.metricsHistory)
		r.Get("/metrics/export", h.exportMetrics)

		r.Get("/alerts", h.recentAlerts)
		r.Get("/alerts/history", h.alertsHistory)

		r.Get("/summary", h.summary)
	})

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — liveness plus process uptime.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(h.started).Truncate(time.Second).String(),
	})
}

// listThresholds returns GET /api/v1/thresholds — the limit in effect per
// kind for the subject in ?subject= (global view when absent).
func (h *Handler) listThresholds(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	snap := h.thresholds.Snapshot()

	effective := make(map[metric.Kind]float64)
	for _, kind := range metric.Kinds() {
		if limit, ok := snap.Resolve(kind, subject); ok {
			effective[kind] = limit
		}
	}
	jsonResp(w, http.StatusOK, ThresholdsResponse{Subject: subject, Effective: effective})
}

// setThreshold handles PUT /api/v1/thresholds — create or replace the
// threshold for a (kind, subject) pair.
func (h *Handler) setThreshold(w http.ResponseWriter, r *http.Request) {
	var req SetThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	kind, err := metric.ParseKind(req.Kind)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Limit <= 0 {
		jsonErr(w, http.StatusBadRequest, "limit must be positive")
		return
	}

	t := threshold.Threshold{Kind: kind, Limit: req.Limit, Subject: req.Subject}
	h.thresholds.Set(t)
	jsonResp(w, http.StatusOK, ThresholdEntry{Kind: t.Kind, Limit: t.Limit, Subject: t.Subject})
}

// deleteThreshold handles DELETE /api/v1/thresholds?kind=&subject=.
func (h *Handler) deleteThreshold(w http.ResponseWriter, r *http.Request) {
	kind, err := metric.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	h.thresholds.Delete(kind, r.URL.Query().Get("subject"))
	w.WriteHeader(http.StatusNoContent)
}

// recentMetrics returns GET /api/v1/metrics?limit= — newest samples first.
func (h *Handler) recentMetrics(w http.ResponseWriter, r *http.Request) {
	n, ok := limitParam(w, r, defaultListLimit)
	if !ok {
		return
	}

	samples, err := h.store.RecentSamples(r.Context(), n)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "listing samples failed")
		return
	}

	out := make([]SampleResponse, 0, len(samples))
	for _, s := range samples {
		out = append(out, toSampleResponse(s))
	}
	jsonResp(w, http.StatusOK, out)
}

// metricsHistory returns GET /api/v1/metrics/history?start=&end= — samples
// within an inclusive RFC 3339 time range.
func (h *Handler) metricsHistory(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeParams(w, r)
	if !ok {
		return
	}

	samples, err := h.store.SamplesInRange(r.Context(), from, to)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "listing samples failed")
		return
	}

	out := make([]SampleResponse, 0, len(samples))
	for _, s := range samples {
		out = append(out, toSampleResponse(s))
	}
	jsonResp(w, http.StatusOK, out)
}

// exportMetrics returns GET /api/v1/metrics/export — sample history as CSV.
// An optional start/end pair narrows the export to a range.
func (h *Handler) exportMetrics(w http.ResponseWriter, r *http.Request) {
	var (
		samples []metric.Sample
		err     error
	)
	if r.URL.Query().Get("start") != "" || r.URL.Query().Get("end") != "" {
		from, to, ok := rangeParams(w, r)
		if !ok {
			return
		}
		samples, err = h.store.SamplesInRange(r.Context(), from, to)
	} else {
		samples, err = h.store.RecentSamples(r.Context(), exportLimit)
	}
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "listing samples failed")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="metrics.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"type", "value", "ts"})
	for _, s := range samples {
		_ = cw.Write([]string{
			string(s.Kind),
			strconv.FormatFloat(s.Value, 'f', -1, 64),
			s.ObservedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
}

// recentAlerts returns GET /api/v1/alerts?limit= — newest alerts first.
func (h *Handler) recentAlerts(w http.ResponseWriter, r *http.Request) {
	n, ok := limitParam(w, r, defaultListLimit)
	if !ok {
		return
	}

	alerts, err := h.store.RecentAlerts(r.Context(), n)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "listing alerts failed")
		return
	}
	jsonResp(w, http.StatusOK, alerts)
}

// alertsHistory returns GET /api/v1/alerts/history?start=&end=.
func (h *Handler) alertsHistory(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeParams(w, r)
	if !ok {
		return
	}

	alerts, err := h.store.AlertsInRange(r.Context(), from, to)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "listing alerts failed")
		return
	}
	jsonResp(w, http.StatusOK, alerts)
}

// summary returns GET /api/v1/summary?n= — aggregate alert and sample stats.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	n, ok := limitParam(w, r, defaultSummaryAlerts)
	if !ok {
		return
	}

	sum, err := h.store.Summary(r.Context(), n)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "building summary failed")
		return
	}
	jsonResp(w, http.StatusOK, sum)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// limitParam parses ?limit= (or ?n=) with a default; a zero or negative
// value is rejected with a 400 written to w.
func limitParam(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		raw = r.URL.Query().Get("n")
	}
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

// rangeParams parses the required RFC 3339 ?start= and ?end= parameters.
// Failures are written to w as a 400.
func rangeParams(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "start must be an RFC 3339 timestamp")
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "end must be an RFC 3339 timestamp")
		return time.Time{}, time.Time{}, false
	}
	if to.Before(from) {
		jsonErr(w, http.StatusBadRequest, "end is before start")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
