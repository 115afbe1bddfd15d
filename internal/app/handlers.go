package app

import (
	"encoding/json"
	"net/http"
	"time"

	"cmip-imr/internal/engine"
	"cmip-imr/pkg/report"

	"github.com/gorilla/mux"
)

// newRouter builds the batch front-end's HTTP routes: a liveness probe and
// the endpoint that triggers a full CMIP-IMR run against the configured
// log. Grounded on registerHandlers in the teacher repo's
// internal/app/handlers.go, trimmed to the two routes this engine needs.
func (a *App) newRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(a.metricsMiddleware)

	router.HandleFunc("/healthz", a.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/run", a.runHandler).Methods(http.MethodPost)
	return router
}

// metricsMiddleware is unused directly by Prometheus (that's
// internal/metrics.MetricsServer's job) but keeps request latency logged
// the way the teacher's metricsMiddleware records it for every endpoint.
func (a *App) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.logger.WithField("path", r.URL.Path).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Debug("handled request")
	})
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// runHandler executes the CMIP-IMR pipeline synchronously and renders the
// result as JSON (default) or the human-readable verification report when
// ?format=text is given.
func (a *App) runHandler(w http.ResponseWriter, r *http.Request) {
	result, err := a.RunOnce(r.Context())
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.Verification(report.VerificationInput{
			RunID:      result.RunID,
			Metadata:   result.Metadata,
			N0Metrics:  result.N0Metrics,
			N1Metrics:  result.N1Metrics,
			Iterations: result.Iterations,
			Diagnosis:  result.Diagnosis,
			Repair:     result.Repair,
		})))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resultPayload(result))
}

// resultPayload is the JSON-friendly projection of an engine.Result: the
// Result schema's scalar metrics and iteration count, not the net's
// internal graph structure.
func resultPayload(result engine.Result) map[string]interface{} {
	return map[string]interface{}{
		"run_id": result.RunID,
		"n0": map[string]interface{}{
			"fitness":   result.N0Metrics.Fitness,
			"precision": result.N0Metrics.Precision,
			"f_measure": result.N0Metrics.FMeasure,
		},
		"n1": map[string]interface{}{
			"fitness":   result.N1Metrics.Fitness,
			"precision": result.N1Metrics.Precision,
			"f_measure": result.N1Metrics.FMeasure,
		},
		"iterations":   result.Iterations,
		"departments":  result.Metadata.Departments,
		"total_cases":  result.Metadata.TotalCases,
		"total_events": result.Metadata.TotalEvents,
		"defects":      result.Diagnosis.Total(),
		"repairs":      result.Repair.Total(),
	}
}
