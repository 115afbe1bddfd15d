// Package metrics exposes the engine's Prometheus metrics and the HTTP
// server that serves them, grounded on the teacher's
// internal/metrics/metrics.go package-level var block plus MetricsServer.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// RunsTotal counts engine.Run invocations by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmip_imr_runs_total",
			Help: "Total number of CMIP-IMR runs, by outcome",
		},
		[]string{"outcome"},
	)

	// IngestionDuration tracks how long C1 log ingestion takes.
	IngestionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cmip_imr_ingestion_duration_seconds",
		Help:    "Time spent parsing the input log and extracting collaboration metadata",
		Buckets: prometheus.DefBuckets,
	})

	// DiscoveryDuration tracks C3 per-department inductive-miner invocations.
	DiscoveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cmip_imr_discovery_duration_seconds",
			Help:    "Time spent running the inductive-miner oracle for a department",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"department"},
	)

	// IntegrationDuration tracks C4 net weaving.
	IntegrationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cmip_imr_integration_duration_seconds",
		Help:    "Time spent weaving department nets into the integrated net",
		Buckets: prometheus.DefBuckets,
	})

	// FitnessN0 and the gauges below report the evaluated metrics for the
	// pre-repair (N0) and post-repair (N1) integrated nets.
	FitnessN0   = promauto.NewGauge(prometheus.GaugeOpts{Name: "cmip_imr_fitness_n0", Help: "Token-replay fitness of the initial integrated net"})
	PrecisionN0 = promauto.NewGauge(prometheus.GaugeOpts{Name: "cmip_imr_precision_n0", Help: "Escaping-edges precision of the initial integrated net"})
	FMeasureN0  = promauto.NewGauge(prometheus.GaugeOpts{Name: "cmip_imr_f_measure_n0", Help: "F-measure of the initial integrated net"})
	FitnessN1   = promauto.NewGauge(prometheus.GaugeOpts{Name: "cmip_imr_fitness_n1", Help: "Token-replay fitness of the repaired integrated net"})
	PrecisionN1 = promauto.NewGauge(prometheus.GaugeOpts{Name: "cmip_imr_precision_n1", Help: "Escaping-edges precision of the repaired integrated net"})
	FMeasureN1  = promauto.NewGauge(prometheus.GaugeOpts{Name: "cmip_imr_f_measure_n1", Help: "F-measure of the repaired integrated net"})

	// RepairIterations counts the number of CE-PNR loop iterations consumed
	// by the most recent run.
	RepairIterations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cmip_imr_repair_iterations",
		Help: "Number of CE-PNR iterations consumed by the most recent run",
	})

	// RepairIterationDuration tracks the cost of a single CE-PNR repair pass
	// (diagnose + apply operators); re-evaluating the repaired net is not
	// included.
	RepairIterationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cmip_imr_repair_iteration_duration_seconds",
		Help:    "Time spent in a single CE-PNR iteration",
		Buckets: prometheus.DefBuckets,
	})

	// DefectsFoundTotal counts structural defects found by diagnosis, by
	// family (message, resource, sync).
	DefectsFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmip_imr_defects_found_total",
			Help: "Total structural defects found by the diagnoser, by family",
		},
		[]string{"family"},
	)

	// ErrorsTotal counts AppErrors raised by component and error code.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmip_imr_errors_total",
			Help: "Total errors raised, by component and error code",
		},
		[]string{"component", "code"},
	)
)

// MetricsServer serves /metrics over HTTP, grounded on the teacher's
// MetricsServer type.
type MetricsServer struct {
	server *http.Server
	logger *logrus.Logger
}

var registerOnce sync.Once

// safeRegister registers a collector exactly once across repeated
// NewMetricsServer calls (tests construct the server more than once per
// process), matching the teacher's safeRegister helper.
func safeRegister(collector prometheus.Collector) {
	defer func() {
		recover() //nolint:errcheck // ignore duplicate-registration panics
	}()
	prometheus.MustRegister(collector)
}

// NewMetricsServer builds the metrics HTTP server, registering every
// collector above exactly once.
func NewMetricsServer(addr string, logger *logrus.Logger) *MetricsServer {
	registerOnce.Do(func() {
		safeRegister(RunsTotal)
		safeRegister(IngestionDuration)
		safeRegister(DiscoveryDuration)
		safeRegister(IntegrationDuration)
		safeRegister(FitnessN0)
		safeRegister(PrecisionN0)
		safeRegister(FMeasureN0)
		safeRegister(FitnessN1)
		safeRegister(PrecisionN1)
		safeRegister(FMeasureN1)
		safeRegister(RepairIterations)
		safeRegister(RepairIterationDuration)
		safeRegister(DefectsFoundTotal)
		safeRegister(ErrorsTotal)
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger,
	}
}

// Start begins serving metrics in the background.
func (ms *MetricsServer) Start() error {
	ms.logger.WithField("addr", ms.server.Addr).Info("starting metrics server")

	go func() {
		if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ms.logger.WithError(err).Error("metrics server error")
		}
	}()

	return nil
}

// Stop shuts down the metrics server.
func (ms *MetricsServer) Stop() error {
	ms.logger.Info("stopping metrics server")
	return ms.server.Close()
}

// RecordRun records the outcome of an engine.Run invocation.
func RecordRun(outcome string) {
	RunsTotal.WithLabelValues(outcome).Inc()
}

// RecordIngestionDuration records how long C1 ingestion took.
func RecordIngestionDuration(d time.Duration) {
	IngestionDuration.Observe(d.Seconds())
}

// RecordDiscoveryDuration records how long the oracle took for a department.
func RecordDiscoveryDuration(department string, d time.Duration) {
	DiscoveryDuration.WithLabelValues(department).Observe(d.Seconds())
}

// RecordIntegrationDuration records how long C4 weaving took.
func RecordIntegrationDuration(d time.Duration) {
	IntegrationDuration.Observe(d.Seconds())
}

// SetEvaluationN0 records the pre-repair conformance metrics.
func SetEvaluationN0(fitness, precision, fMeasure float64) {
	FitnessN0.Set(fitness)
	PrecisionN0.Set(precision)
	FMeasureN0.Set(fMeasure)
}

// SetEvaluationN1 records the post-repair conformance metrics.
func SetEvaluationN1(fitness, precision, fMeasure float64) {
	FitnessN1.Set(fitness)
	PrecisionN1.Set(precision)
	FMeasureN1.Set(fMeasure)
}

// RecordRepairIteration records one CE-PNR iteration's cost.
func RecordRepairIteration(d time.Duration) {
	RepairIterationDuration.Observe(d.Seconds())
}

// SetRepairIterations records how many CE-PNR iterations the most recent
// run consumed.
func SetRepairIterations(n int) {
	RepairIterations.Set(float64(n))
}

// RecordDefectsFound records defects found by family.
func RecordDefectsFound(family string, count int) {
	DefectsFoundTotal.WithLabelValues(family).Add(float64(count))
}

// RecordError records an AppError by component and code.
func RecordError(component, code string) {
	ErrorsTotal.WithLabelValues(component, code).Inc()
}
