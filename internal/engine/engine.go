// Package engine wires the eight components (C1-C8) into the top-level
// CMIP-IMR run: ingest, per-department discovery, integration, conformance
// evaluation, diagnosis, and the CE-PNR repair loop. Grounded on
// run_cmip_imr and the CMIPIMRResult class in the original prototype's
// services/cmip_imr.py — this is a line-for-line port of that loop's
// control flow into Go, not a reinterpretation of it.
package engine

import (
	"context"
	"math"
	"time"

	"cmip-imr/internal/metrics"
	"cmip-imr/pkg/conformance"
	"cmip-imr/pkg/diagnose"
	"cmip-imr/pkg/discovery"
	"cmip-imr/pkg/errors"
	"cmip-imr/pkg/ingest"
	"cmip-imr/pkg/integrate"
	"cmip-imr/pkg/pnet"
	"cmip-imr/pkg/repair"
	"cmip-imr/pkg/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// diminishingReturns is the ΔF-measure threshold below which the CE-PNR
// loop stops early, per the repair loop's stopping criterion.
const diminishingReturns = 0.005

// Result is the engine's top-level result (C8): the initial integrated
// net (N0) and its metrics, the best repaired net found (N1) and its
// metrics, the diagnosis and repair report that produced N1, and the
// iteration count actually run.
type Result struct {
	RunID string

	N0Net      *pnet.PetriNet
	N0IM, N0FM pnet.Marking
	N0Metrics  conformance.Metrics

	N1Net      *pnet.PetriNet
	N1IM, N1FM pnet.Marking
	N1Metrics  conformance.Metrics

	Metadata   ingest.CollaborationMetadata
	Diagnosis  diagnose.Diagnosis
	Repair     repair.Report
	Iterations int
}

// Run executes the full CMIP-IMR pipeline against the log at cfg.Ingest.LogPath,
// using cfg for the per-department noise threshold, CE-PNR targets, and
// parallelism, and oracle as the per-department discovery function.
func Run(ctx context.Context, cfg *types.Config, oracle discovery.Oracle, logger *logrus.Logger) (res Result, err error) {
	defer func() {
		if err != nil {
			metrics.RecordRun("error")
		} else {
			metrics.RecordRun("success")
		}
	}()

	ingestStart := time.Now()
	log, err := ingest.LoadCSVLog(cfg.Ingest.LogPath, cfg.Ingest, logger)
	metrics.RecordIngestionDuration(time.Since(ingestStart))
	if err != nil {
		return Result{}, err
	}

	meta := ingest.ExtractMetadata(log, logger)

	// Step 1: per-department discovery + integration (C3 + C4).
	timedOracle := timeOracle(oracle)
	results, err := discovery.DiscoverAll(ctx, log, meta.Departments, cfg.Discovery.NoiseThreshold, timedOracle, cfg.Discovery.ParallelDepartments)
	if err != nil {
		return Result{}, err
	}

	integrationStart := time.Now()
	integrated, err := integrate.Integrate(results, meta)
	metrics.RecordIntegrationDuration(time.Since(integrationStart))
	if err != nil {
		return Result{}, errors.OracleError("discover_integrated_model", err.Error())
	}

	// Step 2: evaluate N0 (C5). An evaluation failure is not fatal: N0 keeps
	// the all-zero metrics Evaluate returns and the run continues.
	n0Metrics, evalErr := conformance.Evaluate(log, integrated.Net, integrated.IM, integrated.FM)
	if evalErr != nil && logger != nil {
		logger.WithError(evalErr).Warn("N0 evaluation failed; continuing with zero metrics")
	}
	metrics.SetEvaluationN0(n0Metrics.Fitness, n0Metrics.Precision, n0Metrics.FMeasure)

	// Step 3: diagnose N0 (C6).
	diagnosis := diagnose.All(integrated.Net, meta)
	metrics.RecordDefectsFound("message", len(diagnosis.MessageErrors))
	metrics.RecordDefectsFound("resource", len(diagnosis.ResourceErrors))
	metrics.RecordDefectsFound("sync", len(diagnosis.SyncErrors))

	result := Result{
		RunID: uuid.New().String(),
		N0Net: integrated.Net, N0IM: integrated.IM, N0FM: integrated.FM, N0Metrics: n0Metrics,
		Metadata:  meta,
		Diagnosis: diagnosis,
		// N1 defaults to N0 until a repair pass strictly improves F-measure.
		N1Net: integrated.Net, N1IM: integrated.IM, N1FM: integrated.FM, N1Metrics: n0Metrics,
	}

	// Step 4: the bounded CE-PNR repair loop.
	currentNet, currentIM, currentFM := integrated.Net, integrated.IM, integrated.FM
	currentMetrics := n0Metrics
	bestFMeasure := n0Metrics.FMeasure

	iteration := 0
	for iteration < cfg.Repair.MaxIterations {
		iteration++
		iterationStart := time.Now()

		removeResources := cfg.Repair.RemoveResourcesIfLowFitness && currentMetrics.Fitness < cfg.Repair.FitnessThreshold
		resourceCapacity := cfg.Repair.DefaultResourceCapacity
		if !removeResources && currentMetrics.Fitness < 0.9 {
			resourceCapacity = 2
		}

		repairedNet, repairedIM, repairedFM, repairReport, repairErr := repair.ApplyCEPNR(
			currentNet, currentIM, currentFM, meta, removeResources, resourceCapacity)
		metrics.RecordRepairIteration(time.Since(iterationStart))
		if repairErr != nil {
			appErr, ok := errors.AsAppError(repairErr)
			if !ok || appErr.Code != errors.CodeRepairNoop {
				if ok {
					metrics.RecordError("repair", appErr.Code)
				}
				return Result{}, repairErr
			}
			if logger != nil {
				logger.WithField("iteration", iteration).Info("repair pass made no structural changes")
			}
		}

		repairedMetrics, evalErr := conformance.Evaluate(log, repairedNet, repairedIM, repairedFM)
		if evalErr != nil && logger != nil {
			logger.WithError(evalErr).WithField("iteration", iteration).
				Warn("repaired net evaluation failed; continuing with zero metrics")
		}

		if repairedMetrics.FMeasure > bestFMeasure {
			bestFMeasure = repairedMetrics.FMeasure
			result.N1Net, result.N1IM, result.N1FM = repairedNet, repairedIM, repairedFM
			result.N1Metrics = repairedMetrics
			result.Repair = repairReport
		}

		if repairedMetrics.FMeasure >= cfg.Repair.TargetFMeasure {
			break
		}
		if math.Abs(repairedMetrics.FMeasure-currentMetrics.FMeasure) < diminishingReturns {
			break
		}

		currentNet, currentIM, currentFM = repairedNet, repairedIM, repairedFM
		currentMetrics = repairedMetrics
	}

	result.Iterations = iteration
	metrics.SetRepairIterations(iteration)
	metrics.SetEvaluationN1(result.N1Metrics.Fitness, result.N1Metrics.Precision, result.N1Metrics.FMeasure)
	return result, nil
}

// timeOracle wraps oracle so every invocation is timed and recorded against
// the per-department discovery-duration histogram, without pkg/discovery
// itself needing to know about Prometheus.
func timeOracle(oracle discovery.Oracle) discovery.Oracle {
	return func(log ingest.Log, department string, noiseThreshold float64) (*pnet.PetriNet, pnet.Marking, pnet.Marking, error) {
		start := time.Now()
		net, im, fm, err := oracle(log, department, noiseThreshold)
		metrics.RecordDiscoveryDuration(department, time.Since(start))
		return net, im, fm, err
	}
}
