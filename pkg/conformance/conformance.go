// Package conformance evaluates a net against the log it was discovered
// from (C5): token-replay fitness, escaping-edges precision, and their
// F-measure, plus the diagnostics side-channel used by verification
// reports. Grounded on the original prototype's services/evaluation.py —
// calculate_fitness_token_replay, calculate_precision (which there
// delegates to pm4py's ETCONFORMANCE_TOKEN variant; no Go equivalent
// exists, so escaping edges are hand-computed here against the same
// replay state), calculate_f_measure, and get_alignment_diagnostics.
package conformance

import (
	"cmip-imr/pkg/errors"
	"cmip-imr/pkg/ingest"
	"cmip-imr/pkg/pnet"
)

// maxSilentSteps bounds the silent-transition reachability search run
// before and after every visible event, so a malformed net with a silent
// cycle can never hang the replay.
const maxSilentSteps = 25

// Metrics is the evaluation result for one net against one log.
type Metrics struct {
	Fitness     float64
	Precision   float64
	FMeasure    float64
	Diagnostics Diagnostics
}

// Diagnostics mirrors get_alignment_diagnostics: per-trace fitting counts
// and average missing/remaining tokens, useful for verification reports
// independent of the scalar fitness/precision numbers.
type Diagnostics struct {
	TotalTraces          int
	FittingTraces        int
	NonFittingTraces     int
	FittingRatio         float64
	TotalMissingTokens   int
	TotalRemainingTokens int
	AvgMissingPerTrace   float64
	AvgRemainingPerTrace float64
}

type traceStats struct {
	produced, consumed, missing, remaining int
	fitting                                bool
}

// Evaluate computes fitness, precision, and F-measure of net (with initial
// marking im and final marking fm) against log. On any internal failure it
// degrades to the all-zero metric, matching calculate_fitness_token_replay's
// except-returns-0.0 fallback, and wraps the failure as an EvaluationError.
func Evaluate(log ingest.Log, net *pnet.PetriNet, im, fm pnet.Marking) (Metrics, error) {
	cases := log.Cases()
	caseIDs := log.CaseIDs()
	if len(caseIDs) == 0 {
		return Metrics{}, errors.EvaluationError("evaluate_model", "log has no cases to replay")
	}

	var totalProduced, totalConsumed, totalMissing, totalRemaining int
	var fittingTraces int
	var precSum float64
	var precCount int

	for _, caseID := range caseIDs {
		events := cases[caseID]
		activities := make([]string, 0, len(events))
		for _, e := range events {
			activities = append(activities, e.Activity)
		}

		stats, pSum, pCount := replayTrace(net, im, fm, activities)
		totalProduced += stats.produced
		totalConsumed += stats.consumed
		totalMissing += stats.missing
		totalRemaining += stats.remaining
		if stats.fitting {
			fittingTraces++
		}
		precSum += pSum
		precCount += pCount
	}

	fitness := clamp01(0.5*(1-float64(totalMissing)/maxInt(totalConsumed, 1)) +
		0.5*(1-float64(totalRemaining)/maxInt(totalProduced, 1)))

	precision := 0.0
	if precCount > 0 {
		precision = clamp01(precSum / float64(precCount))
	}

	fMeasure := 0.0
	if fitness+precision > 0 {
		fMeasure = 2 * fitness * precision / (fitness + precision)
	}

	total := len(caseIDs)
	diag := Diagnostics{
		TotalTraces:          total,
		FittingTraces:        fittingTraces,
		NonFittingTraces:     total - fittingTraces,
		FittingRatio:         float64(fittingTraces) / float64(total),
		TotalMissingTokens:   totalMissing,
		TotalRemainingTokens: totalRemaining,
		AvgMissingPerTrace:   float64(totalMissing) / float64(total),
		AvgRemainingPerTrace: float64(totalRemaining) / float64(total),
	}

	return Metrics{Fitness: fitness, Precision: precision, FMeasure: fMeasure, Diagnostics: diag}, nil
}

// replayTrace advances a single replay of activities against net, starting
// from im and scored against fm, tallying the token-replay counters used
// for fitness and, in the same pass, the escaping-edges occurrences used
// for precision. Sharing one marking-advance pass keeps the two metrics
// consistent with each other: precision's "enabled set" is measured at
// exactly the state fitness's replay reaches, forced tokens included.
func replayTrace(net *pnet.PetriNet, im, fm pnet.Marking, activities []string) (traceStats, float64, int) {
	marking := im.Clone()

	var produced, consumed, missing, remaining int
	for _, p := range net.Places() {
		produced += marking[p.ID]
	}

	fireSilentReachable(net, marking, maxSilentSteps)

	var precSum float64
	var precCount int

	for _, activity := range activities {
		enabled := enabledVisibleLabels(net, marking)
		if len(enabled) > 0 {
			escaping := len(enabled)
			if enabled[activity] {
				escaping--
			}
			precSum += 1 - float64(escaping)/float64(len(enabled))
			precCount++
		}

		candidates := net.TransitionsByLabel(activity)
		if len(candidates) == 0 {
			missing++
			continue
		}

		chosen := candidates[0]
		for _, c := range candidates {
			if net.IsEnabled(c, marking) {
				chosen = c
				break
			}
		}

		for _, a := range net.InArcsOfTransition(chosen) {
			if marking[a.PlaceID] < 1 {
				deficit := 1 - marking[a.PlaceID]
				missing += deficit
				marking[a.PlaceID] += deficit
			}
			marking[a.PlaceID]--
			consumed++
		}
		for _, a := range net.OutArcsOfTransition(chosen) {
			marking[a.PlaceID]++
			produced++
		}

		fireSilentReachable(net, marking, maxSilentSteps)
	}

	for _, p := range net.Places() {
		expect := fm[p.ID]
		switch {
		case marking[p.ID] > expect:
			remaining += marking[p.ID] - expect
		case marking[p.ID] < expect:
			missing += expect - marking[p.ID]
		}
	}

	fitting := missing == 0 && remaining == 0
	return traceStats{produced: produced, consumed: consumed, missing: missing, remaining: remaining, fitting: fitting}, precSum, precCount
}

// enabledVisibleLabels returns the set of visible (non-silent) activity
// labels enabled at marking, deduplicated — the "E" set in escaping-edges
// precision.
func enabledVisibleLabels(net *pnet.PetriNet, marking pnet.Marking) map[string]bool {
	out := make(map[string]bool)
	for _, t := range net.Transitions() {
		if t.IsSilent() {
			continue
		}
		if net.IsEnabled(t, marking) {
			out[t.Label] = true
		}
	}
	return out
}

// fireSilentReachable fires any currently-enabled silent transition,
// repeating until none remain enabled or maxSteps is exhausted. Bounding
// the search keeps a malformed net with a silent-transition cycle from
// hanging the replay.
func fireSilentReachable(net *pnet.PetriNet, marking pnet.Marking, maxSteps int) {
	for step := 0; step < maxSteps; step++ {
		fired := false
		for _, t := range net.Transitions() {
			if !t.IsSilent() {
				continue
			}
			if net.IsEnabled(t, marking) {
				net.Fire(t, marking)
				fired = true
				break
			}
		}
		if !fired {
			return
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxInt(v, floor int) float64 {
	if v < floor {
		return float64(floor)
	}
	return float64(v)
}
