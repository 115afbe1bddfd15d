package conformance

import (
	"testing"

	"cmip-imr/pkg/ingest"
	"cmip-imr/pkg/pnet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPerfectNet is a -> b -> c, source -> sink.
func buildPerfectNet(t *testing.T) (*pnet.PetriNet, pnet.Marking, pnet.Marking) {
	t.Helper()
	n := pnet.New("net")
	source, _ := n.AddPlace("source")
	p1, _ := n.AddPlace("p1")
	p2, _ := n.AddPlace("p2")
	sink, _ := n.AddPlace("sink")

	ta, _ := n.AddTransition("ta", "A")
	tb, _ := n.AddTransition("tb", "B")
	tc, _ := n.AddTransition("tc", "C")

	_, _ = n.AddArc(source, ta, true)
	_, _ = n.AddArc(p1, ta, false)
	_, _ = n.AddArc(p1, tb, true)
	_, _ = n.AddArc(p2, tb, false)
	_, _ = n.AddArc(p2, tc, true)
	_, _ = n.AddArc(sink, tc, false)

	return n, pnet.Marking{source.ID: 1}, pnet.Marking{sink.ID: 1}
}

func logOf(traces ...[]string) ingest.Log {
	var log ingest.Log
	for i, trace := range traces {
		caseID := string(rune('1' + i))
		for _, a := range trace {
			log = append(log, ingest.EventRecord{CaseID: caseID, Activity: a})
		}
	}
	return log
}

func TestEvaluate_PerfectlyFittingLogScoresFitnessOne(t *testing.T) {
	net, im, fm := buildPerfectNet(t)
	log := logOf([]string{"A", "B", "C"}, []string{"A", "B", "C"})

	metrics, err := Evaluate(log, net, im, fm)
	require.NoError(t, err)
	assert.Equal(t, 1.0, metrics.Fitness)
	assert.Equal(t, 2, metrics.Diagnostics.FittingTraces)
	assert.Equal(t, 0, metrics.Diagnostics.NonFittingTraces)
}

func TestEvaluate_DeviatingTraceLowersFitnessAndIsNonFitting(t *testing.T) {
	net, im, fm := buildPerfectNet(t)
	log := logOf([]string{"A", "C", "B"})

	metrics, err := Evaluate(log, net, im, fm)
	require.NoError(t, err)
	assert.Less(t, metrics.Fitness, 1.0)
	assert.Equal(t, 1, metrics.Diagnostics.NonFittingTraces)
}

func TestEvaluate_ExactReplayOfModelLanguageScoresPrecisionOne(t *testing.T) {
	net, im, fm := buildPerfectNet(t)
	log := logOf([]string{"A", "B", "C"}, []string{"A", "B", "C"}, []string{"A", "B", "C"})

	metrics, err := Evaluate(log, net, im, fm)
	require.NoError(t, err)
	assert.Equal(t, 1.0, metrics.Precision)
}

func TestEvaluate_FMeasureIsHarmonicMeanOfFitnessAndPrecision(t *testing.T) {
	net, im, fm := buildPerfectNet(t)
	log := logOf([]string{"A", "B", "C"})

	metrics, err := Evaluate(log, net, im, fm)
	require.NoError(t, err)
	expected := 2 * metrics.Fitness * metrics.Precision / (metrics.Fitness + metrics.Precision)
	assert.InDelta(t, expected, metrics.FMeasure, 1e-9)
}

func TestEvaluate_EmptyLogIsAnEvaluationError(t *testing.T) {
	net, im, fm := buildPerfectNet(t)
	_, err := Evaluate(ingest.Log{}, net, im, fm)
	assert.Error(t, err)
}

func TestEvaluate_ActivityNotInModelCountsAsMissing(t *testing.T) {
	net, im, fm := buildPerfectNet(t)
	log := logOf([]string{"A", "Z", "B", "C"})

	metrics, err := Evaluate(log, net, im, fm)
	require.NoError(t, err)
	assert.Less(t, metrics.Fitness, 1.0)
}
