package discovery

import (
	"fmt"
	"sort"
	"strings"

	"cmip-imr/pkg/ingest"
	"cmip-imr/pkg/pnet"
)

// DefaultOracle is a minimal variant-based discovery algorithm used when
// no external inductive-miner collaborator is wired in. It is not a
// reimplementation of the Inductive Miner — learning IM itself is out of
// scope (spec's non-goals) — but it satisfies the oracle contract: a
// bounded, sound workflow net with single-token source/sink markings,
// built directly from the department's trace variants.
//
// Each distinct activity sequence ("variant") observed in the projected
// log becomes its own chain of transitions between a shared source and
// sink place, with private intermediate places so that concurrently
// traversed variants don't interfere. noiseThreshold drops variants whose
// relative frequency falls below it, the same filtering role IMf's
// infrequent variant plays in the original.
func DefaultOracle(log ingest.Log, department string, noiseThreshold float64) (*pnet.PetriNet, pnet.Marking, pnet.Marking, error) {
	variants := make(map[string][]string)
	counts := make(map[string]int)

	for _, events := range log.Cases() {
		activities := make([]string, 0, len(events))
		for _, e := range events {
			activities = append(activities, e.Activity)
		}
		key := strings.Join(activities, "\x1f")
		if _, ok := variants[key]; !ok {
			variants[key] = activities
		}
		counts[key]++
	}

	total := 0
	for _, c := range counts {
		total += c
	}

	keys := make([]string, 0, len(variants))
	for k := range variants {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	net := pnet.New(fmt.Sprintf("Net_%s", department))
	source, _ := net.AddPlace(fmt.Sprintf("source_%s", department))
	sink, _ := net.AddPlace(fmt.Sprintf("sink_%s", department))

	variantIdx := 0
	for _, key := range keys {
		if total > 0 && float64(counts[key])/float64(total) < noiseThreshold {
			continue
		}
		variantIdx++
		activities := variants[key]
		prev := source
		for step, activity := range activities {
			transName := fmt.Sprintf("%s:v%d:%d:%s", department, variantIdx, step, activity)
			trans, err := net.AddTransition(transName, activity)
			if err != nil {
				return nil, nil, nil, err
			}
			if _, err := net.AddArc(prev, trans, true); err != nil {
				return nil, nil, nil, err
			}

			var next *pnet.Place
			if step == len(activities)-1 {
				next = sink
			} else {
				placeName := fmt.Sprintf("%s:v%d:p%d", department, variantIdx, step)
				next, err = net.AddPlace(placeName)
				if err != nil {
					return nil, nil, nil, err
				}
			}
			if _, err := net.AddArc(next, trans, false); err != nil {
				return nil, nil, nil, err
			}
			prev = next
		}
	}

	// every variant dropped by the noise threshold: fall back to a
	// trivial empty net so the net is never completely disconnected.
	if variantIdx == 0 {
		if _, err := net.AddArc(source, mustSilent(net, department), true); err != nil {
			return nil, nil, nil, err
		}
	}

	return net, pnet.Marking{source.ID: 1}, pnet.Marking{sink.ID: 1}, nil
}

func mustSilent(net *pnet.PetriNet, department string) *pnet.Transition {
	t, _ := net.AddTransition(fmt.Sprintf("%s:skip", department), "")
	sink, _ := net.PlaceByName(fmt.Sprintf("sink_%s", department))
	_, _ = net.AddArc(sink, t, false)
	return t
}
