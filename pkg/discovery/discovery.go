// Package discovery runs per-department process discovery (C3): it
// projects the log onto a single department and invokes the
// inductive-miner oracle, following discover_department_net and
// discover_all_department_nets in the original prototype's
// services/discovery.py.
package discovery

import (
	"context"
	"fmt"
	"sort"

	"cmip-imr/pkg/errors"
	"cmip-imr/pkg/ingest"
	"cmip-imr/pkg/pnet"

	"golang.org/x/sync/errgroup"
)

// Result is one department's discovered net and its markings.
type Result struct {
	Department string
	Net        *pnet.PetriNet
	IM         pnet.Marking
	FM         pnet.Marking
}

// Oracle is the pluggable inductive-miner capability (design note in §9:
// expose discovery as a function-valued parameter so tests can substitute
// a deterministic fake). It must return a bounded, sound workflow net with
// a single-token initial marking on one source place and a single-token
// final marking on one sink place.
type Oracle func(log ingest.Log, department string, noiseThreshold float64) (*pnet.PetriNet, pnet.Marking, pnet.Marking, error)

// DiscoverDepartment projects the log onto department and invokes oracle.
// An empty projection yields the trivial {source} -> {sink} net rather
// than calling the oracle at all.
func DiscoverDepartment(log ingest.Log, department string, noiseThreshold float64, oracle Oracle) (Result, error) {
	projected := ingest.ProjectByDepartment(log, department)

	if len(projected) == 0 {
		net := pnet.New(fmt.Sprintf("Empty_%s", department))
		source, _ := net.AddPlace(fmt.Sprintf("source_%s", department))
		sink, _ := net.AddPlace(fmt.Sprintf("sink_%s", department))
		return Result{
			Department: department,
			Net:        net,
			IM:         pnet.Marking{source.ID: 1},
			FM:         pnet.Marking{sink.ID: 1},
		}, nil
	}

	net, im, fm, err := oracle(projected, department, noiseThreshold)
	if err != nil {
		return Result{}, errors.OracleError("discover_department_net", err.Error()).
			WithMetadata("department", department)
	}
	net.Name = fmt.Sprintf("Net_%s", department)
	return Result{Department: department, Net: net, IM: im, FM: fm}, nil
}

// DiscoverAll runs DiscoverDepartment for every department. When parallel
// is true, departments are discovered concurrently via errgroup (§5:
// per-department discovery is embarrassingly parallelizable) but the
// returned map is always keyed the same way regardless, and callers must
// iterate it via the sorted department list to preserve the deterministic
// ordering that sync-transition coalescing depends on.
func DiscoverAll(ctx context.Context, log ingest.Log, departments []string, noiseThreshold float64, oracle Oracle, parallel bool) (map[string]Result, error) {
	sorted := append([]string(nil), departments...)
	sort.Strings(sorted)

	results := make(map[string]Result, len(sorted))

	if !parallel {
		for _, dept := range sorted {
			r, err := DiscoverDepartment(log, dept, noiseThreshold, oracle)
			if err != nil {
				return nil, err
			}
			results[dept] = r
		}
		return results, nil
	}

	g, _ := errgroup.WithContext(ctx)
	partial := make([]Result, len(sorted))
	for i, dept := range sorted {
		i, dept := i, dept
		g.Go(func() error {
			r, err := DiscoverDepartment(log, dept, noiseThreshold, oracle)
			if err != nil {
				return err
			}
			partial[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, r := range partial {
		results[r.Department] = r
	}
	return results, nil
}
