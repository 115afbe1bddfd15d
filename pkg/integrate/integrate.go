// Package integrate weaves per-department nets into one collaborative net
// (C4): namespace every department's places and transitions, coalesce
// sync transitions that appear in more than one department into a single
// shared transition, and add message places and resource places that
// connect across department boundaries. Grounded on merge_petri_nets in
// the original prototype's services/discovery.py.
package integrate

import (
	"fmt"
	"sort"

	"cmip-imr/pkg/discovery"
	"cmip-imr/pkg/ingest"
	"cmip-imr/pkg/pnet"
)

// Integrated is the woven net plus its initial/final marking.
type Integrated struct {
	Net *pnet.PetriNet
	IM  pnet.Marking
	FM  pnet.Marking
}

// Integrate weaves results (keyed by department) into one net following
// §4.4's four steps: namespace copy, sync coalescing, message places,
// resource places. Departments are visited in lexicographic order so
// that which department's copy of a shared sync transition survives as
// primary is deterministic.
func Integrate(results map[string]discovery.Result, meta ingest.CollaborationMetadata) (Integrated, error) {
	departments := make([]string, 0, len(results))
	for d := range results {
		departments = append(departments, d)
	}
	sort.Strings(departments)

	syncSet := make(map[string]bool, len(meta.SyncTasks))
	for _, s := range meta.SyncTasks {
		syncSet[s] = true
	}

	net := pnet.New("IntegratedNet")
	im := pnet.Marking{}
	fm := pnet.Marking{}

	placeMap := make(map[string]*pnet.Place)       // "<dept>:<local name>" -> namespaced place
	syncTrans := make(map[string]*pnet.Transition) // activity label -> shared transition

	// Step 1 + 2: namespace-copy every department's places/transitions,
	// coalescing sync-task transitions into one shared transition per label.
	for _, dept := range departments {
		res := results[dept]
		deptPlaceMap := make(map[int]*pnet.Place, len(res.Net.Places()))
		deptTransMap := make(map[int]*pnet.Transition, len(res.Net.Transitions()))

		for _, p := range res.Net.Places() {
			name := fmt.Sprintf("%s:%s", dept, p.Name)
			np, err := net.AddPlace(name)
			if err != nil {
				return Integrated{}, err
			}
			deptPlaceMap[p.ID] = np
			placeMap[name] = np
		}

		for _, t := range res.Net.Transitions() {
			if syncSet[t.Label] {
				if existing, ok := syncTrans[t.Label]; ok {
					deptTransMap[t.ID] = existing
					continue
				}
				name := fmt.Sprintf("SYNC:%s", t.Label)
				nt, err := net.AddTransition(name, t.Label)
				if err != nil {
					return Integrated{}, err
				}
				syncTrans[t.Label] = nt
				deptTransMap[t.ID] = nt
				continue
			}
			name := fmt.Sprintf("%s:%s", dept, t.Name)
			nt, err := net.AddTransition(name, t.Label)
			if err != nil {
				return Integrated{}, err
			}
			deptTransMap[t.ID] = nt
		}

		for _, a := range res.Net.Arcs() {
			place, ok := res.Net.Place(a.PlaceID)
			if !ok {
				continue
			}
			np := deptPlaceMap[place.ID]
			trans, ok := res.Net.Transition(a.TransID)
			if !ok {
				continue
			}
			nt := deptTransMap[trans.ID]
			// a shared sync transition may already carry this exact arc
			// from an earlier department; duplicate arcs are a benign
			// no-op here since every contributing department's pre/post
			// condition set is a union onto the same transition.
			if _, err := net.AddArc(np, nt, a.PlaceToTran); err != nil {
				continue
			}
		}

		for pid, tokens := range res.IM {
			p, ok := res.Net.Place(pid)
			if !ok {
				continue
			}
			im[deptPlaceMap[p.ID].ID] = tokens
		}
		for pid, tokens := range res.FM {
			p, ok := res.Net.Place(pid)
			if !ok {
				continue
			}
			fm[deptPlaceMap[p.ID].ID] = tokens
		}
	}

	// Step 3: message places. A MSG:<id> place receives a token from every
	// transition labeled with the message's sender activity and releases
	// one into every transition labeled with the receiver activity.
	for _, msgID := range meta.SortedMessageIDs() {
		endpoints := meta.Messages[msgID]
		place, err := net.AddPlace(fmt.Sprintf("MSG:%s", msgID))
		if err != nil {
			return Integrated{}, err
		}
		if endpoints.Sender != "" {
			for _, t := range net.TransitionsByLabel(endpoints.Sender) {
				if _, err := net.AddArc(place, t, false); err != nil {
					continue
				}
			}
		}
		if endpoints.Receiver != "" {
			for _, t := range net.TransitionsByLabel(endpoints.Receiver) {
				if _, err := net.AddArc(place, t, true); err != nil {
					continue
				}
			}
		}
	}

	// Step 4: resource places. A RES:<id> place starts with one token
	// (capacity 1 by default) and is consumed by every requesting
	// transition, released by every releasing transition.
	for _, resID := range meta.SortedResourceIDs() {
		usage := meta.Resources[resID]
		place, err := net.AddPlace(fmt.Sprintf("RES:%s", resID))
		if err != nil {
			return Integrated{}, err
		}
		im[place.ID] = 1

		for _, label := range usage.Req {
			for _, t := range net.TransitionsByLabel(label) {
				if _, err := net.AddArc(place, t, true); err != nil {
					continue
				}
			}
		}
		for _, label := range usage.Rel {
			for _, t := range net.TransitionsByLabel(label) {
				if _, err := net.AddArc(place, t, false); err != nil {
					continue
				}
			}
		}
	}

	return Integrated{Net: net, IM: im, FM: fm}, nil
}
