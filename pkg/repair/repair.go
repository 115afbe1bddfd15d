// Package repair implements the CE-PNR structural repair operators (C7):
// idempotent fixes for message-arc, resource-arc, and sync-transition
// defects, plus the two resource-capacity policies the repair loop
// chooses between. Grounded on repair_message_arcs, repair_resource_arcs,
// adjust_resource_capacity, remove_resource_constraints, repair_sync_tasks,
// and apply_ce_pnr in the original prototype's services/repair.py.
package repair

import (
	"fmt"
	"strings"

	"cmip-imr/pkg/diagnose"
	"cmip-imr/pkg/errors"
	"cmip-imr/pkg/ingest"
	"cmip-imr/pkg/pnet"
)

// Report summarizes one repair pass, mirroring the original's
// repair_report dict: per-family counts plus a human-readable action log
// consumed by the verification report.
type Report struct {
	MessageRepairs  int
	ResourceRepairs int
	SyncRepairs     int
	Actions         []string
}

// Total is the overall number of structural changes this pass made.
func (r Report) Total() int {
	return r.MessageRepairs + r.ResourceRepairs + r.SyncRepairs
}

// RepairMessageArcs creates any missing MSG:<id> place and wires any
// missing send/recv arc. Idempotent: a defect-free net is left untouched.
func RepairMessageArcs(net *pnet.PetriNet, meta ingest.CollaborationMetadata) ([]string, int) {
	var actions []string
	count := 0

	for _, d := range diagnose.Messages(net, meta) {
		endpoints := meta.Messages[d.ID]
		switch d.Kind {
		case diagnose.MissingMessagePlace:
			place, err := net.AddPlace(fmt.Sprintf("MSG:%s", d.ID))
			if err != nil {
				continue
			}
			count++
			actions = append(actions, fmt.Sprintf("created message place MSG:%s", d.ID))
			if endpoints.Sender != "" {
				for _, t := range net.TransitionsByLabel(endpoints.Sender) {
					if _, err := net.AddArc(place, t, false); err == nil {
						count++
					}
				}
				actions = append(actions, fmt.Sprintf("wired %s -> MSG:%s", endpoints.Sender, d.ID))
			}
			if endpoints.Receiver != "" {
				for _, t := range net.TransitionsByLabel(endpoints.Receiver) {
					if _, err := net.AddArc(place, t, true); err == nil {
						count++
					}
				}
				actions = append(actions, fmt.Sprintf("wired MSG:%s -> %s", d.ID, endpoints.Receiver))
			}
		case diagnose.MissingSendArc:
			place, ok := net.PlaceByName(fmt.Sprintf("MSG:%s", d.ID))
			if !ok {
				continue
			}
			for _, t := range net.TransitionsByLabel(endpoints.Sender) {
				if _, err := net.AddArc(place, t, false); err == nil {
					count++
				}
			}
			actions = append(actions, fmt.Sprintf("wired %s -> MSG:%s", endpoints.Sender, d.ID))
		case diagnose.MissingRecvArc:
			place, ok := net.PlaceByName(fmt.Sprintf("MSG:%s", d.ID))
			if !ok {
				continue
			}
			for _, t := range net.TransitionsByLabel(endpoints.Receiver) {
				if _, err := net.AddArc(place, t, true); err == nil {
					count++
				}
			}
			actions = append(actions, fmt.Sprintf("wired MSG:%s -> %s", d.ID, endpoints.Receiver))
		}
	}
	return actions, count
}

// RepairResourceArcs creates any missing RES:<id> place (initialized with
// capacity tokens) and wires any missing req/rel arc.
func RepairResourceArcs(net *pnet.PetriNet, im pnet.Marking, meta ingest.CollaborationMetadata, capacity int) ([]string, int) {
	var actions []string
	count := 0

	for _, d := range diagnose.Resources(net, meta) {
		usage := meta.Resources[d.ID]
		switch d.Kind {
		case diagnose.MissingResourcePlace:
			place, err := net.AddPlace(fmt.Sprintf("RES:%s", d.ID))
			if err != nil {
				continue
			}
			im[place.ID] = capacity
			count++
			actions = append(actions, fmt.Sprintf("created resource place RES:%s with capacity %d", d.ID, capacity))
			for _, label := range usage.Req {
				for _, t := range net.TransitionsByLabel(label) {
					if _, err := net.AddArc(place, t, true); err == nil {
						count++
					}
				}
			}
			for _, label := range usage.Rel {
				for _, t := range net.TransitionsByLabel(label) {
					if _, err := net.AddArc(place, t, false); err == nil {
						count++
					}
				}
			}
		case diagnose.MissingReqArc:
			place, ok := net.PlaceByName(fmt.Sprintf("RES:%s", d.ID))
			if !ok {
				continue
			}
			for _, label := range usage.Req {
				for _, t := range net.TransitionsByLabel(label) {
					if _, err := net.AddArc(place, t, true); err == nil {
						count++
						actions = append(actions, fmt.Sprintf("wired RES:%s -> %s", d.ID, label))
					}
				}
			}
		case diagnose.MissingRelArc:
			place, ok := net.PlaceByName(fmt.Sprintf("RES:%s", d.ID))
			if !ok {
				continue
			}
			for _, label := range usage.Rel {
				for _, t := range net.TransitionsByLabel(label) {
					if _, err := net.AddArc(place, t, false); err == nil {
						count++
						actions = append(actions, fmt.Sprintf("wired %s -> RES:%s", label, d.ID))
					}
				}
			}
		}
	}
	return actions, count
}

// AdjustResourceCapacity sets the initial marking of every existing
// RES:<id> place to capacity, regardless of whether this pass created it.
func AdjustResourceCapacity(net *pnet.PetriNet, im pnet.Marking, capacity int) []string {
	var actions []string
	for _, p := range net.Places() {
		if strings.HasPrefix(p.Name, "RES:") {
			im[p.ID] = capacity
			actions = append(actions, fmt.Sprintf("set %s capacity to %d", p.Name, capacity))
		}
	}
	return actions
}

// RemoveResourceConstraints deletes every RES:<id> place (and the arcs and
// marking entries that touch it), relaxing the net so resource contention
// no longer blocks replay. Used when current fitness is low enough that
// resource constraints are judged more harmful than useful.
func RemoveResourceConstraints(net *pnet.PetriNet, im pnet.Marking) []string {
	var actions []string
	for _, p := range append([]*pnet.Place(nil), net.Places()...) {
		if strings.HasPrefix(p.Name, "RES:") {
			net.RemovePlace(p)
			delete(im, p.ID)
			actions = append(actions, fmt.Sprintf("removed resource constraint %s", p.Name))
		}
	}
	return actions
}

// RepairSyncTasks merges every duplicate sync transition group into a
// single primary transition: the first transition found keeps its
// identity, every other transition's arcs are redirected onto it and the
// duplicate is then removed.
func RepairSyncTasks(net *pnet.PetriNet, meta ingest.CollaborationMetadata) ([]string, int) {
	var actions []string
	count := 0

	for _, d := range diagnose.Sync(net, meta) {
		if d.Kind != diagnose.DuplicateSyncTask {
			continue
		}
		matches := net.TransitionsByLabel(d.ID)
		if len(matches) <= 1 {
			continue
		}
		primary := matches[0]
		for _, secondary := range matches[1:] {
			for _, a := range append([]*pnet.Arc(nil), net.InArcsOfTransition(secondary)...) {
				if place, ok := net.Place(a.PlaceID); ok {
					_, _ = net.AddArc(place, primary, true)
				}
			}
			for _, a := range append([]*pnet.Arc(nil), net.OutArcsOfTransition(secondary)...) {
				if place, ok := net.Place(a.PlaceID); ok {
					_, _ = net.AddArc(place, primary, false)
				}
			}
			net.RemoveTransition(secondary)
			count++
			actions = append(actions, fmt.Sprintf("merged duplicate sync transition %s into %s", secondary.Name, primary.Name))
		}
	}
	return actions, count
}

// ApplyCEPNR runs one CE-PNR repair pass: deep-copies the net so the
// caller's current-best net is never mutated, then applies message-arc
// repair unconditionally, one of the two resource policies, and
// sync-transition merging, in that order (mirroring apply_ce_pnr).
//
// When removeResources is true, resource places are stripped out entirely
// instead of repaired; otherwise missing resource arcs are wired and, if
// resourceCapacity > 1, every resource place's capacity is raised to it.
//
// If the pass changes nothing at all, the returned error is a
// RepairNoop — not a failure, but a signal the caller's CE-PNR loop can
// treat as an extra reason to stop early.
func ApplyCEPNR(net *pnet.PetriNet, im, fm pnet.Marking, meta ingest.CollaborationMetadata, removeResources bool, resourceCapacity int) (*pnet.PetriNet, pnet.Marking, pnet.Marking, Report, error) {
	newNet, placeIDMap, _ := net.DeepCopy()
	newIM := pnet.TranslateMarking(im, placeIDMap)
	newFM := pnet.TranslateMarking(fm, placeIDMap)

	var report Report

	msgActions, msgCount := RepairMessageArcs(newNet, meta)
	report.MessageRepairs = msgCount
	report.Actions = append(report.Actions, msgActions...)

	if removeResources {
		resActions := RemoveResourceConstraints(newNet, newIM)
		report.ResourceRepairs = len(resActions)
		report.Actions = append(report.Actions, resActions...)
	} else {
		resActions, resCount := RepairResourceArcs(newNet, newIM, meta, resourceCapacity)
		report.ResourceRepairs = resCount
		report.Actions = append(report.Actions, resActions...)
		if resourceCapacity > 1 {
			capActions := AdjustResourceCapacity(newNet, newIM, resourceCapacity)
			report.ResourceRepairs += len(capActions)
			report.Actions = append(report.Actions, capActions...)
		}
	}

	syncActions, syncCount := RepairSyncTasks(newNet, meta)
	report.SyncRepairs = syncCount
	report.Actions = append(report.Actions, syncActions...)

	if report.Total() == 0 {
		return newNet, newIM, newFM, report, errors.RepairNoop("apply_ce_pnr", "repair pass made no structural changes")
	}
	return newNet, newIM, newFM, report, nil
}
