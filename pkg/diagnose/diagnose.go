// Package diagnose enumerates structural defects in an integrated net
// against the collaboration metadata it was supposed to satisfy (C6):
// missing or malformed message places, resource places, and sync
// transitions. Grounded on diagnose_message_errors, diagnose_resource_errors,
// diagnose_sync_errors, and diagnose_all_errors in the original prototype's
// services/repair.py.
package diagnose

import (
	"fmt"

	"cmip-imr/pkg/ingest"
	"cmip-imr/pkg/pnet"
)

// Defect kinds, matching the original's diagnosis dict keys.
const (
	MissingMessagePlace  = "missing_message_place"
	MissingSendArc       = "missing_send_arc"
	MissingRecvArc       = "missing_recv_arc"
	MissingResourcePlace = "missing_resource_place"
	MissingReqArc        = "missing_req_arc"
	MissingRelArc        = "missing_rel_arc"
	MissingSyncTask      = "missing_sync_task"
	DuplicateSyncTask    = "duplicate_sync_task"
)

// Defect is one structural finding against a specific message id, resource
// id, or sync label.
type Defect struct {
	Kind   string
	ID     string // message id, resource id, or sync activity label
	Detail string
}

// Diagnosis groups defects by the three families the repair operators
// address independently.
type Diagnosis struct {
	MessageErrors  []Defect
	ResourceErrors []Defect
	SyncErrors     []Defect
}

// Total returns the overall defect count across all three families.
func (d Diagnosis) Total() int {
	return len(d.MessageErrors) + len(d.ResourceErrors) + len(d.SyncErrors)
}

// All runs every diagnoser against net and meta.
func All(net *pnet.PetriNet, meta ingest.CollaborationMetadata) Diagnosis {
	return Diagnosis{
		MessageErrors:  Messages(net, meta),
		ResourceErrors: Resources(net, meta),
		SyncErrors:     Sync(net, meta),
	}
}

// Messages checks, for every message id in meta, that the MSG:<id> place
// exists and is correctly wired: every transition labeled the sender
// activity feeds it, every transition labeled the receiver activity
// drains it.
func Messages(net *pnet.PetriNet, meta ingest.CollaborationMetadata) []Defect {
	var defects []Defect
	for _, msgID := range meta.SortedMessageIDs() {
		endpoints := meta.Messages[msgID]
		place, ok := net.PlaceByName(fmt.Sprintf("MSG:%s", msgID))
		if !ok {
			defects = append(defects, Defect{Kind: MissingMessagePlace, ID: msgID,
				Detail: fmt.Sprintf("message place MSG:%s does not exist", msgID)})
			continue
		}
		if endpoints.Sender != "" && !placeFedBy(net, place, endpoints.Sender) {
			defects = append(defects, Defect{Kind: MissingSendArc, ID: msgID,
				Detail: fmt.Sprintf("no arc from %s into MSG:%s", endpoints.Sender, msgID)})
		}
		if endpoints.Receiver != "" && !placeDrainedBy(net, place, endpoints.Receiver) {
			defects = append(defects, Defect{Kind: MissingRecvArc, ID: msgID,
				Detail: fmt.Sprintf("no arc from MSG:%s into %s", msgID, endpoints.Receiver)})
		}
	}
	return defects
}

// Resources checks, for every resource id in meta, that the RES:<id> place
// exists and is wired: every requesting activity consumes from it, every
// releasing activity produces back into it.
func Resources(net *pnet.PetriNet, meta ingest.CollaborationMetadata) []Defect {
	var defects []Defect
	for _, resID := range meta.SortedResourceIDs() {
		usage := meta.Resources[resID]
		place, ok := net.PlaceByName(fmt.Sprintf("RES:%s", resID))
		if !ok {
			defects = append(defects, Defect{Kind: MissingResourcePlace, ID: resID,
				Detail: fmt.Sprintf("resource place RES:%s does not exist", resID)})
			continue
		}
		for _, label := range usage.Req {
			if !placeDrainedBy(net, place, label) {
				defects = append(defects, Defect{Kind: MissingReqArc, ID: resID,
					Detail: fmt.Sprintf("no arc from RES:%s into %s", resID, label)})
			}
		}
		for _, label := range usage.Rel {
			if !placeFedBy(net, place, label) {
				defects = append(defects, Defect{Kind: MissingRelArc, ID: resID,
					Detail: fmt.Sprintf("no arc from %s into RES:%s", label, resID)})
			}
		}
	}
	return defects
}

// Sync checks, for every sync activity label in meta, that exactly one
// transition in net carries it: zero is a missing_sync_task, more than
// one is a duplicate_sync_task that repair_sync_tasks must merge.
func Sync(net *pnet.PetriNet, meta ingest.CollaborationMetadata) []Defect {
	var defects []Defect
	for _, label := range meta.SyncTasks {
		matches := net.TransitionsByLabel(label)
		switch {
		case len(matches) == 0:
			defects = append(defects, Defect{Kind: MissingSyncTask, ID: label,
				Detail: fmt.Sprintf("no transition carries sync label %s", label)})
		case len(matches) > 1:
			defects = append(defects, Defect{Kind: DuplicateSyncTask, ID: label,
				Detail: fmt.Sprintf("%d transitions carry sync label %s", len(matches), label)})
		}
	}
	return defects
}

// placeFedBy reports whether some transition labeled label has an arc
// producing into place (transition -> place).
func placeFedBy(net *pnet.PetriNet, place *pnet.Place, label string) bool {
	for _, a := range net.InArcsOfPlace(place) {
		if t, ok := net.Transition(a.TransID); ok && t.Label == label {
			return true
		}
	}
	return false
}

// placeDrainedBy reports whether some transition labeled label has an arc
// consuming from place (place -> transition).
func placeDrainedBy(net *pnet.PetriNet, place *pnet.Place, label string) bool {
	for _, a := range net.OutArcsOfPlace(place) {
		if t, ok := net.Transition(a.TransID); ok && t.Label == label {
			return true
		}
	}
	return false
}
