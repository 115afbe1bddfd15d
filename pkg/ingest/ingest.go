// Package ingest parses the engine's input log and extracts the
// collaboration metadata (departments, sync tasks, messages, resources)
// that every downstream component consumes. Grounded on the original
// Python prototype's services/ingest.py: load_csv_log, parse_list_field,
// extract_departments, identify_sync_tasks, extract_messages, and
// extract_resources are reproduced here in Go idiom.
package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"cmip-imr/pkg/errors"
	"cmip-imr/pkg/types"

	"github.com/sirupsen/logrus"
)

// EventRecord is a single row of the input log.
type EventRecord struct {
	CaseID    string
	Activity  string
	Timestamp time.Time
	Roles     []string
	SendMsg   []string
	RecvMsg   []string
	ReqRes    []string
	RelRes    []string
}

// HasRole reports whether department is among the record's roles.
func (e EventRecord) HasRole(department string) bool {
	for _, r := range e.Roles {
		if r == department {
			return true
		}
	}
	return false
}

// Log is an ordered sequence of event records, stable-sorted by
// (case_id, timestamp).
type Log []EventRecord

// Cases groups the log's records by case id, preserving within-case order.
func (l Log) Cases() map[string][]EventRecord {
	cases := make(map[string][]EventRecord)
	for _, e := range l {
		cases[e.CaseID] = append(cases[e.CaseID], e)
	}
	return cases
}

// CaseIDs returns the distinct case ids in first-seen order.
func (l Log) CaseIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, e := range l {
		if !seen[e.CaseID] {
			seen[e.CaseID] = true
			ids = append(ids, e.CaseID)
		}
	}
	return ids
}

// MessageEndpoints records the first-seen sender and receiver activity for
// a message id. Either side may be empty (one-sided messages).
type MessageEndpoints struct {
	Sender   string
	Receiver string
}

// ResourceUsage records the first-seen-unique-order requesting and
// releasing activities for a resource id.
type ResourceUsage struct {
	Req []string
	Rel []string
}

// CollaborationMetadata is derived once from a Log, per the data model's
// definition: departments, sync tasks, message and resource relations.
type CollaborationMetadata struct {
	Departments []string
	SyncTasks   []string
	Messages    map[string]MessageEndpoints
	Resources   map[string]ResourceUsage
	TotalCases  int
	TotalEvents int
}

// LoadCSVLog reads and normalizes the CSV log at path according to the
// configured column names. Malformed required columns or unparseable
// timestamps are fatal (spec §4.1); malformed list cells degrade silently
// to an empty list.
func LoadCSVLog(path string, cfg types.IngestConfig, logger *logrus.Logger) (Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IngestionError(errors.CodeIngestionMalformed, "load_csv_log", err.Error())
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, errors.IngestionError(errors.CodeIngestionEmptyLog, "load_csv_log", "log file has no header row")
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	required := map[string]string{
		"case_id":   cfg.CaseIDColumn,
		"activity":  cfg.ActivityColumn,
		"timestamp": cfg.TimestampColumn,
		"roles":     cfg.RolesColumn,
	}
	for field, name := range required {
		if _, ok := col[name]; !ok {
			return nil, errors.IngestionError(errors.CodeIngestionMalformed, "load_csv_log", "missing required column: "+field+" ("+name+")")
		}
	}

	var log Log
	rowNum := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.IngestionError(errors.CodeIngestionMalformed, "load_csv_log", err.Error())
		}
		rowNum++

		ts, err := parseTimestamp(field(row, col, cfg.TimestampColumn), cfg.TimestampFormats)
		if err != nil {
			return nil, errors.IngestionError(errors.CodeIngestionTimestamp, "load_csv_log", err.Error()).
				WithMetadata("row", rowNum)
		}

		rec := EventRecord{
			CaseID:    field(row, col, cfg.CaseIDColumn),
			Activity:  field(row, col, cfg.ActivityColumn),
			Timestamp: ts,
			Roles:     parseListField(field(row, col, cfg.RolesColumn)),
			SendMsg:   parseListField(field(row, col, cfg.SendMsgColumn)),
			RecvMsg:   parseListField(field(row, col, cfg.RecvMsgColumn)),
			ReqRes:    parseListField(field(row, col, cfg.ReqResColumn)),
			RelRes:    parseListField(field(row, col, cfg.RelResColumn)),
		}
		log = append(log, rec)
	}

	if len(log) == 0 {
		return nil, errors.IngestionError(errors.CodeIngestionEmptyLog, "load_csv_log", "log contains no events")
	}

	sort.SliceStable(log, func(i, j int) bool {
		if log[i].CaseID != log[j].CaseID {
			return log[i].CaseID < log[j].CaseID
		}
		return log[i].Timestamp.Before(log[j].Timestamp)
	})

	return log, nil
}

func field(row []string, col map[string]int, name string) string {
	idx, ok := col[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseTimestamp(raw string, formats []string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range formats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = errors.New(errors.CodeIngestionTimestamp, "ingest", "parse_timestamp", "no timestamp formats configured")
	}
	return time.Time{}, lastErr
}

// parseListField parses a string-serialized list cell (e.g. "['m1','m2']"
// or "m1,m2") into its elements. Empty or missing cells, and cells with no
// non-empty element, yield an empty list. Parsing is permissive and never
// rejects a cell: one surrounding bracket on each side is stripped if
// present, the rest is split on commas, and quotes are trimmed from each
// element, so a malformed cell such as "['m1" yields its recovered
// elements rather than an empty list.
func parseListField(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" {
		return []string{}
	}

	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `'"`)
		if p != "" {
			out = append(out, p)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}

// ProjectByDepartment returns the sub-log of events whose roles include
// department, preserving per-case ordering.
func ProjectByDepartment(log Log, department string) Log {
	var out Log
	for _, e := range log {
		if e.HasRole(department) {
			out = append(out, e)
		}
	}
	return out
}

// ExtractMetadata derives CollaborationMetadata from a normalized log.
// Departments, message ids, and resource ids are sorted lexicographically
// for deterministic downstream iteration, per the design note in §9.
func ExtractMetadata(log Log, logger *logrus.Logger) CollaborationMetadata {
	deptSet := make(map[string]bool)
	syncSet := make(map[string]bool)

	sendMap := make(map[string]string) // msg id -> first-seen sender activity
	recvMap := make(map[string]string)
	sendSeen := make(map[string]bool)
	recvSeen := make(map[string]bool)

	reqMap := make(map[string][]string)
	relMap := make(map[string][]string)
	reqSeen := make(map[string]map[string]bool)
	relSeen := make(map[string]map[string]bool)

	for _, e := range log {
		for _, r := range e.Roles {
			deptSet[r] = true
		}
		if len(e.Roles) >= 2 {
			syncSet[e.Activity] = true
		}

		for _, msg := range e.SendMsg {
			if !sendSeen[msg] {
				sendSeen[msg] = true
				sendMap[msg] = e.Activity
			} else if logger != nil && sendMap[msg] != e.Activity {
				logger.WithFields(logrus.Fields{"message": msg, "first_sender": sendMap[msg], "second_sender": e.Activity}).
					Warn("message id reused with a different sender activity; keeping first-seen sender")
			}
		}
		for _, msg := range e.RecvMsg {
			if !recvSeen[msg] {
				recvSeen[msg] = true
				recvMap[msg] = e.Activity
			} else if logger != nil && recvMap[msg] != e.Activity {
				logger.WithFields(logrus.Fields{"message": msg, "first_receiver": recvMap[msg], "second_receiver": e.Activity}).
					Warn("message id reused with a different receiver activity; keeping first-seen receiver")
			}
		}

		for _, res := range e.ReqRes {
			if reqSeen[res] == nil {
				reqSeen[res] = make(map[string]bool)
			}
			if !reqSeen[res][e.Activity] {
				reqSeen[res][e.Activity] = true
				reqMap[res] = append(reqMap[res], e.Activity)
			}
		}
		for _, res := range e.RelRes {
			if relSeen[res] == nil {
				relSeen[res] = make(map[string]bool)
			}
			if !relSeen[res][e.Activity] {
				relSeen[res][e.Activity] = true
				relMap[res] = append(relMap[res], e.Activity)
			}
		}
	}

	departments := sortedKeys(deptSet)
	syncTasks := sortedKeys(syncSet)

	messages := make(map[string]MessageEndpoints)
	allMsgs := make(map[string]bool)
	for k := range sendMap {
		allMsgs[k] = true
	}
	for k := range recvMap {
		allMsgs[k] = true
	}
	for msg := range allMsgs {
		sender, recver := sendMap[msg], recvMap[msg]
		if sender == "" && recver == "" {
			continue // dropped: neither sender nor receiver (spec §4.1)
		}
		messages[msg] = MessageEndpoints{Sender: sender, Receiver: recver}
	}

	resources := make(map[string]ResourceUsage)
	allRes := make(map[string]bool)
	for k := range reqMap {
		allRes[k] = true
	}
	for k := range relMap {
		allRes[k] = true
	}
	for res := range allRes {
		req, rel := reqMap[res], relMap[res]
		if len(req) == 0 && len(rel) == 0 {
			continue // dropped: empty req and rel (spec §4.1)
		}
		resources[res] = ResourceUsage{Req: req, Rel: rel}
	}

	caseIDs := make(map[string]bool)
	for _, e := range log {
		caseIDs[e.CaseID] = true
	}

	return CollaborationMetadata{
		Departments: departments,
		SyncTasks:   syncTasks,
		Messages:    messages,
		Resources:   resources,
		TotalCases:  len(caseIDs),
		TotalEvents: len(log),
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SortedMessageIDs returns the message ids in metadata in lexicographic
// order, for deterministic iteration downstream.
func (m CollaborationMetadata) SortedMessageIDs() []string {
	ids := make([]string, 0, len(m.Messages))
	for id := range m.Messages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortedResourceIDs returns the resource ids in metadata in lexicographic
// order, for deterministic iteration downstream.
func (m CollaborationMetadata) SortedResourceIDs() []string {
	ids := make([]string, 0, len(m.Resources))
	for id := range m.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
