// Package report renders the engine's structured results as the
// human-readable text the CLI and the HTTP text/plain format print.
// Grounded on format_diagnosis_report, format_repair_report, and
// generate_verification_report in the original prototype's
// services/repair.py and services/cmip_imr.py — those functions build
// their documents the same way: a title, a blank line, then one
// indented section per concern.
package report

import (
	"fmt"
	"strings"

	"cmip-imr/pkg/conformance"
	"cmip-imr/pkg/diagnose"
	"cmip-imr/pkg/ingest"
	"cmip-imr/pkg/repair"
)

// Diagnosis renders a Diagnosis as the per-family defect listing.
func Diagnosis(d diagnose.Diagnosis) string {
	var b strings.Builder
	b.WriteString("Diagnosis Report\n")
	b.WriteString("================\n\n")

	writeFamily(&b, "Message errors", d.MessageErrors)
	writeFamily(&b, "Resource errors", d.ResourceErrors)
	writeFamily(&b, "Sync errors", d.SyncErrors)

	fmt.Fprintf(&b, "Total defects: %d\n", d.Total())
	return b.String()
}

func writeFamily(b *strings.Builder, title string, defects []diagnose.Defect) {
	fmt.Fprintf(b, "%s (%d):\n", title, len(defects))
	if len(defects) == 0 {
		b.WriteString("  none\n\n")
		return
	}
	for _, d := range defects {
		fmt.Fprintf(b, "  - [%s] %s: %s\n", d.Kind, d.ID, d.Detail)
	}
	b.WriteString("\n")
}

// Repair renders a repair.Report as the applied-action log.
func Repair(r repair.Report) string {
	var b strings.Builder
	b.WriteString("Repair Report\n")
	b.WriteString("=============\n\n")
	fmt.Fprintf(&b, "Message repairs:  %d\n", r.MessageRepairs)
	fmt.Fprintf(&b, "Resource repairs: %d\n", r.ResourceRepairs)
	fmt.Fprintf(&b, "Sync repairs:     %d\n", r.SyncRepairs)
	fmt.Fprintf(&b, "Total repairs:    %d\n\n", r.Total())

	b.WriteString("Actions:\n")
	if len(r.Actions) == 0 {
		b.WriteString("  none\n")
	}
	for _, action := range r.Actions {
		fmt.Fprintf(&b, "  - %s\n", action)
	}
	return b.String()
}

// VerificationInput gathers everything the end-to-end verification
// summary needs, kept independent of the orchestration package so report
// never has to import it back.
type VerificationInput struct {
	RunID      string
	Metadata   ingest.CollaborationMetadata
	N0Metrics  conformance.Metrics
	N1Metrics  conformance.Metrics
	Iterations int
	Diagnosis  diagnose.Diagnosis
	Repair     repair.Report
}

// Verification renders the full run summary: log statistics, collaboration
// patterns, N0 quality, N1 quality, the quality delta, the iteration
// count, and a repair action summary — mirroring
// generate_verification_report's section order.
func Verification(in VerificationInput) string {
	var b strings.Builder

	b.WriteString("CMIP-IMR Verification Report\n")
	b.WriteString("=============================\n\n")

	if in.RunID != "" {
		fmt.Fprintf(&b, "Run ID: %s\n", in.RunID)
	}
	fmt.Fprintf(&b, "Log: %d cases, %d events\n", in.Metadata.TotalCases, in.Metadata.TotalEvents)
	fmt.Fprintf(&b, "Departments: %s\n", strings.Join(in.Metadata.Departments, ", "))
	fmt.Fprintf(&b, "Sync tasks: %d, Messages: %d, Resources: %d\n\n",
		len(in.Metadata.SyncTasks), len(in.Metadata.Messages), len(in.Metadata.Resources))

	b.WriteString("N0 (initial integrated net):\n")
	writeMetrics(&b, in.N0Metrics)

	b.WriteString("\nN1 (repaired net):\n")
	writeMetrics(&b, in.N1Metrics)

	fmt.Fprintf(&b, "\nQuality improvement: fitness %+.4f, precision %+.4f, F-measure %+.4f over %d iteration(s)\n\n",
		in.N1Metrics.Fitness-in.N0Metrics.Fitness,
		in.N1Metrics.Precision-in.N0Metrics.Precision,
		in.N1Metrics.FMeasure-in.N0Metrics.FMeasure,
		in.Iterations)

	b.WriteString(Diagnosis(in.Diagnosis))
	b.WriteString("\n")
	b.WriteString(Repair(in.Repair))

	return b.String()
}

func writeMetrics(b *strings.Builder, m conformance.Metrics) {
	fmt.Fprintf(b, "  fitness=%.4f precision=%.4f f_measure=%.4f (%d/%d traces fitting)\n",
		m.Fitness, m.Precision, m.FMeasure, m.Diagnostics.FittingTraces, m.Diagnostics.TotalTraces)
}
