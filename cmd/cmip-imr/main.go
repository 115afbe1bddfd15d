// Command cmip-imr runs the CMIP-IMR pipeline: with the `run` argument,
// once as a batch job against the configured log (printing the
// verification report and exiting with the error-family exit code from
// §6); otherwise as a long-running service until SIGINT/SIGTERM, serving
// /healthz and /run when server.enabled is set and a Prometheus /metrics
// endpoint when metrics.enabled is set. Grounded on the teacher repo's cmd/main.go
// flag/env/default config-path resolution.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"cmip-imr/internal/app"
	"cmip-imr/pkg/errors"
	"cmip-imr/pkg/report"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.Parse()

	if configFile == "" {
		if envConfigFile := os.Getenv("CMIP_CONFIG_FILE"); envConfigFile != "" {
			configFile = envConfigFile
		} else {
			configFile = "/app/configs/config.yaml"
		}
	}

	fmt.Printf("Using configuration file: %s\n", configFile)

	application, err := app.New(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "run" {
		runOnce(application)
		return
	}

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

// runOnce executes a single CMIP-IMR pass and exits, for `cmip-imr run`
// batch invocations (e.g. from cron or CI) rather than the long-running
// HTTP service.
func runOnce(application *app.App) {
	result, err := application.RunOnce(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if appErr, ok := errors.AsAppError(err); ok {
			os.Exit(appErr.ExitCode())
		}
		os.Exit(1)
	}

	fmt.Println(report.Verification(report.VerificationInput{
		RunID:      result.RunID,
		Metadata:   result.Metadata,
		N0Metrics:  result.N0Metrics,
		N1Metrics:  result.N1Metrics,
		Iterations: result.Iterations,
		Diagnosis:  result.Diagnosis,
		Repair:     result.Repair,
	}))
}
