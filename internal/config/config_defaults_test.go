package config

import (
	"testing"

	"cmip-imr/pkg/types"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_FillsZeroValues(t *testing.T) {
	config := &types.Config{}

	applyDefaults(config)

	assert.Equal(t, "cmip-imr", config.App.Name)
	assert.Equal(t, "info", config.App.LogLevel)
	assert.Equal(t, "json", config.App.LogFormat)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 9090, config.Metrics.Port)
	assert.Equal(t, "/metrics", config.Metrics.Path)
	assert.Equal(t, "case_id", config.Ingest.CaseIDColumn)
	assert.Equal(t, "tran", config.Ingest.ActivityColumn)
	assert.Equal(t, "rec_msg", config.Ingest.RecvMsgColumn)
	assert.NotEmpty(t, config.Ingest.TimestampFormats)
	assert.Equal(t, 0.2, config.Discovery.NoiseThreshold)
	assert.Equal(t, 0.95, config.Repair.TargetFMeasure)
	assert.Equal(t, 3, config.Repair.MaxIterations)
	assert.Equal(t, 0.8, config.Repair.FitnessThreshold)
	assert.Equal(t, 1, config.Repair.DefaultResourceCapacity)
	assert.True(t, config.Repair.RemoveResourcesIfLowFitness)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	config := &types.Config{}
	config.App.Name = "custom-name"
	config.Repair.MaxIterations = 25
	config.Ingest.CaseIDColumn = "trace_id"

	applyDefaults(config)

	assert.Equal(t, "custom-name", config.App.Name)
	assert.Equal(t, 25, config.Repair.MaxIterations)
	assert.Equal(t, "trace_id", config.Ingest.CaseIDColumn)
	// untouched fields still get defaulted
	assert.Equal(t, "info", config.App.LogLevel)
}

func TestApplyEnvironmentOverrides(t *testing.T) {
	config := &types.Config{}
	applyDefaults(config)

	t.Setenv("CMIP_LOG_LEVEL", "debug")
	t.Setenv("CMIP_SERVER_PORT", "9000")
	t.Setenv("CMIP_TARGET_F_MEASURE", "0.95")
	t.Setenv("CMIP_MAX_ITERATIONS", "3")

	applyEnvironmentOverrides(config)

	assert.Equal(t, "debug", config.App.LogLevel)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, 0.95, config.Repair.TargetFMeasure)
	assert.Equal(t, 3, config.Repair.MaxIterations)
}

func TestApplyEnvironmentOverrides_IgnoresInvalidValues(t *testing.T) {
	config := &types.Config{}
	applyDefaults(config)
	originalPort := config.Server.Port

	t.Setenv("CMIP_SERVER_PORT", "not-a-number")

	applyEnvironmentOverrides(config)

	assert.Equal(t, originalPort, config.Server.Port)
}
