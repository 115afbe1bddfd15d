package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestNew_FailsOnMissingConfigFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestNew_FailsOnInvalidConfig(t *testing.T) {
	path := writeFile(t, "config.yaml", "app:\n  log_level: not-a-real-level\n")
	_, err := New(path)
	assert.Error(t, err)
}

func TestRunOnce_ExecutesEndToEndAgainstConfiguredLog(t *testing.T) {
	logPath := writeFile(t, "log.csv", ""+
		"case_id,tran,timestamp,roles,send_msg,rec_msg,req_res,rel_res\n"+
		"1,A,2024-01-01 09:00:00,['X'],[],[],[],[]\n"+
		"1,B,2024-01-01 10:00:00,['X'],[],[],[],[]\n")

	configPath := writeFile(t, "config.yaml", "ingest:\n  log_path: "+logPath+"\n")

	a, err := New(configPath)
	require.NoError(t, err)

	result, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Metadata.TotalCases)
}
