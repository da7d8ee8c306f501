package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesEnvOverDefault(t *testing.T) {
	t.Setenv("WORKFLOW_PROVIDER", "temporal")
	t.Setenv("TEMPORAL_HOST_PORT", "temporal:7233")
	t.Setenv("DISPATCH_MAX_DPM", "1200")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "temporal", cfg.WorkflowProvider)
	require.Equal(t, "temporal:7233", cfg.TemporalHostPort)
	require.Equal(t, float64(1200), cfg.DispatchMaxDPM)
	require.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoadRequiresTemporalHostPortWhenProviderIsTemporal(t *testing.T) {
	t.Setenv("WORKFLOW_PROVIDER", "temporal")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/router.yaml"
	require.NoError(t, os.WriteFile(path, []byte("httpAddr: \":9999\"\njobStoreBackend: fs\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.HTTPAddr)
	require.Equal(t, "fs", cfg.JobStoreBackend)
}
