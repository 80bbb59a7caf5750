package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("PLATESOLVER_CONFIG", filepath.Join(t.TempDir(), "nope.json"))
	t.Setenv("PROJECT_ID", "")
	t.Setenv("BUCKET_NAME", "")
	t.Setenv("SUB_TOPIC", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "panoptes-survey", cfg.Project)
	require.Equal(t, "gce-plate-solver", cfg.Subscription)
	require.Equal(t, 90*time.Second, time.Duration(cfg.Solver.Timeout))
	require.Equal(t, 10, cfg.Stamps.Size)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"project": "file-project",
		"bucket": "file-bucket",
		"solver": {"timeout": "45s"},
		"stamps": {"size": 12}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	t.Setenv("PLATESOLVER_CONFIG", path)
	t.Setenv("PROJECT_ID", "env-project")
	t.Setenv("BUCKET_NAME", "")
	t.Setenv("SUB_TOPIC", "env-sub")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "env-project", cfg.Project, "env wins over file")
	require.Equal(t, "file-bucket", cfg.Bucket, "file wins over default")
	require.Equal(t, "env-sub", cfg.Subscription)
	require.Equal(t, 45*time.Second, time.Duration(cfg.Solver.Timeout))
	require.Equal(t, 12, cfg.Stamps.Size)
}

func TestLoadRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	t.Setenv("PLATESOLVER_CONFIG", path)

	_, err := Load()
	require.Error(t, err)
}
