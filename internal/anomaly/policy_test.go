package anomaly

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, 10, p.MinHistory)
	assert.Equal(t, 3.0, p.WarningZScore)
	assert.Equal(t, 6.0, p.WarningZScore*p.CriticalFactor)
	assert.Equal(t, 7, p.LateEntryDays)
	assert.Equal(t, int64(1000), p.RoundUnit)
	assert.Equal(t, 0.15, p.RoundRatio)
	assert.Equal(t, 20, p.RoundMinCount)
}

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("warning_zscore: 2.5\nround_unit: 500\nconcurrent: false\n"), 0o600))

	p, err := LoadPolicyFile(path, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, 2.5, p.WarningZScore)
	assert.Equal(t, int64(500), p.RoundUnit)
	assert.False(t, p.Concurrent)
	assert.Equal(t, 10, p.MinHistory, "unset keys keep defaults")
}

func TestLoadPolicyFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("round_ratio: 1.5\n"), 0o600))

	p, err := LoadPolicyFile(path, DefaultPolicy())
	require.Error(t, err)
	assert.Equal(t, DefaultPolicy(), p)

	_, err = LoadPolicyFile(filepath.Join(dir, "missing.yaml"), DefaultPolicy())
	require.Error(t, err)
}
