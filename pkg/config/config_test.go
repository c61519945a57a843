package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"awolmrf/pkg/fusion"
)

func TestDefaultConfigMatchesFusionDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	params := cfg.FusionParams()
	defaults := fusion.DefaultParams()
	assert.Equal(t, defaults.Beta, params.Beta)
	assert.Equal(t, defaults.MixingRatio, params.MixingRatio)
	assert.Equal(t, defaults.PatchLength, params.PatchLength)
	assert.Equal(t, defaults.SameThreshold, params.SameThreshold)
	assert.Equal(t, defaults.Thresholds, params.Thresholds)
	assert.Nil(t, params.BoundingBox)
	require.NoError(t, params.Validate())
}

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "awolmrf.yaml")
	cfg := DefaultConfig()
	cfg.Fusion.Beta = -0.5
	cfg.Fusion.Thresholds = []float64{0.1, 0.3, 0.4}
	cfg.Fusion.SameThreshold = false
	cfg.Processing.Workers = 2
	cfg.Output.Format = "vol"
	cfg.Logging.Level = "debug"

	require.NoError(t, SaveConfig(cfg, path))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fusion:\n  mixingRatio: 4\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Fusion.MixingRatio)
	assert.Equal(t, 5, cfg.Fusion.PatchLength)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"threshold":     "fusion:\n  thresholds: [0.2, 1.5]\n",
		"no thresholds": "fusion:\n  thresholds: []\n",
		"patch":         "fusion:\n  patchLength: -1\n",
		"workers":       "processing:\n  workers: 0\n",
		"level":         "logging:\n  level: loud\n",
		"format":        "output:\n  format: nifti\n",
		"syntax":        "fusion: [\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestFusionParamsCopiesThresholds(t *testing.T) {
	cfg := DefaultConfig()
	params := cfg.FusionParams()
	params.Thresholds[0] = 0.9
	assert.Equal(t, 0.2, cfg.Fusion.Thresholds[0])

	cfg.Fusion.MixingRatio = -3
	err := cfg.FusionParams().Validate()
	assert.True(t, errors.Is(err, fusion.ErrInvalidParams))
}
