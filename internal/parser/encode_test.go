package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imishinist/ddppo-cli/internal/models"
)

func TestRoundTrip(t *testing.T) {
	cfg, err := Load([]string{pointnavConfig}, nil, WithTaskConfig(true))
	require.NoError(t, err)

	for _, format := range []Format{FormatYAML, FormatJSON, FormatTOML} {
		t.Run(string(format), func(t *testing.T) {
			data, err := Marshal(cfg, format)
			require.NoError(t, err)

			decoded, err := Unmarshal(data, format)
			require.NoError(t, err)
			assert.Equal(t, cfg, decoded)
		})
	}
}

func TestRoundTripDefaults(t *testing.T) {
	cfg := models.Default()

	for _, format := range []Format{FormatYAML, FormatJSON, FormatTOML} {
		t.Run(string(format), func(t *testing.T) {
			data, err := Marshal(&cfg, format)
			require.NoError(t, err)

			decoded, err := Unmarshal(data, format)
			require.NoError(t, err)
			assert.Equal(t, &cfg, decoded)
		})
	}
}

func TestMarshalYAML(t *testing.T) {
	cfg := models.Default()

	data, err := Marshal(&cfg, FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, string(data), "NUM_ENVIRONMENTS: 16\n")
	assert.Contains(t, string(data), "\n  PPO:\n    clip_param: 0.2\n")
	assert.NotContains(t, string(data), "\nTASK_CONFIG:")
	assert.False(t, strings.HasPrefix(string(data), "TASK_CONFIG:"))

	cfg.TaskConfig = map[string]any{"DATASET": map[string]any{"SPLIT": "val"}}
	data, err = Marshal(&cfg, FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\nTASK_CONFIG:\n  DATASET:\n    SPLIT: val\n")
}

func TestUnmarshalValidates(t *testing.T) {
	_, err := Unmarshal([]byte(`{"RL": {"DDPPO": {"sync_frac": 1.5}}}`), FormatJSON)
	assert.ErrorContains(t, err, "RL.DDPPO.sync_frac")

	_, err = Unmarshal([]byte("RL = 3\n"), Format("ini"))
	assert.ErrorContains(t, err, "unsupported format")
}

func TestFlatten(t *testing.T) {
	cfg := models.Default()

	params, err := Flatten(&cfg)
	require.NoError(t, err)

	assert.Equal(t, "16", params["NUM_ENVIRONMENTS"])
	assert.Equal(t, "0.00025", params["RL.PPO.lr"])
	assert.Equal(t, "disk,tensorboard", params["VIDEO_OPTION"])
	assert.Equal(t, "true", params["VERBOSE"])
	assert.Equal(t, "GLOO", params["RL.DDPPO.distrib_backend"])
	assert.Equal(t, "val", params["EVAL.SPLIT"])
	assert.NotContains(t, params, "TASK_CONFIG")

	keys := SortedKeys(params)
	assert.Len(t, keys, len(params))
	assert.IsIncreasing(t, keys)
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"run.yaml", FormatYAML},
		{"run.YML", FormatYAML},
		{"run.json", FormatJSON},
		{"run.toml", FormatTOML},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := FormatFromPath("run.ini")
	assert.ErrorContains(t, err, "unsupported file format: .ini")

	_, err = ParseFormat("xml")
	assert.ErrorContains(t, err, "unsupported format: xml")
}
