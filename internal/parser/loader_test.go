package parser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/imishinist/ddppo-cli/internal/models"
)

const pointnavConfig = "testdata/ddppo_pointnav.yaml"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadLiteralValues(t *testing.T) {
	cfg, err := Load([]string{pointnavConfig}, nil)
	require.NoError(t, err)

	assert.Equal(t, "ddppo", cfg.TrainerName)
	assert.Equal(t, 32, cfg.NumEnvironments)
	assert.Equal(t, -1, cfg.NumUpdates)
	assert.Equal(t, 5e7, cfg.TotalNumSteps)
	assert.Equal(t, []string{"disk"}, cfg.VideoOption)
	assert.Equal(t, []string{"THIRD_RGB_SENSOR"}, cfg.VideoRenderViews)
	assert.Equal(t, []string{"DEPTH_SENSOR"}, cfg.Sensors)
	assert.True(t, cfg.ForceTorchSingleThreaded)

	assert.Equal(t, "gaussian", cfg.RL.Policy.ActionDistributionType)
	assert.Equal(t, 0.2, cfg.RL.PPO.ClipParam)
	assert.Equal(t, 2, cfg.RL.PPO.PPOEpoch)
	assert.Equal(t, 0.001, cfg.RL.PPO.EntropyCoef)
	assert.Equal(t, 3e-4, cfg.RL.PPO.LR)
	assert.Equal(t, 128, cfg.RL.PPO.NumSteps)
	assert.True(t, cfg.RL.PPO.UseLinearLRDecay)

	assert.Equal(t, "NCCL", cfg.RL.DDPPO.DistribBackend)
	assert.Equal(t, "LSTM", cfg.RL.DDPPO.RNNType)
	assert.Equal(t, 2, cfg.RL.DDPPO.NumRecurrentLayers)
	assert.Equal(t, "resnet50", cfg.RL.DDPPO.Backbone)
	assert.False(t, cfg.RL.DDPPO.ResetCritic)

	// Task loading is off by default.
	assert.Nil(t, cfg.TaskConfig)
}

func TestLoadOmittedKeysUseDefaults(t *testing.T) {
	cfg, err := Load([]string{pointnavConfig}, nil)
	require.NoError(t, err)

	def := models.Default()
	assert.Equal(t, def.VideoFPS, cfg.VideoFPS)
	assert.Equal(t, def.LogFile, cfg.LogFile)
	assert.Equal(t, def.Eval, cfg.Eval)
	assert.Equal(t, def.Profiling, cfg.Profiling)
	assert.Equal(t, def.RL.SlackReward, cfg.RL.SlackReward)
	assert.Equal(t, def.CheckpointInterval, cfg.CheckpointInterval)
}

func TestLoadEmptyDocument(t *testing.T) {
	path := writeFile(t, "empty.yaml", "")

	cfg, err := Load([]string{path}, nil)
	require.NoError(t, err)

	def := models.Default()
	assert.Equal(t, &def, cfg)
}

func TestLoadNullFallsBackToDefault(t *testing.T) {
	path := writeFile(t, "null.yaml", "VIDEO_DIR: null\nRL:\n  PPO:\n    lr: ~\n")

	cfg, err := Load([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, "video_dir", cfg.VideoDir)
	assert.Equal(t, 2.5e-4, cfg.RL.PPO.LR)
}

func TestLoadCaseInsensitiveKeys(t *testing.T) {
	path := writeFile(t, "case.yaml", "num_environments: 8\nrl:\n  ppo:\n    LR: 0.001\n")

	cfg, err := Load([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.NumEnvironments)
	assert.Equal(t, 0.001, cfg.RL.PPO.LR)
}

func TestLoadUnknownKey(t *testing.T) {
	_, err := Load([]string{"testdata/unknown_key.yaml"}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "learning_rate")
}

func TestLoadTypeMismatch(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"string for int", "NUM_ENVIRONMENTS: many\n"},
		{"list for string", "TRAINER_NAME: [ppo]\n"},
		{"string for bool", "VERBOSE: sometimes\n"},
		{"fraction for int", "NUM_ENVIRONMENTS: 4.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "mismatch.yaml", tt.content)
			_, err := Load([]string{path}, nil)
			assert.ErrorContains(t, err, "failed to decode configuration")
		})
	}
}

func TestLoadIntegralFloatFromJSON(t *testing.T) {
	path := writeFile(t, "ints.json", `{"NUM_ENVIRONMENTS": 8.0, "RL": {"PPO": {"num_steps": 64}}}`)

	cfg, err := Load([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.NumEnvironments)
	assert.Equal(t, 64, cfg.RL.PPO.NumSteps)
}

func TestLoadMergesDocumentsInOrder(t *testing.T) {
	cfg, err := Load([]string{pointnavConfig, "testdata/ppo_overrides.json", "testdata/eval.toml"}, nil)
	require.NoError(t, err)

	// From the JSON document.
	assert.Equal(t, 8, cfg.NumEnvironments)
	assert.Equal(t, 4, cfg.RL.PPO.NumMiniBatch)
	assert.Equal(t, 1e-4, cfg.RL.PPO.LR)
	assert.Equal(t, 64, cfg.RL.PPO.NumSteps)

	// From the TOML document. Lists are replaced, not merged.
	assert.Equal(t, 994, cfg.TestEpisodeCount)
	assert.Equal(t, []string{}, cfg.VideoOption)
	assert.Equal(t, "val_mini", cfg.Eval.Split)
	assert.False(t, cfg.Eval.UseCkptConfig)
	assert.True(t, cfg.Eval.ShouldLoadCkpt)
	assert.Equal(t, 0.8, cfg.RL.DDPPO.SyncFrac)

	// Untouched keys keep the first document's value.
	assert.Equal(t, "NCCL", cfg.RL.DDPPO.DistribBackend)
	assert.Equal(t, 0.2, cfg.RL.PPO.ClipParam)
}

func TestLoadOverrides(t *testing.T) {
	overrides, err := ParseOverrides([]string{
		"RL.PPO.lr=1e-4",
		"RL.DDPPO.distrib_backend=GLOO",
		"VIDEO_OPTION=[tensorboard]",
		"num_environments=16",
	})
	require.NoError(t, err)

	cfg, err := Load([]string{pointnavConfig}, overrides)
	require.NoError(t, err)
	assert.Equal(t, 1e-4, cfg.RL.PPO.LR)
	assert.Equal(t, "GLOO", cfg.RL.DDPPO.DistribBackend)
	assert.Equal(t, []string{"tensorboard"}, cfg.VideoOption)
	assert.Equal(t, 16, cfg.NumEnvironments)
}

func TestLoadOverrideUnknownKey(t *testing.T) {
	overrides, err := ParseOverrides([]string{"RL.PPO.learning_rate=0.1"})
	require.NoError(t, err)

	_, err = Load([]string{pointnavConfig}, overrides)
	assert.ErrorContains(t, err, "learning_rate")
}

func TestLoadValidationError(t *testing.T) {
	_, err := Load([]string{"testdata/invalid.yaml"}, nil)
	require.Error(t, err)

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))

	var fields []string
	for _, field := range verr.Fields() {
		fields = append(fields, field.Field)
	}
	assert.Contains(t, fields, "NUM_ENVIRONMENTS")
	assert.Contains(t, fields, "TRAINER_NAME")
	assert.Contains(t, fields, "RL.DDPPO.sync_frac")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load([]string{"testdata/missing.yaml"}, nil)
	assert.ErrorContains(t, err, "failed to open file testdata/missing.yaml")

	_, err = Load([]string{"testdata/config.ini"}, nil)
	assert.ErrorContains(t, err, "unsupported file format")
}

func TestLoadMalformedDocument(t *testing.T) {
	path := writeFile(t, "broken.yaml", "RL: [unclosed\n")

	_, err := Load([]string{path}, nil)
	assert.ErrorContains(t, err, "failed to parse")
}

func TestLoadNumProcessesAlias(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	path := writeFile(t, "procs.yaml", "NUM_PROCESSES: 4\n")

	cfg, err := Load([]string{path}, nil, WithLogger(zap.New(core)))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.NumEnvironments)
	assert.Equal(t, 4, cfg.NumProcesses)

	entries := logs.FilterMessageSnippet("NUM_PROCESSES is deprecated").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(4), entries[0].ContextMap()["num_processes"])
}

func TestLoadTaskConfig(t *testing.T) {
	cfg, err := Load([]string{pointnavConfig}, nil, WithTaskConfig(true))
	require.NoError(t, err)
	require.NotNil(t, cfg.TaskConfig)

	env := cfg.TaskConfig["ENVIRONMENT"].(map[string]any)
	assert.Equal(t, 500, env["MAX_EPISODE_STEPS"])

	agent := cfg.TaskConfig["SIMULATOR"].(map[string]any)["AGENT_0"].(map[string]any)
	assert.Equal(t, []any{"DEPTH_SENSOR"}, agent["SENSORS"])
	assert.Equal(t, 0.88, agent["HEIGHT"])

	dataset := cfg.TaskConfig["DATASET"].(map[string]any)
	assert.Equal(t, "train", dataset["SPLIT"])
}

func TestLoadTaskConfigOverrides(t *testing.T) {
	overrides, err := ParseOverrides([]string{"TASK_CONFIG.DATASET.SPLIT=val_mini"})
	require.NoError(t, err)

	cfg, err := Load([]string{pointnavConfig, "testdata/task_override.yaml"}, overrides, WithTaskConfig(true))
	require.NoError(t, err)

	env := cfg.TaskConfig["ENVIRONMENT"].(map[string]any)
	assert.Equal(t, 1000, env["MAX_EPISODE_STEPS"])

	dataset := cfg.TaskConfig["DATASET"].(map[string]any)
	assert.Equal(t, "val_mini", dataset["SPLIT"])
	assert.Equal(t, "PointNav-v1", dataset["TYPE"])
}

func TestLoadTaskConfigWithoutBase(t *testing.T) {
	cfg, err := Load([]string{pointnavConfig, "testdata/task_override.yaml"}, nil)
	require.NoError(t, err)

	// Only the inline TASK_CONFIG is kept, with the sensors injected.
	assert.Len(t, cfg.TaskConfig, 3)
	agent := cfg.TaskConfig["SIMULATOR"].(map[string]any)["AGENT_0"].(map[string]any)
	assert.Equal(t, []any{"DEPTH_SENSOR"}, agent["SENSORS"])
}

func TestLoadTaskConfigMissingBase(t *testing.T) {
	path := writeFile(t, "run.yaml", "BASE_TASK_CONFIG_PATH: tasks/missing.yaml\n")

	_, err := Load([]string{path}, nil, WithTaskConfig(true))
	assert.ErrorContains(t, err, "failed to load BASE_TASK_CONFIG_PATH")

	_, err = Load([]string{path}, nil, WithTaskConfig(true), WithTaskDir("testdata"))
	assert.ErrorContains(t, err, "failed to load BASE_TASK_CONFIG_PATH")
}

func TestLoadTaskDir(t *testing.T) {
	path := writeFile(t, "run.yaml", "BASE_TASK_CONFIG_PATH: tasks/pointnav.yaml\n")

	cfg, err := Load([]string{path}, nil, WithTaskConfig(true), WithTaskDir("testdata"))
	require.NoError(t, err)
	assert.Contains(t, cfg.TaskConfig, "TASK")
}

func TestLoadTaskConfigNotATable(t *testing.T) {
	path := writeFile(t, "run.yaml", "TASK_CONFIG: pointnav\n")

	_, err := Load([]string{path}, nil)
	assert.ErrorContains(t, err, "TASK_CONFIG must be a table")
}

func TestLoadTaskConfigFromWorkingDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "configs", "tasks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "configs", "tasks", "pointnav.yaml"),
		[]byte("DATASET:\n  SPLIT: train\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "configs", "ddppo.yaml"),
		[]byte("BASE_TASK_CONFIG_PATH: configs/tasks/pointnav.yaml\n"), 0o644))
	t.Chdir(root)

	cfg, err := Load([]string{"configs/ddppo.yaml"}, nil, WithTaskConfig(true))
	require.NoError(t, err)

	dataset := cfg.TaskConfig["DATASET"].(map[string]any)
	assert.Equal(t, "train", dataset["SPLIT"])
}

func TestLoadTaskConfigNamesTriedPaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "configs", "ddppo.yaml"),
		[]byte("BASE_TASK_CONFIG_PATH: tasks/missing.yaml\n"), 0o644))
	t.Chdir(root)

	_, err := Load([]string{"configs/ddppo.yaml"}, nil, WithTaskConfig(true))
	require.Error(t, err)
	assert.ErrorContains(t, err, filepath.Join("configs", "tasks", "missing.yaml"))
	assert.ErrorContains(t, err, "tried configs/tasks/missing.yaml, tasks/missing.yaml")
}

func TestLoadRejectsNonPositiveNumProcesses(t *testing.T) {
	path := writeFile(t, "procs.yaml", "NUM_PROCESSES: 0\n")

	_, err := Load([]string{path}, nil)
	require.Error(t, err)

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields(), 1)
	assert.Equal(t, "NUM_PROCESSES", verr.Fields()[0].Field)
}
