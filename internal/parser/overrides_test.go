package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverrides(t *testing.T) {
	overrides, err := ParseOverrides([]string{
		"RL.PPO.lr=2.5e-4",
		"NUM_ENVIRONMENTS=4",
		"RL.PPO.use_gae=false",
		"RL.DDPPO.backbone=resnet50",
		"VIDEO_OPTION=[disk, tensorboard]",
		"VIDEO_DIR=",
		"LOG_FILE=logs/a=b.log",
	})
	require.NoError(t, err)

	assert.Equal(t, []Override{
		{Key: "RL.PPO.lr", Value: 2.5e-4},
		{Key: "NUM_ENVIRONMENTS", Value: 4},
		{Key: "RL.PPO.use_gae", Value: false},
		{Key: "RL.DDPPO.backbone", Value: "resnet50"},
		{Key: "VIDEO_OPTION", Value: []any{"disk", "tensorboard"}},
		{Key: "VIDEO_DIR", Value: ""},
		{Key: "LOG_FILE", Value: "logs/a=b.log"},
	}, overrides)
}

func TestParseOverridesInvalid(t *testing.T) {
	_, err := ParseOverrides([]string{"NUM_ENVIRONMENTS"})
	assert.ErrorContains(t, err, "invalid override format: NUM_ENVIRONMENTS (expected KEY=value)")

	_, err = ParseOverrides([]string{"=4"})
	assert.ErrorContains(t, err, "invalid override format")

	_, err = ParseOverrides([]string{"VIDEO_OPTION=[disk"})
	assert.ErrorContains(t, err, "invalid value for VIDEO_OPTION")
}

func TestTaskPath(t *testing.T) {
	path, ok := taskPath("TASK_CONFIG.DATASET.SPLIT")
	assert.True(t, ok)
	assert.Equal(t, []string{"DATASET", "SPLIT"}, path)

	_, ok = taskPath("TASK_CONFIG")
	assert.False(t, ok)

	_, ok = taskPath("RL.PPO.lr")
	assert.False(t, ok)
}
