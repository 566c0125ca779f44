package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeTree(t *testing.T) {
	dst := map[string]any{
		"SIMULATOR": map[string]any{
			"AGENT_0":    map[string]any{"HEIGHT": 0.88, "SENSORS": []any{"RGB_SENSOR"}},
			"TURN_ANGLE": 10,
		},
		"SEED": 100,
	}
	src := map[string]any{
		"SIMULATOR": map[string]any{
			"AGENT_0": map[string]any{"SENSORS": []any{"DEPTH_SENSOR"}},
		},
		"SEED": nil,
	}

	mergeTree(dst, src)

	assert.Equal(t, map[string]any{
		"SIMULATOR": map[string]any{
			"AGENT_0":    map[string]any{"HEIGHT": 0.88, "SENSORS": []any{"DEPTH_SENSOR"}},
			"TURN_ANGLE": 10,
		},
		"SEED": 100,
	}, dst)
}

func TestMergeTreeCopiesTables(t *testing.T) {
	src := map[string]any{"DATASET": map[string]any{"SPLIT": "train"}}
	dst := map[string]any{}

	mergeTree(dst, src)
	dst["DATASET"].(map[string]any)["SPLIT"] = "val"

	assert.Equal(t, "train", src["DATASET"].(map[string]any)["SPLIT"])
}

func TestFlattenTree(t *testing.T) {
	leaves := flattenTree(map[string]any{
		"RL": map[string]any{
			"PPO": map[string]any{"lr": 0.1, "eps": nil},
		},
		"SENSORS": []any{"RGB_SENSOR"},
		"EVAL":    map[string]any{},
	})

	assert.Equal(t, map[string]any{
		"RL.PPO.lr": 0.1,
		"SENSORS":   []any{"RGB_SENSOR"},
	}, leaves)
}

func TestSetPath(t *testing.T) {
	tree := map[string]any{"DATASET": "pointnav"}

	require.NoError(t, setPath(tree, []string{"SIMULATOR", "AGENT_0", "SENSORS"}, []any{"RGB_SENSOR"}))
	assert.Equal(t, []any{"RGB_SENSOR"}, tree["SIMULATOR"].(map[string]any)["AGENT_0"].(map[string]any)["SENSORS"])

	assert.ErrorContains(t, setPath(tree, []string{"DATASET", "SPLIT"}, "val"), "DATASET is not a table")
}

func TestPopKey(t *testing.T) {
	tree := map[string]any{"task_config": map[string]any{}, "RL": 1}

	value, ok := popKey(tree, "TASK_CONFIG")
	assert.True(t, ok)
	assert.Equal(t, map[string]any{}, value)
	assert.NotContains(t, tree, "task_config")

	_, ok = popKey(tree, "TASK_CONFIG")
	assert.False(t, ok)
}

func TestFormatLeaf(t *testing.T) {
	assert.Equal(t, "NCCL", formatLeaf("NCCL"))
	assert.Equal(t, "5e+07", formatLeaf(5e7))
	assert.Equal(t, "0.2", formatLeaf(0.2))
	assert.Equal(t, "128", formatLeaf(128))
	assert.Equal(t, "false", formatLeaf(false))
	assert.Equal(t, "disk,tensorboard", formatLeaf([]any{"disk", "tensorboard"}))
	assert.Equal(t, "", formatLeaf([]any{}))
}
