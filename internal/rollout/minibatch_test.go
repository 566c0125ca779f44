package rollout

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func filledStorage(t *testing.T, envs int, opts ...Option) *Storage {
	t.Helper()

	spec := Spec{
		NumSteps:           3,
		NumEnvs:            envs,
		ActionDim:          1,
		HiddenSize:         1,
		NumRecurrentLayers: 1,
		Observations:       map[string]int{"gps": 2},
	}
	s, err := NewStorage(spec, opts...)
	require.NoError(t, err)

	for step := 0; step < spec.NumSteps; step++ {
		data := StepData{
			Observations: map[string][][]float64{"gps": make([][]float64, envs)},
			HiddenStates: make([][]float64, envs),
			Actions:      make([][]float64, envs),
			Rewards:      make([]float64, envs),
			ValuePreds:   make([]float64, envs),
			Masks:        make([]float64, envs),
		}
		for env := 0; env < envs; env++ {
			id := float64(10*step + env)
			data.Observations["gps"][env] = []float64{id, -id}
			data.HiddenStates[env] = []float64{id}
			data.Actions[env] = []float64{id}
			data.Rewards[env] = id
			data.ValuePreds[env] = 0
			data.Masks[env] = 1
		}
		require.NoError(t, s.Insert(data, 0))
		require.NoError(t, s.Advance(0))
	}

	next := make([]float64, envs)
	require.NoError(t, s.ComputeReturns(next, false, 1, 1))
	return s
}

func TestMiniBatches(t *testing.T) {
	s := filledStorage(t, 4)
	adv, err := s.Advantages(false)
	require.NoError(t, err)

	batches, err := s.MiniBatches(adv, 2, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, batches, 2)

	var seen []int
	for _, batch := range batches {
		n := len(batch.EnvIndices)
		require.Equal(t, 2, n)
		seen = append(seen, batch.EnvIndices...)

		assert.Len(t, batch.Rewards, 3*n)
		r, c := batch.HiddenStates.Dims()
		assert.Equal(t, n, r)
		assert.Equal(t, 1, c)

		for i, env := range batch.EnvIndices {
			assert.Equal(t, s.hiddenStates.At(s.row(0, env), 0), batch.HiddenStates.At(i, 0))
			for step := 0; step < 3; step++ {
				row := step*n + i
				assert.Equal(t, s.rewards.At(step, env), batch.Rewards[row])
				assert.Equal(t, s.returns.At(step, env), batch.Returns[row])
				assert.Equal(t, adv.At(step, env), batch.Advantages[row])
				assert.Equal(t, s.actions.At(s.row(step, env), 0), batch.Actions.At(row, 0))
				assert.Equal(t, s.observations["gps"].At(s.row(step, env), 1), batch.Observations["gps"].At(row, 1))
			}
		}
	}

	sort.Ints(seen)
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
}

func TestMiniBatchesUneven(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s := filledStorage(t, 5, WithLogger(zap.New(core)))
	adv, err := s.Advantages(false)
	require.NoError(t, err)

	batches, err := s.MiniBatches(adv, 2, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].EnvIndices, 3)
	assert.Len(t, batches[1].EnvIndices, 2)
	assert.Equal(t, 1, logs.FilterMessageSnippet("not a multiple").Len())
}

func TestMiniBatchesErrors(t *testing.T) {
	s := filledStorage(t, 2)
	adv, err := s.Advantages(false)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))

	_, err = s.MiniBatches(adv, 0, rng)
	assert.ErrorContains(t, err, "number of mini batches must be positive")

	_, err = s.MiniBatches(adv, 4, rng)
	assert.ErrorContains(t, err, "must be at least the number of mini batches")

	other := filledStorage(t, 3)
	otherAdv, err := other.Advantages(false)
	require.NoError(t, err)
	_, err = s.MiniBatches(otherAdv, 1, rng)
	assert.ErrorContains(t, err, "advantages: expected 3x2, got 3x3")
}

func TestMiniBatchesAlwaysReturnsRequestedCount(t *testing.T) {
	s := filledStorage(t, 5)
	adv, err := s.Advantages(false)
	require.NoError(t, err)

	batches, err := s.MiniBatches(adv, 4, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	require.Len(t, batches, 4)

	var sizes []int
	for _, batch := range batches {
		sizes = append(sizes, len(batch.EnvIndices))
	}
	assert.Equal(t, []int{2, 1, 1, 1}, sizes)
}
