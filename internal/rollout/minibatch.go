package rollout

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// MiniBatch is a PPO minibatch over a subset of environments. Per-step
// rows are ordered step-major: row t*len(EnvIndices)+i is step t of
// EnvIndices[i]. HiddenStates only holds step 0, one row per env.
type MiniBatch struct {
	EnvIndices     []int
	Observations   map[string]*mat.Dense
	HiddenStates   *mat.Dense
	Actions        *mat.Dense
	PrevActions    *mat.Dense
	ActionLogProbs []float64
	ValuePreds     []float64
	Returns        []float64
	Rewards        []float64
	Masks          []float64
	Advantages     []float64
}

// MiniBatches shuffles environments with rng and splits them into
// exactly numMiniBatch groups of near-equal size: the first
// envs%numMiniBatch groups get one extra environment. This differs from
// splitting a permutation into ceil(envs/numMiniBatch)-sized chunks, which
// can yield fewer groups (5 envs over 4 batches gives 2,2,1 instead of
// 2,1,1,1). Recurrent policies need whole trajectories, so batches split
// environments rather than steps.
func (s *Storage) MiniBatches(advantages *mat.Dense, numMiniBatch int, rng *rand.Rand) ([]MiniBatch, error) {
	step, err := s.Step()
	if err != nil {
		return nil, err
	}
	if step == 0 {
		return nil, fmt.Errorf("rollout buffer is empty")
	}

	envs := s.spec.NumEnvs
	if numMiniBatch <= 0 {
		return nil, fmt.Errorf("number of mini batches must be positive (got %d)", numMiniBatch)
	}
	if envs < numMiniBatch {
		return nil, fmt.Errorf("number of environments (%d) must be at least the number of mini batches (%d)", envs, numMiniBatch)
	}
	if r, c := advantages.Dims(); r != step || c != envs {
		return nil, fmt.Errorf("advantages: expected %dx%d, got %dx%d", step, envs, r, c)
	}
	if envs%numMiniBatch != 0 {
		s.logger.Warn("Number of environments is not a multiple of the number of mini batches",
			zap.Int("num_envs", envs),
			zap.Int("num_mini_batch", numMiniBatch),
		)
	}

	perm := rng.Perm(envs)
	batches := make([]MiniBatch, 0, numMiniBatch)
	start := 0
	for b := 0; b < numMiniBatch; b++ {
		size := envs / numMiniBatch
		if b < envs%numMiniBatch {
			size++
		}
		batches = append(batches, s.gather(perm[start:start+size], step, advantages))
		start += size
	}
	return batches, nil
}

func (s *Storage) gather(inds []int, step int, advantages *mat.Dense) MiniBatch {
	n := len(inds)
	rows := step * n

	batch := MiniBatch{
		EnvIndices:     append([]int(nil), inds...),
		Observations:   make(map[string]*mat.Dense, len(s.observations)),
		HiddenStates:   mat.NewDense(n, s.hiddenStates.RawMatrix().Cols, nil),
		Actions:        mat.NewDense(rows, s.spec.ActionDim, nil),
		PrevActions:    mat.NewDense(rows, s.spec.ActionDim, nil),
		ActionLogProbs: make([]float64, rows),
		ValuePreds:     make([]float64, rows),
		Returns:        make([]float64, rows),
		Rewards:        make([]float64, rows),
		Masks:          make([]float64, rows),
		Advantages:     make([]float64, rows),
	}
	for sensor, buf := range s.observations {
		batch.Observations[sensor] = mat.NewDense(rows, buf.RawMatrix().Cols, nil)
	}

	for i, env := range inds {
		batch.HiddenStates.SetRow(i, mat.Row(nil, s.row(0, env), s.hiddenStates))
	}

	for t := 0; t < step; t++ {
		for i, env := range inds {
			r := t*n + i
			src := s.row(t, env)
			for sensor, buf := range s.observations {
				batch.Observations[sensor].SetRow(r, mat.Row(nil, src, buf))
			}
			batch.Actions.SetRow(r, mat.Row(nil, src, s.actions))
			batch.PrevActions.SetRow(r, mat.Row(nil, src, s.prevActions))
			batch.ActionLogProbs[r] = s.actionLogProbs.At(t, env)
			batch.ValuePreds[r] = s.valuePreds.At(t, env)
			batch.Returns[r] = s.returns.At(t, env)
			batch.Rewards[r] = s.rewards.At(t, env)
			batch.Masks[r] = s.masks.At(t, env)
			batch.Advantages[r] = advantages.At(t, env)
		}
	}
	return batch
}
