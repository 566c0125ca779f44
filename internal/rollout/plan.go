package rollout

import (
	"math"

	"github.com/imishinist/ddppo-cli/internal/models"
)

const bytesPerValue = 8

// Plan describes the rollout buffer and update schedule implied by a run
// configuration.
type Plan struct {
	NumSteps           int
	NumEnvs            int
	NumBuffers         int
	EnvsPerBuffer      int
	NumMiniBatch       int
	EnvsPerMiniBatch   int
	RolloutBatchSize   int
	MiniBatchSize      int
	HiddenStateWidth   int
	ObservationWidth   int
	BufferBytes        int64
	StoppingCriterion  models.StoppingCriterion
	EstimatedUpdates   int
	EstimatedEnvSteps  int64
	GradientStepsTotal int
}

// NewPlan sizes the buffer for cfg. The config is expected to be valid.
func NewPlan(cfg *models.TrainerConfig, actionDim int, observations map[string]int) Plan {
	spec := SpecFromConfig(cfg, actionDim, observations)

	obsWidth := 0
	for _, dim := range observations {
		obsWidth += dim
	}

	p := Plan{
		NumSteps:          spec.NumSteps,
		NumEnvs:           spec.NumEnvs,
		NumBuffers:        spec.numBuffers(),
		EnvsPerBuffer:     spec.NumEnvs / spec.numBuffers(),
		NumMiniBatch:      cfg.RL.PPO.NumMiniBatch,
		EnvsPerMiniBatch:  cfg.EnvsPerMiniBatch(),
		RolloutBatchSize:  cfg.RolloutBatchSize(),
		MiniBatchSize:     cfg.MiniBatchSize(),
		HiddenStateWidth:  spec.NumRecurrentLayers * spec.HiddenSize,
		ObservationWidth:  obsWidth,
		StoppingCriterion: cfg.StoppingCriterion(),
	}

	// Five scalar series plus actions, previous actions, hidden state and
	// observations per (step, env) slot.
	perSlot := 5 + 2*spec.ActionDim + p.HiddenStateWidth + obsWidth
	p.BufferBytes = int64(spec.NumSteps+1) * int64(spec.NumEnvs) * int64(perSlot) * bytesPerValue

	switch p.StoppingCriterion {
	case models.StopByUpdates:
		p.EstimatedUpdates = cfg.NumUpdates
	default:
		if p.RolloutBatchSize > 0 {
			p.EstimatedUpdates = int(math.Ceil(cfg.TotalNumSteps / float64(p.RolloutBatchSize)))
		}
	}
	p.EstimatedEnvSteps = int64(p.EstimatedUpdates) * int64(p.RolloutBatchSize)
	p.GradientStepsTotal = p.EstimatedUpdates * cfg.RL.PPO.PPOEpoch * p.NumMiniBatch

	return p
}
