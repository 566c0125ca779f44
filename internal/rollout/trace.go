package rollout

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/imishinist/ddppo-cli/internal/models"
)

// Summary is the outcome of replaying a Trace through a Storage.
type Summary struct {
	NumSteps      int
	NumEnvs       int
	Returns       *mat.Dense
	Advantages    *mat.Dense
	MeanReturn    float64
	MeanAdvantage float64
	StdAdvantage  float64
	MeanReward    float64
}

// EvaluateTrace replays trace with the return settings of ppo.
func EvaluateTrace(trace *models.Trace, ppo models.PPOConfig, logger *zap.Logger) (*Summary, error) {
	if err := trace.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trace: %w", err)
	}

	storage, err := NewStorage(Spec{
		NumSteps:           trace.NumSteps(),
		NumEnvs:            trace.NumEnvs(),
		ActionDim:          1,
		HiddenSize:         1,
		NumRecurrentLayers: 1,
	}, WithLogger(logger))
	if err != nil {
		return nil, err
	}

	for t := 0; t < trace.NumSteps(); t++ {
		err := storage.Insert(StepData{
			Rewards:    trace.Rewards[t],
			ValuePreds: trace.ValuePreds[t],
			Masks:      trace.Masks[t],
		}, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to insert step %d: %w", t, err)
		}
		if err := storage.Advance(0); err != nil {
			return nil, err
		}
	}

	if err := storage.ComputeReturns(trace.NextValue, ppo.UseGAE, ppo.Gamma, ppo.Tau); err != nil {
		return nil, fmt.Errorf("failed to compute returns: %w", err)
	}

	returns, err := storage.Returns()
	if err != nil {
		return nil, err
	}
	advantages, err := storage.Advantages(ppo.UseNormalizedAdvantage)
	if err != nil {
		return nil, err
	}

	var rewards []float64
	for _, row := range trace.Rewards {
		rewards = append(rewards, row...)
	}

	meanAdv, stdAdv := stat.MeanStdDev(advantages.RawMatrix().Data, nil)
	if len(advantages.RawMatrix().Data) < 2 {
		stdAdv = 0
	}

	return &Summary{
		NumSteps:      trace.NumSteps(),
		NumEnvs:       trace.NumEnvs(),
		Returns:       returns,
		Advantages:    advantages,
		MeanReturn:    stat.Mean(returns.RawMatrix().Data, nil),
		MeanAdvantage: meanAdv,
		StdAdvantage:  stdAdv,
		MeanReward:    stat.Mean(rewards, nil),
	}, nil
}

// Metrics converts the summary into tracking metrics recorded at step.
func (s *Summary) Metrics(step int64, timestamp time.Time) []models.Metric {
	values := []struct {
		key   string
		value float64
	}{
		{"rollout/mean_return", s.MeanReturn},
		{"rollout/mean_advantage", s.MeanAdvantage},
		{"rollout/std_advantage", s.StdAdvantage},
		{"rollout/mean_reward", s.MeanReward},
	}

	metrics := make([]models.Metric, 0, len(values))
	for _, v := range values {
		metrics = append(metrics, models.Metric{
			Key:       v.key,
			Value:     v.value,
			Timestamp: timestamp,
			Step:      step,
		})
	}
	return metrics
}
