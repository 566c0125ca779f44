package rollout

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const advantageEps = 1e-5

// ComputeReturns fills the returns of every filled step, bootstrapping
// from nextValue. With useGAE the returns are GAE(gamma, tau) advantages
// plus value predictions; otherwise plain discounted rewards.
func (s *Storage) ComputeReturns(nextValue []float64, useGAE bool, gamma, tau float64) error {
	step, err := s.Step()
	if err != nil {
		return err
	}
	if len(nextValue) != s.spec.NumEnvs {
		return fmt.Errorf("next value: expected %d environments, got %d", s.spec.NumEnvs, len(nextValue))
	}

	envs := s.spec.NumEnvs
	if useGAE {
		s.valuePreds.SetRow(step, nextValue)
		gae := make([]float64, envs)
		for t := step - 1; t >= 0; t-- {
			for e := 0; e < envs; e++ {
				mask := s.masks.At(t+1, e)
				delta := s.rewards.At(t, e) + gamma*s.valuePreds.At(t+1, e)*mask - s.valuePreds.At(t, e)
				gae[e] = delta + gamma*tau*gae[e]*mask
				s.returns.Set(t, e, gae[e]+s.valuePreds.At(t, e))
			}
		}
		return nil
	}

	s.returns.SetRow(step, nextValue)
	for t := step - 1; t >= 0; t-- {
		for e := 0; e < envs; e++ {
			s.returns.Set(t, e, gamma*s.returns.At(t+1, e)*s.masks.At(t+1, e)+s.rewards.At(t, e))
		}
	}
	return nil
}

// Advantages returns returns minus value predictions over the filled
// steps, optionally normalized to zero mean and unit deviation.
func (s *Storage) Advantages(normalize bool) (*mat.Dense, error) {
	step, err := s.Step()
	if err != nil {
		return nil, err
	}
	if step == 0 {
		return nil, fmt.Errorf("rollout buffer is empty")
	}

	envs := s.spec.NumEnvs
	adv := mat.NewDense(step, envs, nil)
	adv.Sub(s.returns.Slice(0, step, 0, envs), s.valuePreds.Slice(0, step, 0, envs))

	if normalize {
		mean, std := stat.MeanStdDev(adv.RawMatrix().Data, nil)
		if step*envs < 2 {
			std = 0
		}
		adv.Apply(func(_, _ int, v float64) float64 {
			return (v - mean) / (std + advantageEps)
		}, adv)
	}
	return adv, nil
}
