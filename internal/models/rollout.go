package models

import "fmt"

// Trace is a recorded rollout. Rows are steps, columns are environments.
// Masks[t][e] is 0 when the episode in env e ended at step t.
type Trace struct {
	Rewards    [][]float64 `json:"rewards" yaml:"rewards"`
	ValuePreds [][]float64 `json:"value_preds" yaml:"value_preds"`
	Masks      [][]float64 `json:"masks" yaml:"masks"`
	NextValue  []float64   `json:"next_value" yaml:"next_value"`
}

func (t *Trace) NumSteps() int {
	return len(t.Rewards)
}

func (t *Trace) NumEnvs() int {
	return len(t.NextValue)
}

// Validate checks that every row covers the same environments.
func (t *Trace) Validate() error {
	if t.NumSteps() == 0 {
		return fmt.Errorf("trace has no steps")
	}
	if t.NumEnvs() == 0 {
		return fmt.Errorf("trace next_value is empty")
	}
	if len(t.ValuePreds) != t.NumSteps() {
		return fmt.Errorf("trace value_preds has %d steps, rewards has %d", len(t.ValuePreds), t.NumSteps())
	}
	if len(t.Masks) != t.NumSteps() {
		return fmt.Errorf("trace masks has %d steps, rewards has %d", len(t.Masks), t.NumSteps())
	}

	envs := t.NumEnvs()
	for step := 0; step < t.NumSteps(); step++ {
		if len(t.Rewards[step]) != envs || len(t.ValuePreds[step]) != envs || len(t.Masks[step]) != envs {
			return fmt.Errorf("trace step %d does not cover %d environments", step, envs)
		}
	}
	return nil
}
