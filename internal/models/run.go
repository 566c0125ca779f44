package models

import "time"

type RunConfig struct {
	ExperimentID *string           `json:"experiment_id,omitempty"`
	RunName      *string           `json:"run_name,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	Description  *string           `json:"description,omitempty"`
}

type RunInfo struct {
	RunID        string            `json:"run_id"`
	ExperimentID string            `json:"experiment_id"`
	RunName      string            `json:"run_name"`
	Status       string            `json:"status"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      *time.Time        `json:"end_time,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	Description  string            `json:"description,omitempty"`
}

type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
	RunStatusKilled   RunStatus = "KILLED"
)

type Metric struct {
	Key       string    `json:"key"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Step      int64     `json:"step"`
}

// RunTags are the tags attached to a tracking run started for c.
func (c *TrainerConfig) RunTags() map[string]string {
	return map[string]string{
		"ddppo.trainer":         c.TrainerName,
		"ddppo.env":             c.EnvName,
		"ddppo.policy":          c.RL.Policy.Name,
		"ddppo.distrib_backend": c.RL.DDPPO.DistribBackend,
		"ddppo.backbone":        c.RL.DDPPO.Backbone,
		"ddppo.rnn_type":        c.RL.DDPPO.RNNType,
	}
}
