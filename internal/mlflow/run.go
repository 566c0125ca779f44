package mlflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/databricks/databricks-sdk-go/service/ml"
	"go.uber.org/zap"

	"github.com/imishinist/ddppo-cli/internal/models"
)

const (
	tagRunName     = "mlflow.runName"
	tagDescription = "mlflow.note.content"
)

// DefaultRunName names a run after its trainer and environment.
func DefaultRunName(cfg *models.TrainerConfig, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", cfg.TrainerName, cfg.EnvName, now.Format("2006-01-02-15-04-05"))
}

func (c *Client) CreateRun(ctx context.Context, config *models.RunConfig) (*models.RunInfo, error) {
	if config.ExperimentID == nil {
		return nil, fmt.Errorf("experiment ID must be provided")
	}
	experimentID := *config.ExperimentID

	startTime := time.Now()
	runName := "run-" + startTime.Format("2006-01-02-15-04-05")
	if config.RunName != nil {
		runName = *config.RunName
	}

	tags := buildRunTags(config.Tags, runName, config.Description)

	resp, err := c.client.Experiments.CreateRun(ctx, ml.CreateRun{
		ExperimentId: experimentID,
		RunName:      runName,
		StartTime:    startTime.UnixMilli(),
		Tags:         tags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	c.logger.Info("Created run",
		zap.String("run_id", resp.Run.Info.RunId),
		zap.String("experiment_id", experimentID),
		zap.String("run_name", runName),
	)

	info := &models.RunInfo{
		RunID:        resp.Run.Info.RunId,
		ExperimentID: experimentID,
		RunName:      runName,
		Status:       string(models.RunStatusRunning),
		StartTime:    startTime,
		Tags:         config.Tags,
	}
	if config.Description != nil {
		info.Description = *config.Description
	}
	return info, nil
}

// buildRunTags orders user tags by key and appends the MLflow system tags.
func buildRunTags(userTags map[string]string, runName string, description *string) []ml.RunTag {
	keys := make([]string, 0, len(userTags))
	for key := range userTags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	tags := make([]ml.RunTag, 0, len(keys)+2)
	for _, key := range keys {
		tags = append(tags, ml.RunTag{Key: key, Value: userTags[key]})
	}

	tags = append(tags, ml.RunTag{Key: tagRunName, Value: runName})
	if description != nil {
		tags = append(tags, ml.RunTag{Key: tagDescription, Value: *description})
	}
	return tags
}

func (c *Client) UpdateRun(ctx context.Context, runID string, status models.RunStatus) error {
	var mlStatus ml.UpdateRunStatus
	switch status {
	case models.RunStatusRunning:
		mlStatus = ml.UpdateRunStatusRunning
	case models.RunStatusFinished:
		mlStatus = ml.UpdateRunStatusFinished
	case models.RunStatusFailed:
		mlStatus = ml.UpdateRunStatusFailed
	case models.RunStatusKilled:
		mlStatus = ml.UpdateRunStatusKilled
	default:
		mlStatus = ml.UpdateRunStatusFinished
	}

	updateRun := ml.UpdateRun{
		RunId:  runID,
		Status: mlStatus,
	}

	// Set end time for terminal statuses
	if status != models.RunStatusRunning {
		updateRun.EndTime = time.Now().UnixMilli()
	}

	_, err := c.client.Experiments.UpdateRun(ctx, updateRun)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	return nil
}
