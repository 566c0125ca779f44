package mlflow

import (
	"context"
	"fmt"
	"time"

	"github.com/databricks/databricks-sdk-go/service/ml"
	"go.uber.org/zap"

	"github.com/imishinist/ddppo-cli/internal/models"
	"github.com/imishinist/ddppo-cli/internal/rollout"
)

// MLflow accepts at most this many metrics in one log-batch request.
const maxBatchMetrics = 1000

// LogMetrics records metrics on a run, splitting them into log-batch
// requests.
func (c *Client) LogMetrics(ctx context.Context, runID string, metrics []models.Metric) error {
	for start := 0; start < len(metrics); start += maxBatchMetrics {
		end := min(start+maxBatchMetrics, len(metrics))

		err := c.client.Experiments.LogBatch(ctx, ml.LogBatch{
			RunId:   runID,
			Metrics: toRunMetrics(metrics[start:end]),
		})
		if err != nil {
			return fmt.Errorf("failed to log metrics %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

// LogRolloutSummary records the return and advantage statistics of an
// evaluated trace at the given training step.
func (c *Client) LogRolloutSummary(ctx context.Context, runID string, summary *rollout.Summary, step int64, timestamp time.Time) error {
	metrics := summary.Metrics(step, timestamp)
	if err := c.LogMetrics(ctx, runID, metrics); err != nil {
		return err
	}

	c.logger.Info("Logged rollout summary",
		zap.String("run_id", runID),
		zap.Int64("step", step),
		zap.Float64("mean_return", summary.MeanReturn),
	)
	return nil
}

func toRunMetrics(metrics []models.Metric) []ml.Metric {
	out := make([]ml.Metric, len(metrics))
	for i, m := range metrics {
		timestamp := m.Timestamp
		if timestamp.IsZero() {
			timestamp = time.Now()
		}
		out[i] = ml.Metric{
			Key:       m.Key,
			Value:     m.Value,
			Timestamp: timestamp.UnixMilli(),
			Step:      m.Step,
		}
	}
	return out
}
