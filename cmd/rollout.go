package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/imishinist/ddppo-cli/internal/mlflow"
	"github.com/imishinist/ddppo-cli/internal/models"
	"github.com/imishinist/ddppo-cli/internal/parser"
	"github.com/imishinist/ddppo-cli/internal/rollout"
)

var rolloutCmd = &cobra.Command{
	Use:   "rollout",
	Short: "Size and evaluate rollout buffers",
	Long:  "Inspect the rollout buffer and update schedule implied by a run configuration",
}

var rolloutPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the rollout buffer plan",
	Long: `Print the rollout buffer dimensions, mini batch split and the
estimated number of updates for a run configuration.`,
	Example: `  ddppo-cli rollout plan -c configs/ddppo_pointnav.yaml --action-dim 4 \
    --observation rgb=49152 --observation depth=16384`,
	RunE: rolloutPlan,
}

var rolloutReturnsCmd = &cobra.Command{
	Use:   "returns",
	Short: "Compute returns and advantages for a recorded trace",
	Long: `Replay a recorded trace of rewards, value predictions and masks
through a rollout buffer and compute returns with the configured
gamma, tau and GAE settings.`,
	RunE: rolloutReturns,
}

func init() {
	rootCmd.AddCommand(rolloutCmd)
	rolloutCmd.AddCommand(rolloutPlanCmd)
	rolloutCmd.AddCommand(rolloutReturnsCmd)

	// Plan command flags
	rolloutPlanCmd.Flags().Int("action-dim", 1, "Action dimension")
	rolloutPlanCmd.Flags().StringArray("observation", []string{}, "Observation sensor in name=dim format")

	// Returns command flags
	rolloutReturnsCmd.Flags().String("trace", "", "Trace file (JSON/YAML, required)")
	rolloutReturnsCmd.Flags().String("run-id", "", "Log summary metrics to this run")
	rolloutReturnsCmd.Flags().Int64("step", 0, "Metric step")
	rolloutReturnsCmd.MarkFlagRequired("trace")
}

func rolloutPlan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	trainerCfg, err := loadTrainerConfig(cfg, logger)
	if err != nil {
		return err
	}

	actionDim, _ := cmd.Flags().GetInt("action-dim")
	observationArgs, _ := cmd.Flags().GetStringArray("observation")

	if actionDim <= 0 {
		return fmt.Errorf("--action-dim must be positive")
	}

	observations, err := parseObservations(observationArgs)
	if err != nil {
		return err
	}

	plan := rollout.NewPlan(trainerCfg, actionDim, observations)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rollout buffer\n")
	fmt.Fprintf(out, "  steps x environments: %d x %d\n", plan.NumSteps, plan.NumEnvs)
	fmt.Fprintf(out, "  buffers: %d (%d environments each)\n", plan.NumBuffers, plan.EnvsPerBuffer)
	fmt.Fprintf(out, "  hidden state width: %d\n", plan.HiddenStateWidth)
	fmt.Fprintf(out, "  observation width: %d\n", plan.ObservationWidth)
	fmt.Fprintf(out, "  memory: %s\n", formatBytes(plan.BufferBytes))
	fmt.Fprintf(out, "Mini batches\n")
	fmt.Fprintf(out, "  count: %d (%d environments each)\n", plan.NumMiniBatch, plan.EnvsPerMiniBatch)
	fmt.Fprintf(out, "  rollout batch size: %d\n", plan.RolloutBatchSize)
	fmt.Fprintf(out, "  mini batch size: %d\n", plan.MiniBatchSize)
	fmt.Fprintf(out, "Schedule\n")
	fmt.Fprintf(out, "  stopping criterion: %s\n", plan.StoppingCriterion)
	fmt.Fprintf(out, "  updates: %d\n", plan.EstimatedUpdates)
	fmt.Fprintf(out, "  environment steps: %d\n", plan.EstimatedEnvSteps)
	fmt.Fprintf(out, "  gradient steps: %d\n", plan.GradientStepsTotal)

	return nil
}

func rolloutReturns(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	trainerCfg, err := loadTrainerConfig(cfg, logger)
	if err != nil {
		return err
	}

	tracePath, _ := cmd.Flags().GetString("trace")
	runID, _ := cmd.Flags().GetString("run-id")
	step, _ := cmd.Flags().GetInt64("step")

	trace, err := readTrace(tracePath)
	if err != nil {
		return err
	}

	summary, err := rollout.EvaluateTrace(trace, trainerCfg.RL.PPO, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Trace: %d steps x %d environments\n", summary.NumSteps, summary.NumEnvs)
	fmt.Fprintf(out, "  use_gae: %t gamma: %g tau: %g\n", trainerCfg.RL.PPO.UseGAE, trainerCfg.RL.PPO.Gamma, trainerCfg.RL.PPO.Tau)
	fmt.Fprintf(out, "  mean reward: %.6f\n", summary.MeanReward)
	fmt.Fprintf(out, "  mean return: %.6f\n", summary.MeanReturn)
	fmt.Fprintf(out, "  advantage mean/std: %.6f / %.6f\n", summary.MeanAdvantage, summary.StdAdvantage)
	for t := 0; t < summary.NumSteps; t++ {
		row := make([]string, summary.NumEnvs)
		for i := range row {
			row[i] = strconv.FormatFloat(summary.Returns.At(t, i), 'f', 6, 64)
		}
		fmt.Fprintf(out, "  returns[%d]: %s\n", t, strings.Join(row, " "))
	}

	if runID == "" {
		return nil
	}

	client, err := mlflow.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create MLflow client: %w", err)
	}

	if err := client.LogRolloutSummary(context.Background(), runID, summary, step, time.Now()); err != nil {
		return fmt.Errorf("failed to log metrics: %w", err)
	}

	fmt.Fprintf(out, "Successfully logged rollout summary to run %s\n", runID)
	return nil
}

// readTrace parses a trace file, picking the format from its extension.
func readTrace(path string) (*models.Trace, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	var parse func(io.Reader) (*models.Trace, error)
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		parse = parser.ParseJSONTrace
	case ".yaml", ".yml":
		parse = parser.ParseYAMLTrace
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .json, .yaml, .yml)", ext)
	}

	trace, err := parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trace: %w", err)
	}
	return trace, nil
}

// parseObservations parses sensor strings in name=dim format
func parseObservations(args []string) (map[string]int, error) {
	observations := make(map[string]int, len(args))
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid observation format: %s (expected name=dim)", arg)
		}
		dim, err := strconv.Atoi(parts[1])
		if err != nil || dim <= 0 {
			return nil, fmt.Errorf("invalid observation dimension: %s", arg)
		}
		observations[parts[0]] = dim
	}
	return observations, nil
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
