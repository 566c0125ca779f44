package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/imishinist/ddppo-cli/internal/config"
	"github.com/imishinist/ddppo-cli/internal/mlflow"
	"github.com/imishinist/ddppo-cli/internal/models"
)

// Valid run statuses
var validRunStatuses = map[string]models.RunStatus{
	"FINISHED": models.RunStatusFinished,
	"FAILED":   models.RunStatusFailed,
	"KILLED":   models.RunStatusKilled,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Manage MLflow runs",
	Long:  "Create and finish MLflow runs for DD-PPO training",
}

var runStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new MLflow run",
	Long: `Create and start a new MLflow run. When --config is given the run is
tagged with the trainer, environment, policy and DD-PPO settings and
named after the trainer and environment.`,
	RunE: runStart,
}

var runEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End an MLflow run",
	Long:  "End an existing MLflow run",
	RunE:  runEnd,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.AddCommand(runStartCmd)
	runCmd.AddCommand(runEndCmd)

	// Start command flags
	runStartCmd.Flags().String("run-name", "", "Run name (default: trainer, environment and timestamp)")
	runStartCmd.Flags().StringArray("tag", []string{}, "Tags in key=value format")
	runStartCmd.Flags().String("description", "", "Run description")

	// End command flags
	runEndCmd.Flags().String("run-id", "", "Run ID to end (required)")
	runEndCmd.Flags().String("status", "FINISHED", "End status (FINISHED/FAILED/KILLED)")
	runEndCmd.MarkFlagRequired("run-id")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	var trainerCfg *models.TrainerConfig
	if len(cfg.ConfigPaths) > 0 {
		trainerCfg, err = loadTrainerConfig(cfg, logger)
		if err != nil {
			return err
		}
	}

	client, err := mlflow.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create MLflow client: %w", err)
	}

	runConfig, err := buildRunConfig(cmd, cfg, trainerCfg, time.Now())
	if err != nil {
		return err
	}

	// Create run
	ctx := context.Background()
	runInfo, err := client.CreateRun(ctx, runConfig)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	// Output only run ID for shell scripting
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", runInfo.RunID)

	return nil
}

// buildRunConfig constructs RunConfig from command flags, settings and the
// optional run configuration.
func buildRunConfig(cmd *cobra.Command, cfg *config.Config, trainerCfg *models.TrainerConfig, now time.Time) (*models.RunConfig, error) {
	// Parse flags
	runName, _ := cmd.Flags().GetString("run-name")
	tags, _ := cmd.Flags().GetStringArray("tag")
	description, _ := cmd.Flags().GetString("description")

	experimentID := cfg.ExperimentID
	if experimentID == "" {
		return nil, fmt.Errorf("experiment ID must be specified via --experiment-id flag or MLFLOW_EXPERIMENT_ID environment variable")
	}

	// Parse tags
	userTags, err := parseTags(tags)
	if err != nil {
		return nil, err
	}

	tagMap := make(map[string]string)
	if trainerCfg != nil {
		for k, v := range trainerCfg.RunTags() {
			tagMap[k] = v
		}
		if runName == "" {
			runName = mlflow.DefaultRunName(trainerCfg, now)
		}
	}
	// User tags win over derived ones
	for k, v := range userTags {
		tagMap[k] = v
	}

	runConfig := &models.RunConfig{
		ExperimentID: &experimentID,
		Tags:         tagMap,
	}

	if runName != "" {
		runConfig.RunName = &runName
	}

	if description != "" {
		// Process escape sequences in description
		processedDescription := processEscapeSequences(description)
		runConfig.Description = &processedDescription
	}

	return runConfig, nil
}

// parseTags parses tag strings in key=value format
func parseTags(tags []string) (map[string]string, error) {
	tagMap := make(map[string]string)
	for _, tag := range tags {
		parts := strings.SplitN(tag, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid tag format: %s (expected key=value)", tag)
		}
		tagMap[parts[0]] = parts[1]
	}
	return tagMap, nil
}

func runEnd(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Parse flags
	runID, _ := cmd.Flags().GetString("run-id")
	status, _ := cmd.Flags().GetString("status")

	// Validate status
	runStatus, valid := validRunStatuses[status]
	if !valid {
		return fmt.Errorf("invalid status: %s (valid: FINISHED, FAILED, KILLED)", status)
	}

	client, err := mlflow.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create MLflow client: %w", err)
	}

	// Update run
	ctx := context.Background()
	if err := client.UpdateRun(ctx, runID, runStatus); err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}

	logger.Debug("Run ended", zap.String("run_id", runID), zap.String("status", status))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run ended successfully\n")
	fmt.Fprintf(out, "Run ID: %s\n", runID)
	fmt.Fprintf(out, "Status: %s\n", status)

	return nil
}

// processEscapeSequences processes common escape sequences in strings
func processEscapeSequences(s string) string {
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\t", "\t")
	s = strings.ReplaceAll(s, "\\r", "\r")
	s = strings.ReplaceAll(s, "\\\\", "\\")
	return s
}
