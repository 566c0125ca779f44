package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imishinist/ddppo-cli/internal/mlflow"
	"github.com/imishinist/ddppo-cli/internal/parser"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Log run configurations to MLflow",
	Long:  "Log resolved run configurations as parameters and artifacts of MLflow runs",
}

var logParamsCmd = &cobra.Command{
	Use:   "params",
	Short: "Log the run configuration as parameters",
	Long:  "Flatten the resolved run configuration into dotted keys and log them as run parameters",
	RunE:  logParams,
}

var logConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Upload the run configuration as an artifact",
	Long:  "Serialize the resolved run configuration and upload it to the run's artifact store",
	RunE:  logConfig,
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.AddCommand(logParamsCmd)
	logCmd.AddCommand(logConfigCmd)

	// Params command flags
	logParamsCmd.Flags().String("run-id", "", "Run ID to log parameters to (required)")
	logParamsCmd.MarkFlagRequired("run-id")

	// Config command flags
	logConfigCmd.Flags().String("run-id", "", "Run ID to upload the configuration to (required)")
	logConfigCmd.Flags().String("artifact-path", "", "Artifact path (default: config.<format>)")
	logConfigCmd.Flags().String("format", "yaml", "Artifact format (yaml/json/toml)")
	logConfigCmd.MarkFlagRequired("run-id")
}

func logParams(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	trainerCfg, err := loadTrainerConfig(cfg, logger)
	if err != nil {
		return err
	}

	runID, _ := cmd.Flags().GetString("run-id")

	params, err := parser.Flatten(trainerCfg)
	if err != nil {
		return err
	}

	client, err := mlflow.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create MLflow client: %w", err)
	}

	ctx := context.Background()
	if err := client.LogParamsFromMap(ctx, runID, params); err != nil {
		return fmt.Errorf("failed to log parameters: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Successfully logged %d parameters\n", len(params))
	return nil
}

func logConfig(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	trainerCfg, err := loadTrainerConfig(cfg, logger)
	if err != nil {
		return err
	}

	runID, _ := cmd.Flags().GetString("run-id")
	artifactPath, _ := cmd.Flags().GetString("artifact-path")
	formatName, _ := cmd.Flags().GetString("format")

	format, err := parser.ParseFormat(formatName)
	if err != nil {
		return err
	}
	if artifactPath == "" {
		artifactPath = "config." + string(format)
	}

	data, err := parser.Marshal(trainerCfg, format)
	if err != nil {
		return err
	}

	client, err := mlflow.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create MLflow client: %w", err)
	}

	ctx := context.Background()
	if err := client.UploadArtifact(ctx, runID, data, artifactPath); err != nil {
		return fmt.Errorf("failed to upload artifact: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Successfully uploaded %s (%d bytes)\n", artifactPath, len(data))
	return nil
}
