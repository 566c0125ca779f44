package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imishinist/ddppo-cli/internal/models"
	"github.com/imishinist/ddppo-cli/internal/parser"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect run configurations",
	Long:  "Load, validate and print DD-PPO run configurations",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a run configuration",
	Long: `Load the run configuration files, apply overrides and defaults,
and report every invalid setting by its dotted key.`,
	Example: `  # Validate a single file
  ddppo-cli config validate -c configs/ddppo_pointnav.yaml

  # Validate with overrides
  ddppo-cli config validate -c configs/ddppo_pointnav.yaml --opt RL.DDPPO.sync_frac=0.8`,
	RunE: configValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved run configuration",
	Long:  "Print the run configuration after defaults, files, overrides and task composition are applied",
	RunE:  configShow,
}

var configParamsCmd = &cobra.Command{
	Use:   "params",
	Short: "Print the run configuration as dotted key=value pairs",
	RunE:  configParams,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configParamsCmd)

	configShowCmd.Flags().StringP("format", "f", "yaml", "Output format (yaml/json/toml)")
	viper.BindPFlag("format", configShowCmd.Flags().Lookup("format"))
}

func configValidate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	trainerCfg, err := loadTrainerConfig(cfg, logger)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			for _, field := range verr.Fields() {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", field.Field, field.Message)
			}
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration is valid\n")
	fmt.Fprintf(out, "  trainer: %s (%s)\n", trainerCfg.TrainerName, trainerCfg.RL.Policy.Name)
	fmt.Fprintf(out, "  environments: %d\n", trainerCfg.NumEnvironments)
	fmt.Fprintf(out, "  rollout batch: %d steps\n", trainerCfg.RolloutBatchSize())
	fmt.Fprintf(out, "  stopping criterion: %s\n", trainerCfg.StoppingCriterion())
	return nil
}

func configShow(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	trainerCfg, err := loadTrainerConfig(cfg, logger)
	if err != nil {
		return err
	}

	format, err := parser.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return err
	}

	data, err := parser.Marshal(trainerCfg, format)
	if err != nil {
		return err
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func configParams(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	trainerCfg, err := loadTrainerConfig(cfg, logger)
	if err != nil {
		return err
	}

	params, err := parser.Flatten(trainerCfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, key := range parser.SortedKeys(params) {
		fmt.Fprintf(out, "%s=%s\n", key, params[key])
	}
	return nil
}
