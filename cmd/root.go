package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/imishinist/ddppo-cli/internal/config"
	"github.com/imishinist/ddppo-cli/internal/logging"
	"github.com/imishinist/ddppo-cli/internal/models"
	"github.com/imishinist/ddppo-cli/internal/parser"
)

var rootCmd = &cobra.Command{
	Use:   "ddppo-cli",
	Short: "DD-PPO run configuration tool",
	Long: `A command line tool for DD-PPO training run configurations.
Loads, validates and composes run configurations, sizes their rollout
buffers, and publishes them to an MLflow tracking server.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringArrayP("config", "c", []string{}, "Run configuration file (YAML/JSON/TOML, can be specified multiple times)")
	flags.StringArray("opt", []string{}, "Override in KEY=value format, e.g. RL.PPO.lr=1e-4 (can be specified multiple times)")
	flags.Bool("no-task", false, "Do not load the task configuration named by BASE_TASK_CONFIG_PATH")
	flags.String("log-level", "", "Log level (debug/info/warn/error)")
	flags.Bool("log-dev", false, "Human readable development logs")
	flags.String("tracking-uri", "", "MLflow tracking URI (overrides MLFLOW_TRACKING_URI)")
	flags.String("experiment-id", "", "Experiment ID (overrides MLFLOW_EXPERIMENT_ID)")

	viper.BindPFlag("config", flags.Lookup("config"))
	viper.BindPFlag("opt", flags.Lookup("opt"))
	viper.BindPFlag("no_task", flags.Lookup("no-task"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_dev", flags.Lookup("log-dev"))
	viper.BindPFlag("tracking_uri", flags.Lookup("tracking-uri"))
	viper.BindPFlag("experiment_id", flags.Lookup("experiment-id"))
}

func initConfig() {
	// Environment variables
	viper.SetEnvPrefix("MLFLOW")
	viper.AutomaticEnv()

	viper.BindEnv("databricks_host", "DATABRICKS_HOST")
	viper.BindEnv("databricks_token", "DATABRICKS_TOKEN")
	viper.BindEnv("log_level", "DDPPO_LOG_LEVEL")
	viper.BindEnv("log_dev", "DDPPO_LOG_DEV")
	viper.BindEnv("config", "DDPPO_CONFIG")

	// Set defaults
	viper.SetDefault("tracking_uri", "http://localhost:5000")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("format", "yaml")
}

// setup reads the CLI settings and builds the logger every command uses.
func setup() (*config.Config, *zap.Logger, error) {
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid settings: %w", err)
	}

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// loadTrainerConfig loads the run configuration named by the global flags.
func loadTrainerConfig(cfg *config.Config, logger *zap.Logger) (*models.TrainerConfig, error) {
	if len(cfg.ConfigPaths) == 0 {
		return nil, fmt.Errorf("at least one --config file must be specified (or set DDPPO_CONFIG)")
	}

	overrides, err := parser.ParseOverrides(cfg.Overrides)
	if err != nil {
		return nil, err
	}

	trainerCfg, err := parser.Load(cfg.ConfigPaths, overrides,
		parser.WithLogger(logger),
		parser.WithTaskConfig(cfg.LoadTask),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Debug("Loaded configuration",
		zap.Strings("paths", cfg.ConfigPaths),
		zap.Int("overrides", len(overrides)),
		zap.String("trainer", trainerCfg.TrainerName),
	)
	return trainerCfg, nil
}
