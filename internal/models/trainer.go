package models

// StoppingCriterion names the setting that governs run length.
type StoppingCriterion string

const (
	StopByUpdates    StoppingCriterion = "NUM_UPDATES"
	StopByTotalSteps StoppingCriterion = "TOTAL_NUM_STEPS"
)

// TrainerConfig is the run configuration read by the trainer. It is built
// once by the parser and never mutated afterwards.
type TrainerConfig struct {
	Verbose                   bool     `mapstructure:"VERBOSE" yaml:"VERBOSE" json:"VERBOSE" toml:"VERBOSE"`
	BaseTaskConfigPath        string   `mapstructure:"BASE_TASK_CONFIG_PATH" yaml:"BASE_TASK_CONFIG_PATH" json:"BASE_TASK_CONFIG_PATH" toml:"BASE_TASK_CONFIG_PATH" validate:"required"`
	TrainerName               string   `mapstructure:"TRAINER_NAME" yaml:"TRAINER_NAME" json:"TRAINER_NAME" toml:"TRAINER_NAME" validate:"oneof=ppo ddppo ver"`
	EnvName                   string   `mapstructure:"ENV_NAME" yaml:"ENV_NAME" json:"ENV_NAME" toml:"ENV_NAME" validate:"required"`
	SimulatorGPUID            int      `mapstructure:"SIMULATOR_GPU_ID" yaml:"SIMULATOR_GPU_ID" json:"SIMULATOR_GPU_ID" toml:"SIMULATOR_GPU_ID" validate:"gte=0"`
	TorchGPUID                int      `mapstructure:"TORCH_GPU_ID" yaml:"TORCH_GPU_ID" json:"TORCH_GPU_ID" toml:"TORCH_GPU_ID" validate:"gte=0"`
	VideoOption               []string `mapstructure:"VIDEO_OPTION" yaml:"VIDEO_OPTION" json:"VIDEO_OPTION" toml:"VIDEO_OPTION" validate:"dive,oneof=disk tensorboard"`
	VideoFPS                  int      `mapstructure:"VIDEO_FPS" yaml:"VIDEO_FPS" json:"VIDEO_FPS" toml:"VIDEO_FPS" validate:"gt=0"`
	VideoRenderTopDown        bool     `mapstructure:"VIDEO_RENDER_TOP_DOWN" yaml:"VIDEO_RENDER_TOP_DOWN" json:"VIDEO_RENDER_TOP_DOWN" toml:"VIDEO_RENDER_TOP_DOWN"`
	VideoRenderAllInfo        bool     `mapstructure:"VIDEO_RENDER_ALL_INFO" yaml:"VIDEO_RENDER_ALL_INFO" json:"VIDEO_RENDER_ALL_INFO" toml:"VIDEO_RENDER_ALL_INFO"`
	VideoRenderViews          []string `mapstructure:"VIDEO_RENDER_VIEWS" yaml:"VIDEO_RENDER_VIEWS" json:"VIDEO_RENDER_VIEWS" toml:"VIDEO_RENDER_VIEWS" validate:"dive,required"`
	VideoDir                  string   `mapstructure:"VIDEO_DIR" yaml:"VIDEO_DIR" json:"VIDEO_DIR" toml:"VIDEO_DIR"`
	TensorboardDir            string   `mapstructure:"TENSORBOARD_DIR" yaml:"TENSORBOARD_DIR" json:"TENSORBOARD_DIR" toml:"TENSORBOARD_DIR"`
	WriterType                string   `mapstructure:"WRITER_TYPE" yaml:"WRITER_TYPE" json:"WRITER_TYPE" toml:"WRITER_TYPE" validate:"oneof=tb wb"`
	TestEpisodeCount          int      `mapstructure:"TEST_EPISODE_COUNT" yaml:"TEST_EPISODE_COUNT" json:"TEST_EPISODE_COUNT" toml:"TEST_EPISODE_COUNT" validate:"gte=-1"`
	EvalCkptPathDir           string   `mapstructure:"EVAL_CKPT_PATH_DIR" yaml:"EVAL_CKPT_PATH_DIR" json:"EVAL_CKPT_PATH_DIR" toml:"EVAL_CKPT_PATH_DIR" validate:"required"`
	NumEnvironments           int      `mapstructure:"NUM_ENVIRONMENTS" yaml:"NUM_ENVIRONMENTS" json:"NUM_ENVIRONMENTS" toml:"NUM_ENVIRONMENTS" validate:"gt=0"`
	NumProcesses              int      `mapstructure:"NUM_PROCESSES" yaml:"NUM_PROCESSES" json:"NUM_PROCESSES" toml:"NUM_PROCESSES"`
	Sensors                   []string `mapstructure:"SENSORS" yaml:"SENSORS" json:"SENSORS" toml:"SENSORS" validate:"dive,required"`
	CheckpointFolder          string   `mapstructure:"CHECKPOINT_FOLDER" yaml:"CHECKPOINT_FOLDER" json:"CHECKPOINT_FOLDER" toml:"CHECKPOINT_FOLDER" validate:"required"`
	NumUpdates                int      `mapstructure:"NUM_UPDATES" yaml:"NUM_UPDATES" json:"NUM_UPDATES" toml:"NUM_UPDATES"`
	TotalNumSteps             float64  `mapstructure:"TOTAL_NUM_STEPS" yaml:"TOTAL_NUM_STEPS" json:"TOTAL_NUM_STEPS" toml:"TOTAL_NUM_STEPS"`
	NumCheckpoints            int      `mapstructure:"NUM_CHECKPOINTS" yaml:"NUM_CHECKPOINTS" json:"NUM_CHECKPOINTS" toml:"NUM_CHECKPOINTS"`
	CheckpointInterval        int      `mapstructure:"CHECKPOINT_INTERVAL" yaml:"CHECKPOINT_INTERVAL" json:"CHECKPOINT_INTERVAL" toml:"CHECKPOINT_INTERVAL"`
	LogInterval               int      `mapstructure:"LOG_INTERVAL" yaml:"LOG_INTERVAL" json:"LOG_INTERVAL" toml:"LOG_INTERVAL" validate:"gt=0"`
	LogFile                   string   `mapstructure:"LOG_FILE" yaml:"LOG_FILE" json:"LOG_FILE" toml:"LOG_FILE"`
	ForceBlindPolicy          bool     `mapstructure:"FORCE_BLIND_POLICY" yaml:"FORCE_BLIND_POLICY" json:"FORCE_BLIND_POLICY" toml:"FORCE_BLIND_POLICY"`
	ForceTorchSingleThreaded  bool     `mapstructure:"FORCE_TORCH_SINGLE_THREADED" yaml:"FORCE_TORCH_SINGLE_THREADED" json:"FORCE_TORCH_SINGLE_THREADED" toml:"FORCE_TORCH_SINGLE_THREADED"`
	EvalKeysToIncludeInName   []string `mapstructure:"EVAL_KEYS_TO_INCLUDE_IN_NAME" yaml:"EVAL_KEYS_TO_INCLUDE_IN_NAME" json:"EVAL_KEYS_TO_INCLUDE_IN_NAME" toml:"EVAL_KEYS_TO_INCLUDE_IN_NAME"`

	Eval      EvalConfig      `mapstructure:"EVAL" yaml:"EVAL" json:"EVAL" toml:"EVAL"`
	Profiling ProfilingConfig `mapstructure:"PROFILING" yaml:"PROFILING" json:"PROFILING" toml:"PROFILING"`
	RL        RLConfig        `mapstructure:"RL" yaml:"RL" json:"RL" toml:"RL"`

	// TaskConfig holds the composed task document. Its keys keep their
	// original case, so it bypasses the case-insensitive decoder.
	TaskConfig map[string]any `mapstructure:"-" yaml:"TASK_CONFIG,omitempty" json:"TASK_CONFIG,omitempty" toml:"TASK_CONFIG,omitempty"`
}

type EvalConfig struct {
	Split          string `mapstructure:"SPLIT" yaml:"SPLIT" json:"SPLIT" toml:"SPLIT" validate:"required"`
	UseCkptConfig  bool   `mapstructure:"USE_CKPT_CONFIG" yaml:"USE_CKPT_CONFIG" json:"USE_CKPT_CONFIG" toml:"USE_CKPT_CONFIG"`
	ShouldLoadCkpt bool   `mapstructure:"SHOULD_LOAD_CKPT" yaml:"SHOULD_LOAD_CKPT" json:"SHOULD_LOAD_CKPT" toml:"SHOULD_LOAD_CKPT"`
}

type ProfilingConfig struct {
	CaptureStartStep  int `mapstructure:"CAPTURE_START_STEP" yaml:"CAPTURE_START_STEP" json:"CAPTURE_START_STEP" toml:"CAPTURE_START_STEP" validate:"gte=-1"`
	NumStepsToCapture int `mapstructure:"NUM_STEPS_TO_CAPTURE" yaml:"NUM_STEPS_TO_CAPTURE" json:"NUM_STEPS_TO_CAPTURE" toml:"NUM_STEPS_TO_CAPTURE" validate:"gte=-1"`
}

type RLConfig struct {
	RewardMeasure  string  `mapstructure:"REWARD_MEASURE" yaml:"REWARD_MEASURE" json:"REWARD_MEASURE" toml:"REWARD_MEASURE"`
	SuccessMeasure string  `mapstructure:"SUCCESS_MEASURE" yaml:"SUCCESS_MEASURE" json:"SUCCESS_MEASURE" toml:"SUCCESS_MEASURE"`
	SuccessReward  float64 `mapstructure:"SUCCESS_REWARD" yaml:"SUCCESS_REWARD" json:"SUCCESS_REWARD" toml:"SUCCESS_REWARD"`
	SlackReward    float64 `mapstructure:"SLACK_REWARD" yaml:"SLACK_REWARD" json:"SLACK_REWARD" toml:"SLACK_REWARD"`

	Policy PolicyConfig `mapstructure:"POLICY" yaml:"POLICY" json:"POLICY" toml:"POLICY"`
	PPO    PPOConfig    `mapstructure:"PPO" yaml:"PPO" json:"PPO" toml:"PPO"`
	DDPPO  DDPPOConfig  `mapstructure:"DDPPO" yaml:"DDPPO" json:"DDPPO" toml:"DDPPO"`
}

type PolicyConfig struct {
	Name                   string `mapstructure:"name" yaml:"name" json:"name" toml:"name" validate:"required"`
	ActionDistributionType string `mapstructure:"action_distribution_type" yaml:"action_distribution_type" json:"action_distribution_type" toml:"action_distribution_type" validate:"oneof=categorical gaussian"`
}

type PPOConfig struct {
	ClipParam                float64 `mapstructure:"clip_param" yaml:"clip_param" json:"clip_param" toml:"clip_param" validate:"gt=0,lte=1"`
	PPOEpoch                 int     `mapstructure:"ppo_epoch" yaml:"ppo_epoch" json:"ppo_epoch" toml:"ppo_epoch" validate:"gt=0"`
	NumMiniBatch             int     `mapstructure:"num_mini_batch" yaml:"num_mini_batch" json:"num_mini_batch" toml:"num_mini_batch" validate:"gt=0"`
	ValueLossCoef            float64 `mapstructure:"value_loss_coef" yaml:"value_loss_coef" json:"value_loss_coef" toml:"value_loss_coef" validate:"gte=0"`
	EntropyCoef              float64 `mapstructure:"entropy_coef" yaml:"entropy_coef" json:"entropy_coef" toml:"entropy_coef" validate:"gte=0"`
	LR                       float64 `mapstructure:"lr" yaml:"lr" json:"lr" toml:"lr" validate:"gt=0"`
	Eps                      float64 `mapstructure:"eps" yaml:"eps" json:"eps" toml:"eps" validate:"gt=0"`
	MaxGradNorm              float64 `mapstructure:"max_grad_norm" yaml:"max_grad_norm" json:"max_grad_norm" toml:"max_grad_norm" validate:"gt=0"`
	NumSteps                 int     `mapstructure:"num_steps" yaml:"num_steps" json:"num_steps" toml:"num_steps" validate:"gt=0"`
	UseGAE                   bool    `mapstructure:"use_gae" yaml:"use_gae" json:"use_gae" toml:"use_gae"`
	UseLinearLRDecay         bool    `mapstructure:"use_linear_lr_decay" yaml:"use_linear_lr_decay" json:"use_linear_lr_decay" toml:"use_linear_lr_decay"`
	UseLinearClipDecay       bool    `mapstructure:"use_linear_clip_decay" yaml:"use_linear_clip_decay" json:"use_linear_clip_decay" toml:"use_linear_clip_decay"`
	Gamma                    float64 `mapstructure:"gamma" yaml:"gamma" json:"gamma" toml:"gamma" validate:"gt=0,lte=1"`
	Tau                      float64 `mapstructure:"tau" yaml:"tau" json:"tau" toml:"tau" validate:"gt=0,lte=1"`
	RewardWindowSize         int     `mapstructure:"reward_window_size" yaml:"reward_window_size" json:"reward_window_size" toml:"reward_window_size" validate:"gt=0"`
	UseNormalizedAdvantage   bool    `mapstructure:"use_normalized_advantage" yaml:"use_normalized_advantage" json:"use_normalized_advantage" toml:"use_normalized_advantage"`
	HiddenSize               int     `mapstructure:"hidden_size" yaml:"hidden_size" json:"hidden_size" toml:"hidden_size" validate:"gt=0"`
	UseDoubleBufferedSampler bool    `mapstructure:"use_double_buffered_sampler" yaml:"use_double_buffered_sampler" json:"use_double_buffered_sampler" toml:"use_double_buffered_sampler"`
}

type DDPPOConfig struct {
	SyncFrac           float64 `mapstructure:"sync_frac" yaml:"sync_frac" json:"sync_frac" toml:"sync_frac" validate:"gt=0,lte=1"`
	DistribBackend     string  `mapstructure:"distrib_backend" yaml:"distrib_backend" json:"distrib_backend" toml:"distrib_backend" validate:"oneof=GLOO NCCL MPI"`
	RNNType            string  `mapstructure:"rnn_type" yaml:"rnn_type" json:"rnn_type" toml:"rnn_type" validate:"oneof=GRU LSTM"`
	NumRecurrentLayers int     `mapstructure:"num_recurrent_layers" yaml:"num_recurrent_layers" json:"num_recurrent_layers" toml:"num_recurrent_layers" validate:"gt=0"`
	Backbone           string  `mapstructure:"backbone" yaml:"backbone" json:"backbone" toml:"backbone" validate:"oneof=resnet18 resnet50 resneXt50 se_resnet50 se_resneXt50 se_resneXt101"`
	PretrainedWeights  string  `mapstructure:"pretrained_weights" yaml:"pretrained_weights" json:"pretrained_weights" toml:"pretrained_weights"`
	Pretrained         bool    `mapstructure:"pretrained" yaml:"pretrained" json:"pretrained" toml:"pretrained"`
	PretrainedEncoder  bool    `mapstructure:"pretrained_encoder" yaml:"pretrained_encoder" json:"pretrained_encoder" toml:"pretrained_encoder"`
	TrainEncoder       bool    `mapstructure:"train_encoder" yaml:"train_encoder" json:"train_encoder" toml:"train_encoder"`
	ResetCritic        bool    `mapstructure:"reset_critic" yaml:"reset_critic" json:"reset_critic" toml:"reset_critic"`
	ForceDistributed   bool    `mapstructure:"force_distributed" yaml:"force_distributed" json:"force_distributed" toml:"force_distributed"`
}

// Default returns the configuration used for every key a document leaves out.
func Default() TrainerConfig {
	return TrainerConfig{
		Verbose:                 true,
		BaseTaskConfigPath:      "configs/tasks/pointnav.yaml",
		TrainerName:             "ppo",
		EnvName:                 "NavRLEnv",
		VideoOption:             []string{"disk", "tensorboard"},
		VideoFPS:                10,
		VideoRenderTopDown:      true,
		VideoRenderViews:        []string{},
		VideoDir:                "video_dir",
		TensorboardDir:          "tb",
		WriterType:              "tb",
		TestEpisodeCount:        -1,
		EvalCkptPathDir:         "data/checkpoints",
		NumEnvironments:         16,
		NumProcesses:            -1,
		Sensors:                 []string{"RGB_SENSOR", "DEPTH_SENSOR"},
		CheckpointFolder:        "data/checkpoints",
		NumUpdates:              10000,
		TotalNumSteps:           -1.0,
		NumCheckpoints:          10,
		CheckpointInterval:      -1,
		LogInterval:             10,
		LogFile:                 "train.log",
		EvalKeysToIncludeInName: []string{},
		Eval: EvalConfig{
			Split:          "val",
			UseCkptConfig:  true,
			ShouldLoadCkpt: true,
		},
		Profiling: ProfilingConfig{
			CaptureStartStep:  -1,
			NumStepsToCapture: -1,
		},
		RL: RLConfig{
			RewardMeasure:  "distance_to_goal",
			SuccessMeasure: "spl",
			SuccessReward:  2.5,
			SlackReward:    -0.01,
			Policy: PolicyConfig{
				Name:                   "PointNavResNetPolicy",
				ActionDistributionType: "categorical",
			},
			PPO: PPOConfig{
				ClipParam:        0.2,
				PPOEpoch:         4,
				NumMiniBatch:     2,
				ValueLossCoef:    0.5,
				EntropyCoef:      0.01,
				LR:               2.5e-4,
				Eps:              1e-5,
				MaxGradNorm:      0.5,
				NumSteps:         5,
				UseGAE:           true,
				Gamma:            0.99,
				Tau:              0.95,
				RewardWindowSize: 50,
				HiddenSize:       512,
			},
			DDPPO: DDPPOConfig{
				SyncFrac:           0.6,
				DistribBackend:     "GLOO",
				RNNType:            "GRU",
				NumRecurrentLayers: 1,
				Backbone:           "resnet18",
				PretrainedWeights:  "data/ddppo-models/gibson-2plus-resnet50.pth",
				TrainEncoder:       true,
				ResetCritic:        true,
			},
		},
	}
}

// RolloutBatchSize is the number of environment steps collected per update.
func (c *TrainerConfig) RolloutBatchSize() int {
	return c.RL.PPO.NumSteps * c.NumEnvironments
}

// EnvsPerMiniBatch is the number of environments each PPO minibatch covers.
func (c *TrainerConfig) EnvsPerMiniBatch() int {
	if c.RL.PPO.NumMiniBatch <= 0 {
		return 0
	}
	return c.NumEnvironments / c.RL.PPO.NumMiniBatch
}

// MiniBatchSize is the number of (step, env) samples in one PPO minibatch.
func (c *TrainerConfig) MiniBatchSize() int {
	return c.RL.PPO.NumSteps * c.EnvsPerMiniBatch()
}

// StoppingCriterion reports which setting bounds the run. It assumes the
// config passed Validate.
func (c *TrainerConfig) StoppingCriterion() StoppingCriterion {
	if c.NumUpdates != -1 {
		return StopByUpdates
	}
	return StopByTotalSteps
}

// HasVideoOption reports whether the given video output is enabled.
func (c *TrainerConfig) HasVideoOption(option string) bool {
	for _, o := range c.VideoOption {
		if o == option {
			return true
		}
	}
	return false
}
