package parser

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/imishinist/ddppo-cli/internal/models"
)

const taskConfigKey = "TASK_CONFIG"

type loadOptions struct {
	logger   *zap.Logger
	loadTask bool
	taskDir  string
}

type LoadOption func(*loadOptions)

// WithLogger routes load warnings to logger.
func WithLogger(logger *zap.Logger) LoadOption {
	return func(o *loadOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTaskConfig reads the document named by BASE_TASK_CONFIG_PATH into
// TASK_CONFIG.
func WithTaskConfig(enabled bool) LoadOption {
	return func(o *loadOptions) {
		o.loadTask = enabled
	}
}

// WithTaskDir sets the directory a relative BASE_TASK_CONFIG_PATH is
// resolved against. It defaults to the directory of the first document.
func WithTaskDir(dir string) LoadOption {
	return func(o *loadOptions) {
		o.taskDir = dir
	}
}

// Load merges the documents at paths over the defaults, applies overrides
// and validates the result.
func Load(paths []string, overrides []Override, opts ...LoadOption) (*models.TrainerConfig, error) {
	o := loadOptions{logger: zap.NewNop()}
	if len(paths) > 0 {
		o.taskDir = filepath.Dir(paths[0])
	}
	for _, opt := range opts {
		opt(&o)
	}

	docs := make([]map[string]any, 0, len(paths))
	for _, path := range paths {
		doc, err := readDocumentFile(path)
		if err != nil {
			return nil, err
		}
		o.logger.Debug("Read configuration document", zap.String("path", path), zap.Int("keys", len(doc)))
		docs = append(docs, doc)
	}

	return build(docs, overrides, o)
}

func build(docs []map[string]any, overrides []Override, o loadOptions) (*models.TrainerConfig, error) {
	v := viper.New()

	defaults, err := toTree(models.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	for key, value := range flattenTree(defaults) {
		v.SetDefault(key, value)
	}

	task := make(map[string]any)
	for _, doc := range docs {
		if raw, ok := popKey(doc, taskConfigKey); ok && raw != nil {
			table, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s must be a table, got %T", taskConfigKey, raw)
			}
			mergeTree(task, table)
		}
		for key, value := range flattenTree(doc) {
			v.Set(key, value)
		}
	}

	for _, override := range overrides {
		if path, ok := taskPath(override.Key); ok {
			if err := setPath(task, path, override.Value); err != nil {
				return nil, fmt.Errorf("invalid override %s: %w", override.Key, err)
			}
			continue
		}
		v.Set(override.Key, override.Value)
	}

	var cfg models.TrainerConfig
	if err := v.Unmarshal(&cfg, strictDecoding); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.ValidateNumProcesses(); err != nil {
		return nil, err
	}
	if cfg.NumProcesses != -1 {
		o.logger.Warn("NUM_PROCESSES is deprecated, overwriting NUM_ENVIRONMENTS with it",
			zap.Int("num_processes", cfg.NumProcesses),
			zap.Int("num_environments", cfg.NumEnvironments),
		)
		cfg.NumEnvironments = cfg.NumProcesses
	}

	if o.loadTask {
		base, err := readTaskDocument(cfg.BaseTaskConfigPath, o.taskDir)
		if err != nil {
			return nil, err
		}
		mergeTree(base, task)
		task = base
	}
	if err := composeTask(&cfg, task); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readTaskDocument reads the task document. A relative path is tried
// against dir first and then against the working directory.
func readTaskDocument(path, dir string) (map[string]any, error) {
	candidates := []string{path}
	if !filepath.IsAbs(path) && dir != "" && dir != "." {
		candidates = []string{filepath.Join(dir, path), path}
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		doc, err := readDocumentFile(candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to load BASE_TASK_CONFIG_PATH: %w", err)
		}
		return doc, nil
	}
	return nil, fmt.Errorf("failed to load BASE_TASK_CONFIG_PATH: %s not found (tried %s)", path, strings.Join(candidates, ", "))
}

// composeTask attaches the task document and copies the run-level sensor
// list into the agent's simulator settings.
func composeTask(cfg *models.TrainerConfig, task map[string]any) error {
	if len(task) == 0 {
		cfg.TaskConfig = nil
		return nil
	}

	sensors := make([]any, len(cfg.Sensors))
	for i, sensor := range cfg.Sensors {
		sensors[i] = sensor
	}
	if err := setPath(task, []string{"SIMULATOR", "AGENT_0", "SENSORS"}, sensors); err != nil {
		return fmt.Errorf("failed to set %s.SIMULATOR.AGENT_0.SENSORS: %w", taskConfigKey, err)
	}

	normalized, err := normalizeTree(task)
	if err != nil {
		return fmt.Errorf("failed to normalize %s: %w", taskConfigKey, err)
	}
	cfg.TaskConfig = normalized
	return nil
}

func strictDecoding(dc *mapstructure.DecoderConfig) {
	dc.ErrorUnused = true
	dc.WeaklyTypedInput = false
	dc.DecodeHook = mapstructure.DecodeHookFuncType(integralHook)
}

// integralHook rejects fractional numbers for integer settings.
func integralHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return data, nil
	}

	f, ok := data.(float64)
	if !ok {
		return data, nil
	}
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return nil, fmt.Errorf("expected an integer, got %v", f)
	}
	return int64(f), nil
}
