package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single rejected setting, named by its dotted key path.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// ValidationError aggregates every FieldError found by Validate.
type ValidationError struct {
	err error
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + e.err.Error()
}

func (e *ValidationError) Unwrap() []error {
	return multierr.Errors(e.err)
}

// Fields returns the rejected settings in the order they were found.
func (e *ValidationError) Fields() []*FieldError {
	var fields []*FieldError
	for _, err := range multierr.Errors(e.err) {
		var fe *FieldError
		if errors.As(err, &fe) {
			fields = append(fields, fe)
		}
	}
	return fields
}

func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks field ranges and enums, then the rules that span
// several settings.
func (c *TrainerConfig) Validate() error {
	var err error

	if verr := fieldValidator().Struct(c); verr != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(verr, &fieldErrs) {
			return fmt.Errorf("failed to validate configuration: %w", verr)
		}
		for _, fe := range fieldErrs {
			err = multierr.Append(err, describe(fe))
		}
	}

	if fe := c.numProcessesError(); fe != nil {
		err = multierr.Append(err, fe)
	}
	err = multierr.Append(err, c.validateStopping())
	err = multierr.Append(err, c.validateCheckpointing())
	err = multierr.Append(err, c.validateRollout())
	err = multierr.Append(err, c.validateOutputs())

	if err != nil {
		return &ValidationError{err: err}
	}
	return nil
}

// ValidateNumProcesses checks the deprecated NUM_PROCESSES alias on its
// own, before it replaces NUM_ENVIRONMENTS.
func (c *TrainerConfig) ValidateNumProcesses() error {
	if fe := c.numProcessesError(); fe != nil {
		return &ValidationError{err: fe}
	}
	return nil
}

func (c *TrainerConfig) numProcessesError() *FieldError {
	if c.NumProcesses == -1 || c.NumProcesses > 0 {
		return nil
	}
	return &FieldError{Field: "NUM_PROCESSES", Message: fmt.Sprintf("must be greater than 0 or -1 (got %d)", c.NumProcesses)}
}

func (c *TrainerConfig) validateStopping() error {
	updatesSet := c.NumUpdates != -1
	stepsSet := c.TotalNumSteps != -1

	switch {
	case updatesSet && stepsSet:
		return &FieldError{Field: "NUM_UPDATES", Message: "and TOTAL_NUM_STEPS are both set (set one of them to -1)"}
	case !updatesSet && !stepsSet:
		return &FieldError{Field: "NUM_UPDATES", Message: "or TOTAL_NUM_STEPS must be set"}
	case updatesSet && c.NumUpdates <= 0:
		return &FieldError{Field: "NUM_UPDATES", Message: fmt.Sprintf("must be greater than 0 or -1 (got %d)", c.NumUpdates)}
	case stepsSet && c.TotalNumSteps <= 0:
		return &FieldError{Field: "TOTAL_NUM_STEPS", Message: fmt.Sprintf("must be greater than 0 or -1 (got %v)", c.TotalNumSteps)}
	}
	return nil
}

func (c *TrainerConfig) validateCheckpointing() error {
	countSet := c.NumCheckpoints != -1
	intervalSet := c.CheckpointInterval != -1

	switch {
	case countSet && intervalSet:
		return &FieldError{Field: "NUM_CHECKPOINTS", Message: "and CHECKPOINT_INTERVAL are both set (set one of them to -1)"}
	case !countSet && !intervalSet:
		return &FieldError{Field: "NUM_CHECKPOINTS", Message: "or CHECKPOINT_INTERVAL must be set"}
	case countSet && c.NumCheckpoints <= 0:
		return &FieldError{Field: "NUM_CHECKPOINTS", Message: fmt.Sprintf("must be greater than 0 or -1 (got %d)", c.NumCheckpoints)}
	case intervalSet && c.CheckpointInterval <= 0:
		return &FieldError{Field: "CHECKPOINT_INTERVAL", Message: fmt.Sprintf("must be greater than 0 or -1 (got %d)", c.CheckpointInterval)}
	}
	return nil
}

func (c *TrainerConfig) validateRollout() error {
	var err error
	ppo := c.RL.PPO

	// Ranges are already reported by the field validator.
	if ppo.NumMiniBatch > 0 && c.NumEnvironments > 0 {
		if c.NumEnvironments < ppo.NumMiniBatch {
			err = multierr.Append(err, &FieldError{
				Field:   "RL.PPO.num_mini_batch",
				Message: fmt.Sprintf("must not exceed NUM_ENVIRONMENTS (%d > %d)", ppo.NumMiniBatch, c.NumEnvironments),
			})
		} else if c.NumEnvironments%ppo.NumMiniBatch != 0 {
			err = multierr.Append(err, &FieldError{
				Field:   "RL.PPO.num_mini_batch",
				Message: fmt.Sprintf("must divide NUM_ENVIRONMENTS evenly (%d %% %d != 0)", c.NumEnvironments, ppo.NumMiniBatch),
			})
		}
	}

	if ppo.UseDoubleBufferedSampler && c.NumEnvironments%2 != 0 {
		err = multierr.Append(err, &FieldError{
			Field:   "RL.PPO.use_double_buffered_sampler",
			Message: fmt.Sprintf("requires an even NUM_ENVIRONMENTS (got %d)", c.NumEnvironments),
		})
	}

	ddppo := c.RL.DDPPO
	if (ddppo.Pretrained || ddppo.PretrainedEncoder) && ddppo.PretrainedWeights == "" {
		err = multierr.Append(err, &FieldError{
			Field:   "RL.DDPPO.pretrained_weights",
			Message: "is required when pretrained or pretrained_encoder is set",
		})
	}

	return err
}

func (c *TrainerConfig) validateOutputs() error {
	var err error
	if c.HasVideoOption("disk") && c.VideoDir == "" {
		err = multierr.Append(err, &FieldError{Field: "VIDEO_DIR", Message: "is required when VIDEO_OPTION includes disk"})
	}
	if c.HasVideoOption("tensorboard") && c.TensorboardDir == "" {
		err = multierr.Append(err, &FieldError{Field: "TENSORBOARD_DIR", Message: "is required when VIDEO_OPTION includes tensorboard"})
	}
	return err
}

func describe(fe validator.FieldError) *FieldError {
	field := fe.Namespace()
	// Drop the root struct name.
	if idx := strings.Index(field, "."); idx != -1 {
		field = field[idx+1:]
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "gt":
		msg = fmt.Sprintf("must be greater than %s (got %v)", fe.Param(), fe.Value())
	case "gte":
		msg = fmt.Sprintf("must be at least %s (got %v)", fe.Param(), fe.Value())
	case "lte":
		msg = fmt.Sprintf("must be at most %s (got %v)", fe.Param(), fe.Value())
	case "oneof":
		msg = fmt.Sprintf("must be one of [%s] (got %q)", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	default:
		msg = fmt.Sprintf("failed %q validation (got %v)", fe.Tag(), fe.Value())
	}

	return &FieldError{Field: field, Message: msg}
}
