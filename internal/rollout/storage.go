// Package rollout holds the per-update rollout buffer of a PPO trainer
// and the return and advantage computations run over it.
package rollout

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/imishinist/ddppo-cli/internal/models"
)

// Spec sizes a Storage.
type Spec struct {
	NumSteps           int
	NumEnvs            int
	ActionDim          int
	HiddenSize         int
	NumRecurrentLayers int
	// Observations maps a sensor name to its flattened size.
	Observations   map[string]int
	DoubleBuffered bool
}

// SpecFromConfig derives the buffer dimensions from a run configuration.
// LSTM policies keep both hidden and cell state, doubling the layer count.
func SpecFromConfig(cfg *models.TrainerConfig, actionDim int, observations map[string]int) Spec {
	layers := cfg.RL.DDPPO.NumRecurrentLayers
	if cfg.RL.DDPPO.RNNType == "LSTM" {
		layers *= 2
	}
	return Spec{
		NumSteps:           cfg.RL.PPO.NumSteps,
		NumEnvs:            cfg.NumEnvironments,
		ActionDim:          actionDim,
		HiddenSize:         cfg.RL.PPO.HiddenSize,
		NumRecurrentLayers: layers,
		Observations:       observations,
		DoubleBuffered:     cfg.RL.PPO.UseDoubleBufferedSampler,
	}
}

func (s Spec) numBuffers() int {
	if s.DoubleBuffered {
		return 2
	}
	return 1
}

func (s Spec) validate() error {
	if s.NumSteps <= 0 {
		return fmt.Errorf("num steps must be positive (got %d)", s.NumSteps)
	}
	if s.NumEnvs <= 0 {
		return fmt.Errorf("num envs must be positive (got %d)", s.NumEnvs)
	}
	if s.ActionDim <= 0 {
		return fmt.Errorf("action dim must be positive (got %d)", s.ActionDim)
	}
	if s.HiddenSize <= 0 || s.NumRecurrentLayers <= 0 {
		return fmt.Errorf("recurrent state must be non-empty (layers=%d, hidden=%d)", s.NumRecurrentLayers, s.HiddenSize)
	}
	for sensor, dim := range s.Observations {
		if dim <= 0 {
			return fmt.Errorf("observation %s must have a positive size (got %d)", sensor, dim)
		}
	}
	if s.NumEnvs%s.numBuffers() != 0 {
		return fmt.Errorf("num envs (%d) must split evenly across %d buffers", s.NumEnvs, s.numBuffers())
	}
	return nil
}

// StepData is what one environment step writes into the buffer for the
// environments of a single buffer. Nil fields are left untouched.
type StepData struct {
	Observations   map[string][][]float64
	HiddenStates   [][]float64
	Actions        [][]float64
	ActionLogProbs []float64
	ValuePreds     []float64
	Rewards        []float64
	Masks          []float64
}

// Storage is the rollout buffer. Scalar series are (steps+1) x envs
// matrices; vector series store one row per (step, env) pair at
// step*envs+env.
type Storage struct {
	spec     Spec
	nbuffers int
	steps    []int
	logger   *zap.Logger

	observations   map[string]*mat.Dense
	hiddenStates   *mat.Dense
	actions        *mat.Dense
	prevActions    *mat.Dense
	rewards        *mat.Dense
	valuePreds     *mat.Dense
	returns        *mat.Dense
	actionLogProbs *mat.Dense
	masks          *mat.Dense
}

type Option func(*Storage)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStorage(spec Spec, opts ...Option) (*Storage, error) {
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid rollout spec: %w", err)
	}

	rows := spec.NumSteps + 1
	vectorRows := rows * spec.NumEnvs

	s := &Storage{
		spec:           spec,
		nbuffers:       spec.numBuffers(),
		steps:          make([]int, spec.numBuffers()),
		logger:         zap.NewNop(),
		observations:   make(map[string]*mat.Dense, len(spec.Observations)),
		hiddenStates:   mat.NewDense(vectorRows, spec.NumRecurrentLayers*spec.HiddenSize, nil),
		actions:        mat.NewDense(vectorRows, spec.ActionDim, nil),
		prevActions:    mat.NewDense(vectorRows, spec.ActionDim, nil),
		rewards:        mat.NewDense(rows, spec.NumEnvs, nil),
		valuePreds:     mat.NewDense(rows, spec.NumEnvs, nil),
		returns:        mat.NewDense(rows, spec.NumEnvs, nil),
		actionLogProbs: mat.NewDense(rows, spec.NumEnvs, nil),
		masks:          mat.NewDense(rows, spec.NumEnvs, nil),
	}
	for sensor, dim := range spec.Observations {
		s.observations[sensor] = mat.NewDense(vectorRows, dim, nil)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Storage) Spec() Spec {
	return s.spec
}

// Step is the shared write position of all buffers.
func (s *Storage) Step() (int, error) {
	for _, step := range s.steps {
		if step != s.steps[0] {
			return 0, fmt.Errorf("buffers are out of sync: %v", s.steps)
		}
	}
	return s.steps[0], nil
}

func (s *Storage) envRange(bufferIndex int) (int, int, error) {
	if bufferIndex < 0 || bufferIndex >= s.nbuffers {
		return 0, 0, fmt.Errorf("buffer index %d out of range (buffers: %d)", bufferIndex, s.nbuffers)
	}
	per := s.spec.NumEnvs / s.nbuffers
	return bufferIndex * per, (bufferIndex + 1) * per, nil
}

func (s *Storage) row(step, env int) int {
	return step*s.spec.NumEnvs + env
}

// Insert writes one step for the environments owned by bufferIndex.
// Observations, hidden states, previous actions and masks describe the
// next step; actions, log-probs, value predictions and rewards describe
// the current one.
func (s *Storage) Insert(data StepData, bufferIndex int) error {
	lo, hi, err := s.envRange(bufferIndex)
	if err != nil {
		return err
	}
	step := s.steps[bufferIndex]
	if step >= s.spec.NumSteps {
		return fmt.Errorf("buffer %d is full (%d steps)", bufferIndex, s.spec.NumSteps)
	}
	n := hi - lo

	sensors := make([]string, 0, len(data.Observations))
	for sensor := range data.Observations {
		sensors = append(sensors, sensor)
	}
	sort.Strings(sensors)
	for _, sensor := range sensors {
		buf, ok := s.observations[sensor]
		if !ok {
			return fmt.Errorf("unknown observation %s", sensor)
		}
		if err := s.setRows(buf, step+1, lo, n, data.Observations[sensor], sensor); err != nil {
			return err
		}
	}
	if err := s.setRows(s.hiddenStates, step+1, lo, n, data.HiddenStates, "hidden states"); err != nil {
		return err
	}
	if err := s.setRows(s.prevActions, step+1, lo, n, data.Actions, "actions"); err != nil {
		return err
	}
	if err := setColumnSlice(s.masks, step+1, lo, n, data.Masks, "masks"); err != nil {
		return err
	}

	if err := s.setRows(s.actions, step, lo, n, data.Actions, "actions"); err != nil {
		return err
	}
	if err := setColumnSlice(s.actionLogProbs, step, lo, n, data.ActionLogProbs, "action log probs"); err != nil {
		return err
	}
	if err := setColumnSlice(s.valuePreds, step, lo, n, data.ValuePreds, "value preds"); err != nil {
		return err
	}
	return setColumnSlice(s.rewards, step, lo, n, data.Rewards, "rewards")
}

func (s *Storage) setRows(buf *mat.Dense, step, lo, n int, values [][]float64, name string) error {
	if values == nil {
		return nil
	}
	if len(values) != n {
		return fmt.Errorf("%s: expected %d environments, got %d", name, n, len(values))
	}
	_, cols := buf.Dims()
	for i, v := range values {
		if len(v) != cols {
			return fmt.Errorf("%s: expected width %d, got %d", name, cols, len(v))
		}
		buf.SetRow(s.row(step, lo+i), v)
	}
	return nil
}

func setColumnSlice(buf *mat.Dense, step, lo, n int, values []float64, name string) error {
	if values == nil {
		return nil
	}
	if len(values) != n {
		return fmt.Errorf("%s: expected %d environments, got %d", name, n, len(values))
	}
	for i, v := range values {
		buf.Set(step, lo+i, v)
	}
	return nil
}

// Advance moves the write position of one buffer forward.
func (s *Storage) Advance(bufferIndex int) error {
	if _, _, err := s.envRange(bufferIndex); err != nil {
		return err
	}
	if s.steps[bufferIndex] >= s.spec.NumSteps {
		return fmt.Errorf("buffer %d is full (%d steps)", bufferIndex, s.spec.NumSteps)
	}
	s.steps[bufferIndex]++
	return nil
}

// AfterUpdate carries the last filled step over to step 0 and rewinds
// every buffer.
func (s *Storage) AfterUpdate() error {
	step, err := s.Step()
	if err != nil {
		return err
	}

	for _, buf := range s.scalarBuffers() {
		buf.SetRow(0, mat.Row(nil, step, buf))
	}
	for _, buf := range s.vectorBuffers() {
		for env := 0; env < s.spec.NumEnvs; env++ {
			buf.SetRow(s.row(0, env), mat.Row(nil, s.row(step, env), buf))
		}
	}

	for i := range s.steps {
		s.steps[i] = 0
	}
	return nil
}

func (s *Storage) scalarBuffers() []*mat.Dense {
	return []*mat.Dense{s.rewards, s.valuePreds, s.returns, s.actionLogProbs, s.masks}
}

func (s *Storage) vectorBuffers() []*mat.Dense {
	bufs := []*mat.Dense{s.hiddenStates, s.actions, s.prevActions}
	for _, buf := range s.observations {
		bufs = append(bufs, buf)
	}
	return bufs
}

// Returns is a copy of the computed returns for the filled steps.
func (s *Storage) Returns() (*mat.Dense, error) {
	step, err := s.Step()
	if err != nil {
		return nil, err
	}
	if step == 0 {
		return nil, fmt.Errorf("rollout buffer is empty")
	}
	return mat.DenseCopyOf(s.returns.Slice(0, step, 0, s.spec.NumEnvs)), nil
}
