package training

import "github.com/sentivox/go-emotion/tensor"

// StagedOptimizer drives two-stage fine-tuning: for the first 30% of
// the run only the head group steps; afterwards the wider fine-tune
// group takes over. The active group's learning rate follows the
// warm-up/hold/decay schedule, recomputed from (epoch, totalEpochs)
// alone.
type StagedOptimizer struct {
	groups      [2]*Adam
	allParams   []*tensor.Tensor
	sched       LRScheduler
	baseLR      float64
	totalEpochs int
	epoch       int
}

// NewStagedOptimizer builds the two Adam groups. head is the
// classification head alone; fineTune is the head plus the encoder
// portion that joins training after the warm stage.
func NewStagedOptimizer(head, fineTune []*tensor.Tensor, baseLR float64, totalEpochs int) *StagedOptimizer {
	s := &StagedOptimizer{
		sched:       NewWarmupHoldDecayScheduler(totalEpochs),
		baseLR:      baseLR,
		totalEpochs: totalEpochs,
	}
	s.groups[0] = NewAdam(head, baseLR, 0, 0, 0, 0)
	s.groups[1] = NewAdam(fineTune, baseLR, 0, 0, 0, 0)

	seen := make(map[*tensor.Tensor]bool)
	for _, p := range append(append([]*tensor.Tensor{}, head...), fineTune...) {
		if !seen[p] {
			seen[p] = true
			s.allParams = append(s.allParams, p)
		}
	}
	return s
}

// SetEpoch moves the optimizer to a new epoch. Group choice and
// learning rate both derive from it.
func (s *StagedOptimizer) SetEpoch(epoch int) {
	s.epoch = epoch
}

// ActiveGroup returns 0 during the head-only stage and 1 afterwards.
func (s *StagedOptimizer) ActiveGroup() int {
	if float64(s.epoch)/float64(s.totalEpochs) <= 0.3 {
		return 0
	}
	return 1
}

// Step applies the scheduled learning rate to the active group and
// steps it. The inactive group neither steps nor advances its moments.
func (s *StagedOptimizer) Step() error {
	group := s.groups[s.ActiveGroup()]
	group.SetLR(s.sched.GetLR(s.epoch, 0, s.baseLR))
	return group.Step()
}

// ZeroGrad clears gradients across both groups.
func (s *StagedOptimizer) ZeroGrad() {
	tensor.ZeroGrad(s.allParams)
}

// GetLR returns the scheduled learning rate for the current epoch.
func (s *StagedOptimizer) GetLR() float64 {
	return s.sched.GetLR(s.epoch, 0, s.baseLR)
}

// SetLR replaces the base learning rate the schedule scales.
func (s *StagedOptimizer) SetLR(lr float64) {
	s.baseLR = lr
}
