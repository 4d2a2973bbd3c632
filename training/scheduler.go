package training

// LRScheduler computes the learning rate for an epoch as a pure
// function of (epoch, step, baseLR), so schedules can be recomputed at
// any point of a run.
type LRScheduler interface {
	GetLR(epoch int, step int, baseLR float64) float64
	GetName() string
}

// NoOpScheduler keeps the learning rate constant.
type NoOpScheduler struct{}

func (s *NoOpScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	return baseLR
}

func (s *NoOpScheduler) GetName() string {
	return "ConstantLR"
}

// WarmupHoldDecayScheduler ramps the learning rate linearly over the
// first tenth of the run, holds it at base until the midpoint, then
// decays linearly to zero by the final epoch. All boundaries use
// integer division of TotalEpochs, so runs shorter than ten epochs
// skip the warm-up entirely.
type WarmupHoldDecayScheduler struct {
	TotalEpochs int
}

// NewWarmupHoldDecayScheduler creates the staged fine-tuning schedule
// for a run of totalEpochs.
func NewWarmupHoldDecayScheduler(totalEpochs int) *WarmupHoldDecayScheduler {
	if totalEpochs < 1 {
		totalEpochs = 1
	}
	return &WarmupHoldDecayScheduler{TotalEpochs: totalEpochs}
}

func (s *WarmupHoldDecayScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	warmup := s.TotalEpochs / 10
	if warmup > 0 && epoch < warmup {
		scale := float64(epoch+1) / float64(warmup)
		if scale > 1 {
			scale = 1
		}
		return baseLR * scale
	}

	half := s.TotalEpochs / 2
	if epoch >= half {
		scale := 1 - float64(epoch-half)/float64(s.TotalEpochs-half)
		if scale < 0 {
			scale = 0
		}
		return baseLR * scale
	}
	return baseLR
}

func (s *WarmupHoldDecayScheduler) GetName() string {
	return "WarmupHoldDecay"
}
