package training

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sentivox/go-emotion/checkpoints"
	"github.com/sentivox/go-emotion/config"
	"github.com/sentivox/go-emotion/dataset"
	"github.com/sentivox/go-emotion/encoder"
	"github.com/sentivox/go-emotion/model"
	"github.com/sentivox/go-emotion/nn"
	"github.com/sentivox/go-emotion/tensor"
)

// TestReport summarizes an evaluation run.
type TestReport struct {
	Loss     float64
	Accuracy float64
	Samples  int
	Elapsed  time.Duration
}

// Evaluator rebuilds a trained model from its best checkpoint and
// scores it on the held-out test split.
type Evaluator struct {
	cfg        *config.Config
	log        *logrus.Logger
	device     tensor.DeviceType
	ds         dataset.Classed
	encoderCfg encoder.Config
}

// NewEvaluator wires an evaluator for the given run config.
func NewEvaluator(cfg *config.Config, logger *logrus.Logger) *Evaluator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Evaluator{cfg: cfg, log: logger}
}

// SetDataset overrides the registry lookup with a ready dataset.
func (e *Evaluator) SetDataset(ds dataset.Classed) {
	e.ds = ds
}

// SetEncoderConfig applies the same encoder override the training run
// used, so checkpoint shapes line up.
func (e *Evaluator) SetEncoderConfig(cfg encoder.Config) {
	e.encoderCfg = cfg
}

// Run scores the best checkpoint on the test split. The split uses the
// configured seed, so it reproduces the train/test partition of the
// training run exactly.
func (e *Evaluator) Run() (*TestReport, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	hw, err := config.LoadHardware(e.cfg.HardwareConfigFile)
	if err != nil {
		return nil, err
	}
	e.device = hw.DeviceType()

	if e.ds == nil {
		ds, err := dataset.Open(e.cfg.Dataset, e.cfg.Paths.DataRoot, e.cfg.AudioSize, e.cfg.UseSpectrogram)
		if err != nil {
			return nil, err
		}
		e.ds = ds
	}

	_, testSet, err := dataset.RandomSplit(e.ds, e.cfg.TrainTestSplitSize, e.cfg.TrainTestSplitSeed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	m, err := model.Build(e.cfg.Model, e.cfg.ModelArch, len(e.ds.Classes()), model.BuildConfig{
		AudioSize:              e.cfg.AudioSize,
		Encoder:                e.encoderCfg,
		PretrainedEncoderPath:  e.cfg.PretrainedEncoderPath,
		PretrainedBackbonePath: e.cfg.PretrainedBackbonePath,
	})
	if err != nil {
		return nil, err
	}

	bestPath := checkpoints.BestPath(e.cfg.Paths.ModelRoot, e.cfg.SimulationName)
	cp, err := checkpoints.Load(bestPath)
	if err != nil {
		return nil, err
	}
	if err := checkpoints.Apply(m.Parameters(), cp.Params); err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"checkpoint": bestPath,
		"epoch":      cp.Epoch,
		"testSize":   testSet.Len(),
	}).Info("evaluating best model")

	start := time.Now()
	loader := NewDataLoader(testSet, e.cfg.TestingBatchSize, false, e.cfg.NumWorkers, e.device)
	loss, acc, samples, err := runEval(m, nn.NewCrossEntropyLoss(), loader)
	if err != nil {
		return nil, err
	}
	report := &TestReport{Loss: loss, Accuracy: acc, Samples: samples, Elapsed: time.Since(start)}

	metrics, err := NewMetricsLog(e.cfg.Paths.LogsRoot, e.cfg.SimulationName)
	if err != nil {
		return nil, err
	}
	if err := metrics.LogTest(TestRecord{Epoch: e.cfg.NumEpochs, TestAccuracy: acc}); err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"loss":     report.Loss,
		"accuracy": report.Accuracy,
		"samples":  report.Samples,
		"elapsed":  report.Elapsed.Round(time.Millisecond).String(),
	}).Info("test evaluation complete")
	return report, nil
}

// runEval scores a model over a loader with gradients disabled. The
// loss is weighted by batch size, so ragged final batches do not skew
// the mean.
func runEval(m model.Classifier, criterion *nn.CrossEntropyLoss, loader *DataLoader) (loss, accuracy float64, samples int, err error) {
	m.EvalMode()
	defer m.TrainMode()
	tensor.SetGradEnabled(false)
	defer tensor.SetGradEnabled(true)

	var lossSum float64
	var correct int
	for {
		batch, err := loader.Next()
		if err != nil {
			return 0, 0, 0, err
		}
		if batch == nil {
			break
		}
		out, err := m.Forward(batch.Data)
		if err != nil {
			return 0, 0, 0, err
		}
		batchLoss, err := criterion.Forward(out, batch.Labels)
		if err != nil {
			return 0, 0, 0, err
		}
		v, err := batchLoss.Item()
		if err != nil {
			return 0, 0, 0, err
		}
		c, err := countCorrect(out, batch.Labels)
		if err != nil {
			return 0, 0, 0, err
		}
		lossSum += float64(v.(float32)) * float64(batch.Size())
		correct += c
		samples += batch.Size()
	}
	if samples == 0 {
		return 0, 0, 0, fmt.Errorf("evaluation dataset is empty")
	}
	return lossSum / float64(samples), float64(correct) / float64(samples), samples, nil
}

// Test loads a run config and evaluates its best checkpoint.
func Test(configPath string, logger *logrus.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	_, err = NewEvaluator(cfg, logger).Run()
	return err
}
