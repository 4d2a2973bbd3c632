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

// perEpochTrainFraction is the share of the train split used for
// weight updates each epoch; the rest validates. The re-split is
// unseeded on purpose, so every epoch validates on different samples.
const perEpochTrainFraction = 0.8

// Trainer runs one training simulation end to end: dataset, split,
// model, epochs, and the two checkpoint artifacts.
type Trainer struct {
	cfg    *config.Config
	log    *logrus.Logger
	device tensor.DeviceType

	ds         dataset.Classed
	encoderCfg encoder.Config
	trainSet   *dataset.Subset
	model      model.Classifier
	criterion  *nn.CrossEntropyLoss
	opt        Optimizer
	metrics    *MetricsLog

	bestParams   []checkpoints.ParamTensor
	bestEpoch    int
	bestLoss     float64
	bestAccuracy float64
	hasBest      bool
}

// NewTrainer wires a trainer for the given run config.
func NewTrainer(cfg *config.Config, logger *logrus.Logger) *Trainer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Trainer{cfg: cfg, log: logger}
}

// SetDataset overrides the registry lookup with a ready dataset.
func (t *Trainer) SetDataset(ds dataset.Classed) {
	t.ds = ds
}

// SetEncoderConfig overrides the default speech-encoder geometry for
// the wav2vec model family. Evaluation of the resulting checkpoints
// needs the same override.
func (t *Trainer) SetEncoderConfig(cfg encoder.Config) {
	t.encoderCfg = cfg
}

// Model returns the classifier once Init has built it.
func (t *Trainer) Model() model.Classifier {
	return t.model
}

// Init validates the configuration, opens the dataset, carves the
// seeded train split, and builds the model and optimizer. Any failure
// here is fatal to the run; nothing retries.
func (t *Trainer) Init() error {
	if err := t.cfg.Validate(); err != nil {
		return err
	}

	hw, err := config.LoadHardware(t.cfg.HardwareConfigFile)
	if err != nil {
		return err
	}
	t.device = hw.DeviceType()

	if t.ds == nil {
		ds, err := dataset.Open(t.cfg.Dataset, t.cfg.Paths.DataRoot, t.cfg.AudioSize, t.cfg.UseSpectrogram)
		if err != nil {
			return err
		}
		t.ds = ds
	}

	t.trainSet, _, err = dataset.RandomSplit(t.ds, t.cfg.TrainTestSplitSize, t.cfg.TrainTestSplitSeed)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	numClasses := len(t.ds.Classes())
	t.model, err = model.Build(t.cfg.Model, t.cfg.ModelArch, numClasses, model.BuildConfig{
		AudioSize:              t.cfg.AudioSize,
		Encoder:                t.encoderCfg,
		PretrainedEncoderPath:  t.cfg.PretrainedEncoderPath,
		PretrainedBackbonePath: t.cfg.PretrainedBackbonePath,
	})
	if err != nil {
		return err
	}
	t.criterion = nn.NewCrossEntropyLoss()

	if t.cfg.Model == "wav2vec" && t.cfg.ModelArch == "paper" {
		staged := t.model.(model.StagedClassifier)
		t.opt = NewStagedOptimizer(staged.HeadParameters(), staged.FineTuneParameters(), t.cfg.LearningRate, t.cfg.NumEpochs)
	} else {
		t.opt = NewAdam(t.model.TrainableParameters(), t.cfg.LearningRate, 0, 0, 0, 0)
	}

	t.metrics, err = NewMetricsLog(t.cfg.Paths.LogsRoot, t.cfg.SimulationName)
	if err != nil {
		return err
	}

	t.log.WithFields(logrus.Fields{
		"simulation": t.cfg.SimulationName,
		"model":      t.cfg.Model,
		"arch":       t.cfg.ModelArch,
		"dataset":    t.cfg.Dataset,
		"classes":    numClasses,
		"trainSize":  t.trainSet.Len(),
		"device":     hw.Device,
	}).Info("trainer initialized")
	return nil
}

// Run executes all epochs and persists the artifacts.
func (t *Trainer) Run() error {
	runStart := time.Now()
	etaLogged := false

	for epoch := 0; epoch < t.cfg.NumEpochs; epoch++ {
		t.log.WithField("epoch", epoch).Info("starting epoch")
		epochStart := time.Now()

		if staged, ok := t.opt.(*StagedOptimizer); ok {
			staged.SetEpoch(epoch)
		}

		trainSplit, valSplit, err := dataset.RandomSplit(t.trainSet, perEpochTrainFraction, nil)
		if err != nil {
			return fmt.Errorf("epoch %d re-split: %w", epoch, err)
		}

		loader := NewDataLoader(trainSplit, t.cfg.TrainingBatchSize, false, t.cfg.NumWorkers, t.device)
		numBatches := loader.Len()
		logEvery := numBatches / 10
		if logEvery < 1 {
			logEvery = 1
		}

		t.model.TrainMode()
		var lossSum float64
		var seen int
		for batchIdx := 0; ; batchIdx++ {
			batch, err := loader.Next()
			if err != nil {
				return fmt.Errorf("epoch %d batch %d: %w", epoch, batchIdx, err)
			}
			if batch == nil {
				break
			}

			t.opt.ZeroGrad()
			out, err := t.model.Forward(batch.Data)
			if err != nil {
				return fmt.Errorf("epoch %d forward: %w", epoch, err)
			}
			loss, err := t.criterion.Forward(out, batch.Labels)
			if err != nil {
				return fmt.Errorf("epoch %d loss: %w", epoch, err)
			}
			if err := loss.Backward(); err != nil {
				return fmt.Errorf("epoch %d backward: %w", epoch, err)
			}
			if err := t.opt.Step(); err != nil {
				return fmt.Errorf("epoch %d optimizer step: %w", epoch, err)
			}

			v, err := loss.Item()
			if err != nil {
				return err
			}
			batchLoss := float64(v.(float32))
			lossSum += batchLoss * float64(batch.Size())
			seen += batch.Size()

			if (batchIdx+1)%logEvery == 0 {
				t.log.WithFields(logrus.Fields{
					"epoch":    epoch,
					"batch":    batchIdx + 1,
					"complete": fmt.Sprintf("%d%%", 100*(batchIdx+1)/numBatches),
					"loss":     batchLoss,
				}).Info("training progress")

				if epoch == 0 && !etaLogged {
					perSample := time.Since(epochStart) / time.Duration(seen)
					eta := perSample * time.Duration(t.trainSet.Len()*t.cfg.NumEpochs)
					t.log.WithField("eta", eta.Round(time.Second).String()).Info("estimated total training time")
					etaLogged = true
				}
			}
		}
		trainLoss := lossSum / float64(seen)

		valLoss, valAcc, _, err := runEval(t.model, t.criterion, NewDataLoader(valSplit, t.cfg.TestingBatchSize, false, t.cfg.NumWorkers, t.device))
		if err != nil {
			return fmt.Errorf("epoch %d validation: %w", epoch, err)
		}

		if err := t.metrics.LogEpoch(EpochRecord{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss, ValAccuracy: valAcc}); err != nil {
			return err
		}
		t.log.WithFields(logrus.Fields{
			"epoch":       epoch,
			"trainLoss":   trainLoss,
			"valLoss":     valLoss,
			"valAccuracy": valAcc,
			"elapsed":     time.Since(epochStart).Round(time.Millisecond).String(),
		}).Info("epoch complete")

		if !t.hasBest || valLoss < t.bestLoss {
			params, err := checkpoints.Capture(t.model.Parameters())
			if err != nil {
				return fmt.Errorf("capturing best model: %w", err)
			}
			t.bestParams = params
			t.bestEpoch = epoch
			t.bestLoss = valLoss
			t.bestAccuracy = valAcc
			t.hasBest = true
		}
	}

	if err := t.finalize(); err != nil {
		return err
	}
	t.log.WithField("elapsed", time.Since(runStart).Round(time.Second).String()).Info("training finished")
	return nil
}

// finalize persists the best and final-epoch models.
func (t *Trainer) finalize() error {
	t.log.WithFields(logrus.Fields{
		"epoch":       t.bestEpoch,
		"valLoss":     t.bestLoss,
		"valAccuracy": t.bestAccuracy,
	}).Info("saving models, best model found on validation")

	meta := checkpoints.Metadata{
		CreatedAt:      time.Now().UTC(),
		Framework:      "go-emotion",
		SimulationName: t.cfg.SimulationName,
	}

	best := &checkpoints.Checkpoint{
		Params:      t.bestParams,
		Epoch:       t.bestEpoch,
		ValLoss:     t.bestLoss,
		ValAccuracy: t.bestAccuracy,
		Metadata:    meta,
	}
	if err := checkpoints.Save(best, checkpoints.BestPath(t.cfg.Paths.ModelRoot, t.cfg.SimulationName)); err != nil {
		return fmt.Errorf("saving best model: %w", err)
	}

	lastParams, err := checkpoints.Capture(t.model.Parameters())
	if err != nil {
		return fmt.Errorf("capturing final model: %w", err)
	}
	last := &checkpoints.Checkpoint{
		Params:   lastParams,
		Epoch:    t.cfg.NumEpochs - 1,
		Metadata: meta,
	}
	if err := checkpoints.Save(last, checkpoints.LastPath(t.cfg.Paths.ModelRoot, t.cfg.SimulationName, t.cfg.NumEpochs)); err != nil {
		return fmt.Errorf("saving final model: %w", err)
	}
	return nil
}

// BestEpoch reports which epoch produced the best validation loss.
func (t *Trainer) BestEpoch() (epoch int, valLoss float64, ok bool) {
	return t.bestEpoch, t.bestLoss, t.hasBest
}

// Train loads a run config and executes the full training loop.
func Train(configPath string, logger *logrus.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	t := NewTrainer(cfg, logger)
	if err := t.Init(); err != nil {
		return err
	}
	return t.Run()
}
