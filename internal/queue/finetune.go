package queue

import (
	"fmt"
	"log"
	"math/rand"
	"strings"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/audio"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/model"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/progress"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// runFineTune is the personalization pipeline:
// CollectingExamples -> Training(epoch, step) -> Saving -> Done.
// Per-example failures are logged and skipped, never fatal; a batch in which
// every example failed skips its optimizer step.
func (p *Pool) runFineTune(job *Job, rep *progress.Reporter) error {
	params := job.Params

	// CollectingExamples
	rep.Reset(fmt.Sprintf("Collecting training examples for %s...", job.User))
	examples, err := p.recorder.Examples(job.User)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrEmptyDataset, err)
	}
	if len(examples) == 0 {
		return fmt.Errorf("%w: user %s has no corrected samples", types.ErrEmptyDataset, job.User)
	}
	log.Printf("Fine-tune %s: %d examples, %d epochs, batch size %d, lr %g",
		job.ID, len(examples), params.Epochs, params.BatchSize, params.LearningRate)

	baseName, err := p.checkpoints.Active(job.User)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrModelUnavailable, err)
	}
	baseDir, _ := p.checkpoints.ActiveDir(job.User)

	// A detached handle: training must not share weights with the
	// transcription worker's cached handle.
	mh, err := p.gateway.LoadDetached(baseDir)
	if err != nil {
		return err
	}
	defer p.gateway.Release(mh)

	// Training
	batchesPerEpoch := (len(examples) + params.BatchSize - 1) / params.BatchSize
	totalSteps := params.Epochs * batchesPerEpoch
	step := 0
	skipped := 0
	var finalAvgLoss float64

	order := make([]int, len(examples))
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= params.Epochs; epoch++ {
		rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var epochLoss float64
		epochCount := 0

		for start := 0; start < len(order); start += params.BatchSize {
			if err := job.cancelled(); err != nil {
				return err
			}

			end := start + params.BatchSize
			if end > len(order) {
				end = len(order)
			}

			if err := p.gateway.ZeroGrad(mh); err != nil {
				return fmt.Errorf("%w: %v", types.ErrModelUnavailable, err)
			}

			batchValid := 0
			for _, idx := range order[start:end] {
				ex := examples[idx]
				loss, err := p.trainOne(mh, ex)
				if err != nil {
					log.Printf("Fine-tune %s: skipping example %s: %v", job.ID, ex.SampleID, err)
					skipped++
					continue
				}
				epochLoss += loss
				epochCount++
				batchValid++
			}

			step++
			if batchValid > 0 {
				if err := p.gateway.OptimizerStep(mh, params.LearningRate); err != nil {
					return fmt.Errorf("%w: %v", types.ErrModelUnavailable, err)
				}
			} else {
				// no gradient was accumulated, an optimizer step would be a
				// zero-update at best
				log.Printf("Fine-tune %s: all examples in batch failed, skipping optimizer step", job.ID)
			}

			avgLoss := 0.0
			if epochCount > 0 {
				avgLoss = epochLoss / float64(epochCount)
			}
			finalAvgLoss = avgLoss

			// 100 is reserved for the terminal event
			pct := float64(step) / float64(totalSteps) * 100
			if pct > 99 {
				pct = 99
			}
			rep.Emit(pct, fmt.Sprintf("Epoch %d/%d, step %d/%d, avg loss %.4f",
				epoch, params.Epochs, step, totalSteps, avgLoss))
		}
	}

	if skipped > 0 {
		log.Printf("Fine-tune %s: %d example evaluations skipped", job.ID, skipped)
	}

	// Saving
	rep.Emit(99, "Saving checkpoint...")
	name, dir, err := p.checkpoints.NewDir(job.User)
	if err != nil {
		return err
	}
	if err := p.gateway.Save(mh, dir); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSaveCheckpoint, err)
	}

	parent := baseName
	if parent == "" {
		parent = p.baseModel
	}
	meta := types.TrainingMetadata{
		Timestamp:    strings.TrimPrefix(name, "model_"),
		BaseModel:    parent,
		Epochs:       params.Epochs,
		BatchSize:    params.BatchSize,
		LearningRate: params.LearningRate,
		FinalLoss:    finalAvgLoss,
		DatasetSize:  len(examples),
		Completed:    true,
	}
	if err := p.checkpoints.WriteMetadata(dir, meta, baseName); err != nil {
		return err
	}
	if err := p.checkpoints.SetActive(job.User, name); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSaveCheckpoint, err)
	}

	if p.backup != nil {
		if _, err := p.backup.UploadCheckpointInfo(job.User, name, meta); err != nil {
			log.Printf("WARNING: Drive backup of checkpoint metadata failed: %v", err)
		}
	}

	p.mu.Lock()
	job.Checkpoint = name
	p.mu.Unlock()

	rep.Finish(100, fmt.Sprintf("Checkpoint saved: %s (final loss %.4f)", name, finalAvgLoss))
	return nil
}

// trainOne normalizes one example's audio and backpropagates its loss.
func (p *Pool) trainOne(mh model.Handle, ex types.TrainingExample) (float64, error) {
	handle, err := audio.Validate(ex.AudioPath)
	if err != nil {
		return 0, err
	}
	samples, _, err := p.ingest.Normalize(handle)
	if err != nil {
		return 0, err
	}
	return p.gateway.TrainStep(mh, samples, ex.CorrectedText)
}
