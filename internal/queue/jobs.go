package queue

import (
	"context"
	"time"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// FineTuneParams are the knobs for one fine-tune run.
type FineTuneParams struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
}

func (p FineTuneParams) withDefaults() FineTuneParams {
	if p.Epochs <= 0 {
		p.Epochs = 3
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 2
	}
	if p.LearningRate <= 0 {
		p.LearningRate = 1e-5
	}
	return p
}

// Job represents one queued transcription or fine-tune run.
type Job struct {
	ID        string
	Kind      string
	User      string
	InputFile string // original filename as submitted
	FilePath  string // staged audio (transcription jobs)
	Params    FineTuneParams
	CreatedAt time.Time

	Status         string
	Error          string
	Result         *types.TranscriptionResult
	TranscriptFile string
	SampleDir      string
	Checkpoint     string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTranscribeJob creates a queued transcription job.
func NewTranscribeJob(id, user, inputFile, filePath string) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	return &Job{
		ID:        id,
		Kind:      types.KindTranscribe,
		User:      user,
		InputFile: inputFile,
		FilePath:  filePath,
		Status:    types.StatusQueued,
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// NewFineTuneJob creates a queued fine-tune job.
func NewFineTuneJob(id, user string, params FineTuneParams) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	return &Job{
		ID:        id,
		Kind:      types.KindFineTune,
		User:      user,
		Params:    params.withDefaults(),
		Status:    types.StatusQueued,
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Cancel requests cooperative cancellation. The job stops at the next phase
// or batch boundary.
func (j *Job) Cancel() {
	j.cancel()
}

func (j *Job) cancelled() error {
	return j.ctx.Err()
}
