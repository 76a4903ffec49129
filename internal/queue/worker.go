// Package queue runs the two long-lived job kinds, transcription and
// fine-tuning, on their own background workers so neither blocks the HTTP
// surface. One worker per kind keeps each kind serialized; a fine-tune job
// loads its own model handle, so the kinds never contend for weights.
package queue

import (
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/audio"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/dataset"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/model"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/progress"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/storage"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// Pool owns the job queues and the components the jobs drive.
type Pool struct {
	transcribeQueue chan *Job
	finetuneQueue   chan *Job

	gateway     model.Gateway
	baseModel   string
	language    string
	ingest      Ingest
	store       *dataset.Store
	recorder    *dataset.CorrectionRecorder
	registry    *storage.Registry
	transcripts *storage.Transcripts
	checkpoints *storage.Checkpoints
	backup      *storage.DriveBackup // nil when Drive is not configured
	hub         *progress.Hub

	mu   sync.RWMutex
	jobs map[string]*Job
}

// Ingest is the audio-side dependency of transcription and training jobs.
type Ingest interface {
	Normalize(h *audio.Handle) (samples []float32, sampleRate int, err error)
}

// Deps bundles the pool's collaborators.
type Deps struct {
	Gateway     model.Gateway
	BaseModel   string
	Language    string
	Ingest      Ingest
	Store       *dataset.Store
	Recorder    *dataset.CorrectionRecorder
	Registry    *storage.Registry
	Transcripts *storage.Transcripts
	Checkpoints *storage.Checkpoints
	Backup      *storage.DriveBackup
	Hub         *progress.Hub
}

// NewPool creates a pool; Start launches its workers.
func NewPool(deps Deps) *Pool {
	return &Pool{
		transcribeQueue: make(chan *Job, 100),
		finetuneQueue:   make(chan *Job, 100),
		gateway:         deps.Gateway,
		baseModel:       deps.BaseModel,
		language:        deps.Language,
		ingest:          deps.Ingest,
		store:           deps.Store,
		recorder:        deps.Recorder,
		registry:        deps.Registry,
		transcripts:     deps.Transcripts,
		checkpoints:     deps.Checkpoints,
		backup:          deps.Backup,
		hub:             deps.Hub,
		jobs:            make(map[string]*Job),
	}
}

// Start launches one worker per job kind.
func (p *Pool) Start() {
	log.Println("Starting job workers (transcribe, finetune)")
	go p.worker(types.KindTranscribe, p.transcribeQueue)
	go p.worker(types.KindFineTune, p.finetuneQueue)
}

// Enqueue adds a job to its kind's queue.
func (p *Pool) Enqueue(job *Job) {
	p.mu.Lock()
	p.jobs[job.ID] = job
	p.mu.Unlock()

	switch job.Kind {
	case types.KindFineTune:
		p.finetuneQueue <- job
	default:
		p.transcribeQueue <- job
	}
	log.Printf("Job %s enqueued (kind: %s, user: %s)", job.ID, job.Kind, job.User)
}

// Job returns a snapshot of the job's externally visible state.
func (p *Pool) Job(id string) (*Job, bool) {
	p.mu.RLock()
	job, ok := p.jobs[id]
	p.mu.RUnlock()
	if !ok {
		return nil, false
	}

	p.mu.RLock()
	snapshot := &Job{
		ID:             job.ID,
		Kind:           job.Kind,
		User:           job.User,
		InputFile:      job.InputFile,
		Params:         job.Params,
		CreatedAt:      job.CreatedAt,
		Status:         job.Status,
		Error:          job.Error,
		Result:         job.Result,
		TranscriptFile: job.TranscriptFile,
		SampleDir:      job.SampleDir,
		Checkpoint:     job.Checkpoint,
	}
	p.mu.RUnlock()
	return snapshot, true
}

func (p *Pool) setStatus(job *Job, status, errMsg string) {
	p.mu.Lock()
	job.Status = status
	job.Error = errMsg
	p.mu.Unlock()
}

// worker processes jobs of one kind, one at a time.
func (p *Pool) worker(kind string, jobs <-chan *Job) {
	log.Printf("Worker started (kind: %s)", kind)

	for job := range jobs {
		func() {
			rep := p.hub.Reporter(job.ID)
			defer rep.Close()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Worker %s: PANIC processing job %s: %v\n%s",
						kind, job.ID, r, string(debug.Stack()))
					p.setStatus(job, types.StatusFailed, fmt.Sprintf("worker panic: %v", r))
					rep.Finish(100, "Job failed")
					p.cleanupTempFile(job.FilePath)
				}
			}()

			p.setStatus(job, types.StatusProcessing, "")

			var err error
			switch job.Kind {
			case types.KindFineTune:
				err = p.runFineTune(job, rep)
			default:
				err = p.runTranscription(job, rep)
			}

			if err != nil {
				log.Printf("Worker %s: job %s failed: %v", kind, job.ID, err)
				p.setStatus(job, types.StatusFailed, err.Error())
				rep.Finish(100, fmt.Sprintf("Job failed: %v", err))
				return
			}

			p.setStatus(job, types.StatusCompleted, "")
			log.Printf("Worker %s: job %s completed", kind, job.ID)
		}()
	}
}

// cleanupTempFile removes a staged temp file.
func (p *Pool) cleanupTempFile(filePath string) {
	if filePath == "" {
		return
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to cleanup temp file %s: %v", filePath, err)
	}
}

// backoff waits before retry attempt n (1-based).
func backoff(attempt int) {
	time.Sleep(time.Duration(attempt*attempt) * time.Second)
}
