package queue

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/audio"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/progress"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// runTranscription is the recognition pipeline:
// Validating -> ModelLoading -> Recognizing -> Persisting -> Done.
// The progress milestones (0, 5, 10, 15, 80, 85, 90, 95, 100) are fixed so
// progress bars stay comparable across runs.
func (p *Pool) runTranscription(job *Job, rep *progress.Reporter) error {
	defer p.cleanupTempFile(job.FilePath)

	// Validating
	rep.Reset(fmt.Sprintf("Reading audio file: %s", job.InputFile))
	handle, err := audio.Validate(job.FilePath)
	if err != nil {
		return err
	}
	if err := job.cancelled(); err != nil {
		return err
	}

	// ModelLoading
	rep.Emit(5, "Loading model...")
	loadStart := time.Now()
	checkpointDir, err := p.checkpoints.ActiveDir(job.User)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrModelUnavailable, err)
	}
	mh, err := p.gateway.Load(checkpointDir)
	if err != nil {
		return err
	}
	rep.Emit(10, fmt.Sprintf("Model ready (took %.2fs)", time.Since(loadStart).Seconds()))
	if err := job.cancelled(); err != nil {
		return err
	}

	// Recognizing
	rep.Emit(15, "Running recognition...")
	recognizeStart := time.Now()
	samples, rate, err := p.ingest.Normalize(handle)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrRecognition, err)
	}
	result, err := p.gateway.Transcribe(mh, samples, rate, p.language, func(phase string, pct int, msg string) {
		// decode sub-progress maps into the 15-80 band
		if msg == "" {
			msg = fmt.Sprintf("Running recognition... %d%%", pct)
		}
		rep.Range(pct, 100, 15, 80, msg)
	})
	if err != nil {
		return err
	}
	result.JobID = job.ID
	result.WordCount = len(strings.Fields(result.Text))
	result.ProcessTime = time.Since(recognizeStart).Seconds()
	result.ProcessedAt = time.Now()
	rep.Emit(80, fmt.Sprintf("Recognition complete (took %.2fs)", result.ProcessTime))
	if err := job.cancelled(); err != nil {
		return err
	}

	// Persisting: transcript file, then the dataset sample, then the registry
	// entry; the registry is written last so it never references a
	// half-written sample.
	rep.Emit(85, "Saving transcript...")
	transcriptPath, err := p.transcripts.Save(job.User, result)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrPersist, err)
	}
	rep.Emit(90, fmt.Sprintf("Transcript saved: %s", transcriptPath))

	rep.Emit(95, "Saving dataset sample...")
	transcript := types.Transcript{
		Text:     result.Text,
		Segments: result.Segments,
		Metadata: types.SampleMetadata{
			Model:       result.Model,
			ProcessTime: result.ProcessTime,
			AudioFile:   job.InputFile,
		},
	}
	sample, err := p.store.CreateSample(job.User, job.FilePath, transcript)
	if err != nil {
		return err
	}

	entry := types.HistoryEntry{
		Date:           sample.ID,
		InputFile:      job.InputFile,
		OutputText:     result.Text,
		TranscriptFile: transcriptPath,
		DatasetDir:     sample.Dir,
	}
	if err := p.registry.AppendHistory(job.User, entry); err != nil {
		return fmt.Errorf("%w: %v", types.ErrPersist, err)
	}

	// Drive backup is best-effort: local persistence already succeeded
	if p.backup != nil {
		var backupErr error
		for attempt := 1; attempt <= 3; attempt++ {
			if _, backupErr = p.backup.UploadSample(sample); backupErr == nil {
				break
			}
			log.Printf("Drive backup attempt %d/3 failed for sample %s: %v", attempt, sample.ID, backupErr)
			if attempt < 3 {
				backoff(attempt)
			}
		}
		if backupErr != nil {
			log.Printf("WARNING: Drive backup failed after 3 attempts, sample %s is local only", sample.ID)
		}
	}

	p.mu.Lock()
	job.Result = result
	job.TranscriptFile = transcriptPath
	job.SampleDir = sample.Dir
	p.mu.Unlock()

	rep.Finish(100, fmt.Sprintf("Dataset saved: %s", filepath.Base(sample.Dir)))
	return nil
}
