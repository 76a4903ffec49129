package model

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/audio"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// Runner implements Gateway by exec'ing the model runner subprocess, one
// process per loaded handle.
type Runner struct {
	command string // interpreter, e.g. "python"
	script  string // runner script path
	model   string // base model name, e.g. "base"
	device  string // "cpu" or "cuda"
	tempDir string

	mu      sync.Mutex
	handles map[string]*runnerHandle
}

// NewRunner creates a gateway backed by the configured runner command.
func NewRunner(command, script, modelName, device, tempDir string) *Runner {
	if modelName == "" {
		modelName = "base"
	}
	if device == "" {
		device = "cpu"
	}
	log.Printf("Model runner: %s %s (model: %s, device: %s)", command, script, modelName, device)
	return &Runner{
		command: command,
		script:  script,
		model:   modelName,
		device:  device,
		tempDir: tempDir,
		handles: make(map[string]*runnerHandle),
	}
}

type runnerHandle struct {
	checkpoint string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	out        *bufio.Scanner
	mu         sync.Mutex // serializes ops on this handle
}

func (h *runnerHandle) Checkpoint() string { return h.checkpoint }

// Load returns the cached handle for checkpoint, starting the runner on first use.
func (r *Runner) Load(checkpoint string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[checkpoint]; ok {
		return h, nil
	}

	h, err := r.start(checkpoint)
	if err != nil {
		return nil, err
	}
	r.handles[checkpoint] = h
	return h, nil
}

// LoadDetached starts a fresh runner process outside the cache.
func (r *Runner) LoadDetached(checkpoint string) (Handle, error) {
	return r.start(checkpoint)
}

// Release shuts down a detached handle. Cached handles are shut down by Close.
func (r *Runner) Release(h Handle) {
	rh, ok := h.(*runnerHandle)
	if !ok {
		return
	}
	rh.shutdown()
}

// Close shuts down every cached runner process.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ref, h := range r.handles {
		h.shutdown()
		delete(r.handles, ref)
	}
}

// Forget drops a cached handle so the next Load starts a fresh process.
// Called after a fine-tune run replaces the active checkpoint.
func (r *Runner) Forget(checkpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[checkpoint]; ok {
		h.shutdown()
		delete(r.handles, checkpoint)
	}
}

func (r *Runner) start(checkpoint string) (*runnerHandle, error) {
	start := time.Now()
	cmd := exec.Command(r.command, r.script,
		"--model", r.model,
		"--device", r.device,
	)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrModelUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrModelUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start runner: %v", types.ErrModelUnavailable, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024) // transcripts can be large

	h := &runnerHandle{
		checkpoint: checkpoint,
		cmd:        cmd,
		stdin:      stdin,
		out:        scanner,
	}

	if _, err := h.roundTrip(Command{Op: OpLoad, Checkpoint: checkpoint}, nil); err != nil {
		h.shutdown()
		return nil, fmt.Errorf("%w: %v", types.ErrModelUnavailable, err)
	}

	log.Printf("Model loaded (checkpoint: %q, took %.2fs)", checkpoint, time.Since(start).Seconds())
	return h, nil
}

// roundTrip sends one command and reads events until result or error.
// Progress events are forwarded to the callback when one is supplied.
func (h *runnerHandle) roundTrip(c Command, progress ProgressFunc) (*Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	line, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	if _, err := h.stdin.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("runner write failed: %v", err)
	}

	for h.out.Scan() {
		raw := strings.TrimSpace(h.out.Text())
		if raw == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			log.Printf("Skipping malformed runner output: %s", raw)
			continue
		}
		switch ev.Event {
		case EventProgress:
			if progress != nil && ev.Percent != nil {
				progress(ev.Phase, *ev.Percent, ev.Message)
			}
		case EventResult:
			return &ev, nil
		case EventError:
			return nil, fmt.Errorf("runner: %s", ev.Error)
		}
	}
	if err := h.out.Err(); err != nil {
		return nil, fmt.Errorf("runner read failed: %v", err)
	}
	return nil, fmt.Errorf("runner exited before replying")
}

func (h *runnerHandle) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if line, err := json.Marshal(Command{Op: OpShutdown}); err == nil {
		h.stdin.Write(append(line, '\n'))
	}
	h.stdin.Close()
	done := make(chan struct{})
	go func() {
		h.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		h.cmd.Process.Kill()
		<-done
	}
}

// Transcribe writes the samples to a temp WAV, runs the decode, and falls back
// to a single whole-clip pass if the chunked decode fails.
func (r *Runner) Transcribe(handle Handle, samples []float32, sampleRate int, language string, progress ProgressFunc) (*types.TranscriptionResult, error) {
	h, ok := handle.(*runnerHandle)
	if !ok {
		return nil, fmt.Errorf("%w: foreign handle", types.ErrModelUnavailable)
	}

	wavPath, err := r.writeTempWAV(samples, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrRecognition, err)
	}
	defer os.Remove(wavPath)

	cmd := Command{
		Op:       OpTranscribe,
		Audio:    wavPath,
		Language: language,
		Task:     "transcribe",
	}

	ev, err := h.roundTrip(cmd, progress)
	if err != nil {
		// Fallback: one whole-clip pass with no internal chunking
		log.Printf("Chunked decode failed (%v), retrying single-pass", err)
		cmd.SinglePass = BoolPtr(true)
		ev, err = h.roundTrip(cmd, progress)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrRecognition, err)
		}
	}

	segments := make([]types.Segment, len(ev.Segments))
	for i, seg := range ev.Segments {
		segments[i] = types.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		}
	}

	var duration float64
	if len(segments) > 0 {
		duration = segments[len(segments)-1].End
	}

	return &types.TranscriptionResult{
		Text:     strings.TrimSpace(ev.Text),
		Language: ev.Language,
		Duration: duration,
		Segments: segments,
		Model:    r.model,
	}, nil
}

// TrainStep backpropagates the loss for one (audio, text) pair and returns it.
func (r *Runner) TrainStep(handle Handle, samples []float32, targetText string) (float64, error) {
	h, ok := handle.(*runnerHandle)
	if !ok {
		return 0, fmt.Errorf("%w: foreign handle", types.ErrModelUnavailable)
	}

	wavPath, err := r.writeTempWAV(samples, audio.SampleRate)
	if err != nil {
		return 0, err
	}
	defer os.Remove(wavPath)

	ev, err := h.roundTrip(Command{Op: OpTrainStep, Audio: wavPath, Text: targetText}, nil)
	if err != nil {
		return 0, err
	}
	if ev.Loss == nil {
		return 0, fmt.Errorf("runner returned no loss")
	}
	return *ev.Loss, nil
}

// OptimizerStep applies one optimizer update over accumulated gradients.
func (r *Runner) OptimizerStep(handle Handle, learningRate float64) error {
	h, ok := handle.(*runnerHandle)
	if !ok {
		return fmt.Errorf("%w: foreign handle", types.ErrModelUnavailable)
	}
	_, err := h.roundTrip(Command{Op: OpOptimizerStep, LearningRate: &learningRate}, nil)
	return err
}

// ZeroGrad clears accumulated gradients.
func (r *Runner) ZeroGrad(handle Handle) error {
	h, ok := handle.(*runnerHandle)
	if !ok {
		return fmt.Errorf("%w: foreign handle", types.ErrModelUnavailable)
	}
	_, err := h.roundTrip(Command{Op: OpZeroGrad}, nil)
	return err
}

// Save writes model weights, optimizer state and dimensions to dir.
func (r *Runner) Save(handle Handle, dir string) error {
	h, ok := handle.(*runnerHandle)
	if !ok {
		return fmt.Errorf("%w: foreign handle", types.ErrModelUnavailable)
	}
	_, err := h.roundTrip(Command{Op: OpSaveCheckpoint, Dir: dir}, nil)
	return err
}

// BaseModel returns the configured base model name.
func (r *Runner) BaseModel() string { return r.model }

func (r *Runner) writeTempWAV(samples []float32, sampleRate int) (string, error) {
	path := filepath.Join(r.tempDir, fmt.Sprintf("model_input_%s.wav", uuid.New().String()))
	if err := audio.EncodeWAV(path, samples, sampleRate); err != nil {
		return "", fmt.Errorf("failed to stage audio for runner: %v", err)
	}
	return path, nil
}
