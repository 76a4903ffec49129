package model

import "github.com/nori1021/Personalized-Speech-Recognition/internal/types"

// ProgressFunc receives structured decode/train progress from the runner.
type ProgressFunc func(phase string, percent int, message string)

// Handle is an opaque reference to a loaded model instance. Access to one
// handle is serialized by the implementation; jobs that must not contend for
// weights (transcription vs. training) hold independent handles.
type Handle interface {
	Checkpoint() string
}

// Gateway is the boundary to the external transcription+training capability.
type Gateway interface {
	// Load returns a cached handle for the given checkpoint ref ("" = base
	// model). Loading is expensive; the handle is reused across calls.
	Load(checkpoint string) (Handle, error)

	// LoadDetached always loads a fresh, uncached instance. Used by fine-tune
	// jobs so training never shares weights with the transcription handle.
	// The caller releases it with Release.
	LoadDetached(checkpoint string) (Handle, error)

	// Release shuts down a detached handle.
	Release(h Handle)

	// Transcribe runs recognition over 16kHz mono samples. Output text is
	// approximate: deterministic for fixed weights and decode config but not
	// bit-identical across hardware.
	Transcribe(h Handle, samples []float32, sampleRate int, language string, progress ProgressFunc) (*types.TranscriptionResult, error)

	// TrainStep computes and backpropagates the loss for one (audio, text)
	// pair. The caller owns the optimizer step and zero-gradient boundary.
	TrainStep(h Handle, samples []float32, targetText string) (float64, error)

	// OptimizerStep applies one optimizer update over accumulated gradients.
	OptimizerStep(h Handle, learningRate float64) error

	// ZeroGrad clears accumulated gradients.
	ZeroGrad(h Handle) error

	// Save writes weights, optimizer state and dimensions to dir.
	Save(h Handle, dir string) error
}
