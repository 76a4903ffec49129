// Package model drives the external transcription/training runner. The runner
// is a subprocess (python by default) that owns the whisper model and speaks
// NDJSON on stdin/stdout: one Command per line in, a stream of Events out,
// terminated by a "result" or "error" event.
package model

import "github.com/nori1021/Personalized-Speech-Recognition/internal/types"

// Command is sent from the gateway to the runner.
type Command struct {
	Op           string   `json:"op"`
	Checkpoint   string   `json:"checkpoint,omitempty"`
	Audio        string   `json:"audio,omitempty"`
	Language     string   `json:"language,omitempty"`
	Task         string   `json:"task,omitempty"`
	Text         string   `json:"text,omitempty"`
	LearningRate *float64 `json:"learning_rate,omitempty"`
	SinglePass   *bool    `json:"single_pass,omitempty"`
	Dir          string   `json:"dir,omitempty"`
}

// Event is streamed back from the runner while an op executes.
type Event struct {
	Event    string          `json:"event"`
	Phase    string          `json:"phase,omitempty"`
	Percent  *int            `json:"percent,omitempty"`
	Message  string          `json:"message,omitempty"`
	Text     string          `json:"text,omitempty"`
	Language string          `json:"language,omitempty"`
	Segments []types.Segment `json:"segments,omitempty"`
	Loss     *float64        `json:"loss,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Runner ops
const (
	OpLoad           = "load"
	OpTranscribe     = "transcribe"
	OpTrainStep      = "train_step"
	OpOptimizerStep  = "optimizer_step"
	OpZeroGrad       = "zero_grad"
	OpSaveCheckpoint = "save_checkpoint"
	OpShutdown       = "shutdown"
)

// Event kinds
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
)

// BoolPtr returns a pointer to b. Convenience for building commands.
func BoolPtr(b bool) *bool { return &b }
