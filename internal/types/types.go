package types

import "time"

// Job status constants
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Job kind constants
const (
	KindTranscribe = "transcribe"
	KindFineTune   = "finetune"
)

// Segment represents a timestamped span of a transcript
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult represents the output of one recognition pass
type TranscriptionResult struct {
	JobID       string
	Text        string
	Language    string
	Duration    float64
	Segments    []Segment
	WordCount   int
	ProcessTime float64
	Model       string
	ProcessedAt time.Time
}

// SampleMetadata is the metadata block persisted in transcript.json
type SampleMetadata struct {
	Timestamp   string  `json:"timestamp"`
	Model       string  `json:"model"`
	ProcessTime float64 `json:"process_time"`
	AudioFile   string  `json:"audio_file"`
}

// Transcript is the structured transcript.json document stored with a sample
type Transcript struct {
	Text     string         `json:"text"`
	Segments []Segment      `json:"segments"`
	Metadata SampleMetadata `json:"metadata"`
}

// Correction records a user-supplied fix for a sample's transcript
type Correction struct {
	User          string `json:"user"`
	Date          string `json:"date"`
	AudioFile     string `json:"audio_file"`
	OriginalText  string `json:"original_text"`
	CorrectedText string `json:"corrected_text"`
	Timestamp     string `json:"timestamp"`
}

// Sample is one persisted recognition event
type Sample struct {
	ID         string                 `json:"id"`
	User       string                 `json:"user"`
	Dir        string                 `json:"dir"`
	AudioFile  string                 `json:"audio_file"`
	Transcript Transcript             `json:"transcript"`
	Annotation map[string]interface{} `json:"annotation,omitempty"`
	Correction *Correction            `json:"correction,omitempty"`
}

// TrainingExample is a correction-derived (audio, corrected text) pair.
// It copies the paths and text it needs so later sample edits don't leak
// into a running fine-tune job.
type TrainingExample struct {
	SampleID      string
	AudioPath     string
	OriginalText  string
	CorrectedText string
}

// TrainingMetadata is the training_info.json sidecar written next to a checkpoint
type TrainingMetadata struct {
	Timestamp    string  `json:"timestamp"`
	BaseModel    string  `json:"base_model"`
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	FinalLoss    float64 `json:"final_loss"`
	DatasetSize  int     `json:"dataset_size"`
	Completed    bool    `json:"completed"`
}

// Checkpoint is a saved model state plus its training metadata
type Checkpoint struct {
	Name     string           `json:"name"`
	Dir      string           `json:"dir"`
	Parent   string           `json:"parent,omitempty"`
	Active   bool             `json:"active"`
	Metadata TrainingMetadata `json:"metadata"`
}

// HistoryEntry is one row of a user's recognition history
type HistoryEntry struct {
	Date           string `json:"date"`
	InputFile      string `json:"input_file"`
	OutputText     string `json:"output_text"`
	TranscriptFile string `json:"transcript_file"`
	DatasetDir     string `json:"dataset_dir"`
}
