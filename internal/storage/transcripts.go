package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// Transcripts writes the human-readable transcript files under each user's
// transcripts directory.
type Transcripts struct {
	dataRoot string
}

// NewTranscripts creates a transcript writer rooted at dataRoot.
func NewTranscripts(dataRoot string) *Transcripts {
	return &Transcripts{dataRoot: dataRoot}
}

// Save writes transcript_<timestamp>.txt (header, full text, per-segment
// lines) and returns its path. Existing files are never overwritten.
func (t *Transcripts) Save(user string, result *types.TranscriptionResult) (string, error) {
	dir := filepath.Join(t.dataRoot, "users", user, "transcripts")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create transcripts directory: %v", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("transcript_%s.txt", timestamp))
	for n := 2; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("transcript_%s_%d.txt", timestamp, n))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Processing time: %.2fs\n\n", result.ProcessTime)
	fmt.Fprintf(&b, "Full Transcript:\n%s\n\nDetailed Segments:\n", result.Text)
	for _, seg := range result.Segments {
		fmt.Fprintf(&b, "[%.2fs -> %.2fs] %s\n", seg.Start, seg.End, seg.Text)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to save transcript: %v", err)
	}
	return path, nil
}
