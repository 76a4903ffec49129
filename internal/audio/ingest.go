package audio

import (
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// SampleRate is the rate the model expects
const SampleRate = 16000

var supportedFormats = []string{".wav", ".mp3", ".m4a"}

// Handle is a validated audio source
type Handle struct {
	Path string
	Ext  string
}

// Ingest validates audio sources and normalizes them for the model
type Ingest struct {
	tempDir string
}

// NewIngest creates a new audio ingest using tempDir for intermediate files
func NewIngest(tempDir string) *Ingest {
	return &Ingest{tempDir: tempDir}
}

// Validate checks that path exists and carries a supported extension
func Validate(path string) (*Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrAudioNotFound, path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	supported := false
	for _, format := range supportedFormats {
		if ext == format {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedFormat, ext)
	}

	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: empty file %s", types.ErrAudioUnreadable, path)
	}

	// Cheap container check for WAV; mp3/m4a are left to the ffmpeg decode
	if ext == ".wav" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrAudioUnreadable, err)
		}
		var hdr [12]byte
		n, _ := f.Read(hdr[:])
		f.Close()
		if n < 12 || string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
			return nil, fmt.Errorf("%w: malformed WAV header in %s", types.ErrAudioUnreadable, path)
		}
	}

	return &Handle{Path: path, Ext: ext}, nil
}

// Normalize converts the source to 16kHz mono and returns float32 samples.
// The intermediate file is removed before returning; the original is untouched.
func (in *Ingest) Normalize(h *Handle) ([]float32, int, error) {
	outputPath := filepath.Join(in.tempDir, fmt.Sprintf("normalized_%s.wav", uuid.New().String()))

	// FFmpeg command: convert to 16kHz mono WAV
	cmd := exec.Command("ffmpeg",
		"-i", h.Path,
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-ac", "1",          // Mono
		"-c:a", "pcm_s16le", // 16-bit PCM
		"-y",                // Overwrite output
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: ffmpeg failed: %v\nOutput: %s", types.ErrAudioUnreadable, err, string(output))
	}
	defer os.Remove(outputPath)

	samples, rate, err := DecodeWAV(outputPath)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", types.ErrAudioUnreadable, err)
	}

	// The model contract requires a finite-valued buffer
	for i, s := range samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			samples[i] = 0
		}
	}

	return samples, rate, nil
}

// ValidFormat reports whether filename carries a supported audio extension
func ValidFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}
