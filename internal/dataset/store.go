// Package dataset is the on-disk store of recognition samples. Each sample is
// one timestamp-keyed directory holding the audio copy, the transcript, and
// the optional annotation/correction added later.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// Store manages per-user sample directories under the data root.
type Store struct {
	root string
	mu   sync.Mutex // serializes sample-id allocation
}

// NewStore creates a store rooted at dataRoot.
func NewStore(dataRoot string) *Store {
	return &Store{root: dataRoot}
}

// UserDir returns the directory owned by user.
func (s *Store) UserDir(user string) string {
	return filepath.Join(s.root, "users", user)
}

func (s *Store) datasetDir(user string) string {
	return filepath.Join(s.UserDir(user), "dataset")
}

// CreateSample copies sourceAudio into a new timestamp-keyed sample directory
// and writes transcript.txt plus transcript.json. Two creations within the
// same second yield distinct ids; an existing directory is never reused.
func (s *Store) CreateSample(user, sourceAudio string, transcript types.Transcript) (*types.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.datasetDir(user)
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPersist, err)
	}

	id := time.Now().Format("20060102_150405")
	dir := filepath.Join(base, id)
	// os.Mkdir fails on collision instead of silently merging two samples
	for n := 2; ; n++ {
		err := os.Mkdir(dir, 0755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("%w: %v", types.ErrPersist, err)
		}
		id = fmt.Sprintf("%s_%d", time.Now().Format("20060102_150405"), n)
		dir = filepath.Join(base, id)
	}

	if transcript.Metadata.Timestamp == "" {
		transcript.Metadata.Timestamp = id
	}

	audioName := "audio" + strings.ToLower(filepath.Ext(sourceAudio))
	if err := copyFile(sourceAudio, filepath.Join(dir, audioName)); err != nil {
		return nil, fmt.Errorf("%w: failed to copy audio: %v", types.ErrPersist, err)
	}

	if err := writeFileAtomic(filepath.Join(dir, "transcript.txt"), []byte(transcript.Text)); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPersist, err)
	}
	if err := writeJSONAtomic(filepath.Join(dir, "transcript.json"), transcript); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPersist, err)
	}

	return &types.Sample{
		ID:         id,
		User:       user,
		Dir:        dir,
		AudioFile:  filepath.Join(dir, audioName),
		Transcript: transcript,
	}, nil
}

// ListSamples returns the user's samples ordered by id ascending
// (chronological). A user with no dataset directory has no samples.
func (s *Store) ListSamples(user string) ([]types.Sample, error) {
	entries, err := os.ReadDir(s.datasetDir(user))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)

	samples := make([]types.Sample, 0, len(ids))
	for _, id := range ids {
		sample, err := s.loadSample(user, id)
		if err != nil {
			continue // skip damaged sample dirs, they are not this caller's problem
		}
		samples = append(samples, *sample)
	}
	return samples, nil
}

// GetSample loads one sample by id.
func (s *Store) GetSample(user, id string) (*types.Sample, error) {
	sample, err := s.loadSample(user, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s", types.ErrSampleNotFound, user, id)
	}
	return sample, nil
}

// AttachAnnotation upserts annotation.json for the sample. Last write wins.
func (s *Store) AttachAnnotation(user, id string, data map[string]interface{}) error {
	dir := filepath.Join(s.datasetDir(user), id)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s/%s", types.ErrSampleNotFound, user, id)
	}
	return writeJSONAtomic(filepath.Join(dir, "annotation.json"), data)
}

// AttachCorrection upserts the correction under the sample's training_data
// directory: training_info.json plus corrected_text.txt. Last write wins.
func (s *Store) AttachCorrection(user, id, correctedBy, correctedText string) (*types.Correction, error) {
	sample, err := s.GetSample(user, id)
	if err != nil {
		return nil, err
	}

	trainingDir := filepath.Join(sample.Dir, "training_data")
	if err := os.MkdirAll(trainingDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPersist, err)
	}

	corr := &types.Correction{
		User:          correctedBy,
		Date:          id,
		AudioFile:     filepath.Base(sample.AudioFile),
		OriginalText:  sample.Transcript.Text,
		CorrectedText: correctedText,
		Timestamp:     time.Now().Format("20060102_150405"),
	}

	if err := writeJSONAtomic(filepath.Join(trainingDir, "training_info.json"), corr); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPersist, err)
	}
	if err := writeFileAtomic(filepath.Join(trainingDir, "corrected_text.txt"), []byte(correctedText)); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPersist, err)
	}

	return corr, nil
}

func (s *Store) loadSample(user, id string) (*types.Sample, error) {
	dir := filepath.Join(s.datasetDir(user), id)

	data, err := os.ReadFile(filepath.Join(dir, "transcript.json"))
	if err != nil {
		return nil, err
	}
	var transcript types.Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, err
	}

	sample := &types.Sample{
		ID:         id,
		User:       user,
		Dir:        dir,
		Transcript: transcript,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "audio") {
			sample.AudioFile = filepath.Join(dir, e.Name())
			break
		}
	}

	if raw, err := os.ReadFile(filepath.Join(dir, "annotation.json")); err == nil {
		var ann map[string]interface{}
		if json.Unmarshal(raw, &ann) == nil {
			sample.Annotation = ann
		}
	}

	if raw, err := os.ReadFile(filepath.Join(dir, "training_data", "training_info.json")); err == nil {
		var corr types.Correction
		if json.Unmarshal(raw, &corr) == nil {
			sample.Correction = &corr
		}
	}

	return sample, nil
}

// writeFileAtomic writes data via a temp file renamed into place so concurrent
// readers never observe a torn write.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
