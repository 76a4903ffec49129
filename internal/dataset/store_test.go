package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

// writeSourceAudio creates a fake audio file to ingest into a sample.
func writeSourceAudio(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("RIFFxxxxWAVEfake audio payload"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testTranscript(text string) types.Transcript {
	return types.Transcript{
		Text: text,
		Segments: []types.Segment{
			{Start: 0, End: 1.5, Text: "hello"},
			{Start: 1.5, End: 3.0, Text: "world"},
		},
		Metadata: types.SampleMetadata{
			Model:       "base",
			ProcessTime: 2.34,
			AudioFile:   "input.wav",
		},
	}
}

func TestCreateSampleWritesLayout(t *testing.T) {
	store := newTestStore(t)
	src := writeSourceAudio(t, t.TempDir(), "input.wav")

	sample, err := store.CreateSample("alice", src, testTranscript("hello world"))
	if err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	for _, name := range []string{"audio.wav", "transcript.txt", "transcript.json"} {
		if _, err := os.Stat(filepath.Join(sample.Dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	// source file is untouched
	if _, err := os.Stat(src); err != nil {
		t.Errorf("source audio was moved: %v", err)
	}

	if sample.Transcript.Metadata.Timestamp != sample.ID {
		t.Errorf("metadata timestamp = %q, want sample id %q", sample.Transcript.Metadata.Timestamp, sample.ID)
	}
}

func TestCreateSampleSameSecondCollision(t *testing.T) {
	store := newTestStore(t)
	src := writeSourceAudio(t, t.TempDir(), "input.wav")

	// Two creations within one second must both succeed with distinct ids
	a, err := store.CreateSample("alice", src, testTranscript("first"))
	if err != nil {
		t.Fatalf("first CreateSample: %v", err)
	}
	b, err := store.CreateSample("alice", src, testTranscript("second"))
	if err != nil {
		t.Fatalf("second CreateSample: %v", err)
	}

	if a.ID == b.ID {
		t.Fatalf("colliding sample ids: %s", a.ID)
	}

	first, err := store.GetSample("alice", a.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.GetSample("alice", b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.Transcript.Text != "first" || second.Transcript.Text != "second" {
		t.Errorf("samples merged: %q / %q", first.Transcript.Text, second.Transcript.Text)
	}
}

func TestTranscriptRoundTrip(t *testing.T) {
	store := newTestStore(t)
	src := writeSourceAudio(t, t.TempDir(), "input.wav")
	want := testTranscript("round trip text")

	sample, err := store.CreateSample("alice", src, want)
	if err != nil {
		t.Fatal(err)
	}
	want.Metadata.Timestamp = sample.ID

	got, err := store.GetSample("alice", sample.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Transcript.Text != want.Text {
		t.Errorf("text = %q, want %q", got.Transcript.Text, want.Text)
	}
	if !reflect.DeepEqual(got.Transcript.Segments, want.Segments) {
		t.Errorf("segments = %+v, want %+v", got.Transcript.Segments, want.Segments)
	}
	if !reflect.DeepEqual(got.Transcript.Metadata, want.Metadata) {
		t.Errorf("metadata = %+v, want %+v", got.Transcript.Metadata, want.Metadata)
	}
}

func TestAttachAnnotationUpsert(t *testing.T) {
	store := newTestStore(t)
	src := writeSourceAudio(t, t.TempDir(), "input.wav")
	sample, err := store.CreateSample("alice", src, testTranscript("text"))
	if err != nil {
		t.Fatal(err)
	}

	if err := store.AttachAnnotation("alice", sample.ID, map[string]interface{}{"quality": "poor"}); err != nil {
		t.Fatal(err)
	}
	if err := store.AttachAnnotation("alice", sample.ID, map[string]interface{}{"quality": "good", "verified": true}); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetSample("alice", sample.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Annotation["quality"] != "good" {
		t.Errorf("annotation quality = %v, want good (last write wins)", got.Annotation["quality"])
	}
	if got.Annotation["verified"] != true {
		t.Errorf("annotation verified = %v, want true", got.Annotation["verified"])
	}
}

func TestAttachCorrectionUpsert(t *testing.T) {
	store := newTestStore(t)
	src := writeSourceAudio(t, t.TempDir(), "input.wav")
	sample, err := store.CreateSample("alice", src, testTranscript("orignal text"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.AttachCorrection("alice", sample.ID, "alice", "first fix"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AttachCorrection("alice", sample.ID, "alice", "final fix"); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetSample("alice", sample.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Correction == nil {
		t.Fatal("correction missing after attach")
	}
	if got.Correction.CorrectedText != "final fix" {
		t.Errorf("corrected text = %q, want %q (last write wins)", got.Correction.CorrectedText, "final fix")
	}
	if got.Correction.OriginalText != "orignal text" {
		t.Errorf("original text = %q", got.Correction.OriginalText)
	}

	data, err := os.ReadFile(filepath.Join(sample.Dir, "training_data", "corrected_text.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "final fix" {
		t.Errorf("corrected_text.txt = %q", string(data))
	}
}

func TestAttachUnknownSample(t *testing.T) {
	store := newTestStore(t)

	if err := store.AttachAnnotation("alice", "20990101_000000", map[string]interface{}{"a": 1}); !errors.Is(err, types.ErrSampleNotFound) {
		t.Errorf("annotation err = %v, want ErrSampleNotFound", err)
	}
	if _, err := store.AttachCorrection("alice", "20990101_000000", "alice", "fix"); !errors.Is(err, types.ErrSampleNotFound) {
		t.Errorf("correction err = %v, want ErrSampleNotFound", err)
	}
}

func TestListSamplesPerUserIsolation(t *testing.T) {
	store := newTestStore(t)
	src := writeSourceAudio(t, t.TempDir(), "input.wav")

	alice, err := store.CreateSample("alice", src, testTranscript("alice speaks"))
	if err != nil {
		t.Fatal(err)
	}
	bob, err := store.CreateSample("bob", src, testTranscript("bob speaks"))
	if err != nil {
		t.Fatal(err)
	}

	aliceSamples, err := store.ListSamples("alice")
	if err != nil {
		t.Fatal(err)
	}
	bobSamples, err := store.ListSamples("bob")
	if err != nil {
		t.Fatal(err)
	}

	if len(aliceSamples) != 1 || aliceSamples[0].ID != alice.ID {
		t.Errorf("alice samples = %+v", aliceSamples)
	}
	if len(bobSamples) != 1 || bobSamples[0].ID != bob.ID {
		t.Errorf("bob samples = %+v", bobSamples)
	}
}

func TestListSamplesUnknownUserIsEmpty(t *testing.T) {
	store := newTestStore(t)
	samples, err := store.ListSamples("nobody")
	if err != nil {
		t.Fatalf("ListSamples: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("samples = %+v, want none", samples)
	}
}

func TestListSamplesChronological(t *testing.T) {
	store := newTestStore(t)
	src := writeSourceAudio(t, t.TempDir(), "input.wav")

	var ids []string
	for i := 0; i < 3; i++ {
		s, err := store.CreateSample("alice", src, testTranscript("x"))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, s.ID)
	}

	samples, err := store.ListSamples("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	for i, s := range samples {
		if s.ID != ids[i] {
			t.Errorf("samples[%d].ID = %s, want %s", i, s.ID, ids[i])
		}
	}
}
