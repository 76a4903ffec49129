package dataset

import (
	"fmt"
	"log"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// CorrectionRecorder turns user-supplied corrections into training examples.
// Recording and training are decoupled: a user can batch many corrections
// before starting a fine-tune run.
type CorrectionRecorder struct {
	store *Store
}

// NewCorrectionRecorder creates a recorder over the given store.
func NewCorrectionRecorder(store *Store) *CorrectionRecorder {
	return &CorrectionRecorder{store: store}
}

// Record persists the correction for a sample and returns the derived
// training example. The example copies what it needs so later edits to the
// sample don't affect a fine-tune run already holding it.
func (r *CorrectionRecorder) Record(user, sampleID, correctedBy, correctedText string) (*types.TrainingExample, error) {
	sample, err := r.store.GetSample(user, sampleID)
	if err != nil {
		return nil, err
	}
	if sample.AudioFile == "" {
		return nil, fmt.Errorf("%w: sample %s has no audio", types.ErrSampleNotFound, sampleID)
	}

	if _, err := r.store.AttachCorrection(user, sampleID, correctedBy, correctedText); err != nil {
		return nil, err
	}
	log.Printf("Correction recorded for sample %s/%s (%d chars)", user, sampleID, len(correctedText))

	return &types.TrainingExample{
		SampleID:      sampleID,
		AudioPath:     sample.AudioFile,
		OriginalText:  sample.Transcript.Text,
		CorrectedText: correctedText,
	}, nil
}

// Examples collects the training examples for every corrected sample in the
// user's dataset partition, in chronological order.
func (r *CorrectionRecorder) Examples(user string) ([]types.TrainingExample, error) {
	samples, err := r.store.ListSamples(user)
	if err != nil {
		return nil, err
	}

	var examples []types.TrainingExample
	for _, sample := range samples {
		if sample.Correction == nil || sample.AudioFile == "" {
			continue
		}
		examples = append(examples, types.TrainingExample{
			SampleID:      sample.ID,
			AudioPath:     sample.AudioFile,
			OriginalText:  sample.Correction.OriginalText,
			CorrectedText: sample.Correction.CorrectedText,
		})
	}
	return examples, nil
}
