package types

import "errors"

// Failure classes surfaced by jobs. Handlers map these to HTTP status codes;
// everything else is wrapped with fmt.Errorf("%w") so errors.Is still matches.
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrAudioNotFound     = errors.New("audio file not found")
	ErrAudioUnreadable   = errors.New("audio file unreadable")
	ErrModelUnavailable  = errors.New("model unavailable")
	ErrRecognition       = errors.New("recognition failed")
	ErrPersist           = errors.New("failed to persist results")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserExists        = errors.New("user already exists")
	ErrSampleNotFound    = errors.New("sample not found")
	ErrEmptyDataset      = errors.New("no training examples found")
	ErrSaveCheckpoint    = errors.New("failed to save checkpoint")
)
