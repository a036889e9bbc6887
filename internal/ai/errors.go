package ai

import "errors"

var (
	// ErrGenerationFailed indicates the model call failed; callers must show
	// a user-safe fallback instead of propagating it.
	ErrGenerationFailed = errors.New("response generation failed")

	// ErrMissingMedia indicates a reply needed a locally retrieved media file
	// and none was available or readable.
	ErrMissingMedia = errors.New("missing media file")

	// ErrTranscriptionFailed indicates audio could not be transcribed.
	ErrTranscriptionFailed = errors.New("audio transcription failed")

	// ErrUnsupportedModality indicates no generation path exists for the
	// message type.
	ErrUnsupportedModality = errors.New("unsupported message modality")
)
