package transcribe

import "context"

// Audio is a voice note to transcribe.
type Audio struct {
	// Data is the raw audio payload.
	Data []byte
	// Filename hints the container format, e.g. "note.ogg".
	Filename string
	// ContentType is the MIME type reported by the channel.
	ContentType string
	// Language is an optional ISO 639-1 hint, e.g. "fr".
	Language string
}

// Transcriber converts a voice note to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}
