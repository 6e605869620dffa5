package speechtotext

import (
	"context"

	"github.com/koscakluka/ema-voice/core/audio"
)

// Transcriber turns one finished utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, blob audio.Blob, opts ...TranscriptionOption) (string, error)
}

type TranscriptionOptions struct {
	// Language is a BCP-47 or ISO-639 code. Empty lets the provider detect it.
	Language string

	PartialTranscriptionCallback func(transcript string)
}

type TranscriptionOption func(*TranscriptionOptions)

func NewTranscriptionOptions(opts ...TranscriptionOption) TranscriptionOptions {
	options := TranscriptionOptions{PartialTranscriptionCallback: func(string) {}}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Language = language
	}
}

func WithPartialTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if callback != nil {
			o.PartialTranscriptionCallback = callback
		}
	}
}
