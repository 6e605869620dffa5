package texttospeech

type SessionOptions struct {
	// AudioCallback receives encoded audio in the session output format.
	AudioCallback func(audio []byte)
	// FinalCallback is called once the provider reported the last audio.
	FinalCallback func()
	// ErrorCallback is called when the session ends abnormally.
	ErrorCallback func(error)
}

type SessionOption func(*SessionOptions)

func WithAudioCallback(callback func([]byte)) SessionOption {
	return func(o *SessionOptions) { o.AudioCallback = callback }
}

func WithFinalCallback(callback func()) SessionOption {
	return func(o *SessionOptions) { o.FinalCallback = callback }
}

func WithErrorCallback(callback func(error)) SessionOption {
	return func(o *SessionOptions) { o.ErrorCallback = callback }
}

// NewSessionOptions applies opts over no-op callbacks.
func NewSessionOptions(opts ...SessionOption) SessionOptions {
	options := SessionOptions{
		AudioCallback: func([]byte) {},
		FinalCallback: func() {},
		ErrorCallback: func(error) {},
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Session is a single streaming synthesis. Speech is generated in the order
// text is sent.
type Session interface {
	// SendText queues text. With flush the provider synthesizes everything
	// queued so far without waiting for more text.
	SendText(text string, flush bool) error
	// EndOfText tells the provider no more text follows. The session finishes
	// once the remaining audio was delivered.
	EndOfText() error
	// Done is closed when the session finished, was closed or failed.
	Done() <-chan struct{}
	// Close ends the session immediately. Repeated calls are no-ops.
	Close() error
}

type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Style           float64 `json:"style"`
	Speed           float64 `json:"speed"`
}

func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.5, SimilarityBoost: 0.8, UseSpeakerBoost: false, Style: 0, Speed: 1.0}
}
