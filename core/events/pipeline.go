package events

const (
	KindSpeechAudioStarted  Kind = "pipeline.speech_audio_started"
	KindPipelineCompleted   Kind = "pipeline.completed"
	KindPipelineFailed      Kind = "pipeline.failed"
	KindPipelineInterrupted Kind = "pipeline.interrupted"
)

// SpeechAudioStarted marks the first audible synthesized audio of run Run.
type SpeechAudioStarted struct {
	Base
	Run uint64
}

func NewSpeechAudioStarted(run uint64) SpeechAudioStarted {
	return SpeechAudioStarted{Base: NewBase(KindSpeechAudioStarted), Run: run}
}

// PipelineCompleted resolves run Run. Audio is empty when the answer was
// already streamed to playback.
type PipelineCompleted struct {
	Base
	Run        uint64
	Transcript string
	Answer     string
	Audio      []byte
}

func NewPipelineCompleted(run uint64, transcript, answer string, audio []byte) PipelineCompleted {
	return PipelineCompleted{
		Base:       NewBase(KindPipelineCompleted),
		Run:        run,
		Transcript: transcript,
		Answer:     answer,
		Audio:      audio,
	}
}

type PipelineFailed struct {
	Base
	Run        uint64
	Message    string
	Transcript string
	Answer     string
}

func NewPipelineFailed(run uint64, message, transcript, answer string) PipelineFailed {
	return PipelineFailed{
		Base:       NewBase(KindPipelineFailed),
		Run:        run,
		Message:    message,
		Transcript: transcript,
		Answer:     answer,
	}
}

// PipelineInterrupted carries what a cancelled run had produced so far.
type PipelineInterrupted struct {
	Base
	Run        uint64
	Transcript string
	Answer     string
}

func NewPipelineInterrupted(run uint64, transcript, answer string) PipelineInterrupted {
	return PipelineInterrupted{
		Base:       NewBase(KindPipelineInterrupted),
		Run:        run,
		Transcript: transcript,
		Answer:     answer,
	}
}
