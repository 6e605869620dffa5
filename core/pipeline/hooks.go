package pipeline

// Hooks are optional callbacks fired while a run is in progress. They may be
// called from any goroutine.
type Hooks struct {
	// OnTranscript fires once the utterance is transcribed.
	OnTranscript func(transcript string)
	// OnAnswerDelta fires for every streamed piece of the answer.
	OnAnswerDelta func(delta string)
	// OnFirstAudio fires at most once per run, when synthesized audio starts
	// playing.
	OnFirstAudio func()
	// OnAudioEnded fires when streamed playback of the run finished.
	OnAudioEnded func()
}

// Result is what a run produced. Audio is only set in buffered mode; in
// streaming mode it was already played.
type Result struct {
	Transcript string
	Answer     string
	Audio      []byte
}

func (h Hooks) transcript(transcript string) {
	if h.OnTranscript != nil {
		h.OnTranscript(transcript)
	}
}

func (h Hooks) answerDelta(delta string) {
	if h.OnAnswerDelta != nil {
		h.OnAnswerDelta(delta)
	}
}

func (h Hooks) firstAudio() {
	if h.OnFirstAudio != nil {
		h.OnFirstAudio()
	}
}

func (h Hooks) audioEnded() {
	if h.OnAudioEnded != nil {
		h.OnAudioEnded()
	}
}
