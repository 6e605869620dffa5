package events

const (
	KindSpeechStarted  Kind = "vad.speech_started"
	KindSilenceTimeout Kind = "vad.silence_timeout"
	KindVADTurnedOn    Kind = "vad.turned_on"
	KindVADTurnedOff   Kind = "vad.turned_off"
)

type SpeechStarted struct{ Base }

func NewSpeechStarted() SpeechStarted {
	return SpeechStarted{Base: NewBase(KindSpeechStarted)}
}

type SilenceTimeout struct{ Base }

func NewSilenceTimeout() SilenceTimeout {
	return SilenceTimeout{Base: NewBase(KindSilenceTimeout)}
}

type VADTurnedOn struct{ Base }

func NewVADTurnedOn() VADTurnedOn {
	return VADTurnedOn{Base: NewBase(KindVADTurnedOn)}
}

type VADTurnedOff struct{ Base }

func NewVADTurnedOff() VADTurnedOff {
	return VADTurnedOff{Base: NewBase(KindVADTurnedOff)}
}
