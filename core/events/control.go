package events

const (
	KindStartListening Kind = "control.start_listening"
	KindStopAll        Kind = "control.stop_all"
	KindFailure        Kind = "control.failure"
)

type StartListening struct{ Base }

func NewStartListening() StartListening {
	return StartListening{Base: NewBase(KindStartListening)}
}

type StopAll struct{ Base }

func NewStopAll() StopAll {
	return StopAll{Base: NewBase(KindStopAll)}
}

// Failure reports an error outside the pipeline, e.g. microphone acquisition.
type Failure struct {
	Base
	Message string
}

func NewFailure(message string) Failure {
	return Failure{Base: NewBase(KindFailure), Message: message}
}
