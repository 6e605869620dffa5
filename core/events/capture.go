package events

import "github.com/koscakluka/ema-voice/core/audio"

const (
	KindRecordingStopped    Kind = "capture.recording_stopped"
	KindCaptureStopTimedOut Kind = "capture.stop_timed_out"
)

// RecordingStopped carries the finished utterance of capture Capture.
type RecordingStopped struct {
	Base
	Capture uint64
	Blob    audio.Blob
}

func NewRecordingStopped(capture uint64, blob audio.Blob) RecordingStopped {
	return RecordingStopped{Base: NewBase(KindRecordingStopped), Capture: capture, Blob: blob}
}

type CaptureStopTimedOut struct {
	Base
	Capture uint64
}

func NewCaptureStopTimedOut(capture uint64) CaptureStopTimedOut {
	return CaptureStopTimedOut{Base: NewBase(KindCaptureStopTimedOut), Capture: capture}
}
