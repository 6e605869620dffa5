package orchestration

import (
	"fmt"

	"github.com/koscakluka/ema-voice/core/audio"
)

type ControlState string

const (
	ControlReady         ControlState = "ready"
	ControlListeningIdle ControlState = "listening_idle"
	ControlCapturing     ControlState = "capturing"
	ControlProcessing    ControlState = "processing"
	ControlPlaying       ControlState = "playing"
	ControlError         ControlState = "error"
)

// CaptureStep is the sub-state of ControlCapturing.
type CaptureStep string

const (
	CaptureNone      CaptureStep = ""
	CaptureRecording CaptureStep = "recording"
	CaptureStopping  CaptureStep = "stopping"
)

type VadState string

const (
	VadOff VadState = "off"
	VadOn  VadState = "on"
)

type VisualState string

const (
	VisualPassive   VisualState = "passive"
	VisualListening VisualState = "listening"
	VisualThinking  VisualState = "thinking"
	VisualSpeaking  VisualState = "speaking"
)

// TurnContext is mutated only by Transition.
type TurnContext struct {
	TranscribedText string
	AnswerText      string
	// AudioBuffer holds synthesized audio for buffered playback, it is only
	// set while playing.
	AudioBuffer []byte
	// Error is only set in the error state.
	Error string
	// RecordingBlob is a finished capture that was not handed to the
	// pipeline yet.
	RecordingBlob *audio.Blob
}

// Snapshot composes both regions of the machine with its context.
type Snapshot struct {
	Control ControlState
	Capture CaptureStep
	VAD     VadState
	Visual  VisualState
	Context TurnContext

	// Generation ids of the current capture, pipeline run and buffered
	// playback. Completion events with other ids are stale.
	CaptureID  uint64
	RunID      uint64
	PlaybackID uint64
}

func InitialSnapshot() Snapshot {
	return Snapshot{Control: ControlReady, VAD: VadOff, Visual: VisualPassive}
}

func (s Snapshot) String() string {
	control := string(s.Control)
	if s.Control == ControlCapturing && s.Capture != CaptureNone {
		control += "." + string(s.Capture)
	}
	return fmt.Sprintf("%s vad:%s", control, s.VAD)
}
