package orchestration

import "github.com/koscakluka/ema-voice/core/audio"

type EffectKind string

const (
	EffectEnableVAD       EffectKind = "enable_vad"
	EffectDisableVAD      EffectKind = "disable_vad"
	EffectSetVisual       EffectKind = "set_visual"
	EffectLog             EffectKind = "log"
	EffectStartListening  EffectKind = "start_listening"
	EffectStopAll         EffectKind = "stop_all"
	EffectStartCapture    EffectKind = "start_capture"
	EffectStopCapture     EffectKind = "stop_capture"
	EffectCancelCapture   EffectKind = "cancel_capture"
	EffectArmStopTimer    EffectKind = "arm_stop_timer"
	EffectDisarmStopTimer EffectKind = "disarm_stop_timer"
	EffectInvokePipeline  EffectKind = "invoke_pipeline"
	EffectCancelPipeline  EffectKind = "cancel_pipeline"
	EffectStopPlayback    EffectKind = "stop_playback"
	EffectPlayBuffer      EffectKind = "play_buffer"
)

// Effect is a side effect requested by a transition. Only the fields
// relevant to Kind are set.
type Effect struct {
	Kind EffectKind

	Visual   VisualState
	Message  string
	Capture  uint64
	Run      uint64
	Playback uint64
	Blob     audio.Blob
	Audio    []byte
}

func effect(kind EffectKind) Effect { return Effect{Kind: kind} }

func setVisual(visual VisualState) Effect { return Effect{Kind: EffectSetVisual, Visual: visual} }

func logEffect(message string) Effect { return Effect{Kind: EffectLog, Message: message} }

// Kinds lists effect kinds in order, handy for assertions and logs.
func Kinds(effects []Effect) []EffectKind {
	kinds := make([]EffectKind, len(effects))
	for i, e := range effects {
		kinds[i] = e.Kind
	}
	return kinds
}
