package orchestration

import (
	"github.com/koscakluka/ema-voice/core/events"
)

const unknownErrorMessage = "Unknown error"

// Transition is the turn-taking state machine. It is pure: it returns the
// next snapshot and the ordered effects the runtime has to execute (exit
// effects, then transition actions, then entry actions). Events a state does
// not handle leave the snapshot unchanged and produce no effects.
func Transition(s Snapshot, event events.Event) (Snapshot, []Effect) {
	t := &transition{from: s, next: s}

	switch e := event.(type) {
	case events.VADTurnedOn:
		t.setVAD(VadOn)
		return t.result()
	case events.VADTurnedOff:
		t.setVAD(VadOff)
		return t.result()
	case events.PipelineInterrupted:
		if e.Run == s.RunID {
			t.next.Context.TranscribedText = e.Transcript
			t.next.Context.AnswerText = e.Answer
		}
		return t.result()
	case events.SpeechStarted, events.SilenceTimeout:
		if s.VAD != VadOn {
			return s, nil
		}
	}

	switch s.Control {
	case ControlReady:
		t.ready(event)
	case ControlListeningIdle:
		t.listeningIdle(event)
	case ControlCapturing:
		t.capturing(event)
	case ControlProcessing:
		t.processing(event)
	case ControlPlaying:
		t.playing(event)
	case ControlError:
		t.failed(event)
	}
	return t.result()
}

type transition struct {
	from    Snapshot
	next    Snapshot
	effects []Effect
}

func (t *transition) result() (Snapshot, []Effect) { return t.next, t.effects }

func (t *transition) do(effects ...Effect) { t.effects = append(t.effects, effects...) }

func (t *transition) ready(event events.Event) {
	switch event.(type) {
	case events.StartListening:
		t.goTo(ControlListeningIdle)
	}
}

func (t *transition) listeningIdle(event events.Event) {
	switch e := event.(type) {
	case events.StopAll:
		t.goTo(ControlReady, effect(EffectStopAll))
	case events.SpeechStarted:
		t.exit()
		t.do(effect(EffectStopPlayback))
		t.startCapture()
		t.enter(ControlCapturing)
	case events.Failure:
		t.fail(e.Message)
	}
}

func (t *transition) capturing(event events.Event) {
	switch e := event.(type) {
	case events.SilenceTimeout:
		if t.from.Capture != CaptureRecording {
			return
		}
		t.next.Capture = CaptureStopping
		t.do(
			Effect{Kind: EffectStopCapture, Capture: t.from.CaptureID},
			Effect{Kind: EffectArmStopTimer, Capture: t.from.CaptureID},
		)
	case events.CaptureStopTimedOut:
		if t.from.Capture != CaptureStopping || e.Capture != t.from.CaptureID {
			return
		}
		t.goTo(ControlListeningIdle, Effect{Kind: EffectCancelCapture, Capture: t.from.CaptureID})
	case events.RecordingStopped:
		if e.Capture != t.from.CaptureID {
			return
		}
		if e.Blob.IsEmpty() {
			t.goTo(ControlListeningIdle, logEffect("empty recording discarded"))
			return
		}
		blob := e.Blob
		t.next.Context.RecordingBlob = &blob
		t.next.Context.Error = ""
		t.goTo(ControlProcessing)
	case events.StopAll:
		t.goTo(ControlReady, effect(EffectStopAll))
	case events.SpeechStarted:
		// restart the capture without re-entering capturing
		if t.from.Capture == CaptureStopping {
			t.do(effect(EffectDisarmStopTimer))
		}
		t.do(
			effect(EffectStopPlayback),
			Effect{Kind: EffectCancelCapture, Capture: t.from.CaptureID},
		)
		t.startCapture()
		t.next.Capture = CaptureRecording
	case events.Failure:
		t.fail(e.Message)
	}
}

func (t *transition) processing(event events.Event) {
	run := t.from.RunID
	switch e := event.(type) {
	case events.StopAll:
		t.goTo(ControlListeningIdle,
			Effect{Kind: EffectCancelPipeline, Run: run},
			effect(EffectStopPlayback),
		)
	case events.SpeechStarted:
		t.exit()
		t.do(
			Effect{Kind: EffectCancelPipeline, Run: run},
			effect(EffectStopPlayback),
		)
		t.startCapture()
		t.enter(ControlCapturing)
	case events.SpeechAudioStarted:
		if e.Run != run {
			return
		}
		t.next.Visual = VisualSpeaking
		t.do(setVisual(VisualSpeaking))
	case events.PipelineCompleted:
		if e.Run != run {
			return
		}
		t.next.Context.TranscribedText = e.Transcript
		t.next.Context.AnswerText = e.Answer
		t.next.Context.Error = ""
		if len(e.Audio) > 0 {
			t.next.Context.AudioBuffer = e.Audio
			t.goTo(ControlPlaying)
			return
		}
		t.goTo(ControlListeningIdle)
	case events.PipelineFailed:
		if e.Run != run {
			return
		}
		if e.Transcript != "" {
			t.next.Context.TranscribedText = e.Transcript
		}
		if e.Answer != "" {
			t.next.Context.AnswerText = e.Answer
		}
		t.fail(e.Message)
	case events.Failure:
		t.do(Effect{Kind: EffectCancelPipeline, Run: run})
		t.fail(e.Message)
	}
}

func (t *transition) playing(event events.Event) {
	switch e := event.(type) {
	case events.PlaybackCompleted:
		if e.Playback != t.from.PlaybackID {
			return
		}
		t.goTo(ControlListeningIdle)
	case events.StopAll:
		t.goTo(ControlListeningIdle, effect(EffectStopPlayback))
	case events.SpeechStarted:
		t.exit()
		t.do(effect(EffectStopPlayback))
		t.startCapture()
		t.enter(ControlCapturing)
	case events.Failure:
		t.do(effect(EffectStopPlayback))
		t.fail(e.Message)
	}
}

func (t *transition) failed(event events.Event) {
	switch event.(type) {
	case events.StartListening:
		t.goTo(ControlListeningIdle)
	case events.StopAll:
		t.goTo(ControlReady, effect(EffectStopAll))
	}
}

func (t *transition) fail(message string) {
	if message == "" {
		message = unknownErrorMessage
	}
	t.exit()
	t.next.Context.Error = message
	t.enter(ControlError)
}

func (t *transition) goTo(target ControlState, actions ...Effect) {
	t.exit()
	t.do(actions...)
	t.enter(target)
}

func (t *transition) startCapture() {
	t.next.CaptureID++
	t.do(Effect{Kind: EffectStartCapture, Capture: t.next.CaptureID})
}

// exit runs the exit actions of the state being left.
func (t *transition) exit() {
	switch t.from.Control {
	case ControlCapturing:
		if t.from.Capture == CaptureStopping {
			t.do(effect(EffectDisarmStopTimer))
		}
	case ControlPlaying:
		t.next.Context.AudioBuffer = nil
	case ControlError:
		t.next.Context.Error = ""
	}
}

// enter commits the target state and appends its entry actions.
func (t *transition) enter(target ControlState) {
	t.next.Control = target
	t.next.Capture = CaptureNone

	switch target {
	case ControlReady:
		t.setVAD(VadOff)
		t.visual(VisualPassive)
	case ControlListeningIdle:
		t.setVAD(VadOn)
		t.visual(VisualListening)
		t.do(effect(EffectStartListening))
	case ControlCapturing:
		t.next.Capture = CaptureRecording
		t.visual(VisualListening)
	case ControlProcessing:
		t.visual(VisualThinking)
		t.next.RunID++
		invoke := Effect{Kind: EffectInvokePipeline, Run: t.next.RunID}
		if blob := t.next.Context.RecordingBlob; blob != nil {
			invoke.Blob = *blob
		}
		t.next.Context.RecordingBlob = nil
		t.do(invoke)
	case ControlPlaying:
		t.visual(VisualSpeaking)
		t.next.PlaybackID++
		t.do(Effect{Kind: EffectPlayBuffer, Playback: t.next.PlaybackID, Audio: t.next.Context.AudioBuffer})
	case ControlError:
		t.do(effect(EffectStopAll))
		t.setVAD(VadOff)
		t.visual(VisualPassive)
	}
}

func (t *transition) visual(visual VisualState) {
	t.next.Visual = visual
	t.do(setVisual(visual))
}

func (t *transition) setVAD(state VadState) {
	if t.next.VAD == state {
		return
	}
	t.next.VAD = state
	if state == VadOn {
		t.do(effect(EffectEnableVAD), logEffect("VAD ON"))
		return
	}
	t.do(effect(EffectDisableVAD), logEffect("VAD OFF"))
}
