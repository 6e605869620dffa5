// Package events defines the typed event contract of the turn-taking
// orchestrator.
//
// Event kinds are grouped by the component that raises them:
//
//   - control.*
//   - vad.*
//   - capture.*
//   - pipeline.*
//   - playback.*
//
// Completion events carry the generation id (Capture, Run, Playback) of the
// operation they complete. The orchestrator ignores completions whose id is
// not the current one, so a late callback from a cancelled operation can
// never be applied to a newer one.
//
// control events
//
//   - StartListening (control.start_listening): user asks to start listening
//     or to recover from an error.
//   - StopAll (control.stop_all): universal kill switch.
//   - Failure (control.failure): an infrastructure failure such as the
//     microphone being unavailable.
//
// vad events
//
//   - SpeechStarted (vad.speech_started): speech onset confirmed.
//   - SilenceTimeout (vad.silence_timeout): sustained silence after speech.
//   - VADTurnedOn (vad.turned_on), VADTurnedOff (vad.turned_off): VAD
//     enablement region changes.
//
// capture events
//
//   - RecordingStopped (capture.recording_stopped): recorder confirmed stop
//     and produced the utterance blob.
//   - CaptureStopTimedOut (capture.stop_timed_out): recorder did not confirm
//     the stop in time.
//
// pipeline events
//
//   - SpeechAudioStarted (pipeline.speech_audio_started): synthesized audio
//     became audible.
//   - PipelineCompleted (pipeline.completed): pipeline resolved.
//   - PipelineFailed (pipeline.failed): pipeline rejected.
//   - PipelineInterrupted (pipeline.interrupted): a cancelled run reported
//     its partial transcript and answer.
//
// playback events
//
//   - PlaybackCompleted (playback.completed): buffered playback finished. This
//     is the only end-of-playback signal.
package events
