package events

import (
	"testing"

	"github.com/koscakluka/ema-voice/core/audio"
)

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "start listening", event: NewStartListening(), expected: KindStartListening},
		{name: "stop all", event: NewStopAll(), expected: KindStopAll},
		{name: "failure", event: NewFailure("boom"), expected: KindFailure},
		{name: "speech started", event: NewSpeechStarted(), expected: KindSpeechStarted},
		{name: "silence timeout", event: NewSilenceTimeout(), expected: KindSilenceTimeout},
		{name: "vad turned on", event: NewVADTurnedOn(), expected: KindVADTurnedOn},
		{name: "vad turned off", event: NewVADTurnedOff(), expected: KindVADTurnedOff},
		{name: "recording stopped", event: NewRecordingStopped(1, audio.Blob{}), expected: KindRecordingStopped},
		{name: "capture stop timed out", event: NewCaptureStopTimedOut(1), expected: KindCaptureStopTimedOut},
		{name: "speech audio started", event: NewSpeechAudioStarted(1), expected: KindSpeechAudioStarted},
		{name: "pipeline completed", event: NewPipelineCompleted(1, "hi", "hello", nil), expected: KindPipelineCompleted},
		{name: "pipeline failed", event: NewPipelineFailed(1, "boom", "", ""), expected: KindPipelineFailed},
		{name: "pipeline interrupted", event: NewPipelineInterrupted(1, "hi", "hel"), expected: KindPipelineInterrupted},
		{name: "playback completed", event: NewPlaybackCompleted(1), expected: KindPlaybackCompleted},
	}

	seen := map[Kind]string{}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected timestamp to be set")
			}
		})
		if other, ok := seen[testCase.expected]; ok {
			t.Fatalf("kind %q shared by %q and %q", testCase.expected, other, testCase.name)
		}
		seen[testCase.expected] = testCase.name
	}
}
