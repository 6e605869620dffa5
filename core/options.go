package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/pipeline"
	"github.com/koscakluka/ema-voice/core/vad"
)

const defaultCaptureStopTimeout = 2 * time.Second

type OrchestratorOption func(*Orchestrator)

// Listener owns the microphone and the voice activity detector.
type Listener interface {
	// StartListening acquires the microphone and primes the detector. It is
	// idempotent.
	StartListening(ctx context.Context, handler vad.Handler) error
	StopListening() error
	EnableVAD()
	DisableVAD()
}

func WithListener(listener Listener) OrchestratorOption {
	return func(o *Orchestrator) { o.listener = listener }
}

// Capture records a single utterance at a time.
type Capture interface {
	StartCapture(ctx context.Context, onStopped func(audio.Blob)) error
	// StopCapture finalizes the recording, the blob arrives via onStopped.
	StopCapture() error
	CancelCapture() error
}

func WithCapture(capture Capture) OrchestratorOption {
	return func(o *Orchestrator) { o.capture = capture }
}

type (
	PipelineHooks  = pipeline.Hooks
	PipelineResult = pipeline.Result
)

// Pipeline turns an utterance into an answer. When ctx is cancelled it
// returns what it produced so far together with the context error.
type Pipeline interface {
	Process(ctx context.Context, blob audio.Blob, hooks PipelineHooks) (PipelineResult, error)
}

func WithPipeline(pipeline Pipeline) OrchestratorOption {
	return func(o *Orchestrator) { o.pipeline = pipeline }
}

// Player plays buffered answers. Stop must also silence streamed audio.
type Player interface {
	PlayBuffer(ctx context.Context, audio []byte, onEnded func()) error
	Stop() error
}

func WithPlayer(player Player) OrchestratorOption {
	return func(o *Orchestrator) { o.player = player }
}

// WithCaptureStopTimeout sets how long a stopping capture may take to
// deliver its recording before it is abandoned.
func WithCaptureStopTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.captureStopTimeout = timeout
		}
	}
}

func WithObserver(observer Observer) OrchestratorOption {
	return func(o *Orchestrator) {
		if observer != nil {
			o.observers.add(observer)
		}
	}
}
