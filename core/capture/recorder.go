package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/koscakluka/ema-voice/core/audio"
)

var ErrCaptureActive = errors.New("capture already active")

type frameSource interface {
	EncodingInfo() audio.EncodingInfo
	Subscribe(onFrame func([]byte)) (unsubscribe func())
}

// Recorder records one utterance at a time from a shared frame source.
type Recorder struct {
	source frameSource

	mu     sync.Mutex
	active *recording
}

type recording struct {
	mu          sync.Mutex
	data        []byte
	unsubscribe func()
	onStopped   func(audio.Blob)
}

func NewRecorder(source frameSource) *Recorder {
	return &Recorder{source: source}
}

// StartCapture begins a new recording. A recording that is still active must
// be stopped or cancelled first.
func (r *Recorder) StartCapture(_ context.Context, onStopped func(audio.Blob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return ErrCaptureActive
	}

	rec := &recording{onStopped: onStopped}
	rec.unsubscribe = r.source.Subscribe(func(frame []byte) {
		rec.mu.Lock()
		rec.data = append(rec.data, frame...)
		rec.mu.Unlock()
	})
	r.active = rec
	return nil
}

// StopCapture finalizes the active recording. The blob is delivered
// asynchronously, like a device "stopped" callback. No-op without one.
func (r *Recorder) StopCapture() error {
	rec := r.detach()
	if rec == nil {
		return nil
	}

	rec.mu.Lock()
	blob := audio.Blob{Data: rec.data, EncodingInfo: r.source.EncodingInfo()}
	rec.data = nil
	rec.mu.Unlock()

	if rec.onStopped != nil {
		go rec.onStopped(blob)
	}
	return nil
}

// CancelCapture discards the active recording without delivering it.
func (r *Recorder) CancelCapture() error {
	if rec := r.detach(); rec != nil {
		logger.Debug("capture discarded")
	}
	return nil
}

func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

func (r *Recorder) detach() *recording {
	r.mu.Lock()
	rec := r.active
	r.active = nil
	r.mu.Unlock()

	if rec != nil {
		rec.unsubscribe()
	}
	return rec
}
