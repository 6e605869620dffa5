package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/vad"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

func (o *Orchestrator) run() {
	defer close(o.done)

	for {
		if len(o.internal) > 0 {
			event := o.internal[0]
			o.internal = o.internal[1:]
			o.handle(queuedEvent{event: event, queuedAt: time.Now()})
			continue
		}

		select {
		case <-o.closeCh:
			return
		case queued := <-o.queue:
			if o.isClosed() {
				return
			}
			o.handle(queued)
		}
	}
}

// raise queues an event produced by an effect. It is handled before anything
// else in the queue.
func (o *Orchestrator) raise(event events.Event) {
	o.internal = append(o.internal, event)
}

func (o *Orchestrator) handle(queued queuedEvent) {
	event := queued.event
	ctx, span := tracer.Start(o.baseContext, "handle event", trace.WithAttributes(
		attribute.String("event.kind", string(event.Kind())),
		attribute.Float64("event.queued_time", time.Since(queued.queuedAt).Seconds()),
	))
	defer span.End()

	o.mu.Lock()
	prev := o.snapshot
	next, effects := Transition(prev, event)
	o.snapshot = next
	o.mu.Unlock()

	span.SetAttributes(
		attribute.String("state.from", prev.String()),
		attribute.String("state.to", next.String()),
		attribute.Int("effects", len(effects)),
	)
	transitionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.kind", string(event.Kind())),
		attribute.String("state", string(next.Control)),
	))

	if len(effects) == 0 && !changed(prev, next) {
		return
	}

	if prev.Control != next.Control || prev.Capture != next.Capture {
		logger.Debug("transition", "event", event.Kind(), "from", prev.String(), "to", next.String())
	}
	prevCopy, nextCopy := cloneSnapshot(prev), cloneSnapshot(next)
	o.observers.each(func(observer Observer) { observer.OnTransition(prevCopy, nextCopy, event) })

	for _, effect := range effects {
		if err := o.execute(effect); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
}

func changed(prev, next Snapshot) bool {
	return prev.Control != next.Control ||
		prev.Capture != next.Capture ||
		prev.VAD != next.VAD ||
		prev.Visual != next.Visual ||
		prev.CaptureID != next.CaptureID ||
		prev.RunID != next.RunID ||
		prev.PlaybackID != next.PlaybackID ||
		prev.Context.TranscribedText != next.Context.TranscribedText ||
		prev.Context.AnswerText != next.Context.AnswerText ||
		prev.Context.Error != next.Context.Error ||
		prev.Context.RecordingBlob != next.Context.RecordingBlob ||
		len(prev.Context.AudioBuffer) != len(next.Context.AudioBuffer)
}

func (o *Orchestrator) execute(effect Effect) error {
	switch effect.Kind {
	case EffectEnableVAD:
		if o.listener != nil {
			o.listener.EnableVAD()
		}
	case EffectDisableVAD:
		if o.listener != nil {
			o.listener.DisableVAD()
		}
	case EffectSetVisual:
		o.observers.each(func(observer Observer) { observer.OnVisualState(effect.Visual) })
	case EffectLog:
		o.log(effect.Message)
	case EffectStartListening:
		if o.listener == nil {
			return nil
		}
		if err := o.listener.StartListening(o.baseContext, o.voiceActivityHandler()); err != nil {
			err = fmt.Errorf("failed to start listening: %w", err)
			o.raise(events.NewFailure(err.Error()))
			return err
		}
	case EffectStopAll:
		if err := o.teardown(); err != nil {
			logger.Warn("stop all finished with errors", "error", err)
			return err
		}
	case EffectStartCapture:
		return o.startCapture(effect.Capture)
	case EffectStopCapture:
		if o.capture == nil {
			return nil
		}
		if err := o.capture.StopCapture(); err != nil {
			err = fmt.Errorf("failed to stop capture: %w", err)
			o.raise(events.NewFailure(err.Error()))
			return err
		}
	case EffectCancelCapture:
		if o.capture == nil {
			return nil
		}
		if err := o.capture.CancelCapture(); err != nil {
			logger.Warn("failed to cancel capture", "capture", effect.Capture, "error", err)
			return err
		}
	case EffectArmStopTimer:
		o.armStopTimer(effect.Capture)
	case EffectDisarmStopTimer:
		o.disarmStopTimer()
	case EffectInvokePipeline:
		o.invokePipeline(effect.Run, effect.Blob)
	case EffectCancelPipeline:
		o.cancelPipeline()
	case EffectStopPlayback:
		if o.player == nil {
			return nil
		}
		if err := o.player.Stop(); err != nil {
			logger.Warn("failed to stop playback", "error", err)
			return err
		}
	case EffectPlayBuffer:
		return o.playBuffer(effect.Playback, effect.Audio)
	default:
		return fmt.Errorf("unknown effect %q", effect.Kind)
	}
	return nil
}

func (o *Orchestrator) log(message string) {
	logger.Info(message)
	o.observers.each(func(observer Observer) { observer.OnLog(message) })
}

func (o *Orchestrator) voiceActivityHandler() vad.Handler {
	return vad.Handler{
		OnSpeechStart:    func() { o.tryEnqueue(events.NewSpeechStarted()) },
		OnSilenceTimeout: func() { o.tryEnqueue(events.NewSilenceTimeout()) },
		OnLevel: func(level float64) {
			o.observers.each(func(observer Observer) {
				if levelObserver, ok := observer.(LevelObserver); ok {
					levelObserver.OnLevel(level)
				}
			})
		},
	}
}

func (o *Orchestrator) startCapture(capture uint64) error {
	if o.capture == nil {
		return nil
	}

	err := o.capture.StartCapture(o.baseContext, func(blob audio.Blob) {
		o.Send(events.NewRecordingStopped(capture, blob))
	})
	if err != nil {
		err = fmt.Errorf("failed to start capture: %w", err)
		o.raise(events.NewFailure(err.Error()))
		return err
	}
	return nil
}

func (o *Orchestrator) armStopTimer(capture uint64) {
	o.disarmStopTimer()
	o.stopTimer = time.AfterFunc(o.captureStopTimeout, func() {
		o.Send(events.NewCaptureStopTimedOut(capture))
	})
}

func (o *Orchestrator) disarmStopTimer() {
	if o.stopTimer != nil {
		o.stopTimer.Stop()
		o.stopTimer = nil
	}
}

func (o *Orchestrator) invokePipeline(run uint64, blob audio.Blob) {
	o.cancelPipeline()
	if o.pipeline == nil {
		o.raise(events.NewPipelineFailed(run, "no pipeline configured", "", ""))
		return
	}

	ctx, cancel := context.WithCancel(o.baseContext)
	o.runCancel = cancel
	hooks := PipelineHooks{
		OnTranscript: func(transcript string) {
			o.observers.each(func(observer Observer) {
				if answerObserver, ok := observer.(AnswerObserver); ok {
					answerObserver.OnTranscript(transcript)
				}
			})
		},
		OnAnswerDelta: func(delta string) {
			o.observers.each(func(observer Observer) {
				if answerObserver, ok := observer.(AnswerObserver); ok {
					answerObserver.OnAnswerDelta(delta)
				}
			})
		},
		OnFirstAudio: func() { o.Send(events.NewSpeechAudioStarted(run)) },
		OnAudioEnded: func() {
			o.observers.each(func(observer Observer) { observer.OnLog("speech audio ended") })
		},
	}

	o.workers.Add(1)
	go func() {
		defer o.workers.Done()
		o.Send(o.runPipeline(ctx, run, blob, hooks))
	}()
}

func (o *Orchestrator) runPipeline(ctx context.Context, run uint64, blob audio.Blob, hooks PipelineHooks) (event events.Event) {
	ctx, span := tracer.Start(ctx, "run pipeline", trace.WithAttributes(
		attribute.Int64("pipeline.run", int64(run)),
		attribute.Float64("pipeline.utterance_seconds", blob.Duration().Seconds()),
	))
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("pipeline panicked: %v", recovered)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			event = events.NewPipelineFailed(run, err.Error(), "", "")
		}
	}()

	result, err := o.pipeline.Process(ctx, blob, hooks)
	switch {
	case ctx.Err() != nil:
		span.AddEvent("interrupted")
		return events.NewPipelineInterrupted(run, result.Transcript, result.Answer)
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return events.NewPipelineFailed(run, err.Error(), result.Transcript, result.Answer)
	}
	return events.NewPipelineCompleted(run, result.Transcript, result.Answer, result.Audio)
}

func (o *Orchestrator) cancelPipeline() {
	if o.runCancel != nil {
		o.runCancel()
		o.runCancel = nil
	}
}

func (o *Orchestrator) playBuffer(playback uint64, buffer []byte) error {
	if o.player == nil {
		o.raise(events.NewPlaybackCompleted(playback))
		return nil
	}

	err := o.player.PlayBuffer(o.baseContext, buffer, func() {
		o.Send(events.NewPlaybackCompleted(playback))
	})
	if err != nil {
		err = fmt.Errorf("failed to play answer: %w", err)
		o.raise(events.NewFailure(err.Error()))
		return err
	}
	return nil
}

// teardown stops every operation in progress and releases the microphone.
func (o *Orchestrator) teardown() error {
	o.disarmStopTimer()
	o.cancelPipeline()

	var errs error
	if o.capture != nil {
		if err := o.capture.CancelCapture(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to cancel capture: %w", err))
		}
	}
	if o.player != nil {
		if err := o.player.Stop(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to stop playback: %w", err))
		}
	}
	if o.listener != nil {
		if err := o.listener.StopListening(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to stop listening: %w", err))
		}
	}
	return errs
}
