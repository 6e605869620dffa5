package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-voice/core/playback"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

// speechOutput speaks one answer: text goes to a streaming synthesis session
// and the session's audio to a playback stream.
type speechOutput struct {
	slot   *sessionSlot
	handle *sessionHandle
	stream *playback.Stream
	buffer *textBuffer
}

func (p *Pipeline) openSpeech(ctx context.Context, run *runHandle, hooks Hooks) (*speechOutput, error) {
	ctx, span := tracer.Start(ctx, "open speech session")
	defer span.End()

	var firstAudio, audioEnded sync.Once
	var stream *playback.Stream
	if p.player != nil {
		var err error
		stream, err = p.player.BeginStream(p.synthesizer.OutputFormat(), playback.StreamCallbacks{
			OnFirstAudio: func() { firstAudio.Do(hooks.firstAudio) },
			OnEnded:      func() { audioEnded.Do(hooks.audioEnded) },
			OnError: func(err error) {
				logger.Warn("speech playback failed", "error", err)
			},
		})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to start playback stream: %w", err)
		}
	}

	session, err := p.synthesizer.OpenSession(ctx,
		texttospeech.WithAudioCallback(func(audio []byte) {
			if stream == nil {
				return
			}
			if err := stream.Write(audio); err != nil {
				logger.Debug("dropping speech audio", "error", err)
			}
		}),
		texttospeech.WithFinalCallback(func() {
			if stream != nil {
				stream.End()
			}
		}),
		texttospeech.WithErrorCallback(func(err error) {
			logger.Warn("speech session failed", "error", err)
		}),
	)
	if err != nil {
		span.RecordError(err)
		if stream != nil {
			_ = stream.Close()
		}
		return nil, fmt.Errorf("failed to open speech session: %w", err)
	}

	// The invocation may have been aborted while the session was opening.
	if err := ctx.Err(); err != nil {
		if closeErr := session.Close(); closeErr != nil {
			logger.Warn("failed to close speech session", "error", closeErr)
		}
		if stream != nil {
			_ = stream.Close()
		}
		return nil, err
	}

	handle, ok := p.session.install(session, func() bool { return p.runs.isCurrent(run) })
	if !ok {
		if stream != nil {
			_ = stream.Close()
		}
		run.cancel()
		return nil, ctx.Err()
	}

	return &speechOutput{
		slot:   &p.session,
		handle: handle,
		stream: stream,
		buffer: newTextBuffer(p.flushLength),
	}, nil
}

// write buffers an answer delta and sends complete fragments.
func (s *speechOutput) write(delta string) error {
	if s == nil {
		return nil
	}
	fragment, ok := s.buffer.add(delta)
	if !ok {
		return nil
	}
	return s.handle.session.SendText(fragment, true)
}

// finish sends the remaining text, asks for the last audio and waits until
// the session is done. Playback of the tail continues afterwards.
func (s *speechOutput) finish(ctx context.Context) error {
	if s == nil {
		return nil
	}

	session := s.handle.session
	if rest := s.buffer.rest(); rest != "" {
		if err := session.SendText(rest, true); err != nil {
			s.abort()
			return fmt.Errorf("failed to send answer text: %w", err)
		}
	}
	if err := session.SendText("", true); err != nil {
		s.abort()
		return fmt.Errorf("failed to flush speech: %w", err)
	}
	if err := session.EndOfText(); err != nil {
		s.abort()
		return fmt.Errorf("failed to end speech session: %w", err)
	}

	select {
	case <-session.Done():
	case <-ctx.Done():
		s.abort()
		return ctx.Err()
	}

	if s.stream != nil {
		s.stream.End()
	}
	s.slot.release(s.handle)
	return nil
}

// abort closes the session and silences its audio.
func (s *speechOutput) abort() {
	if s == nil {
		return
	}
	s.slot.release(s.handle)
	if s.stream != nil {
		_ = s.stream.Close()
	}
}
