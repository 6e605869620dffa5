package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/koscakluka/ema-voice/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultFormat = "mp3_44100_128"

// Output is a playback device. Mark callbacks must not run on the goroutine
// that called SendAudio or Mark.
type Output interface {
	SendAudio(audio []byte) error
	ClearBuffer()
	Mark(mark string, callback func(mark string)) error
	EncodingInfo() audio.EncodingInfo
}

// Player plays synthesized speech on an Output, either a whole encoded
// answer at once or streamed chunk by chunk while it is being synthesized.
//
// Stop silences everything and invalidates every pending callback, so a
// playback that was stopped never reports that it started or ended.
type Player struct {
	output Output
	format string

	mu         sync.Mutex
	generation uint64
	streams    map[*Stream]struct{}
}

type PlayerOption func(*Player)

// WithFormat sets the format PlayBuffer decodes, e.g. mp3_44100_128 or
// pcm_16000.
func WithFormat(format string) PlayerOption {
	return func(p *Player) {
		if format != "" {
			p.format = format
		}
	}
}

func NewPlayer(output Output, opts ...PlayerOption) *Player {
	player := &Player{
		output:  output,
		format:  DefaultFormat,
		streams: map[*Stream]struct{}{},
	}
	for _, opt := range opts {
		opt(player)
	}
	return player
}

// PlayBuffer decodes a whole answer and queues it. onEnded is called once
// the last sample was played, unless Stop was called first.
func (p *Player) PlayBuffer(ctx context.Context, encoded []byte, onEnded func()) error {
	ctx, span := tracer.Start(ctx, "play buffer")
	defer span.End()
	span.SetAttributes(
		attribute.String("playback.format", p.format),
		attribute.Int("playback.encoded_bytes", len(encoded)),
	)

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if onEnded == nil {
		onEnded = func() {}
	}

	pcm, err := p.decode(encoded)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.Int("playback.pcm_bytes", len(pcm)))

	p.mu.Lock()
	defer p.mu.Unlock()
	generation := p.generation
	ended := func(string) { p.fire(generation, onEnded) }

	if len(pcm) == 0 {
		go ended("")
		return nil
	}
	if err := p.output.SendAudio(pcm); err != nil {
		return fail(fmt.Errorf("failed to queue audio: %w", err))
	}
	if err := p.output.Mark("buffer-ended", ended); err != nil {
		return fail(fmt.Errorf("failed to mark end of audio: %w", err))
	}
	return nil
}

func (p *Player) decode(encoded []byte) ([]byte, error) {
	if err := checkOutputEncoding(p.output.EncodingInfo()); err != nil {
		return nil, err
	}
	format, err := parseFormat(p.format)
	if err != nil {
		return nil, err
	}
	if len(encoded) == 0 {
		return nil, nil
	}

	reader, sampleRate, channels, err := format.pcmReader(bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}
	conv := converter{channels: channels, fromRate: sampleRate, toRate: p.output.EncodingInfo().SampleRate}
	return conv.convert(decoded), nil
}

// Stop drops all queued audio and ends every open stream. It is safe to call
// at any time and any number of times.
func (p *Player) Stop() error {
	p.mu.Lock()
	p.generation++
	streams := make([]*Stream, 0, len(p.streams))
	for stream := range p.streams {
		streams = append(streams, stream)
	}
	p.streams = map[*Stream]struct{}{}
	p.output.ClearBuffer()
	p.mu.Unlock()

	for _, stream := range streams {
		stream.abort(ErrStopped)
	}
	return nil
}

// fire calls callback unless Stop was called since generation was taken.
func (p *Player) fire(generation uint64, callback func()) {
	p.mu.Lock()
	current := p.generation == generation
	p.mu.Unlock()
	if current {
		callback()
	}
}

func (p *Player) forget(stream *Stream) {
	p.mu.Lock()
	delete(p.streams, stream)
	p.mu.Unlock()
}
