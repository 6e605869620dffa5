package playback

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	ErrStreamClosed = errors.New("stream closed")
	ErrStopped      = errors.New("playback stopped")
)

type StreamCallbacks struct {
	// OnFirstAudio fires once, when the first sample of the stream plays.
	OnFirstAudio func()
	// OnEnded fires once, after the last sample of an ended stream played.
	OnEnded func()
	// OnError reports a decoding or device failure. The stream is aborted.
	OnError func(error)
}

// Stream plays encoded audio as it arrives.
type Stream struct {
	player     *Player
	format     sourceFormat
	generation uint64
	callbacks  StreamCallbacks

	writer *io.PipeWriter
	reader *io.PipeReader
	done   chan struct{}

	mu       sync.Mutex
	started  bool
	closed   bool
	finished bool

	firstOnce sync.Once
	endedOnce sync.Once
	endOnce   sync.Once
}

// BeginStream opens a stream of audio in format, e.g. mp3_44100_128.
func (p *Player) BeginStream(format string, callbacks StreamCallbacks) (*Stream, error) {
	if err := checkOutputEncoding(p.output.EncodingInfo()); err != nil {
		return nil, err
	}
	source, err := parseFormat(format)
	if err != nil {
		return nil, err
	}
	if callbacks.OnFirstAudio == nil {
		callbacks.OnFirstAudio = func() {}
	}
	if callbacks.OnEnded == nil {
		callbacks.OnEnded = func() {}
	}
	if callbacks.OnError == nil {
		callbacks.OnError = func(error) {}
	}

	reader, writer := io.Pipe()
	stream := &Stream{
		player:    p,
		format:    source,
		callbacks: callbacks,
		writer:    writer,
		reader:    reader,
		done:      make(chan struct{}),
	}

	p.mu.Lock()
	stream.generation = p.generation
	p.streams[stream] = struct{}{}
	p.mu.Unlock()

	go stream.pump()
	return stream, nil
}

// Write queues an encoded chunk. It blocks until the chunk was decoded.
func (s *Stream) Write(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	if _, err := s.writer.Write(chunk); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return ErrStreamClosed
		}
		return err
	}
	return nil
}

// End marks the end of the audio. OnEnded fires once the rest played.
func (s *Stream) End() {
	s.endOnce.Do(func() { _ = s.writer.Close() })
}

// Close aborts the stream and silences whatever it already queued. Closing a
// stream that finished playing is a no-op.
func (s *Stream) Close() error {
	s.mu.Lock()
	finished := s.finished
	s.mu.Unlock()
	if finished {
		s.player.forget(s)
		return nil
	}

	if s.abort(ErrStreamClosed) {
		s.player.mu.Lock()
		current := s.player.generation == s.generation
		if current {
			s.player.output.ClearBuffer()
		}
		s.player.mu.Unlock()
	}
	s.player.forget(s)
	return nil
}

// Done is closed once no more audio will be decoded.
func (s *Stream) Done() <-chan struct{} { return s.done }

// abort stops decoding and reports whether the stream had queued audio.
func (s *Stream) abort(reason error) bool {
	s.mu.Lock()
	wasClosed := s.closed
	s.closed = true
	started := s.started
	s.mu.Unlock()

	_ = s.writer.CloseWithError(reason)
	_ = s.reader.CloseWithError(reason)
	return !wasClosed && started
}

func (s *Stream) pump() {
	defer close(s.done)
	defer func() { _ = s.reader.CloseWithError(ErrStreamClosed) }()

	reader, sampleRate, channels, err := s.format.pcmReader(s.reader)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			s.finish()
			return
		}
		s.fail(err)
		return
	}

	conv := converter{
		channels: channels,
		fromRate: sampleRate,
		toRate:   s.player.output.EncodingInfo().SampleRate,
	}
	buf := make([]byte, 8192)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if err := s.send(conv.convert(buf[:n])); err != nil {
				s.fail(err)
				return
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			s.fail(fmt.Errorf("failed to decode audio: %w", readErr))
			return
		}
	}
	s.finish()
}

func (s *Stream) send(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	s.player.mu.Lock()
	defer s.player.mu.Unlock()
	if s.player.generation != s.generation {
		return ErrStopped
	}

	s.mu.Lock()
	closed := s.closed
	first := !s.started
	s.started = true
	s.mu.Unlock()
	if closed {
		return ErrStreamClosed
	}

	if first {
		if err := s.player.output.Mark("stream-first-audio", func(string) { s.firstAudio() }); err != nil {
			return fmt.Errorf("failed to mark first audio: %w", err)
		}
	}
	if err := s.player.output.SendAudio(pcm); err != nil {
		return fmt.Errorf("failed to queue audio: %w", err)
	}
	return nil
}

func (s *Stream) finish() {
	s.player.mu.Lock()
	defer s.player.mu.Unlock()

	s.mu.Lock()
	closed := s.closed
	started := s.started
	s.mu.Unlock()
	if closed || s.player.generation != s.generation {
		return
	}

	if !started {
		go s.ended()
		return
	}
	if err := s.player.output.Mark("stream-ended", func(string) { s.ended() }); err != nil {
		logger.Warn("failed to mark end of stream", "error", err)
		go s.ended()
	}
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed || errors.Is(err, ErrStopped) || errors.Is(err, ErrStreamClosed) {
		return
	}

	logger.Warn("audio stream failed", "error", err)
	s.abort(err)
	s.callbacks.OnError(err)
}

func (s *Stream) live() bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}

	s.player.mu.Lock()
	defer s.player.mu.Unlock()
	return s.player.generation == s.generation
}

func (s *Stream) firstAudio() {
	if !s.live() {
		return
	}
	s.firstOnce.Do(s.callbacks.OnFirstAudio)
}

func (s *Stream) ended() {
	if !s.live() {
		return
	}
	s.endedOnce.Do(func() {
		s.mu.Lock()
		s.finished = true
		s.mu.Unlock()
		s.player.forget(s)
		s.callbacks.OnEnded()
	})
}
