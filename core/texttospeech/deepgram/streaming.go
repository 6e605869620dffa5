package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrSessionClosed = errors.New("speech session closed")
	ErrTextComplete  = errors.New("speech session text already complete")
)

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type controlMessage struct {
	Type string `json:"type"`
}

type incomingMessage struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	ErrCode     string `json:"err_code"`
	ErrMsg      string `json:"err_msg"`
}

// segment is text up to a flush.
type segment struct {
	text   string
	sealed bool
}

type speechSession struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	closed bool

	textMu        sync.Mutex
	segments      []segment
	awaitingFlush bool
	textComplete  bool

	options texttospeech.SessionOptions
	span    trace.Span

	openedAt   time.Time
	firstAudio sync.Once
	finalOnce  sync.Once
	closeOnce  sync.Once
	done       chan struct{}
	doneOnce   sync.Once
}

// OpenSession connects to the speak websocket. Audio arrives through the
// session callbacks as raw linear16 frames.
func (c *TextToSpeechClient) OpenSession(ctx context.Context, opts ...texttospeech.SessionOption) (texttospeech.Session, error) {
	_, span := tracer.Start(ctx, "speech session", trace.WithAttributes(
		attribute.String("request.voice", c.voice),
		attribute.Int("request.sample_rate", c.sampleRate),
	))

	endpoint, err := c.speakURL(true)
	if err != nil {
		span.RecordError(err)
		span.End()
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, endpoint, c.authHeader())
	if err != nil {
		err = fmt.Errorf("failed to open socket connection to deepgram: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	session := &speechSession{
		ws:       conn,
		options:  texttospeech.NewSessionOptions(opts...),
		span:     span,
		openedAt: time.Now(),
		done:     make(chan struct{}),
	}
	go session.processIncomingMessages()
	return session, nil
}

func (s *speechSession) processIncomingMessages() {
	for {
		msgType, msg, err := s.ws.ReadMessage()
		if err != nil {
			if !s.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = fmt.Errorf("speech session read failed: %w", err)
				s.span.RecordError(err)
				s.span.SetStatus(codes.Error, err.Error())
				s.options.ErrorCallback(err)
			}
			s.finish()
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(msg) == 0 {
				continue
			}
			s.firstAudio.Do(func() {
				s.span.AddEvent("received first audio")
				s.span.SetAttributes(attribute.Float64("response.open_to_first_audio_time", time.Since(s.openedAt).Seconds()))
			})
			s.options.AudioCallback(msg)

		case websocket.TextMessage:
			var parsed incomingMessage
			if err := json.Unmarshal(msg, &parsed); err != nil {
				logger.Warn("failed to parse speech message", "error", err)
				continue
			}

			switch parsed.Type {
			case "Flushed":
				s.flushed()
			case "Warning":
				logger.Warn("deepgram speech warning", "description", parsed.Description)
			case "Error":
				err := fmt.Errorf("speech session error: %s %s", parsed.ErrCode, parsed.ErrMsg)
				s.span.RecordError(err)
				s.options.ErrorCallback(err)
				_ = s.Close()
				return
			}
		}
	}
}

// SendText queues text behind any flush the service has not yet confirmed.
func (s *speechSession) SendText(text string, flush bool) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	s.textMu.Lock()
	if s.textComplete {
		s.textMu.Unlock()
		return ErrTextComplete
	}
	s.appendText(text, flush)
	err := s.pump()
	s.textMu.Unlock()
	return err
}

// EndOfText seals the pending text. The session completes once every
// flush is confirmed.
func (s *speechSession) EndOfText() error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	s.textMu.Lock()
	s.textComplete = true
	if n := len(s.segments); n > 0 {
		s.segments[n-1].sealed = true
	}
	err := s.pump()
	drained := s.drained()
	s.textMu.Unlock()

	if drained {
		s.complete()
	}
	return err
}

func (s *speechSession) Done() <-chan struct{} { return s.done }

func (s *speechSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		writeErr := s.ws.WriteJSON(controlMessage{Type: "Close"})
		s.mu.Unlock()

		if closeErr := s.ws.Close(); closeErr != nil && writeErr != nil {
			err = fmt.Errorf("failed to close websocket: %w", errors.Join(writeErr, closeErr))
		}
		s.finish()
	})
	return err
}

func (s *speechSession) appendText(text string, flush bool) {
	if n := len(s.segments); n == 0 || s.segments[n-1].sealed {
		s.segments = append(s.segments, segment{})
	}
	last := &s.segments[len(s.segments)-1]
	last.text += text
	if flush {
		last.sealed = true
	}
}

// pump sends the head segment once it is sealed. Deepgram can drop text
// written right after a flush, so the next segment waits for Flushed.
// Callers hold textMu.
func (s *speechSession) pump() error {
	for !s.awaitingFlush && len(s.segments) > 0 && s.segments[0].sealed {
		head := s.segments[0]
		if strings.TrimSpace(head.text) == "" {
			s.segments = s.segments[1:]
			continue
		}
		if err := s.write(speakMessage{Type: "Speak", Text: head.text}); err != nil {
			return err
		}
		if err := s.write(controlMessage{Type: "Flush"}); err != nil {
			return err
		}
		s.awaitingFlush = true
	}
	return nil
}

func (s *speechSession) drained() bool {
	return s.textComplete && !s.awaitingFlush && len(s.segments) == 0
}

func (s *speechSession) flushed() {
	s.textMu.Lock()
	if s.awaitingFlush {
		s.awaitingFlush = false
		s.segments = s.segments[1:]
	}
	err := s.pump()
	drained := s.drained()
	s.textMu.Unlock()

	if err != nil && !errors.Is(err, ErrSessionClosed) {
		s.span.RecordError(err)
		s.options.ErrorCallback(err)
	}
	if drained {
		s.complete()
	}
}

func (s *speechSession) complete() {
	s.finalOnce.Do(s.options.FinalCallback)
	_ = s.Close()
}

func (s *speechSession) finish() {
	s.doneOnce.Do(func() {
		close(s.done)
		s.span.End()
	})
}

func (s *speechSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *speechSession) write(msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	if err := s.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}
