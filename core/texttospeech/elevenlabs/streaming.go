package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrSessionClosed = errors.New("speech session closed")

type initMessage struct {
	Text             string                     `json:"text"`
	APIKey           string                     `json:"xi_api_key"`
	VoiceSettings    texttospeech.VoiceSettings `json:"voice_settings"`
	GenerationConfig generationConfig           `json:"generation_config"`
}

type generationConfig struct {
	OutputFormat        string `json:"output_format"`
	ChunkLengthSchedule []int  `json:"chunk_length_schedule,omitempty"`
}

type textMessage struct {
	Text  string `json:"text"`
	Flush bool   `json:"flush,omitempty"`
}

type incomingMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type speechSession struct {
	ws *websocket.Conn
	mu sync.Mutex

	options texttospeech.SessionOptions
	span    trace.Span

	openedAt   time.Time
	firstAudio sync.Once
	closed     bool
	closeOnce  sync.Once
	done       chan struct{}
	doneOnce   sync.Once
}

// OpenSession connects to the stream-input websocket and sends the
// initialization message. Audio arrives through the session callbacks.
func (c *TextToSpeechClient) OpenSession(ctx context.Context, opts ...texttospeech.SessionOption) (texttospeech.Session, error) {
	_, span := tracer.Start(ctx, "speech session", trace.WithAttributes(
		attribute.String("request.voice", c.voiceID),
		attribute.String("request.model", c.modelID),
		attribute.String("request.output_format", c.outputFormat),
	))

	endpoint, err := c.streamURL()
	if err != nil {
		span.RecordError(err)
		span.End()
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		err = fmt.Errorf("failed to open socket connection to elevenlabs: %w", err)
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

	if err := session.write(initMessage{
		Text:          " ",
		APIKey:        c.apiKey,
		VoiceSettings: c.voiceSettings,
		GenerationConfig: generationConfig{
			OutputFormat:        c.outputFormat,
			ChunkLengthSchedule: c.chunkLengthSchedule,
		},
	}); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to initialize speech session: %w", err)
	}

	go session.processIncomingMessages()
	return session, nil
}

func (s *speechSession) processIncomingMessages() {
	for {
		msgType, msg, err := s.ws.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()

			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = fmt.Errorf("speech session read failed: %w", err)
				s.span.RecordError(err)
				s.span.SetStatus(codes.Error, err.Error())
				s.options.ErrorCallback(err)
			}
			s.finish()
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var parsed incomingMessage
		if err := json.Unmarshal(msg, &parsed); err != nil {
			logger.Warn("failed to parse speech message", "error", err)
			continue
		}

		if parsed.Error != "" {
			err := fmt.Errorf("speech session error: %s %s", parsed.Error, parsed.Message)
			s.span.RecordError(err)
			s.options.ErrorCallback(err)
			_ = s.Close()
			return
		}

		if parsed.Audio != "" {
			audio, err := base64.StdEncoding.DecodeString(parsed.Audio)
			if err != nil {
				logger.Warn("failed to decode speech audio", "error", err)
			} else if len(audio) > 0 {
				s.firstAudio.Do(func() {
					s.span.AddEvent("received first audio")
					s.span.SetAttributes(attribute.Float64("response.open_to_first_audio_time", time.Since(s.openedAt).Seconds()))
				})
				s.options.AudioCallback(audio)
			}
		}

		if parsed.IsFinal {
			s.options.FinalCallback()
			_ = s.Close()
			return
		}
	}
}

func (s *speechSession) SendText(text string, flush bool) error {
	return s.write(textMessage{Text: text, Flush: flush})
}

// EndOfText sends the empty text message that ends the input.
func (s *speechSession) EndOfText() error {
	return s.write(textMessage{Text: ""})
}

func (s *speechSession) Done() <-chan struct{} { return s.done }

func (s *speechSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		writeErr := s.ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		s.mu.Unlock()

		if closeErr := s.ws.Close(); closeErr != nil && writeErr != nil {
			err = fmt.Errorf("failed to close websocket: %w", errors.Join(writeErr, closeErr))
		}
		s.finish()
	})
	return err
}

func (s *speechSession) finish() {
	s.doneOnce.Do(func() {
		close(s.done)
		s.span.End()
	})
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
