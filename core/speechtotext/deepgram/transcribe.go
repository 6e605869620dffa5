package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const chunkDurationMs = 100

func (c *TranscriptionClient) Transcribe(ctx context.Context, blob audio.Blob, opts ...speechtotext.TranscriptionOption) (string, error) {
	options := speechtotext.NewTranscriptionOptions(opts...)

	ctx, span := tracer.Start(ctx, "transcribe recording")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", c.model),
		attribute.Int("request.audio_bytes", len(blob.Data)),
	)

	fail := func(err error) (string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if blob.IsEmpty() {
		return fail(fmt.Errorf("recording is empty"))
	}

	encoding, err := convertEncoding(blob.EncodingInfo)
	if err != nil {
		return fail(fmt.Errorf("invalid encoding: %w", err))
	}

	listenURL, err := c.listenURL(connectionOptions{
		sampleRate: encoding.SampleRate,
		encoding:   encoding.Format.Name(),
		language:   options.Language,
	})
	if err != nil {
		return fail(err)
	}

	conn, _, err := c.dialer.DialContext(ctx, listenURL, http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return fail(fmt.Errorf("failed to open socket connection to deepgram: %w", err))
	}

	session := &transcription{conn: conn, options: options, done: make(chan struct{})}
	go session.readAndProcessMessages()

	stop := context.AfterFunc(ctx, session.close)
	defer stop()

	chunkSize := encoding.SampleRate * blob.EncodingInfo.Format.ByteSize() * chunkDurationMs / 1000
	if chunkSize <= 0 {
		chunkSize = len(blob.Data)
	}
	if err := session.sendAudio(blob.Data, chunkSize); err != nil {
		session.close()
		<-session.done
		if ctx.Err() != nil {
			return fail(ctx.Err())
		}
		return fail(err)
	}
	if err := session.stopStream(); err != nil {
		session.close()
		<-session.done
		return fail(err)
	}

	<-session.done
	session.close()
	if ctx.Err() != nil {
		return fail(ctx.Err())
	}
	if session.err != nil {
		return fail(session.err)
	}

	transcript := session.transcript()
	span.SetAttributes(attribute.Int("response.transcript_length", len(transcript)))
	return transcript, nil
}

type transcription struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	options speechtotext.TranscriptionOptions

	segments   []string
	err        error
	streamDone bool

	done      chan struct{}
	closeOnce sync.Once
}

func (t *transcription) sendAudio(data []byte, chunkSize int) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	for start := 0; start < len(data); start += chunkSize {
		end := min(start+chunkSize, len(data))
		if err := t.conn.WriteMessage(websocket.BinaryMessage, data[start:end]); err != nil {
			return fmt.Errorf("failed to write to deepgram client: %w", err)
		}
	}
	return nil
}

func (t *transcription) stopStream() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	t.streamDone = true
	if err := t.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	return nil
}

func (t *transcription) close() {
	t.closeOnce.Do(func() {
		_ = t.conn.Close()
	})
}

func (t *transcription) readAndProcessMessages() {
	defer close(t.done)

	for {
		msgType, msg, err := t.conn.ReadMessage()
		if err != nil {
			t.connMu.Lock()
			streamDone := t.streamDone
			t.connMu.Unlock()

			var closeErr *websocket.CloseError
			switch {
			case errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure:
			case streamDone && errors.As(err, &closeErr):
			default:
				t.err = fmt.Errorf("failed to read deepgram websocket message: %w", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			t.processMessage(msg)
		}
	}
}

func (t *transcription) processMessage(msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("Failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("Failed to unmarshal deepgram message", "error", err)
			return
		}
		if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
			return
		}
		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		if transcript == "" {
			return
		}
		t.segments = append(t.segments, transcript)
		t.options.PartialTranscriptionCallback(transcript)

	case api.TypeSpeechStartedResponse, api.TypeUtteranceEndResponse:
		logger.Debug("Ignoring deepgram voice activity message", "type", parsedMsg.Type)
	}
}

func (t *transcription) transcript() string {
	return strings.Join(t.segments, " ")
}
