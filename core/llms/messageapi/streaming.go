package messageapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrNoTextTokens is returned when a stream finished without any content.
var ErrNoTextTokens = errors.New("no text tokens")

type requestBody struct {
	ChatID       string `json:"chat_id,omitempty"`
	Query        string `json:"query"`
	SourcesLimit int    `json:"sources_limit"`
	Stream       bool   `json:"stream"`
	Model        string `json:"model,omitempty"`
}

type streamEvent struct {
	Event   string `json:"event"`
	ChatID  string `json:"chat_id"`
	Delta   string `json:"delta"`
	Message string `json:"message"`
}

type Stream struct {
	client  *Client
	request requestBody
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt message stream")
		defer span.End()
		span.SetAttributes(
			attribute.Bool("request.has_chat_id", s.request.ChatID != ""),
			attribute.Int("request.query_length", len(s.request.Query)),
		)

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
		}

		requestBodyBytes, err := json.Marshal(s.request)
		if err != nil {
			fail(fmt.Errorf("error marshalling JSON: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.messageURL(), bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			fail(fmt.Errorf("error creating HTTP request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")

		requestedAt := time.Now()
		resp, err := s.client.httpClient.Do(req)
		if err != nil {
			fail(fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err == nil {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}
			fail(fmt.Errorf("non-OK HTTP status: %s", resp.Status))
			return
		}

		contentChunks := 0
		event := ""
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				event = ""
				continue
			}
			if strings.HasPrefix(line, eventPrefix) {
				event = strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))
				continue
			}
			if !strings.HasPrefix(line, chunkPrefix) {
				continue
			}

			chunk := strings.TrimSpace(strings.TrimPrefix(line, chunkPrefix))
			if len(chunk) == 0 {
				continue
			}
			if chunk == endMessage {
				break
			}

			var parsed streamEvent
			if err := json.Unmarshal([]byte(chunk), &parsed); err != nil {
				logger.Warn("skipping malformed stream payload", "error", err)
				continue
			}
			if parsed.Event == "" {
				parsed.Event = event
			}

			switch parsed.Event {
			case "start":
				if parsed.ChatID != "" {
					span.SetAttributes(attribute.String("response.chat_id", parsed.ChatID))
					if !yield(conversationChunk{conversationID: parsed.ChatID}, nil) {
						return
					}
				}
				continue
			case "error":
				fail(fmt.Errorf("stream error: %s", parsed.Message))
				return
			}

			if parsed.Delta == "" {
				continue
			}
			if contentChunks == 0 {
				span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestedAt).Seconds()))
			}
			contentChunks++
			if !yield(contentChunk{content: parsed.Delta}, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			fail(fmt.Errorf("error reading streamed response: %w", err))
			return
		}

		span.SetAttributes(attribute.Int("response.content_chunks", contentChunks))
		if contentChunks == 0 {
			fail(ErrNoTextTokens)
		}
	}
}

type contentChunk struct {
	content string
}

func (c contentChunk) FinishReason() *string { return nil }
func (c contentChunk) Content() string       { return c.content }

type conversationChunk struct {
	conversationID string
}

func (c conversationChunk) FinishReason() *string  { return nil }
func (c conversationChunk) ConversationID() string { return c.conversationID }
