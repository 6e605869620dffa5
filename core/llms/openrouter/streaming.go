package openrouter

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
	Model            string         `json:"model"`
	Messages         []llms.Message `json:"messages"`
	Stream           bool           `json:"stream"`
	Temperature      float64        `json:"temperature"`
	MaxTokens        int            `json:"max_tokens"`
	IncludeReasoning bool           `json:"include_reasoning,omitempty"`
}

// streamingResponseBody accepts both OpenRouter chunks and the proxy format
// ({event, chat_id}, {delta}, {event: "error", message}).
type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			Reasoning json.RawMessage `json:"reasoning"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`

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
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(
			attribute.String("request.model", s.request.Model),
			attribute.Int("request.messages", len(s.request.Messages)),
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

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			fail(fmt.Errorf("error creating HTTP request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Authorization", "Bearer "+s.client.apiKey)
		if s.client.referer != "" {
			req.Header.Set("HTTP-Referer", s.client.referer)
		}
		if s.client.title != "" {
			req.Header.Set("X-Title", s.client.title)
		}

		requestedAt := time.Now()
		span.AddEvent("request started")
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
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, chunkPrefix) {
				// blank separators, comments and other SSE fields
				continue
			}
			chunk := strings.TrimSpace(strings.TrimPrefix(line, chunkPrefix))
			if len(chunk) == 0 {
				continue
			}
			if chunk == endMessage {
				break
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
				err = fmt.Errorf("error unmarshalling JSON: %w", err)
				span.RecordError(err)
				logger.Warn("skipping malformed stream payload", "error", err)
				continue
			}

			if responseBody.Error != nil {
				fail(fmt.Errorf("stream error: %s", responseBody.Error.Message))
				return
			}

			switch responseBody.Event {
			case "start":
				if responseBody.ChatID != "" && !yield(conversationChunk{conversationID: responseBody.ChatID}, nil) {
					return
				}
				continue
			case "error":
				fail(fmt.Errorf("stream error: %s", responseBody.Message))
				return
			case "reasoning":
				if s.request.IncludeReasoning && responseBody.Delta != "" && !yield(reasoningChunk{reasoning: responseBody.Delta}, nil) {
					return
				}
				continue
			}

			if responseBody.Delta != "" {
				if contentChunks == 0 {
					span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestedAt).Seconds()))
				}
				contentChunks++
				if !yield(contentChunk{content: responseBody.Delta}, nil) {
					return
				}
				continue
			}

			if len(responseBody.Choices) > 0 {
				choice := responseBody.Choices[0]
				if reasoning := reasoningText(choice.Delta.Reasoning); s.request.IncludeReasoning && reasoning != "" {
					if !yield(reasoningChunk{finishReason: choice.FinishReason, reasoning: reasoning}, nil) {
						return
					}
				}
				if choice.Delta.Content != "" {
					if contentChunks == 0 {
						span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestedAt).Seconds()))
					}
					contentChunks++
					if !yield(contentChunk{finishReason: choice.FinishReason, content: choice.Delta.Content}, nil) {
						return
					}
				}
			}

			if responseBody.Usage != nil {
				span.SetAttributes(
					attribute.Int("usage.prompt", responseBody.Usage.PromptTokens),
					attribute.Int("usage.completion", responseBody.Usage.CompletionTokens),
					attribute.Int("usage.total", responseBody.Usage.TotalTokens),
				)
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

// reasoningText accepts both a plain string and {"content": "..."}.
func reasoningText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var structured struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &structured); err == nil {
		return structured.Content
	}
	return ""
}

type contentChunk struct {
	finishReason *string
	content      string
}

func (c contentChunk) FinishReason() *string { return c.finishReason }
func (c contentChunk) Content() string       { return c.content }

type reasoningChunk struct {
	finishReason *string
	reasoning    string
}

func (c reasoningChunk) FinishReason() *string { return c.finishReason }
func (c reasoningChunk) Reasoning() string     { return c.reasoning }

type conversationChunk struct {
	conversationID string
}

func (c conversationChunk) FinishReason() *string  { return nil }
func (c conversationChunk) ConversationID() string { return c.conversationID }
