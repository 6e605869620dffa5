package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/koscakluka/ema-voice/core/llms"
)

type collected struct {
	content        []string
	reasoning      []string
	conversationID string
	err            error
}

func collect(t *testing.T, stream llms.Stream) collected {
	t.Helper()

	result := collected{}
	for chunk, err := range stream.Chunks(context.Background()) {
		if err != nil {
			result.err = err
			break
		}
		switch typed := chunk.(type) {
		case llms.StreamContentChunk:
			result.content = append(result.content, typed.Content())
		case llms.StreamReasoningChunk:
			result.reasoning = append(result.reasoning, typed.Reasoning())
		case llms.StreamConversationChunk:
			result.conversationID = typed.ConversationID()
		}
	}
	return result
}

func sseServer(t *testing.T, onRequest func(*http.Request), lines ...string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if onRequest != nil {
			onRequest(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStreamSendsRequestAndYieldsContent(t *testing.T) {
	var request requestBody
	var headers http.Header
	server := sseServer(t,
		func(r *http.Request) {
			headers = r.Header.Clone()
			if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
		},
		": OPENROUTER PROCESSING",
		`data: {"choices":[{"delta":{"content":"Hello"}}]}`,
		`data: {"choices":[{"delta":{"reasoning":"thinking"}}]}`,
		`data: not json`,
		`data: {"choices":[{"delta":{"content":" there."}}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
		`data: [DONE]`,
		`data: {"choices":[{"delta":{"content":"ignored"}}]}`,
	)

	client, err := NewClient("key",
		WithURL(server.URL),
		WithSystemPrompt("be brief"),
		WithAppAttribution("https://example.com", "voice"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := collect(t, client.PromptWithStream(context.Background(), "hi",
		llms.WithMessages(llms.UserMessage("before"), llms.AssistantMessage("reply")),
	))
	if result.err != nil {
		t.Fatalf("unexpected error: %v", result.err)
	}
	if got := strings.Join(result.content, ""); got != "Hello there." {
		t.Fatalf("expected content %q, got %q", "Hello there.", got)
	}
	if len(result.reasoning) != 0 {
		t.Fatalf("expected reasoning to be dropped, got %v", result.reasoning)
	}

	if headers.Get("Authorization") != "Bearer key" || headers.Get("HTTP-Referer") != "https://example.com" || headers.Get("X-Title") != "voice" {
		t.Fatalf("unexpected headers %v", headers)
	}
	expectedMessages := []llms.Message{
		llms.SystemMessage("be brief"),
		llms.UserMessage("before"),
		llms.AssistantMessage("reply"),
		llms.UserMessage("hi"),
	}
	if !reflect.DeepEqual(request.Messages, expectedMessages) {
		t.Fatalf("expected messages %v, got %v", expectedMessages, request.Messages)
	}
	if request.Model != DefaultModel || request.Temperature != DefaultTemperature || request.MaxTokens != DefaultMaxTokens || !request.Stream {
		t.Fatalf("unexpected request %+v", request)
	}
}

func TestStreamAcceptsProxyFormat(t *testing.T) {
	server := sseServer(t, nil,
		`data: {"event":"start","chat_id":"chat-1"}`,
		`data: {"event":"reasoning","delta":"hmm"}`,
		`data: {"delta":"It is"}`,
		`data: {"delta":" noon."}`,
	)

	client, _ := NewClient("key", WithURL(server.URL), WithIncludeReasoning(true))
	result := collect(t, client.PromptWithStream(context.Background(), "what time is it"))

	if result.err != nil {
		t.Fatalf("unexpected error: %v", result.err)
	}
	if result.conversationID != "chat-1" {
		t.Fatalf("expected conversation id, got %q", result.conversationID)
	}
	if got := strings.Join(result.content, ""); got != "It is noon." {
		t.Fatalf("expected content, got %q", got)
	}
	if !reflect.DeepEqual(result.reasoning, []string{"hmm"}) {
		t.Fatalf("expected reasoning, got %v", result.reasoning)
	}
}

func TestStreamErrors(t *testing.T) {
	testCases := []struct {
		name     string
		lines    []string
		status   int
		expected string
	}{
		{name: "proxy error event", lines: []string{`data: {"delta":"Hi"}`, `data: {"event":"error","message":"upstream gone"}`}, expected: "upstream gone"},
		{name: "provider error", lines: []string{`data: {"error":{"message":"rate limited"}}`}, expected: "rate limited"},
		{name: "no text tokens", lines: []string{`data: [DONE]`}, expected: ErrNoTextTokens.Error()},
		{name: "status", status: http.StatusUnauthorized, expected: "401"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if testCase.status != 0 {
					http.Error(w, "nope", testCase.status)
					return
				}
				for _, line := range testCase.lines {
					fmt.Fprintf(w, "%s\n\n", line)
				}
			}))
			defer server.Close()

			client, _ := NewClient("key", WithURL(server.URL))
			result := collect(t, client.PromptWithStream(context.Background(), "hi"))
			if result.err == nil || !strings.Contains(result.err.Error(), testCase.expected) {
				t.Fatalf("expected error containing %q, got %v", testCase.expected, result.err)
			}
		})
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"delta\":\"Hi\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	client, _ := NewClient("key", WithURL(server.URL))
	ctx, cancel := context.WithCancel(context.Background())

	var err error
	for chunk, chunkErr := range client.PromptWithStream(ctx, "hi").Chunks(ctx) {
		if chunkErr != nil {
			err = chunkErr
			break
		}
		if _, ok := chunk.(llms.StreamContentChunk); ok {
			cancel()
		}
	}
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if ctx.Err() == nil || !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatalf("expected context to be cancelled, got %v", ctx.Err())
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Fatalf("expected an error without api key")
	}
}
