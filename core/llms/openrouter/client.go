package openrouter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	url = "https://openrouter.ai/api/v1/chat/completions"

	endMessage  = "[DONE]"
	chunkPrefix = "data:"

	DefaultModel       = "openai/gpt-4o"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 256
)

type Client struct {
	apiKey string
	url    string

	model            string
	temperature      float64
	maxTokens        int
	includeReasoning bool
	systemPrompt     string

	referer string
	title   string

	httpClient *http.Client
}

type ClientOption func(*Client)

func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter: api key is required")
	}

	client := &Client{
		apiKey:      apiKey,
		url:         url,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

func WithTemperature(temperature float64) ClientOption {
	return func(c *Client) { c.temperature = temperature }
}

func WithMaxTokens(maxTokens int) ClientOption {
	return func(c *Client) {
		if maxTokens > 0 {
			c.maxTokens = maxTokens
		}
	}
}

// WithIncludeReasoning requests reasoning tokens and yields them as
// reasoning chunks.
func WithIncludeReasoning(include bool) ClientOption {
	return func(c *Client) { c.includeReasoning = include }
}

func WithSystemPrompt(prompt string) ClientOption {
	return func(c *Client) { c.systemPrompt = prompt }
}

// WithAppAttribution sets the optional HTTP-Referer and X-Title headers.
func WithAppAttribution(referer, title string) ClientOption {
	return func(c *Client) {
		c.referer = referer
		c.title = title
	}
}

// WithURL points the client at another chat completions endpoint, e.g. a
// proxy speaking the same protocol.
func WithURL(endpoint string) ClientOption {
	return func(c *Client) {
		if endpoint != "" {
			c.url = endpoint
		}
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// PromptWithStream prepares a streamed completion of prompt. The request is
// sent when the chunks are iterated.
func (c *Client) PromptWithStream(_ context.Context, prompt string, opts ...llms.StreamingPromptOption) llms.Stream {
	options := llms.StreamingPromptOptions{Instructions: c.systemPrompt}
	for _, opt := range opts {
		opt(&options)
	}

	return &Stream{
		client: c,
		request: requestBody{
			Model:            c.model,
			Messages:         options.BuildMessages(prompt),
			Stream:           true,
			Temperature:      c.temperature,
			MaxTokens:        c.maxTokens,
			IncludeReasoning: c.includeReasoning,
		},
	}
}
