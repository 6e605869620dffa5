package deepgram

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

const (
	baseURL = "wss://api.deepgram.com"

	DefaultModel    = "nova-3"
	DefaultLanguage = "en-US"
)

// TranscriptionClient transcribes finished recordings over the Deepgram live
// websocket: the whole recording is streamed, the stream is closed and the
// final results are joined.
type TranscriptionClient struct {
	apiKey   string
	baseURL  string
	model    string
	language string

	dialer *websocket.Dialer
}

type ClientOption func(*TranscriptionClient)

func NewTranscriptionClient(apiKey string, opts ...ClientOption) (*TranscriptionClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram: api key is required")
	}

	client := &TranscriptionClient{
		apiKey:   apiKey,
		baseURL:  baseURL,
		model:    DefaultModel,
		language: DefaultLanguage,
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) {
		if model != "" {
			c.model = model
		}
	}
}

func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) {
		if language != "" {
			c.language = language
		}
	}
}

// WithBaseURL replaces wss://api.deepgram.com. http and https schemes are
// mapped to their websocket counterparts.
func WithBaseURL(base string) ClientOption {
	return func(c *TranscriptionClient) {
		if base != "" {
			c.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

type connectionOptions struct {
	sampleRate int
	encoding   string
	language   string
}

func (c *TranscriptionClient) listenURL(options connectionOptions) (string, error) {
	listenURL, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch listenURL.Scheme {
	case "https":
		listenURL.Scheme = "wss"
	case "http":
		listenURL.Scheme = "ws"
	}
	listenURL.Path = "/v1/listen"

	language := options.language
	if language == "" {
		language = c.language
	}

	queryParams := listenURL.Query()
	queryParams.Set("encoding", options.encoding)
	queryParams.Set("sample_rate", fmt.Sprint(options.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", c.model)
	queryParams.Set("language", language)
	queryParams.Set("smart_format", "true")
	listenURL.RawQuery = queryParams.Encode()
	return listenURL.String(), nil
}
