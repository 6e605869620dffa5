package deepgram

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	baseURL  = "https://api.deepgram.com"
	encoding = "linear16"

	DefaultVoice      = "aura-2-thalia-en"
	DefaultSampleRate = 24000
)

// TextToSpeechClient synthesizes raw linear16 speech with Deepgram Aura,
// either streamed over the speak websocket or in one REST request.
type TextToSpeechClient struct {
	apiKey     string
	baseURL    string
	voice      string
	sampleRate int

	httpClient *http.Client
	dialer     *websocket.Dialer
}

type ClientOption func(*TextToSpeechClient)

func NewTextToSpeechClient(apiKey string, opts ...ClientOption) (*TextToSpeechClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram: api key is required")
	}

	client := &TextToSpeechClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		voice:      DefaultVoice,
		sampleRate: DefaultSampleRate,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// WithVoice selects the Aura model, e.g. aura-2-thalia-en.
func WithVoice(voice string) ClientOption {
	return func(c *TextToSpeechClient) {
		if voice != "" {
			c.voice = voice
		}
	}
}

func WithSampleRate(sampleRate int) ClientOption {
	return func(c *TextToSpeechClient) {
		if sampleRate > 0 {
			c.sampleRate = sampleRate
		}
	}
}

// WithBaseURL replaces https://api.deepgram.com for both REST and websocket
// requests.
func WithBaseURL(base string) ClientOption {
	return func(c *TextToSpeechClient) {
		if base != "" {
			c.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *TextToSpeechClient) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// OutputFormat reports the playback format of the headerless linear16 audio
// Deepgram returns.
func (c *TextToSpeechClient) OutputFormat() string {
	return "pcm_" + strconv.Itoa(c.sampleRate)
}

func (c *TextToSpeechClient) speakURL(websocketScheme bool) (string, error) {
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	if websocketScheme {
		switch endpoint.Scheme {
		case "https":
			endpoint.Scheme = "wss"
		case "http":
			endpoint.Scheme = "ws"
		}
	}
	endpoint.Path = "/v1/speak"

	query := url.Values{}
	query.Set("model", c.voice)
	query.Set("encoding", encoding)
	query.Set("sample_rate", strconv.Itoa(c.sampleRate))
	query.Set("container", "none")
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}

func (c *TextToSpeechClient) authHeader() http.Header {
	return http.Header{"Authorization": {"token " + c.apiKey}}
}
