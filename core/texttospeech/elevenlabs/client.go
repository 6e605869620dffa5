package elevenlabs

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	baseURL = "https://api.elevenlabs.io"

	DefaultModelID      = "eleven_flash_v2_5"
	DefaultOutputFormat = "mp3_44100_128"
)

// TextToSpeechClient synthesizes speech with ElevenLabs, either streamed over
// the stream-input websocket or in one REST request.
type TextToSpeechClient struct {
	apiKey  string
	voiceID string
	baseURL string

	modelID             string
	outputFormat        string
	voiceSettings       texttospeech.VoiceSettings
	chunkLengthSchedule []int

	httpClient *http.Client
	dialer     *websocket.Dialer
}

type ClientOption func(*TextToSpeechClient)

func NewTextToSpeechClient(apiKey, voiceID string, opts ...ClientOption) (*TextToSpeechClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("elevenlabs: api key is required")
	}
	if voiceID == "" {
		return nil, fmt.Errorf("elevenlabs: voice id is required")
	}

	client := &TextToSpeechClient{
		apiKey:        apiKey,
		voiceID:       voiceID,
		baseURL:       baseURL,
		modelID:       DefaultModelID,
		outputFormat:  DefaultOutputFormat,
		voiceSettings: texttospeech.DefaultVoiceSettings(),
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

func WithModel(modelID string) ClientOption {
	return func(c *TextToSpeechClient) {
		if modelID != "" {
			c.modelID = modelID
		}
	}
}

// WithOutputFormat sets the ElevenLabs output format, e.g. mp3_44100_128 or
// pcm_16000.
func WithOutputFormat(format string) ClientOption {
	return func(c *TextToSpeechClient) {
		if format != "" {
			c.outputFormat = format
		}
	}
}

func WithVoiceSettings(settings texttospeech.VoiceSettings) ClientOption {
	return func(c *TextToSpeechClient) { c.voiceSettings = settings }
}

// WithChunkLengthSchedule trades time to first audio for quality, e.g.
// [120, 160, 250, 290].
func WithChunkLengthSchedule(schedule ...int) ClientOption {
	return func(c *TextToSpeechClient) { c.chunkLengthSchedule = schedule }
}

// WithBaseURL replaces https://api.elevenlabs.io for both REST and websocket
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

func (c *TextToSpeechClient) OutputFormat() string { return c.outputFormat }

func (c *TextToSpeechClient) streamURL() (string, error) {
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	switch endpoint.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	case "http":
		endpoint.Scheme = "ws"
	}
	endpoint.Path = "/v1/text-to-speech/" + url.PathEscape(c.voiceID) + "/stream-input"

	query := url.Values{}
	query.Set("model_id", c.modelID)
	query.Set("output_format", c.outputFormat)
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}

func (c *TextToSpeechClient) synthesisURL() string {
	query := url.Values{}
	query.Set("output_format", c.outputFormat)
	return c.baseURL + "/v1/text-to-speech/" + url.PathEscape(c.voiceID) + "?" + query.Encode()
}
