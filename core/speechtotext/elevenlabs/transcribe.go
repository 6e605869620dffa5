package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	baseURL = "https://api.elevenlabs.io"

	DefaultModelID = "scribe_v1"
)

// TranscriptionClient uploads finished recordings to the ElevenLabs
// speech-to-text endpoint.
type TranscriptionClient struct {
	apiKey   string
	baseURL  string
	modelID  string
	language string

	httpClient *http.Client
}

type ClientOption func(*TranscriptionClient)

func NewTranscriptionClient(apiKey string, opts ...ClientOption) (*TranscriptionClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("elevenlabs: api key is required")
	}

	client := &TranscriptionClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		modelID: DefaultModelID,
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

func WithModel(modelID string) ClientOption {
	return func(c *TranscriptionClient) {
		if modelID != "" {
			c.modelID = modelID
		}
	}
}

// WithLanguage sets the default language code. A per-call
// speechtotext.WithLanguage overrides it.
func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) { c.language = language }
}

func WithBaseURL(base string) ClientOption {
	return func(c *TranscriptionClient) {
		if base != "" {
			c.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *TranscriptionClient) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

type transcriptionResponse struct {
	LanguageCode string `json:"language_code"`
	Text         string `json:"text"`
}

func (c *TranscriptionClient) Transcribe(ctx context.Context, blob audio.Blob, opts ...speechtotext.TranscriptionOption) (string, error) {
	options := speechtotext.NewTranscriptionOptions(speechtotext.WithLanguage(c.language))
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "transcribe recording")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", c.modelID),
		attribute.Int("request.audio_bytes", len(blob.Data)),
		attribute.Int64("request.audio_ms", blob.Duration().Milliseconds()),
	)

	fail := func(err error) (string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if blob.IsEmpty() {
		return fail(fmt.Errorf("recording is empty"))
	}

	body, contentType, err := c.form(blob, options.Language)
	if err != nil {
		return fail(fmt.Errorf("error building form: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/speech-to-text", body)
	if err != nil {
		return fail(fmt.Errorf("error creating HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("error sending request: %w", err))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
			logger.Warn("speech-to-text request failed", "status", resp.Status, "body", string(errorBody))
		}
		return fail(fmt.Errorf("non-OK HTTP status: %s", resp.Status))
	}

	var result transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fail(fmt.Errorf("error decoding response: %w", err))
	}

	transcript := strings.TrimSpace(result.Text)
	span.SetAttributes(
		attribute.String("response.language", result.LanguageCode),
		attribute.Int("response.transcript_length", len(transcript)),
	)
	if transcript != "" {
		options.PartialTranscriptionCallback(transcript)
	}
	return transcript, nil
}

func (c *TranscriptionClient) form(blob audio.Blob, language string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	file, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := file.Write(blob.WAV()); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("model_id", c.modelID); err != nil {
		return nil, "", err
	}
	if language != "" {
		if err := writer.WriteField("language_code", language); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
