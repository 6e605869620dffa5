package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	LLMProviderOpenRouter = "openrouter"
	LLMProviderMessageAPI = "message_api"

	STTProviderElevenLabs = "elevenlabs"
	STTProviderDeepgram   = "deepgram"

	TTSProviderElevenLabs = "elevenlabs"
	TTSProviderDeepgram   = "deepgram"

	TTSModeStreaming = "streaming"
	TTSModeBuffered  = "buffered"

	AudioBackendMiniaudio = "miniaudio"
	AudioBackendPortaudio = "portaudio"
)

// Config is everything the voiceturns CLI reads from the environment.
type Config struct {
	LLMProvider         string  `json:"LLM_PROVIDER,omitempty" jsonschema:"enum=openrouter,enum=message_api,default=openrouter"`
	OpenRouterAPIKey    string  `json:"OPEN_ROUTER_API_KEY,omitempty" jsonschema:"description=Required when LLM_PROVIDER is openrouter"`
	OpenRouterReferrer  string  `json:"OPEN_ROUTER_HTTP_REFERRER,omitempty" jsonschema:"description=Sent as HTTP-Referer for app attribution"`
	OpenRouterAppTitle  string  `json:"OPEN_ROUTER_APP_TITLE,omitempty" jsonschema:"description=Sent as X-Title for app attribution"`
	LLMModel            string  `json:"LLM_MODEL,omitempty" jsonschema:"description=Empty means openai/gpt-4o on openrouter and the backend's own model on message_api"`
	LLMTemperature      float64 `json:"LLM_TEMPERATURE,omitempty" jsonschema:"minimum=0,maximum=2,default=0.2"`
	LLMMaxTokens        int     `json:"LLM_MAX_TOKENS,omitempty" jsonschema:"minimum=1,default=256"`
	LLMIncludeReasoning bool    `json:"LLM_INCLUDE_REASONING,omitempty"`
	LLMSystemPrompt     string  `json:"LLM_SYSTEM_PROMPT,omitempty"`
	HistoryTurns        int     `json:"LLM_HISTORY_TURNS,omitempty" jsonschema:"minimum=0,default=12"`

	AIBaseURL          string `json:"AI_BASE_URL,omitempty" jsonschema:"description=Message backend root; required when LLM_PROVIDER is message_api"`
	AIAPIKey           string `json:"AI_API_KEY,omitempty" jsonschema:"description=Static bearer token used when no OAuth client is configured"`
	OAuthTokenEndpoint string `json:"OAUTH_TOKEN_ENDPOINT,omitempty"`
	OAuthClientID      string `json:"OAUTH_CLIENT_ID,omitempty"`
	OAuthClientSecret  string `json:"OAUTH_CLIENT_SECRET,omitempty"`
	OAuthScope         string `json:"OAUTH_SCOPE,omitempty" jsonschema:"default=api/access"`
	LLMEnableMarkdown  bool   `json:"LLM_ENABLE_MARKDOWN,omitempty"`
	LLMEnableKallm     bool   `json:"LLM_ENABLE_KALLM,omitempty" jsonschema:"default=true"`
	LLMEnableSources   bool   `json:"LLM_ENABLE_SOURCES,omitempty"`

	ElevenLabsAPIKey       string `json:"ELEVENLABS_API_KEY,omitempty" jsonschema:"description=Required when either speech provider is elevenlabs"`
	ElevenLabsVoiceID      string `json:"ELEVENLABS_VOICE_ID,omitempty" jsonschema:"description=Voice used to speak answers; required when TTS_PROVIDER is elevenlabs"`
	ElevenLabsModelID      string `json:"ELEVENLABS_MODEL_ID,omitempty" jsonschema:"default=eleven_flash_v2_5"`
	ElevenLabsOutputFormat string `json:"ELEVENLABS_OUTPUT_FORMAT,omitempty" jsonschema:"default=mp3_44100_128"`
	ElevenLabsSTTModelID   string `json:"ELEVENLABS_STT_MODEL_ID,omitempty" jsonschema:"default=scribe_v1"`

	STTProvider           string `json:"STT_PROVIDER,omitempty" jsonschema:"enum=elevenlabs,enum=deepgram,default=elevenlabs"`
	STTLanguage           string `json:"STT_LANGUAGE,omitempty" jsonschema:"description=Language hint passed to whichever transcriber is selected"`
	TTSProvider           string `json:"TTS_PROVIDER,omitempty" jsonschema:"enum=elevenlabs,enum=deepgram,default=elevenlabs"`
	TTSMode               string `json:"TTS_MODE,omitempty" jsonschema:"enum=streaming,enum=buffered,default=streaming"`
	DeepgramAPIKey        string `json:"DEEPGRAM_API_KEY,omitempty" jsonschema:"description=Required when either speech provider is deepgram"`
	DeepgramTTSVoice      string `json:"DEEPGRAM_TTS_VOICE,omitempty" jsonschema:"default=aura-2-thalia-en"`
	DeepgramTTSSampleRate int    `json:"DEEPGRAM_TTS_SAMPLE_RATE,omitempty" jsonschema:"enum=8000,enum=16000,enum=24000,enum=48000,default=24000"`

	AudioBackend string `json:"AUDIO_BACKEND,omitempty" jsonschema:"enum=miniaudio,enum=portaudio,default=miniaudio"`
	SampleRate   int    `json:"AUDIO_SAMPLE_RATE,omitempty" jsonschema:"enum=8000,enum=16000,enum=24000,enum=48000,default=16000"`

	VADOnsetThreshold   float64       `json:"VAD_ONSET_THRESHOLD,omitempty" jsonschema:"exclusiveMinimum=0,maximum=1,default=0.1"`
	VADSilenceThreshold float64       `json:"VAD_SILENCE_THRESHOLD,omitempty" jsonschema:"exclusiveMinimum=0,maximum=1,default=0.05"`
	VADMinSpeech        time.Duration `json:"VAD_MIN_SPEECH,omitempty" jsonschema:"type=string,description=Go duration such as 200ms"`
	VADMinSilence       time.Duration `json:"VAD_MIN_SILENCE,omitempty" jsonschema:"type=string,description=Go duration such as 900ms"`
	VADGain             float64       `json:"VAD_GAIN,omitempty" jsonschema:"exclusiveMinimum=0,default=1.6"`
	VADSmoothing        float64       `json:"VAD_SMOOTHING,omitempty" jsonschema:"minimum=0,maximum=1,default=0.35"`

	CaptureStopTimeout time.Duration `json:"CAPTURE_STOP_TIMEOUT,omitempty" jsonschema:"type=string,description=Go duration such as 2s"`

	ConversationStorePath string `json:"CONVERSATION_STORE_PATH,omitempty" jsonschema:"description=JSON file keeping conversation history; empty keeps it in memory"`
	LogFile               string `json:"LOG_FILE,omitempty" jsonschema:"default=voiceturns.log"`
}

func Default() Config {
	return Config{
		LLMProvider:            LLMProviderOpenRouter,
		LLMTemperature:         0.2,
		LLMMaxTokens:           256,
		HistoryTurns:           12,
		OAuthScope:             "api/access",
		LLMEnableKallm:         true,
		ElevenLabsModelID:      "eleven_flash_v2_5",
		ElevenLabsOutputFormat: "mp3_44100_128",
		ElevenLabsSTTModelID:   "scribe_v1",
		STTProvider:            STTProviderElevenLabs,
		TTSProvider:            TTSProviderElevenLabs,
		TTSMode:                TTSModeStreaming,
		DeepgramTTSVoice:       "aura-2-thalia-en",
		DeepgramTTSSampleRate:  24000,
		AudioBackend:           AudioBackendMiniaudio,
		SampleRate:             16000,
		VADOnsetThreshold:      0.10,
		VADSilenceThreshold:    0.05,
		VADMinSpeech:           200 * time.Millisecond,
		VADMinSilence:          900 * time.Millisecond,
		VADGain:                1.6,
		VADSmoothing:           0.35,
		CaptureStopTimeout:     2 * time.Second,
		LogFile:                "voiceturns.log",
	}
}

// Loader reads configuration through Lookup, os.LookupEnv when nil.
type Loader struct {
	Lookup func(key string) (string, bool)
}

// LoadDotEnv loads variables from .env style files into the process
// environment without overriding what is already set. Missing files are
// skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	var existing []string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load %s: %w", strings.Join(existing, ", "), err)
	}
	return nil
}

func Load() (Config, error) {
	return Loader{}.Load()
}

// Load applies environment overrides on top of Default and validates the
// result. Every malformed value is reported.
func (l Loader) Load() (Config, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	r := reader{lookup: lookup}

	config := Default()
	r.string("LLM_PROVIDER", &config.LLMProvider)
	r.string("OPEN_ROUTER_API_KEY", &config.OpenRouterAPIKey)
	r.string("OPEN_ROUTER_HTTP_REFERRER", &config.OpenRouterReferrer)
	r.string("OPEN_ROUTER_APP_TITLE", &config.OpenRouterAppTitle)
	r.string("LLM_MODEL", &config.LLMModel)
	r.float("LLM_TEMPERATURE", &config.LLMTemperature)
	r.int("LLM_MAX_TOKENS", &config.LLMMaxTokens)
	r.bool("LLM_INCLUDE_REASONING", &config.LLMIncludeReasoning)
	r.string("LLM_SYSTEM_PROMPT", &config.LLMSystemPrompt)
	r.int("LLM_HISTORY_TURNS", &config.HistoryTurns)

	r.string("AI_BASE_URL", &config.AIBaseURL)
	r.string("AI_API_KEY", &config.AIAPIKey)
	r.string("OAUTH_TOKEN_ENDPOINT", &config.OAuthTokenEndpoint)
	r.string("OAUTH_CLIENT_ID", &config.OAuthClientID)
	r.string("OAUTH_CLIENT_SECRET", &config.OAuthClientSecret)
	r.string("OAUTH_SCOPE", &config.OAuthScope)
	r.bool("LLM_ENABLE_MARKDOWN", &config.LLMEnableMarkdown)
	r.bool("LLM_ENABLE_KALLM", &config.LLMEnableKallm)
	r.bool("LLM_ENABLE_SOURCES", &config.LLMEnableSources)

	r.string("ELEVENLABS_API_KEY", &config.ElevenLabsAPIKey)
	r.string("ELEVENLABS_VOICE_ID", &config.ElevenLabsVoiceID)
	r.string("ELEVENLABS_MODEL_ID", &config.ElevenLabsModelID)
	r.string("ELEVENLABS_OUTPUT_FORMAT", &config.ElevenLabsOutputFormat)
	r.string("ELEVENLABS_STT_MODEL_ID", &config.ElevenLabsSTTModelID)

	r.string("STT_PROVIDER", &config.STTProvider)
	r.string("STT_LANGUAGE", &config.STTLanguage)
	r.string("TTS_PROVIDER", &config.TTSProvider)
	r.string("TTS_MODE", &config.TTSMode)
	r.string("DEEPGRAM_API_KEY", &config.DeepgramAPIKey)
	r.string("DEEPGRAM_TTS_VOICE", &config.DeepgramTTSVoice)
	r.int("DEEPGRAM_TTS_SAMPLE_RATE", &config.DeepgramTTSSampleRate)

	r.string("AUDIO_BACKEND", &config.AudioBackend)
	r.int("AUDIO_SAMPLE_RATE", &config.SampleRate)

	r.float("VAD_ONSET_THRESHOLD", &config.VADOnsetThreshold)
	r.float("VAD_SILENCE_THRESHOLD", &config.VADSilenceThreshold)
	r.duration("VAD_MIN_SPEECH", &config.VADMinSpeech)
	r.duration("VAD_MIN_SILENCE", &config.VADMinSilence)
	r.float("VAD_GAIN", &config.VADGain)
	r.float("VAD_SMOOTHING", &config.VADSmoothing)

	r.duration("CAPTURE_STOP_TIMEOUT", &config.CaptureStopTimeout)
	r.string("CONVERSATION_STORE_PATH", &config.ConversationStorePath)
	r.string("LOG_FILE", &config.LogFile)

	if r.errs != nil {
		return config, r.errs
	}
	return config, config.Validate()
}

// Validate checks the settings and requires the credentials of the selected
// providers only.
func (c Config) Validate() error {
	var errs error
	require := func(value, key, reason string) {
		if value == "" {
			errs = errors.Join(errs, fmt.Errorf("%s is required %s", key, reason))
		}
	}

	switch c.LLMProvider {
	case LLMProviderOpenRouter:
		require(c.OpenRouterAPIKey, "OPEN_ROUTER_API_KEY", "for the openrouter provider")
	case LLMProviderMessageAPI:
		require(c.AIBaseURL, "AI_BASE_URL", "for the message_api provider")
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}

	switch c.STTProvider {
	case STTProviderElevenLabs:
		require(c.ElevenLabsAPIKey, "ELEVENLABS_API_KEY", "for the elevenlabs transcriber")
	case STTProviderDeepgram:
		require(c.DeepgramAPIKey, "DEEPGRAM_API_KEY", "for the deepgram transcriber")
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider))
	}

	switch c.TTSProvider {
	case TTSProviderElevenLabs:
		if c.STTProvider != STTProviderElevenLabs {
			require(c.ElevenLabsAPIKey, "ELEVENLABS_API_KEY", "for the elevenlabs synthesizer")
		}
		require(c.ElevenLabsVoiceID, "ELEVENLABS_VOICE_ID", "for the elevenlabs synthesizer")
	case TTSProviderDeepgram:
		if c.STTProvider != STTProviderDeepgram {
			require(c.DeepgramAPIKey, "DEEPGRAM_API_KEY", "for the deepgram synthesizer")
		}
		switch c.DeepgramTTSSampleRate {
		case 8000, 16000, 24000, 48000:
		default:
			errs = errors.Join(errs, fmt.Errorf("unsupported DEEPGRAM_TTS_SAMPLE_RATE %d", c.DeepgramTTSSampleRate))
		}
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider))
	}

	switch c.TTSMode {
	case TTSModeStreaming, TTSModeBuffered:
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown TTS_MODE %q", c.TTSMode))
	}
	switch c.AudioBackend {
	case AudioBackendMiniaudio, AudioBackendPortaudio:
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown AUDIO_BACKEND %q", c.AudioBackend))
	}

	switch c.SampleRate {
	case 8000, 16000, 24000, 48000:
	default:
		errs = errors.Join(errs, fmt.Errorf("unsupported AUDIO_SAMPLE_RATE %d", c.SampleRate))
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		errs = errors.Join(errs, fmt.Errorf("LLM_TEMPERATURE must be in [0,2], got %v", c.LLMTemperature))
	}
	if c.LLMMaxTokens <= 0 {
		errs = errors.Join(errs, fmt.Errorf("LLM_MAX_TOKENS must be positive, got %d", c.LLMMaxTokens))
	}
	if c.HistoryTurns < 0 {
		errs = errors.Join(errs, fmt.Errorf("LLM_HISTORY_TURNS must not be negative, got %d", c.HistoryTurns))
	}
	if c.CaptureStopTimeout <= 0 {
		errs = errors.Join(errs, fmt.Errorf("CAPTURE_STOP_TIMEOUT must be positive, got %s", c.CaptureStopTimeout))
	}
	return errs
}

type reader struct {
	lookup func(string) (string, bool)
	errs   error
}

func (r *reader) value(key string) (string, bool) {
	value, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (r *reader) string(key string, target *string) {
	if value, ok := r.value(key); ok {
		*target = value
	}
}

func (r *reader) int(key string, target *int) {
	value, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		r.errs = errors.Join(r.errs, fmt.Errorf("%s: invalid integer %q", key, value))
		return
	}
	*target = parsed
}

func (r *reader) float(key string, target *float64) {
	value, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.errs = errors.Join(r.errs, fmt.Errorf("%s: invalid number %q", key, value))
		return
	}
	*target = parsed
}

func (r *reader) bool(key string, target *bool) {
	value, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		r.errs = errors.Join(r.errs, fmt.Errorf("%s: invalid boolean %q", key, value))
		return
	}
	*target = parsed
}

func (r *reader) duration(key string, target *time.Duration) {
	value, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		r.errs = errors.Join(r.errs, fmt.Errorf("%s: invalid duration %q", key, value))
		return
	}
	*target = parsed
}
