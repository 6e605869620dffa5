package main

import (
	"context"
	"fmt"
	"log"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/audio/miniaudio"
	"github.com/koscakluka/ema-voice/core/audio/portaudio"
	"github.com/koscakluka/ema-voice/core/capture"
	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/llms/messageapi"
	"github.com/koscakluka/ema-voice/core/llms/openrouter"
	"github.com/koscakluka/ema-voice/core/pipeline"
	"github.com/koscakluka/ema-voice/core/playback"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	deepgramstt "github.com/koscakluka/ema-voice/core/speechtotext/deepgram"
	elevenlabsstt "github.com/koscakluka/ema-voice/core/speechtotext/elevenlabs"
	deepgramtts "github.com/koscakluka/ema-voice/core/texttospeech/deepgram"
	elevenlabstts "github.com/koscakluka/ema-voice/core/texttospeech/elevenlabs"
	"github.com/koscakluka/ema-voice/core/vad"
	"github.com/koscakluka/ema-voice/internal/config"
)

const portaudioBufferSize = 512

// audioDevice is a full duplex device, one of the miniaudio or portaudio
// clients.
type audioDevice interface {
	capture.Input
	playback.Output
	Close()
}

// assistant owns every component of the running voice loop.
type assistant struct {
	device       audioDevice
	orchestrator *orchestration.Orchestrator
	pipeline     *pipeline.Pipeline
}

func openAudio(cfg config.Config) (audioDevice, error) {
	switch cfg.AudioBackend {
	case config.AudioBackendPortaudio:
		return portaudio.NewClient(cfg.SampleRate, portaudioBufferSize)
	default:
		return miniaudio.NewClient(cfg.SampleRate)
	}
}

func newTranscriber(cfg config.Config) (speechtotext.Transcriber, error) {
	switch cfg.STTProvider {
	case config.STTProviderDeepgram:
		return deepgramstt.NewTranscriptionClient(cfg.DeepgramAPIKey,
			deepgramstt.WithLanguage(cfg.STTLanguage),
		)
	default:
		return elevenlabsstt.NewTranscriptionClient(cfg.ElevenLabsAPIKey,
			elevenlabsstt.WithModel(cfg.ElevenLabsSTTModelID),
			elevenlabsstt.WithLanguage(cfg.STTLanguage),
		)
	}
}

func newChat(cfg config.Config) (pipeline.ChatClient, error) {
	switch cfg.LLMProvider {
	case config.LLMProviderMessageAPI:
		return messageapi.NewClient(cfg.AIBaseURL,
			messageapi.WithModel(cfg.LLMModel),
			messageapi.WithFeatures(cfg.LLMEnableMarkdown, cfg.LLMEnableKallm, cfg.LLMEnableSources),
			messageapi.WithAPIKey(cfg.AIAPIKey),
			messageapi.WithClientCredentials(cfg.OAuthTokenEndpoint, cfg.OAuthClientID, cfg.OAuthClientSecret, cfg.OAuthScope),
		)
	default:
		return openrouter.NewClient(cfg.OpenRouterAPIKey,
			openrouter.WithModel(cfg.LLMModel),
			openrouter.WithTemperature(cfg.LLMTemperature),
			openrouter.WithMaxTokens(cfg.LLMMaxTokens),
			openrouter.WithIncludeReasoning(cfg.LLMIncludeReasoning),
			openrouter.WithSystemPrompt(cfg.LLMSystemPrompt),
			openrouter.WithAppAttribution(cfg.OpenRouterReferrer, cfg.OpenRouterAppTitle),
		)
	}
}

func newSynthesizer(cfg config.Config) (pipeline.Synthesizer, error) {
	switch cfg.TTSProvider {
	case config.TTSProviderDeepgram:
		return deepgramtts.NewTextToSpeechClient(cfg.DeepgramAPIKey,
			deepgramtts.WithVoice(cfg.DeepgramTTSVoice),
			deepgramtts.WithSampleRate(cfg.DeepgramTTSSampleRate),
		)
	default:
		return elevenlabstts.NewTextToSpeechClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID,
			elevenlabstts.WithModel(cfg.ElevenLabsModelID),
			elevenlabstts.WithOutputFormat(cfg.ElevenLabsOutputFormat),
		)
	}
}

func newAssistant(cfg config.Config) (*assistant, error) {
	transcriber, err := newTranscriber(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}

	chat, err := newChat(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}

	synthesizer, err := newSynthesizer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech synthesizer: %w", err)
	}

	store, err := conversations.Open(cfg.ConversationStorePath)
	if err != nil {
		return nil, err
	}

	detector, err := vad.NewDetector(vad.Config{
		OnsetThreshold:   cfg.VADOnsetThreshold,
		SilenceThreshold: cfg.VADSilenceThreshold,
		MinSpeech:        cfg.VADMinSpeech,
		MinSilence:       cfg.VADMinSilence,
		Gain:             cfg.VADGain,
		Smoothing:        cfg.VADSmoothing,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid voice activity settings: %w", err)
	}

	device, err := openAudio(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}
	log.Printf("audio device ready: %s at %d Hz", cfg.AudioBackend, device.EncodingInfo().SampleRate)

	player := playback.NewPlayer(device, playback.WithFormat(synthesizer.OutputFormat()))
	mode := pipeline.ModeStreaming
	if cfg.TTSMode == config.TTSModeBuffered {
		mode = pipeline.ModeBuffered
	}
	speech := pipeline.New(transcriber, chat, synthesizer, player,
		pipeline.WithMode(mode),
		pipeline.WithHistoryTurns(cfg.HistoryTurns),
		pipeline.WithConversationStore(store),
	)

	mic := capture.NewMicrophone(device)
	orchestrator := orchestration.NewOrchestrator(
		orchestration.WithListener(vad.NewMonitor(mic, detector)),
		orchestration.WithCapture(capture.NewRecorder(mic)),
		orchestration.WithPipeline(speech),
		orchestration.WithPlayer(player),
		orchestration.WithCaptureStopTimeout(cfg.CaptureStopTimeout),
		orchestration.WithObserver(orchestration.ObserverFuncs{
			Log: func(message string) { log.Println("orchestrator:", message) },
		}),
	)

	return &assistant{device: device, orchestrator: orchestrator, pipeline: speech}, nil
}

func (a *assistant) Start(ctx context.Context) {
	a.orchestrator.Start(ctx)
}

func (a *assistant) StartListening() bool { return a.orchestrator.StartListening() }

func (a *assistant) StopAll() bool { return a.orchestrator.StopAll() }

func (a *assistant) NewConversation() (string, error) {
	a.orchestrator.StopAll()
	return a.pipeline.NewConversation()
}

func (a *assistant) Close() error {
	a.orchestrator.Close()
	a.pipeline.Close()
	if a.device != nil {
		a.device.Close()
	}
	return nil
}
