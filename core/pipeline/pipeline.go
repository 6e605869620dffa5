package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/playback"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultHistoryTurns = 12

type Mode string

const (
	// ModeStreaming speaks the answer while it is generated.
	ModeStreaming Mode = "streaming"
	// ModeBuffered synthesizes the whole answer once it is complete and
	// returns it for the caller to play.
	ModeBuffered Mode = "buffered"
)

type ChatClient interface {
	PromptWithStream(ctx context.Context, prompt string, opts ...llms.StreamingPromptOption) llms.Stream
}

type Synthesizer interface {
	OpenSession(ctx context.Context, opts ...texttospeech.SessionOption) (texttospeech.Session, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
	OutputFormat() string
}

type StreamPlayer interface {
	BeginStream(format string, callbacks playback.StreamCallbacks) (*playback.Stream, error)
}

type ConversationStore interface {
	CurrentID() (string, error)
	SetCurrentID(id string) error
	NewConversation() (string, error)
	History(id string) ([]llms.Message, error)
	SaveHistory(id string, history []llms.Message) error
}

// Pipeline turns one recorded utterance into a spoken answer: transcription,
// a streamed chat completion and speech synthesis of the answer.
type Pipeline struct {
	transcriber speechtotext.Transcriber
	chat        ChatClient
	synthesizer Synthesizer
	player      StreamPlayer
	store       ConversationStore

	mode         Mode
	instructions string
	language     string
	historyTurns int
	flushLength  int

	runs    runSlot
	session sessionSlot

	// serializes history updates of overlapping runs
	historyMu sync.Mutex
}

type Option func(*Pipeline)

func WithMode(mode Mode) Option {
	return func(p *Pipeline) {
		if mode == ModeStreaming || mode == ModeBuffered {
			p.mode = mode
		}
	}
}

// WithInstructions sets the system prompt. Without it the chat client's own
// prompt is used.
func WithInstructions(instructions string) Option {
	return func(p *Pipeline) { p.instructions = instructions }
}

func WithLanguage(language string) Option {
	return func(p *Pipeline) { p.language = language }
}

func WithHistoryTurns(turns int) Option {
	return func(p *Pipeline) {
		if turns >= 0 {
			p.historyTurns = turns
		}
	}
}

func WithFlushLength(length int) Option {
	return func(p *Pipeline) {
		if length > 0 {
			p.flushLength = length
		}
	}
}

func WithConversationStore(store ConversationStore) Option {
	return func(p *Pipeline) {
		if store != nil {
			p.store = store
		}
	}
}

// New builds a pipeline. synthesizer and player may be nil, in which case
// the answer is only returned as text.
func New(transcriber speechtotext.Transcriber, chat ChatClient, synthesizer Synthesizer, player StreamPlayer, opts ...Option) *Pipeline {
	p := &Pipeline{
		transcriber:  transcriber,
		chat:         chat,
		synthesizer:  synthesizer,
		player:       player,
		store:        conversations.NewMemoryStore(),
		mode:         ModeStreaming,
		historyTurns: DefaultHistoryTurns,
		flushLength:  DefaultFlushLength,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewConversation starts over with an empty history.
func (p *Pipeline) NewConversation() (string, error) {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()
	return p.store.NewConversation()
}

// Close aborts a run still in progress and ends its speech session.
func (p *Pipeline) Close() {
	p.runs.abortCurrent()
	p.session.closeAll()
}

// Process runs one utterance through the pipeline. Starting a new
// invocation aborts the one still in progress.
func (p *Pipeline) Process(ctx context.Context, blob audio.Blob, hooks Hooks) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	run := p.runs.claim(cancel)
	defer p.runs.release(run)

	ctx, span := tracer.Start(ctx, "process utterance", trace.WithAttributes(
		attribute.String("pipeline.mode", string(p.mode)),
	))
	defer span.End()

	result, err := p.process(ctx, run, blob, hooks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Int("pipeline.transcript_length", len(result.Transcript)),
		attribute.Int("pipeline.answer_length", len(result.Answer)),
	)
	return result, err
}

func (p *Pipeline) process(ctx context.Context, run *runHandle, blob audio.Blob, hooks Hooks) (Result, error) {
	if p.transcriber == nil || p.chat == nil {
		return Result{}, fmt.Errorf("pipeline requires a transcriber and a chat client")
	}

	transcript, err := p.transcribe(ctx, blob)
	if err != nil {
		return Result{}, err
	}
	hooks.transcript(transcript)
	result := Result{Transcript: transcript}

	var speech *speechOutput
	if p.mode == ModeStreaming && p.synthesizer != nil {
		p.session.closeCurrent(func() bool { return p.runs.isCurrent(run) })
		if speech, err = p.openSpeech(ctx, run, hooks); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			return result, stageError(StageSynthesis, err)
		}
	}

	conversationID, history := p.loadHistory()
	answer, assignedID, err := p.generate(ctx, conversationID, transcript, history, hooks, speech)
	result.Answer = answer
	if answer != "" || err == nil {
		p.saveHistory(conversationID, assignedID, history, transcript, answer)
	}
	if err != nil {
		speech.abort()
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, stageError(StageGeneration, err)
	}

	if speech != nil {
		if err := speech.finish(ctx); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			return result, stageError(StageSynthesis, err)
		}
	}

	if p.mode == ModeBuffered && p.synthesizer != nil && answer != "" {
		audio, err := p.synthesizer.Synthesize(ctx, answer)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			return result, stageError(StageSynthesis, err)
		}
		result.Audio = audio
	}
	return result, nil
}

func (p *Pipeline) transcribe(ctx context.Context, blob audio.Blob) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe")
	defer span.End()

	var opts []speechtotext.TranscriptionOption
	if p.language != "" {
		opts = append(opts, speechtotext.WithLanguage(p.language))
	}
	transcript, err := p.transcriber.Transcribe(ctx, blob, opts...)
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", stageError(StageTranscription, err)
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", ErrNoTranscription
	}
	return transcript, nil
}

func (p *Pipeline) generate(
	ctx context.Context,
	conversationID string,
	transcript string,
	history []llms.Message,
	hooks Hooks,
	speech *speechOutput,
) (string, string, error) {
	ctx, span := tracer.Start(ctx, "generate answer")
	defer span.End()

	opts := []llms.StreamingPromptOption{
		llms.WithConversationID(conversationID),
		llms.WithMessages(llms.TrimHistory(history, p.historyTurns)...),
	}
	if p.instructions != "" {
		opts = append(opts, llms.WithInstructions(p.instructions))
	}

	var (
		answer     strings.Builder
		assignedID string
	)
	stream := p.chat.PromptWithStream(ctx, transcript, opts...)
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			span.RecordError(err)
			return answer.String(), assignedID, err
		}

		switch chunk := chunk.(type) {
		case llms.StreamConversationChunk:
			if id := chunk.ConversationID(); id != "" {
				span.AddEvent("conversation assigned", trace.WithAttributes(attribute.String("conversation.id", id)))
				assignedID = id
			}
		case llms.StreamContentChunk:
			content := chunk.Content()
			if content == "" {
				continue
			}
			answer.WriteString(content)
			hooks.answerDelta(content)
			if err := speech.write(content); err != nil {
				logger.Warn("failed to send answer text to speech", "error", err)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return answer.String(), assignedID, err
	}
	return answer.String(), assignedID, nil
}

func (p *Pipeline) loadHistory() (string, []llms.Message) {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	id, err := p.store.CurrentID()
	if err != nil {
		logger.Warn("failed to read conversation id", "error", err)
		return "", nil
	}
	history, err := p.store.History(id)
	if err != nil {
		logger.Warn("failed to read conversation history", "conversation", id, "error", err)
		return id, nil
	}
	return id, history
}

// saveHistory appends the turn to conversation id. When the chat provider
// assigned its own id, the conversation continues under that one.
func (p *Pipeline) saveHistory(id, assignedID string, history []llms.Message, transcript, answer string) {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	if assignedID != "" && assignedID != id {
		if err := p.store.SetCurrentID(assignedID); err != nil {
			logger.Warn("failed to switch conversation", "conversation", assignedID, "error", err)
		} else {
			id = assignedID
		}
	}
	if id == "" {
		return
	}

	next := make([]llms.Message, 0, len(history)+2)
	next = append(next, history...)
	next = append(next, llms.UserMessage(transcript))
	if answer != "" {
		next = append(next, llms.AssistantMessage(answer))
	}
	if err := p.store.SaveHistory(id, next); err != nil {
		logger.Warn("failed to save conversation history", "conversation", id, "error", err)
	}
}
