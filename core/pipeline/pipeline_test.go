package pipeline

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/playback"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type transcriberFunc func(ctx context.Context, blob audio.Blob, opts ...speechtotext.TranscriptionOption) (string, error)

func (f transcriberFunc) Transcribe(ctx context.Context, blob audio.Blob, opts ...speechtotext.TranscriptionOption) (string, error) {
	return f(ctx, blob, opts...)
}

func transcribeAs(text string) transcriberFunc {
	return func(context.Context, audio.Blob, ...speechtotext.TranscriptionOption) (string, error) {
		return text, nil
	}
}

type contentChunk struct{ content string }

func (c contentChunk) FinishReason() *string { return nil }
func (c contentChunk) Content() string       { return c.content }

type conversationChunk struct{ id string }

func (c conversationChunk) FinishReason() *string  { return nil }
func (c conversationChunk) ConversationID() string { return c.id }

type chatStub struct {
	log            *callLog
	deltas         []string
	conversationID string
	err            error
	// block keeps the stream open until its context is cancelled
	block bool
	// blockCalls makes only the first prompts block
	blockCalls int

	mu              sync.Mutex
	messages        [][]llms.Message
	conversationIDs []string
}

func (c *chatStub) PromptWithStream(_ context.Context, prompt string, opts ...llms.StreamingPromptOption) llms.Stream {
	c.log.add("chat:prompt")
	options := llms.StreamingPromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	c.mu.Lock()
	c.messages = append(c.messages, options.BuildMessages(prompt))
	c.conversationIDs = append(c.conversationIDs, options.ConversationID)
	block := c.block || len(c.messages) <= c.blockCalls
	c.mu.Unlock()
	return chatStream{chat: c, block: block}
}

func (c *chatStub) lastMessages() []llms.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[len(c.messages)-1]
}

type chatStream struct {
	chat  *chatStub
	block bool
}

func (s chatStream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		if s.chat.conversationID != "" && !yield(conversationChunk{id: s.chat.conversationID}, nil) {
			return
		}
		for _, delta := range s.chat.deltas {
			if !yield(contentChunk{content: delta}, nil) {
				return
			}
		}
		if s.chat.err != nil {
			yield(nil, s.chat.err)
			return
		}
		if s.block {
			<-ctx.Done()
			yield(nil, ctx.Err())
		}
	}
}

type sentText struct {
	text  string
	flush bool
}

type sessionStub struct {
	options texttospeech.SessionOptions

	mu     sync.Mutex
	sent   []sentText
	ended  bool
	closes int

	done     chan struct{}
	doneOnce sync.Once
}

func (s *sessionStub) SendText(text string, flush bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentText{text: text, flush: flush})
	return nil
}

// EndOfText delivers a short clip and finishes like the real service does.
func (s *sessionStub) EndOfText() error {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	go func() {
		s.options.AudioCallback(make([]byte, 320))
		s.options.FinalCallback()
		s.doneOnce.Do(func() { close(s.done) })
	}()
	return nil
}

func (s *sessionStub) Done() <-chan struct{} { return s.done }

func (s *sessionStub) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
	return nil
}

func (s *sessionStub) stats() ([]sentText, bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentText(nil), s.sent...), s.ended, s.closes
}

type synthesizerStub struct {
	log *callLog

	mu       sync.Mutex
	sessions []*sessionStub
	texts    []string
}

func (s *synthesizerStub) OpenSession(_ context.Context, opts ...texttospeech.SessionOption) (texttospeech.Session, error) {
	s.log.add("tts:open")
	session := &sessionStub{options: texttospeech.NewSessionOptions(opts...), done: make(chan struct{})}
	s.mu.Lock()
	s.sessions = append(s.sessions, session)
	s.mu.Unlock()
	return session, nil
}

func (s *synthesizerStub) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	return []byte("encoded:" + text), nil
}

func (s *synthesizerStub) OutputFormat() string { return "pcm_16000" }

func (s *synthesizerStub) session(i int) *sessionStub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.sessions) {
		return nil
	}
	return s.sessions[i]
}

// instantOutput plays everything the moment it is queued.
type instantOutput struct{}

func (instantOutput) SendAudio([]byte) error { return nil }
func (instantOutput) ClearBuffer()           {}
func (instantOutput) Mark(mark string, callback func(string)) error {
	go callback(mark)
	return nil
}
func (instantOutput) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func testBlob() audio.Blob {
	return audio.Blob{Data: make([]byte, 640), EncodingInfo: audio.GetDefaultEncodingInfo()}
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func waitForCondition(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !condition() {
		select {
		case <-deadline:
			t.Fatalf("condition not met in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestProcessStreamsAnswerToSpeech(t *testing.T) {
	log := &callLog{}
	chat := &chatStub{log: log, deltas: []string{"Hello", ", ", "world", ".", " How are", " you"}}
	synthesizer := &synthesizerStub{log: log}
	p := New(transcribeAs(" hi there "), chat, synthesizer, playback.NewPlayer(instantOutput{}))

	firstAudio := make(chan struct{})
	audioEnded := make(chan struct{})
	var transcript string
	var deltas []string
	result, err := p.Process(context.Background(), testBlob(), Hooks{
		OnTranscript:  func(text string) { transcript = text },
		OnAnswerDelta: func(delta string) { deltas = append(deltas, delta) },
		OnFirstAudio:  func() { close(firstAudio) },
		OnAudioEnded:  func() { close(audioEnded) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Transcript != "hi there" || transcript != "hi there" {
		t.Fatalf("expected trimmed transcript, got %q and %q", result.Transcript, transcript)
	}
	if result.Answer != "Hello, world. How are you" {
		t.Fatalf("unexpected answer %q", result.Answer)
	}
	if len(deltas) != 6 {
		t.Fatalf("expected every delta reported, got %q", deltas)
	}
	if result.Audio != nil {
		t.Fatalf("streaming mode must not return audio")
	}

	if calls := log.snapshot(); len(calls) != 2 || calls[0] != "tts:open" || calls[1] != "chat:prompt" {
		t.Fatalf("expected the speech session to open before the prompt, got %v", calls)
	}

	sent, ended, closes := synthesizer.session(0).stats()
	want := []sentText{{"Hello, world.", true}, {" How are you", true}, {"", true}}
	if len(sent) != len(want) {
		t.Fatalf("expected %v, got %v", want, sent)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, sent)
		}
	}
	if !ended {
		t.Fatalf("expected end of text")
	}
	if closes != 1 {
		t.Fatalf("expected the session to be released once, got %d", closes)
	}

	waitFor(t, firstAudio, "first audio")
	waitFor(t, audioEnded, "end of audio")
	if p.session.active() {
		t.Fatalf("expected no session left open")
	}
}

func TestProcessStopsWithoutTranscription(t *testing.T) {
	log := &callLog{}
	chat := &chatStub{log: log}
	synthesizer := &synthesizerStub{log: log}
	p := New(transcribeAs("  \n"), chat, synthesizer, nil)

	_, err := p.Process(context.Background(), testBlob(), Hooks{})
	if !errors.Is(err, ErrNoTranscription) {
		t.Fatalf("expected ErrNoTranscription, got %v", err)
	}
	if err.Error() != "no transcription" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if calls := log.snapshot(); len(calls) != 0 {
		t.Fatalf("expected nothing after an empty transcript, got %v", calls)
	}
}

func TestProcessReportsFailedStage(t *testing.T) {
	tests := []struct {
		name        string
		transcriber transcriberFunc
		chatErr     error
		stage       Stage
	}{
		{
			name: "transcription",
			transcriber: func(context.Context, audio.Blob, ...speechtotext.TranscriptionOption) (string, error) {
				return "", errors.New("upstream down")
			},
			stage: StageTranscription,
		},
		{
			name:        "generation",
			transcriber: transcribeAs("hello"),
			chatErr:     errors.New("rate limited"),
			stage:       StageGeneration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &callLog{}
			synthesizer := &synthesizerStub{log: log}
			p := New(tt.transcriber, &chatStub{log: log, deltas: []string{"Par"}, err: tt.chatErr}, synthesizer, nil)

			_, err := p.Process(context.Background(), testBlob(), Hooks{})
			var stageErr *StageError
			if !errors.As(err, &stageErr) {
				t.Fatalf("expected a StageError, got %v", err)
			}
			if stageErr.Stage != tt.stage {
				t.Fatalf("expected stage %s, got %s", tt.stage, stageErr.Stage)
			}
			if session := synthesizer.session(0); session != nil {
				if _, _, closes := session.stats(); closes != 1 {
					t.Fatalf("expected the session to be closed after a failure, got %d closes", closes)
				}
			}
		})
	}
}

func TestProcessCancelReturnsPartialAnswer(t *testing.T) {
	log := &callLog{}
	synthesizer := &synthesizerStub{log: log}
	p := New(transcribeAs("tell me a story"), &chatStub{log: log, deltas: []string{"Once"}, block: true}, synthesizer, playback.NewPlayer(instantOutput{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := p.Process(ctx, testBlob(), Hooks{OnAnswerDelta: func(string) { cancel() }})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Transcript != "tell me a story" || result.Answer != "Once" {
		t.Fatalf("expected partial result, got %+v", result)
	}
	if _, ended, closes := synthesizer.session(0).stats(); ended || closes != 1 {
		t.Fatalf("expected the session closed without end of text, got ended=%v closes=%d", ended, closes)
	}
}

func TestNewRunClosesPreviousSession(t *testing.T) {
	log := &callLog{}
	synthesizer := &synthesizerStub{log: log}
	p := New(transcribeAs("hello"), &chatStub{log: log, deltas: []string{"Second."}, blockCalls: 1}, synthesizer, nil)

	firstDone := make(chan error, 1)
	go func() {
		_, err := p.Process(context.Background(), testBlob(), Hooks{})
		firstDone <- err
	}()
	waitForCondition(t, func() bool { return len(log.snapshot()) == 2 })

	if _, err := p.Process(context.Background(), testBlob(), Hooks{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case err := <-firstDone:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected the first run to be aborted by the second, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("first run kept streaming after a newer run started")
	}

	if _, _, closes := synthesizer.session(0).stats(); closes != 1 {
		t.Fatalf("expected the first session closed exactly once, got %d", closes)
	}
	if _, ended, _ := synthesizer.session(1).stats(); !ended {
		t.Fatalf("expected the second session to finish")
	}
}

// gatedSynthesizer holds the first OpenSession until release is closed,
// like a websocket dial that is still in flight.
type gatedSynthesizer struct {
	*synthesizerStub
	release chan struct{}

	mu    sync.Mutex
	opens int
}

func (s *gatedSynthesizer) OpenSession(ctx context.Context, opts ...texttospeech.SessionOption) (texttospeech.Session, error) {
	s.mu.Lock()
	s.opens++
	first := s.opens == 1
	s.mu.Unlock()
	if first {
		s.log.add("tts:dialing")
		<-s.release
	}
	return s.synthesizerStub.OpenSession(ctx, opts...)
}

func TestAbortedRunLeavesNewerSessionOpen(t *testing.T) {
	log := &callLog{}
	synthesizer := &gatedSynthesizer{synthesizerStub: &synthesizerStub{log: log}, release: make(chan struct{})}
	p := New(transcribeAs("hello"), &chatStub{log: log, block: true}, synthesizer, playback.NewPlayer(instantOutput{}))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := p.Process(firstCtx, testBlob(), Hooks{})
		firstDone <- err
	}()
	waitForCondition(t, func() bool { return len(log.snapshot()) == 1 })
	cancelFirst()

	secondCtx, cancelSecond := context.WithCancel(context.Background())
	defer cancelSecond()
	secondDone := make(chan error, 1)
	go func() {
		_, err := p.Process(secondCtx, testBlob(), Hooks{})
		secondDone <- err
	}()
	// tts:dialing, tts:open of the second run, chat:prompt of the second run
	waitForCondition(t, func() bool { return len(log.snapshot()) == 3 })

	close(synthesizer.release)
	select {
	case err := <-firstDone:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected the first run to be cancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("first run did not stop")
	}

	newer := synthesizer.session(0)
	stale := synthesizer.session(1)
	if _, _, closes := newer.stats(); closes != 0 {
		t.Fatalf("expected the newer run's session to stay open, got %d closes", closes)
	}
	if !p.session.active() {
		t.Fatalf("expected the newer run's session to stay current")
	}
	if _, _, closes := stale.stats(); closes != 1 {
		t.Fatalf("expected the late session of the aborted run closed, got %d closes", closes)
	}
	for _, call := range log.snapshot()[3:] {
		if call == "chat:prompt" {
			t.Fatalf("the aborted run must not prompt the chat, got %v", log.snapshot())
		}
	}

	cancelSecond()
	select {
	case err := <-secondDone:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected the second run to be cancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second run did not stop")
	}
	if _, _, closes := newer.stats(); closes != 1 {
		t.Fatalf("expected the newer session closed once it was cancelled, got %d", closes)
	}
}

func TestBufferedModeReturnsSynthesizedAnswer(t *testing.T) {
	log := &callLog{}
	synthesizer := &synthesizerStub{log: log}
	p := New(transcribeAs("hi"), &chatStub{log: log, deltas: []string{"Hey", " you."}}, synthesizer, nil, WithMode(ModeBuffered))

	result, err := p.Process(context.Background(), testBlob(), Hooks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result.Audio) != "encoded:Hey you." {
		t.Fatalf("unexpected audio %q", result.Audio)
	}
	if synthesizer.session(0) != nil {
		t.Fatalf("buffered mode must not open a streaming session")
	}
}

func TestHistoryIsTrimmedAndSaved(t *testing.T) {
	store := conversations.NewMemoryStore()
	id, _ := store.CurrentID()
	var history []llms.Message
	for i := 0; i < 10; i++ {
		history = append(history, llms.UserMessage("question"), llms.AssistantMessage("answer"))
	}
	if err := store.SaveHistory(id, history); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log := &callLog{}
	chat := &chatStub{log: log, deltas: []string{"Sure."}, conversationID: "provider-chat"}
	p := New(transcribeAs("again"), chat, nil, nil,
		WithConversationStore(store),
		WithHistoryTurns(2),
		WithInstructions("be brief"),
	)

	if _, err := p.Process(context.Background(), testBlob(), Hooks{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	messages := chat.lastMessages()
	if len(messages) != 6 {
		t.Fatalf("expected system + 4 history + prompt, got %d: %+v", len(messages), messages)
	}
	if messages[0].Role != llms.MessageRoleSystem || messages[0].Content != "be brief" {
		t.Fatalf("expected instructions first, got %+v", messages[0])
	}
	if last := messages[5]; last.Role != llms.MessageRoleUser || last.Content != "again" {
		t.Fatalf("expected the utterance last, got %+v", last)
	}

	current, _ := store.CurrentID()
	if current != "provider-chat" {
		t.Fatalf("expected the provider id to become current, got %q", current)
	}
	saved, _ := store.History("provider-chat")
	if len(saved) != 22 || saved[21].Content != "Sure." {
		t.Fatalf("expected the turn appended to the history, got %d messages", len(saved))
	}

	if _, err := p.Process(context.Background(), testBlob(), Hooks{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chat.mu.Lock()
	sentIDs := append([]string(nil), chat.conversationIDs...)
	chat.mu.Unlock()
	if !reflect.DeepEqual(sentIDs, []string{id, "provider-chat"}) {
		t.Fatalf("expected the current conversation sent with each prompt, got %v", sentIDs)
	}

	if _, err := p.NewConversation(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh, _ := store.CurrentID(); fresh == "provider-chat" {
		t.Fatalf("expected a new conversation id")
	}
}
