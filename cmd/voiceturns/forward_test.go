package main

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/ema-voice/core"
)

type blockingSink struct {
	release chan struct{}

	mu       sync.Mutex
	received []tea.Msg
}

func (s *blockingSink) send(msg tea.Msg) {
	<-s.release
	s.mu.Lock()
	s.received = append(s.received, msg)
	s.mu.Unlock()
}

func (s *blockingSink) snapshot() []tea.Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tea.Msg(nil), s.received...)
}

func TestForwarderNeverBlocksObservers(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	forward := newForwarder(sink.send)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go forward.run(ctx)

	observer := forward.observer()
	returned := make(chan struct{})
	go func() {
		observer.OnLog("first")
		for i := 1; i <= 100; i++ {
			observer.OnLevel(float64(i) / 100)
		}
		observer.OnTranscript("hello")
		observer.OnAnswerDelta("Hi.")
		observer.OnVisualState(orchestration.VisualSpeaking)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatalf("observer callbacks blocked on a busy program")
	}

	close(sink.release)
	want := []tea.Msg{logMsg("first"), transcriptMsg("hello"), answerMsg("Hi."), visualMsg(orchestration.VisualSpeaking)}
	var ordered []tea.Msg
	var lastLevel levelMsg
	levels := 0
	deadline := time.After(2 * time.Second)
	for {
		ordered, lastLevel, levels = nil, 0, 0
		for _, msg := range sink.snapshot() {
			if level, ok := msg.(levelMsg); ok {
				lastLevel = level
				levels++
				continue
			}
			ordered = append(ordered, msg)
		}
		if len(ordered) == len(want) && lastLevel == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected every notification and the latest level, got %v", sink.snapshot())
		case <-time.After(5 * time.Millisecond):
		}
	}

	for i := range want {
		if ordered[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ordered)
		}
	}
	if levels >= 100 {
		t.Fatalf("expected level updates to be coalesced, got %d", levels)
	}
}
