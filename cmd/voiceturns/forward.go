package main

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/events"
)

// forwarder hands orchestrator notifications to the terminal program from
// its own goroutine, so observers return immediately. Notifications are
// queued in order, level updates are coalesced to the latest one.
type forwarder struct {
	send func(tea.Msg)

	mu       sync.Mutex
	pending  []tea.Msg
	level    float64
	hasLevel bool

	wake chan struct{}
}

func newForwarder(send func(tea.Msg)) *forwarder {
	return &forwarder{send: send, wake: make(chan struct{}, 1)}
}

func (f *forwarder) enqueue(msg tea.Msg) {
	f.mu.Lock()
	f.pending = append(f.pending, msg)
	f.mu.Unlock()
	f.notify()
}

func (f *forwarder) setLevel(level float64) {
	f.mu.Lock()
	f.level = level
	f.hasLevel = true
	f.mu.Unlock()
	f.notify()
}

func (f *forwarder) notify() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// run delivers queued notifications until ctx is done.
func (f *forwarder) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.wake:
		}

		f.mu.Lock()
		pending := f.pending
		f.pending = nil
		level, hasLevel := f.level, f.hasLevel
		f.hasLevel = false
		f.mu.Unlock()

		for _, msg := range pending {
			f.send(msg)
		}
		if hasLevel {
			f.send(levelMsg(level))
		}
	}
}

func (f *forwarder) observer() orchestration.ObserverFuncs {
	return orchestration.ObserverFuncs{
		Transition: func(_, next orchestration.Snapshot, event events.Event) {
			f.enqueue(transitionMsg{state: next.String(), event: event.Kind()})
		},
		VisualState: func(visual orchestration.VisualState) { f.enqueue(visualMsg(visual)) },
		Log:         func(message string) { f.enqueue(logMsg(message)) },
		Level:       f.setLevel,
		Transcript:  func(transcript string) { f.enqueue(transcriptMsg(transcript)) },
		AnswerDelta: func(delta string) { f.enqueue(answerMsg(delta)) },
	}
}
