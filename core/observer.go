package orchestration

import (
	"sync"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-voice/core/events"
)

// Observer is notified from the orchestrator goroutine, except for OnLog
// which a running pipeline may also call. Implementations must not block.
type Observer interface {
	OnTransition(prev, next Snapshot, event events.Event)
	OnVisualState(visual VisualState)
	OnLog(message string)
}

// LevelObserver additionally receives the microphone level. It is called from
// the audio goroutine.
type LevelObserver interface {
	OnLevel(level float64)
}

// AnswerObserver additionally receives the pipeline output while it streams.
type AnswerObserver interface {
	OnTranscript(transcript string)
	OnAnswerDelta(delta string)
}

// ObserverFuncs adapts plain functions to all observer interfaces. Nil
// functions are skipped.
type ObserverFuncs struct {
	Transition  func(prev, next Snapshot, event events.Event)
	VisualState func(visual VisualState)
	Log         func(message string)
	Level       func(level float64)
	Transcript  func(transcript string)
	AnswerDelta func(delta string)
}

func (f ObserverFuncs) OnTransition(prev, next Snapshot, event events.Event) {
	if f.Transition != nil {
		f.Transition(prev, next, event)
	}
}

func (f ObserverFuncs) OnVisualState(visual VisualState) {
	if f.VisualState != nil {
		f.VisualState(visual)
	}
}

func (f ObserverFuncs) OnLog(message string) {
	if f.Log != nil {
		f.Log(message)
	}
}

func (f ObserverFuncs) OnLevel(level float64) {
	if f.Level != nil {
		f.Level(level)
	}
}

func (f ObserverFuncs) OnTranscript(transcript string) {
	if f.Transcript != nil {
		f.Transcript(transcript)
	}
}

func (f ObserverFuncs) OnAnswerDelta(delta string) {
	if f.AnswerDelta != nil {
		f.AnswerDelta(delta)
	}
}

type observerSet struct {
	mu        sync.RWMutex
	nextID    uint64
	observers map[uint64]Observer
}

func (s *observerSet) add(observer Observer) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.observers == nil {
		s.observers = map[uint64]Observer{}
	}
	s.nextID++
	id := s.nextID
	s.observers[id] = observer

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *observerSet) snapshot() []Observer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	observers := make([]Observer, 0, len(s.observers))
	for _, observer := range s.observers {
		observers = append(observers, observer)
	}
	return observers
}

func (s *observerSet) each(notify func(Observer)) {
	for _, observer := range s.snapshot() {
		notify(observer)
	}
}

// cloneSnapshot deep copies the byte buffers and the pending blob so callers
// can not mutate orchestrator-owned memory.
func cloneSnapshot(snapshot Snapshot) Snapshot {
	var clone Snapshot
	if err := copier.CopyWithOption(&clone, &snapshot, copier.Option{DeepCopy: true}); err != nil {
		logger.Warn("failed to copy snapshot", "error", err)
		return snapshot
	}
	return clone
}
