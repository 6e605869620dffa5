package orchestration

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-voice/core/events"
)

const eventQueueCapacity = 64

// Orchestrator drives one voice session: listening, capturing an utterance,
// running the answer pipeline and playing it back, with barge-in at any point.
//
// All state changes happen on a single goroutine that applies Transition to
// queued events and executes the resulting effects in order.
type Orchestrator struct {
	listener Listener
	capture  Capture
	pipeline Pipeline
	player   Player

	captureStopTimeout time.Duration
	observers          observerSet

	mu       sync.RWMutex
	snapshot Snapshot

	baseContext context.Context
	queue       chan queuedEvent
	closeCh     chan struct{}
	done        chan struct{}
	startOnce   sync.Once
	closeOnce   sync.Once
	started     atomic.Bool

	// owned by the runtime goroutine
	internal  []events.Event
	runCancel context.CancelFunc
	stopTimer *time.Timer
	workers   sync.WaitGroup
}

type queuedEvent struct {
	event    events.Event
	queuedAt time.Time
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		captureStopTimeout: defaultCaptureStopTimeout,
		snapshot:           InitialSnapshot(),
		baseContext:        context.Background(),
		queue:              make(chan queuedEvent, eventQueueCapacity),
		closeCh:            make(chan struct{}),
		done:               make(chan struct{}),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Start launches the event loop. ctx is the base context of every operation
// the orchestrator starts; cancelling it closes the orchestrator. Calling
// Start more than once is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	if o.isClosed() {
		logger.Warn("orchestrator already closed, skipping start")
		return
	}

	o.startOnce.Do(func() {
		if o.isClosed() {
			return
		}

		o.baseContext = ctx
		o.started.Store(true)
		go o.run()
		go func() {
			select {
			case <-ctx.Done():
				o.Close()
			case <-o.closeCh:
			}
		}()
	})
}

// Send queues an event, blocking until it is queued or the orchestrator is
// closed. It reports whether the event was queued.
func (o *Orchestrator) Send(event events.Event) bool {
	if event == nil || o.isClosed() {
		return false
	}

	select {
	case <-o.closeCh:
		return false
	case o.queue <- queuedEvent{event: event, queuedAt: time.Now()}:
		return true
	}
}

// StartListening asks the orchestrator to listen, or to recover from an error.
func (o *Orchestrator) StartListening() bool { return o.Send(events.NewStartListening()) }

// StopAll tears down whatever is in progress.
func (o *Orchestrator) StopAll() bool { return o.Send(events.NewStopAll()) }

// tryEnqueue never blocks. Voice activity callbacks use it so that they can
// not hold up the detector while the loop is stopping it.
func (o *Orchestrator) tryEnqueue(event events.Event) bool {
	if o.isClosed() {
		return false
	}

	select {
	case o.queue <- queuedEvent{event: event, queuedAt: time.Now()}:
		return true
	default:
		droppedEventsCounter.Add(o.baseContext, 1)
		logger.Warn("event queue full, dropping event", "event", event.Kind())
		return false
	}
}

// Snapshot returns a deep copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return cloneSnapshot(o.snapshot)
}

// Subscribe registers an observer until the returned func is called.
func (o *Orchestrator) Subscribe(observer Observer) (unsubscribe func()) {
	if observer == nil {
		return func() {}
	}
	return o.observers.add(observer)
}

// Close stops the event loop and releases every resource. It is safe to call
// more than once.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.closeCh)
		if o.started.Load() {
			<-o.done
		}

		if err := o.teardown(); err != nil {
			logger.Error("failed to tear down orchestrator", "error", err)
		}
		o.workers.Wait()
	})
}

func (o *Orchestrator) isClosed() bool {
	select {
	case <-o.closeCh:
		return true
	default:
		return false
	}
}
