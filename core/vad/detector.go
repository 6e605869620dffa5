package vad

import (
	"fmt"
	"sync"
	"time"

	"github.com/koscakluka/ema-voice/core/audio"
)

type Handler struct {
	OnSpeechStart    func()
	OnSilenceTimeout func()
	// OnLevel receives the normalized energy of every analysed frame, also
	// while paused.
	OnLevel func(level float64)
}

type FrameSource interface {
	Subscribe(onFrame func([]byte)) (unsubscribe func())
	SetMuted(muted bool)
}

// Detector raises speech start and silence timeout events from frame
// energy. Handlers must not call Stop.
type Detector struct {
	config Config
	now    func() time.Time

	mu          sync.Mutex
	running     bool
	paused      bool
	handler     Handler
	source      FrameSource
	unsubscribe func()
	level       float64
	state       utteranceState

	// emitMu is held while a handler runs so Stop can wait it out.
	emitMu sync.Mutex
}

type utteranceState struct {
	onsetAt      time.Time
	silenceSince time.Time
	hasSpoken    bool
	// triggeredStop is set by a silence timeout and held until the next
	// confirmed speech start.
	triggeredStop bool
}

func NewDetector(config Config) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Detector{config: config, now: time.Now}, nil
}

// Start subscribes to the frame source. Starting a running detector is a
// no-op.
func (d *Detector) Start(source FrameSource, handler Handler) error {
	if source == nil {
		return fmt.Errorf("vad: frame source is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	d.running = true
	d.handler = handler
	d.source = source
	d.state = utteranceState{}
	d.level = 0
	source.SetMuted(d.paused)
	d.unsubscribe = source.Subscribe(func(frame []byte) {
		d.ProcessFrame(frame, d.now())
	})
	logger.Info("vad monitoring started")
	return nil
}

// Stop unsubscribes from the source. No handler runs after Stop returns.
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.state = utteranceState{}
	unsubscribe := d.unsubscribe
	d.unsubscribe = nil
	d.source = nil
	d.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	// wait out a handler that is already running
	d.emitMu.Lock()
	d.emitMu.Unlock()
	logger.Info("vad monitoring stopped")
}

// Pause stops event emission and mutes the source track while frames keep
// being analysed.
func (d *Detector) Pause() { d.setPaused(true) }

func (d *Detector) Resume() { d.setPaused(false) }

func (d *Detector) setPaused(paused bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.paused == paused {
		return
	}
	d.paused = paused
	d.state = utteranceState{}
	if d.source != nil {
		d.source.SetMuted(paused)
	}
}

func (d *Detector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Detector) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// Level returns the last normalized frame energy.
func (d *Detector) Level() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

type detection int

const (
	detectedNothing detection = iota
	detectedSpeechStart
	detectedSilenceTimeout
)

// ProcessFrame runs one analysis step for a linear16 frame observed at now.
func (d *Detector) ProcessFrame(frame []byte, now time.Time) {
	energy := min(audio.Energy(frame)*d.config.Gain, 1)

	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	if d.config.Smoothing > 0 {
		energy = d.level*(1-d.config.Smoothing) + energy*d.config.Smoothing
	}
	d.level = energy

	result := detectedNothing
	if !d.paused {
		result = d.step(energy, now)
	}
	d.mu.Unlock()

	d.emit(func(h Handler) {
		if h.OnLevel != nil {
			h.OnLevel(energy)
		}
	}, true)

	switch result {
	case detectedSpeechStart:
		d.emit(func(h Handler) {
			if h.OnSpeechStart != nil {
				h.OnSpeechStart()
			}
		}, false)
	case detectedSilenceTimeout:
		d.emit(func(h Handler) {
			if h.OnSilenceTimeout != nil {
				h.OnSilenceTimeout()
			}
		}, false)
	}
}

func (d *Detector) step(energy float64, now time.Time) detection {
	s := &d.state
	if !s.hasSpoken {
		if energy < d.config.OnsetThreshold {
			// dropped before the minimum speech duration: noise, not speech
			s.onsetAt = time.Time{}
			return detectedNothing
		}
		if s.onsetAt.IsZero() {
			s.onsetAt = now
		}
		if now.Sub(s.onsetAt) >= d.config.MinSpeech {
			s.hasSpoken = true
			s.triggeredStop = false
			s.silenceSince = time.Time{}
			return detectedSpeechStart
		}
		return detectedNothing
	}

	if energy >= d.config.SilenceThreshold {
		s.silenceSince = time.Time{}
		return detectedNothing
	}
	if s.silenceSince.IsZero() {
		s.silenceSince = now
	}
	if !s.triggeredStop && now.Sub(s.silenceSince) >= d.config.MinSilence {
		d.state = utteranceState{triggeredStop: true}
		return detectedSilenceTimeout
	}
	return detectedNothing
}

func (d *Detector) emit(call func(Handler), whilePaused bool) {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	allowed := d.running && (whilePaused || !d.paused)
	handler := d.handler
	d.mu.Unlock()
	if allowed {
		call(handler)
	}
}
