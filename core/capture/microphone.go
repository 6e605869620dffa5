package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-voice/core/audio"
)

// Input is a capture device such as the miniaudio or portaudio clients.
type Input interface {
	EncodingInfo() audio.EncodingInfo
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

// Microphone shares one input stream between every consumer (VAD, recorder).
// Acquiring it twice reuses the running stream.
type Microphone struct {
	input Input

	mu          sync.Mutex
	acquired    bool
	muted       bool
	nextID      int
	subscribers map[int]func([]byte)
}

func NewMicrophone(input Input) *Microphone {
	return &Microphone{input: input, subscribers: map[int]func([]byte){}}
}

func (m *Microphone) EncodingInfo() audio.EncodingInfo {
	if m.input == nil {
		return audio.GetDefaultEncodingInfo()
	}
	if info := m.input.EncodingInfo(); !info.IsZero() {
		return info
	}
	return audio.GetDefaultEncodingInfo()
}

func (m *Microphone) Acquire(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquired {
		return nil
	}
	if m.input == nil {
		return fmt.Errorf("microphone unavailable: no input device configured")
	}

	if err := m.input.StartCapture(ctx, m.dispatch); err != nil {
		return fmt.Errorf("microphone unavailable: %w", err)
	}
	m.acquired = true
	logger.Info("microphone acquired")
	return nil
}

func (m *Microphone) Release() error {
	m.mu.Lock()
	if !m.acquired {
		m.mu.Unlock()
		return nil
	}
	m.acquired = false
	m.mu.Unlock()

	if err := m.input.StopCapture(); err != nil {
		return fmt.Errorf("failed to release microphone: %w", err)
	}
	logger.Info("microphone released")
	return nil
}

func (m *Microphone) Acquired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired
}

// SetMuted disables the track: subscribers keep receiving frames, but
// they carry silence.
func (m *Microphone) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
}

// Subscribe registers a frame consumer and returns its removal func.
func (m *Microphone) Subscribe(onFrame func([]byte)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = onFrame

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subscribers, id)
		})
	}
}

func (m *Microphone) dispatch(frame []byte) {
	m.mu.Lock()
	muted := m.muted
	subscribers := make([]func([]byte), 0, len(m.subscribers))
	for _, subscriber := range m.subscribers {
		subscribers = append(subscribers, subscriber)
	}
	m.mu.Unlock()

	if muted {
		frame = make([]byte, len(frame))
	}
	for _, subscriber := range subscribers {
		subscriber(frame)
	}
}
