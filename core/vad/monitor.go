package vad

import (
	"context"
	"fmt"
)

type microphone interface {
	FrameSource
	Acquire(ctx context.Context) error
	Release() error
}

// Monitor is the listening infrastructure: the shared microphone plus the
// detector analysing it.
type Monitor struct {
	mic      microphone
	detector *Detector
}

func NewMonitor(mic microphone, detector *Detector) *Monitor {
	return &Monitor{mic: mic, detector: detector}
}

// StartListening acquires the microphone and primes the detector. Calling it
// while already listening is a no-op.
func (m *Monitor) StartListening(ctx context.Context, handler Handler) error {
	if err := m.mic.Acquire(ctx); err != nil {
		return err
	}
	if err := m.detector.Start(m.mic, handler); err != nil {
		return fmt.Errorf("failed to start vad: %w", err)
	}
	return nil
}

func (m *Monitor) StopListening() error {
	m.detector.Stop()
	return m.mic.Release()
}

func (m *Monitor) EnableVAD()  { m.detector.Resume() }
func (m *Monitor) DisableVAD() { m.detector.Pause() }

func (m *Monitor) Level() float64 { return m.detector.Level() }
