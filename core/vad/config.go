package vad

import (
	"fmt"
	"time"
)

const (
	DefaultOnsetThreshold   = 0.10
	DefaultSilenceThreshold = 0.05
	DefaultMinSpeech        = 200 * time.Millisecond
	DefaultMinSilence       = 900 * time.Millisecond
	DefaultGain             = 1.6
	DefaultSmoothing        = 0.35
)

// Config tunes the energy detector. Energies are normalized to [0,1] after
// Gain is applied.
type Config struct {
	// OnsetThreshold is the energy above which speech may be starting.
	OnsetThreshold float64 `json:"onset_threshold"`
	// SilenceThreshold is the energy below which the segment is quiet. It
	// must be lower than OnsetThreshold.
	SilenceThreshold float64       `json:"silence_threshold"`
	MinSpeech        time.Duration `json:"min_speech"`
	MinSilence       time.Duration `json:"min_silence"`
	Gain             float64       `json:"gain"`
	// Smoothing is the EMA weight of the newest frame, 0 disables smoothing.
	Smoothing float64 `json:"smoothing"`
}

func DefaultConfig() Config {
	return Config{
		OnsetThreshold:   DefaultOnsetThreshold,
		SilenceThreshold: DefaultSilenceThreshold,
		MinSpeech:        DefaultMinSpeech,
		MinSilence:       DefaultMinSilence,
		Gain:             DefaultGain,
		Smoothing:        DefaultSmoothing,
	}
}

func (c Config) Validate() error {
	if c.OnsetThreshold <= 0 || c.OnsetThreshold > 1 {
		return fmt.Errorf("vad: onset threshold must be in (0,1], got %v", c.OnsetThreshold)
	}
	if c.SilenceThreshold <= 0 || c.SilenceThreshold >= c.OnsetThreshold {
		return fmt.Errorf("vad: silence threshold must be in (0,onset), got %v", c.SilenceThreshold)
	}
	if c.MinSpeech < 0 || c.MinSilence < 0 {
		return fmt.Errorf("vad: durations must not be negative")
	}
	if c.Gain <= 0 {
		return fmt.Errorf("vad: gain must be positive, got %v", c.Gain)
	}
	if c.Smoothing < 0 || c.Smoothing > 1 {
		return fmt.Errorf("vad: smoothing must be in [0,1], got %v", c.Smoothing)
	}
	return nil
}
