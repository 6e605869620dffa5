package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestEnergyOfSilenceIsZero(t *testing.T) {
	if energy := Energy(make([]byte, 320)); energy != 0 {
		t.Fatalf("expected zero energy, got %v", energy)
	}
}

func TestEnergyOfFullScaleSquareWave(t *testing.T) {
	frame := make([]byte, 320)
	for i := 0; i < 160; i++ {
		v := int16(math.MaxInt16)
		if i%2 == 0 {
			v = math.MinInt16 + 1
		}
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(v))
	}

	if energy := Energy(frame); energy < 0.99 || energy > 1 {
		t.Fatalf("expected energy close to 1, got %v", energy)
	}
}

func TestDownmixStereo16AveragesChannels(t *testing.T) {
	stereo := make([]byte, 4)
	binary.LittleEndian.PutUint16(stereo[0:], uint16(int16(1000)))
	binary.LittleEndian.PutUint16(stereo[2:], uint16(int16(-200)))

	mono := DownmixStereo16(stereo)
	if len(mono) != 2 {
		t.Fatalf("expected one mono sample, got %d bytes", len(mono))
	}
	if got := int16(binary.LittleEndian.Uint16(mono)); got != 400 {
		t.Fatalf("expected 400, got %d", got)
	}
}

func TestResample16ChangesLength(t *testing.T) {
	pcm := make([]byte, 44100*2)
	out := Resample16(pcm, 44100, 16000)
	if len(out) != 16000*2 {
		t.Fatalf("expected %d bytes, got %d", 16000*2, len(out))
	}

	if same := Resample16(pcm, 16000, 16000); len(same) != len(pcm) {
		t.Fatalf("expected passthrough for equal rates")
	}
}

func TestBlobWAVHeader(t *testing.T) {
	blob := Blob{Data: make([]byte, 3200), EncodingInfo: GetDefaultEncodingInfo()}

	wav := blob.WAV()
	if len(wav) != 44+3200 {
		t.Fatalf("expected %d bytes, got %d", 44+3200, len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("unexpected wav header %q", wav[:44])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:]); rate != DefaultSampleRate {
		t.Fatalf("expected sample rate %d, got %d", DefaultSampleRate, rate)
	}
	if got := blob.Duration(); got != 100*time.Millisecond {
		t.Fatalf("expected 100ms blob, got %v", got)
	}
}
