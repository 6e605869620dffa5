package playback

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/koscakluka/ema-voice/core/audio"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

type codec string

const (
	codecMP3 codec = "mp3"
	codecPCM codec = "pcm"
)

// sourceFormat is a provider output format such as mp3_44100_128 or
// pcm_16000.
type sourceFormat struct {
	codec      codec
	sampleRate int
}

func parseFormat(format string) (sourceFormat, error) {
	parts := strings.Split(format, "_")
	if len(parts) < 2 {
		return sourceFormat{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	rate, err := strconv.Atoi(parts[1])
	if err != nil || rate <= 0 {
		return sourceFormat{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	switch codec(parts[0]) {
	case codecMP3:
		return sourceFormat{codec: codecMP3, sampleRate: rate}, nil
	case codecPCM:
		return sourceFormat{codec: codecPCM, sampleRate: rate}, nil
	}
	return sourceFormat{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// pcmReader returns a reader of interleaved linear16 samples for r.
func (f sourceFormat) pcmReader(r io.Reader) (reader io.Reader, sampleRate, channels int, err error) {
	switch f.codec {
	case codecMP3:
		decoder, decodeErr := mp3.NewDecoder(r)
		if decodeErr != nil {
			return nil, 0, 0, fmt.Errorf("failed to decode mp3: %w", decodeErr)
		}
		// go-mp3 always produces 16 bit stereo
		return decoder, decoder.SampleRate(), 2, nil
	case codecPCM:
		return r, f.sampleRate, 1, nil
	}
	return nil, 0, 0, ErrUnsupportedFormat
}

// converter turns decoded samples into mono linear16 at the output rate.
// Chunks may end mid frame; the remainder is kept for the next call.
type converter struct {
	channels int
	fromRate int
	toRate   int

	pending []byte
}

func (c *converter) convert(chunk []byte) []byte {
	frameSize := 2 * c.channels
	data := append(c.pending, chunk...)
	whole := len(data) - len(data)%frameSize
	c.pending = append([]byte(nil), data[whole:]...)

	pcm := data[:whole]
	if len(pcm) == 0 {
		return nil
	}
	if c.channels == 2 {
		pcm = audio.DownmixStereo16(pcm)
	}
	return audio.Resample16(pcm, c.fromRate, c.toRate)
}

func checkOutputEncoding(encoding audio.EncodingInfo) error {
	if encoding.Format != audio.EncodingLinear16 {
		return fmt.Errorf("%w: output device expects %s", ErrUnsupportedFormat, encoding.Format.Name())
	}
	return nil
}
