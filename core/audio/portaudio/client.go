package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-voice/core/audio"
)

// Client drives separate blocking PortAudio input and output streams. Capture
// runs a read loop, playback runs a write loop fed by a byte queue.
type Client struct {
	bufferSize   int
	encodingInfo audio.EncodingInfo

	input  *portaudio.Stream
	output *portaudio.Stream
	in     []int16
	out    []int16

	captureMu     sync.Mutex
	captureCancel context.CancelFunc
	captureDone   chan struct{}

	audioMu       sync.Mutex
	audioReady    *sync.Cond
	leftoverAudio []byte
	marks         []playbackMark
	closed        bool
	writerDone    chan struct{}
}

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

func NewClient(sampleRate, bufferSize int) (*Client, error) {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	c := &Client{
		bufferSize:   bufferSize,
		encodingInfo: audio.EncodingInfo{SampleRate: sampleRate, Format: audio.EncodingLinear16},
		in:           make([]int16, bufferSize),
		out:          make([]int16, bufferSize),
		writerDone:   make(chan struct{}),
	}
	c.audioReady = sync.NewCond(&c.audioMu)

	var err error
	if c.input, err = portaudio.OpenDefaultStream(1, 0, float64(sampleRate), bufferSize, c.in); err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio input stream: %w", err)
	}
	if c.output, err = portaudio.OpenDefaultStream(0, 1, float64(sampleRate), bufferSize, c.out); err != nil {
		c.input.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio output stream: %w", err)
	}
	if err := c.output.Start(); err != nil {
		c.input.Close()
		c.output.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio output stream: %w", err)
	}

	go c.writeLoop()
	return c, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo { return c.encodingInfo }

func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.captureCancel != nil {
		return nil
	}

	if err := c.input.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio input stream: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.captureCancel = cancel
	c.captureDone = done

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := c.input.Read(); err != nil {
				log.Printf("Failed to read from PortAudio stream: %v", err)
				continue
			}

			frame := make([]byte, len(c.in)*2)
			for i, sample := range c.in {
				binary.LittleEndian.PutUint16(frame[i*2:], uint16(sample))
			}
			onAudio(frame)
		}
	}()
	return nil
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.captureCancel == nil {
		return nil
	}

	c.captureCancel()
	<-c.captureDone
	c.captureCancel = nil
	c.captureDone = nil

	if err := c.input.Stop(); err != nil {
		return fmt.Errorf("failed to stop portaudio input stream: %w", err)
	}
	return nil
}

func (c *Client) SendAudio(audio []byte) error {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	if c.closed {
		return fmt.Errorf("client closed")
	}

	c.leftoverAudio = append(c.leftoverAudio, audio...)
	c.audioReady.Signal()
	return nil
}

func (c *Client) ClearBuffer() {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.leftoverAudio = nil
	c.marks = nil
}

func (c *Client) Mark(mark string, callback func(string)) error {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.marks = append(c.marks, playbackMark{name: mark, position: len(c.leftoverAudio), callback: callback})
	c.audioReady.Signal()
	return nil
}

func (c *Client) writeLoop() {
	defer close(c.writerDone)
	bufferBytes := c.bufferSize * 2

	for {
		c.audioMu.Lock()
		for !c.closed && len(c.leftoverAudio) == 0 && len(c.marks) == 0 {
			c.audioReady.Wait()
		}
		if c.closed {
			c.audioMu.Unlock()
			return
		}

		n := min(bufferBytes, len(c.leftoverAudio))
		chunk := c.leftoverAudio[:n]
		c.leftoverAudio = c.leftoverAudio[n:]
		passed := c.passMarksLocked(n)
		c.audioMu.Unlock()

		if n > 0 {
			for i := range c.out {
				c.out[i] = 0
			}
			for i := 0; i+1 < len(chunk); i += 2 {
				c.out[i/2] = int16(binary.LittleEndian.Uint16(chunk[i:]))
			}
			if err := c.output.Write(); err != nil {
				log.Printf("Failed to write to PortAudio stream: %v", err)
			}
		}

		for _, mark := range passed {
			mark.callback(mark.name)
		}
	}
}

func (c *Client) passMarksLocked(consumed int) []playbackMark {
	passed := 0
	for i := range c.marks {
		if c.marks[i].position <= consumed {
			passed++
			continue
		}
		c.marks[i].position -= consumed
	}
	toCall := c.marks[:passed]
	c.marks = c.marks[passed:]
	return toCall
}

func (c *Client) Close() {
	_ = c.StopCapture()

	c.audioMu.Lock()
	c.closed = true
	c.audioReady.Broadcast()
	c.audioMu.Unlock()
	<-c.writerDone

	c.input.Close()
	c.output.Close()
	portaudio.Terminate()
}
