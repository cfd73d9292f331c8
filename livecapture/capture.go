//go:build portaudio

// Package livecapture pulls channel-major PCM blocks from a live input
// device into the buffer shape ulc.EncoderState.EncodeBlockCBR and
// EncodeBlockVBR expect. It is a data-source adapter, built only when the
// portaudio tag is set, since portaudio needs cgo and a system audio
// library neither present nor desired in a default build.
package livecapture

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// ErrStreamClosed indicates a Capture method was called after Close.
var ErrStreamClosed = errors.New("livecapture: stream already closed")

// Capture reads blocks of nChan*blockSize channel-major float32 samples
// from the default input device, one block per ReadBlock call, matching
// portaudio's blocking-stream idiom rather than its callback idiom so the
// caller's own block cadence (one block per EncodeBlock* call) drives the
// read.
type Capture struct {
	stream    *portaudio.Stream
	nChan     int
	blockSize int
	interleaved []float32
	closed    bool
}

// Open starts capturing from the default input device at rateHz, in
// blocks of blockSize samples per channel across nChan channels.
func Open(rateHz float32, nChan, blockSize int) (*Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("livecapture: portaudio init: %w", err)
	}

	c := &Capture{
		nChan:       nChan,
		blockSize:   blockSize,
		interleaved: make([]float32, nChan*blockSize),
	}

	stream, err := portaudio.OpenDefaultStream(nChan, 0, float64(rateHz), blockSize, c.interleaved)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("livecapture: open default stream: %w", err)
	}
	c.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("livecapture: start stream: %w", err)
	}

	return c, nil
}

// ReadBlock blocks until one full block of samples is available and
// rearranges portaudio's interleaved frames into the channel-major layout
// EncodeBlockCBR/EncodeBlockVBR expect, writing into dst (length
// nChan*blockSize, caller-owned — ReadBlock never allocates).
func (c *Capture) ReadBlock(dst []float32) error {
	if c.closed {
		return ErrStreamClosed
	}
	if len(dst) != c.nChan*c.blockSize {
		return fmt.Errorf("livecapture: dst has %d samples, want %d", len(dst), c.nChan*c.blockSize)
	}
	if err := c.stream.Read(); err != nil {
		return fmt.Errorf("livecapture: read: %w", err)
	}

	for ch := 0; ch < c.nChan; ch++ {
		base := ch * c.blockSize
		for i := 0; i < c.blockSize; i++ {
			dst[base+i] = c.interleaved[i*c.nChan+ch]
		}
	}
	return nil
}

// Close stops the stream and releases portaudio's global state. Safe to
// call more than once.
func (c *Capture) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.stream.Close()
	portaudio.Terminate()
	return err
}
