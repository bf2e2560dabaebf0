// Package pipeline moves PCM from the audio callback to its consumer: the
// Pump converts and hands off chunks without ever blocking the capture
// thread, the Recorder accumulates them into one utterance for upload.
package pipeline

import (
	"sync/atomic"

	"mirror/encoder"
)

const DefaultChunkBuffer = 64

// Pump runs inside the capture data callback. Each incoming float frame is
// downsampled to 16 kHz, quantized to int16 and sent to Chunks() with a
// non-blocking send. If the consumer lags the chunk is dropped, never
// buffered in the callback path.
type Pump struct {
	chunks  chan []int16
	closed  atomic.Bool
	dropped atomic.Uint64
}

func NewPump(buffer int) *Pump {
	if buffer <= 0 {
		buffer = DefaultChunkBuffer
	}
	return &Pump{chunks: make(chan []int16, buffer)}
}

// Push converts one captured frame and hands it off. Safe to call from the
// audio callback; empty frames and calls after Close are no-ops.
func (p *Pump) Push(samples []float32, sampleRate int) {
	if len(samples) == 0 || sampleRate <= 0 || p.closed.Load() {
		return
	}
	pcm := encoder.ToPCM16(samples, sampleRate)
	if len(pcm) == 0 {
		return
	}
	select {
	case p.chunks <- pcm:
	default:
		p.dropped.Add(1)
	}
}

func (p *Pump) Chunks() <-chan []int16 { return p.chunks }

func (p *Pump) Dropped() uint64 { return p.dropped.Load() }

// Close stops accepting frames and closes the chunk channel. The capture
// device must be stopped first so no callback is in flight.
func (p *Pump) Close() {
	if p.closed.CompareAndSwap(false, true) {
		close(p.chunks)
	}
}
