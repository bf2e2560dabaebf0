//go:build linux

package live

import (
	"fmt"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
)

type pulsePlayer struct{}

func NewPlayer() (Player, error) {
	return pulsePlayer{}, nil
}

func (pulsePlayer) Close() {}

func (pulsePlayer) Play(samples []int16, sampleRate int) (Playback, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}

	pb := &pulsePlayback{done: make(chan struct{})}
	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pb.stopped.Load() || pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})

	stream, err := c.NewPlayback(reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("pulse playback: %w", err)
	}

	go func() {
		defer close(pb.done)
		defer c.Close()
		stream.Start()
		stream.Drain()
		stream.Close()
	}()

	return pb, nil
}

type pulsePlayback struct {
	stopped atomic.Bool
	done    chan struct{}
}

// Stop starves the reader; the stream drains its last buffered window and
// the playback goroutine closes done.
func (p *pulsePlayback) Stop() {
	p.stopped.Store(true)
}

func (p *pulsePlayback) Done() <-chan struct{} { return p.done }
