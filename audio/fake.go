package audio

import (
	"sync/atomic"
	"time"
)

const fakeFrameSize = 1024

// FakeContext replays prepared float samples as if they came from a
// microphone. Used by tests and the -fake flag.
type FakeContext struct {
	samples  []float32
	rate     int
	realtime bool
}

// NewFakeContext builds a fake source from float samples at the given rate.
// With realtime set, frames are paced at the rate a real device would
// deliver them; otherwise the whole buffer is fed as fast as possible,
// followed by silence.
func NewFakeContext(samples []float32, rate int, realtime bool) *FakeContext {
	return &FakeContext{samples: samples, rate: rate, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{
		samples:  f.samples,
		rate:     f.rate,
		realtime: f.realtime,
	}, nil
}

type FakeCapture struct {
	samples  []float32
	rate     int
	realtime bool
	callback atomic.Pointer[FrameCallback]

	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) SetCallback(cb FrameCallback) {
	f.callback.Store(&cb)
}

func (f *FakeCapture) ClearCallback() {
	f.callback.Store(nil)
}

func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(f.rate)

	go func() {
		defer close(f.feedDone)
		pos := 0
		silence := make([]float32, fakeFrameSize)
		for {
			select {
			case <-f.stopCh:
				return
			default:
			}

			frame := silence
			wait := interval
			if pos < len(f.samples) {
				end := min(pos+fakeFrameSize, len(f.samples))
				frame = f.samples[pos:end]
				pos = end
				if !f.realtime {
					wait = 0 // drain the buffer immediately, pace only the silence tail
				}
			} else if !f.realtime {
				wait = time.Millisecond
			}
			if cb := f.callback.Load(); cb != nil {
				(*cb)(frame, f.rate)
			}

			select {
			case <-f.stopCh:
				return
			case <-time.After(wait):
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() {
	f.Stop()
}
