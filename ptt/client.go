// Package ptt owns the push-to-talk lifecycle: hold to record, release to
// submit one WAV-encoded utterance for analysis. The microphone is acquired
// when recording starts and released unconditionally when it stops, whether
// or not the upload succeeds.
package ptt

import (
	"context"
	"fmt"
	"sync"

	"mirror/audio"
	"mirror/coach"
	"mirror/encoder"
	"mirror/log"
	"mirror/pipeline"
)

// Recordings shorter than this are discarded without an upload; a stray tap
// on the talk key should not hit the server.
const minSamples = encoder.SampleRate / 10

// Client drives one microphone through record/submit cycles. Not safe for
// concurrent use from multiple goroutines; the UI event loop is the single
// caller.
type Client struct {
	audioCtx audio.Context
	device   *audio.DeviceInfo
	coach    *coach.Client
	opts     coach.Options

	mu        sync.Mutex
	capturing bool
	capture   audio.CaptureDevice
	pump      *pipeline.Pump
	recorder  *pipeline.Recorder
	level     *pipeline.LevelMeter
	feedDone  chan struct{}
	warmed    bool
}

func New(audioCtx audio.Context, device *audio.DeviceInfo, coachClient *coach.Client, opts coach.Options) *Client {
	return &Client{
		audioCtx: audioCtx,
		device:   device,
		coach:    coachClient,
		opts:     opts,
		recorder: pipeline.NewRecorder(),
		level:    pipeline.NewLevelMeter(),
	}
}

// SetDevice changes the microphone used by the next recording. Ignored
// while a recording is in progress.
func (c *Client) SetDevice(device *audio.DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capturing {
		return
	}
	c.device = device
}

// SpeechTick reports whether the audio since the previous call contained
// speech. Drives the silence warning while recording.
func (c *Client) SpeechTick() bool {
	return c.level.SpeechTick()
}

// Level returns the smoothed input level for the UI meter.
func (c *Client) Level() float64 {
	return c.level.Level()
}

func (c *Client) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Start acquires the microphone and begins buffering. Calling it while
// already recording is a no-op, so a press event that repeats (key
// auto-repeat, duplicate pointer-down) collapses into one session.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capturing {
		return nil
	}

	capture, err := c.audioCtx.NewCapture(c.device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return fmt.Errorf("acquire microphone: %w", err)
	}

	pump := pipeline.NewPump(pipeline.DefaultChunkBuffer)
	capture.SetCallback(pump.Push)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		return fmt.Errorf("start capture: %w", err)
	}

	c.recorder.Start()
	c.level.Reset()
	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		for chunk := range pump.Chunks() {
			c.level.Process(chunk)
			c.recorder.Append(chunk)
		}
	}()

	// Open the upload connection while the user is still talking.
	if !c.warmed {
		c.warmed = true
		go c.coach.Warm()
	}

	c.capture = capture
	c.pump = pump
	c.feedDone = feedDone
	c.capturing = true
	return nil
}

// Stop ends the recording, releases the microphone, and submits the
// utterance. Duplicate stop signals (pointer-up after pointer-leave) find
// the client idle and return nil. Too-short or empty recordings are
// discarded without a request.
func (c *Client) Stop(ctx context.Context) (*coach.Result, error) {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return nil, nil
	}
	c.capturing = false
	capture, pump, feedDone := c.capture, c.pump, c.feedDone
	c.capture, c.pump, c.feedDone = nil, nil, nil
	c.mu.Unlock()

	samples := c.release(capture, pump, feedDone)
	if len(samples) < minSamples {
		return nil, nil
	}

	wav := encoder.EncodeWAV(samples, encoder.SampleRate)
	result, err := c.coach.Analyze(ctx, wav, c.opts)
	if err != nil {
		return nil, err
	}

	nm := result.Metrics
	log.Analysis(log.AnalysisMetrics{
		AudioLengthS: float64(len(samples)) / float64(encoder.SampleRate),
		WAVSizeKB:    float64(len(wav)) / 1024,
		DNSTimeMs:    float64(nm.DNS.Milliseconds()),
		TLSTimeMs:    float64(nm.TLS.Milliseconds()),
		TTFBMs:       float64(nm.TTFB.Milliseconds()),
		TotalTimeMs:  float64(nm.Sum().Milliseconds()),
		Score:        result.Analysis.Score,
	}, c.opts.Mode, nm.ConnReused)
	return result, nil
}

// Close aborts any in-progress recording without submitting it.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return
	}
	c.capturing = false
	capture, pump, feedDone := c.capture, c.pump, c.feedDone
	c.capture, c.pump, c.feedDone = nil, nil, nil
	c.mu.Unlock()

	c.release(capture, pump, feedDone)
}

// release tears the audio path down in dependency order and returns the
// finalized utterance. Always runs to completion; nothing in it can fail.
func (c *Client) release(capture audio.CaptureDevice, pump *pipeline.Pump, feedDone chan struct{}) []int16 {
	capture.Stop()
	capture.ClearCallback()
	capture.Close()
	pump.Close()
	<-feedDone
	if n := pump.Dropped(); n > 0 {
		log.Warnf("capture dropped %d chunks", n)
	}
	return c.recorder.Stop()
}
