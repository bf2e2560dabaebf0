package ptt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mirror/audio"
	"mirror/coach"
	"mirror/encoder"
)

// sine-free test signal: half a second of a constant level, enough to
// clear the short-recording guard.
func testSamples() []float32 {
	samples := make([]float32, encoder.SampleRate/2)
	for i := range samples {
		samples[i] = 0.25
	}
	return samples
}

func analysisServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		hits.Add(1)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if len(body) == 0 {
			t.Error("empty upload body")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"phrase": "Respira e rallenta.",
			"score":  6.0,
		})
	}))
}

func TestRecordAndSubmit(t *testing.T) {
	var hits atomic.Int32
	srv := analysisServer(t, &hits)
	defer srv.Close()

	audioCtx := audio.NewFakeContext(testSamples(), encoder.SampleRate, false)
	c := New(audioCtx, nil, coach.NewClient(srv.URL), coach.Options{Mode: "colloquio"})

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.Recording() {
		t.Fatal("not recording after Start")
	}
	// Let the fake feed drain its buffer through the pump.
	time.Sleep(100 * time.Millisecond)

	result, err := c.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if result == nil {
		t.Fatal("no result for a half-second recording")
	}
	if result.Analysis.Phrase != "Respira e rallenta." {
		t.Errorf("phrase = %q", result.Analysis.Phrase)
	}
	if c.Recording() {
		t.Error("still recording after Stop")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("uploads = %d, want 1", got)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	var hits atomic.Int32
	srv := analysisServer(t, &hits)
	defer srv.Close()

	audioCtx := audio.NewFakeContext(testSamples(), encoder.SampleRate, false)
	c := New(audioCtx, nil, coach.NewClient(srv.URL), coach.Options{Mode: "m"})

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Key auto-repeat fires Start again mid-recording.
	if err := c.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if _, err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("uploads = %d, want 1", got)
	}
}

func TestDuplicateStopDoesNotDoubleSubmit(t *testing.T) {
	var hits atomic.Int32
	srv := analysisServer(t, &hits)
	defer srv.Close()

	audioCtx := audio.NewFakeContext(testSamples(), encoder.SampleRate, false)
	c := New(audioCtx, nil, coach.NewClient(srv.URL), coach.Options{Mode: "m"})

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if _, err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// pointer-leave then pointer-up
	result, err := c.Stop(context.Background())
	if err != nil {
		t.Fatalf("duplicate Stop: %v", err)
	}
	if result != nil {
		t.Error("duplicate Stop returned a result")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("uploads = %d, want 1", got)
	}
}

func TestStopWhileIdle(t *testing.T) {
	audioCtx := audio.NewFakeContext(nil, encoder.SampleRate, false)
	c := New(audioCtx, nil, coach.NewClient("http://127.0.0.1:1"), coach.Options{})

	result, err := c.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop while idle: %v", err)
	}
	if result != nil {
		t.Error("Stop while idle returned a result")
	}
}

func TestShortRecordingDiscarded(t *testing.T) {
	var hits atomic.Int32
	srv := analysisServer(t, &hits)
	defer srv.Close()

	// Realtime pacing and an immediate release: at most one frame is
	// captured, far below the short-recording floor.
	audioCtx := audio.NewFakeContext(nil, encoder.SampleRate, true)
	c := New(audioCtx, nil, coach.NewClient(srv.URL), coach.Options{Mode: "m"})

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := c.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if result != nil {
		t.Error("short recording should not be submitted")
	}
	if got := hits.Load(); got != 0 {
		t.Errorf("uploads = %d, want 0", got)
	}
}

func TestFailedUploadReleasesMicrophone(t *testing.T) {
	audioCtx := audio.NewFakeContext(testSamples(), encoder.SampleRate, false)
	// nothing listens here
	c := New(audioCtx, nil, coach.NewClient("http://127.0.0.1:1"), coach.Options{Mode: "m"})

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if _, err := c.Stop(context.Background()); err == nil {
		t.Fatal("expected transport error")
	}
	if c.Recording() {
		t.Error("microphone held after failed upload")
	}

	// The client must be usable again after the failure.
	if err := c.Start(); err != nil {
		t.Fatalf("Start after failure: %v", err)
	}
	c.Close()
	if c.Recording() {
		t.Error("still recording after Close")
	}
}
