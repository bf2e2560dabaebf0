package pipeline

import "sync"

// Recorder collects PCM chunks between Start and Stop, preserving arrival
// order. Start while recording and Stop while idle are no-ops, so duplicate
// press/release signals collapse into one logical recording.
type Recorder struct {
	mu        sync.Mutex
	recording bool
	chunks    [][]int16
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return
	}
	r.chunks = nil
	r.recording = true
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Append stores one chunk. Chunks delivered while idle are discarded.
func (r *Recorder) Append(chunk []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording || len(chunk) == 0 {
		return
	}
	r.chunks = append(r.chunks, chunk)
}

// Stop ends the recording and returns all collected samples as one
// contiguous sequence. Returns nil when called while idle.
func (r *Recorder) Stop() []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil
	}
	r.recording = false

	total := 0
	for _, c := range r.chunks {
		total += len(c)
	}
	out := make([]int16, 0, total)
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	r.chunks = nil
	return out
}
