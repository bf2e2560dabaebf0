package live

import "sync"

// Player turns decoded PCM into audible output. At most one Playback is
// active per session; the session enforces that, not the player.
type Player interface {
	Play(samples []int16, sampleRate int) (Playback, error)
	Close()
}

// Playback is one in-flight audio segment. Stop is idempotent; Done closes
// when the segment finished or was stopped.
type Playback interface {
	Stop()
	Done() <-chan struct{}
}

// FakePlayer records playback activity instead of producing sound. Segments
// run until explicitly stopped or finished via FinishActive.
type FakePlayer struct {
	mu      sync.Mutex
	started []*FakePlayback
}

func NewFakePlayer() *FakePlayer {
	return &FakePlayer{}
}

func (p *FakePlayer) Play(samples []int16, sampleRate int) (Playback, error) {
	pb := &FakePlayback{
		Samples:    samples,
		SampleRate: sampleRate,
		done:       make(chan struct{}),
	}
	p.mu.Lock()
	p.started = append(p.started, pb)
	p.mu.Unlock()
	return pb, nil
}

func (p *FakePlayer) Close() {}

// Started returns every playback handed out so far, in order.
func (p *FakePlayer) Started() []*FakePlayback {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*FakePlayback, len(p.started))
	copy(out, p.started)
	return out
}

// ActiveCount reports how many playbacks are neither stopped nor finished.
func (p *FakePlayer) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pb := range p.started {
		if !pb.Ended() {
			n++
		}
	}
	return n
}

type FakePlayback struct {
	Samples    []int16
	SampleRate int

	once    sync.Once
	stopped bool
	mu      sync.Mutex
	done    chan struct{}
}

func (pb *FakePlayback) Stop() {
	pb.mu.Lock()
	pb.stopped = true
	pb.mu.Unlock()
	pb.once.Do(func() { close(pb.done) })
}

// Finish simulates natural end-of-audio.
func (pb *FakePlayback) Finish() {
	pb.once.Do(func() { close(pb.done) })
}

func (pb *FakePlayback) Done() <-chan struct{} { return pb.done }

func (pb *FakePlayback) Stopped() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.stopped
}

func (pb *FakePlayback) Ended() bool {
	select {
	case <-pb.done:
		return true
	default:
		return false
	}
}
