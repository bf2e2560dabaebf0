package pipeline

import (
	"math"
	"sync"
)

const (
	// RMS above this counts a chunk as speech. Tuned against typical
	// laptop microphones; quiet rooms sit well under 0.005.
	speechRMS = 0.015

	// Share of chunks in a tick window that must be speech.
	speechTickRatio = 0.10
)

// LevelMeter tracks signal energy on the consumer side of the pump and
// classifies each chunk as speech or silence. It feeds the no-voice warning
// during a recording.
type LevelMeter struct {
	mu           sync.Mutex
	level        float64
	peak         float64
	totalChunks  int
	speechChunks int
	tickTotal    int
	tickSpeech   int
}

func NewLevelMeter() *LevelMeter {
	return &LevelMeter{}
}

// Process classifies one chunk. Safe to call from the pump consumer
// goroutine while other goroutines read the meter.
func (m *LevelMeter) Process(chunk []int16) {
	if len(chunk) == 0 {
		return
	}
	var sumSquares float64
	for _, s := range chunk {
		normalized := float64(s) / 32768.0
		sumSquares += normalized * normalized
	}
	rms := math.Sqrt(sumSquares / float64(len(chunk)))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = m.level*0.6 + rms*0.4
	if rms > m.peak {
		m.peak = rms
	}
	m.totalChunks++
	if rms >= speechRMS {
		m.speechChunks++
	}
}

// Level returns the smoothed signal level.
func (m *LevelMeter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Peak returns the highest instantaneous level seen since the last Reset.
func (m *LevelMeter) Peak() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// SpeechTick reports whether the chunks processed since the previous call
// contained speech. A tick with no chunks at all counts as silence.
func (m *LevelMeter) SpeechTick() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.totalChunks - m.tickTotal
	s := m.speechChunks - m.tickSpeech
	m.tickTotal, m.tickSpeech = m.totalChunks, m.speechChunks
	if t == 0 {
		return false
	}
	return float64(s)/float64(t) >= speechTickRatio
}

func (m *LevelMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = 0
	m.peak = 0
	m.totalChunks = 0
	m.speechChunks = 0
	m.tickTotal = 0
	m.tickSpeech = 0
}
