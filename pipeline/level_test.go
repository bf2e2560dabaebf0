package pipeline

import "testing"

func loudChunk(n int) []int16 {
	chunk := make([]int16, n)
	for i := range chunk {
		chunk[i] = 8000
	}
	return chunk
}

func TestLevelMeterSpeechTick(t *testing.T) {
	m := NewLevelMeter()

	for i := 0; i < 10; i++ {
		m.Process(loudChunk(320))
	}
	if !m.SpeechTick() {
		t.Error("loud chunks should register as speech")
	}

	for i := 0; i < 10; i++ {
		m.Process(make([]int16, 320))
	}
	if m.SpeechTick() {
		t.Error("silent chunks should not register as speech")
	}
}

func TestLevelMeterEmptyTick(t *testing.T) {
	m := NewLevelMeter()
	if m.SpeechTick() {
		t.Error("tick with no chunks must count as silence")
	}
}

func TestLevelMeterPeak(t *testing.T) {
	m := NewLevelMeter()
	m.Process(make([]int16, 320))
	m.Process(loudChunk(320))
	m.Process(make([]int16, 320))

	if m.Peak() < 0.1 {
		t.Errorf("peak = %f, want the loud chunk's level", m.Peak())
	}

	m.Reset()
	if m.Peak() != 0 || m.Level() != 0 {
		t.Error("Reset must clear the meter")
	}
	if m.SpeechTick() {
		t.Error("speech state must not survive Reset")
	}
}

func TestLevelMeterEmptyChunk(t *testing.T) {
	m := NewLevelMeter()
	m.Process(nil)
	if m.Level() != 0 {
		t.Error("empty chunk must not move the level")
	}
}
