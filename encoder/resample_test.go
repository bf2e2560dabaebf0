package encoder

import "testing"

func TestDownsamplePassthrough(t *testing.T) {
	in := []float32{0.1, -0.2, 0.3, -0.4}
	out := Downsample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestDownsampleRatio3(t *testing.T) {
	// 48 kHz -> 16 kHz: each output sample is the mean of 3 inputs.
	in := []float32{0.3, 0.3, 0.3, -0.6, -0.6, -0.6, 0.9, 0.9, 0.9}
	out := Downsample(in, 48000, 16000)
	want := []float32{0.3, -0.6, 0.9}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		diff := out[i] - want[i]
		if diff < -1e-6 || diff > 1e-6 {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestDownsampleLength(t *testing.T) {
	for _, tt := range []struct {
		n, inRate, want int
	}{
		{900, 48000, 300},
		{1024, 48000, 341},
		{441, 44100, 160},
		{0, 48000, 0},
	} {
		out := Downsample(make([]float32, tt.n), tt.inRate, 16000)
		// An empty rounding window at the frame tail may drop one sample.
		if len(out) != tt.want && len(out) != tt.want-1 {
			t.Errorf("n=%d rate=%d: len = %d, want %d", tt.n, tt.inRate, len(out), tt.want)
		}
	}
}

func TestQuantize(t *testing.T) {
	for _, tt := range []struct {
		in   float32
		want int16
	}{
		{1.0, 32767},
		{-1.0, -32768},
		{0.0, 0},
		{2.5, 32767},   // clamped
		{-3.0, -32768}, // clamped
		{0.5, 16384},
	} {
		got := Quantize([]float32{tt.in})[0]
		if got != tt.want {
			t.Errorf("Quantize(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestToPCM16EmptyFrame(t *testing.T) {
	if out := ToPCM16(nil, 48000); len(out) != 0 {
		t.Errorf("len = %d, want 0", len(out))
	}
}
