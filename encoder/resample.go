package encoder

import "math"

// Downsample reduces float samples from inRate to outRate using box-filter
// decimation: each output sample is the arithmetic mean of the input samples
// falling into its time window. No further anti-aliasing is applied.
//
// When rounding leaves an empty window at the tail of a frame, that output
// sample is skipped rather than produced from nothing, so the result may be
// one sample shorter than round(len/ratio). Callers must not rely on exact
// per-frame output lengths.
func Downsample(samples []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(inRate) / float64(outRate)
	outLen := int(math.Round(float64(len(samples)) / ratio))
	out := make([]float32, 0, outLen)

	start := 0
	for i := 0; i < outLen; i++ {
		end := int(math.Round(float64(i+1) * ratio))
		if end > len(samples) {
			end = len(samples)
		}
		if end <= start {
			start = end
			continue
		}
		var sum float64
		for j := start; j < end; j++ {
			sum += float64(samples[j])
		}
		out = append(out, float32(sum/float64(end-start)))
		start = end
	}
	return out
}

// Quantize converts float samples in [-1, 1] to 16-bit signed PCM using the
// asymmetric full-scale mapping: non-negative values scale by 32767, negative
// values by 32768. Out-of-range input is clamped first.
func Quantize(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		if s >= 0 {
			out[i] = int16(math.Round(float64(s) * 32767))
		} else {
			out[i] = int16(math.Round(float64(s) * 32768))
		}
	}
	return out
}

// ToPCM16 converts one captured frame at inRate into 16 kHz mono int16 PCM.
func ToPCM16(samples []float32, inRate int) []int16 {
	return Quantize(Downsample(samples, inRate, SampleRate))
}
