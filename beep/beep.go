// Package beep plays short synthesized cues for recording and suggestion
// events. All cues are fire-and-forget and fail silently when no output
// device is available.
package beep

var disabled bool

func Disable() { disabled = true }

const (
	sampleRate = 44100

	// Record start: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// Record end: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Warning: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30

	// Suggestion incoming: rising pitch, gentle
	suggestFreq   = 660
	suggestVolume = 0.4
	suggestDecay  = 25
)

// Platform-specific durations (darwin uses shorter durations)
