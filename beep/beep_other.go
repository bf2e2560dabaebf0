//go:build !linux && !darwin

package beep

// No cue playback on this platform.

func Init()        {}
func PlayStart()   {}
func PlayEnd()     {}
func PlayError()   {}
func PlaySuggest() {}
