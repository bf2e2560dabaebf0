// Package audio abstracts microphone capture. Devices deliver float32 mono
// frames at the device's own sample rate; downstream code owns the
// conversion to the wire format.
package audio

import "strings"

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FrameCallback receives one captured frame: float samples in [-1, 1] and
// the rate they were captured at. It runs on the audio thread and must not
// block; samples are only valid for the duration of the call.
type FrameCallback func(samples []float32, sampleRate int)

type CaptureConfig struct {
	SampleRate uint32 // requested rate; the callback reports the actual one
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb FrameCallback)
	ClearCallback()
}
