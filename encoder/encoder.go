package encoder

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
)
