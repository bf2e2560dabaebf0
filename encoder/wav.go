package encoder

import (
	"encoding/binary"
	"fmt"
)

const WAVHeaderSize = 44

// EncodeWAV serializes 16-bit mono PCM samples into a WAV byte sequence with
// the fixed 44-byte header layout. The output is a pure function of its
// inputs, byte-for-byte reproducible.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	dataSize := uint32(len(samples) * 2)
	buf := make([]byte, WAVHeaderSize+len(samples)*2)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+dataSize)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                          // fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)                           // PCM
	binary.LittleEndian.PutUint16(buf[22:24], Channels)                    // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataSize)

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[WAVHeaderSize+i*2:], uint16(s))
	}
	return buf
}

// DecodeWAV parses a mono 16-bit PCM WAV byte sequence produced by EncodeWAV
// or any compatible encoder, returning the samples and sample rate.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < WAVHeaderSize {
		return nil, 0, fmt.Errorf("wav: %d bytes, need at least %d", len(data), WAVHeaderSize)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("wav: missing RIFF/WAVE markers")
	}
	if string(data[12:16]) != "fmt " {
		return nil, 0, fmt.Errorf("wav: missing fmt chunk")
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		return nil, 0, fmt.Errorf("wav: unsupported format tag %d", format)
	}
	if ch := binary.LittleEndian.Uint16(data[22:24]); ch != 1 {
		return nil, 0, fmt.Errorf("wav: unsupported channel count %d", ch)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		return nil, 0, fmt.Errorf("wav: unsupported bit depth %d", bits)
	}
	if string(data[36:40]) != "data" {
		return nil, 0, fmt.Errorf("wav: missing data chunk")
	}

	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	dataSize := int(binary.LittleEndian.Uint32(data[40:44]))
	if dataSize > len(data)-WAVHeaderSize {
		dataSize = len(data) - WAVHeaderSize
	}

	samples := make([]int16, dataSize/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[WAVHeaderSize+i*2:]))
	}
	return samples, sampleRate, nil
}
