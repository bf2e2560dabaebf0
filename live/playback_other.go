//go:build !linux

package live

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

type malgoPlayer struct {
	ctx *malgo.AllocatedContext
}

func NewPlayer() (Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &malgoPlayer{ctx: ctx}, nil
}

func (p *malgoPlayer) Close() {
	p.ctx.Uninit()
	p.ctx.Free()
}

func (p *malgoPlayer) Play(samples []int16, sampleRate int) (Playback, error) {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(sampleRate)

	pb := &malgoPlayback{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	finished := make(chan struct{})
	var finishOnce sync.Once
	pos := 0

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			n := copy(out, data[pos:])
			pos += n
			for i := n; i < len(out); i++ {
				out[i] = 0
			}
			if pos >= len(data) {
				finishOnce.Do(func() { close(finished) })
			}
		},
	}

	dev, err := malgo.InitDevice(p.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, err
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, err
	}

	go func() {
		defer close(pb.done)
		select {
		case <-finished:
			// let the device drain the last buffered period
			time.Sleep(50 * time.Millisecond)
		case <-pb.stop:
		}
		dev.Uninit()
	}()

	return pb, nil
}

type malgoPlayback struct {
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (pb *malgoPlayback) Stop() {
	pb.once.Do(func() { close(pb.stop) })
}

func (pb *malgoPlayback) Done() <-chan struct{} { return pb.done }
