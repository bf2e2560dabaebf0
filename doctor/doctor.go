// Package doctor runs interactive system diagnostics: microphone capture,
// a full analysis round trip against the coach server, and audio playback.
package doctor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"mirror/audio"
	"mirror/coach"
	"mirror/encoder"
	"mirror/live"
	"mirror/pipeline"
)

// Run executes interactive diagnostic checks and returns an exit code
// (0=all pass, 1=any fail).
func Run(serverURL string) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("mirror doctor - interactive system diagnostics")
	fmt.Println("==============================================")

	allPass := true

	samples, ok := checkMicrophone()
	if !ok {
		allPass = false
	}
	if allPass && !checkAnalysis(serverURL, samples) {
		allPass = false
	}
	if allPass && !checkPlayback(samples) {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkMicrophone() ([]int16, bool) {
	fmt.Println()
	fmt.Println("[1/3] Microphone capture")

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return nil, false
	}
	defer ctx.Close()

	device, ok := pickDevice(ctx)
	if !ok {
		return nil, false
	}

	fmt.Println()
	fmt.Print("Press Enter and speak for 3 seconds...")
	bufio.NewReader(os.Stdin).ReadString('\n')

	samples, level, err := recordFor(ctx, device, 3*time.Second)
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return nil, false
	}
	if len(samples) == 0 {
		fmt.Println("  FAIL: no audio captured")
		return nil, false
	}

	seconds := float64(len(samples)) / float64(encoder.SampleRate)
	fmt.Printf("  Captured %.1fs of audio (peak level %.3f)\n", seconds, level)
	if level < 0.01 {
		fmt.Println("  FAIL: microphone appears silent")
		return samples, false
	}
	fmt.Println("  PASS: microphone capture working")
	return samples, true
}

func pickDevice(ctx audio.Context) (*audio.DeviceInfo, bool) {
	devices, err := ctx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return nil, false
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no capture devices found")
		return nil, false
	}
	if len(devices) == 1 {
		fmt.Printf("Using device: %s\n", devices[0].Name)
		return &devices[0], true
	}

	fmt.Println()
	fmt.Println("Select input device:")
	for i, d := range devices {
		fmt.Printf("  %d. %s\n", i+1, d.Name)
	}
	fmt.Printf("Choice [1-%d]: ", len(devices))

	choice, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	choice = strings.TrimSpace(choice)
	idx := 0
	if choice != "" {
		fmt.Sscanf(choice, "%d", &idx)
		idx--
	}
	if idx < 0 || idx >= len(devices) {
		fmt.Println("  FAIL: invalid choice")
		return nil, false
	}
	fmt.Printf("Selected: %s\n", devices[idx].Name)
	return &devices[idx], true
}

func recordFor(ctx audio.Context, device *audio.DeviceInfo, d time.Duration) ([]int16, float64, error) {
	capture, err := ctx.NewCapture(device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return nil, 0, err
	}
	defer capture.Close()

	pump := pipeline.NewPump(pipeline.DefaultChunkBuffer)
	recorder := pipeline.NewRecorder()
	meter := pipeline.NewLevelMeter()
	recorder.Start()

	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		for chunk := range pump.Chunks() {
			meter.Process(chunk)
			recorder.Append(chunk)
		}
	}()

	capture.SetCallback(pump.Push)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		pump.Close()
		<-feedDone
		return nil, 0, err
	}

	fmt.Print("  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	deadline := time.After(d)
loop:
	for {
		select {
		case <-deadline:
			break loop
		case <-ticker.C:
			fmt.Print(".")
		}
	}
	ticker.Stop()
	fmt.Println(" done")

	capture.Stop()
	capture.ClearCallback()
	pump.Close()
	<-feedDone

	return recorder.Stop(), meter.Peak(), nil
}

func checkAnalysis(serverURL string, samples []int16) bool {
	fmt.Println()
	fmt.Println("[2/3] Analysis round trip")
	fmt.Printf("Submitting recording to %s...\n", serverURL)

	client := coach.NewClient(serverURL)
	wav := encoder.EncodeWAV(samples, encoder.SampleRate)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := client.Analyze(ctx, wav, coach.Options{Mode: "colloquio"})
	if err != nil {
		fmt.Printf("  FAIL: analysis request: %v\n", err)
		return false
	}

	fmt.Printf("\n  Suggested phrase: %s\n", result.Analysis.Phrase)
	fmt.Printf("  Score: %.1f\n", result.Analysis.Score)
	if t := result.Analysis.Meta.Transcript; t != "" {
		fmt.Printf("  Transcript: %s\n", t)
	}
	fmt.Println()

	confirm := askYesNo("Does the transcript match what you said? [y/n]: ")
	if !confirm {
		fmt.Println("  FAIL: analysis not confirmed")
		return false
	}
	fmt.Println("  PASS: analysis verified by user")
	return true
}

func checkPlayback(samples []int16) bool {
	fmt.Println()
	fmt.Println("[3/3] Audio playback")
	fmt.Println("Playing your recording back...")

	player, err := live.NewPlayer()
	if err != nil {
		fmt.Printf("  FAIL: playback init: %v\n", err)
		return false
	}
	defer player.Close()

	pb, err := player.Play(samples, encoder.SampleRate)
	if err != nil {
		fmt.Printf("  FAIL: playback: %v\n", err)
		return false
	}
	select {
	case <-pb.Done():
	case <-time.After(10 * time.Second):
		pb.Stop()
	}

	if !askYesNo("Did you hear your recording? [y/n]: ") {
		fmt.Println("  FAIL: playback not confirmed")
		return false
	}
	fmt.Println("  PASS: playback verified by user")
	return true
}

func askYesNo(prompt string) bool {
	resetTerminal()
	reader := bufio.NewReader(os.Stdin)
	fmt.Print(prompt)
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}
