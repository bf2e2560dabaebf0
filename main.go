package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"
	"golang.org/x/sync/errgroup"

	"mirror/audio"
	"mirror/beep"
	"mirror/coach"
	"mirror/config"
	"mirror/doctor"
	"mirror/encoder"
	"mirror/live"
	"mirror/log"
	"mirror/picker"
	"mirror/pipeline"
	"mirror/ptt"
	"mirror/shutdown"
)

var version = "dev"

// Coaching modes the server understands.
var modes = []string{"colloquio", "conflitto", "debrief"}

var analysisCount atomic.Int32

var shutdownOnce sync.Once

func gracefulShutdown() {
	shutdownOnce.Do(func() {
		if n := analysisCount.Load(); n > 0 {
			log.SessionEnd(int(n))
		}
		log.Close()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
		os.Exit(0)
	})
}

func modeLineText(mode, server string, liveMode bool) string {
	label := mode
	if liveMode {
		label += " (live)"
	}
	return fmt.Sprintf("[%s | %s]", label, server)
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func main() {
	serverFlag := flag.String("server", "http://127.0.0.1:8000", "Coach server base URL")
	modeFlag := flag.String("mode", "", "Coaching mode (colloquio, conflitto, debrief)")
	liveFlag := flag.Bool("live", false, "Duplex live session instead of push-to-talk")
	altFlag := flag.Bool("alternatives", false, "Request alternative phrasings with each analysis")
	copyFlag := flag.Bool("copy", true, "Copy the suggested phrase to the clipboard")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	fakeFlag := flag.Bool("fake", false, "Synthesized input instead of a real microphone")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("mirror %s\n", version)
		os.Exit(0)
	}

	if *doctorFlag {
		os.Exit(doctor.Run(*serverFlag))
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	// Persisted preferences, overridden by explicitly-set flags.
	prefsPath, err := config.DefaultPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: no config directory: %v\n", err)
	}
	prefs := config.Load(prefsPath)
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			prefs.Mode = *modeFlag
		case "live":
			prefs.LiveBeta = *liveFlag
		case "alternatives":
			prefs.ShowAlternatives = *altFlag
		}
	})

	// No mode yet: ask once, persist, proceed as if it had pre-existed.
	if prefs.Mode == "" {
		idx, err := picker.Pick("Select coaching mode", modes, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		prefs.Mode = modes[idx]
	}
	if prefsPath != "" {
		if err := prefs.Save(prefsPath); err != nil {
			log.Warnf("saving preferences: %v", err)
		}
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	log.SessionStart(prefs.Mode, prefs.LiveBeta)

	var audioCtx audio.Context
	if *fakeFlag {
		audioCtx = audio.NewFakeContext(fakeSignal(), 48000, true)
	} else {
		audioCtx, err = audio.NewContext()
		if err != nil {
			log.Errorf("audio context init error: %v", err)
			fmt.Printf("Error initializing audio context: %v\n", err)
			os.Exit(1)
		}
	}
	defer audioCtx.Close()

	selectedDevice := resolveDevice(audioCtx, *deviceFlag, *setupFlag)

	coachClient := coach.NewClient(*serverFlag)
	opts := coach.Options{
		Mode:             prefs.Mode,
		ShowAlternatives: prefs.ShowAlternatives,
		LiveBeta:         prefs.LiveBeta,
	}

	events := make(chan UIEvent, 8)
	tuiMu.Lock()
	tuiProgram = NewTUIProgram(events, prefs.LiveBeta)
	tuiMu.Unlock()
	go func() {
		if _, err := tuiProgram.Run(); err != nil {
			log.Errorf("TUI error: %v", err)
			os.Exit(1)
		}
		gracefulShutdown()
	}()

	go beep.Init()

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		gracefulShutdown()
	}()

	tuiSend(ModeLineMsg{Text: modeLineText(prefs.Mode, *serverFlag, prefs.LiveBeta)})
	tuiSend(DeviceLineMsg{Text: deviceLineText(selectedDevice)})

	if prefs.LiveBeta {
		runLive(audioCtx, selectedDevice, *serverFlag, prefs.Mode, events)
	} else {
		runBatch(audioCtx, selectedDevice, coachClient, opts, events, *copyFlag)
	}
	gracefulShutdown()
}

func resolveDevice(audioCtx audio.Context, deviceName string, setup bool) *audio.DeviceInfo {
	if deviceName != "" {
		devices, err := audioCtx.Devices()
		if err != nil {
			log.Warnf("device enumeration failed: %v", err)
			return nil
		}
		for i := range devices {
			if devices[i].Name == deviceName {
				return &devices[i]
			}
		}
		log.Warnf("device not found: %s", deviceName)
		return nil
	}
	if !setup {
		return nil
	}
	devices, err := audioCtx.Devices()
	if err != nil || len(devices) == 0 {
		log.Warnf("device selection unavailable: %v", err)
		return nil
	}
	names := make([]string, len(devices))
	for i := range devices {
		names[i] = devices[i].Name
	}
	idx, err := picker.Pick("Select microphone", names, audio.IsBluetooth)
	if err != nil {
		log.Warnf("device selection failed: %v", err)
		fmt.Println("Falling back to default device")
		return nil
	}
	return &devices[idx]
}

// runBatch is the push-to-talk loop: space toggles recording, release
// submits, the result lands in the TUI.
func runBatch(audioCtx audio.Context, device *audio.DeviceInfo, coachClient *coach.Client, opts coach.Options, events <-chan UIEvent, copyPhrase bool) {
	client := ptt.New(audioCtx, device, coachClient, opts)
	defer client.Close()

	var lastPhrase string
	var tickStop chan struct{}
	autoStop := make(chan struct{}, 1)

	stopTicker := func() {
		if tickStop != nil {
			close(tickStop)
			tickStop = nil
		}
	}
	defer stopTicker()

	startRecording := func() {
		if err := client.Start(); err != nil {
			log.Errorf("recording error: %v", err)
			tuiSend(ErrorMsg{Text: err.Error()})
			return
		}
		log.Info("recording_start")
		tuiSend(RecordingStartMsg{})
		go beep.PlayStart()
		tickStop = make(chan struct{})
		go recordingTicker(client, tickStop, autoStop)
	}

	stopAndSubmit := func() {
		stopTicker()
		log.Info("recording_stop")
		tuiSend(RecordingStopMsg{})
		go beep.PlayEnd()
		result, err := client.Stop(context.Background())
		if err != nil {
			log.Errorf("analysis error: %v", err)
			tuiSend(ErrorMsg{Text: err.Error()})
			return
		}
		if result == nil {
			return
		}
		analysisCount.Add(1)
		lastPhrase = result.Analysis.Phrase
		copied := false
		if copyPhrase && lastPhrase != "" {
			copied = clipboard.WriteAll(lastPhrase) == nil
		}
		if t := result.Analysis.Meta.Transcript; t != "" {
			log.Transcript(t)
		}
		tuiSend(AnalysisMsg{Analysis: result.Analysis, Copied: copied})
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev {
			case EvToggleTalk:
				if !client.Recording() {
					startRecording()
				} else {
					stopAndSubmit()
				}

			case EvCopyPhrase:
				if lastPhrase != "" {
					if err := clipboard.WriteAll(lastPhrase); err != nil {
						log.Warnf("clipboard: %v", err)
					}
				}

			case EvQuit:
				return
			}

		case <-autoStop:
			if client.Recording() {
				log.Info("silence_auto_close")
				stopAndSubmit()
			}
		}
	}
}

// recordingTicker updates the elapsed-time display and runs the silence
// monitor for one recording.
func recordingTicker(client *ptt.Client, stop <-chan struct{}, autoStop chan<- struct{}) {
	mon := newSilenceMonitor()
	start := time.Now()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			tuiSend(RecordingTickMsg{Duration: time.Since(start).Seconds()})
			switch mon.Tick(client.SpeechTick()) {
			case SilenceWarn, SilenceRepeat:
				log.Info("no_voice_warning")
				tuiSend(NoVoiceWarningMsg{})
				beep.PlayError()
			case SilenceWarnClear:
				tuiSend(VoiceClearedMsg{})
			case SilenceAutoClose:
				select {
				case autoStop <- struct{}{}:
				default:
				}
				return
			}
		}
	}
}

// runLive opens the duplex session and streams the microphone until quit.
func runLive(audioCtx audio.Context, device *audio.DeviceInfo, server, mode string, events <-chan UIEvent) {
	player, err := live.NewPlayer()
	if err != nil {
		log.Errorf("playback init error: %v", err)
		tuiSend(ErrorMsg{Text: err.Error()})
		return
	}
	defer player.Close()

	capture, err := audioCtx.NewCapture(device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		log.Errorf("capture device init error: %v", err)
		tuiSend(ErrorMsg{Text: err.Error()})
		return
	}
	defer capture.Close()

	pump := pipeline.NewPump(pipeline.DefaultChunkBuffer)
	capture.SetCallback(pump.Push)
	if err := capture.Start(); err != nil {
		log.Errorf("capture start error: %v", err)
		tuiSend(ErrorMsg{Text: err.Error()})
		return
	}
	defer func() {
		capture.Stop()
		capture.ClearCallback()
		pump.Close()
	}()

	sess, err := live.Dial(context.Background(), server, mode, pump.Chunks(), player)
	if err != nil {
		log.Errorf("live connect error: %v", err)
		tuiSend(ErrorMsg{Text: err.Error()})
		return
	}
	defer sess.Close()

	var g errgroup.Group
	g.Go(func() error {
		for u := range sess.Updates() {
			switch u.Kind {
			case live.KindStatus:
				tuiSend(StatusMsg{Text: u.Text})
			case live.KindPartial:
				tuiSend(PartialMsg{Text: u.Text})
			case live.KindFinal:
				tuiSend(FinalMsg{Text: u.Text})
			case live.KindResponse:
				go beep.PlaySuggest()
				tuiSend(ResponseMsg{Text: u.Text})
			case live.KindMode:
				tuiSend(ModeLineMsg{Text: modeLineText(u.Text, server, true)})
			case live.KindError:
				tuiSend(ErrorMsg{Text: u.Text})
			}
		}
		return nil
	})
	g.Go(func() error {
		for ev := range events {
			switch ev {
			case EvSuggest:
				if err := sess.PushToTalk(); err != nil {
					log.Warnf("suggest: %v", err)
					tuiSend(ErrorMsg{Text: err.Error()})
				}
			case EvQuit:
				// Unblocks the updates goroutine by draining the
				// dispatcher. Idempotent with the deferred close.
				sess.Close()
				return nil
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Errorf("live session: %v", err)
	}
}

// fakeSignal is one second of 440 Hz at 48 kHz for the -fake flag.
func fakeSignal() []float32 {
	const rate = 48000
	samples := make([]float32, rate)
	for i := range samples {
		samples[i] = 0.3 * float32(math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	return samples
}
