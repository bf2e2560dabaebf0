package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mirror/coach"
)

// TUI message types
type RecordingStartMsg struct{}
type RecordingStopMsg struct{}
type RecordingTickMsg struct{ Duration float64 }
type StatusMsg struct{ Text string }
type PartialMsg struct{ Text string }
type FinalMsg struct{ Text string }
type ResponseMsg struct{ Text string }
type AnalysisMsg struct {
	Analysis *coach.Analysis
	Copied   bool
}
type NoVoiceWarningMsg struct{}
type VoiceClearedMsg struct{}
type ModeLineMsg struct{ Text string }   // operating mode and server
type DeviceLineMsg struct{ Text string } // microphone device name
type ErrorMsg struct{ Text string }
type tickMsg time.Time

// UIEvent is a key-driven command for the main loop.
type UIEvent int

const (
	EvToggleTalk UIEvent = iota
	EvSuggest
	EvCopyPhrase
	EvQuit
)

type tuiModel struct {
	live   bool
	events chan<- UIEvent

	recording         bool
	recordingDuration float64
	status            string
	frame             int
	width, height     int
	modeLine          string
	deviceLine        string
	partial           string
	final             string
	response          string
	lastAnalysis      *coach.Analysis
	copied            bool
	noVoice           bool
	errText           string
	msgCount          int
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

var (
	styleRec      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleStandby  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleLive     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleMode     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleDim      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	stylePartial  = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	styleFinal    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleResponse = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stylePhrase   = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	styleScore    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleAlt      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	styleErr      = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleCopied   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleHelp     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleHelpKey  = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
)

func NewTUIProgram(events chan<- UIEvent, live bool) *tea.Program {
	m := tuiModel{live: live, events: events}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) send(ev UIEvent) {
	select {
	case m.events <- ev:
	default:
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.send(EvQuit)
			return m, tea.Quit
		case " ":
			m.send(EvToggleTalk)
		case "s":
			if m.live {
				m.send(EvSuggest)
			}
		case "c":
			if m.lastAnalysis != nil {
				m.send(EvCopyPhrase)
			}
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case RecordingStartMsg:
		m.recording = true
		m.recordingDuration = 0
		m.noVoice = false
		m.errText = ""

	case RecordingStopMsg:
		m.recording = false
		m.noVoice = false

	case NoVoiceWarningMsg:
		m.noVoice = true

	case VoiceClearedMsg:
		m.noVoice = false

	case RecordingTickMsg:
		m.recordingDuration = msg.Duration

	case StatusMsg:
		m.status = msg.Text

	case PartialMsg:
		m.partial = msg.Text

	case FinalMsg:
		m.final = msg.Text
		m.partial = ""

	case ResponseMsg:
		m.response = msg.Text

	case AnalysisMsg:
		m.msgCount++
		m.lastAnalysis = msg.Analysis
		m.copied = msg.Copied
		m.errText = ""

	case ModeLineMsg:
		m.modeLine = msg.Text

	case DeviceLineMsg:
		m.deviceLine = msg.Text

	case ErrorMsg:
		m.errText = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var lines []string
	lines = append(lines, m.statusLine())
	if m.recording && m.noVoice {
		lines = append(lines, styleErr.Render("  ⚠ no voice detected"))
	}
	lines = append(lines, "")

	if m.modeLine != "" {
		lines = append(lines, styleMode.Render(m.modeLine))
	}
	if m.deviceLine != "" {
		lines = append(lines, styleDim.Render(m.deviceLine))
	}
	lines = append(lines, "")

	wrapWidth := m.width - 2
	if wrapWidth < 10 {
		wrapWidth = 10
	}

	if m.live {
		lines = append(lines, m.liveLines(wrapWidth)...)
	} else {
		lines = append(lines, m.analysisLines(wrapWidth)...)
	}

	if m.errText != "" {
		lines = append(lines, "", styleErr.Render("error: "+m.errText))
	}

	lines = append(lines, "", m.helpLine())
	return strings.Join(lines, "\n")
}

func (m tuiModel) statusLine() string {
	if m.recording {
		return styleRec.Render(fmt.Sprintf("● REC %.1fs", m.recordingDuration))
	}
	if m.live {
		switch m.status {
		case "disconnected":
			return styleErr.Render("◌ DISCONNECTED")
		case "speaking":
			return styleLive.Render("◉ SPEAKING")
		case "suggesting":
			return styleLive.Render("◉ SUGGESTING")
		default:
			return styleLive.Render("◉ LISTENING")
		}
	}
	return styleStandby.Render("○ STANDBY")
}

func (m tuiModel) liveLines(wrapWidth int) []string {
	var lines []string
	if m.final != "" {
		for _, l := range wrapText(m.final, wrapWidth) {
			lines = append(lines, styleFinal.Render(l))
		}
	}
	if m.partial != "" {
		for _, l := range wrapText(m.partial, wrapWidth) {
			lines = append(lines, stylePartial.Render(l))
		}
	}
	if m.response != "" {
		lines = append(lines, "")
		for _, l := range wrapText(m.response, wrapWidth) {
			lines = append(lines, styleResponse.Render("» "+l))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, styleDim.Render("Say something."))
	}
	return lines
}

func (m tuiModel) analysisLines(wrapWidth int) []string {
	a := m.lastAnalysis
	if a == nil {
		return []string{styleDim.Render("No analyses yet. Press space and talk.")}
	}

	var lines []string
	lines = append(lines, styleDim.Render(fmt.Sprintf("Analysis #%d", m.msgCount)), "")

	phraseLines := wrapText(a.Phrase, wrapWidth)
	for i, l := range phraseLines {
		rendered := stylePhrase.Render(l)
		if i == len(phraseLines)-1 && m.copied {
			rendered += " " + styleCopied.Render("[✓ copied]")
		}
		lines = append(lines, rendered)
	}
	lines = append(lines, "")

	lines = append(lines, styleScore.Render(fmt.Sprintf("score  %s %.1f", scoreBar(a.Score), a.Score)))
	lines = append(lines,
		styleDim.Render(fmt.Sprintf("clarity %.1f  centeredness %.1f  risk %.1f",
			a.Indicators.Clarity, a.Indicators.Centeredness, a.Indicators.Risk)))

	if a.Meta.Transcript != "" {
		lines = append(lines, "")
		for _, l := range wrapText("you said: "+a.Meta.Transcript, wrapWidth) {
			lines = append(lines, styleDim.Render(l))
		}
	}

	lines = append(lines, "")
	if a.ActiveSilence.Enabled && a.ActiveSilence.Phrase != "" {
		lines = append(lines, styleAlt.Render("or say nothing: "+a.ActiveSilence.Phrase))
	} else {
		lines = append(lines, styleDim.Render("active silence: not active"))
	}

	lines = append(lines, "")
	if len(a.Alternatives) > 0 {
		for _, alt := range a.Alternatives {
			for _, l := range wrapText("· "+alt, wrapWidth) {
				lines = append(lines, styleAlt.Render(l))
			}
		}
	} else {
		lines = append(lines, styleDim.Render("alternatives: disabled or unavailable"))
	}
	return lines
}

// scoreBar renders a 0..10 score as a ten-cell bar.
func scoreBar(score float64) string {
	filled := int(score + 0.5)
	if filled < 0 {
		filled = 0
	}
	if filled > 10 {
		filled = 10
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

func (m tuiModel) helpLine() string {
	var parts []string
	if m.live {
		parts = append(parts, styleHelpKey.Render("s")+styleHelp.Render(" suggest"))
	} else {
		parts = append(parts,
			styleHelpKey.Render("space")+styleHelp.Render(" talk"),
			styleHelpKey.Render("c")+styleHelp.Render(" copy"))
	}
	parts = append(parts, styleHelpKey.Render("q")+styleHelp.Render(" quit"))
	return strings.Join(parts, styleHelp.Render("  ·  "))
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
