// Package live owns the duplex coaching session: captured PCM streams out
// over a WebSocket while tagged transcript/response events and assistant
// audio stream back in. A single dispatcher goroutine processes inbound
// frames in arrival order, which is what makes the barge-in rule airtight:
// a non-empty partial always stops playback before any later audio frame is
// even looked at.
package live

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"mirror/encoder"
	"mirror/log"
)

const (
	audioPath = "/ws/audio"

	// Assistant audio segments are whole WAV files; the library default
	// read limit of 32 KiB is far too small for them.
	maxInboundFrame = 8 << 20
)

// Stats counts one session's traffic, reported on Close.
type Stats struct {
	ConnectDur time.Duration
	SentChunks int
	SentBytes  uint64
	RecvEvents int
	RecvAudio  int
	BargeIns   int
}

// Session is one duplex connection. Construct with Dial, one per
// connection; the operating mode is fixed at dial time and confirmed by the
// server's mode_set acknowledgement.
type Session struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	player Player
	chunks <-chan []int16
	mode   string

	updates   chan Update
	startedAt time.Time

	mu         sync.Mutex
	active     Playback
	serverMode string
	partial    string
	final      string
	closing    bool
	stats      Stats

	sendDone chan struct{}
	recvDone chan struct{}
}

// Dial opens the duplex transport against serverURL, binds it to mode with
// a set_mode control frame, and starts the outbound sender and inbound
// dispatcher. chunks is the live PCM feed; closing it stops the sender
// without closing the connection.
func Dial(ctx context.Context, serverURL, mode string, chunks <-chan []int16, player Player) (*Session, error) {
	wsURL := toWebSocketURL(serverURL) + audioPath

	connectStart := time.Now()
	sessCtx, cancel := context.WithCancel(ctx)
	conn, _, err := websocket.Dial(sessCtx, wsURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	conn.SetReadLimit(maxInboundFrame)

	s := &Session{
		conn:      conn,
		ctx:       sessCtx,
		cancel:    cancel,
		player:    player,
		chunks:    chunks,
		mode:      mode,
		updates:   make(chan Update, 32),
		startedAt: time.Now(),
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
	}
	s.stats.ConnectDur = time.Since(connectStart)

	if err := s.writeControl(controlMessage{Type: "set_mode", Mode: mode}); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, fmt.Errorf("set_mode: %w", err)
	}

	go s.runSender()
	go s.runDispatcher()
	return s, nil
}

// Updates delivers UI events. Closed when the connection is gone.
func (s *Session) Updates() <-chan Update { return s.updates }

// Mode returns the server-acknowledged mode, empty until mode_set arrives.
func (s *Session) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverMode
}

// Transcript returns the current partial and final text.
func (s *Session) Transcript() (partial, final string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partial, s.final
}

// PushToTalk asks the server for a spoken suggestion. No-op once the
// connection is closing.
func (s *Session) PushToTalk() error {
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		return nil
	}
	if err := s.writeControl(controlMessage{Type: "ptt"}); err != nil {
		return fmt.Errorf("ptt: %w", err)
	}
	s.emit(Update{Kind: KindStatus, Text: StatusSuggesting})
	return nil
}

// Close tears the connection down. Any playback still running is left to
// finish on its own; closing the channel does not cut off in-flight audio.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	err := s.conn.Close(websocket.StatusNormalClosure, "")
	select {
	case <-s.recvDone:
	case <-time.After(2 * time.Second):
		log.Warn("live dispatcher drain timeout")
	}
	s.cancel()

	s.mu.Lock()
	stats := s.stats
	s.mu.Unlock()

	log.LiveSession(log.LiveMetrics{
		ConnectMs:  float64(stats.ConnectDur.Milliseconds()),
		TotalMs:    float64(time.Since(s.startedAt).Milliseconds()),
		SentChunks: stats.SentChunks,
		SentKB:     float64(stats.SentBytes) / 1024,
		RecvEvents: stats.RecvEvents,
		RecvAudio:  stats.RecvAudio,
		BargeIns:   stats.BargeIns,
	}, s.mode)
	return err
}

func (s *Session) writeControl(msg controlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// runSender forwards each PCM chunk as one binary frame, in production
// order, uncoalesced.
func (s *Session) runSender() {
	defer close(s.sendDone)
	for chunk := range s.chunks {
		buf := make([]byte, len(chunk)*2)
		for i, sample := range chunk {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
		}
		if err := s.conn.Write(s.ctx, websocket.MessageBinary, buf); err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if !closing {
				log.Warnf("live send: %v", err)
			}
			return
		}
		s.mu.Lock()
		s.stats.SentChunks++
		s.stats.SentBytes += uint64(len(buf))
		s.mu.Unlock()
	}
}

// runDispatcher is the single consumer of inbound frames. Everything that
// touches transcript state or the active playback happens here, in arrival
// order.
func (s *Session) runDispatcher() {
	defer close(s.recvDone)
	defer close(s.updates)
	defer s.emit(Update{Kind: KindStatus, Text: StatusDisconnected})

	for {
		typ, data, err := s.conn.Read(s.ctx)
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if !closing {
				log.Warnf("live recv: %v", err)
			}
			return
		}

		switch typ {
		case websocket.MessageText:
			s.handleEvent(data)
		case websocket.MessageBinary:
			s.handleAudio(data)
		}
	}
}

func (s *Session) handleEvent(data []byte) {
	ev, err := parseServerEvent(data)
	if err != nil {
		log.Warnf("live event parse: %v", err)
		return
	}

	s.mu.Lock()
	s.stats.RecvEvents++
	s.mu.Unlock()

	switch ev.Type {
	case "partial":
		// The user speaking again preempts whatever the assistant was
		// saying, before the new text is shown.
		if strings.TrimSpace(ev.Text) != "" {
			s.stopActive(true)
		}
		s.mu.Lock()
		s.partial = ev.Text
		s.mu.Unlock()
		s.emit(Update{Kind: KindPartial, Text: ev.Text})

	case "final":
		s.mu.Lock()
		s.final = ev.Text
		s.mu.Unlock()
		s.emit(Update{Kind: KindFinal, Text: ev.Text})

	case "response":
		s.emit(Update{Kind: KindStatus, Text: StatusSpeaking})
		s.emit(Update{Kind: KindResponse, Text: ev.Text})

	case "mode_set":
		s.mu.Lock()
		s.serverMode = ev.Mode
		s.mu.Unlock()
		s.emit(Update{Kind: KindMode, Text: ev.Mode})

	case "error":
		s.emit(Update{Kind: KindError, Text: ev.Message})

	default:
		log.Warnf("live event: unknown type %q", ev.Type)
	}
}

func (s *Session) handleAudio(data []byte) {
	s.mu.Lock()
	s.stats.RecvAudio++
	s.mu.Unlock()

	samples, rate, err := encoder.DecodeWAV(data)
	if err != nil {
		log.Warnf("live audio decode: %v", err)
		return
	}

	// A new segment always supersedes the previous one, with or without a
	// barge-in partial in between.
	s.stopActive(false)

	pb, err := s.player.Play(samples, rate)
	if err != nil {
		log.Warnf("live playback: %v", err)
		return
	}

	s.mu.Lock()
	s.active = pb
	s.mu.Unlock()

	go func() {
		<-pb.Done()
		s.mu.Lock()
		wasActive := s.active == pb
		if wasActive {
			s.active = nil
		}
		s.mu.Unlock()
		if wasActive {
			s.emit(Update{Kind: KindStatus, Text: StatusListening})
		}
	}()
}

func (s *Session) stopActive(bargeIn bool) {
	s.mu.Lock()
	pb := s.active
	s.active = nil
	if pb != nil && bargeIn {
		s.stats.BargeIns++
	}
	s.mu.Unlock()
	if pb != nil {
		pb.Stop()
	}
}

// emit forwards a UI update without ever blocking the dispatcher.
func (s *Session) emit(u Update) {
	select {
	case s.updates <- u:
	default:
	}
}

func toWebSocketURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimRight(strings.TrimPrefix(serverURL, "https://"), "/")
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimRight(strings.TrimPrefix(serverURL, "http://"), "/")
	default:
		return strings.TrimRight(serverURL, "/")
	}
}
