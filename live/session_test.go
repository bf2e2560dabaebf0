package live

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"mirror/encoder"
)

type wsMessage struct {
	typ  websocket.MessageType
	data []byte
}

// testServer accepts one duplex connection and exposes both directions as
// channels the test can drive.
type testServer struct {
	*httptest.Server
	conns chan *websocket.Conn
	recv  chan wsMessage
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		conns: make(chan *websocket.Conn, 1),
		recv:  make(chan wsMessage, 64),
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		ts.conns <- conn
		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			ts.recv <- wsMessage{typ: typ, data: data}
		}
	}))
	t.Cleanup(ts.Server.Close)
	return ts
}

func (ts *testServer) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ts.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func (ts *testServer) next(t *testing.T) wsMessage {
	t.Helper()
	select {
	case m := <-ts.recv:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message from client")
		return wsMessage{}
	}
}

func (ts *testServer) sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (ts *testServer) sendBinary(t *testing.T, conn *websocket.Conn, data []byte) {
	t.Helper()
	if err := conn.Write(context.Background(), websocket.MessageBinary, data); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func dialTest(t *testing.T, ts *testServer, mode string, chunks chan []int16) (*Session, *FakePlayer) {
	t.Helper()
	player := NewFakePlayer()
	s, err := Dial(context.Background(), ts.URL, mode, chunks, player)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, player
}

// waitUpdate scans the update stream until an update of the wanted kind
// arrives.
func waitUpdate(t *testing.T, s *Session, kind UpdateKind) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-s.Updates():
			if !ok {
				t.Fatalf("updates closed while waiting for kind %d", kind)
			}
			if u.Kind == kind {
				return u
			}
		case <-deadline:
			t.Fatalf("no update of kind %d", kind)
		}
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestDialSendsSetModeFirst(t *testing.T) {
	ts := newTestServer(t)
	s, _ := dialTest(t, ts, "colloquio", make(chan []int16))
	ts.conn(t)

	m := ts.next(t)
	if m.typ != websocket.MessageText {
		t.Fatalf("first message type = %v, want text", m.typ)
	}
	var ctrl struct {
		Type string `json:"type"`
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(m.data, &ctrl); err != nil {
		t.Fatal(err)
	}
	if ctrl.Type != "set_mode" || ctrl.Mode != "colloquio" {
		t.Errorf("control = %+v", ctrl)
	}

	// Mode stays empty until the server acknowledges it.
	if got := s.Mode(); got != "" {
		t.Errorf("Mode before ack = %q, want empty", got)
	}
}

func TestModeSetAcknowledgement(t *testing.T) {
	ts := newTestServer(t)
	s, _ := dialTest(t, ts, "colloquio", make(chan []int16))
	conn := ts.conn(t)
	ts.next(t) // set_mode

	ts.sendJSON(t, conn, map[string]string{"type": "mode_set", "mode": "colloquio"})
	u := waitUpdate(t, s, KindMode)
	if u.Text != "colloquio" {
		t.Errorf("mode update = %q", u.Text)
	}
	if got := s.Mode(); got != "colloquio" {
		t.Errorf("Mode = %q", got)
	}
}

func TestChunksForwardedInOrder(t *testing.T) {
	ts := newTestServer(t)
	chunks := make(chan []int16, 4)
	dialTest(t, ts, "m", chunks)
	ts.conn(t)
	ts.next(t) // set_mode

	chunks <- []int16{1, 2}
	chunks <- []int16{3}
	chunks <- []int16{4, 5, 6}

	want := [][]int16{{1, 2}, {3}, {4, 5, 6}}
	for _, wantChunk := range want {
		m := ts.next(t)
		if m.typ != websocket.MessageBinary {
			t.Fatalf("type = %v, want binary", m.typ)
		}
		if len(m.data) != len(wantChunk)*2 {
			t.Fatalf("len = %d, want %d", len(m.data), len(wantChunk)*2)
		}
		for i, s := range wantChunk {
			if got := int16(binary.LittleEndian.Uint16(m.data[i*2:])); got != s {
				t.Errorf("sample %d = %d, want %d", i, got, s)
			}
		}
	}
}

func TestTranscriptUpdates(t *testing.T) {
	ts := newTestServer(t)
	s, _ := dialTest(t, ts, "m", make(chan []int16))
	conn := ts.conn(t)
	ts.next(t)

	ts.sendJSON(t, conn, map[string]string{"type": "partial", "text": "ciao"})
	waitUpdate(t, s, KindPartial)
	ts.sendJSON(t, conn, map[string]string{"type": "final", "text": "ciao mondo"})
	waitUpdate(t, s, KindFinal)

	partial, final := s.Transcript()
	if partial != "ciao" {
		t.Errorf("partial = %q", partial)
	}
	if final != "ciao mondo" {
		t.Errorf("final = %q", final)
	}
}

func TestAudioSegmentStartsPlayback(t *testing.T) {
	ts := newTestServer(t)
	s, player := dialTest(t, ts, "m", make(chan []int16))
	conn := ts.conn(t)
	ts.next(t)

	ts.sendJSON(t, conn, map[string]string{"type": "response", "text": "Capisco."})
	waitUpdate(t, s, KindResponse)

	ts.sendBinary(t, conn, encoder.EncodeWAV([]int16{1, 2, 3, 4}, 16000))
	eventually(t, func() bool { return len(player.Started()) == 1 }, "playback not started")

	pb := player.Started()[0]
	if pb.SampleRate != 16000 || len(pb.Samples) != 4 {
		t.Errorf("playback rate=%d len=%d", pb.SampleRate, len(pb.Samples))
	}

	// Natural completion clears the handle and returns to listening.
	pb.Finish()
	u := waitUpdate(t, s, KindStatus)
	for u.Text != StatusListening {
		u = waitUpdate(t, s, KindStatus)
	}
}

func TestBargeInStopsPlayback(t *testing.T) {
	ts := newTestServer(t)
	s, player := dialTest(t, ts, "m", make(chan []int16))
	conn := ts.conn(t)
	ts.next(t)

	ts.sendBinary(t, conn, encoder.EncodeWAV([]int16{1, 2, 3, 4}, 16000))
	eventually(t, func() bool { return player.ActiveCount() == 1 }, "playback not started")

	ts.sendJSON(t, conn, map[string]string{"type": "partial", "text": "sto parlando"})
	waitUpdate(t, s, KindPartial)

	// The partial is processed only after playback teardown.
	if got := player.ActiveCount(); got != 0 {
		t.Errorf("active after barge-in = %d, want 0", got)
	}
	if !player.Started()[0].Stopped() {
		t.Error("playback should have been force-stopped")
	}
}

func TestEmptyPartialDoesNotBargeIn(t *testing.T) {
	ts := newTestServer(t)
	s, player := dialTest(t, ts, "m", make(chan []int16))
	conn := ts.conn(t)
	ts.next(t)

	ts.sendBinary(t, conn, encoder.EncodeWAV([]int16{1, 2}, 16000))
	eventually(t, func() bool { return player.ActiveCount() == 1 }, "playback not started")

	ts.sendJSON(t, conn, map[string]string{"type": "partial", "text": ""})
	waitUpdate(t, s, KindPartial)

	if got := player.ActiveCount(); got != 1 {
		t.Errorf("active = %d, want 1", got)
	}
}

func TestAtMostOnePlayback(t *testing.T) {
	ts := newTestServer(t)
	_, player := dialTest(t, ts, "m", make(chan []int16))
	conn := ts.conn(t)
	ts.next(t)

	for range 3 {
		ts.sendBinary(t, conn, encoder.EncodeWAV([]int16{1, 2, 3}, 16000))
	}
	eventually(t, func() bool { return len(player.Started()) == 3 }, "segments not all played")

	if got := player.ActiveCount(); got != 1 {
		t.Errorf("active = %d, want 1", got)
	}
	started := player.Started()
	if !started[0].Stopped() || !started[1].Stopped() {
		t.Error("superseded playbacks must be stopped")
	}
	if started[2].Ended() {
		t.Error("latest playback must still be running")
	}
}

func TestMalformedAudioSkipped(t *testing.T) {
	ts := newTestServer(t)
	s, player := dialTest(t, ts, "m", make(chan []int16))
	conn := ts.conn(t)
	ts.next(t)

	ts.sendBinary(t, conn, []byte("definitely not a wav"))
	// Dispatcher must keep going: a later event still arrives.
	ts.sendJSON(t, conn, map[string]string{"type": "final", "text": "dopo"})
	waitUpdate(t, s, KindFinal)

	if got := len(player.Started()); got != 0 {
		t.Errorf("started = %d, want 0", got)
	}
}

func TestServerErrorKeepsConnectionOpen(t *testing.T) {
	ts := newTestServer(t)
	s, _ := dialTest(t, ts, "m", make(chan []int16))
	conn := ts.conn(t)
	ts.next(t)

	ts.sendJSON(t, conn, map[string]string{"type": "error", "message": "ASR not available"})
	u := waitUpdate(t, s, KindError)
	if u.Text != "ASR not available" {
		t.Errorf("error text = %q", u.Text)
	}

	// Still dispatching afterwards.
	ts.sendJSON(t, conn, map[string]string{"type": "final", "text": "ancora"})
	waitUpdate(t, s, KindFinal)
}

func TestPushToTalk(t *testing.T) {
	ts := newTestServer(t)
	s, _ := dialTest(t, ts, "m", make(chan []int16))
	ts.conn(t)
	ts.next(t) // set_mode

	if err := s.PushToTalk(); err != nil {
		t.Fatalf("PushToTalk: %v", err)
	}

	m := ts.next(t)
	var ctrl struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(m.data, &ctrl); err != nil {
		t.Fatal(err)
	}
	if ctrl.Type != "ptt" {
		t.Errorf("control type = %q", ctrl.Type)
	}

	u := waitUpdate(t, s, KindStatus)
	if u.Text != StatusSuggesting {
		t.Errorf("status = %q, want %q", u.Text, StatusSuggesting)
	}
}

func TestCloseLeavesPlaybackRunning(t *testing.T) {
	ts := newTestServer(t)
	s, player := dialTest(t, ts, "m", make(chan []int16))
	conn := ts.conn(t)
	ts.next(t)

	ts.sendBinary(t, conn, encoder.EncodeWAV([]int16{1, 2, 3}, 16000))
	eventually(t, func() bool { return player.ActiveCount() == 1 }, "playback not started")

	if err := s.Close(); err != nil {
		t.Logf("close: %v", err)
	}

	if player.Started()[0].Stopped() {
		t.Error("closing the session must not cut off in-flight audio")
	}
}

func TestRemoteCloseSurfacesDisconnected(t *testing.T) {
	ts := newTestServer(t)
	s, _ := dialTest(t, ts, "m", make(chan []int16))
	conn := ts.conn(t)
	ts.next(t)

	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.After(2 * time.Second)
	sawDisconnected := false
	for !sawDisconnected {
		select {
		case u, ok := <-s.Updates():
			if !ok {
				t.Fatal("updates closed before disconnected status")
			}
			if u.Kind == KindStatus && u.Text == StatusDisconnected {
				sawDisconnected = true
			}
		case <-deadline:
			t.Fatal("no disconnected status")
		}
	}
}

func TestToWebSocketURL(t *testing.T) {
	for _, tt := range []struct{ in, want string }{
		{"http://localhost:8000", "ws://localhost:8000"},
		{"https://coach.example/", "wss://coach.example"},
		{"ws://direct:1234", "ws://direct:1234"},
	} {
		if got := toWebSocketURL(tt.in); got != tt.want {
			t.Errorf("toWebSocketURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
