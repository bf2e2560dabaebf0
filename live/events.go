package live

import "encoding/json"

// Statuses surfaced to the UI over the session's update channel.
const (
	StatusListening    = "listening"
	StatusSpeaking     = "speaking"
	StatusSuggesting   = "suggesting"
	StatusDisconnected = "disconnected"
)

type UpdateKind int

const (
	KindStatus UpdateKind = iota
	KindPartial
	KindFinal
	KindResponse
	KindMode
	KindError
)

// Update is one UI-facing event from the session dispatcher.
type Update struct {
	Kind UpdateKind
	Text string
}

// controlMessage is an outbound JSON control frame.
type controlMessage struct {
	Type string `json:"type"`
	Mode string `json:"mode,omitempty"`
}

// serverEvent is an inbound JSON frame; binary frames carry audio instead.
type serverEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Mode    string `json:"mode"`
	Message string `json:"message"`
}

func parseServerEvent(data []byte) (serverEvent, error) {
	var ev serverEvent
	err := json.Unmarshal(data, &ev)
	return ev, err
}
