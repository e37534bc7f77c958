package types

import (
	"time"

	"github.com/coder/websocket"
)

// MessageKind classifies the content of a stored chat message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindAudio MessageKind = "audio"
)

// AnonymousName is the author recorded for events from connections that never
// registered an identity. One policy for every event kind: typing indicators
// and chat messages both fall back to it.
const AnonymousName = "Anonymous"

// Message is a durably stored chat event. Content holds inline text for
// KindText and an opaque upload reference path for KindImage/KindAudio.
type Message struct {
	ID        string      `json:"id"`
	Author    string      `json:"author"`
	Kind      MessageKind `json:"kind"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// Client is one live websocket session. Identity and Alive are owned by the
// registry and must only be touched while holding its lock; Send is a
// buffered outbound frame queue drained by the connection's write pump.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	Identity string
	Alive    bool
}

// ServerStats is the operational snapshot served by /api/stats.
type ServerStats struct {
	ConnectedClients  int   `json:"connected_clients"`
	BoundIdentities   int   `json:"bound_identities"`
	CachedMessages    int   `json:"cached_messages"`
	DurableLag        int64 `json:"durable_lag"`
	DroppedEvents     int64 `json:"dropped_events"`
	DroppedDeliveries int64 `json:"dropped_deliveries"`
}
