// Package protocol defines the JSON wire envelope exchanged over the chat
// websocket and the codec between frames and typed events. Frames are flat:
// a "type" discriminator plus the payload fields at the top level, so a
// client can branch purely on the discriminator.
package protocol

import (
	"encoding/json"
	"time"
)

// Inbound frame discriminators.
const (
	TypeRegisterUser = "registerUser"
	TypeTyping       = "typing"
	TypeStopTyping   = "stopTyping"
	TypeChatMessage  = "chatMessage"
	TypeImageMessage = "imageMessage"
	TypeAudioMessage = "audioMessage"
)

// Outbound frame discriminators.
const (
	TypeUserTyping     = "userTyping"
	TypeUserStopTyping = "userStopTyping"
	TypeNewChatMessage = "newChatMessage"
)

// Message kinds carried in the messageType field of newChatMessage frames.
const (
	KindText  = "text"
	KindImage = "image"
	KindAudio = "audio"
)

// Event is a decoded inbound frame: one of RegisterIdentity, TypingStart,
// TypingStop, ChatMessage or Unknown.
type Event interface {
	event()
}

// RegisterIdentity binds a display name to the issuing connection.
type RegisterIdentity struct {
	Name string
}

// TypingStart signals the sender began typing.
type TypingStart struct{}

// TypingStop signals the sender stopped typing.
type TypingStop struct{}

// ChatMessage carries inline text (KindText) or an opaque upload reference
// path (KindImage, KindAudio).
type ChatMessage struct {
	Kind    string
	Content string
}

// Unknown stands in for anything unparseable: malformed JSON, an
// unrecognized discriminator, or a frame missing its required payload field.
// The dispatcher discards it; it never closes the connection.
type Unknown struct{}

func (RegisterIdentity) event() {}
func (TypingStart) event()      {}
func (TypingStop) event()       {}
func (ChatMessage) event()      {}
func (Unknown) event()          {}

type inboundFrame struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Text     string `json:"text"`
	FilePath string `json:"filePath"`
}

// Decode parses an inbound frame into a typed event. It never fails: bad
// input decodes to Unknown.
func Decode(data []byte) Event {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return Unknown{}
	}
	switch f.Type {
	case TypeRegisterUser:
		if f.Username == "" {
			return Unknown{}
		}
		return RegisterIdentity{Name: f.Username}
	case TypeTyping:
		return TypingStart{}
	case TypeStopTyping:
		return TypingStop{}
	case TypeChatMessage:
		if f.Text == "" {
			return Unknown{}
		}
		return ChatMessage{Kind: KindText, Content: f.Text}
	case TypeImageMessage:
		if f.FilePath == "" {
			return Unknown{}
		}
		return ChatMessage{Kind: KindImage, Content: f.FilePath}
	case TypeAudioMessage:
		if f.FilePath == "" {
			return Unknown{}
		}
		return ChatMessage{Kind: KindAudio, Content: f.FilePath}
	}
	return Unknown{}
}

// Outbound is the flat tagged frame sent to clients.
type Outbound struct {
	Type        string    `json:"type"`
	Username    string    `json:"username"`
	ID          string    `json:"id,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitzero"`
	MessageType string    `json:"messageType,omitempty"`
	Content     string    `json:"content,omitempty"`
}

// Encode serializes an outbound frame once; broadcast reuses the bytes for
// every recipient.
func Encode(o Outbound) ([]byte, error) {
	return json.Marshal(o)
}

// UserTyping builds a userTyping frame.
func UserTyping(username string) Outbound {
	return Outbound{Type: TypeUserTyping, Username: username}
}

// UserStopTyping builds a userStopTyping frame.
func UserStopTyping(username string) Outbound {
	return Outbound{Type: TypeUserStopTyping, Username: username}
}

// NewChatMessage builds a newChatMessage frame.
func NewChatMessage(id, username, messageType, content string, at time.Time) Outbound {
	return Outbound{
		Type:        TypeNewChatMessage,
		Username:    username,
		ID:          id,
		Timestamp:   at,
		MessageType: messageType,
		Content:     content,
	}
}
