// Package client is a reusable Go client for the parley chat protocol.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	cidpkg "parley/internal/cid"
	"parley/pkg/protocol"
)

// buildDialHeaders constructs the HTTP header map used for websocket.Dial.
// Extracted to allow unit testing of header propagation.
func buildDialHeaders(ctx context.Context, userAgent string) map[string][]string {
	headers := map[string][]string{"User-Agent": {userAgent}}
	cidpkg.AddHeaderFromContext(headers, ctx)
	return headers
}

// EventHandler defines callbacks for handling server frames.
type EventHandler interface {
	OnConnected()
	OnDisconnected()
	OnUserTyping(username string)
	OnUserStopTyping(username string)
	OnChatMessage(frame protocol.Outbound)
	OnServerEvent(frame protocol.Outbound)
}

// DefaultEventHandler provides a basic logging implementation of EventHandler.
type DefaultEventHandler struct{}

func (h *DefaultEventHandler) OnConnected()                  { log.Printf("Connected to server") }
func (h *DefaultEventHandler) OnDisconnected()               { log.Printf("Disconnected from server") }
func (h *DefaultEventHandler) OnUserTyping(username string)  { log.Printf("%s is typing", username) }
func (h *DefaultEventHandler) OnUserStopTyping(name string)  { log.Printf("%s stopped typing", name) }
func (h *DefaultEventHandler) OnChatMessage(f protocol.Outbound) {
	log.Printf("[%s] %s", f.Username, f.Content)
}
func (h *DefaultEventHandler) OnServerEvent(f protocol.Outbound) {
	log.Printf("Event: %s", f.Type)
}

// ChatClient is a websocket client for the chat server.
type ChatClient struct {
	conn         *websocket.Conn
	config       ClientConfig
	connected    bool
	eventHandler EventHandler
}

// NewChatClient creates a client; it does not connect.
func NewChatClient(config ClientConfig) *ChatClient {
	if config.UserAgent == "" {
		config.UserAgent = "parley-client/1.0.0"
	}
	return &ChatClient{
		config:       config,
		eventHandler: &DefaultEventHandler{},
	}
}

// SetEventHandler sets a custom event handler.
func (c *ChatClient) SetEventHandler(handler EventHandler) {
	c.eventHandler = handler
}

// IsConnected returns whether the client is connected.
func (c *ChatClient) IsConnected() bool {
	return c.connected
}

// Connect establishes the websocket connection.
func (c *ChatClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.config.ServerURL, &websocket.DialOptions{
		HTTPHeader: buildDialHeaders(ctx, c.config.UserAgent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.eventHandler.OnConnected()
	return nil
}

// Disconnect closes the websocket connection.
func (c *ChatClient) Disconnect() error {
	if c.conn == nil {
		return nil
	}
	c.connected = false
	err := c.conn.Close(websocket.StatusNormalClosure, "client disconnect")
	c.eventHandler.OnDisconnected()
	return err
}

// Register declares the configured username to the server.
func (c *ChatClient) Register(ctx context.Context) error {
	return c.sendFrame(ctx, map[string]any{
		"type":     protocol.TypeRegisterUser,
		"username": c.config.Username,
	})
}

// Typing signals that the user started typing.
func (c *ChatClient) Typing(ctx context.Context) error {
	return c.sendFrame(ctx, map[string]any{"type": protocol.TypeTyping})
}

// StopTyping signals that the user stopped typing.
func (c *ChatClient) StopTyping(ctx context.Context) error {
	return c.sendFrame(ctx, map[string]any{"type": protocol.TypeStopTyping})
}

// SendText sends an inline text message.
func (c *ChatClient) SendText(ctx context.Context, text string) error {
	return c.sendFrame(ctx, map[string]any{
		"type": protocol.TypeChatMessage,
		"text": text,
	})
}

// SendImage sends a message referencing a previously uploaded image.
func (c *ChatClient) SendImage(ctx context.Context, filePath string) error {
	return c.sendFrame(ctx, map[string]any{
		"type":     protocol.TypeImageMessage,
		"filePath": filePath,
	})
}

// SendAudio sends a message referencing a previously uploaded audio clip.
func (c *ChatClient) SendAudio(ctx context.Context, filePath string) error {
	return c.sendFrame(ctx, map[string]any{
		"type":     protocol.TypeAudioMessage,
		"filePath": filePath,
	})
}

// Listen reads server frames until the context is cancelled or the
// connection drops, dispatching each to the event handler. Blocking.
func (c *ChatClient) Listen(ctx context.Context) error {
	for {
		msgType, data, err := c.conn.Read(ctx)
		if err != nil {
			c.connected = false
			return fmt.Errorf("read error: %w", err)
		}
		if msgType != websocket.MessageText {
			continue
		}

		var frame protocol.Outbound
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("Failed to unmarshal server frame: %v", err)
			continue
		}
		c.handleServerFrame(frame)
	}
}

func (c *ChatClient) handleServerFrame(frame protocol.Outbound) {
	switch frame.Type {
	case protocol.TypeUserTyping:
		c.eventHandler.OnUserTyping(frame.Username)
	case protocol.TypeUserStopTyping:
		c.eventHandler.OnUserStopTyping(frame.Username)
	case protocol.TypeNewChatMessage:
		c.eventHandler.OnChatMessage(frame)
	default:
		c.eventHandler.OnServerEvent(frame)
	}
}

func (c *ChatClient) sendFrame(ctx context.Context, frame map[string]any) error {
	if !c.connected {
		return fmt.Errorf("client not connected")
	}
	return wsjson.Write(ctx, c.conn, frame)
}
