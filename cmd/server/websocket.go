package main

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"

	"parley/internal/state"
	"parley/internal/types"
	"parley/pkg/protocol"
)

// handleWebSocket upgrades the request and runs the connection's read loop
// until the peer goes away. Registration with the registry happens before
// the first read, so a freshly-accepted connection already receives
// broadcasts.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	client := &types.Client{
		ID:   ksuid.New().String(),
		Conn: conn,
		Send: make(chan []byte, s.cfg.SendBufferSize),
	}
	s.stateManager.AddClient(client)
	s.log.Info("client connected", "client", client.ID)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go s.writePump(ctx, client)

	sess := &session{server: s, client: client}
	defer sess.teardown()
	sess.readLoop(ctx)
}

// writePump drains the client's Send queue onto the wire. A write failure
// ends the pump; the read loop notices the dead transport on its own and
// runs teardown.
func (s *Server) writePump(ctx context.Context, client *types.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-client.Send:
			if err := client.Conn.Write(ctx, websocket.MessageText, frame); err != nil {
				s.log.Warn("websocket write failed", "client", client.ID, "err", err)
				return
			}
		}
	}
}

// session dispatches one connection's inbound frames, in arrival order.
type session struct {
	server *Server
	client *types.Client
}

func (sess *session) readLoop(ctx context.Context) {
	for {
		typ, data, err := sess.client.Conn.Read(ctx)
		if err != nil {
			sess.server.log.Debug("websocket read ended", "client", sess.client.ID, "err", err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		sess.dispatch(protocol.Decode(data))
	}
}

func (sess *session) dispatch(ev protocol.Event) {
	s := sess.server
	switch e := ev.(type) {
	case protocol.RegisterIdentity:
		if err := s.stateManager.BindIdentity(sess.client.ID, e.Name); err != nil {
			s.log.Warn("identity bind failed", "client", sess.client.ID, "err", err)
		}
	case protocol.TypingStart:
		s.stateManager.Enqueue(&state.Broadcast{
			Event:     protocol.UserTyping(sess.identity()),
			ExcludeID: sess.client.ID,
		})
	case protocol.TypingStop:
		s.stateManager.Enqueue(&state.Broadcast{
			Event:     protocol.UserStopTyping(sess.identity()),
			ExcludeID: sess.client.ID,
		})
	case protocol.ChatMessage:
		sess.handleChat(e)
	case protocol.Unknown:
		// silently discarded; the connection stays open
	}
}

func (sess *session) identity() string {
	if name, ok := sess.server.stateManager.Identity(sess.client.ID); ok {
		return name
	}
	return types.AnonymousName
}

// handleChat persists and then broadcasts. A durable-append failure is
// reported and the broadcast happens anyway; the message lives in the
// in-memory history either way. Chat messages go to every connection,
// including the sender, whose UI relies on the round-trip.
func (sess *session) handleChat(e protocol.ChatMessage) {
	s := sess.server
	msg := types.Message{
		ID:        uuid.New().String(),
		Author:    sess.identity(),
		Kind:      types.MessageKind(e.Kind),
		Content:   e.Content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Append(&msg); err != nil {
		s.log.Error("message persistence failed", "id", msg.ID, "err", err)
	}
	s.stateManager.Enqueue(&state.Broadcast{
		Event: protocol.NewChatMessage(msg.ID, msg.Author, string(msg.Kind), msg.Content, msg.CreatedAt),
	})
}

// teardown runs once per connection, on remote close, transport error or
// liveness eviction. Removing the registry entry first makes the presence
// broadcast exactly-once even when eviction and a remote close race.
func (sess *session) teardown() {
	s := sess.server
	removed, ok := s.stateManager.RemoveClient(sess.client.ID)
	if !ok {
		return
	}
	if removed.Identity != "" {
		s.stateManager.Enqueue(&state.Broadcast{
			Event: protocol.UserStopTyping(removed.Identity),
		})
	}
	s.log.Info("client disconnected", "client", sess.client.ID)
}
