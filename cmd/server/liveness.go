package main

import (
	"context"
	"time"

	"github.com/coder/websocket"

	"parley/internal/types"
)

// livenessLoop reclaims connections whose peer vanished without a clean
// close. Each cycle: evict everything still unconfirmed from the previous
// cycle, then challenge every survivor with a ping. A pong flips the client
// back to confirmed before the next cycle boundary.
func (s *Server) livenessLoop() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.sweep()
	}
}

func (s *Server) sweep() {
	for _, cl := range s.stateManager.Unconfirmed() {
		s.log.Info("evicting unresponsive client", "client", cl.ID)
		// closing unblocks the connection's read loop, which runs the
		// normal teardown path (registry removal, presence broadcast)
		_ = cl.Conn.Close(websocket.StatusPolicyViolation, "liveness probe timed out")
	}

	for _, cl := range s.stateManager.MarkAllUnconfirmed() {
		go s.probe(cl)
	}
}

func (s *Server) probe(cl *types.Client) {
	// the pong must land before the next cycle boundary to count
	ctx, cancel := context.WithTimeout(context.Background(), PingInterval)
	defer cancel()

	if err := cl.Conn.Ping(ctx); err != nil {
		s.log.Debug("liveness probe failed", "client", cl.ID, "err", err)
		return
	}
	s.stateManager.Confirm(cl.ID)
}
