package main

import (
	"parley/internal/types"
	"parley/pkg/protocol"
)

// broadcastLoop is the single fan-out pump. Each queued event is encoded
// once and the bytes reused for every recipient. Delivery is best-effort: a
// recipient whose buffer is full is logged and counted, never retried, and
// never aborts the rest of the fan-out.
func (s *Server) broadcastLoop() {
	for b := range s.stateManager.Events() {
		frame, err := protocol.Encode(b.Event)
		if err != nil {
			s.log.Error("encode outbound event", "type", b.Event.Type, "err", err)
			continue
		}

		s.stateManager.ForEach(b.ExcludeID, func(cl *types.Client) {
			select {
			case cl.Send <- frame:
			default:
				s.stateManager.CountDeliveryDrop()
				s.log.Warn("send buffer full, dropping frame",
					"client", cl.ID, "type", b.Event.Type)
			}
		})
	}
}
