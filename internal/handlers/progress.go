package handlers

import (
	"encoding/json"
	"log"

	"github.com/gofiber/websocket/v2"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/progress"
)

// ProgressHandler streams job progress events over a WebSocket. The worker
// never blocks on this: events flow through the hub, and a late subscriber is
// replayed the full history first.
type ProgressHandler struct {
	hub *progress.Hub
}

// NewProgressHandler creates a new progress stream handler
func NewProgressHandler(hub *progress.Hub) *ProgressHandler {
	return &ProgressHandler{hub: hub}
}

// Handle serves one subscription for the job id in the route
func (h *ProgressHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	jobID := c.Params("id")
	if jobID == "" {
		return
	}

	history, events, cancel := h.hub.Subscribe(jobID)
	defer cancel()

	for _, ev := range history {
		if err := h.send(c, ev); err != nil {
			return
		}
		if ev.Done {
			return
		}
	}

	for ev := range events {
		if err := h.send(c, ev); err != nil {
			return
		}
		if ev.Done {
			return
		}
	}
}

func (h *ProgressHandler) send(c *websocket.Conn, ev progress.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("Progress stream write failed for job %s: %v", ev.JobID, err)
		return err
	}
	return nil
}
