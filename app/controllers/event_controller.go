package controllers

import (
	"net/http"

	"github.com/shashiranjanraj/upbridge/pkg/sse"
	"github.com/shashiranjanraj/upbridge/pkg/ws"
)

// EventController exposes the live event streams.
type EventController struct {
	hub    *ws.Hub
	broker *sse.Broker
}

func NewEventController(hub *ws.Hub, broker *sse.Broker) *EventController {
	return &EventController{hub: hub, broker: broker}
}

// Socket handles GET /api/events by upgrading to a WebSocket.
func (c *EventController) Socket(w http.ResponseWriter, r *http.Request) {
	ws.Upgrade(w, r, c.hub)
}

// Stream handles GET /api/events/stream with Server-Sent Events.
func (c *EventController) Stream(w http.ResponseWriter, r *http.Request) {
	c.broker.ServeHTTP(w, r)
}
