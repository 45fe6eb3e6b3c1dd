package websocket

import (
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nexbit/dvs/internal/domain"
)

// WsHub fans committed domain events out to connected operator dashboards.
type WsHub struct {
	Clients    map[*websocket.Conn]bool
	Broadcast  chan domain.Event
	Register   chan *WsClient
	Unregister chan *WsClient
	Logger     zerolog.Logger
}

type WsClient struct {
	Conn *websocket.Conn
}

func NewWsHub(logger zerolog.Logger) *WsHub {
	return &WsHub{
		Clients:    make(map[*websocket.Conn]bool),
		Broadcast:  make(chan domain.Event, 100),
		Register:   make(chan *WsClient, 100),
		Unregister: make(chan *WsClient, 100),
		Logger:     logger,
	}
}

func (h *WsHub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.Clients[client.Conn] = true
			h.Logger.Info().
				Int("connection_count", len(h.Clients)).
				Msg("WebSocket client registered")

		case client := <-h.Unregister:
			if _, ok := h.Clients[client.Conn]; ok {
				delete(h.Clients, client.Conn)
				client.Conn.Close()
				h.Logger.Info().
					Int("connection_count", len(h.Clients)).
					Msg("WebSocket client unregistered")
			}

		case event := <-h.Broadcast:
			for conn := range h.Clients {
				if err := conn.WriteJSON(event); err != nil {
					h.Logger.Warn().Err(err).Msg("Failed to write event to WebSocket client")
					delete(h.Clients, conn)
					conn.Close()
				}
			}
		}
	}
}

// Publish implements domain.EventSink. Events are dropped rather than
// blocking the verification loop when the hub buffer is full.
func (h *WsHub) Publish(event domain.Event) {
	select {
	case h.Broadcast <- event:
	default:
		h.Logger.Warn().Str("event_type", event.Type).Msg("Event buffer full, dropping event")
	}
}
