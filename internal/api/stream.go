package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/parklink-project/parklink/internal/events"
)

const (
	streamBuffer     = 64
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// streamMessage is the JSON frame sent to WebSocket subscribers.
type streamMessage struct {
	Type    events.EventType `json:"type"`
	Time    time.Time        `json:"time"`
	Payload interface{}      `json:"payload"`
}

// eventStream forwards session events to WebSocket clients. Each connection
// gets its own bus subscription and a bounded queue; a client that falls
// behind loses events rather than stalling the publisher.
type eventStream struct {
	bus      *events.EventBus
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[string]*websocket.Conn
	closed bool
}

func newEventStream(bus *events.EventBus) *eventStream {
	return &eventStream{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origins are already restricted by the CORS middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*websocket.Conn),
	}
}

func (es *eventStream) handle(c *gin.Context) {
	conn, err := es.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	name := "ws." + uuid.NewString()
	if !es.track(name, conn) {
		conn.Close()
		return
	}

	queue := make(chan streamMessage, streamBuffer)
	es.bus.SubscribeMany(events.SessionEvents, name, func(ctx context.Context, e events.Event) error {
		select {
		case queue <- streamMessage{Type: e.Type, Time: time.Now(), Payload: e.Payload}:
		default:
			log.Debug().Str("subscriber", name).Str("event", string(e.Type)).Msg("websocket queue full, dropping event")
		}
		return nil
	})

	log.Info().Str("subscriber", name).Str("client_ip", c.ClientIP()).Msg("websocket subscriber connected")

	done := make(chan struct{})
	go es.readPump(conn, done)
	es.writePump(conn, queue, done)

	for _, et := range events.SessionEvents {
		es.bus.Unsubscribe(et, name)
	}
	es.untrack(name)
	conn.Close()
	log.Info().Str("subscriber", name).Msg("websocket subscriber disconnected")
}

// readPump discards client messages and closes done when the peer goes away.
func (es *eventStream) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (es *eventStream) writePump(conn *websocket.Conn, queue <-chan streamMessage, done <-chan struct{}) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg := <-queue:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func (es *eventStream) track(name string, conn *websocket.Conn) bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.closed {
		return false
	}
	es.conns[name] = conn
	return true
}

func (es *eventStream) untrack(name string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	delete(es.conns, name)
}

// close drops every subscriber.
func (es *eventStream) close() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.closed = true
	for _, conn := range es.conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}
