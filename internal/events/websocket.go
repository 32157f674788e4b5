package events

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/transcribe-client/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = pingPeriod + 10*time.Second
)

var upgrader = websocket.Upgrader{
	// The feed is served on localhost for a companion UI.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// subscriber streams bus events to one websocket connection
type subscriber struct {
	conn    *websocket.Conn
	bus     *Bus
	lastSeq int64
	done    chan struct{}
	logger  zerolog.Logger
}

// Handler upgrades the request and streams events newer than ?since=<seq>.
func Handler(bus *Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var since int64
		if raw := r.URL.Query().Get("since"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed < 0 {
				http.Error(w, "invalid since parameter", http.StatusBadRequest)
				return
			}
			since = parsed
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger := observability.WithComponent("events")
			logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()

		sub := &subscriber{
			conn:    conn,
			bus:     bus,
			lastSeq: since,
			done:    make(chan struct{}),
			logger:  observability.WithCorrelationID(observability.WithComponent("events"), ""),
		}

		observability.SubscriberConnected()
		defer observability.SubscriberDisconnected()
		sub.logger.Info().Int64("since", since).Msg("Event subscriber connected")

		go sub.readLoop()
		sub.writeLoop()

		sub.logger.Info().Int64("last_seq", sub.lastSeq).Msg("Event subscriber disconnected")
	}
}

// readLoop discards client messages and detects the close.
func (s *subscriber) readLoop() {
	defer close(s.done)

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

func (s *subscriber) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		// Grab the wake channel before reading so a publish in between is not missed.
		wake := s.bus.Wait()

		for _, event := range s.bus.Since(s.lastSeq) {
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(event); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to write event")
				return
			}
			s.lastSeq = event.Seq
		}

		select {
		case <-s.done:
			return
		case <-wake:
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
