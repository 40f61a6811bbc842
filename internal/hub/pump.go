package hub

import (
	"time"

	"github.com/VishalGohania/excelidraw/internal/config"
	"github.com/gorilla/websocket"
)

// WritePump is the only writer on ws. It drains c's queue and pings on
// cfg.PingInterval. When the queue closes it sends a normal close frame and
// closes the socket, which ends the reader as well.
func WritePump(ws *websocket.Conn, c *Connection, cfg config.SocketConfig) error {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// PrepareReader applies the read limit and the pong-driven read deadline.
func PrepareReader(ws *websocket.Conn, cfg config.SocketConfig) {
	ws.SetReadLimit(cfg.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})
}
