package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"memoserv/internal/dispatch"
	"memoserv/internal/protocol"
	"memoserv/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from arbitrary origins in dev setups.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Bridge exposes the wire protocol over WebSocket so browser clients can
// speak it: each text message is exactly one request, each reply one
// response. WS message framing gives the same one-request-per-read
// guarantee the TCP transport relies on.
type Bridge struct {
	dispatcher *dispatch.Dispatcher
}

func NewBridge(d *dispatch.Dispatcher) *Bridge {
	return &Bridge{dispatcher: d}
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}
	defer conn.Close()
	logger.Sugar.Infof("ws client connected: %s", conn.RemoteAddr())

	for {
		msgType, rawMessage, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Sugar.Warnf("ws read: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		raw := string(rawMessage)

		resp := b.dispatcher.Handle(raw)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(resp)); err != nil {
			logger.Sugar.Warnf("ws write: %v", err)
			return
		}

		if cmd, _, ok := protocol.ParseRequest(raw); ok && cmd == dispatch.CmdExit {
			deadline := time.Now().Add(time.Second)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}
