/******************************************************************************
 *
 *  Description :
 *
 *    Handler of websocket connections.
 *
 *****************************************************************************/

package main

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pylonhost/pylon/server/logs"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 55 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

func (sess *Session) closeWS() {
	if sess.ws != nil {
		sess.ws.Close()
	}
}

func (sess *Session) readLoop() {
	defer func() {
		sess.closeWS()
		sess.cleanUp()
	}()

	sess.ws.SetReadLimit(globals.maxMessageSize)
	sess.ws.SetReadDeadline(time.Now().Add(pongWait))
	sess.ws.SetPongHandler(func(string) error {
		sess.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Read a ClientComMessage.
		_, raw, err := sess.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				logs.Err.Println("ws: readLoop", sess.sid, err)
			}
			return
		}
		statsInc("IncomingMessagesWebsockTotal", 1)
		sess.dispatchRaw(raw)
	}
}

func (sess *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// Break readLoop.
		sess.closeWS()
	}()

	for {
		select {
		case msg, ok := <-sess.send:
			if !ok {
				return
			}
			if err := wsWrite(sess.ws, websocket.TextMessage, msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
					websocket.CloseNormalClosure) {
					logs.Err.Println("ws: writeLoop", sess.sid, err)
				}
				return
			}
			statsInc("OutgoingMessagesWebsockTotal", 1)

		case <-sess.stop:
			return

		case <-ticker.C:
			if err := wsWrite(sess.ws, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Writes a message with the given type and payload.
func wsWrite(ws *websocket.Conn, mt int, msg any) error {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if msg == nil {
		return ws.WriteMessage(mt, []byte{})
	}
	return ws.WriteJSON(msg)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checking is done by the CORS middleware on the API; the
	// websocket endpoint accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveWebSocket upgrades an authenticated HTTP connection to websocket.
func serveWebSocket(wrt http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		wrt.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Token is accepted in the Authorization header or, for browser
	// websocket clients which cannot set headers, as a query parameter.
	token := bearerToken(req)
	if token == "" {
		token = req.URL.Query().Get("token")
	}
	user, err := globals.auth.Authenticate(token)
	if err != nil {
		writeError(wrt, http.StatusUnauthorized, "authentication required")
		return
	}

	upgrader.EnableCompression = globals.wsCompression
	ws, err := upgrader.Upgrade(wrt, req, nil)
	if err != nil {
		logs.Err.Println("ws: failed to upgrade connection", err)
		return
	}

	sess := globals.sessionStore.NewSession(ws, user.ID, user.Username)
	logs.Info.Println("ws: session started", sess.sid, user.Username)

	// Do work in goroutines to return from serveWebSocket() to release file pointers.
	// Otherwise "too many open files" will happen.
	go sess.readLoop()
	go sess.writeLoop()
}
