/******************************************************************************
 *
 *  Description :
 *
 *    Handling of websocket client sessions. A session is a
 *    websocket connection of an authenticated user. It reads client
 *    messages, dispatches them, and serializes outbound messages
 *    through a buffered send queue.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pylonhost/pylon/server/logs"
	"github.com/pylonhost/pylon/server/store"
	t "github.com/pylonhost/pylon/server/store/types"
)

const sendQueueLimit = 128

// Session holds the state of a single websocket connection.
type Session struct {
	// Session ID.
	sid string

	// Websocket connection.
	ws *websocket.Conn

	// ID and username of the authenticated user.
	uid      string
	username string

	// Outbound messages, buffered.
	send chan any

	// Channel for shutting down the session, buffer 1.
	stop chan any

	// IDs of servers the session is subscribed to. Owned by the hub's
	// run loop after registration; guarded here for reads from dispatch.
	subsLock sync.RWMutex
	subs     map[string]struct{}

	// Timestamp of the last activity on this session.
	lastAction time.Time
}

// queueOut attempts to send a message to the session's write loop. It fails
// silently if the queue is full: a client too slow to consume messages is
// presumed dead.
func (sess *Session) queueOut(msg *ServerComMessage) bool {
	if sess == nil {
		return true
	}
	select {
	case sess.send <- msg:
	default:
		logs.Err.Println("ws: send queue full, dropping", sess.sid)
		return false
	}
	return true
}

// isSubscribed reports whether the session is subscribed to the given server.
func (sess *Session) isSubscribed(serverID string) bool {
	sess.subsLock.RLock()
	defer sess.subsLock.RUnlock()
	_, ok := sess.subs[serverID]
	return ok
}

func (sess *Session) addSub(serverID string) {
	sess.subsLock.Lock()
	sess.subs[serverID] = struct{}{}
	sess.subsLock.Unlock()
}

// cleanUp is called when the session is terminated. It unsubscribes the
// session from all servers and removes it from the session store.
func (sess *Session) cleanUp() {
	globals.sessionStore.Delete(sess)
	globals.hub.unreg <- sess
}

// dispatchRaw parses a raw message received from the client and processes it.
func (sess *Session) dispatchRaw(raw []byte) {
	var msg ClientComMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logs.Warn.Println("ws: malformed message", sess.sid, err)
		return
	}
	sess.dispatch(&msg)
}

func (sess *Session) dispatch(msg *ClientComMessage) {
	sess.lastAction = t.TimeNow()

	switch msg.Type {
	case MsgTypeSubscribe:
		sess.subscribe(msg)
	case MsgTypeCommand:
		sess.command(msg)
	default:
		logs.Warn.Println("ws: unknown message type", msg.Type, sess.sid)
	}
}

// subscribe handles a subscribe_server request: the session starts receiving
// console output and status updates for the given server.
func (sess *Session) subscribe(msg *ClientComMessage) {
	if msg.ServerID == "" {
		return
	}
	access, err := resolveServerAccess(sess.uid, msg.ServerID)
	if err != nil {
		logs.Err.Println("ws: subscribe access check failed", sess.sid, err)
		return
	}
	if !access.Allowed {
		logs.Warn.Println("ws: subscribe denied", sess.sid, msg.ServerID)
		return
	}

	globals.hub.reg <- &subReq{sess: sess, serverID: msg.ServerID}
}

// command handles a server_command request: the command is echoed to the
// server's console immediately, the simulated result follows after a delay.
func (sess *Session) command(msg *ClientComMessage) {
	if msg.ServerID == "" || msg.Command == "" {
		return
	}
	// Authorization happened at subscribe time. The channel itself does
	// not re-check permissions.
	if !sess.isSubscribed(msg.ServerID) {
		logs.Warn.Println("ws: command without subscription", sess.sid, msg.ServerID)
		return
	}

	serverID, command := msg.ServerID, msg.Command
	broadcastServerLog(serverID, "> "+command)

	globals.sched.AfterFunc(globals.commandEchoDelay, func() {
		// The server may have been deleted while the timer was pending.
		if _, err := store.Servers.Get(serverID); err != nil {
			return
		}
		broadcastServerLog(serverID, "Command executed: "+command)
	})
}

// broadcastServerLog persists one console line and routes it to subscribers.
func broadcastServerLog(serverID, content string) {
	if _, err := store.ServerLogs.Append(serverID, content); err != nil {
		logs.Err.Println("ws: failed to persist console line", serverID, err)
	}
	globals.hub.route <- MsgServerLog(serverID, content, t.TimeNow())
}

// broadcastStatusUpdate routes a status change to subscribers.
func broadcastStatusUpdate(serverID, status, action string) {
	globals.hub.route <- MsgStatusUpdate(serverID, status, action, t.TimeNow())
}
