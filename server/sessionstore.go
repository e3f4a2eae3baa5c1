/******************************************************************************
 *
 *  Description :
 *
 *    Management of live websocket sessions.
 *
 *****************************************************************************/

package main

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pylonhost/pylon/server/store"
	t "github.com/pylonhost/pylon/server/store/types"
)

// SessionStore holds all live sessions indexed by session ID.
type SessionStore struct {
	lock sync.Mutex

	sessCache map[string]*Session
}

// NewSession creates a new session and saves it to the session store.
func (ss *SessionStore) NewSession(conn *websocket.Conn, uid, username string) *Session {
	sess := &Session{
		sid:        store.GetUid(),
		ws:         conn,
		uid:        uid,
		username:   username,
		send:       make(chan any, sendQueueLimit),
		stop:       make(chan any, 1),
		subs:       make(map[string]struct{}),
		lastAction: t.TimeNow(),
	}

	ss.lock.Lock()
	ss.sessCache[sess.sid] = sess
	ss.lock.Unlock()

	statsInc("LiveSessions", 1)
	statsInc("TotalSessions", 1)

	return sess
}

// Get fetches a session by session ID.
func (ss *SessionStore) Get(sid string) *Session {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	return ss.sessCache[sid]
}

// Delete removes the session from the store.
func (ss *SessionStore) Delete(sess *Session) {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	if _, ok := ss.sessCache[sess.sid]; ok {
		delete(ss.sessCache, sess.sid)
		statsInc("LiveSessions", -1)
	}
}

// Range calls f for each stored session until f returns false.
func (ss *SessionStore) Range(f func(sid string, sess *Session) bool) {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	for sid, sess := range ss.sessCache {
		if !f(sid, sess) {
			break
		}
	}
}

// Shutdown terminates all sessions. Called at server shutdown.
func (ss *SessionStore) Shutdown() {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	shutdown := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown")
	for _, sess := range ss.sessCache {
		if sess.ws != nil {
			sess.ws.WriteControl(websocket.CloseMessage, shutdown, time.Now().Add(time.Second))
		}
		select {
		case sess.stop <- nil:
		default:
		}
	}
	ss.sessCache = make(map[string]*Session)
}

// NewSessionStore initializes a session store.
func NewSessionStore() *SessionStore {
	ss := &SessionStore{
		sessCache: make(map[string]*Session),
	}

	statsRegisterInt("LiveSessions")
	statsRegisterInt("TotalSessions")

	return ss
}
