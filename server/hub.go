/******************************************************************************
 *
 *  Description :
 *
 *    The hub fans messages out to sessions subscribed to a server's event
 *    stream. Subscription state is owned by the hub's run loop; all changes
 *    go through its channels.
 *
 *****************************************************************************/

package main

import (
	"sync"

	"github.com/pylonhost/pylon/server/logs"
	t "github.com/pylonhost/pylon/server/store/types"
)

// subReq is a request to subscribe a session to a server's event stream.
type subReq struct {
	sess     *Session
	serverID string
}

// Hub is the routing table of server subscriptions.
type Hub struct {
	// Subscribe a session to a server, buffered.
	reg chan *subReq

	// Remove a session from all subscriptions, buffered.
	unreg chan *Session

	// Messages to be routed to subscribers, buffered.
	route chan *ServerComMessage

	// Request to terminate the hub, buffer 1.
	shutdown chan chan<- bool

	// Subscribers per server ID. Accessed only from the run loop.
	subs map[string]map[*Session]struct{}
}

func newHub() *Hub {
	h := &Hub{
		reg:      make(chan *subReq, 32),
		unreg:    make(chan *Session, 32),
		route:    make(chan *ServerComMessage, 256),
		shutdown: make(chan chan<- bool),
		subs:     make(map[string]map[*Session]struct{}),
	}

	statsRegisterInt("LiveSubscriptions")
	statsRegisterInt("BroadcastsTotal")

	go h.run()

	return h
}

func (h *Hub) run() {
	for {
		select {
		case req := <-h.reg:
			sessions := h.subs[req.serverID]
			if sessions == nil {
				sessions = make(map[*Session]struct{})
				h.subs[req.serverID] = sessions
			}
			if _, ok := sessions[req.sess]; !ok {
				sessions[req.sess] = struct{}{}
				req.sess.addSub(req.serverID)
				statsInc("LiveSubscriptions", 1)
			}
			req.sess.queueOut(MsgSubConfirmed(req.serverID, t.TimeNow()))

		case sess := <-h.unreg:
			h.evict(sess)

		case msg := <-h.route:
			for sess := range h.subs[msg.ServerID] {
				if !sess.queueOut(msg) {
					// The write loop is not draining its queue. Drop
					// the session and tell it to terminate.
					h.evict(sess)
					select {
					case sess.stop <- nil:
					default:
					}
				}
			}
			statsInc("BroadcastsTotal", 1)

		case done := <-h.shutdown:
			logs.Info.Println("hub: shutdown")
			done <- true
			return
		}
	}
}

// evict removes a session from every subscription. Called only from the
// run loop.
func (h *Hub) evict(sess *Session) {
	for serverID, sessions := range h.subs {
		if _, ok := sessions[sess]; ok {
			delete(sessions, sess)
			statsInc("LiveSubscriptions", -1)
			if len(sessions) == 0 {
				delete(h.subs, serverID)
			}
		}
	}
}

// pendingTransitions tracks servers with a power transition in flight.
// A second power action on the same server is rejected until the first
// one settles.
type pendingTransitions struct {
	lock    sync.Mutex
	pending map[string]bool
}

func newPendingTransitions() *pendingTransitions {
	return &pendingTransitions{pending: make(map[string]bool)}
}

// begin marks a transition as started. Returns false if one is already
// in flight for the server.
func (pt *pendingTransitions) begin(serverID string) bool {
	pt.lock.Lock()
	defer pt.lock.Unlock()

	if pt.pending[serverID] {
		return false
	}
	pt.pending[serverID] = true
	return true
}

// end clears the in-flight marker for the server.
func (pt *pendingTransitions) end(serverID string) {
	pt.lock.Lock()
	delete(pt.pending, serverID)
	pt.lock.Unlock()
}
