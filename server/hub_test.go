package main

import (
	"testing"
	"time"

	types "github.com/pylonhost/pylon/server/store/types"
)

const msgWait = 2 * time.Second

// subscribeDirect registers a session with the hub, bypassing the access
// checks of Session.subscribe, and consumes the acknowledgment.
func subscribeDirect(tb testing.TB, sess *Session, serverID string) {
	tb.Helper()
	globals.hub.reg <- &subReq{sess: sess, serverID: serverID}
	ack := nextMessage(tb, sess, msgWait)
	if ack.Type != MsgTypeSubConfirmed || ack.ServerID != serverID {
		tb.Fatalf("unexpected ack: %+v", ack)
	}
}

func TestHubFanOut(t *testing.T) {
	defer testAdapter.reset()

	subbed1 := newTestSession("u-1", "alice")
	subbed2 := newTestSession("u-2", "bob")
	bystander := newTestSession("u-3", "carol")
	defer func() {
		for _, sess := range []*Session{subbed1, subbed2, bystander} {
			globals.sessionStore.Delete(sess)
			globals.hub.unreg <- sess
		}
	}()

	subscribeDirect(t, subbed1, "srv-1")
	subscribeDirect(t, subbed2, "srv-1")
	subscribeDirect(t, bystander, "srv-2")

	globals.hub.route <- MsgServerLog("srv-1", "hello", types.TimeNow())

	for _, sess := range []*Session{subbed1, subbed2} {
		msg := nextMessage(t, sess, msgWait)
		if msg.Type != MsgTypeServerLog || msg.Content != "hello" {
			t.Errorf("unexpected message: %+v", msg)
		}
	}
	noMessage(t, bystander, 100*time.Millisecond)
}

func TestHubClosedSessionDoesNotAffectOthers(t *testing.T) {
	defer testAdapter.reset()

	closing := newTestSession("u-1", "alice")
	surviving := newTestSession("u-2", "bob")
	defer func() {
		globals.sessionStore.Delete(surviving)
		globals.hub.unreg <- surviving
	}()

	subscribeDirect(t, closing, "srv-1")
	subscribeDirect(t, surviving, "srv-1")

	// Simulate a network failure on one session. Give the hub a moment to
	// process the removal before routing.
	closing.cleanUp()
	time.Sleep(50 * time.Millisecond)

	globals.hub.route <- MsgStatusUpdate("srv-1", types.StatusOnline, "", types.TimeNow())

	msg := nextMessage(t, surviving, msgWait)
	if msg.Type != MsgTypeStatusUpdate || msg.Status != types.StatusOnline {
		t.Errorf("unexpected message: %+v", msg)
	}
	noMessage(t, closing, 100*time.Millisecond)
}

func TestHubEvictsSessionWithFullQueue(t *testing.T) {
	defer testAdapter.reset()

	slow := newTestSession("u-1", "alice")
	healthy := newTestSession("u-2", "bob")
	defer func() {
		globals.sessionStore.Delete(slow)
		globals.sessionStore.Delete(healthy)
		globals.hub.unreg <- healthy
	}()

	subscribeDirect(t, slow, "srv-1")
	subscribeDirect(t, healthy, "srv-1")

	// Stuff the queue so the next broadcast cannot be enqueued.
	for i := 0; i < cap(slow.send); i++ {
		slow.send <- MsgServerLog("srv-1", "fill", types.TimeNow())
	}

	globals.hub.route <- MsgServerLog("srv-1", "overflow", types.TimeNow())

	select {
	case <-slow.stop:
	case <-time.After(msgWait):
		t.Fatal("session with a full queue was not told to stop")
	}

	msg := nextMessage(t, healthy, msgWait)
	if msg.Type != MsgTypeServerLog || msg.Content != "overflow" {
		t.Errorf("unexpected message: %+v", msg)
	}
}
