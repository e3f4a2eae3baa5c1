package main

import (
	"testing"
	"time"

	"github.com/pylonhost/pylon/server/store"
	types "github.com/pylonhost/pylon/server/store/types"
)

func seedServer(tb testing.TB, ownerID, serverID string) {
	tb.Helper()
	if err := testAdapter.UserCreate(&types.User{
		ID: ownerID, Username: "owner-" + ownerID, Role: types.RoleUser, IsActive: true,
	}); err != nil {
		tb.Fatal(err)
	}
	if err := testAdapter.ServerCreate(&types.Server{
		ID: serverID, Name: "test server", OwnerID: ownerID, Status: types.StatusOffline,
	}); err != nil {
		tb.Fatal(err)
	}
}

func TestSessionSubscribe(t *testing.T) {
	defer testAdapter.reset()
	seedServer(t, "u-1", "srv-1")

	sess := newTestSession("u-1", "owner-u-1")
	defer sess.cleanUp()

	sess.dispatch(&ClientComMessage{Type: MsgTypeSubscribe, ServerID: "srv-1"})

	ack := nextMessage(t, sess, msgWait)
	if ack.Type != MsgTypeSubConfirmed || ack.ServerID != "srv-1" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	waitFor(t, msgWait, func() bool { return sess.isSubscribed("srv-1") })
}

func TestSessionSubscribeDenied(t *testing.T) {
	defer testAdapter.reset()
	seedServer(t, "u-1", "srv-1")
	if err := testAdapter.UserCreate(&types.User{
		ID: "u-2", Username: "stranger", Role: types.RoleUser, IsActive: true,
	}); err != nil {
		t.Fatal(err)
	}

	sess := newTestSession("u-2", "stranger")
	defer sess.cleanUp()

	sess.dispatch(&ClientComMessage{Type: MsgTypeSubscribe, ServerID: "srv-1"})

	noMessage(t, sess, 100*time.Millisecond)
	if sess.isSubscribed("srv-1") {
		t.Error("denied subscription must not register")
	}
}

func TestSessionCommandEchoThenResult(t *testing.T) {
	defer testAdapter.reset()
	seedServer(t, "u-1", "srv-1")

	sess := newTestSession("u-1", "owner-u-1")
	defer sess.cleanUp()

	sess.dispatch(&ClientComMessage{Type: MsgTypeSubscribe, ServerID: "srv-1"})
	nextMessage(t, sess, msgWait)

	// The scheduler is synchronous in tests: the result is broadcast right
	// after the echo, preserving order.
	sess.dispatch(&ClientComMessage{Type: MsgTypeCommand, ServerID: "srv-1", Command: "list"})

	echo := nextMessage(t, sess, msgWait)
	if echo.Type != MsgTypeServerLog || echo.Content != "> list" {
		t.Fatalf("first message = %+v, want command echo", echo)
	}
	result := nextMessage(t, sess, msgWait)
	if result.Type != MsgTypeServerLog || result.Content != "Command executed: list" {
		t.Fatalf("second message = %+v, want command result", result)
	}

	// Both lines were persisted too.
	tlogs, err := store.ServerLogs.Get("srv-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tlogs) != 2 {
		t.Fatalf("persisted %d log lines, want 2", len(tlogs))
	}
}

func TestSessionCommandRequiresSubscription(t *testing.T) {
	defer testAdapter.reset()
	seedServer(t, "u-1", "srv-1")

	sess := newTestSession("u-1", "owner-u-1")
	defer sess.cleanUp()

	sess.dispatch(&ClientComMessage{Type: MsgTypeCommand, ServerID: "srv-1", Command: "list"})

	noMessage(t, sess, 100*time.Millisecond)
}

func TestSessionMalformedMessageIgnored(t *testing.T) {
	defer testAdapter.reset()

	sess := newTestSession("u-1", "alice")
	defer sess.cleanUp()

	sess.dispatchRaw([]byte("{not json"))
	sess.dispatchRaw([]byte(`{"type": "no_such_type"}`))

	noMessage(t, sess, 100*time.Millisecond)
}
