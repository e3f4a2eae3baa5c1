package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pylonhost/pylon/server/store"
	types "github.com/pylonhost/pylon/server/store/types"
)

func powerRequest(tb testing.TB, serverID, action string) *http.Request {
	tb.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/servers/"+serverID+"/power",
		strings.NewReader(`{"action":"`+action+`"}`))
	req.SetPathValue("serverID", serverID)
	return withUser(req, &types.User{ID: "u-1", Username: "alice", Role: types.RoleUser})
}

func TestPowerActionStatusSequence(t *testing.T) {
	defer testAdapter.reset()
	seedServer(t, "u-1", "srv-1")

	watcher := newTestSession("u-1", "owner-u-1")
	defer watcher.cleanUp()
	subscribeDirect(t, watcher, "srv-1")

	rec := httptest.NewRecorder()
	hdlServerPower(rec, powerRequest(t, "srv-1", "start"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Attribution log line first.
	logLine := nextMessage(t, watcher, msgWait)
	if logLine.Type != MsgTypeServerLog || logLine.Content != "Server start requested by alice" {
		t.Fatalf("first broadcast = %+v, want attribution log", logLine)
	}

	// Intermediate status with the action attached.
	intermediate := nextMessage(t, watcher, msgWait)
	if intermediate.Type != MsgTypeStatusUpdate || intermediate.Status != types.StatusStarting ||
		intermediate.Action != "start" {
		t.Fatalf("second broadcast = %+v, want starting status", intermediate)
	}

	// Terminal status, no action. The test scheduler settles synchronously.
	final := nextMessage(t, watcher, msgWait)
	if final.Type != MsgTypeStatusUpdate || final.Status != types.StatusOnline || final.Action != "" {
		t.Fatalf("third broadcast = %+v, want online status", final)
	}

	server, err := store.Servers.Get("srv-1")
	if err != nil {
		t.Fatal(err)
	}
	if server.Status != types.StatusOnline {
		t.Errorf("persisted status = %s, want online", server.Status)
	}
}

func TestPowerActionStopSequence(t *testing.T) {
	defer testAdapter.reset()
	seedServer(t, "u-1", "srv-1")
	if err := testAdapter.ServerUpdateStatus("srv-1", types.StatusOnline); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	hdlServerPower(rec, powerRequest(t, "srv-1", "stop"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	server, err := store.Servers.Get("srv-1")
	if err != nil {
		t.Fatal(err)
	}
	if server.Status != types.StatusOffline {
		t.Errorf("persisted status = %s, want offline", server.Status)
	}

	// No session consumed the broadcasts; let the hub drain them so they
	// cannot reach subscribers registered by a later test.
	waitFor(t, msgWait, func() bool { return len(globals.hub.route) == 0 })
}

func TestPowerActionInvalidAction(t *testing.T) {
	defer testAdapter.reset()
	seedServer(t, "u-1", "srv-1")

	rec := httptest.NewRecorder()
	hdlServerPower(rec, powerRequest(t, "srv-1", "hibernate"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPowerActionConflictWhilePending(t *testing.T) {
	defer testAdapter.reset()
	seedServer(t, "u-1", "srv-1")

	if !globals.pending.begin("srv-1") {
		t.Fatal("begin on an idle server must succeed")
	}
	defer globals.pending.end("srv-1")

	rec := httptest.NewRecorder()
	hdlServerPower(rec, powerRequest(t, "srv-1", "start"))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 while a transition is pending", rec.Code)
	}
}

func TestPowerActionUnknownServer(t *testing.T) {
	defer testAdapter.reset()

	rec := httptest.NewRecorder()
	hdlServerPower(rec, powerRequest(t, "srv-gone", "start"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSettleAfterServerDeletedIsNoop(t *testing.T) {
	defer testAdapter.reset()
	seedServer(t, "u-1", "srv-1")

	// Capture the settle callback instead of running it inline.
	var settle func()
	globals.sched = captureScheduler{&settle}
	defer func() { globals.sched = syncScheduler{} }()

	rec := httptest.NewRecorder()
	hdlServerPower(rec, powerRequest(t, "srv-1", "start"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if err := store.Servers.Delete("srv-1"); err != nil {
		t.Fatal(err)
	}
	settle()

	if !globals.pending.begin("srv-1") {
		t.Error("pending flag must clear even when the server is gone")
	}
	globals.pending.end("srv-1")

	// No session consumed the broadcasts; let the hub drain them so they
	// cannot reach subscribers registered by a later test.
	waitFor(t, msgWait, func() bool { return len(globals.hub.route) == 0 })
}

type captureScheduler struct {
	fn *func()
}

func (c captureScheduler) AfterFunc(_ time.Duration, f func()) {
	*c.fn = f
}
