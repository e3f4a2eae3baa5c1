package main

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pylonhost/pylon/server/store"
	t "github.com/pylonhost/pylon/server/store/types"
)

// memAdapter is an in-memory storage adapter for tests.
type memAdapter struct {
	lock sync.Mutex
	open bool

	users    map[string]*t.User
	servers  map[string]*t.Server
	subusers map[string]*t.Subuser
	slogs    []t.ServerLog
	activity []t.ActivityRecord

	// Set to force ActivityCreate failures.
	failActivity bool
}

var errNotImplemented = errors.New("not implemented in test adapter")

func (a *memAdapter) Open(_ json.RawMessage) error {
	a.users = make(map[string]*t.User)
	a.servers = make(map[string]*t.Server)
	a.subusers = make(map[string]*t.Subuser)
	a.open = true
	return nil
}

func (a *memAdapter) Close() error {
	a.open = false
	return nil
}

func (a *memAdapter) IsOpen() bool        { return a.open }
func (a *memAdapter) GetName() string     { return "mem" }
func (a *memAdapter) CreateDb(bool) error { return nil }
func (a *memAdapter) Stats() any          { return nil }

func (a *memAdapter) reset() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.users = make(map[string]*t.User)
	a.servers = make(map[string]*t.Server)
	a.subusers = make(map[string]*t.Subuser)
	a.slogs = nil
	a.activity = nil
	a.failActivity = false
}

func (a *memAdapter) UserCreate(user *t.User) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.users[user.ID] = user
	return nil
}

func (a *memAdapter) UserGet(id string) (*t.User, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if user := a.users[id]; user != nil {
		return user, nil
	}
	return nil, t.ErrNotFound
}

func (a *memAdapter) UserGetByUsername(username string) (*t.User, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	for _, user := range a.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, t.ErrNotFound
}

func (a *memAdapter) UserGetAll() ([]t.User, error)      { return nil, errNotImplemented }
func (a *memAdapter) UserUpdateLastLogin(string) error   { return nil }
func (a *memAdapter) LocationCreate(*t.Location) error   { return errNotImplemented }
func (a *memAdapter) LocationGet(string) (*t.Location, error) {
	return nil, t.ErrNotFound
}
func (a *memAdapter) LocationGetAll() ([]t.Location, error) { return nil, nil }
func (a *memAdapter) NodeCreate(*t.Node) error              { return errNotImplemented }
func (a *memAdapter) NodeGet(string) (*t.Node, error)       { return nil, t.ErrNotFound }
func (a *memAdapter) NodeGetAll() ([]t.Node, error)         { return nil, nil }
func (a *memAdapter) NodeUpdateStatus(string, bool) error   { return errNotImplemented }
func (a *memAdapter) EggCreate(*t.Egg) error                { return errNotImplemented }
func (a *memAdapter) EggGet(string) (*t.Egg, error)         { return nil, t.ErrNotFound }
func (a *memAdapter) EggGetAll() ([]t.Egg, error)           { return nil, nil }

func (a *memAdapter) ServerCreate(server *t.Server) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.servers[server.ID] = server
	return nil
}

func (a *memAdapter) ServerGet(id string) (*t.Server, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if server := a.servers[id]; server != nil {
		cpy := *server
		return &cpy, nil
	}
	return nil, t.ErrNotFound
}

func (a *memAdapter) ServerGetAll() ([]t.Server, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	var servers []t.Server
	for _, server := range a.servers {
		servers = append(servers, *server)
	}
	return servers, nil
}

func (a *memAdapter) ServerGetByOwner(ownerID string) ([]t.Server, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	var servers []t.Server
	for _, server := range a.servers {
		if server.OwnerID == ownerID {
			servers = append(servers, *server)
		}
	}
	return servers, nil
}

func (a *memAdapter) ServerUpdateStatus(id, status string) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	server := a.servers[id]
	if server == nil {
		return t.ErrNotFound
	}
	server.Status = status
	return nil
}

func (a *memAdapter) ServerDelete(id string) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.servers[id] == nil {
		return t.ErrNotFound
	}
	delete(a.servers, id)
	return nil
}

func (a *memAdapter) ServerLogAppend(tlog *t.ServerLog) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.slogs = append(a.slogs, *tlog)
	return nil
}

func (a *memAdapter) ServerLogsGet(serverID string, limit int) ([]t.ServerLog, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	var tlogs []t.ServerLog
	for _, tlog := range a.slogs {
		if tlog.ServerID == serverID {
			tlogs = append(tlogs, tlog)
		}
	}
	return tlogs, nil
}

func (a *memAdapter) AllocationCreate(*t.Allocation) error { return errNotImplemented }
func (a *memAdapter) AllocationGetAll() ([]t.Allocation, error) {
	return nil, nil
}
func (a *memAdapter) AllocationGetByNode(string) ([]t.Allocation, error) {
	return nil, nil
}
func (a *memAdapter) DatabaseCreate(*t.ServerDatabase) error { return errNotImplemented }
func (a *memAdapter) DatabaseGetByServer(string) ([]t.ServerDatabase, error) {
	return nil, nil
}
func (a *memAdapter) BackupCreate(*t.ServerBackup) error { return errNotImplemented }
func (a *memAdapter) BackupGetByServer(string) ([]t.ServerBackup, error) {
	return nil, nil
}

func (a *memAdapter) SubuserCreate(sub *t.Subuser) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.subusers[sub.ServerID+"/"+sub.UserID] = sub
	return nil
}

func (a *memAdapter) SubuserGet(serverID, userID string) (*t.Subuser, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if sub := a.subusers[serverID+"/"+userID]; sub != nil {
		return sub, nil
	}
	return nil, t.ErrNotFound
}

func (a *memAdapter) SubusersForServer(string) ([]t.Subuser, error) { return nil, nil }

func (a *memAdapter) SubuserDelete(serverID, userID string) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	key := serverID + "/" + userID
	if a.subusers[key] == nil {
		return t.ErrNotFound
	}
	delete(a.subusers, key)
	return nil
}

func (a *memAdapter) ActivityCreate(rec *t.ActivityRecord) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.failActivity {
		return errors.New("storage unavailable")
	}
	a.activity = append(a.activity, *rec)
	return nil
}

func (a *memAdapter) ActivityQuery(userID, serverID string, limit int) ([]t.ActivityRecord, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	var recs []t.ActivityRecord
	for _, rec := range a.activity {
		if userID != "" && rec.UserID != userID {
			continue
		}
		if serverID != "" && rec.ServerID != serverID {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (a *memAdapter) activityCount() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return len(a.activity)
}

var testAdapter = &memAdapter{}

func TestMain(m *testing.M) {
	store.RegisterAdapter(testAdapter)
	if err := store.Open(json.RawMessage(`{"use_adapter": "mem"}`)); err != nil {
		panic(err)
	}

	globals.sched = syncScheduler{}
	globals.sessionStore = NewSessionStore()
	globals.hub = newHub()
	globals.pending = newPendingTransitions()
	globals.auth = newAuthenticator(time.Hour)
	globals.maxMessageSize = 1 << 18

	os.Exit(m.Run())
}

// newTestSession returns a registered session with a drainable send queue.
func newTestSession(uid, username string) *Session {
	return globals.sessionStore.NewSession(nil, uid, username)
}

// nextMessage reads one queued outbound message, waiting up to the deadline.
func nextMessage(tb testing.TB, sess *Session, wait time.Duration) *ServerComMessage {
	tb.Helper()
	select {
	case msg := <-sess.send:
		out, ok := msg.(*ServerComMessage)
		if !ok {
			tb.Fatalf("unexpected message type %T", msg)
		}
		return out
	case <-time.After(wait):
		tb.Fatal("timed out waiting for message")
	}
	return nil
}

// noMessage asserts the session receives nothing within the wait window.
func noMessage(tb testing.TB, sess *Session, wait time.Duration) {
	tb.Helper()
	select {
	case msg := <-sess.send:
		tb.Fatalf("unexpected message: %+v", msg)
	case <-time.After(wait):
	}
}

// waitFor polls cond until it is true or the deadline passes.
func waitFor(tb testing.TB, wait time.Duration, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	tb.Fatal("condition not met before deadline")
}
