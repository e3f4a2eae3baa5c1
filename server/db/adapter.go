// Package adapter contains the interfaces to be implemented by the database adapter.
package adapter

import (
	"encoding/json"

	t "github.com/pylonhost/pylon/server/store/types"
)

// Adapter is the interface that must be implemented by a database
// adapter. The current schema supports a single connection by database type.
type Adapter interface {
	// General

	// Open and configure the adapter.
	Open(config json.RawMessage) error
	// Close the adapter.
	Close() error
	// IsOpen checks if the adapter is ready for use.
	IsOpen() bool
	// GetName returns the name of the adapter.
	GetName() string
	// CreateDb creates the database optionally dropping an existing database first.
	CreateDb(reset bool) error
	// Stats returns the DB connection stats object.
	Stats() any

	// User management

	// UserCreate creates a user record.
	UserCreate(user *t.User) error
	// UserGet returns a record for the given user ID.
	UserGet(id string) (*t.User, error)
	// UserGetByUsername returns a record for the given login name.
	UserGetByUsername(username string) (*t.User, error)
	// UserGetAll returns all user records.
	UserGetAll() ([]t.User, error)
	// UserUpdateLastLogin bumps the user's last successful login time.
	UserUpdateLastLogin(id string) error

	// Locations

	LocationCreate(loc *t.Location) error
	LocationGet(id string) (*t.Location, error)
	LocationGetAll() ([]t.Location, error)

	// Nodes

	NodeCreate(node *t.Node) error
	NodeGet(id string) (*t.Node, error)
	NodeGetAll() ([]t.Node, error)
	NodeUpdateStatus(id string, online bool) error

	// Eggs

	EggCreate(egg *t.Egg) error
	EggGet(id string) (*t.Egg, error)
	EggGetAll() ([]t.Egg, error)

	// Servers

	ServerCreate(server *t.Server) error
	ServerGet(id string) (*t.Server, error)
	ServerGetAll() ([]t.Server, error)
	ServerGetByOwner(ownerID string) ([]t.Server, error)
	ServerUpdateStatus(id string, status string) error
	ServerDelete(id string) error

	// Server console logs

	ServerLogAppend(tlog *t.ServerLog) error
	ServerLogsGet(serverID string, limit int) ([]t.ServerLog, error)

	// Allocations

	AllocationCreate(alloc *t.Allocation) error
	AllocationGetAll() ([]t.Allocation, error)
	AllocationGetByNode(nodeID string) ([]t.Allocation, error)

	// Server databases

	DatabaseCreate(sdb *t.ServerDatabase) error
	DatabaseGetByServer(serverID string) ([]t.ServerDatabase, error)

	// Server backups

	BackupCreate(bkp *t.ServerBackup) error
	BackupGetByServer(serverID string) ([]t.ServerBackup, error)

	// Subusers (grants)

	// SubuserCreate adds a grant. At most one grant may exist per
	// (server, user) pair; a second insert fails with ErrDuplicate.
	SubuserCreate(sub *t.Subuser) error
	// SubuserGet returns the grant for the given pair or ErrNotFound.
	SubuserGet(serverID, userID string) (*t.Subuser, error)
	SubusersForServer(serverID string) ([]t.Subuser, error)
	SubuserDelete(serverID, userID string) error

	// Activity log

	ActivityCreate(rec *t.ActivityRecord) error
	// ActivityQuery returns newest-first records optionally filtered by
	// user and/or server.
	ActivityQuery(userID, serverID string, limit int) ([]t.ActivityRecord, error)
}
