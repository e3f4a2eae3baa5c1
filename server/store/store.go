// Package store provides methods for registering and accessing database adapters.
package store

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	adapter "github.com/pylonhost/pylon/server/db"
	"github.com/pylonhost/pylon/server/store/types"
)

var adp adapter.Adapter
var availableAdapters = make(map[string]adapter.Adapter)

type configType struct {
	// DB adapter name to use. Should be one of those specified in `Adapters`.
	UseAdapter string `json:"use_adapter"`
	// Configurations for individual adapters.
	Adapters map[string]json.RawMessage `json:"adapters"`
}

// Open initializes the persistence system. Adapter name and configuration
// are loaded from the given json string.
func Open(jsonconf json.RawMessage) error {
	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return errors.New("store: failed to parse config: " + err.Error())
	}

	if adp == nil {
		if config.UseAdapter != "" {
			// Adapter name specified explicitly.
			if ad, ok := availableAdapters[config.UseAdapter]; ok {
				adp = ad
			} else {
				return errors.New("store: " + config.UseAdapter + " adapter is not available in this binary")
			}
		} else if len(availableAdapters) == 1 {
			// Default to the only registered adapter.
			for _, v := range availableAdapters {
				adp = v
			}
		} else {
			return errors.New("store: db adapter is not specified")
		}
	}

	if adp.IsOpen() {
		return errors.New("store: connection is already opened")
	}

	var adapterConfig json.RawMessage
	if config.Adapters != nil {
		adapterConfig = config.Adapters[adp.GetName()]
	}

	return adp.Open(adapterConfig)
}

// Close terminates the connection to the persistent storage.
func Close() error {
	if adp == nil || !adp.IsOpen() {
		return nil
	}
	return adp.Close()
}

// IsOpen reports if the persistence system is ready for use.
func IsOpen() bool {
	return adp != nil && adp.IsOpen()
}

// GetAdapterName returns the name of the active adapter.
func GetAdapterName() string {
	if adp == nil {
		return ""
	}
	return adp.GetName()
}

// InitDb creates the database schema, optionally dropping an existing one.
func InitDb(jsonconf json.RawMessage, reset bool) error {
	if !IsOpen() {
		if err := Open(jsonconf); err != nil {
			return err
		}
	}
	return adp.CreateDb(reset)
}

// DbStats returns the active adapter's connection statistics.
func DbStats() any {
	if adp == nil {
		return nil
	}
	return adp.Stats()
}

// RegisterAdapter makes a persistence adapter available.
// If it's called twice or if the adapter is nil, it panics.
func RegisterAdapter(a adapter.Adapter) {
	if a == nil {
		panic("store: registered adapter is nil")
	}

	name := a.GetName()
	if _, ok := availableAdapters[name]; ok {
		panic("store: adapter '" + name + "' is already registered")
	}
	availableAdapters[name] = a
}

// GetUid generates a unique ID suitable for use as a primary key.
func GetUid() string {
	return uuid.NewString()
}

// UsersObjMapper is the anchor for storing/retrieving User objects.
type UsersObjMapper struct{}

// Users is the access point for User objects.
var Users UsersObjMapper

// Create saves a new user record, assigning it an ID.
func (UsersObjMapper) Create(user *types.User) (*types.User, error) {
	user.ID = GetUid()
	user.CreatedAt = types.TimeNow()
	user.UpdatedAt = user.CreatedAt
	if err := adp.UserCreate(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Get fetches a user by ID.
func (UsersObjMapper) Get(id string) (*types.User, error) {
	return adp.UserGet(id)
}

// GetByUsername fetches a user by login name.
func (UsersObjMapper) GetByUsername(username string) (*types.User, error) {
	return adp.UserGetByUsername(username)
}

// GetAll fetches all user records.
func (UsersObjMapper) GetAll() ([]types.User, error) {
	return adp.UserGetAll()
}

// UpdateLastLogin bumps the user's last successful login time.
func (UsersObjMapper) UpdateLastLogin(id string) error {
	return adp.UserUpdateLastLogin(id)
}

// LocationsObjMapper is the anchor for storing/retrieving Location objects.
type LocationsObjMapper struct{}

// Locations is the access point for Location objects.
var Locations LocationsObjMapper

// Create saves a new location.
func (LocationsObjMapper) Create(loc *types.Location) (*types.Location, error) {
	loc.ID = GetUid()
	if err := adp.LocationCreate(loc); err != nil {
		return nil, err
	}
	return loc, nil
}

// Get fetches a location by ID.
func (LocationsObjMapper) Get(id string) (*types.Location, error) {
	return adp.LocationGet(id)
}

// GetAll fetches all locations.
func (LocationsObjMapper) GetAll() ([]types.Location, error) {
	return adp.LocationGetAll()
}

// NodesObjMapper is the anchor for storing/retrieving Node objects.
type NodesObjMapper struct{}

// Nodes is the access point for Node objects.
var Nodes NodesObjMapper

// Create saves a new node.
func (NodesObjMapper) Create(node *types.Node) (*types.Node, error) {
	node.ID = GetUid()
	node.CreatedAt = types.TimeNow()
	if node.Scheme == "" {
		node.Scheme = "https"
	}
	if err := adp.NodeCreate(node); err != nil {
		return nil, err
	}
	return node, nil
}

// Get fetches a node by ID.
func (NodesObjMapper) Get(id string) (*types.Node, error) {
	return adp.NodeGet(id)
}

// GetAll fetches all nodes.
func (NodesObjMapper) GetAll() ([]types.Node, error) {
	return adp.NodeGetAll()
}

// UpdateStatus marks a node online or offline.
func (NodesObjMapper) UpdateStatus(id string, online bool) error {
	return adp.NodeUpdateStatus(id, online)
}

// EggsObjMapper is the anchor for storing/retrieving Egg objects.
type EggsObjMapper struct{}

// Eggs is the access point for Egg objects.
var Eggs EggsObjMapper

// Create saves a new egg.
func (EggsObjMapper) Create(egg *types.Egg) (*types.Egg, error) {
	egg.ID = GetUid()
	egg.CreatedAt = types.TimeNow()
	if err := adp.EggCreate(egg); err != nil {
		return nil, err
	}
	return egg, nil
}

// Get fetches an egg by ID.
func (EggsObjMapper) Get(id string) (*types.Egg, error) {
	return adp.EggGet(id)
}

// GetAll fetches all eggs.
func (EggsObjMapper) GetAll() ([]types.Egg, error) {
	return adp.EggGetAll()
}

// ServersObjMapper is the anchor for storing/retrieving Server objects.
type ServersObjMapper struct{}

// Servers is the access point for Server objects.
var Servers ServersObjMapper

// Create saves a new server record.
func (ServersObjMapper) Create(server *types.Server) (*types.Server, error) {
	server.ID = GetUid()
	server.CreatedAt = types.TimeNow()
	if server.Status == "" {
		server.Status = types.StatusOffline
	}
	if err := adp.ServerCreate(server); err != nil {
		return nil, err
	}
	return server, nil
}

// Get fetches a server by ID.
func (ServersObjMapper) Get(id string) (*types.Server, error) {
	return adp.ServerGet(id)
}

// GetAll fetches all servers.
func (ServersObjMapper) GetAll() ([]types.Server, error) {
	return adp.ServerGetAll()
}

// GetByOwner fetches servers owned by the given user.
func (ServersObjMapper) GetByOwner(ownerID string) ([]types.Server, error) {
	return adp.ServerGetByOwner(ownerID)
}

// UpdateStatus transitions a server to the given power state.
func (ServersObjMapper) UpdateStatus(id, status string) error {
	return adp.ServerUpdateStatus(id, status)
}

// Delete removes a server record.
func (ServersObjMapper) Delete(id string) error {
	return adp.ServerDelete(id)
}

// ServerLogsObjMapper is the anchor for storing/retrieving console log lines.
type ServerLogsObjMapper struct{}

// ServerLogs is the access point for console log lines.
var ServerLogs ServerLogsObjMapper

// Append stores one console line for a server.
func (ServerLogsObjMapper) Append(serverID, content string) (*types.ServerLog, error) {
	tlog := &types.ServerLog{
		ID:        GetUid(),
		ServerID:  serverID,
		Content:   content,
		Timestamp: types.TimeNow(),
	}
	if err := adp.ServerLogAppend(tlog); err != nil {
		return nil, err
	}
	return tlog, nil
}

// Get fetches up to limit newest log lines for a server.
func (ServerLogsObjMapper) Get(serverID string, limit int) ([]types.ServerLog, error) {
	return adp.ServerLogsGet(serverID, limit)
}

// AllocationsObjMapper is the anchor for storing/retrieving Allocation objects.
type AllocationsObjMapper struct{}

// Allocations is the access point for Allocation objects.
var Allocations AllocationsObjMapper

// Create saves a new allocation.
func (AllocationsObjMapper) Create(alloc *types.Allocation) (*types.Allocation, error) {
	alloc.ID = GetUid()
	alloc.CreatedAt = types.TimeNow()
	if err := adp.AllocationCreate(alloc); err != nil {
		return nil, err
	}
	return alloc, nil
}

// GetAll fetches all allocations.
func (AllocationsObjMapper) GetAll() ([]types.Allocation, error) {
	return adp.AllocationGetAll()
}

// GetByNode fetches allocations belonging to a node.
func (AllocationsObjMapper) GetByNode(nodeID string) ([]types.Allocation, error) {
	return adp.AllocationGetByNode(nodeID)
}

// DatabasesObjMapper is the anchor for storing/retrieving ServerDatabase objects.
type DatabasesObjMapper struct{}

// Databases is the access point for ServerDatabase objects.
var Databases DatabasesObjMapper

// Create saves a new server database.
func (DatabasesObjMapper) Create(sdb *types.ServerDatabase) (*types.ServerDatabase, error) {
	sdb.ID = GetUid()
	sdb.CreatedAt = types.TimeNow()
	if sdb.Remote == "" {
		sdb.Remote = "%"
	}
	if err := adp.DatabaseCreate(sdb); err != nil {
		return nil, err
	}
	return sdb, nil
}

// GetByServer fetches databases provisioned for a server.
func (DatabasesObjMapper) GetByServer(serverID string) ([]types.ServerDatabase, error) {
	return adp.DatabaseGetByServer(serverID)
}

// BackupsObjMapper is the anchor for storing/retrieving ServerBackup objects.
type BackupsObjMapper struct{}

// Backups is the access point for ServerBackup objects.
var Backups BackupsObjMapper

// Create saves a new backup record.
func (BackupsObjMapper) Create(bkp *types.ServerBackup) (*types.ServerBackup, error) {
	bkp.ID = GetUid()
	bkp.CreatedAt = types.TimeNow()
	if err := adp.BackupCreate(bkp); err != nil {
		return nil, err
	}
	return bkp, nil
}

// GetByServer fetches backups of a server, newest first.
func (BackupsObjMapper) GetByServer(serverID string) ([]types.ServerBackup, error) {
	return adp.BackupGetByServer(serverID)
}

// SubusersObjMapper is the anchor for storing/retrieving Subuser grants.
type SubusersObjMapper struct{}

// Subusers is the access point for Subuser grants.
var Subusers SubusersObjMapper

// Create saves a new grant.
func (SubusersObjMapper) Create(sub *types.Subuser) (*types.Subuser, error) {
	sub.ID = GetUid()
	sub.CreatedAt = types.TimeNow()
	if sub.Permissions == nil {
		sub.Permissions = []string{}
	}
	if err := adp.SubuserCreate(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Get fetches the grant for the given (server, user) pair.
func (SubusersObjMapper) Get(serverID, userID string) (*types.Subuser, error) {
	return adp.SubuserGet(serverID, userID)
}

// GetByServer fetches all grants on a server.
func (SubusersObjMapper) GetByServer(serverID string) ([]types.Subuser, error) {
	return adp.SubusersForServer(serverID)
}

// Delete removes a grant.
func (SubusersObjMapper) Delete(serverID, userID string) error {
	return adp.SubuserDelete(serverID, userID)
}

// ActivityObjMapper is the anchor for storing/retrieving audit records.
type ActivityObjMapper struct{}

// Activity is the access point for audit records.
var Activity ActivityObjMapper

// Create persists one audit record.
func (ActivityObjMapper) Create(rec *types.ActivityRecord) error {
	rec.ID = GetUid()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = types.TimeNow()
	}
	return adp.ActivityCreate(rec)
}

// Query fetches newest-first audit records, optionally filtered.
func (ActivityObjMapper) Query(userID, serverID string, limit int) ([]types.ActivityRecord, error) {
	return adp.ActivityQuery(userID, serverID, limit)
}
