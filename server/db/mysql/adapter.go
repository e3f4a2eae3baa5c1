// Package mysql is a database adapter for MySQL / MariaDB.
package mysql

import (
	"database/sql"
	"encoding/json"
	"errors"

	ms "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/pylonhost/pylon/server/store"
	t "github.com/pylonhost/pylon/server/store/types"
)

// adapter holds MySQL connection data.
type adapter struct {
	db     *sqlx.DB
	dsn    string
	dbName string
}

const (
	defaultDSN      = "root:@tcp(localhost:3306)/pylon?parseTime=true"
	defaultDatabase = "pylon"

	adapterName = "mysql"

	// Maximum number of records to return by default.
	defaultMaxResults = 100
)

type configType struct {
	DSN    string `json:"dsn,omitempty"`
	DBName string `json:"database,omitempty"`

	// Connection pool settings.
	MaxOpenConns int `json:"max_open_conns,omitempty"`
	MaxIdleConns int `json:"max_idle_conns,omitempty"`
}

// Open initializes the MySQL session.
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.db != nil {
		return errors.New("mysql adapter is already connected")
	}

	var config configType
	if len(jsonconfig) > 0 {
		if err := json.Unmarshal(jsonconfig, &config); err != nil {
			return errors.New("mysql adapter failed to parse config: " + err.Error())
		}
	}

	a.dsn = config.DSN
	if a.dsn == "" {
		a.dsn = defaultDSN
	}

	a.dbName = config.DBName
	if a.dbName == "" {
		a.dbName = defaultDatabase
	}

	var err error
	a.db, err = sqlx.Open("mysql", a.dsn)
	if err != nil {
		return err
	}

	// sqlx.Open does not open the network connection. Force it here.
	if err = a.db.Ping(); err != nil {
		a.db.Close()
		a.db = nil
		return err
	}

	if config.MaxOpenConns > 0 {
		a.db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		a.db.SetMaxIdleConns(config.MaxIdleConns)
	}

	return nil
}

// Close closes the underlying database connection.
func (a *adapter) Close() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
	}
	return err
}

// IsOpen returns true if connection to database has been established.
// It does not check if the connection is actually live.
func (a *adapter) IsOpen() bool {
	return a.db != nil
}

// GetName returns the name of this adapter.
func (a *adapter) GetName() string {
	return adapterName
}

// Stats returns the sql DBStats object.
func (a *adapter) Stats() any {
	if a.db == nil {
		return nil
	}
	return a.db.Stats()
}

// CreateDb initializes the storage, optionally dropping an existing schema.
func (a *adapter) CreateDb(reset bool) error {
	if reset {
		if _, err := a.db.Exec("DROP DATABASE IF EXISTS " + a.dbName); err != nil {
			return err
		}
	}
	if _, err := a.db.Exec("CREATE DATABASE IF NOT EXISTS " + a.dbName + " CHARACTER SET utf8mb4"); err != nil {
		return err
	}
	if _, err := a.db.Exec("USE " + a.dbName); err != nil {
		return err
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS users(
			id            CHAR(36) PRIMARY KEY,
			username      VARCHAR(64) NOT NULL,
			password      VARCHAR(255) NOT NULL,
			email         VARCHAR(255) NOT NULL,
			first_name    VARCHAR(64) NOT NULL DEFAULT '',
			last_name     VARCHAR(64) NOT NULL DEFAULT '',
			role          VARCHAR(16) NOT NULL DEFAULT 'user',
			language      VARCHAR(8) NOT NULL DEFAULT 'en',
			is_active     TINYINT NOT NULL DEFAULT 1,
			last_login_at DATETIME(3),
			created_at    DATETIME(3) NOT NULL,
			updated_at    DATETIME(3) NOT NULL,
			UNIQUE INDEX users_username(username),
			UNIQUE INDEX users_email(email)
		)`,
		`CREATE TABLE IF NOT EXISTS locations(
			id          CHAR(36) PRIMARY KEY,
			short_code  VARCHAR(32) NOT NULL,
			description VARCHAR(255) NOT NULL,
			UNIQUE INDEX locations_short_code(short_code)
		)`,
		`CREATE TABLE IF NOT EXISTS nodes(
			id           CHAR(36) PRIMARY KEY,
			name         VARCHAR(128) NOT NULL,
			fqdn         VARCHAR(255) NOT NULL,
			scheme       VARCHAR(8) NOT NULL DEFAULT 'https',
			location_id  CHAR(36),
			memory       INT NOT NULL,
			disk         INT NOT NULL,
			daemon_token VARCHAR(128) NOT NULL,
			daemon_port  INT NOT NULL DEFAULT 8080,
			is_online    TINYINT NOT NULL DEFAULT 0,
			created_at   DATETIME(3) NOT NULL,
			FOREIGN KEY(location_id) REFERENCES locations(id)
		)`,
		`CREATE TABLE IF NOT EXISTS eggs(
			id           CHAR(36) PRIMARY KEY,
			name         VARCHAR(128) NOT NULL,
			description  TEXT,
			docker_image VARCHAR(255) NOT NULL,
			startup      TEXT NOT NULL,
			created_at   DATETIME(3) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS servers(
			id           CHAR(36) PRIMARY KEY,
			name         VARCHAR(128) NOT NULL,
			description  TEXT,
			owner_id     CHAR(36) NOT NULL,
			node_id      CHAR(36) NOT NULL,
			egg_id       CHAR(36) NOT NULL,
			status       VARCHAR(16) NOT NULL DEFAULT 'offline',
			memory       INT NOT NULL,
			disk         INT NOT NULL,
			cpu          INT NOT NULL,
			docker_image VARCHAR(255) NOT NULL,
			startup      TEXT NOT NULL,
			created_at   DATETIME(3) NOT NULL,
			INDEX servers_owner_id(owner_id),
			FOREIGN KEY(owner_id) REFERENCES users(id),
			FOREIGN KEY(node_id) REFERENCES nodes(id),
			FOREIGN KEY(egg_id) REFERENCES eggs(id)
		)`,
		`CREATE TABLE IF NOT EXISTS server_logs(
			id        CHAR(36) PRIMARY KEY,
			server_id CHAR(36) NOT NULL,
			content   TEXT NOT NULL,
			timestamp DATETIME(3) NOT NULL,
			INDEX server_logs_server_id(server_id, timestamp)
		)`,
		`CREATE TABLE IF NOT EXISTS allocations(
			id          CHAR(36) PRIMARY KEY,
			node_id     CHAR(36) NOT NULL,
			ip          VARCHAR(45) NOT NULL,
			port        INT NOT NULL,
			alias       VARCHAR(128),
			server_id   CHAR(36),
			is_assigned TINYINT NOT NULL DEFAULT 0,
			created_at  DATETIME(3) NOT NULL,
			INDEX allocations_node_id(node_id),
			FOREIGN KEY(node_id) REFERENCES nodes(id)
		)`,
		`CREATE TABLE IF NOT EXISTS server_databases(
			id              CHAR(36) PRIMARY KEY,
			server_id       CHAR(36) NOT NULL,
			database_name   VARCHAR(64) NOT NULL,
			username        VARCHAR(64) NOT NULL,
			remote          VARCHAR(64) NOT NULL DEFAULT '%',
			max_connections INT NOT NULL DEFAULT 0,
			created_at      DATETIME(3) NOT NULL,
			INDEX server_databases_server_id(server_id),
			FOREIGN KEY(server_id) REFERENCES servers(id)
		)`,
		`CREATE TABLE IF NOT EXISTS server_backups(
			id            CHAR(36) PRIMARY KEY,
			server_id     CHAR(36) NOT NULL,
			name          VARCHAR(128) NOT NULL,
			ignored_files VARCHAR(1024) NOT NULL DEFAULT '',
			checksum      VARCHAR(128) NOT NULL DEFAULT '',
			bytes         BIGINT NOT NULL DEFAULT 0,
			is_successful TINYINT NOT NULL DEFAULT 0,
			is_locked     TINYINT NOT NULL DEFAULT 0,
			completed_at  DATETIME(3),
			created_at    DATETIME(3) NOT NULL,
			INDEX server_backups_server_id(server_id, created_at),
			FOREIGN KEY(server_id) REFERENCES servers(id)
		)`,
		`CREATE TABLE IF NOT EXISTS server_subusers(
			id          CHAR(36) PRIMARY KEY,
			server_id   CHAR(36) NOT NULL,
			user_id     CHAR(36) NOT NULL,
			permissions JSON NOT NULL,
			created_at  DATETIME(3) NOT NULL,
			UNIQUE INDEX server_subusers_pair(server_id, user_id),
			FOREIGN KEY(server_id) REFERENCES servers(id),
			FOREIGN KEY(user_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS activity_logs(
			id          CHAR(36) PRIMARY KEY,
			event       VARCHAR(64) NOT NULL,
			user_id     CHAR(36),
			server_id   CHAR(36),
			description VARCHAR(255) NOT NULL,
			properties  JSON,
			ip_address  VARCHAR(45),
			user_agent  VARCHAR(255),
			timestamp   DATETIME(3) NOT NULL,
			INDEX activity_logs_user_id(user_id, timestamp),
			INDEX activity_logs_server_id(server_id, timestamp)
		)`,
	}

	for _, stmt := range ddl {
		if _, err := a.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// isDupe returns true if the given error is the MySQL duplicate-entry error.
func isDupe(err error) bool {
	if err == nil {
		return false
	}
	var myerr *ms.MySQLError
	return errors.As(err, &myerr) && myerr.Number == 1062
}

func (a *adapter) UserCreate(user *t.User) error {
	_, err := a.db.Exec(
		"INSERT INTO users(id,username,password,email,first_name,last_name,role,language,is_active,created_at,updated_at) "+
			"VALUES(?,?,?,?,?,?,?,?,?,?,?)",
		user.ID, user.Username, user.Password, user.Email, user.FirstName, user.LastName,
		user.Role, user.Language, user.IsActive, user.CreatedAt, user.UpdatedAt)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

func (a *adapter) UserGet(id string) (*t.User, error) {
	var user t.User
	err := a.db.Get(&user, "SELECT * FROM users WHERE id=?", id)
	if err == sql.ErrNoRows {
		return nil, t.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *adapter) UserGetByUsername(username string) (*t.User, error) {
	var user t.User
	err := a.db.Get(&user, "SELECT * FROM users WHERE username=?", username)
	if err == sql.ErrNoRows {
		return nil, t.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *adapter) UserGetAll() ([]t.User, error) {
	var users []t.User
	err := a.db.Select(&users, "SELECT * FROM users ORDER BY created_at")
	return users, err
}

func (a *adapter) UserUpdateLastLogin(id string) error {
	_, err := a.db.Exec("UPDATE users SET last_login_at=? WHERE id=?", t.TimeNow(), id)
	return err
}

func (a *adapter) LocationCreate(loc *t.Location) error {
	_, err := a.db.Exec("INSERT INTO locations(id,short_code,description) VALUES(?,?,?)",
		loc.ID, loc.ShortCode, loc.Description)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

func (a *adapter) LocationGet(id string) (*t.Location, error) {
	var loc t.Location
	err := a.db.Get(&loc, "SELECT * FROM locations WHERE id=?", id)
	if err == sql.ErrNoRows {
		return nil, t.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func (a *adapter) LocationGetAll() ([]t.Location, error) {
	var locs []t.Location
	err := a.db.Select(&locs, "SELECT * FROM locations ORDER BY short_code")
	return locs, err
}

func (a *adapter) NodeCreate(node *t.Node) error {
	_, err := a.db.Exec(
		"INSERT INTO nodes(id,name,fqdn,scheme,location_id,memory,disk,daemon_token,daemon_port,is_online,created_at) "+
			"VALUES(?,?,?,?,?,?,?,?,?,?,?)",
		node.ID, node.Name, node.FQDN, node.Scheme, sqlEmptyNull(node.LocationID), node.Memory, node.Disk,
		node.DaemonToken, node.DaemonPort, node.IsOnline, node.CreatedAt)
	return err
}

func (a *adapter) NodeGet(id string) (*t.Node, error) {
	var node nodeRow
	err := a.db.Get(&node, "SELECT * FROM nodes WHERE id=?", id)
	if err == sql.ErrNoRows {
		return nil, t.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return node.toNode(), nil
}

func (a *adapter) NodeGetAll() ([]t.Node, error) {
	var rows []nodeRow
	if err := a.db.Select(&rows, "SELECT * FROM nodes ORDER BY created_at"); err != nil {
		return nil, err
	}
	nodes := make([]t.Node, len(rows))
	for i := range rows {
		nodes[i] = *rows[i].toNode()
	}
	return nodes, nil
}

func (a *adapter) NodeUpdateStatus(id string, online bool) error {
	_, err := a.db.Exec("UPDATE nodes SET is_online=? WHERE id=?", online, id)
	return err
}

func (a *adapter) EggCreate(egg *t.Egg) error {
	_, err := a.db.Exec(
		"INSERT INTO eggs(id,name,description,docker_image,startup,created_at) VALUES(?,?,?,?,?,?)",
		egg.ID, egg.Name, egg.Description, egg.DockerImage, egg.Startup, egg.CreatedAt)
	return err
}

func (a *adapter) EggGet(id string) (*t.Egg, error) {
	var egg eggRow
	err := a.db.Get(&egg, "SELECT * FROM eggs WHERE id=?", id)
	if err == sql.ErrNoRows {
		return nil, t.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return egg.toEgg(), nil
}

func (a *adapter) EggGetAll() ([]t.Egg, error) {
	var rows []eggRow
	if err := a.db.Select(&rows, "SELECT * FROM eggs ORDER BY created_at"); err != nil {
		return nil, err
	}
	eggs := make([]t.Egg, len(rows))
	for i := range rows {
		eggs[i] = *rows[i].toEgg()
	}
	return eggs, nil
}

func (a *adapter) ServerCreate(server *t.Server) error {
	_, err := a.db.Exec(
		"INSERT INTO servers(id,name,description,owner_id,node_id,egg_id,status,memory,disk,cpu,docker_image,startup,created_at) "+
			"VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)",
		server.ID, server.Name, server.Description, server.OwnerID, server.NodeID, server.EggID,
		server.Status, server.Memory, server.Disk, server.CPU, server.DockerImage, server.Startup,
		server.CreatedAt)
	return err
}

func (a *adapter) ServerGet(id string) (*t.Server, error) {
	var srv serverRow
	err := a.db.Get(&srv, "SELECT * FROM servers WHERE id=?", id)
	if err == sql.ErrNoRows {
		return nil, t.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return srv.toServer(), nil
}

func (a *adapter) ServerGetAll() ([]t.Server, error) {
	var rows []serverRow
	if err := a.db.Select(&rows, "SELECT * FROM servers ORDER BY created_at"); err != nil {
		return nil, err
	}
	return serverRows(rows), nil
}

func (a *adapter) ServerGetByOwner(ownerID string) ([]t.Server, error) {
	var rows []serverRow
	if err := a.db.Select(&rows, "SELECT * FROM servers WHERE owner_id=? ORDER BY created_at", ownerID); err != nil {
		return nil, err
	}
	return serverRows(rows), nil
}

func (a *adapter) ServerUpdateStatus(id, status string) error {
	res, err := a.db.Exec("UPDATE servers SET status=? WHERE id=?", status, id)
	if err != nil {
		return err
	}
	if count, _ := res.RowsAffected(); count == 0 {
		// Verify the server exists: the status may simply be unchanged.
		var one int
		if err = a.db.Get(&one, "SELECT 1 FROM servers WHERE id=?", id); err == sql.ErrNoRows {
			return t.ErrNotFound
		}
		return err
	}
	return nil
}

func (a *adapter) ServerDelete(id string) error {
	res, err := a.db.Exec("DELETE FROM servers WHERE id=?", id)
	if err != nil {
		return err
	}
	if count, _ := res.RowsAffected(); count == 0 {
		return t.ErrNotFound
	}
	return nil
}

func (a *adapter) ServerLogAppend(tlog *t.ServerLog) error {
	_, err := a.db.Exec("INSERT INTO server_logs(id,server_id,content,timestamp) VALUES(?,?,?,?)",
		tlog.ID, tlog.ServerID, tlog.Content, tlog.Timestamp)
	return err
}

func (a *adapter) ServerLogsGet(serverID string, limit int) ([]t.ServerLog, error) {
	if limit <= 0 {
		limit = defaultMaxResults
	}
	var tlogs []t.ServerLog
	err := a.db.Select(&tlogs,
		"SELECT * FROM server_logs WHERE server_id=? ORDER BY timestamp DESC LIMIT ?", serverID, limit)
	return tlogs, err
}

func (a *adapter) AllocationCreate(alloc *t.Allocation) error {
	_, err := a.db.Exec(
		"INSERT INTO allocations(id,node_id,ip,port,alias,server_id,is_assigned,created_at) VALUES(?,?,?,?,?,?,?,?)",
		alloc.ID, alloc.NodeID, alloc.IP, alloc.Port, alloc.Alias, sqlEmptyNull(alloc.ServerID),
		alloc.IsAssigned, alloc.CreatedAt)
	return err
}

func (a *adapter) AllocationGetAll() ([]t.Allocation, error) {
	var rows []allocationRow
	if err := a.db.Select(&rows, "SELECT * FROM allocations ORDER BY created_at"); err != nil {
		return nil, err
	}
	return allocationRows(rows), nil
}

func (a *adapter) AllocationGetByNode(nodeID string) ([]t.Allocation, error) {
	var rows []allocationRow
	if err := a.db.Select(&rows, "SELECT * FROM allocations WHERE node_id=? ORDER BY port", nodeID); err != nil {
		return nil, err
	}
	return allocationRows(rows), nil
}

func (a *adapter) DatabaseCreate(sdb *t.ServerDatabase) error {
	_, err := a.db.Exec(
		"INSERT INTO server_databases(id,server_id,database_name,username,remote,max_connections,created_at) "+
			"VALUES(?,?,?,?,?,?,?)",
		sdb.ID, sdb.ServerID, sdb.DatabaseName, sdb.Username, sdb.Remote, sdb.MaxConnections, sdb.CreatedAt)
	return err
}

func (a *adapter) DatabaseGetByServer(serverID string) ([]t.ServerDatabase, error) {
	var dbs []t.ServerDatabase
	err := a.db.Select(&dbs, "SELECT * FROM server_databases WHERE server_id=? ORDER BY created_at", serverID)
	return dbs, err
}

func (a *adapter) BackupCreate(bkp *t.ServerBackup) error {
	_, err := a.db.Exec(
		"INSERT INTO server_backups(id,server_id,name,ignored_files,checksum,bytes,is_successful,is_locked,completed_at,created_at) "+
			"VALUES(?,?,?,?,?,?,?,?,?,?)",
		bkp.ID, bkp.ServerID, bkp.Name, bkp.IgnoredFiles, bkp.Checksum, bkp.Bytes,
		bkp.IsSuccessful, bkp.IsLocked, bkp.CompletedAt, bkp.CreatedAt)
	return err
}

func (a *adapter) BackupGetByServer(serverID string) ([]t.ServerBackup, error) {
	var bkps []t.ServerBackup
	err := a.db.Select(&bkps,
		"SELECT * FROM server_backups WHERE server_id=? ORDER BY created_at DESC", serverID)
	return bkps, err
}

func (a *adapter) SubuserCreate(sub *t.Subuser) error {
	perms, err := json.Marshal(sub.Permissions)
	if err != nil {
		return err
	}
	_, err = a.db.Exec(
		"INSERT INTO server_subusers(id,server_id,user_id,permissions,created_at) VALUES(?,?,?,?,?)",
		sub.ID, sub.ServerID, sub.UserID, perms, sub.CreatedAt)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

func (a *adapter) SubuserGet(serverID, userID string) (*t.Subuser, error) {
	var row subuserRow
	err := a.db.Get(&row,
		"SELECT * FROM server_subusers WHERE server_id=? AND user_id=?", serverID, userID)
	if err == sql.ErrNoRows {
		return nil, t.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toSubuser()
}

func (a *adapter) SubusersForServer(serverID string) ([]t.Subuser, error) {
	var rows []subuserRow
	if err := a.db.Select(&rows,
		"SELECT * FROM server_subusers WHERE server_id=? ORDER BY created_at", serverID); err != nil {
		return nil, err
	}
	subs := make([]t.Subuser, 0, len(rows))
	for i := range rows {
		sub, err := rows[i].toSubuser()
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, nil
}

func (a *adapter) SubuserDelete(serverID, userID string) error {
	res, err := a.db.Exec("DELETE FROM server_subusers WHERE server_id=? AND user_id=?", serverID, userID)
	if err != nil {
		return err
	}
	if count, _ := res.RowsAffected(); count == 0 {
		return t.ErrNotFound
	}
	return nil
}

func (a *adapter) ActivityCreate(rec *t.ActivityRecord) error {
	props, err := json.Marshal(rec.Properties)
	if err != nil {
		return err
	}
	_, err = a.db.Exec(
		"INSERT INTO activity_logs(id,event,user_id,server_id,description,properties,ip_address,user_agent,timestamp) "+
			"VALUES(?,?,?,?,?,?,?,?,?)",
		rec.ID, rec.Event, sqlEmptyNull(rec.UserID), sqlEmptyNull(rec.ServerID), rec.Description,
		props, rec.IPAddress, rec.UserAgent, rec.Timestamp)
	return err
}

func (a *adapter) ActivityQuery(userID, serverID string, limit int) ([]t.ActivityRecord, error) {
	if limit <= 0 {
		limit = defaultMaxResults
	}

	query := "SELECT * FROM activity_logs"
	args := []any{}
	switch {
	case userID != "" && serverID != "":
		query += " WHERE user_id=? AND server_id=?"
		args = append(args, userID, serverID)
	case userID != "":
		query += " WHERE user_id=?"
		args = append(args, userID)
	case serverID != "":
		query += " WHERE server_id=?"
		args = append(args, serverID)
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	var rows []activityRow
	if err := a.db.Select(&rows, query, args...); err != nil {
		return nil, err
	}
	recs := make([]t.ActivityRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, nil
}

// sqlEmptyNull maps an empty string to NULL for nullable FK columns.
func sqlEmptyNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func init() {
	store.RegisterAdapter(&adapter{})
}
