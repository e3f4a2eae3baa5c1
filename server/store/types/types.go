// Package types declares entities stored in the database and errors
// the storage layer reports to its callers.
package types

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested object does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("duplicate value")
	// ErrMalformed is returned when an object fails basic validation.
	ErrMalformed = errors.New("malformed object")
)

// Role is the panel-wide standing of a user account.
type Role string

const (
	// RoleAdmin bypasses all ownership and grant checks.
	RoleAdmin Role = "admin"
	// RoleUser is a standard account: owns servers, may hold grants on others.
	RoleUser Role = "user"
)

// Server power states.
const (
	StatusOffline  = "offline"
	StatusOnline   = "online"
	StatusStarting = "starting"
	StatusStopping = "stopping"
)

// User is an authenticated panel account.
type User struct {
	ID          string     `json:"id" db:"id"`
	Username    string     `json:"username" db:"username"`
	Password    string     `json:"-" db:"password"`
	Email       string     `json:"email" db:"email"`
	FirstName   string     `json:"firstName,omitempty" db:"first_name"`
	LastName    string     `json:"lastName,omitempty" db:"last_name"`
	Role        Role       `json:"role" db:"role"`
	Language    string     `json:"language" db:"language"`
	IsActive    bool       `json:"isActive" db:"is_active"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

// Location is a physical or logical placement group for nodes.
type Location struct {
	ID          string `json:"id" db:"id"`
	ShortCode   string `json:"shortCode" db:"short_code"`
	Description string `json:"description" db:"description"`
}

// Node is a daemon host servers are placed on.
type Node struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	FQDN        string    `json:"fqdn" db:"fqdn"`
	Scheme      string    `json:"scheme" db:"scheme"`
	LocationID  string    `json:"locationId,omitempty" db:"location_id"`
	Memory      int       `json:"memory" db:"memory"`
	Disk        int       `json:"disk" db:"disk"`
	DaemonToken string    `json:"-" db:"daemon_token"`
	DaemonPort  int       `json:"daemonPort" db:"daemon_port"`
	IsOnline    bool      `json:"isOnline" db:"is_online"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Egg is a reusable launch template for servers.
type Egg struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	DockerImage string    `json:"dockerImage" db:"docker_image"`
	Startup     string    `json:"startup" db:"startup"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Server is the unit of ownership and access control.
type Server struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	OwnerID     string    `json:"ownerId" db:"owner_id"`
	NodeID      string    `json:"nodeId" db:"node_id"`
	EggID       string    `json:"eggId" db:"egg_id"`
	Status      string    `json:"status" db:"status"`
	Memory      int       `json:"memory" db:"memory"`
	Disk        int       `json:"disk" db:"disk"`
	CPU         int       `json:"cpu" db:"cpu"`
	DockerImage string    `json:"dockerImage" db:"docker_image"`
	Startup     string    `json:"startup" db:"startup"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// ServerLog is one line of console output attributed to a server.
type ServerLog struct {
	ID        string    `json:"id" db:"id"`
	ServerID  string    `json:"serverId" db:"server_id"`
	Content   string    `json:"content" db:"content"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// Allocation is an IP:port pair belonging to a node, optionally assigned
// to a server.
type Allocation struct {
	ID         string    `json:"id" db:"id"`
	NodeID     string    `json:"nodeId" db:"node_id"`
	IP         string    `json:"ip" db:"ip"`
	Port       int       `json:"port" db:"port"`
	Alias      string    `json:"alias,omitempty" db:"alias"`
	ServerID   string    `json:"serverId,omitempty" db:"server_id"`
	IsAssigned bool      `json:"isAssigned" db:"is_assigned"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// ServerDatabase is a database provisioned for a server.
type ServerDatabase struct {
	ID             string    `json:"id" db:"id"`
	ServerID       string    `json:"serverId" db:"server_id"`
	DatabaseName   string    `json:"databaseName" db:"database_name"`
	Username       string    `json:"username" db:"username"`
	Remote         string    `json:"remote" db:"remote"`
	MaxConnections int       `json:"maxConnections" db:"max_connections"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// ServerBackup is a point-in-time archive of a server's files.
type ServerBackup struct {
	ID           string     `json:"id" db:"id"`
	ServerID     string     `json:"serverId" db:"server_id"`
	Name         string     `json:"name" db:"name"`
	IgnoredFiles string     `json:"ignoredFiles,omitempty" db:"ignored_files"`
	Checksum     string     `json:"checksum,omitempty" db:"checksum"`
	Bytes        int64      `json:"bytes" db:"bytes"`
	IsSuccessful bool       `json:"isSuccessful" db:"is_successful"`
	IsLocked     bool       `json:"isLocked" db:"is_locked"`
	CompletedAt  *time.Time `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
}

// Subuser is a delegated, permission-scoped grant for a non-owner user
// on a specific server. A user holds at most one grant per server.
type Subuser struct {
	ID          string    `json:"id" db:"id"`
	ServerID    string    `json:"serverId" db:"server_id"`
	UserID      string    `json:"userId" db:"user_id"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// HasPermission tests membership in the grant's permission set.
func (su *Subuser) HasPermission(perm string) bool {
	for _, p := range su.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// ActivityRecord is an immutable audit entry describing a completed
// privileged operation.
type ActivityRecord struct {
	ID          string         `json:"id" db:"id"`
	Event       string         `json:"event" db:"event"`
	UserID      string         `json:"userId,omitempty" db:"user_id"`
	ServerID    string         `json:"serverId,omitempty" db:"server_id"`
	Description string         `json:"description" db:"description"`
	Properties  map[string]any `json:"properties"`
	IPAddress   string         `json:"ipAddress,omitempty" db:"ip_address"`
	UserAgent   string         `json:"userAgent,omitempty" db:"user_agent"`
	Timestamp   time.Time      `json:"timestamp" db:"timestamp"`
}

// TimeNow returns current wall time in UTC rounded to milliseconds.
func TimeNow() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
