package mysql

import (
	"database/sql"
	"encoding/json"
	"time"

	t "github.com/pylonhost/pylon/server/store/types"
)

// Scan targets for tables with nullable columns. sqlx cannot scan NULL into
// plain strings, so these intermediate rows carry sql.Null* fields and
// convert to the store types.

type nodeRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	FQDN        string         `db:"fqdn"`
	Scheme      string         `db:"scheme"`
	LocationID  sql.NullString `db:"location_id"`
	Memory      int            `db:"memory"`
	Disk        int            `db:"disk"`
	DaemonToken string         `db:"daemon_token"`
	DaemonPort  int            `db:"daemon_port"`
	IsOnline    bool           `db:"is_online"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r *nodeRow) toNode() *t.Node {
	return &t.Node{
		ID:          r.ID,
		Name:        r.Name,
		FQDN:        r.FQDN,
		Scheme:      r.Scheme,
		LocationID:  r.LocationID.String,
		Memory:      r.Memory,
		Disk:        r.Disk,
		DaemonToken: r.DaemonToken,
		DaemonPort:  r.DaemonPort,
		IsOnline:    r.IsOnline,
		CreatedAt:   r.CreatedAt,
	}
}

type eggRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	DockerImage string         `db:"docker_image"`
	Startup     string         `db:"startup"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r *eggRow) toEgg() *t.Egg {
	return &t.Egg{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		DockerImage: r.DockerImage,
		Startup:     r.Startup,
		CreatedAt:   r.CreatedAt,
	}
}

type serverRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	OwnerID     string         `db:"owner_id"`
	NodeID      string         `db:"node_id"`
	EggID       string         `db:"egg_id"`
	Status      string         `db:"status"`
	Memory      int            `db:"memory"`
	Disk        int            `db:"disk"`
	CPU         int            `db:"cpu"`
	DockerImage string         `db:"docker_image"`
	Startup     string         `db:"startup"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r *serverRow) toServer() *t.Server {
	return &t.Server{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		OwnerID:     r.OwnerID,
		NodeID:      r.NodeID,
		EggID:       r.EggID,
		Status:      r.Status,
		Memory:      r.Memory,
		Disk:        r.Disk,
		CPU:         r.CPU,
		DockerImage: r.DockerImage,
		Startup:     r.Startup,
		CreatedAt:   r.CreatedAt,
	}
}

func serverRows(rows []serverRow) []t.Server {
	servers := make([]t.Server, len(rows))
	for i := range rows {
		servers[i] = *rows[i].toServer()
	}
	return servers
}

type allocationRow struct {
	ID         string         `db:"id"`
	NodeID     string         `db:"node_id"`
	IP         string         `db:"ip"`
	Port       int            `db:"port"`
	Alias      sql.NullString `db:"alias"`
	ServerID   sql.NullString `db:"server_id"`
	IsAssigned bool           `db:"is_assigned"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r *allocationRow) toAllocation() *t.Allocation {
	return &t.Allocation{
		ID:         r.ID,
		NodeID:     r.NodeID,
		IP:         r.IP,
		Port:       r.Port,
		Alias:      r.Alias.String,
		ServerID:   r.ServerID.String,
		IsAssigned: r.IsAssigned,
		CreatedAt:  r.CreatedAt,
	}
}

func allocationRows(rows []allocationRow) []t.Allocation {
	allocs := make([]t.Allocation, len(rows))
	for i := range rows {
		allocs[i] = *rows[i].toAllocation()
	}
	return allocs
}

type subuserRow struct {
	ID          string    `db:"id"`
	ServerID    string    `db:"server_id"`
	UserID      string    `db:"user_id"`
	Permissions []byte    `db:"permissions"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r *subuserRow) toSubuser() (*t.Subuser, error) {
	sub := &t.Subuser{
		ID:        r.ID,
		ServerID:  r.ServerID,
		UserID:    r.UserID,
		CreatedAt: r.CreatedAt,
	}
	if len(r.Permissions) > 0 {
		if err := json.Unmarshal(r.Permissions, &sub.Permissions); err != nil {
			return nil, err
		}
	}
	if sub.Permissions == nil {
		sub.Permissions = []string{}
	}
	return sub, nil
}

type activityRow struct {
	ID          string         `db:"id"`
	Event       string         `db:"event"`
	UserID      sql.NullString `db:"user_id"`
	ServerID    sql.NullString `db:"server_id"`
	Description string         `db:"description"`
	Properties  []byte         `db:"properties"`
	IPAddress   sql.NullString `db:"ip_address"`
	UserAgent   sql.NullString `db:"user_agent"`
	Timestamp   time.Time      `db:"timestamp"`
}

func (r *activityRow) toRecord() (*t.ActivityRecord, error) {
	rec := &t.ActivityRecord{
		ID:          r.ID,
		Event:       r.Event,
		UserID:      r.UserID.String,
		ServerID:    r.ServerID.String,
		Description: r.Description,
		IPAddress:   r.IPAddress.String,
		UserAgent:   r.UserAgent.String,
		Timestamp:   r.Timestamp,
	}
	if len(r.Properties) > 0 {
		if err := json.Unmarshal(r.Properties, &rec.Properties); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
