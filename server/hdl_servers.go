/******************************************************************************
 *
 *  Description :
 *
 *    HTTP handlers for server resources: listing, provisioning, power
 *    actions, console logs, databases, backups, subusers, activity.
 *
 *****************************************************************************/

package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/pylonhost/pylon/server/logs"
	"github.com/pylonhost/pylon/server/store"
	t "github.com/pylonhost/pylon/server/store/types"
)

// queryLimit parses the optional ?limit= parameter.
func queryLimit(req *http.Request) int {
	if limit, err := strconv.Atoi(req.URL.Query().Get("limit")); err == nil && limit > 0 {
		return limit
	}
	return 0
}

func hdlServersList(wrt http.ResponseWriter, req *http.Request) {
	user := requestUser(req)

	var servers []t.Server
	var err error
	if user.Role == t.RoleAdmin {
		servers, err = store.Servers.GetAll()
	} else {
		servers, err = store.Servers.GetByOwner(user.ID)
	}
	if err != nil {
		logs.Err.Println("http: failed to list servers", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	if servers == nil {
		servers = []t.Server{}
	}
	writeJSON(wrt, http.StatusOK, servers)
}

func hdlServerCreate(wrt http.ResponseWriter, req *http.Request) {
	var in struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		OwnerID     string `json:"ownerId"`
		NodeID      string `json:"nodeId"`
		EggID       string `json:"eggId"`
		Memory      int    `json:"memory"`
		Disk        int    `json:"disk"`
		CPU         int    `json:"cpu"`
		DockerImage string `json:"dockerImage"`
		Startup     string `json:"startup"`
	}
	if err := decodeBody(req, &in); err != nil {
		writeError(wrt, http.StatusBadRequest, "malformed request body")
		return
	}
	if in.Name == "" || in.OwnerID == "" || in.NodeID == "" || in.EggID == "" {
		writeError(wrt, http.StatusBadRequest, "name, ownerId, nodeId and eggId are required")
		return
	}

	if _, err := store.Users.Get(in.OwnerID); err != nil {
		writeError(wrt, http.StatusBadRequest, "unknown owner")
		return
	}
	if _, err := store.Nodes.Get(in.NodeID); err != nil {
		writeError(wrt, http.StatusBadRequest, "unknown node")
		return
	}
	egg, err := store.Eggs.Get(in.EggID)
	if err != nil {
		writeError(wrt, http.StatusBadRequest, "unknown egg")
		return
	}

	// Image and startup default to the egg's values.
	if in.DockerImage == "" {
		in.DockerImage = egg.DockerImage
	}
	if in.Startup == "" {
		in.Startup = egg.Startup
	}

	server := &t.Server{
		Name:        in.Name,
		Description: in.Description,
		OwnerID:     in.OwnerID,
		NodeID:      in.NodeID,
		EggID:       in.EggID,
		Memory:      in.Memory,
		Disk:        in.Disk,
		CPU:         in.CPU,
		DockerImage: in.DockerImage,
		Startup:     in.Startup,
	}
	if _, err = store.Servers.Create(server); err != nil {
		logs.Err.Println("http: failed to create server", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(wrt, http.StatusCreated, server)
}

func hdlServerGet(wrt http.ResponseWriter, req *http.Request) {
	server, err := store.Servers.Get(req.PathValue("serverID"))
	if err != nil {
		// Admins bypass the access resolver's lookup.
		if errors.Is(err, t.ErrNotFound) {
			writeError(wrt, http.StatusNotFound, "server not found")
		} else {
			logs.Err.Println("http: failed to fetch server", err)
			writeError(wrt, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(wrt, http.StatusOK, server)
}

func hdlServerDelete(wrt http.ResponseWriter, req *http.Request) {
	serverID := req.PathValue("serverID")
	if err := store.Servers.Delete(serverID); err != nil {
		if errors.Is(err, t.ErrNotFound) {
			writeError(wrt, http.StatusNotFound, "server not found")
		} else {
			logs.Err.Println("http: failed to delete server", err)
			writeError(wrt, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(wrt, http.StatusOK, map[string]string{"message": "server deleted"})
}

// Power actions and the statuses they transition through.
var powerTransitions = map[string][2]string{
	"start":   {t.StatusStarting, t.StatusOnline},
	"stop":    {t.StatusStopping, t.StatusOffline},
	"restart": {t.StatusStarting, t.StatusOnline},
}

func hdlServerPower(wrt http.ResponseWriter, req *http.Request) {
	var in struct {
		Action string `json:"action"`
	}
	if err := decodeBody(req, &in); err != nil {
		writeError(wrt, http.StatusBadRequest, "malformed request body")
		return
	}
	transition, ok := powerTransitions[in.Action]
	if !ok {
		writeError(wrt, http.StatusBadRequest, "action must be start, stop or restart")
		return
	}

	serverID := req.PathValue("serverID")
	if _, err := store.Servers.Get(serverID); err != nil {
		if errors.Is(err, t.ErrNotFound) {
			writeError(wrt, http.StatusNotFound, "server not found")
		} else {
			logs.Err.Println("http: failed to fetch server", err)
			writeError(wrt, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if !globals.pending.begin(serverID) {
		writeError(wrt, http.StatusConflict, "a power action is already in progress")
		return
	}

	intermediate, final := transition[0], transition[1]
	if err := store.Servers.UpdateStatus(serverID, intermediate); err != nil {
		globals.pending.end(serverID)
		logs.Err.Println("http: failed to update server status", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}

	broadcastServerLog(serverID, "Server "+in.Action+" requested by "+requestUser(req).Username)
	broadcastStatusUpdate(serverID, intermediate, in.Action)

	globals.sched.AfterFunc(globals.powerSettleDelay, func() {
		defer globals.pending.end(serverID)

		// The server may have been deleted while the timer was pending.
		if _, err := store.Servers.Get(serverID); err != nil {
			return
		}
		if err := store.Servers.UpdateStatus(serverID, final); err != nil {
			logs.Err.Println("power: failed to settle server status", serverID, err)
			return
		}
		broadcastStatusUpdate(serverID, final, "")
	})

	writeJSON(wrt, http.StatusOK, map[string]string{"status": intermediate})
}

func hdlServerLogs(wrt http.ResponseWriter, req *http.Request) {
	tlogs, err := store.ServerLogs.Get(req.PathValue("serverID"), queryLimit(req))
	if err != nil {
		logs.Err.Println("http: failed to fetch server logs", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	if tlogs == nil {
		tlogs = []t.ServerLog{}
	}
	writeJSON(wrt, http.StatusOK, tlogs)
}

func hdlDatabasesList(wrt http.ResponseWriter, req *http.Request) {
	dbs, err := store.Databases.GetByServer(req.PathValue("serverID"))
	if err != nil {
		logs.Err.Println("http: failed to list databases", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	if dbs == nil {
		dbs = []t.ServerDatabase{}
	}
	writeJSON(wrt, http.StatusOK, dbs)
}

func hdlDatabaseCreate(wrt http.ResponseWriter, req *http.Request) {
	var in struct {
		DatabaseName   string `json:"databaseName"`
		Username       string `json:"username"`
		Remote         string `json:"remote"`
		MaxConnections int    `json:"maxConnections"`
	}
	if err := decodeBody(req, &in); err != nil || in.DatabaseName == "" || in.Username == "" {
		writeError(wrt, http.StatusBadRequest, "databaseName and username are required")
		return
	}

	sdb := &t.ServerDatabase{
		ServerID:       req.PathValue("serverID"),
		DatabaseName:   in.DatabaseName,
		Username:       in.Username,
		Remote:         in.Remote,
		MaxConnections: in.MaxConnections,
	}
	if _, err := store.Databases.Create(sdb); err != nil {
		logs.Err.Println("http: failed to create database", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(wrt, http.StatusCreated, sdb)
}

func hdlBackupsList(wrt http.ResponseWriter, req *http.Request) {
	bkps, err := store.Backups.GetByServer(req.PathValue("serverID"))
	if err != nil {
		logs.Err.Println("http: failed to list backups", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	if bkps == nil {
		bkps = []t.ServerBackup{}
	}
	writeJSON(wrt, http.StatusOK, bkps)
}

func hdlBackupCreate(wrt http.ResponseWriter, req *http.Request) {
	var in struct {
		Name         string `json:"name"`
		IgnoredFiles string `json:"ignoredFiles"`
	}
	if err := decodeBody(req, &in); err != nil || in.Name == "" {
		writeError(wrt, http.StatusBadRequest, "name is required")
		return
	}

	// There is no real backup backend; a created backup completes at once.
	now := t.TimeNow()
	bkp := &t.ServerBackup{
		ServerID:     req.PathValue("serverID"),
		Name:         in.Name,
		IgnoredFiles: in.IgnoredFiles,
		IsSuccessful: true,
		CompletedAt:  &now,
	}
	if _, err := store.Backups.Create(bkp); err != nil {
		logs.Err.Println("http: failed to create backup", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(wrt, http.StatusCreated, bkp)
}

func hdlSubusersList(wrt http.ResponseWriter, req *http.Request) {
	subs, err := store.Subusers.GetByServer(req.PathValue("serverID"))
	if err != nil {
		logs.Err.Println("http: failed to list subusers", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	if subs == nil {
		subs = []t.Subuser{}
	}
	writeJSON(wrt, http.StatusOK, subs)
}

func hdlSubuserCreate(wrt http.ResponseWriter, req *http.Request) {
	var in struct {
		UserID      string   `json:"userId"`
		Permissions []string `json:"permissions"`
	}
	if err := decodeBody(req, &in); err != nil || in.UserID == "" {
		writeError(wrt, http.StatusBadRequest, "userId is required")
		return
	}
	if unknown := validatePermissions(in.Permissions); unknown != "" {
		writeError(wrt, http.StatusBadRequest, "unknown permission: "+unknown)
		return
	}
	if _, err := store.Users.Get(in.UserID); err != nil {
		writeError(wrt, http.StatusBadRequest, "unknown user")
		return
	}

	sub := &t.Subuser{
		ServerID:    req.PathValue("serverID"),
		UserID:      in.UserID,
		Permissions: in.Permissions,
	}
	if _, err := store.Subusers.Create(sub); err != nil {
		if errors.Is(err, t.ErrDuplicate) {
			writeError(wrt, http.StatusConflict, "user is already a subuser of this server")
		} else {
			logs.Err.Println("http: failed to create subuser", err)
			writeError(wrt, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(wrt, http.StatusCreated, sub)
}

func hdlSubuserDelete(wrt http.ResponseWriter, req *http.Request) {
	err := store.Subusers.Delete(req.PathValue("serverID"), req.PathValue("userID"))
	if err != nil {
		if errors.Is(err, t.ErrNotFound) {
			writeError(wrt, http.StatusNotFound, "subuser not found")
		} else {
			logs.Err.Println("http: failed to delete subuser", err)
			writeError(wrt, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(wrt, http.StatusOK, map[string]string{"message": "subuser removed"})
}

func hdlServerActivity(wrt http.ResponseWriter, req *http.Request) {
	recs, err := store.Activity.Query("", req.PathValue("serverID"), queryLimit(req))
	if err != nil {
		logs.Err.Println("http: failed to query activity", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	if recs == nil {
		recs = []t.ActivityRecord{}
	}
	writeJSON(wrt, http.StatusOK, recs)
}
