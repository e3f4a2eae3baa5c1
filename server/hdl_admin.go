/******************************************************************************
 *
 *  Description :
 *
 *    HTTP handlers for infrastructure resources managed by admins, plus
 *    panel-wide activity, stats and the permission catalog.
 *
 *****************************************************************************/

package main

import (
	"errors"
	"net/http"

	"github.com/pylonhost/pylon/server/logs"
	"github.com/pylonhost/pylon/server/store"
	t "github.com/pylonhost/pylon/server/store/types"
)

func hdlNodesList(wrt http.ResponseWriter, req *http.Request) {
	nodes, err := store.Nodes.GetAll()
	if err != nil {
		logs.Err.Println("http: failed to list nodes", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	if nodes == nil {
		nodes = []t.Node{}
	}
	writeJSON(wrt, http.StatusOK, nodes)
}

func hdlNodeCreate(wrt http.ResponseWriter, req *http.Request) {
	var in struct {
		Name        string `json:"name"`
		FQDN        string `json:"fqdn"`
		Scheme      string `json:"scheme"`
		LocationID  string `json:"locationId"`
		Memory      int    `json:"memory"`
		Disk        int    `json:"disk"`
		DaemonToken string `json:"daemonToken"`
		DaemonPort  int    `json:"daemonPort"`
	}
	if err := decodeBody(req, &in); err != nil || in.Name == "" || in.FQDN == "" {
		writeError(wrt, http.StatusBadRequest, "name and fqdn are required")
		return
	}
	if in.LocationID != "" {
		if _, err := store.Locations.Get(in.LocationID); err != nil {
			writeError(wrt, http.StatusBadRequest, "unknown location")
			return
		}
	}

	node := &t.Node{
		Name:        in.Name,
		FQDN:        in.FQDN,
		Scheme:      in.Scheme,
		LocationID:  in.LocationID,
		Memory:      in.Memory,
		Disk:        in.Disk,
		DaemonToken: in.DaemonToken,
		DaemonPort:  in.DaemonPort,
	}
	if _, err := store.Nodes.Create(node); err != nil {
		logs.Err.Println("http: failed to create node", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(wrt, http.StatusCreated, node)
}

func hdlNodeAllocations(wrt http.ResponseWriter, req *http.Request) {
	allocs, err := store.Allocations.GetByNode(req.PathValue("nodeID"))
	if err != nil {
		logs.Err.Println("http: failed to list node allocations", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	if allocs == nil {
		allocs = []t.Allocation{}
	}
	writeJSON(wrt, http.StatusOK, allocs)
}

func hdlAllocationsList(wrt http.ResponseWriter, req *http.Request) {
	allocs, err := store.Allocations.GetAll()
	if err != nil {
		logs.Err.Println("http: failed to list allocations", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	if allocs == nil {
		allocs = []t.Allocation{}
	}
	writeJSON(wrt, http.StatusOK, allocs)
}

func hdlAllocationCreate(wrt http.ResponseWriter, req *http.Request) {
	var in struct {
		NodeID string `json:"nodeId"`
		IP     string `json:"ip"`
		Port   int    `json:"port"`
		Alias  string `json:"alias"`
	}
	if err := decodeBody(req, &in); err != nil || in.NodeID == "" || in.IP == "" || in.Port == 0 {
		writeError(wrt, http.StatusBadRequest, "nodeId, ip and port are required")
		return
	}
	if _, err := store.Nodes.Get(in.NodeID); err != nil {
		writeError(wrt, http.StatusBadRequest, "unknown node")
		return
	}

	alloc := &t.Allocation{
		NodeID: in.NodeID,
		IP:     in.IP,
		Port:   in.Port,
		Alias:  in.Alias,
	}
	if _, err := store.Allocations.Create(alloc); err != nil {
		logs.Err.Println("http: failed to create allocation", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(wrt, http.StatusCreated, alloc)
}

func hdlLocationsList(wrt http.ResponseWriter, req *http.Request) {
	locs, err := store.Locations.GetAll()
	if err != nil {
		logs.Err.Println("http: failed to list locations", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	if locs == nil {
		locs = []t.Location{}
	}
	writeJSON(wrt, http.StatusOK, locs)
}

func hdlLocationCreate(wrt http.ResponseWriter, req *http.Request) {
	var in struct {
		ShortCode   string `json:"shortCode"`
		Description string `json:"description"`
	}
	if err := decodeBody(req, &in); err != nil || in.ShortCode == "" {
		writeError(wrt, http.StatusBadRequest, "shortCode is required")
		return
	}

	loc := &t.Location{ShortCode: in.ShortCode, Description: in.Description}
	if _, err := store.Locations.Create(loc); err != nil {
		if errors.Is(err, t.ErrDuplicate) {
			writeError(wrt, http.StatusConflict, "location already exists")
		} else {
			logs.Err.Println("http: failed to create location", err)
			writeError(wrt, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(wrt, http.StatusCreated, loc)
}

func hdlEggsList(wrt http.ResponseWriter, req *http.Request) {
	eggs, err := store.Eggs.GetAll()
	if err != nil {
		logs.Err.Println("http: failed to list eggs", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	if eggs == nil {
		eggs = []t.Egg{}
	}
	writeJSON(wrt, http.StatusOK, eggs)
}

func hdlEggCreate(wrt http.ResponseWriter, req *http.Request) {
	var in struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		DockerImage string `json:"dockerImage"`
		Startup     string `json:"startup"`
	}
	if err := decodeBody(req, &in); err != nil || in.Name == "" || in.DockerImage == "" {
		writeError(wrt, http.StatusBadRequest, "name and dockerImage are required")
		return
	}

	egg := &t.Egg{
		Name:        in.Name,
		Description: in.Description,
		DockerImage: in.DockerImage,
		Startup:     in.Startup,
	}
	if _, err := store.Eggs.Create(egg); err != nil {
		logs.Err.Println("http: failed to create egg", err)
		writeError(wrt, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(wrt, http.StatusCreated, egg)
}

// hdlActivityList returns the caller's own activity, or everything for
// admins.
func hdlActivityList(wrt http.ResponseWriter, req *http.Request) {
	user := requestUser(req)

	userID := user.ID
	if user.Role == t.RoleAdmin {
		userID = req.URL.Query().Get("userId")
	}
	recs, err := store.Activity.Query(userID, "", queryLimit(req))
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

func hdlStats(wrt http.ResponseWriter, req *http.Request) {
	writeJSON(wrt, http.StatusOK, statsSnapshot())
}

func hdlPermissionsList(wrt http.ResponseWriter, req *http.Request) {
	writeJSON(wrt, http.StatusOK, permissionCatalog)
}
