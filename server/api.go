/******************************************************************************
 *
 *  Description :
 *
 *    Setup of the HTTP API: routing table, authentication and access
 *    control wrappers, JSON response helpers.
 *
 *****************************************************************************/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pylonhost/pylon/server/logs"
	t "github.com/pylonhost/pylon/server/store/types"
)

func writeJSON(wrt http.ResponseWriter, status int, body any) {
	wrt.Header().Set("Content-Type", "application/json; charset=utf-8")
	wrt.WriteHeader(status)
	if err := json.NewEncoder(wrt).Encode(body); err != nil {
		logs.Err.Println("http: failed to write response", err)
	}
}

func writeError(wrt http.ResponseWriter, status int, message string) {
	writeJSON(wrt, status, map[string]string{"error": message})
}

// decodeBody parses a JSON request body into dst.
func decodeBody(req *http.Request, dst any) error {
	defer req.Body.Close()
	return json.NewDecoder(req.Body).Decode(dst)
}

// requireAuth wraps a handler with bearer token authentication. The resolved
// user is attached to the request context.
func requireAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(wrt http.ResponseWriter, req *http.Request) {
		user, err := globals.auth.Authenticate(bearerToken(req))
		if err != nil {
			writeError(wrt, http.StatusUnauthorized, "authentication required")
			return
		}
		handler(wrt, withUser(req, user))
	}
}

// requireAdmin additionally requires the admin role.
func requireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return requireAuth(func(wrt http.ResponseWriter, req *http.Request) {
		if requestUser(req).Role != t.RoleAdmin {
			writeError(wrt, http.StatusForbidden, "admin access required")
			return
		}
		handler(wrt, req)
	})
}

const ctxKeyAccess ctxKey = 2

// requestAccess returns the resolved server access attached to the request.
func requestAccess(req *http.Request) *Access {
	access, _ := req.Context().Value(ctxKeyAccess).(*Access)
	return access
}

// serverAccess resolves access to the server named in the route, writing the
// appropriate error response on failure. A missing server and a denied
// caller are reported distinctly.
func serverAccess(wrt http.ResponseWriter, req *http.Request) (*Access, bool) {
	access, err := resolveAccess(storeAccess{}, requestUser(req), req.PathValue("serverID"))
	if err != nil {
		if errors.Is(err, t.ErrNotFound) {
			writeError(wrt, http.StatusNotFound, "server not found")
		} else {
			logs.Err.Println("http: access resolution failed", err)
			writeError(wrt, http.StatusInternalServerError, "internal error")
		}
		return nil, false
	}
	if !access.Allowed {
		writeError(wrt, http.StatusForbidden, "access denied")
		return nil, false
	}
	return access, true
}

// requireServerAccess requires any standing on the server: owner, admin, or
// a subuser grant with at least one permission.
func requireServerAccess(handler http.HandlerFunc) http.HandlerFunc {
	return requireAuth(func(wrt http.ResponseWriter, req *http.Request) {
		access, ok := serverAccess(wrt, req)
		if !ok {
			return
		}
		handler(wrt, req.WithContext(context.WithValue(req.Context(), ctxKeyAccess, access)))
	})
}

// requireServerPermission requires a specific permission on the server.
// Owners and admins always pass. The denial names the missing permission.
func requireServerPermission(perm string, handler http.HandlerFunc) http.HandlerFunc {
	return requireAuth(func(wrt http.ResponseWriter, req *http.Request) {
		access, ok := serverAccess(wrt, req)
		if !ok {
			return
		}
		if !access.Can(perm) {
			writeError(wrt, http.StatusForbidden, "missing permission: "+perm)
			return
		}
		handler(wrt, req.WithContext(context.WithValue(req.Context(), ctxKeyAccess, access)))
	})
}

// requireServerOwner requires full access: owner or admin.
func requireServerOwner(handler http.HandlerFunc) http.HandlerFunc {
	return requireAuth(func(wrt http.ResponseWriter, req *http.Request) {
		access, ok := serverAccess(wrt, req)
		if !ok {
			return
		}
		if !access.Full {
			writeError(wrt, http.StatusForbidden, "owner access required")
			return
		}
		handler(wrt, req)
	})
}

// newAPIMux builds the routing table.
func newAPIMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", hdlLogin)
	mux.HandleFunc("POST /api/auth/logout", requireAuth(hdlLogout))

	mux.HandleFunc("GET /api/servers", requireAuth(hdlServersList))
	mux.HandleFunc("POST /api/servers", requireAdmin(
		recordActivity("server.create", "Server created", hdlServerCreate)))
	mux.HandleFunc("GET /api/servers/{serverID}", requireServerAccess(hdlServerGet))
	mux.HandleFunc("DELETE /api/servers/{serverID}", requireAdmin(
		recordActivity("server.delete", "Server deleted", hdlServerDelete)))
	mux.HandleFunc("POST /api/servers/{serverID}/power", requireServerPermission(PermServerStart,
		recordActivity("server.power", "Server power action", hdlServerPower)))
	mux.HandleFunc("GET /api/servers/{serverID}/logs",
		requireServerPermission(PermServerConsole, hdlServerLogs))
	mux.HandleFunc("GET /api/servers/{serverID}/databases",
		requireServerPermission(PermDatabaseRead, hdlDatabasesList))
	mux.HandleFunc("POST /api/servers/{serverID}/databases", requireServerPermission(PermDatabaseCreate,
		recordActivity("database.create", "Database created", hdlDatabaseCreate)))
	mux.HandleFunc("GET /api/servers/{serverID}/backups",
		requireServerPermission(PermBackupRead, hdlBackupsList))
	mux.HandleFunc("POST /api/servers/{serverID}/backups", requireServerPermission(PermBackupCreate,
		recordActivity("backup.create", "Backup created", hdlBackupCreate)))
	mux.HandleFunc("GET /api/servers/{serverID}/subusers", requireServerOwner(hdlSubusersList))
	mux.HandleFunc("POST /api/servers/{serverID}/subusers", requireServerOwner(
		recordActivity("subuser.create", "Subuser added", hdlSubuserCreate)))
	mux.HandleFunc("DELETE /api/servers/{serverID}/subusers/{userID}", requireServerOwner(
		recordActivity("subuser.delete", "Subuser removed", hdlSubuserDelete)))
	mux.HandleFunc("GET /api/servers/{serverID}/activity", requireServerAccess(hdlServerActivity))

	mux.HandleFunc("GET /api/nodes", requireAdmin(hdlNodesList))
	mux.HandleFunc("POST /api/nodes", requireAdmin(
		recordActivity("node.create", "Node created", hdlNodeCreate)))
	mux.HandleFunc("GET /api/nodes/{nodeID}/allocations", requireAdmin(hdlNodeAllocations))
	mux.HandleFunc("GET /api/allocations", requireAdmin(hdlAllocationsList))
	mux.HandleFunc("POST /api/allocations", requireAdmin(
		recordActivity("allocation.create", "Allocation created", hdlAllocationCreate)))
	mux.HandleFunc("GET /api/locations", requireAuth(hdlLocationsList))
	mux.HandleFunc("POST /api/locations", requireAdmin(
		recordActivity("location.create", "Location created", hdlLocationCreate)))
	mux.HandleFunc("GET /api/eggs", requireAuth(hdlEggsList))
	mux.HandleFunc("POST /api/eggs", requireAdmin(
		recordActivity("egg.create", "Egg created", hdlEggCreate)))

	mux.HandleFunc("GET /api/activity", requireAuth(hdlActivityList))
	mux.HandleFunc("GET /api/stats", requireAuth(hdlStats))
	mux.HandleFunc("GET /api/permissions", requireAuth(hdlPermissionsList))

	mux.HandleFunc("/ws", serveWebSocket)

	return mux
}
