/******************************************************************************
 *
 *  Description :
 *
 *    Resolution of a user's access to a server. The checks run in a fixed
 *    order: admins bypass all checks, a missing server is reported before
 *    ownership is considered, owners get full access, subusers get the
 *    permissions of their grant.
 *
 *****************************************************************************/

package main

import (
	"errors"

	"github.com/pylonhost/pylon/server/store"
	t "github.com/pylonhost/pylon/server/store/types"
)

// AccessStore is the subset of storage used by access resolution.
type AccessStore interface {
	ServerGet(id string) (*t.Server, error)
	SubuserGet(serverID, userID string) (*t.Subuser, error)
}

// Access is the result of resolving a user's access to a server.
type Access struct {
	// The user may interact with the server at all.
	Allowed bool

	// Full access: the user is an admin or the server's owner.
	Full bool

	// Permissions granted to a subuser. Nil unless the access comes
	// from a subuser grant.
	Permissions []string
}

// Can reports whether the access includes the given permission.
func (a *Access) Can(perm string) bool {
	if !a.Allowed {
		return false
	}
	if a.Full {
		return true
	}
	for _, p := range a.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// resolveAccess determines the user's access to the given server.
// A non-existent server is reported as types.ErrNotFound regardless of who
// is asking, except for admins who bypass the lookup entirely.
func resolveAccess(db AccessStore, user *t.User, serverID string) (*Access, error) {
	if user.Role == t.RoleAdmin {
		return &Access{Allowed: true, Full: true}, nil
	}

	server, err := db.ServerGet(serverID)
	if err != nil {
		return nil, err
	}

	if server.OwnerID == user.ID {
		return &Access{Allowed: true, Full: true}, nil
	}

	sub, err := db.SubuserGet(serverID, user.ID)
	if err != nil {
		if errors.Is(err, t.ErrNotFound) {
			// The server exists but the caller has no grant on it.
			return &Access{}, nil
		}
		return nil, err
	}

	return &Access{Allowed: true, Permissions: sub.Permissions}, nil
}

// storeAccess adapts the storage facade to AccessStore.
type storeAccess struct{}

func (storeAccess) ServerGet(id string) (*t.Server, error) {
	return store.Servers.Get(id)
}

func (storeAccess) SubuserGet(serverID, userID string) (*t.Subuser, error) {
	return store.Subusers.Get(serverID, userID)
}

// resolveServerAccess resolves access for a user known only by ID.
func resolveServerAccess(uid, serverID string) (*Access, error) {
	user, err := store.Users.Get(uid)
	if err != nil {
		return nil, err
	}
	return resolveAccess(storeAccess{}, user, serverID)
}
