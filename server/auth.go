/******************************************************************************
 *
 *  Description :
 *
 *    Authentication of API users: password login, bearer tokens with
 *    expiration, token validation.
 *
 *****************************************************************************/

package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pylonhost/pylon/server/logs"
	"github.com/pylonhost/pylon/server/store"
	t "github.com/pylonhost/pylon/server/store/types"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInvalidToken       = errors.New("invalid or expired token")
	errUserSuspended      = errors.New("user account is suspended")
)

type tokenEntry struct {
	uid     string
	expires time.Time
}

// Authenticator issues and validates bearer tokens. Tokens are opaque and
// held in memory: a restart invalidates all of them.
type Authenticator struct {
	lock sync.Mutex

	tokens   map[string]*tokenEntry
	lifetime time.Duration
}

func newAuthenticator(lifetime time.Duration) *Authenticator {
	return &Authenticator{
		tokens:   make(map[string]*tokenEntry),
		lifetime: lifetime,
	}
}

// Login validates the credentials and returns a new bearer token.
func (au *Authenticator) Login(username, password string) (string, *t.User, error) {
	user, err := store.Users.GetByUsername(username)
	if err != nil {
		if errors.Is(err, t.ErrNotFound) {
			return "", nil, errInvalidCredentials
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return "", nil, errInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, errUserSuspended
	}

	token := store.GetUid()
	au.lock.Lock()
	au.tokens[token] = &tokenEntry{uid: user.ID, expires: t.TimeNow().Add(au.lifetime)}
	au.lock.Unlock()

	if err = store.Users.UpdateLastLogin(user.ID); err != nil {
		logs.Warn.Println("auth: failed to update last login", user.ID, err)
	}

	return token, user, nil
}

// Logout invalidates the token. Unknown tokens are ignored.
func (au *Authenticator) Logout(token string) {
	au.lock.Lock()
	delete(au.tokens, token)
	au.lock.Unlock()
}

// Authenticate resolves a bearer token to its user.
func (au *Authenticator) Authenticate(token string) (*t.User, error) {
	if token == "" {
		return nil, errInvalidToken
	}

	au.lock.Lock()
	entry := au.tokens[token]
	if entry != nil && t.TimeNow().After(entry.expires) {
		delete(au.tokens, token)
		entry = nil
	}
	au.lock.Unlock()

	if entry == nil {
		return nil, errInvalidToken
	}

	user, err := store.Users.Get(entry.uid)
	if err != nil {
		return nil, errInvalidToken
	}
	if !user.IsActive {
		return nil, errUserSuspended
	}
	return user, nil
}

// TokenUID maps a token to its user ID without hitting storage. Returns an
// empty string for unknown or expired tokens.
func (au *Authenticator) TokenUID(token string) string {
	if token == "" {
		return ""
	}
	au.lock.Lock()
	defer au.lock.Unlock()

	if entry := au.tokens[token]; entry != nil && t.TimeNow().Before(entry.expires) {
		return entry.uid
	}
	return ""
}

// hdlLogin handles POST /api/auth/login.
func hdlLogin(wrt http.ResponseWriter, req *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(req, &creds); err != nil || creds.Username == "" || creds.Password == "" {
		writeError(wrt, http.StatusBadRequest, "username and password are required")
		return
	}

	token, user, err := globals.auth.Login(creds.Username, creds.Password)
	if err != nil {
		switch {
		case errors.Is(err, errInvalidCredentials):
			writeError(wrt, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, errUserSuspended):
			writeError(wrt, http.StatusForbidden, "account suspended")
		default:
			logs.Err.Println("auth: login failed", err)
			writeError(wrt, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(wrt, http.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}

// hdlLogout handles POST /api/auth/logout.
func hdlLogout(wrt http.ResponseWriter, req *http.Request) {
	globals.auth.Logout(bearerToken(req))
	writeJSON(wrt, http.StatusOK, map[string]string{"message": "logged out"})
}

// bearerToken extracts the token from the Authorization or X-Auth-Token
// header.
func bearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return req.Header.Get("X-Auth-Token")
}

type ctxKey int

const ctxKeyUser ctxKey = 1

// requestUser returns the authenticated user attached to the request, or nil.
func requestUser(req *http.Request) *t.User {
	user, _ := req.Context().Value(ctxKeyUser).(*t.User)
	return user
}

func requestUserID(req *http.Request) string {
	if user := requestUser(req); user != nil {
		return user.ID
	}
	return ""
}

// withUser attaches the authenticated user to the request context.
func withUser(req *http.Request, user *t.User) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), ctxKeyUser, user))
}
