package main

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	types "github.com/pylonhost/pylon/server/store/types"
)

func seedUser(tb testing.TB, username, password string, active bool) *types.User {
	tb.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		tb.Fatal(err)
	}
	user := &types.User{
		ID:       "u-" + username,
		Username: username,
		Password: string(hash),
		Role:     types.RoleUser,
		IsActive: active,
	}
	if err = testAdapter.UserCreate(user); err != nil {
		tb.Fatal(err)
	}
	return user
}

func TestLoginAndAuthenticate(t *testing.T) {
	defer testAdapter.reset()
	seedUser(t, "alice", "s3cret", true)

	au := newAuthenticator(time.Hour)

	token, user, err := au.Login("alice", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if token == "" || user.Username != "alice" {
		t.Fatalf("token = %q, user = %+v", token, user)
	}

	resolved, err := au.Authenticate(token)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.ID != user.ID {
		t.Errorf("authenticated user = %s, want %s", resolved.ID, user.ID)
	}

	au.Logout(token)
	if _, err = au.Authenticate(token); !errors.Is(err, errInvalidToken) {
		t.Errorf("err after logout = %v, want errInvalidToken", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	defer testAdapter.reset()
	seedUser(t, "alice", "s3cret", true)

	au := newAuthenticator(time.Hour)

	if _, _, err := au.Login("alice", "wrong"); !errors.Is(err, errInvalidCredentials) {
		t.Errorf("wrong password: err = %v", err)
	}
	if _, _, err := au.Login("nobody", "s3cret"); !errors.Is(err, errInvalidCredentials) {
		t.Errorf("unknown user: err = %v", err)
	}
}

func TestLoginRejectsSuspendedUser(t *testing.T) {
	defer testAdapter.reset()
	seedUser(t, "mallory", "s3cret", false)

	au := newAuthenticator(time.Hour)

	if _, _, err := au.Login("mallory", "s3cret"); !errors.Is(err, errUserSuspended) {
		t.Errorf("suspended user: err = %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	defer testAdapter.reset()
	seedUser(t, "alice", "s3cret", true)

	au := newAuthenticator(time.Millisecond)

	token, _, err := au.Login("alice", "s3cret")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(5 * time.Millisecond)
	if _, err = au.Authenticate(token); !errors.Is(err, errInvalidToken) {
		t.Errorf("expired token: err = %v, want errInvalidToken", err)
	}
	if uid := au.TokenUID(token); uid != "" {
		t.Errorf("TokenUID on expired token = %q, want empty", uid)
	}
}
