package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	types "github.com/pylonhost/pylon/server/store/types"
)

func TestRequireAuthRejectsAnonymous(t *testing.T) {
	handler := requireAuth(func(wrt http.ResponseWriter, req *http.Request) {
		t.Error("handler must not run without a token")
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/servers", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireServerPermissionNamesMissingPermission(t *testing.T) {
	defer testAdapter.reset()
	seedServer(t, "u-owner", "srv-1")
	seedUser(t, "bob", "s3cret", true)
	if err := testAdapter.SubuserCreate(&types.Subuser{
		ServerID: "srv-1", UserID: "u-bob", Permissions: []string{PermServerConsole},
	}); err != nil {
		t.Fatal(err)
	}

	token, _, err := globals.auth.Login("bob", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	defer globals.auth.Logout(token)

	handler := requireServerPermission(PermServerStart,
		func(wrt http.ResponseWriter, req *http.Request) {
			t.Error("handler must not run without the permission")
		})

	req := httptest.NewRequest(http.MethodPost, "/api/servers/srv-1/power", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.SetPathValue("serverID", "srv-1")

	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), PermServerStart) {
		t.Errorf("denial %q does not name the missing permission", rec.Body.String())
	}
}

func TestRequireServerAccessDistinguishesNotFound(t *testing.T) {
	defer testAdapter.reset()
	seedUser(t, "bob", "s3cret", true)

	token, _, err := globals.auth.Login("bob", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	defer globals.auth.Logout(token)

	handler := requireServerAccess(func(wrt http.ResponseWriter, req *http.Request) {
		t.Error("handler must not run for a missing server")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/servers/srv-gone", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.SetPathValue("serverID", "srv-gone")

	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for a missing server", rec.Code)
	}
}

func TestValidatePermissions(t *testing.T) {
	if unknown := validatePermissions([]string{PermServerStart, PermBackupRead}); unknown != "" {
		t.Errorf("known permissions flagged as unknown: %s", unknown)
	}
	if unknown := validatePermissions([]string{PermServerStart, "server.explode"}); unknown != "server.explode" {
		t.Errorf("unknown = %q, want server.explode", unknown)
	}
	if unknown := validatePermissions(nil); unknown != "" {
		t.Errorf("empty grant flagged: %s", unknown)
	}
}
