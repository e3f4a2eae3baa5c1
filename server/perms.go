/******************************************************************************
 *
 *  Description :
 *
 *    Catalog of subuser permissions.
 *
 *****************************************************************************/

package main

// Permissions grantable to subusers.
const (
	PermServerStart    = "server.start"
	PermServerStop     = "server.stop"
	PermServerRestart  = "server.restart"
	PermServerConsole  = "server.console"
	PermServerCommand  = "server.command"
	PermDatabaseRead   = "database.read"
	PermDatabaseCreate = "database.create"
	PermBackupRead     = "backup.read"
	PermBackupCreate   = "backup.create"
)

// permissionCatalog maps each known permission to its description, served by
// GET /api/permissions and used to validate subuser grants.
var permissionCatalog = map[string]string{
	PermServerStart:    "Start the server",
	PermServerStop:     "Stop the server",
	PermServerRestart:  "Restart the server",
	PermServerConsole:  "View the server console",
	PermServerCommand:  "Send console commands",
	PermDatabaseRead:   "View server databases",
	PermDatabaseCreate: "Create server databases",
	PermBackupRead:     "View server backups",
	PermBackupCreate:   "Create server backups",
}

// validatePermissions returns the first unknown permission in the list, or
// an empty string if all are known.
func validatePermissions(perms []string) string {
	for _, p := range perms {
		if _, ok := permissionCatalog[p]; !ok {
			return p
		}
	}
	return ""
}
