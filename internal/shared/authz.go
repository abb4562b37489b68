package shared

// Core console permissions.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermPermissionsView = "permissions.view"
	PermPermissionsEdit = "permissions.edit"

	PermAuditView = "audit.view"
)

// CoreScopes lists all permissions guarding the core console surface.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermPermissionsView,
		PermPermissionsEdit,
		PermAuditView,
	}
}
