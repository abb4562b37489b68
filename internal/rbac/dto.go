package rbac

// ToggleRequest sets the desired override state for one permission.
type ToggleRequest struct {
	Granted bool `json:"granted"`
}

// maxBulkEntries caps one bulk request; the body is a bare array of entries.
const maxBulkEntries = 100

// RoleDefaultRequest sets the baseline grant for one (role, permission) pair.
type RoleDefaultRequest struct {
	Granted bool `json:"granted"`
}
