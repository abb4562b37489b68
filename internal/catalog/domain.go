package catalog

// Category groups permissions for display. Immutable once created except
// for rename.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Ordering int    `json:"ordering"`
}

// Permission is an atomic capability. The code is unique and immutable.
type Permission struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CategoryID  int64  `json:"category_id"`
}

// MatrixPermission is one row of the category matrix with per-role defaults.
type MatrixPermission struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Defaults    map[string]bool `json:"defaults"`
}

// MatrixCategory nests a category with its permissions and role defaults.
type MatrixCategory struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Ordering    int                `json:"ordering"`
	Permissions []MatrixPermission `json:"permissions"`
}

// SeedCategory declares a category and its permissions for bootstrap.
type SeedCategory struct {
	Name        string
	Ordering    int
	Permissions []SeedPermission
}

// SeedPermission declares a permission with optional role defaults.
type SeedPermission struct {
	Code        string
	Name        string
	Description string
	Defaults    map[string]bool
}
