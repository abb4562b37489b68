package audit

import "time"

// Well-known action tokens. The filter metadata endpoint reflects what is
// actually present in the log, not this list; producers may introduce new
// tokens at any time.
const (
	ActionPermissionUpdated = "PERMISSION_UPDATED"
	ActionUserCreated       = "USER_CREATED"
	ActionUserUpdated       = "USER_UPDATED"
	ActionLogin             = "LOGIN"
	ActionLogout            = "LOGOUT"
	ActionDeleted           = "DELETED"
)

// Event is an immutable record of a privileged action. Written once,
// never updated or deleted through the application.
type Event struct {
	ID          int64          `json:"id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	ActorID     *int64         `json:"actor_id,omitempty"`
	ActorName   string         `json:"actor_name"`
	ActorEmail  string         `json:"actor_email"`
	Action      string         `json:"action"`
	TargetModel string         `json:"target_model"`
	TargetID    *string        `json:"target_id,omitempty"`
	IPAddress   *string        `json:"ip_address,omitempty"`
	Payload     map[string]any `json:"payload"`
}

// Filters narrows a log query. Zero values mean "no filter".
type Filters struct {
	Action      string
	TargetModel string
	Search      string
	DateFrom    time.Time
	DateTo      time.Time
	Page        int
	PageSize    int
}

// Page is one page of query results, newest first.
type Page struct {
	Results     []Event `json:"results"`
	Count       int     `json:"count"`
	Page        int     `json:"page"`
	PageSize    int     `json:"page_size"`
	HasNext     bool    `json:"has_next"`
	HasPrevious bool    `json:"has_previous"`
}

// ActionOption is one distinct action with a display label.
type ActionOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FilterMetadata lists the distinct filterable values present in the log.
type FilterMetadata struct {
	Actions      []ActionOption `json:"actions"`
	TargetModels []string       `json:"target_models"`
}
