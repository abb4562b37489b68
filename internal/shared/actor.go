package shared

// Actor describes the authenticated caller of a privileged operation.
// It feeds both the self-escalation guard and the audit trail.
type Actor struct {
	ID          int64
	Name        string
	Email       string
	Role        string
	IsSuperuser bool
	IP          string
}
