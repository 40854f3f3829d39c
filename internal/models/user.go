package models

// Role represents user roles in the system
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// Actions checked by the permission middleware.
const (
	ActionViewFinancials  = "view_financials"
	ActionViewCompliance  = "view_compliance"
	ActionRenewCompliance = "renew_compliance"
	ActionExportReports   = "export_reports"
)

// Claims represents the authenticated principal carried by a bearer token.
// Tokens are issued by the session service; this service only validates them.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleOperator, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission checks if the role may perform a specific action
func (r Role) HasPermission(action string) bool {
	switch r {
	case RoleAdmin, RoleManager:
		return true
	case RoleOperator:
		return action == ActionViewFinancials || action == ActionViewCompliance ||
			action == ActionRenewCompliance
	case RoleViewer:
		return action == ActionViewFinancials || action == ActionViewCompliance
	default:
		return false
	}
}
