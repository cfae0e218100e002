package rbac

// Role constants
const (
	RolePoster = "poster"
	RoleWorker = "worker"
	RoleAdmin  = "admin"
)

// Permission constants
const (
	PermCreatePost        = "create_post"
	PermSubmitFix         = "submit_fix"
	PermReviewSubmission  = "review_submission"
	PermConnectWallet     = "connect_wallet"
	PermWithdraw          = "withdraw"
	PermApproveWithdrawal = "approve_withdrawal"
	PermToggleKillSwitch  = "toggle_kill_switch"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RolePoster: {
		PermCreatePost, PermReviewSubmission, PermConnectWallet, PermWithdraw,
	},
	RoleWorker: {
		PermSubmitFix, PermConnectWallet, PermWithdraw,
	},
	RoleAdmin: {
		PermCreatePost, PermSubmitFix, PermReviewSubmission, PermConnectWallet,
		PermWithdraw, PermApproveWithdrawal, PermToggleKillSwitch,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsFinancialOperation checks if permission moves funds (extra checks
// apply at the handler layer).
func IsFinancialOperation(permission string) bool {
	return permission == PermWithdraw || permission == PermApproveWithdrawal
}
