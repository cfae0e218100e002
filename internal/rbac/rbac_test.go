package rbac

import "testing"

func TestHasPermission(t *testing.T) {
	cases := []struct {
		name       string
		role       string
		permission string
		want       bool
	}{
		{"poster creates posts", RolePoster, PermCreatePost, true},
		{"poster cannot submit fixes", RolePoster, PermSubmitFix, false},
		{"worker submits fixes", RoleWorker, PermSubmitFix, true},
		{"worker cannot approve withdrawals", RoleWorker, PermApproveWithdrawal, false},
		{"admin approves withdrawals", RoleAdmin, PermApproveWithdrawal, true},
		{"admin toggles kill switch", RoleAdmin, PermToggleKillSwitch, true},
		{"unknown role has nothing", "auditor", PermWithdraw, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasPermission(tc.role, tc.permission); got != tc.want {
				t.Errorf("HasPermission(%s, %s) = %v, want %v", tc.role, tc.permission, got, tc.want)
			}
		})
	}
}

func TestIsFinancialOperation(t *testing.T) {
	if !IsFinancialOperation(PermWithdraw) {
		t.Error("withdraw must be financial")
	}
	if !IsFinancialOperation(PermApproveWithdrawal) {
		t.Error("approve_withdrawal must be financial")
	}
	if IsFinancialOperation(PermCreatePost) {
		t.Error("create_post must not be financial")
	}
}
