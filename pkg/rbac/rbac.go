package rbac

// Back-office roles.
const (
	RoleAdmin   = "admin"
	RoleSales   = "sales"
	RoleFinance = "finance"
)

// Permissions touched by this service. CRUD permissions live with the
// back-office application.
const (
	PermissionRunTriage     = "triage:run"
	PermissionReadInquiries = "inquiry:read"
	PermissionReadMessages  = "message:read"
)

var rolePermissions = map[string][]string{
	RoleAdmin: {
		PermissionRunTriage,
		PermissionReadInquiries,
		PermissionReadMessages,
	},
	RoleSales: {
		PermissionRunTriage,
		PermissionReadInquiries,
		PermissionReadMessages,
	},
	RoleFinance: {
		PermissionReadInquiries,
		PermissionReadMessages,
	},
}

// HasPermission checks whether a role grants the given permission.
func HasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission returns an error instead of a boolean, for handlers.
func CheckPermission(role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
