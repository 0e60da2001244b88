package rbac

var permissions = []Permission{
	"auth.profile", "auth.password.change",
	"auth.sessions.view", "auth.sessions.revoke",
	"auth.devices.view", "auth.audit.view",
	"accounts.view", "accounts.manage",
	"orders.view", "orders.manage",
	"reports.view",
}

func AllPermissions() []Permission {
	out := make([]Permission, len(permissions))
	copy(out, permissions)
	return out
}

const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleOperator = "operator"
)

var selfService = []Permission{
	"auth.profile", "auth.password.change",
	"auth.sessions.view", "auth.sessions.revoke",
	"auth.devices.view", "auth.audit.view",
}

var roles = []Role{
	{Name: RoleAdmin, Permissions: permissions},
	{Name: RoleManager, Permissions: append([]Permission{"accounts.view", "orders.view", "orders.manage", "reports.view"}, selfService...)},
	{Name: RoleOperator, Permissions: append([]Permission{"orders.view", "orders.manage"}, selfService...)},
}

func DefaultRoles() []Role {
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

func IsValidRole(name string) bool {
	for _, r := range roles {
		if r.Name == name {
			return true
		}
	}
	return false
}
