package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleService  = "service" // machine-to-machine callers (message intake)
)

func IsAdmin(role string) bool { return role == RoleAdmin }
