package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/admin-ops/internal/domain"
	apperrors "github.com/spec-kit/admin-ops/pkg/util/errorutil"
)

// Permission names an operation guarded by role.
type Permission string

const (
	PermissionViewEscalations   Permission = "view_escalations"
	PermissionManageEscalations Permission = "manage_escalations"
	PermissionRunEscalations    Permission = "run_escalations"
	PermissionViewSession       Permission = "view_session"
	PermissionManageSession     Permission = "manage_session"
)

var rolePermissions = map[domain.UserRole][]Permission{
	domain.RoleAdmin: {
		PermissionViewEscalations,
		PermissionManageEscalations,
		PermissionRunEscalations,
		PermissionViewSession,
		PermissionManageSession,
	},
	domain.RoleModerator: {
		PermissionViewEscalations,
		PermissionManageEscalations,
		PermissionViewSession,
	},
	domain.RoleUser: {
		PermissionViewEscalations,
	},
	domain.RoleGuest: {},
}

// HasPermission reports whether role grants perm.
func HasPermission(role domain.UserRole, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// RequireRole ensures the principal has one of the allowed roles.
func RequireRole(allowed ...domain.UserRole) fiber.Handler {
	allowedSet := make(map[domain.UserRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequirePermission ensures the principal's role grants perm.
func RequirePermission(perm Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !HasPermission(principal.Role, perm) {
			return apperrors.NewForbidden("insufficient permissions")
		}
		return c.Next()
	}
}
