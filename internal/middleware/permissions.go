package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

const (
	ReadNotificationPermission   = "read:notification"
	RunNotificationJobPermission = "run:notification-job"
	AdminNotificationPermission  = "admin:notification"

	AdminPermission   = "admin"
	ManagerPermission = "manager"
)

// PermissionsHeader carries the caller's comma-separated permissions, set by
// the gateway after it verified the session.
const PermissionsHeader = "X-User-Permissions"

// PermissionRequired lets the request through when the caller holds the
// permission or any admin or manager permission.
func PermissionRequired(log logrus.FieldLogger, required string) fiber.Handler {
	return func(c fiber.Ctx) error {
		log.WithFields(logrus.Fields{
			"ip":         c.IP(),
			"method":     c.Method(),
			"path":       c.OriginalURL(),
			"permission": required,
		}).Debug("permission check")

		if !hasPermission(c.Get(PermissionsHeader), required) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		return c.Next()
	}
}

func hasPermission(header, required string) bool {
	if header == "" {
		return false
	}
	for _, perm := range strings.Split(header, ",") {
		perm = strings.TrimSpace(perm)
		if perm == required || isRole(perm, AdminPermission) || isRole(perm, ManagerPermission) {
			return true
		}
	}
	return false
}

// isRole matches a bare role or a role scoped with a colon, as in "admin:all".
func isRole(perm, role string) bool {
	return perm == role || strings.HasPrefix(perm, role+":")
}
