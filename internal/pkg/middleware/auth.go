package middleware

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CertLedger/internal/pkg/usercontext"
)

var studentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:@-]{1,64}$`)

// IdentityMiddleware reads the student identity forwarded by the upstream
// auth layer. Requests without one stay anonymous.
func IdentityMiddleware(c *fiber.Ctx) error {
	id := usercontext.Get(c)
	if sid := strings.TrimSpace(c.Get(usercontext.HeaderStudentID)); sid != "" {
		if !studentIDPattern.MatchString(sid) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_input", "message": "Malformed student ID header"})
		}
		id.StudentID = sid
	}
	usercontext.Set(c, id)
	return c.Next()
}

// RequireStudent rejects requests without a student identity.
func RequireStudent(c *fiber.Ctx) error {
	if usercontext.StudentID(c) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "student identity required",
		})
	}
	return c.Next()
}
