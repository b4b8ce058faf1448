package usercontext

import "github.com/gofiber/fiber/v2"

// Identity is the caller of the current request.
type Identity struct {
	StudentID string `json:"student_id,omitempty"`
	AdminName string `json:"admin_name,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
}

// Set stores id on the request.
func Set(c *fiber.Ctx, id Identity) {
	c.Locals(KeyIdentity, id)
	c.Locals(KeyStudentID, id.StudentID)
	c.Locals(KeyAdminName, id.AdminName)
	c.Locals(KeyIsAdmin, id.IsAdmin)
}

// Get retrieves the identity from fiber context.
// Returns an anonymous identity if none is set.
func Get(c *fiber.Ctx) Identity {
	if id, ok := c.Locals(KeyIdentity).(Identity); ok {
		return id
	}
	return Identity{}
}

// StudentID returns the current student, or "" for anonymous callers.
func StudentID(c *fiber.Ctx) string {
	return Get(c).StudentID
}

// IsAdmin checks if the caller authenticated with an admin key.
func IsAdmin(c *fiber.Ctx) bool {
	return Get(c).IsAdmin
}

// AdminName returns the label of the admin key used, or "".
func AdminName(c *fiber.Ctx) string {
	return Get(c).AdminName
}
