package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyIdentity  = "IDENTITY"
	KeyStudentID = "student_id"
	KeyAdminName = "admin_name"
	KeyIsAdmin   = "isAdmin"
)

// HeaderStudentID carries the learner identity asserted by the upstream
// auth layer.
const HeaderStudentID = "X-Student-ID"
