package server

// Route paths
const (
	RouteAuthLogin     = "/auth/login"
	RouteAuthRefresh   = "/auth/refresh"
	RouteAuthLogout    = "/auth/logout"
	RouteAdminRevoke   = "/admin/revoke"
	RouteAdminSubjects = "/admin/subjects"
	RouteMe            = "/me"
)

// PolicyTokenAdministrators guards the administrative endpoints.
const PolicyTokenAdministrators = "TokenAdministrators"
