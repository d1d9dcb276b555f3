package auth

// Route paths, relative to the router root.
const (
	RouteDashboard      = "/dashboard"
	RouteLogin          = "/dashboard/login"
	RouteLogout         = "/dashboard/logout"
	RouteRegister       = "/dashboard/register"
	RouteChangePassword = "/dashboard/change-password"
	RouteMe             = "/dashboard/me"
	RouteAdminActivity  = "/dashboard/admin/activity"
)
