package server

import (
	"github.com/rs/zerolog/log"
)

func (s *Server) initRoutes() {
	// Credential lifecycle
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// Protected resources
	s.RegisterRouteHandler("GET "+RouteMe, ChainMiddleware(s.MeHandler(), s.ProtectedMiddleware()...))

	// Administrative interface, policy guarded
	s.RegisterRouteHandler("POST "+RouteAdminRevoke,
		ChainMiddleware(s.AdminRevokeHandler(), s.ProtectedMiddleware(s.RequirePolicy(PolicyTokenAdministrators))...))
	s.RegisterRouteHandler("GET "+RouteAdminSubjects,
		ChainMiddleware(s.AdminSubjectsHandler(), s.ProtectedMiddleware(s.RequirePolicy(PolicyTokenAdministrators))...))
}

func (s *Server) logRoutes() {
	for _, route := range s.routes {
		log.Info().Str("route", route).Msg("registered")
	}
}
