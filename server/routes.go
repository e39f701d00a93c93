package server

// Route path constants. The {provider} segment must match the configured
// provider slug; handlers 404 anything else.
const (
	RouteEntry    = "/"
	RouteAuth     = "/auth/{provider}"
	RouteCallback = "/auth/{provider}/callback"
	RouteProfile  = "/profile"
	RouteLogout   = "/logout"
)

func (s *Server) initRoutes() {
	s.mux.HandleFunc("GET /{$}", ChainMiddleware(s.IndexHandler(), s.StdMiddleware()...))
	s.mux.HandleFunc("GET "+RouteAuth, ChainMiddleware(s.InitiateHandler(), s.StdMiddleware()...))
	s.mux.HandleFunc("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.StdMiddleware()...))
	s.mux.HandleFunc("GET "+RouteProfile, ChainMiddleware(s.ProfileHandler(), s.StdMiddleware(s.RequireSessionAuth())...))
	s.mux.HandleFunc("GET "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.StdMiddleware()...))
}
