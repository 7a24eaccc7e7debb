// Package server exposes the token and authorization services over HTTP:
// login, refresh and logout for the credential lifecycle, plus policy-guarded
// resource and administrative endpoints.
package server

import (
	"net/http"

	"github.com/jrsteele09/go-authz-engine/authz"
	"github.com/jrsteele09/go-authz-engine/internal/config"
	"github.com/jrsteele09/go-authz-engine/subjects"
	"github.com/jrsteele09/go-authz-engine/token"
	"github.com/pkg/errors"
)

type Server struct {
	env       string // Environment (e.g., "DEV", "production")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	tokens    *token.Service
	subjects  subjects.Repo
	evaluator *authz.Evaluator
}

func New(cfg config.Config, tokens *token.Service, subjectRepo subjects.Repo, evaluator *authz.Evaluator) (*Server, error) {
	if tokens == nil {
		return nil, errors.New("[Server New] token service is required")
	}
	if subjectRepo == nil {
		return nil, errors.New("[Server New] subjects repo is required")
	}
	if evaluator == nil {
		return nil, errors.New("[Server New] evaluator is required")
	}

	s := &Server{
		mux:       http.NewServeMux(),
		config:    cfg,
		tokens:    tokens,
		subjects:  subjectRepo,
		evaluator: evaluator,
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}
