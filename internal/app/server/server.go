package server

import (
	"log/slog"
	"net/http"
	"time"

	"sanuda/internal/app/server/handlers"
	"sanuda/internal/core/services"
	"sanuda/pkg/middleware"
)

type Server struct {
	mux         *http.ServeMux
	log         *slog.Logger
	name        string
	addr        string
	authHandler *handlers.AuthHandler
	wsHandler   *handlers.WSHandler
	tokenSvc    *services.TokenService
}

func NewServer(
	log *slog.Logger,
	name string,
	addr string,
	userSvc *services.UserService,
	tokenSvc *services.TokenService,
	managerSvc *services.ManagerService,
) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		log:         log,
		name:        name,
		addr:        addr,
		authHandler: handlers.NewAuthHandler(userSvc, tokenSvc),
		wsHandler:   handlers.NewWSHandler(managerSvc),
		tokenSvc:    tokenSvc,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	auth := middleware.AuthMiddleware(s.tokenSvc)
	logged := middleware.RequestLogger(s.log)
	traced := middleware.TracerMiddleware(s.name)

	s.mux.Handle("POST /auth/register", traced(logged(http.HandlerFunc(s.authHandler.Register))))
	s.mux.Handle("POST /auth/login", traced(logged(http.HandlerFunc(s.authHandler.Login))))

	// The WS route carries the whole realtime session; auth extracts the
	// verified user id into the context before the upgrade.
	s.mux.Handle("/ws", traced(logged(auth(http.HandlerFunc(s.wsHandler.Handler)))))
}

func (s *Server) Start() error {
	server := &http.Server{
		Addr:        s.addr,
		Handler:     s.mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would sever long-lived WS connections.
		IdleTimeout: 60 * time.Second,
	}
	s.log.Info("server starting", "addr", s.addr)
	return server.ListenAndServe()
}
