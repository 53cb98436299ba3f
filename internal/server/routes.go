package server

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	r := s.router

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)

			r.Get("/message", s.getMessages)
			r.Post("/message", s.sendMessage)

			r.Post("/abort", s.abortSession)
			r.Post("/undo", s.undoSession)

			r.Post("/permissions/{permissionID}", s.respondPermission)
		})
	})

	r.Get("/event", s.events)

	r.Route("/config", func(r chi.Router) {
		r.Get("/", s.getConfig)
		r.Get("/providers", s.listProviders)
	})

	r.Get("/app", s.getApp)
	r.Get("/agent", s.listAgents)
	r.Get("/mcp", s.mcpStatus)
}
