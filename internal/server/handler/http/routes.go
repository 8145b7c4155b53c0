package http

import (
	"net/http"

	"github.com/atinyakov/GophLock/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the daemon API handler.
//
// Routes:
//
//	GET    /api/pin                → pinHandler.View
//	POST   /api/pin/digits         → pinHandler.AppendDigit
//	DELETE /api/pin/digits         → pinHandler.DeleteDigit
//	POST   /api/pin/submit         → pinHandler.Submit
//	POST   /api/pin/reset          → pinHandler.Reset
//	POST   /api/lock               → pinHandler.Lock
//	GET    /api/gate               → gateHandler.View (unlocked)
//	POST   /api/gate/code          → gateHandler.SaveCode (unlocked)
//	POST   /api/gate/authenticate  → gateHandler.Authenticate (unlocked)
//	POST   /api/gate/verify        → gateHandler.Verify (unlocked)
//	POST   /api/files/resume       → gateHandler.Resume (unlocked)
//	POST   /api/files/{action}     → gateHandler.Invoke (unlocked)
//
// Middleware chain (applied in order):
//  1. AllowContentType("application/json")
//  2. WithRequestLogging(logger)
//  3. RequireUnlocked on the gate and files groups
func NewRouter(
	pinHandler *PinHandler,
	gateHandler *GateHandler,
	lock middleware.UnlockChecker,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.WithRequestLogging(logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/pin", pinHandler.View)
		r.Post("/pin/digits", pinHandler.AppendDigit)
		r.Delete("/pin/digits", pinHandler.DeleteDigit)
		r.Post("/pin/submit", pinHandler.Submit)
		r.Post("/pin/reset", pinHandler.Reset)
		r.Post("/lock", pinHandler.Lock)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUnlocked(lock))

			r.Get("/gate", gateHandler.View)
			r.Post("/gate/code", gateHandler.SaveCode)
			r.Post("/gate/authenticate", gateHandler.Authenticate)
			r.Post("/gate/verify", gateHandler.Verify)
			r.Post("/files/resume", gateHandler.Resume)
			r.Post("/files/{action}", gateHandler.Invoke)
		})
	})

	return r
}
