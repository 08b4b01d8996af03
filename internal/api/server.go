// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the daemon's local control surface: probes, metrics,
// bundle status, activity signals and the recovery actions.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ManuGH/bundled/internal/cache"
	"github.com/ManuGH/bundled/internal/health"
	"github.com/ManuGH/bundled/internal/history"
	"github.com/ManuGH/bundled/internal/lifecycle"
	"github.com/ManuGH/bundled/internal/updater"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BundleStatus exposes cache contents and the last update outcome.
type BundleStatus interface {
	Info() (cache.Info, error)
	Last() (updater.Outcome, time.Time)
}

// Recovery is the subset of retry.Controller the API drives.
type Recovery interface {
	Choices() []string
	Choose(ctx context.Context, index int) error
	Pending() error
}

// DevMenu opens the host's developer menu.
type DevMenu interface {
	DeveloperSupport() bool
	ShowDevMenu(ctx context.Context) error
}

// RunHistory lists recorded update runs, newest first.
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
}

// ActivityFunc fires ActivityReady for a new activity.
type ActivityFunc func(ctx context.Context, a lifecycle.Activity) error

// Deps are the collaborators of the control API. DevMenu and History may be nil.
type Deps struct {
	Health   *health.Manager
	Bundle   BundleStatus
	Activity ActivityFunc
	Recovery Recovery
	DevMenu  DevMenu
	History  RunHistory

	// Service names the tracing service; empty disables tracing.
	Service string
	// ActionLimit caps POST requests per client per minute; zero means 10.
	ActionLimit int
}

// Server holds the router and the background actions it started.
type Server struct {
	deps   Deps
	router chi.Router
	// actions runs recovery work outside the request so a re-exec never
	// cuts a response short.
	actions func(func())
}

// New builds the control API.
func New(deps Deps) *Server {
	if deps.ActionLimit <= 0 {
		deps.ActionLimit = 10
	}
	s := &Server{deps: deps, actions: func(f func()) { go f() }}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(Recoverer)
	r.Use(RequestID)
	if s.deps.Service != "" {
		r.Use(Tracing(s.deps.Service))
	}
	r.Use(AccessLog)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { writeNotFound(w) })

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/bundle", s.handleBundle)
		r.Get("/bundle/history", s.handleHistory)
		r.Get("/recovery", s.handleRecoveryStatus)

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(s.deps.ActionLimit, time.Minute))
			r.Post("/activity", s.handleActivity)
			r.Post("/recovery/{choice}", s.handleRecoveryChoice)
			r.Post("/devmenu", s.handleDevMenu)
		})
	})
	return r
}
