// Package app contains the application setup for the cart service.
package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/agrodel/cartsync/internal/config"
	"github.com/agrodel/cartsync/internal/debounce"
	"github.com/agrodel/cartsync/internal/remote"
	"github.com/agrodel/cartsync/internal/service"
	"github.com/agrodel/cartsync/internal/session"
	"github.com/agrodel/cartsync/internal/stock"
	"github.com/agrodel/cartsync/internal/store"
	"github.com/agrodel/cartsync/internal/transport/rest"
	"github.com/agrodel/cartsync/pkg/auth"
	"github.com/agrodel/cartsync/pkg/messaging"
	"github.com/agrodel/cartsync/pkg/server"
	"github.com/agrodel/cartsync/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Dependencies struct {
	Registry  *session.Registry
	Verifier  auth.Verifier
	Upstreams rest.Upstreams
	Cfg       *config.Config
	Logger    *slog.Logger
}

// SetupDependencies wires the per-session cart stack: every session gets its
// own manager over a file-backed local store and its own debounced editor,
// while the remote client, stock checker and publisher are shared.
func SetupDependencies(cfg *config.Config, verifier auth.Verifier, publisher messaging.Publisher, logger *slog.Logger) *Dependencies {
	cartAPI := remote.NewClient(cfg.CartAPI.URL, &http.Client{Timeout: cfg.CartAPI.Timeout}, logger)
	checker := stock.NewChecker(cfg.ProductAPI.URL, &http.Client{Timeout: cfg.ProductAPI.Timeout}, cfg.Breaker, logger)

	factory := func(sessionID string) *session.Session {
		local := store.NewFileStore(cfg.Store.Dir, sessionID)
		manager := service.NewManager(sessionID, local, cartAPI, checker, publisher, logger)
		// Prime from the on-disk cart so a returning session does not start
		// empty. Anonymous loads cannot fail.
		_ = manager.Load(context.Background())
		editor := debounce.NewEditor(cfg.Editor.Window, manager.UpdateQuantity, logger)
		return &session.Session{ID: sessionID, Manager: manager, Editor: editor}
	}
	registry := session.NewRegistry(factory, cfg.Session.TTL, logger)

	return &Dependencies{
		Registry: registry,
		Verifier: verifier,
		Upstreams: rest.Upstreams{
			CartURL:    cfg.CartAPI.URL,
			ProductURL: cfg.ProductAPI.URL,
			JwksURL:    cfg.IdP.JwksURL,
		},
		Cfg:    cfg,
		Logger: logger,
	}
}

// SetupHttpHandler initializes the HTTP routes and middleware for the cart
// service. Used by tests to exercise the full HTTP surface in-process.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	mux.Use(web.BearerAuth(deps.Verifier))
	mux.Use(web.SessionCookie(deps.Cfg.Session.CookieName))
	wireRoutes(mux, deps)
	return mux
}

// wireRoutes sets up the HTTP routes for the cart service.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	cartHandler := rest.NewHandler(deps.Registry, deps.Upstreams, deps.Logger)
	cartHandler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
}

// SetupHttpServer creates and configures an HTTP server for the cart service.
func SetupHttpServer(deps *Dependencies) *http.Server {
	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           deps.Cfg.HTTPServer.Port,
		MaxHeaderBytes: deps.Cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    deps.Cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   deps.Cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    deps.Cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     deps.Cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, mux)
}
