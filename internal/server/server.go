// Package server exposes the daemon's HTTP API: the AI assistant endpoints,
// the recipe box CRUD surface, and the health/metrics management routes.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/dishdazzle/assistant/internal/assist"
	"github.com/dishdazzle/assistant/internal/metrics"
	"github.com/dishdazzle/assistant/internal/store"
)

// Server wires the assist gateway and the recipe store into a fasthttp
// server.
type Server struct {
	gateway *assist.Gateway
	store   *store.Store
	metrics *metrics.Registry
	log     *slog.Logger

	corsOrigins []string
	version     string

	srv *fasthttp.Server
}

// Options configures a Server.
type Options struct {
	Gateway *assist.Gateway
	Store   *store.Store
	Metrics *metrics.Registry
	Logger  *slog.Logger

	CORSOrigins []string
	Version     string
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{
		gateway:     opts.Gateway,
		store:       opts.Store,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		corsOrigins: opts.CORSOrigins,
		version:     opts.Version,
	}
}

// Handler builds the full route table with the middleware chain applied.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()

	// Assistant endpoints.
	r.POST("/v1/suggestions", s.handleSuggestions)
	r.POST("/v1/substitutions", s.handleSubstitutions)
	r.POST("/v1/assist", s.handleAssist)
	r.POST("/v1/chat", s.handleChat)
	r.GET("/v1/chat/{conversation_id}", s.handleChatHistory)
	r.DELETE("/v1/chat/{conversation_id}", s.handleClearChat)

	// Recipe box.
	r.GET("/v1/recipes", s.handleListRecipes)
	r.POST("/v1/recipes", s.handleAddRecipe)
	r.GET("/v1/recipes/{id}", s.handleGetRecipe)
	r.PUT("/v1/recipes/{id}", s.handleUpdateRecipe)
	r.DELETE("/v1/recipes/{id}", s.handleDeleteRecipe)
	r.POST("/v1/recipes/{id}/favorite", s.handleFavorite)
	r.DELETE("/v1/recipes/{id}/favorite", s.handleUnfavorite)
	r.GET("/v1/favorites", s.handleListFavorites)

	// Pantry and groceries.
	r.GET("/v1/pantry", s.handleGetPantry)
	r.PUT("/v1/pantry", s.handleSetPantry)
	r.GET("/v1/grocery-list", s.handleGetGroceryList)
	r.PUT("/v1/grocery-list", s.handleSetGroceryList)

	// Management.
	r.GET("/health", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", s.metrics.Handler())
	}

	return applyMiddleware(r.Handler,
		recovery(s.log),
		requestID,
		timing(s.metrics),
		corsHandler(s.corsOrigins),
		securityHeaders,
	)
}

// Start serves HTTP on addr (e.g. ":8176") until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv = &fasthttp.Server{
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	return s.srv.ListenAndServe(addr)
}

// Shutdown gracefully stops the server, draining in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	status := "ok"
	checks := map[string]string{}
	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			status = "degraded"
			checks["store"] = err.Error()
		} else {
			checks["store"] = "ok"
		}
	}
	writeJSON(ctx, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
