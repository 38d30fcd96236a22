// Package api serves the HTTP control surface of the output core: output
// types, encoders, output lifecycle and settings, procedures, event and log
// streams, and Prometheus metrics.
package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/mediaout/internal/api/models"
	"github.com/smazurov/mediaout/internal/engine"
	"github.com/smazurov/mediaout/internal/logging"
	"github.com/smazurov/mediaout/internal/output"
	"github.com/smazurov/mediaout/internal/procs"
	"github.com/smazurov/mediaout/internal/version"
)

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string
	Engine       *engine.Engine
	// PrometheusHandler is mounted at /metrics when set.
	PrometheusHandler http.Handler
	// OnSettingsChanged persists settings patched through the API. Optional.
	OnSettingsChanged func(output string, values map[string]any) error
}

// Server is the Huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	engine     *engine.Engine
	manager    *output.Manager
	logger     *slog.Logger
}

// NewServer creates an API server using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("mediaout API", version.String())
	config.Info.Description = "Output management for the A/V engine"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)
	server := newServer(api, opts)
	server.mux = mux

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}
	mux.HandleFunc("GET /api/ws", server.handleWebSocket)

	server.registerRoutes()
	return server
}

// newServer binds a server to an existing API without registering routes.
func newServer(api huma.API, opts *Options) *Server {
	s := &Server{
		api:     api,
		options: opts,
		engine:  opts.Engine,
		logger:  logging.GetLogger("api"),
	}
	if opts.Engine != nil {
		s.manager = opts.Engine.Manager()
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves HTTP on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting mediaout API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the HTTP server immediately. Event streams are long-lived, so
// waiting for connections to drain would block shutdown.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		outputs := s.manager.Outputs()
		active := 0
		for _, o := range outputs {
			if o.IsActive() {
				active++
			}
		}
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
				Outputs: len(outputs),
				Active:  active,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		v := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   v.Version,
				GitCommit: v.GitCommit,
				BuildDate: v.BuildDate,
				BuildID:   v.BuildID,
				GoVersion: v.GoVersion,
				Compiler:  v.Compiler,
				Platform:  v.Platform,
			},
		}, nil
	})

	s.registerTypeRoutes()
	s.registerOutputRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}

// withAuth returns security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}

// findOutput resolves a name or ID to a registered output.
func (s *Server) findOutput(key string) (*output.Output, error) {
	if o := s.manager.Find(key); o != nil {
		return o, nil
	}
	return nil, huma.Error404NotFound("output not found: " + key)
}

// mapOutputError maps domain errors to HTTP errors.
func (s *Server) mapOutputError(err error) error {
	var outErr *output.Error
	if errors.As(err, &outErr) {
		switch outErr.Code {
		case output.ErrCodeTypeNotFound:
			return huma.Error404NotFound(outErr.Message, err)
		case output.ErrCodeTypeExists:
			return huma.Error409Conflict(outErr.Message, err)
		case output.ErrCodeInvalidType, output.ErrCodeInvalidFlags:
			return huma.Error400BadRequest(outErr.Message, err)
		default:
			return huma.Error500InternalServerError(outErr.Message, err)
		}
	}
	switch {
	case errors.Is(err, procs.ErrProcNotFound):
		return huma.Error404NotFound(err.Error(), err)
	case errors.Is(err, procs.ErrClosed):
		return huma.Error409Conflict(err.Error(), err)
	}
	return huma.Error500InternalServerError("internal server error", err)
}

// basicAuthMiddleware enforces HTTP basic auth on operations that declare a
// security requirement. Event streams may pass credentials in the auth query
// parameter because browsers cannot set headers on EventSource.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	unauthorized := func(ctx huma.Context, msg string, errs ...error) {
		ctx.SetHeader("WWW-Authenticate", `Basic realm="mediaout API"`)
		huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		var encoded string
		if authHeader := ctx.Header("Authorization"); authHeader != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(authHeader, prefix) {
				unauthorized(ctx, "Invalid authentication type")
				return
			}
			encoded = authHeader[len(prefix):]
		} else {
			encoded = ctx.Query("auth")
		}
		if encoded == "" {
			unauthorized(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			unauthorized(ctx, "Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok {
			unauthorized(ctx, "Invalid credentials format")
			return
		}
		if user != username || pass != password {
			unauthorized(ctx, "Invalid credentials")
			return
		}

		next(ctx)
	}
}
