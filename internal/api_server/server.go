package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"

	api "github.com/onronder/ContentLabTech-sub011/api/v1alpha1"
	"github.com/onronder/ContentLabTech-sub011/internal/auth"
	"github.com/onronder/ContentLabTech-sub011/internal/config"
	"github.com/onronder/ContentLabTech-sub011/pkg/metrics"
	"github.com/onronder/ContentLabTech-sub011/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

// Routes is implemented by the API handlers.
type Routes interface {
	Routes(r chi.Router)
}

type Server struct {
	cfg           *config.Config
	routes        Routes
	listener      net.Listener
	authenticator auth.Authenticator
}

// New returns a new instance of the analysis API server.
func New(
	cfg *config.Config,
	routes Routes,
	listener net.Listener,
	authenticator auth.Authenticator,
) *Server {
	if authenticator == nil {
		authenticator = auth.NewNoneAuthenticator()
	}
	return &Server{
		cfg:           cfg,
		routes:        routes,
		listener:      listener,
		authenticator: authenticator,
	}
}

func oapiErrorHandler(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}

// Router builds the handler chain of the API. Requests are checked against the embedded OpenAPI
// document before they reach the handlers.
func (s *Server) Router() (http.Handler, error) {
	swagger, err := api.GetSwagger()
	if err != nil {
		return nil, fmt.Errorf("failed to load swagger spec: %w", err)
	}
	// Skip server name validation
	swagger.Servers = nil

	oapiOpts := oapimiddleware.Options{
		ErrorHandler: oapiErrorHandler,
	}

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Service.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		chiMiddleware.RequestID,
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
		s.authenticator.Authenticator,
		oapimiddleware.OapiRequestValidatorWithOptions(swagger, &oapiOpts),
	)

	s.routes.Routes(router)
	return router, nil
}

// Run serves the API until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	handler, err := s.Router()
	if err != nil {
		return err
	}
	srv := http.Server{Addr: s.cfg.Service.Address, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
