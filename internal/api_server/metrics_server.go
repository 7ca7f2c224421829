package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/onronder/ContentLabTech-sub011/pkg/metrics"
)

// uniqueProjectsWindow is the period of the distinct submitting projects gauge.
const uniqueProjectsWindow = 7 * 24 * time.Hour

// MetricServer exposes /metrics on its own listener so scrapes bypass the API middleware.
type MetricServer struct {
	bindAddress string
	httpServer  *http.Server
	listener    net.Listener
	resetEvery  time.Duration
}

func NewMetricServer(bindAddress string, listener net.Listener) *MetricServer {
	router := chi.NewRouter()
	router.Handle("/metrics", metrics.Handler())

	return &MetricServer{
		bindAddress: bindAddress,
		listener:    listener,
		resetEvery:  uniqueProjectsWindow,
		httpServer: &http.Server{
			Addr:              bindAddress,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (m *MetricServer) Run(ctx context.Context) error {
	logger := zap.S().Named("metrics_server")

	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		m.httpServer.SetKeepAlivesEnabled(false)
		_ = m.httpServer.Shutdown(ctxTimeout)
		logger.Info("metrics server terminated")
	}()

	go m.resetUniqueProjects(ctx)

	logger.Infof("serving metrics: %s", m.listener.Addr())
	if err := m.httpServer.Serve(m.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// resetUniqueProjects starts a new counting window every resetEvery until ctx ends.
func (m *MetricServer) resetUniqueProjects(ctx context.Context) {
	ticker := time.NewTicker(m.resetEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.UniqueProjectsPerWeek.Reset()
			zap.S().Named("metrics_server").Info("unique projects window reset")
		case <-ctx.Done():
			return
		}
	}
}
