package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pairwatch/config"
	"pairwatch/internal/aggregator"
	"pairwatch/internal/metrics"
	"pairwatch/logger"
)

// PairSource reports the live state of every monitored pair.
type PairSource interface {
	Snapshots() []aggregator.Snapshot
}

// Server hosts the monitor status API.
type Server struct {
	cfg           config.DashboardConfig
	log           *logger.Log
	pairs         PairSource
	prometheus    http.Handler
	metricStore   *metricStore
	eventStore    *eventStore
	metricHandler metrics.MetricHandlerID
	httpServer    *http.Server
	started       time.Time
}

// NewServer constructs a dashboard server when the dashboard feature is enabled.
// When the dashboard is disabled the returned server will be nil. A nil
// prometheus handler leaves /metrics unregistered.
func NewServer(cfg config.DashboardConfig, log *logger.Log, pairs PairSource, prometheus http.Handler) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if pairs == nil {
		return nil, errors.New("dashboard requires a pair source")
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.History <= 0 {
		cfg.History = 200
	}

	metricStore := newMetricStore(cfg.History)
	eventStore := newEventStore(cfg.History)
	log.AddHook(eventStore)

	return &Server{
		cfg:           cfg,
		log:           log,
		pairs:         pairs,
		prometheus:    prometheus,
		metricStore:   metricStore,
		eventStore:    eventStore,
		metricHandler: metrics.RegisterMetricHandler(metricStore.handle),
		started:       time.Now(),
	}, nil
}

// Run starts the HTTP server and blocks until the context is cancelled or the
// server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	defer s.cleanup()

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.WithComponent("dashboard").WithField("address", s.cfg.Address).Info("dashboard listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.eventStore != nil {
		s.eventStore.close()
	}
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		snaps := s.pairs.Snapshots()
		ready := 0
		for _, snap := range snaps {
			if snap.State == aggregator.StateReady {
				ready++
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"uptime":      time.Since(s.started).Round(time.Second).String(),
			"pairs":       len(snaps),
			"pairs_ready": ready,
			"log_counts":  logger.Counts(),
		})
	})

	router.GET("/api/pairs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pairs": s.pairs.Snapshots()})
	})

	router.GET("/api/pairs/:leg_a/:leg_b", func(c *gin.Context) {
		name := strings.ToUpper(c.Param("leg_a")) + "/" + strings.ToUpper(c.Param("leg_b"))
		for _, snap := range s.pairs.Snapshots() {
			if snap.Pair == name {
				c.JSON(http.StatusOK, snap)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown pair " + name})
	})

	router.GET("/api/metrics", func(c *gin.Context) {
		snapshot := s.metricStore.snapshot()
		payload := make([]gin.H, 0, len(snapshot))
		for _, m := range snapshot {
			payload = append(payload, gin.H{
				"timestamp": m.Timestamp.Format(time.RFC3339Nano),
				"component": m.Component,
				"name":      m.Name,
				"value":     m.Value,
				"type":      m.Type,
				"fields":    m.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"metrics": payload})
	})

	router.GET("/api/events", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"events": s.eventStore.snapshot()})
	})

	if s.prometheus != nil {
		router.GET("/metrics", gin.WrapH(s.prometheus))
	}

	return router, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8090"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8090"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8090")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8090")
	}

	return addr
}
