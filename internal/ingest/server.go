package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roman-kulish/jamming-locator/internal/telemetry"
)

const (
	// DefaultAddress is the loopback address the decoder posts telemetry to
	DefaultAddress = "127.0.0.1:1234"

	// DataPath is the only path accepting telemetry reports
	DataPath = "/data"

	maxBodySize = 1 << 20
)

// ErrNotListening is returned by Serve when Listen was not called first
var ErrNotListening = errors.New("server is not listening")

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) func(s *Server) {
	return func(s *Server) {
		s.logger = logger.With(slog.String("component", "ingest"))
	}
}

// WithStatusHandler sets the callback receiving the status line of every accepted report
func WithStatusHandler(fn func(status string)) func(s *Server) {
	return func(s *Server) {
		s.onStatus = fn
	}
}

// WithPositionHandler sets the callback receiving every accepted report carrying a fix
func WithPositionHandler(fn func(lat, lon, hgt float64)) func(s *Server) {
	return func(s *Server) {
		s.onPosition = fn
	}
}

// WithMetrics enables ingestion metrics and exposes the gatherer on /metrics
func WithMetrics(m *Metrics, gatherer prometheus.Gatherer) func(s *Server) {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// Server receives decoder telemetry on POST /data and keeps the latest position in a slot
type Server struct {
	addr string
	slot *telemetry.Slot

	onStatus   func(string)
	onPosition func(lat, lon, hgt float64)

	metrics  *Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	srv      *http.Server
}

// NewServer creates a new Server storing positions into slot
func NewServer(addr string, slot *telemetry.Slot, options ...func(s *Server)) *Server {
	s := Server{
		addr:    addr,
		slot:    slot,
		metrics: NewMetrics(nil),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Handler returns the HTTP handler of the ingestion endpoint
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST(DataPath, s.handleData)

	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return router
}

// Listen binds the listening socket. Binding is separate from Serve so that a bind
// failure is known before anything else is started.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil, fmt.Errorf("server already listening on %s", s.listener.Addr())
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", s.addr, err)
	}

	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}

	return ln.Addr(), nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	srv, ln := s.srv, s.listener
	s.mu.Unlock()

	if srv == nil {
		return ErrNotListening
	}

	s.logger.Info("telemetry listener started", slog.String("address", ln.Addr().String()))

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving telemetry: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests to complete
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, ln := s.srv, s.listener
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	_ = ln.Close() // Serve may not have taken ownership of the listener yet

	s.logger.Info("telemetry listener stopped")
	return err
}

func (s *Server) handleData(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
	if err != nil {
		s.metrics.observe(outcomeReadError)
		s.logger.Debug("reading telemetry body", slog.String("error", err.Error()))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	s.metrics.bodyBytes.Observe(float64(len(body)))

	report, err := telemetry.ParseReport(body)
	if err != nil {
		s.metrics.observe(outcomeMalformed)
		s.logger.Debug("malformed telemetry report", slog.String("error", err.Error()))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	position := s.slot.Update(report, time.Now())
	s.metrics.observe(outcomeOK)
	s.metrics.lastFix.WithLabelValues("lat").Set(position.Latitude)
	s.metrics.lastFix.WithLabelValues("lon").Set(position.Longitude)
	s.metrics.lastFix.WithLabelValues("buffcnt").Set(float64(position.BuffCnt))

	if s.onStatus != nil {
		s.onStatus(position.StatusText())
	}
	if s.onPosition != nil && position.HasFix() {
		s.onPosition(position.Latitude, position.Longitude, position.Height)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
