// Package httpserver exposes the investigator API: queue inspection,
// error lifecycle transitions, cycle history and archive reports.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vigilops/vigil/internal/archive"
	"github.com/vigilops/vigil/internal/history"
	"github.com/vigilops/vigil/internal/model"
	"github.com/vigilops/vigil/internal/registry"
)

// ArchiveQuerier is the narrow archive contract required by the report
// endpoints.
type ArchiveQuerier interface {
	TopSignatures(since time.Time, limit int) ([]archive.SignatureCount, error)
	ServiceCounts(since time.Time) ([]archive.ServiceCount, error)
}

// HistoryReader reads back journaled poll cycles.
type HistoryReader interface {
	Recent(limit int) ([]history.Entry, error)
}

// Config holds the server's dependencies. Archive and History are
// optional; their endpoints answer 503 when unset.
type Config struct {
	Addr     string
	StateDir string
	Lock     sync.Locker // serializes registry access with the poller
	Archive  ArchiveQuerier
	History  HistoryReader
}

// Server provides the HTTP API used by investigators to inspect queues
// and drive the error lifecycle.
type Server struct {
	cfg       Config
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

type noopLock struct{}

func (noopLock) Lock()   {}
func (noopLock) Unlock() {}

// NewServer creates a new HTTP API server.
func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8321"
	}
	if cfg.Lock == nil {
		cfg.Lock = noopLock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/queues", s.handleQueues)
	r.GET("/api/queues/:service", s.handleQueue)
	r.DELETE("/api/queues/:service", s.handleClearQueue)
	r.GET("/api/errors", s.handleErrors)
	r.POST("/api/errors/:signature/claim", s.handleClaim)
	r.POST("/api/errors/:signature/done", s.handleDone)
	r.GET("/api/report/history", s.handleHistory)
	r.GET("/api/archive/top", s.handleArchiveTop)
	r.GET("/api/archive/services", s.handleArchiveServices)

	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) queues() *registry.QueueWriter {
	return registry.NewQueueWriter(filepath.Join(s.cfg.StateDir, "queues"))
}

func (s *Server) statuses() *registry.StatusTracker {
	return registry.OpenStatusTracker(filepath.Join(s.cfg.StateDir, "status.json"))
}

func (s *Server) handleHealth(c *gin.Context) {
	s.cfg.Lock.Lock()
	counts, err := s.queues().List()
	s.cfg.Lock.Unlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read queues"})
		return
	}

	pending := 0
	for _, n := range counts {
		pending += n
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime":         time.Since(s.startTime).String(),
		"queued_errors":  pending,
		"queue_services": len(counts),
	})
}

func (s *Server) handleQueues(c *gin.Context) {
	s.cfg.Lock.Lock()
	counts, err := s.queues().List()
	s.cfg.Lock.Unlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read queues"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queues": counts})
}

func (s *Server) handleQueue(c *gin.Context) {
	service := c.Param("service")

	s.cfg.Lock.Lock()
	queue, exists, err := s.queues().Load(service)
	s.cfg.Lock.Unlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read queue"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending queue for service"})
		return
	}
	c.JSON(http.StatusOK, queue)
}

func (s *Server) handleClearQueue(c *gin.Context) {
	service := c.Param("service")

	s.cfg.Lock.Lock()
	err := s.queues().Clear(service)
	s.cfg.Lock.Unlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear queue"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleErrors(c *gin.Context) {
	status := model.Status(c.Query("status"))
	if status == "" {
		status = model.StatusPending
	}
	if status.Rank() == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	type statusView struct {
		Signature string `json:"signature"`
		model.StatusEntry
	}

	s.cfg.Lock.Lock()
	tracker := s.statuses()
	sigs := tracker.ListByStatus(status)
	entries := make([]statusView, 0, len(sigs))
	for _, sig := range sigs {
		if entry, ok := tracker.Get(sig); ok {
			entries = append(entries, statusView{Signature: sig, StatusEntry: entry})
		}
	}
	s.cfg.Lock.Unlock()

	c.JSON(http.StatusOK, gin.H{"errors": entries})
}

func (s *Server) transition(c *gin.Context, apply func(*registry.StatusTracker, string) error) {
	sig := c.Param("signature")

	s.cfg.Lock.Lock()
	tracker := s.statuses()
	err := apply(tracker, sig)
	if err == nil {
		err = tracker.Save()
	}
	s.cfg.Lock.Unlock()

	if errors.Is(err, registry.ErrUnknownSignature) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown signature"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update status"})
		return
	}

	entry, _ := tracker.Get(sig)
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleClaim(c *gin.Context) {
	s.transition(c, func(t *registry.StatusTracker, sig string) error {
		return t.MarkInProgress(sig, time.Now().UTC())
	})
}

func (s *Server) handleDone(c *gin.Context) {
	s.transition(c, func(t *registry.StatusTracker, sig string) error {
		return t.MarkDone(sig, time.Now().UTC())
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.cfg.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is disabled"})
		return
	}

	limit := intQuery(c, "limit", 20)
	entries, err := s.cfg.History.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": entries})
}

func (s *Server) handleArchiveTop(c *gin.Context) {
	if s.cfg.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive is disabled"})
		return
	}

	hours := intQuery(c, "hours", 24)
	limit := intQuery(c, "limit", 20)
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	top, err := s.cfg.Archive.TopSignatures(since, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query archive"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "signatures": top})
}

func (s *Server) handleArchiveServices(c *gin.Context) {
	if s.cfg.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive is disabled"})
		return
	}

	hours := intQuery(c, "hours", 24)
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	counts, err := s.cfg.Archive.ServiceCounts(since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query archive"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "services": counts})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
