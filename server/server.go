// Package server exposes the control surface for a browser UI: start and
// approve runs, read the current snapshot and the audit log, and stream
// live updates over a websocket. The UI itself lives elsewhere.
package server

import (
	"context"
	"log"
	"net/http"

	"autocast-pipeline/config"
	"autocast-pipeline/pipeline"
	"autocast-pipeline/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server serves the pipeline control API
type Server struct {
	cfg        *config.Config
	store      *store.Store
	controller *pipeline.Controller
}

// New creates a Server over the live store and controller
func New(cfg *config.Config, st *store.Store, ctrl *pipeline.Controller) *Server {
	return &Server{cfg: cfg, store: st, controller: ctrl}
}

// Run registers routes and blocks serving HTTP
func (s *Server) Run(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/run/start", s.handleStart(ctx))
		api.POST("/run/approve", s.handleApprove(ctx))
		api.POST("/run/autonomous", s.handleAutonomous)
		api.POST("/history/reset", s.handleHistoryReset)
		api.GET("/run", s.handleSnapshot)
		api.GET("/logs", s.handleLogs)
	}
	r.GET("/ws", s.handleWebSocket)

	log.Printf("[server] Listening on %s", s.cfg.Server.Addr)
	return r.Run(s.cfg.Server.Addr)
}

func (s *Server) handleStart(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Concept string `json:"concept"`
		}
		_ = c.ShouldBindJSON(&req)

		if !s.controller.Start(ctx, req.Concept) {
			c.JSON(http.StatusConflict, gin.H{"error": "a run is already active"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "started"})
	}
}

func (s *Server) handleApprove(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.controller.Approve(ctx) {
			c.JSON(http.StatusConflict, gin.H{"error": "nothing awaiting approval"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "approved"})
	}
}

func (s *Server) handleAutonomous(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.controller.SetAutonomous(req.Enabled)
	c.JSON(http.StatusOK, gin.H{"autonomous": req.Enabled})
}

func (s *Server) handleHistoryReset(c *gin.Context) {
	s.controller.ResetHistory()
	c.JSON(http.StatusOK, gin.H{"status": "history cleared"})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleLogs(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Entries())
}

// wsMessage wraps each websocket frame with its payload kind
type wsMessage struct {
	Type string      `json:"type"` // "run" | "log"
	Data interface{} `json:"data"`
}

// handleWebSocket streams run updates and new audit entries. The stream is
// observation only; it replays the existing log on connect and never blocks
// the pipeline.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[server] WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	runCh, cancelRun := s.store.Subscribe()
	defer cancelRun()
	logCh, cancelLog := s.store.SubscribeLogs()
	defer cancelLog()

	// Replay: current snapshot plus the full audit trail
	if err := conn.WriteJSON(wsMessage{Type: "run", Data: s.store.Snapshot()}); err != nil {
		return
	}
	for _, entry := range s.store.Entries() {
		if err := conn.WriteJSON(wsMessage{Type: "log", Data: entry}); err != nil {
			return
		}
	}

	// Reader goroutine just detects the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case run := <-runCh:
			if err := conn.WriteJSON(wsMessage{Type: "run", Data: run}); err != nil {
				return
			}
		case entry := <-logCh:
			if err := conn.WriteJSON(wsMessage{Type: "log", Data: entry}); err != nil {
				return
			}
		}
	}
}
