package main

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"parley/internal/config"
	"parley/internal/state"
	"parley/internal/store"
	"parley/internal/types"
	"parley/pkg/protocol"
)

// PingInterval is the liveness probe cycle length; a package var so tests
// can shorten it.
var PingInterval = 30 * time.Second

type Server struct {
	cfg          config.Config
	log          *slog.Logger
	stateManager *state.Manager
	store        *store.Store
	router       *gin.Engine
	validate     *validator.Validate

	namesMu sync.Mutex
	names   map[string]struct{}
}

func NewServer(cfg config.Config, log *slog.Logger, st *store.Store) *Server {
	s := &Server{
		cfg:          cfg,
		log:          log,
		stateManager: state.NewManager(cfg.EventBufferSize),
		store:        st,
		validate:     validator.New(),
		names:        make(map[string]struct{}),
	}
	s.setupRouter()
	return s
}

// Start launches the broadcast pump and the liveness sweeper. Both run for
// the life of the process.
func (s *Server) Start() {
	go s.broadcastLoop()
	go s.livenessLoop()
}

func (s *Server) setupRouter() {
	r := gin.New()
	r.Use(gin.Recovery(), s.cidMiddleware(), s.otelMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "parley"})
	})

	r.POST("/api/register", s.handleRegister)
	r.POST("/api/upload", s.handleUpload)
	r.GET("/api/history", s.handleHistory)
	r.GET("/api/stats", s.handleStats)

	r.GET("/ws", s.handleWebSocket)

	r.Static("/uploads", s.cfg.UploadDir)
	r.Static("/static", s.cfg.StaticDir)
	r.StaticFile("/", filepath.Join(s.cfg.StaticDir, "index.html"))

	s.router = r
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=1,max=32"`
}

// handleRegister reserves a display name. This is the only place uniqueness
// is checked; the websocket registerUser event trusts whatever name the
// connection declares.
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"accepted": false, "reason": "invalid payload"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"accepted": false, "reason": "invalid username"})
		return
	}

	s.namesMu.Lock()
	defer s.namesMu.Unlock()
	if _, taken := s.names[req.Username]; taken {
		c.JSON(http.StatusConflict, gin.H{"accepted": false, "reason": "username already taken"})
		return
	}
	s.names[req.Username] = struct{}{}
	s.log.Info("username registered", "username", req.Username)
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

// handleUpload stores a binary payload and returns the opaque reference path
// clients embed in image/audio messages.
func (s *Server) handleUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	name := uuid.New().String() + filepath.Ext(file.Filename)
	if err := c.SaveUploadedFile(file, filepath.Join(s.cfg.UploadDir, name)); err != nil {
		s.log.Error("upload save failed", "filename", file.Filename, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"filePath": "/uploads/" + name})
}

// handleHistory serves the full ordered sequence from the in-memory cache,
// projected to the same frame shape the websocket broadcasts, so clients
// render live and replayed messages with one code path.
func (s *Server) handleHistory(c *gin.Context) {
	frames := lo.Map(s.store.All(), func(m types.Message, _ int) protocol.Outbound {
		return protocol.NewChatMessage(m.ID, m.Author, string(m.Kind), m.Content, m.CreatedAt)
	})
	c.JSON(http.StatusOK, gin.H{"messages": frames})
}

func (s *Server) handleStats(c *gin.Context) {
	stats := s.stateManager.Stats()
	stats.CachedMessages = s.store.Len()
	stats.DurableLag = s.store.Lag()
	c.JSON(http.StatusOK, stats)
}
