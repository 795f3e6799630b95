package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/agentstream/pkg/logger"
)

const (
	DefaultStreamPath  = "/chat/stream"
	DefaultHistoryPath = "/chat/history"
)

// Request is the stream request body as received by the fixture server
type Request struct {
	ThreadID string         `json:"thread_id"`
	UserID   string         `json:"user_id"`
	Message  string         `json:"message"`
	AgentID  string         `json:"agent_id"`
	Config   map[string]any `json:"config"`
}

type Options struct {
	// Lines are written in order, each followed by a newline
	Lines []string
	// LineDelay is slept between lines
	LineDelay time.Duration
	// ChunkSize splits the body into writes of at most this many bytes,
	// flushed separately, so clients see arbitrary chunk boundaries
	ChunkSize int
	// History is served as JSON on the history path when set
	History []byte
	// RequireToken rejects requests without this bearer token
	RequireToken string
	// FailStatus answers every stream request with this status and FailMessage
	FailStatus  int
	FailMessage string

	StreamPath  string
	HistoryPath string
}

// Server replays a recorded event stream to any client that posts to the
// stream endpoint
type Server struct {
	opts   Options
	router *gin.Engine
	log    *logger.Logger

	mu       sync.Mutex
	requests []Request
}

func NewServer(opts Options) *Server {
	if opts.StreamPath == "" {
		opts.StreamPath = DefaultStreamPath
	}
	if opts.HistoryPath == "" {
		opts.HistoryPath = DefaultHistoryPath
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	s := &Server{
		opts:   opts,
		router: r,
		log:    logger.WithComponent("replay"),
	}
	r.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	authorized := s.router.Group("/", s.requireToken())
	authorized.POST(s.opts.StreamPath, s.streamHandler)
	authorized.GET(s.opts.HistoryPath, s.historyHandler)
}

// Engine returns the gin engine
func (s *Server) Engine() *gin.Engine { return s.router }

// Handler returns the server as an http.Handler
func (s *Server) Handler() http.Handler { return s.router }

// Requests returns the stream requests received so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Replay server listening", "addr", addr, "lines", len(s.opts.Lines))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("replay server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("replay server shutdown failed: %w", err)
		}
		return nil
	}
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.RequireToken == "" {
			c.Next()
			return
		}
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if got != s.opts.RequireToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing bearer token"})
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("Request served",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) streamHandler(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.opts.FailStatus != 0 {
		c.JSON(s.opts.FailStatus, gin.H{"error": s.opts.FailMessage})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for i, line := range s.opts.Lines {
		if i > 0 && s.opts.LineDelay > 0 {
			select {
			case <-time.After(s.opts.LineDelay):
			case <-ctx.Done():
				return
			}
		}
		if err := s.writeChunked(c, line+"\n"); err != nil {
			s.log.Debug("Client went away", "line", i, "error", err)
			return
		}
	}
}

func (s *Server) writeChunked(c *gin.Context, data string) error {
	size := s.opts.ChunkSize
	if size <= 0 {
		size = len(data)
	}
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		if _, err := c.Writer.WriteString(data[:n]); err != nil {
			return err
		}
		c.Writer.Flush()
		data = data[n:]
	}
	return nil
}

func (s *Server) historyHandler(c *gin.Context) {
	if s.opts.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no history recorded"})
		return
	}
	c.Data(http.StatusOK, "application/json", s.opts.History)
}

// LoadLines reads a recorded stream, one event line per file line
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stream file: %w", err)
	}
	return lines, nil
}
