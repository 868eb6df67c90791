package fixture

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xerrors/Yuxi-Know/pkg/logger"
)

// Request is one call the server received
type Request struct {
	Method string
	Path   string
	Query  string
	Body   json.RawMessage
}

type thread struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	AgentID   string `json:"agent_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type feedback struct {
	ID        int     `json:"id"`
	MessageID string  `json:"message_id"`
	Rating    string  `json:"rating"`
	Reason    *string `json:"reason"`
	CreatedAt string  `json:"created_at"`
}

// Server replays Fixtures behind the backend's chat routes
type Server struct {
	router   *gin.Engine
	fx       Fixtures
	upgrader websocket.Upgrader

	mu       sync.Mutex
	requests []Request
	threads  map[string]thread
	feedback map[string]feedback
}

func NewServer(fx Fixtures) *Server {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	s := &Server{
		router:   r,
		fx:       fx,
		threads:  make(map[string]thread),
		feedback: make(map[string]feedback),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.registerRoutes()
	return s
}

// Engine returns the gin engine, usable as an http.Handler
func (s *Server) Engine() *gin.Engine { return s.router }

// Requests returns the recorded calls in arrival order
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api/chat")
	api.POST("/agent/:agent_id", s.handleChat)
	api.POST("/agent/:agent_id/resume", s.handleResume)
	api.GET("/agent/:agent_id/history", s.handleHistory)
	api.GET("/agent/:agent_id/state", s.handleState)

	api.POST("/thread", s.handleCreateThread)
	api.GET("/threads", s.handleListThreads)
	api.DELETE("/thread/:thread_id", s.handleDeleteThread)

	api.POST("/message/:message_id/feedback", s.handleSubmitFeedback)
	api.GET("/message/:message_id/feedback", s.handleGetFeedback)

	s.router.GET("/ws/chat/agent/:agent_id", s.handleWebSocket)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithComponent("fixture").Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func detail(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"detail": msg})
}

// record stores the call and returns its JSON body, if any
func (s *Server) record(c *gin.Context) json.RawMessage {
	var body json.RawMessage
	if c.Request.Body != nil {
		data, _ := io.ReadAll(c.Request.Body)
		if json.Valid(data) {
			body = data
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Query:  c.Request.URL.RawQuery,
		Body:   body,
	})
	s.mu.Unlock()
	return body
}

// streamName picks the stream a chat body asks for
func streamName(body json.RawMessage) string {
	var req struct {
		Config map[string]any `json:"config"`
	}
	if json.Unmarshal(body, &req) == nil {
		if name, ok := req.Config["fixture"].(string); ok && name != "" {
			return name
		}
	}
	return StreamChat
}

func (s *Server) handleChat(c *gin.Context) {
	body := s.record(c)
	var req struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Query == "" {
		detail(c, http.StatusUnprocessableEntity, "query is required")
		return
	}
	s.replay(c, streamName(body))
}

func (s *Server) handleResume(c *gin.Context) {
	body := s.record(c)
	var req struct {
		ThreadID string `json:"thread_id"`
		Approved *bool  `json:"approved"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.ThreadID == "" || req.Approved == nil {
		detail(c, http.StatusUnprocessableEntity, "thread_id and approved are required")
		return
	}
	s.replay(c, StreamResume)
}

// replay writes the named stream line by line, flushing after each
func (s *Server) replay(c *gin.Context, name string) {
	lines, ok := s.fx.Streams[name]
	if !ok {
		detail(c, http.StatusNotFound, "no fixture stream "+name)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	var (
		w     io.Writer = c.Writer
		flush           = func() {}
	)
	switch s.fx.Encoding {
	case "br":
		c.Header("Content-Encoding", "br")
		bw := brotli.NewWriter(c.Writer)
		defer bw.Close()
		w, flush = bw, func() { _ = bw.Flush() }
	case "gzip":
		c.Header("Content-Encoding", "gzip")
		gw := gzip.NewWriter(c.Writer)
		defer gw.Close()
		w, flush = gw, func() { _ = gw.Flush() }
	}
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	for i, line := range lines {
		if i > 0 && !sleep(ctx, s.fx.Delay) {
			return
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return
		}
		flush()
		c.Writer.Flush()
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) handleHistory(c *gin.Context) {
	s.record(c)
	threadID := c.Query("thread_id")
	if threadID == "" {
		detail(c, http.StatusUnprocessableEntity, "thread_id is required")
		return
	}
	history := s.fx.History[threadID]
	if history == nil {
		history = []json.RawMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (s *Server) handleState(c *gin.Context) {
	s.record(c)
	state, ok := s.fx.States[c.Query("thread_id")]
	if !ok {
		c.JSON(http.StatusOK, gin.H{"agent_state": gin.H{"todos": []any{}, "files": []any{}}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_state": state})
}

func (s *Server) handleCreateThread(c *gin.Context) {
	body := s.record(c)
	var req struct {
		AgentID string `json:"agent_id"`
		Title   string `json:"title"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.AgentID == "" {
		detail(c, http.StatusUnprocessableEntity, "agent_id is required")
		return
	}
	if req.Title == "" {
		req.Title = "New conversation"
	}

	now := time.Now().UTC().Format(time.RFC3339)
	t := thread{
		ID:        uuid.NewString(),
		UserID:    "fixture",
		AgentID:   req.AgentID,
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.threads[t.ID] = t
	s.mu.Unlock()

	c.JSON(http.StatusOK, t)
}

func (s *Server) handleListThreads(c *gin.Context) {
	s.record(c)
	agentID := c.Query("agent_id")

	s.mu.Lock()
	out := make([]thread, 0, len(s.threads))
	for _, t := range s.threads {
		if agentID == "" || t.AgentID == agentID {
			out = append(out, t)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleDeleteThread(c *gin.Context) {
	s.record(c)
	id := c.Param("thread_id")

	s.mu.Lock()
	_, ok := s.threads[id]
	delete(s.threads, id)
	s.mu.Unlock()

	if !ok {
		detail(c, http.StatusNotFound, "thread not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (s *Server) handleSubmitFeedback(c *gin.Context) {
	body := s.record(c)
	var req struct {
		Rating string  `json:"rating"`
		Reason *string `json:"reason"`
	}
	if err := json.Unmarshal(body, &req); err != nil || (req.Rating != "like" && req.Rating != "dislike") {
		detail(c, http.StatusUnprocessableEntity, "Rating must be 'like' or 'dislike'")
		return
	}

	id := c.Param("message_id")
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.feedback[id]; exists {
		detail(c, http.StatusConflict, "Feedback already submitted for this message")
		return
	}
	fb := feedback{
		ID:        len(s.feedback) + 1,
		MessageID: id,
		Rating:    req.Rating,
		Reason:    req.Reason,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	s.feedback[id] = fb
	c.JSON(http.StatusOK, fb)
}

func (s *Server) handleGetFeedback(c *gin.Context) {
	s.record(c)
	s.mu.Lock()
	fb, ok := s.feedback[c.Param("message_id")]
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusOK, gin.H{"has_feedback": false, "feedback": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"has_feedback": true, "feedback": fb})
}

// handleWebSocket reads one chat request message, then sends each stream
// line as a text message and closes normally
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithComponent("fixture").Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.requests = append(s.requests, Request{Method: "WS", Path: c.Request.URL.Path, Body: data})
	s.mu.Unlock()

	lines, ok := s.fx.Streams[streamName(data)]
	if !ok {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "no fixture stream"))
		return
	}

	ctx := c.Request.Context()
	for i, line := range lines {
		if i > 0 && !sleep(ctx, s.fx.Delay) {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
