package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/klytics/xla/internal/actions"
	"github.com/klytics/xla/internal/audit"
	"github.com/klytics/xla/internal/auth"
	"github.com/klytics/xla/internal/executor"
	"github.com/klytics/xla/internal/host"
	"github.com/klytics/xla/internal/snapshot"
	"github.com/klytics/xla/internal/store"
)

// Messages returned to clients, matching the web add-in.
const (
	msgUnauthorized = "Non autorisé"
	msgNotFound     = "Conversation introuvable"
	msgTitle        = "Titre requis"
	msgMessage      = "Message requis"
	msgBadRequest   = "Requête invalide"
	msgNoWorkbook   = "Aucun classeur attaché"
)

const claimsKey = "claims"

// ServerOptions configures a Server.
type ServerOptions struct {
	// Secret verifies bearer tokens. Empty runs single-user as auth.LocalUser.
	Secret string
	// Reader and Executor are set when a workbook is attached to the server.
	Reader   *snapshot.Reader
	Executor *executor.Executor
	Logger   *log.Logger
}

// Server exposes the chat service and conversation history over HTTP.
type Server struct {
	svc    *Service
	store  *store.Store
	opts   ServerOptions
	logger *log.Logger
}

// NewServer creates a server for svc backed by st.
func NewServer(svc *Service, st *store.Store, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{svc: svc, store: st, opts: opts, logger: logger}
}

// requestLogger logs one line per request. Websocket clients pass their
// bearer token as ?token=, so the query is logged with it masked.
func (s *Server) requestLogger() gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Output: s.logger.Writer(),
		Formatter: func(p gin.LogFormatterParams) string {
			return fmt.Sprintf("%s %3d %13v %15s %-7s %s\n",
				p.TimeStamp.Format("15:04:05"), p.StatusCode, p.Latency, p.ClientIP, p.Method, redactQuery(p.Path))
		},
	})
}

func redactQuery(path string) string {
	base, raw, ok := strings.Cut(path, "?")
	if !ok {
		return path
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return base + "?[unparsable query]"
	}
	if !q.Has("token") {
		return path
	}
	q.Set("token", "REDACTED")
	return base + "?" + q.Encode()
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(s.requestLogger(), gin.Recovery())

	router.GET("/healthcheck", func(c *gin.Context) {
		c.String(http.StatusOK, "health")
	})

	api := router.Group("/api", s.authenticate)
	api.POST("/chat", s.chatAction)
	api.GET("/chat/ws", s.chatSocketAction)

	api.GET("/conversations", s.listConversationsAction)
	api.GET("/conversations/:id", s.getConversationAction)
	api.PATCH("/conversations/:id", s.renameConversationAction)
	api.DELETE("/conversations/:id", s.deleteConversationAction)

	api.GET("/snapshot", s.snapshotAction)
	api.POST("/actions/apply", s.applyAction)

	return router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Printf("listening on %s", listener.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) authenticate(c *gin.Context) {
	claims, err := auth.FromRequest(s.opts.Secret, c.Request)
	if err != nil {
		s.logger.Printf("rejected %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgUnauthorized})
		return
	}
	c.Set(claimsKey, claims)
	c.Next()
}

func userID(c *gin.Context) string {
	return c.MustGet(claimsKey).(*auth.Claims).UserID
}

// statusFor maps service errors to a status and client message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return http.StatusBadRequest, msgMessage
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, host.ErrHostUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusBadGateway, err.Error()
	}
}

// withSnapshot fills in the attached workbook when the client sent none.
func (s *Server) withSnapshot(ctx context.Context, req *Request) {
	if req.ExcelData == nil && s.opts.Reader != nil {
		req.ExcelData = s.opts.Reader.Read(ctx)
	}
}

func (s *Server) chatAction(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgBadRequest})
		return
	}
	s.withSnapshot(c.Request.Context(), &req)

	sse := &sseWriter{w: c.Writer}
	if _, err := s.svc.Send(c.Request.Context(), userID(c), req, sse.chunk); err != nil {
		if !sse.started {
			status, msg := statusFor(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		s.logger.Printf("chat stream failed: %v", err)
		sse.fail(err)
		return
	}
	sse.done()
}

func (s *Server) listConversationsAction(c *gin.Context) {
	list, err := s.store.ListConversations(userID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

type conversationUri struct {
	ID string `uri:"id" binding:"required"`
}

func (s *Server) getConversationAction(c *gin.Context) {
	var uri conversationUri
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgBadRequest})
		return
	}

	conv, err := s.store.GetConversation(userID(c), uri.ID)
	if err != nil {
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	msgs, err := s.store.Messages(conv.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": msgs})
}

func (s *Server) renameConversationAction(c *gin.Context) {
	var uri conversationUri
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgBadRequest})
		return
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgTitle})
		return
	}

	if err := s.store.RenameConversation(userID(c), uri.ID, strings.TrimSpace(body.Title)); err != nil {
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) deleteConversationAction(c *gin.Context) {
	var uri conversationUri
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgBadRequest})
		return
	}
	if err := s.store.DeleteConversation(userID(c), uri.ID); err != nil {
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) snapshotAction(c *gin.Context) {
	if s.opts.Reader == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": msgNoWorkbook})
		return
	}
	snap, err := s.opts.Reader.ReadErr(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// applyAction accepts either a bare block ({"actions":[...]}) or assistant
// text carrying one ({"text":"..."} or a plain text body).
func (s *Server) applyAction(c *gin.Context) {
	if s.opts.Executor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": msgNoWorkbook})
		return
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgBadRequest})
		return
	}

	block, err := decodeApply(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := audit.WithUser(c.Request.Context(), userID(c))
	res := s.opts.Executor.Execute(ctx, block)
	status := http.StatusOK
	if errors.Is(res.Err, host.ErrHostUnavailable) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, res)
}

func decodeApply(raw []byte) (*actions.Block, error) {
	var body struct {
		Text    string          `json:"text"`
		Actions json.RawMessage `json:"actions"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Actions != nil {
			return actions.Decode(raw)
		}
		if body.Text != "" {
			return actions.Extract(body.Text)
		}
	}
	return actions.Extract(string(raw))
}
