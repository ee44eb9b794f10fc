package chat

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/klytics/xla/internal/actions"
)

// frame is a server-to-client websocket message. Chunks are sent as Chunk
// values; a frame closes each turn.
type frame struct {
	Done           bool           `json:"done,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	Actions        *actions.Block `json:"actions,omitempty"`
	Error          string         `json:"error,omitempty"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin accepts any origin when tokens are required, since the add-in
// is served from another host. Without a secret only same-host pages may
// connect.
func (s *Server) checkOrigin(r *http.Request) bool {
	if s.opts.Secret != "" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// chatSocketAction runs chat turns over one websocket. Each client message
// is a Request; replies stream back as chunks followed by a frame.
func (s *Server) chatSocketAction(c *gin.Context) {
	conn, err := s.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	user := userID(c)
	ctx := c.Request.Context()
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Printf("websocket read failed: %v", err)
			}
			return
		}
		s.withSnapshot(ctx, &req)

		reply, err := s.svc.Send(ctx, user, req, func(ch Chunk) error {
			return conn.WriteJSON(ch)
		})
		if err != nil {
			_, msg := statusFor(err)
			if werr := conn.WriteJSON(frame{Error: msg, ConversationID: req.ConversationID}); werr != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(frame{Done: true, ConversationID: reply.ConversationID, Actions: reply.Block}); err != nil {
			return
		}
	}
}
