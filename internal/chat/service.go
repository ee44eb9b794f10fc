// Package chat runs assistant conversations: it persists turns, builds the
// workbook-aware system prompt and streams provider replies to clients.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/klytics/xla/internal/actions"
	"github.com/klytics/xla/internal/ai"
	"github.com/klytics/xla/internal/prompt"
	"github.com/klytics/xla/internal/snapshot"
	"github.com/klytics/xla/internal/store"
)

const (
	// DefaultHistory is how many stored messages are replayed to the model.
	DefaultHistory = 20
	titleRunes     = 50
)

// ErrEmptyMessage is returned when a request has no message text.
var ErrEmptyMessage = errors.New("message is required")

// Request is one user turn.
type Request struct {
	Message        string             `json:"message"`
	ConversationID string             `json:"conversationId,omitempty"`
	ExcelData      *snapshot.Snapshot `json:"excelData,omitempty"`
}

// Chunk is one streamed delta of the assistant reply.
type Chunk struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversationId"`
}

// Reply is the complete assistant turn once streaming ends.
type Reply struct {
	ConversationID string        `json:"conversationId"`
	Content        string        `json:"content"`
	Block          *actions.Block `json:"actions,omitempty"`
}

// Options tunes a Service.
type Options struct {
	History int
	MaxRows int
	Model   string
	Logger  *log.Logger
}

// Service sends user turns to a provider and records both sides.
type Service struct {
	store    *store.Store
	provider ai.Provider
	opts     Options
	logger   *log.Logger
}

// NewService creates a chat service.
func NewService(st *store.Store, provider ai.Provider, opts Options) *Service {
	if opts.History <= 0 {
		opts.History = DefaultHistory
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{store: st, provider: provider, opts: opts, logger: logger}
}

// Title derives a conversation title from its first message.
func Title(message string) string {
	if utf8.RuneCountInString(message) <= titleRunes {
		return message
	}
	runes := []rune(message)
	return string(runes[:titleRunes]) + "..."
}

// Send stores the user turn, streams the assistant reply through emit and
// stores it. A failing emit aborts the stream. The assistant message is only
// stored when the provider stream completes.
func (s *Service) Send(ctx context.Context, userID string, req Request, emit func(Chunk) error) (*Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	convID := req.ConversationID
	if convID == "" {
		conv, err := s.store.CreateConversation(userID, Title(req.Message))
		if err != nil {
			return nil, err
		}
		convID = conv.ID
		s.logger.Printf("conversation %s created for %s", convID, userID)
	} else if _, err := s.store.GetConversation(userID, convID); err != nil {
		return nil, err
	}

	if _, err := s.store.AppendMessage(convID, store.RoleUser, req.Message, req.ExcelData); err != nil {
		return nil, fmt.Errorf("could not save message: %w", err)
	}

	history, err := s.store.Messages(convID)
	if err != nil {
		return nil, err
	}
	if len(history) > s.opts.History {
		history = history[len(history)-s.opts.History:]
	}
	msgs := make([]ai.Message, len(history))
	for i, m := range history {
		msgs[i] = ai.Message{Role: m.Role, Content: m.Content}
	}

	system := prompt.Build(req.ExcelData, prompt.Options{MaxRows: s.opts.MaxRows})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	text, errs, err := s.provider.Stream(ctx, system, msgs, ai.Options{Model: s.opts.Model})
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", s.provider.Name(), err)
	}

	var emitErr error
	full, err := ai.Collect(text, errs, func(delta string) {
		if emitErr != nil || delta == "" {
			return
		}
		if emitErr = emit(Chunk{Content: delta, ConversationID: convID}); emitErr != nil {
			cancel()
		}
	})
	if emitErr != nil {
		return nil, fmt.Errorf("client went away: %w", emitErr)
	}
	if err != nil {
		return nil, fmt.Errorf("%s stream failed: %w", s.provider.Name(), err)
	}

	if _, err := s.store.AppendMessage(convID, store.RoleAssistant, full, nil); err != nil {
		return nil, fmt.Errorf("could not save reply: %w", err)
	}

	reply := &Reply{ConversationID: convID, Content: full, Block: actions.Parse(full)}
	if reply.Block != nil {
		s.logger.Printf("conversation %s: reply carries %d actions", convID, len(reply.Block.Actions))
	}
	return reply, nil
}
