// Package store persists conversations and their messages in a bbolt file.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/klytics/xla/internal/snapshot"
)

// ErrNotFound is returned for conversations that do not exist or belong to
// another user.
var ErrNotFound = errors.New("conversation not found")

// Roles of a stored message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	conversationsBucket = []byte("conversations")
	messagesBucket      = []byte("messages")
)

// Conversation is a chat thread owned by one user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary is a conversation with the content of its latest message.
type Summary struct {
	Conversation
	LastMessage *string `json:"lastMessage"`
}

// Message is one turn of a conversation. User messages carry the workbook
// snapshot they were sent with.
type Message struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversationId"`
	Role           string             `json:"role"`
	Content        string             `json:"content"`
	ExcelData      *snapshot.Snapshot `json:"excelData"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// Store is a bbolt-backed conversation store. It is safe for concurrent use.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("could not create store directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open store %s (is another xla process using it?): %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{conversationsBucket, messagesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialise store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateConversation starts a conversation for userID.
func (s *Store) CreateConversation(userID, title string) (*Conversation, error) {
	id := uuid.NewString()
	now := s.now().UTC()
	c := &Conversation{ID: id, UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := putJSON(tx.Bucket(conversationsBucket), []byte(id), c); err != nil {
			return err
		}
		_, err := tx.Bucket(messagesBucket).CreateBucket([]byte(id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not create conversation: %w", err)
	}
	return c, nil
}

// GetConversation returns the conversation if userID owns it.
func (s *Store) GetConversation(userID, id string) (*Conversation, error) {
	var c *Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		c, err = owned(tx, userID, id)
		return err
	})
	return c, err
}

// ListConversations returns the user's conversations, most recently
// updated first, each with its last message.
func (s *Store) ListConversations(userID string) ([]Summary, error) {
	var out []Summary
	err := s.db.View(func(tx *bbolt.Tx) error {
		msgs := tx.Bucket(messagesBucket)
		return tx.Bucket(conversationsBucket).ForEach(func(k, v []byte) error {
			var c Conversation
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("corrupt conversation %s: %w", k, err)
			}
			if c.UserID != userID {
				return nil
			}
			sum := Summary{Conversation: c}
			if b := msgs.Bucket(k); b != nil {
				if _, last := b.Cursor().Last(); last != nil {
					var m Message
					if err := json.Unmarshal(last, &m); err == nil {
						sum.LastMessage = &m.Content
					}
				}
			}
			out = append(out, sum)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if out == nil {
		out = []Summary{}
	}
	return out, nil
}

// RenameConversation sets the title of a conversation userID owns.
func (s *Store) RenameConversation(userID, id, title string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		c, err := owned(tx, userID, id)
		if err != nil {
			return err
		}
		c.Title = title
		return putJSON(tx.Bucket(conversationsBucket), []byte(id), c)
	})
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(userID, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := owned(tx, userID, id); err != nil {
			return err
		}
		if err := tx.Bucket(messagesBucket).DeleteBucket([]byte(id)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		return tx.Bucket(conversationsBucket).Delete([]byte(id))
	})
}

// AppendMessage stores a message and bumps the conversation's UpdatedAt.
func (s *Store) AppendMessage(conversationID, role, content string, excelData *snapshot.Snapshot) (*Message, error) {
	m := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ExcelData:      excelData,
		CreatedAt:      s.now().UTC(),
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		convs := tx.Bucket(conversationsBucket)
		raw := convs.Get([]byte(conversationID))
		if raw == nil {
			return ErrNotFound
		}
		var c Conversation
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}

		b, err := tx.Bucket(messagesBucket).CreateBucketIfNotExists([]byte(conversationID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := putJSON(b, itob(seq), m); err != nil {
			return err
		}

		c.UpdatedAt = m.CreatedAt
		return putJSON(convs, []byte(conversationID), &c)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Messages returns a conversation's messages in creation order.
func (s *Store) Messages(conversationID string) ([]Message, error) {
	out := []Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(messagesBucket).Bucket([]byte(conversationID))
		if b == nil {
			if tx.Bucket(conversationsBucket).Get([]byte(conversationID)) == nil {
				return ErrNotFound
			}
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var m Message
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func owned(tx *bbolt.Tx, userID, id string) (*Conversation, error) {
	raw := tx.Bucket(conversationsBucket).Get([]byte(id))
	if raw == nil {
		return nil, ErrNotFound
	}
	var c Conversation
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&c); err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrNotFound
	}
	return &c, nil
}

func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// itob encodes a sequence number so keys sort in insertion order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

