package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klytics/xla/internal/ai"
	"github.com/klytics/xla/internal/snapshot"
	"github.com/klytics/xla/internal/store"
)

type fakeProvider struct {
	chunks   []string
	err      error
	startErr error

	system   string
	messages []ai.Message
	calls    int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Infer(_ context.Context, system string, msgs []ai.Message, _ ai.Options) (*ai.Result, error) {
	p.system, p.messages = system, msgs
	return &ai.Result{Content: strings.Join(p.chunks, "")}, nil
}

func (p *fakeProvider) Stream(ctx context.Context, system string, msgs []ai.Message, _ ai.Options) (<-chan string, <-chan error, error) {
	p.calls++
	if p.startErr != nil {
		return nil, nil, p.startErr
	}
	p.system, p.messages = system, msgs

	text := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(text)
		defer close(errs)
		for _, c := range p.chunks {
			select {
			case text <- c:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if p.err != nil {
			errs <- p.err
		}
	}()
	return text, errs, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "xla.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

const replyWithBlock = "Je mets les en-têtes en gras.\n[EXCEL_ACTIONS]\n" +
	`{"actions":[{"type":"format","range":"A1:C1","format":{"bold":true}}]}` +
	"\n[/EXCEL_ACTIONS]"

func testSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		ActiveSheet: snapshot.Sheet{
			Name:    "Feuille1",
			Headers: []string{"Produit", "Prix"},
			Rows:    [][]string{{"Stylo", "1.5"}},
		},
		WorkbookSheets: []string{"Feuille1"},
	}
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Bonjour", Title("Bonjour"))

	exact := strings.Repeat("a", 50)
	assert.Equal(t, exact, Title(exact))

	long := strings.Repeat("é", 60)
	got := Title(long)
	assert.Equal(t, strings.Repeat("é", 50)+"...", got)
}

func TestSendCreatesConversation(t *testing.T) {
	st := newTestStore(t)
	p := &fakeProvider{chunks: []string{"Je mets les en-têtes en gras.\n", replyWithBlock[len("Je mets les en-têtes en gras.\n"):]}}
	svc := NewService(st, p, Options{})

	var chunks []Chunk
	reply, err := svc.Send(context.Background(), "u1", Request{Message: "Mets la ligne 1 en gras", ExcelData: testSnapshot()}, func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, reply.ConversationID, chunks[0].ConversationID)
	assert.Equal(t, replyWithBlock, reply.Content)
	require.NotNil(t, reply.Block)
	assert.Len(t, reply.Block.Actions, 1)

	assert.Contains(t, p.system, `Feuille active : "Feuille1"`)
	require.Len(t, p.messages, 1)
	assert.Equal(t, ai.Message{Role: "user", Content: "Mets la ligne 1 en gras"}, p.messages[0])

	list, err := st.ListConversations("u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Mets la ligne 1 en gras", list[0].Title)

	msgs, err := st.Messages(reply.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.NotNil(t, msgs[0].ExcelData)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.Equal(t, replyWithBlock, msgs[1].Content)
}

func TestSendContinuesConversation(t *testing.T) {
	st := newTestStore(t)
	p := &fakeProvider{chunks: []string{"ok"}}
	svc := NewService(st, p, Options{History: 3})

	first, err := svc.Send(context.Background(), "u1", Request{Message: "un"}, func(Chunk) error { return nil })
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), "u1", Request{Message: "deux", ConversationID: first.ConversationID}, func(Chunk) error { return nil })
	require.NoError(t, err)

	// Stored: un, ok, deux. History keeps the last three.
	require.Len(t, p.messages, 3)
	assert.Equal(t, "un", p.messages[0].Content)
	assert.Equal(t, "deux", p.messages[2].Content)

	_, err = svc.Send(context.Background(), "u1", Request{Message: "trois", ConversationID: first.ConversationID}, func(Chunk) error { return nil })
	require.NoError(t, err)
	require.Len(t, p.messages, 3)
	assert.Equal(t, "deux", p.messages[0].Content)
	assert.Equal(t, "trois", p.messages[2].Content)

	// No snapshot means the persona alone.
	assert.NotContains(t, p.system, "DONNÉES EXCEL")
}

func TestSendRejectsForeignConversation(t *testing.T) {
	st := newTestStore(t)
	conv, err := st.CreateConversation("owner", "t")
	require.NoError(t, err)

	p := &fakeProvider{chunks: []string{"x"}}
	_, err = NewService(st, p, Options{}).Send(context.Background(), "intruder", Request{Message: "hi", ConversationID: conv.ID}, func(Chunk) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, p.calls)
}

func TestSendEmptyMessage(t *testing.T) {
	_, err := NewService(newTestStore(t), &fakeProvider{}, Options{}).Send(context.Background(), "u1", Request{Message: "  "}, nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendStreamErrorKeepsOnlyUserMessage(t *testing.T) {
	st := newTestStore(t)
	p := &fakeProvider{chunks: []string{"début"}, err: errors.New("connection reset")}

	var got []Chunk
	_, err := NewService(st, p, Options{}).Send(context.Background(), "u1", Request{Message: "question"}, func(c Chunk) error {
		got = append(got, c)
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Len(t, got, 1)

	list, err := st.ListConversations("u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	msgs, err := st.Messages(list[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
}

func TestSendEmitFailureStopsStream(t *testing.T) {
	st := newTestStore(t)
	p := &fakeProvider{chunks: []string{"a", "b", "c", "d"}}

	calls := 0
	_, err := NewService(st, p, Options{}).Send(context.Background(), "u1", Request{Message: "q"}, func(Chunk) error {
		calls++
		return errors.New("broken pipe")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client went away")
	assert.Equal(t, 1, calls)
}

func TestSendProviderStartError(t *testing.T) {
	p := &fakeProvider{startErr: &ai.APIError{Status: 401, Body: "bad key"}}
	_, err := NewService(newTestStore(t), p, Options{}).Send(context.Background(), "u1", Request{Message: "q"}, func(Chunk) error { return nil })

	var apiErr *ai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
}
