package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chauffeur-ai/chauffeur/model"
)

func newTestStore(t *testing.T) *Store {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSaveGeneratesIDAndTitle(t *testing.T) {
	s := newTestStore(t)
	sess := &Session{
		Model:    "gpt-4o",
		Provider: "openai",
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "be terse"},
			{Role: model.RoleUser, Content: "  book a   flight to Lisbon  "},
		},
	}
	require.NoError(t, s.Save(sess))
	require.NotEmpty(t, sess.ID)
	require.Equal(t, "book a flight to Lisbon", sess.Title)
	require.Equal(t, 2, sess.MessageCount)
	require.False(t, sess.CreatedAt.IsZero())
}

func TestSavePreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)
	sess := &Session{Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}}
	require.NoError(t, s.Save(sess))
	created := sess.CreatedAt

	time.Sleep(10 * time.Millisecond)
	sess.Messages = append(sess.Messages, model.Message{Role: model.RoleAssistant, Content: "hello"})
	sess.CreatedAt = time.Now().Add(time.Hour) // must be ignored
	require.NoError(t, s.Save(sess))

	loaded, err := s.Load(sess.ID)
	require.NoError(t, err)
	require.True(t, loaded.CreatedAt.Equal(created))
	require.True(t, loaded.UpdatedAt.After(created))
	require.Equal(t, 2, loaded.MessageCount)
}

func TestListSortedAndCapped(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		sess := &Session{Messages: []model.Message{{Role: model.RoleUser, Content: "task"}}}
		require.NoError(t, s.Save(sess))
		time.Sleep(5 * time.Millisecond)
	}
	metas, err := s.List(3)
	require.NoError(t, err)
	require.Len(t, metas, 3)
	for i := 1; i < len(metas); i++ {
		require.False(t, metas[i].UpdatedAt.After(metas[i-1].UpdatedAt))
	}
}

func TestListSkipsGarbageFiles(t *testing.T) {
	s := newTestStore(t)
	sess := &Session{Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}}
	require.NoError(t, s.Save(sess))
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "garbage.json"), []byte("not json"), 0o644))

	metas, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, metas, 1)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	sess := &Session{Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}}
	require.NoError(t, s.Save(sess))
	require.NoError(t, s.Delete(sess.ID))
	_, err := s.Load(sess.ID)
	require.Error(t, err)
}

func TestExportMarkdown(t *testing.T) {
	s := newTestStore(t)
	sess := &Session{
		Title:    "Flight search",
		Model:    "claude-sonnet-4-20250514",
		Provider: "anthropic",
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "hidden"},
			{Role: model.RoleUser, Content: "find flights"},
			{Role: model.RoleAssistant, Content: "Searching.", ToolCalls: []model.ToolCall{
				{ID: "c1", Name: "browser", Arguments: `{"action":"open"}`},
			}},
			{Role: model.RoleTool, ToolCallID: "c1", Content: "Opened kayak.com"},
		},
	}
	require.NoError(t, s.Save(sess))

	md, err := s.Export(sess.ID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(md, "# Flight search"))
	require.Contains(t, md, "## User\n\nfind flights")
	require.Contains(t, md, "tool call: `browser`")
	require.Contains(t, md, "Opened kayak.com")
	require.NotContains(t, md, "hidden")
}

func TestDeriveTitleTruncates(t *testing.T) {
	long := strings.Repeat("word ", 40)
	title := deriveTitle([]model.Message{{Role: model.RoleUser, Content: long}})
	require.Len(t, title, titleMaxLen)
}
