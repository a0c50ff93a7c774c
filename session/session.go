// Package session persists chat conversations as one JSON document per
// session. Saves preserve the original creation time; listings return
// metadata only, newest first.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chauffeur-ai/chauffeur/model"
)

// DefaultListLimit caps the number of sessions a listing returns.
const DefaultListLimit = 50

const titleMaxLen = 60

type (
	// Session is one persisted conversation snapshot.
	Session struct {
		ID               string          `json:"id"`
		Title            string          `json:"title"`
		Model            string          `json:"model"`
		Provider         string          `json:"provider"`
		CreatedAt        time.Time       `json:"created_at"`
		UpdatedAt        time.Time       `json:"updated_at"`
		MessageCount     int             `json:"message_count"`
		PromptTokens     int             `json:"prompt_tokens"`
		CompletionTokens int             `json:"completion_tokens"`
		Messages         []model.Message `json:"messages"`
	}

	// Meta is the listing view of a session: everything but the messages.
	Meta struct {
		ID               string    `json:"id"`
		Title            string    `json:"title"`
		Model            string    `json:"model"`
		Provider         string    `json:"provider"`
		CreatedAt        time.Time `json:"created_at"`
		UpdatedAt        time.Time `json:"updated_at"`
		MessageCount     int       `json:"message_count"`
		PromptTokens     int       `json:"prompt_tokens"`
		CompletionTokens int       `json:"completion_tokens"`
	}

	// Store reads and writes sessions under one directory.
	Store struct {
		dir string
	}
)

// NewStore creates the sessions directory if needed and returns a store over
// it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// NewID returns a fresh session identifier.
func NewID() string { return uuid.NewString() }

// Save writes a session to disk. A missing ID is generated; a missing title
// derives from the first user message; created_at is preserved from the
// version already on disk.
func (s *Store) Save(sess *Session) error {
	if sess.ID == "" {
		sess.ID = NewID()
	}
	if sess.Title == "" {
		sess.Title = deriveTitle(sess.Messages)
	}
	now := time.Now().UTC()
	if prev, err := s.Load(sess.ID); err == nil {
		sess.CreatedAt = prev.CreatedAt
	} else if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	sess.MessageCount = len(sess.Messages)

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	path := s.path(sess.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", sess.ID, err)
	}
	return os.Rename(tmp, path)
}

// Load reads one session by id.
func (s *Store) Load(id string) (*Session, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", id, err)
	}
	return &sess, nil
}

// Delete removes a session file.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// List returns session metadata sorted by updated_at descending, capped at
// limit (DefaultListLimit when limit <= 0). Unparseable files are skipped.
func (s *Store) List(limit int) ([]Meta, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var metas []Meta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil || meta.ID == "" {
			continue
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].UpdatedAt.After(metas[j].UpdatedAt) })
	if len(metas) > limit {
		metas = metas[:limit]
	}
	return metas, nil
}

// Export renders a session as a markdown transcript.
func (s *Store) Export(id string) (string, error) {
	sess, err := s.Load(id)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", sess.Title)
	fmt.Fprintf(&sb, "- Model: %s (%s)\n", sess.Model, sess.Provider)
	fmt.Fprintf(&sb, "- Created: %s\n", sess.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- Updated: %s\n", sess.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- Tokens: %d prompt / %d completion\n\n", sess.PromptTokens, sess.CompletionTokens)
	for _, m := range sess.Messages {
		switch m.Role {
		case model.RoleSystem:
			continue
		case model.RoleUser:
			fmt.Fprintf(&sb, "## User\n\n%s\n\n", m.Content)
		case model.RoleAssistant:
			sb.WriteString("## Assistant\n\n")
			if m.Content != "" {
				sb.WriteString(m.Content + "\n\n")
			}
			for _, call := range m.ToolCalls {
				fmt.Fprintf(&sb, "> tool call: `%s` %s\n\n", call.Name, call.Arguments)
			}
		case model.RoleTool:
			fmt.Fprintf(&sb, "> tool result (%s): %s\n\n", m.ToolCallID, m.Content)
		}
	}
	return sb.String(), nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// deriveTitle takes the first user message, collapsed to one line and capped.
func deriveTitle(msgs []model.Message) string {
	for _, m := range msgs {
		if m.Role != model.RoleUser {
			continue
		}
		title := strings.Join(strings.Fields(m.Content), " ")
		if title == "" {
			break
		}
		if len(title) > titleMaxLen {
			title = title[:titleMaxLen]
		}
		return title
	}
	return "Untitled session"
}
