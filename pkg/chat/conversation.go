package chat

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hikmah-ai/hikmah/pkg/core"
)

const (
	defaultTitle   = "New Discussion"
	maxTitleLen    = 30
	apologyMessage = "I apologize, but I encountered an error. Please try asking again."
)

// Conversation drives a chat session against the orchestrator: it appends
// messages, folds streamed deltas into a placeholder, and derives titles.
type Conversation struct {
	orch   *Orchestrator
	logger *slog.Logger
}

func NewConversation(orch *Orchestrator, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{orch: orch, logger: logger}
}

// NewSession creates an empty untitled session.
func NewSession() *core.ChatSession {
	now := time.Now()
	return &core.ChatSession{
		ID:        uuid.NewString(),
		Title:     defaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Ask appends the user's message and a streaming model placeholder, then
// folds deltas into the placeholder as they arrive, invoking onUpdate after
// each change. A failed stream replaces the placeholder text with an apology
// instead of surfacing the error to the caller; either way the streaming
// flag is cleared before Ask returns.
func (c *Conversation) Ask(ctx context.Context, s *core.ChatSession, text string, onUpdate func()) {
	history := append([]core.Message(nil), s.Messages...)

	s.Messages = append(s.Messages,
		core.Message{ID: uuid.NewString(), Role: core.RoleUser, Text: text},
		core.Message{ID: uuid.NewString(), Role: core.RoleModel, Streaming: true},
	)
	c.touch(s, text)
	notify(onUpdate)

	reply := &s.Messages[len(s.Messages)-1]
	err := c.orch.StreamChat(ctx, history, text, func(delta string) {
		reply.Text += delta
		notify(onUpdate)
	})
	if err != nil {
		c.logger.Warn("chat stream failed", "session", s.ID, "err", err)
		reply.Text = apologyMessage
	}
	reply.Streaming = false
	s.UpdatedAt = time.Now()
	notify(onUpdate)
}

// AskGrounded answers with the search tool in a single shot, attaching the
// citations to the model message. Failures get the apology message too.
func (c *Conversation) AskGrounded(ctx context.Context, s *core.ChatSession, query string, onUpdate func()) {
	s.Messages = append(s.Messages, core.Message{ID: uuid.NewString(), Role: core.RoleUser, Text: query})
	c.touch(s, query)
	notify(onUpdate)

	answer, citations, err := c.orch.SearchGrounded(ctx, query)
	reply := core.Message{ID: uuid.NewString(), Role: core.RoleModel, Text: answer, Citations: citations}
	if err != nil {
		c.logger.Warn("grounded query failed", "session", s.ID, "err", err)
		reply.Text = apologyMessage
		reply.Citations = nil
	}
	s.Messages = append(s.Messages, reply)
	s.UpdatedAt = time.Now()
	notify(onUpdate)
}

// EditImage runs an image edit and appends the result as a model message
// carrying the edited image as a base64 data attachment.
func (c *Conversation) EditImage(ctx context.Context, s *core.ChatSession, image []byte, mimeType, prompt string, onUpdate func()) {
	s.Messages = append(s.Messages, core.Message{ID: uuid.NewString(), Role: core.RoleUser, Text: prompt})
	c.touch(s, prompt)
	notify(onUpdate)

	edited, text, err := c.orch.EditImage(ctx, image, mimeType, prompt)
	reply := core.Message{ID: uuid.NewString(), Role: core.RoleModel, Text: text}
	if err != nil {
		c.logger.Warn("image edit failed", "session", s.ID, "err", err)
		reply.Text = apologyMessage
	} else {
		reply.Images = []string{base64.StdEncoding.EncodeToString(edited)}
	}
	s.Messages = append(s.Messages, reply)
	s.UpdatedAt = time.Now()
	notify(onUpdate)
}

// touch stamps the session and titles it from its first user message.
func (c *Conversation) touch(s *core.ChatSession, firstText string) {
	s.UpdatedAt = time.Now()
	if s.Title != defaultTitle && s.Title != "" {
		return
	}
	s.Title = DeriveTitle(firstText)
}

// DeriveTitle truncates a first message into a session title.
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen]) + "..."
	}
	return text
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}
