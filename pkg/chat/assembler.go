// Package chat implements the digital consciousness conversation flow.
//
// Each exchange is grounded in the user's most recent memories: they are
// rendered into the system prompt so the model answers in the user's own
// context. Both sides of the exchange are persisted as interactions.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/snowflake"

	"github.com/soulnet-ai/soulnet-go/pkg/llm"
	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

// ContextMemories is how many recent memories are injected into the prompt.
const ContextMemories = 5

const (
	systemPromptHeader = `Você é a Consciência Digital do usuário no SoulNet.
Use as memórias fornecidas como contexto e responda no estilo pessoal dele.
Mantenha respostas concisas e contextuais.

Memórias recentes:
`

	// noMemoriesContext replaces the memory block for brand-new users.
	noMemoriesContext = "Nenhuma memória encontrada."

	// fallbackReply is returned when a successful completion carries no
	// content. Provider failures are surfaced as errors instead.
	fallbackReply = "Desculpe, não consegui processar sua mensagem."
)

// ErrEmptyMessage indicates an empty or whitespace-only chat message.
var ErrEmptyMessage = errors.New("chat message is required")

// Reply is the outcome of one chat exchange.
type Reply struct {
	// Content is the consciousness response shown to the user.
	Content string `json:"reply"`

	// Persisted reports whether Content was stored as an interaction.
	// The reply is still returned when storage fails.
	Persisted bool `json:"persisted"`

	// MemoriesUsed is how many memories were injected as context.
	MemoriesUsed int `json:"memories_used"`
}

// Assembler runs chat exchanges against the configured LLM provider.
type Assembler struct {
	llm          llm.Provider
	memories     storage.MemoryStore
	interactions storage.InteractionStore
	node         *snowflake.Node
	model        string
	logger       *slog.Logger
}

// NewAssembler creates a chat assembler. model is recorded in the metadata of
// persisted consciousness replies.
func NewAssembler(provider llm.Provider, memories storage.MemoryStore, interactions storage.InteractionStore, node *snowflake.Node, model string, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		llm:          provider,
		memories:     memories,
		interactions: interactions,
		node:         node,
		model:        model,
		logger:       logger,
	}
}

// Respond handles one user message: persists it, builds a memory-grounded
// prompt, generates the consciousness reply and persists that too.
//
// Failing to store the user message or to generate a completion aborts the
// exchange. Failing to store the reply does not: the reply is returned with
// Persisted set to false so the caller can still show it.
func (a *Assembler) Respond(ctx context.Context, userID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	userTurn := &storage.Interaction{
		ID:      a.node.Generate().Int64(),
		UserID:  userID,
		Role:    storage.RoleUser,
		Content: message,
		Meta:    map[string]interface{}{"source": "chat"},
	}
	if err := a.interactions.InsertInteraction(ctx, userTurn); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	recent, err := a.memories.ListMemories(ctx, &storage.ListMemoriesOptions{
		UserID: userID,
		Limit:  ContextMemories,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch memories: %w", err)
	}

	reply, err := a.generate(ctx, recent, message)
	if err != nil {
		return nil, fmt.Errorf("failed to generate reply: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		a.logger.Warn("empty completion, using fallback reply",
			slog.String("user_id", userID))
		reply = fallbackReply
	}

	consciousnessTurn := &storage.Interaction{
		ID:      a.node.Generate().Int64(),
		UserID:  userID,
		Role:    storage.RoleConsciousness,
		Content: reply,
		Meta: map[string]interface{}{
			"source":        "chat",
			"model":         a.model,
			"memories_used": len(recent),
		},
	}
	persisted := true
	if err := a.interactions.InsertInteraction(ctx, consciousnessTurn); err != nil {
		persisted = false
		a.logger.Error("failed to save consciousness reply",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}

	return &Reply{
		Content:      reply,
		Persisted:    persisted,
		MemoriesUsed: len(recent),
	}, nil
}

func (a *Assembler) generate(ctx context.Context, recent []*storage.Memory, message string) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPromptHeader + memoryContext(recent)},
		{Role: llm.RoleUser, Content: message},
	}

	return a.llm.GenerateWithMessages(ctx, messages,
		llm.WithMaxTokens(500),
		llm.WithTemperature(0.7),
	)
}

// memoryContext renders memories as one prompt line each, newest first.
func memoryContext(memories []*storage.Memory) string {
	if len(memories) == 0 {
		return noMemoriesContext
	}
	lines := make([]string, 0, len(memories))
	for _, m := range memories {
		lines = append(lines, fmt.Sprintf("[%s] %s (Importância: %d/5)", m.Type, m.Content, m.Importance))
	}
	return strings.Join(lines, "\n")
}
