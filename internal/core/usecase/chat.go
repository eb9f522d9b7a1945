package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
)

const (
	chatHistoryMessages = 10
	maxChatMessageRunes = 4000
	defaultChatTimeout  = 60 * time.Second
)

// ChatService answers questions about a contract from its stored analysis.
// Conversation history lives with the client and is passed in on each call.
type ChatService struct {
	store   ports.ContractStore
	chat    ports.ChatCapability
	timeout time.Duration
}

func NewChatService(store ports.ContractStore, chat ports.ChatCapability, timeout time.Duration) *ChatService {
	if timeout <= 0 {
		timeout = defaultChatTimeout
	}
	return &ChatService{store: store, chat: chat, timeout: timeout}
}

func (s *ChatService) Ask(
	ctx context.Context,
	contractID, actorID, message string,
	history []domain.ChatMessage,
) (*domain.ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.NewError(domain.ErrInvalidInput, "contract chat", "message is required")
	}
	if utf8.RuneCountInString(message) > maxChatMessageRunes {
		return nil, domain.NewError(domain.ErrInvalidInput, "contract chat",
			fmt.Sprintf("message exceeds %d characters", maxChatMessageRunes))
	}

	access, err := readAccess(ctx, s.store, contractID, actorID)
	if err != nil {
		return nil, err
	}
	if err := access.requireParty("contract chat"); err != nil {
		return nil, err
	}

	detail, err := s.store.GetDetail(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("load contract detail: %w", err)
	}
	slices.SortStableFunc(detail.Clauses, func(a, b domain.Clause) int {
		return a.Index - b.Index
	})

	recent := recentHistory(history, chatHistoryMessages)

	chatCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	answer, err := s.chat.Chat(chatCtx, detail, message, recent)
	if err != nil {
		slog.Warn("contract_chat_failed",
			"contract_id", contractID,
			"actor_id", actorID,
			"error", err,
		)
		return nil, domain.WrapError(domain.ErrTemporary, "contract chat", err)
	}
	slog.Info("contract_chat_answered",
		"contract_id", contractID,
		"actor_id", actorID,
		"history_messages", len(recent),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &domain.ChatReply{ContractID: contractID, Response: answer}, nil
}

// recentHistory keeps the last n non-empty turns with normalized roles.
func recentHistory(history []domain.ChatMessage, n int) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, min(len(history), n))
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		out = append(out, domain.ChatMessage{
			Role:    domain.NormalizeChatRole(string(msg.Role)),
			Content: content,
		})
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
