package domain

import "strings"

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one prior turn supplied by the client. History is not stored.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// NormalizeChatRole maps anything other than "user" to the assistant role.
func NormalizeChatRole(raw string) ChatRole {
	if strings.EqualFold(strings.TrimSpace(raw), string(ChatRoleUser)) {
		return ChatRoleUser
	}
	return ChatRoleAssistant
}

type ChatReply struct {
	ContractID string `json:"contract_id"`
	Response   string `json:"response"`
}
