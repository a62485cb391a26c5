// Package conversations owns the conversation and message entities. Messages
// form an append-only log: the transcript is the audit trail and is never
// mutated after creation.
package conversations

import "time"

// Status is the conversation lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusEscalated Status = "escalated"
	StatusResolved  Status = "resolved"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation tracks one visitor's thread with a bot on a channel.
type Conversation struct {
	ID               string    `json:"id"`
	BotID            string    `json:"bot_id"`
	ChannelKind      string    `json:"channel_kind"`
	VisitorID        string    `json:"visitor_id"`
	VisitorName      string    `json:"visitor_name,omitempty"`
	VisitorEmail     string    `json:"visitor_email,omitempty"`
	Status           Status    `json:"status"`
	EscalationReason string    `json:"escalation_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Metadata is the structured annotation stored beside a message.
type Metadata struct {
	Escalated    bool `json:"escalated,omitempty"`
	UsedCommerce bool `json:"used_commerce,omitempty"`
}

// Message is one transcript entry.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Metadata       Metadata  `json:"metadata"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewConversation is the input for conversation creation.
type NewConversation struct {
	BotID        string
	ChannelKind  string
	VisitorID    string
	VisitorName  string
	VisitorEmail string
}
