package bots

import "time"

// Bot is a configured support assistant owned by one operator account.
type Bot struct {
	ID                  string    `json:"id"`
	OwnerUserID         string    `json:"owner_user_id"`
	Name                string    `json:"name"`
	Instructions        string    `json:"instructions"`
	WelcomeMessage      string    `json:"welcome_message"`
	Active              bool      `json:"active"`
	EscalationEnabled   bool      `json:"escalation_enabled"`
	EscalationThreshold int       `json:"escalation_threshold"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// KnowledgeEntry is an operator-authored fact injected into the AI grounding
// context. The orchestrator only ever reads these.
type KnowledgeEntry struct {
	ID       string `json:"id"`
	BotID    string `json:"bot_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}
