package models

import "time"

// ChatRole identifies the author of a conversation message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleSystem    ChatRole = "system"
)

// ChatMessage is one turn in a session. Messages are append-only within a
// session; for CHAT-classified turns Metadata never carries SQL or rows.
type ChatMessage struct {
	Role      ChatRole          `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// BranchContext carries per-branch conversation state for refinement flows.
type BranchContext struct {
	BranchID    string    `json:"branch_id"`
	SessionID   string    `json:"session_id"`
	LastSQL     string    `json:"last_sql,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}
