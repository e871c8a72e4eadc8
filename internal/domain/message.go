package domain

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one stored turn of a conversation.
type Message struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Role      Role      `db:"role"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"ts"`
}

// Turn is a role/content pair sent to a language model.
type Turn struct {
	Role    Role
	Content string
}
