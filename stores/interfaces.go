package stores

import (
	"gorm.io/gorm"
)

// Message represents any chat message or function interaction within a
// conversation turn. Rows are append-only: once written they are never
// updated.
type Message struct {
	gorm.Model
	ConversationID string `gorm:"index;not null"`
	Sequence       int    `gorm:"not null"`
	Role           string `gorm:"not null"` // "user", "model"
	Type           string `gorm:"not null"` // "user_message", "model_message", "function_call", "function_response"
	// FunctionID links a function_response back to the function_call that
	// requested it.
	FunctionID string `gorm:"index" json:"function_id,omitempty"`
	// PartsJSON stores the JSON marshaled array of content parts for this
	// turn: []models.User_Part or []models.Model_Part depending on Role.
	PartsJSON string `gorm:"type:json"`
}

// Conversation holds metadata for a chat conversation
type Conversation struct {
	gorm.Model
	ConversationID string    `gorm:"uniqueIndex;not null"`
	Title          string    `gorm:"type:text"`
	MessageCount   int       `gorm:"default:0"`
	Messages       []Message `gorm:"foreignKey:ConversationID;references:ConversationID"`
}

// MessageStore abstracts history persistence. Implementations: SQLite and
// PostgreSQL via gorm, and a per-session JSON file writer.
type MessageStore interface {
	SaveMessage(sessionID, role, messageType string, parts interface{}, functionID string) error
	FetchHistory(sessionID string, limit int) ([]Message, error)

	CreateConversation(convoID string) error
	ListConversations() ([]string, error)

	Connect() error
	Close() error
	Ping() error
}

// StoreConfig holds configuration for message stores
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite", "postgres", "file"
	Connection string            `json:"connection"` // connection string or directory
	Options    map[string]string `json:"options"`
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}

// WithOption adds an option to the store configuration
func (c *StoreConfig) WithOption(key, value string) *StoreConfig {
	c.Options[key] = value
	return c
}
