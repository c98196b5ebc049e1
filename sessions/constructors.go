package sessions

import (
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mmoreau/gemchat/stores"
)

// NewChatSession creates a session for one conversation. sessionID may be
// empty, in which case a fresh UUID is assigned. store may be nil when history
// persistence is off.
func NewChatSession(sessionID string, agent AgentInterface, store stores.MessageStore, saveHistory bool) *ChatSession {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	shortID := sessionID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	return &ChatSession{
		Agent:       agent,
		SessionID:   sessionID,
		Store:       store,
		SaveHistory: saveHistory && store != nil,
		Logger:      log.New(os.Stdout, fmt.Sprintf("[chat %s] ", shortID), log.LstdFlags),
	}
}

// NewWebSocketSession wraps a chat session with a streaming writer bound to
// the given connection.
func NewWebSocketSession(sessionID string, conn *websocket.Conn, agent AgentInterface, store stores.MessageStore, saveHistory bool) *WebSocketSession {
	session := NewChatSession(sessionID, agent, store, saveHistory)
	return &WebSocketSession{
		Session: session,
		Writer: &WebSocketWriter{
			Conn:   conn,
			Logger: session.Logger,
		},
	}
}
