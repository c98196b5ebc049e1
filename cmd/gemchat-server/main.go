package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mmoreau/gemchat"
	"github.com/mmoreau/gemchat/models"
	"github.com/mmoreau/gemchat/models/gemini"
	"github.com/mmoreau/gemchat/sessions"
	"github.com/mmoreau/gemchat/stores"
	"github.com/mmoreau/gemchat/tools"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// server owns the per-conversation sessions so history accumulates across
// requests on the same conversation ID.
type server struct {
	config *gemchat.Config
	store  stores.MessageStore

	mu       sync.Mutex
	sessions map[string]*sessions.ChatSession
}

func (s *server) newAgent() (*gemchat.Agent, error) {
	registry, err := tools.DefaultRegistry()
	if err != nil {
		return nil, err
	}
	// No interactive terminal here: sensitive tools are auto-approved and
	// the approval decision is logged.
	return gemchat.Create_Agent(&gemini.Gemini_Model{
		Model:        s.config.ModelName,
		SystemPrompt: s.config.SystemInstruction,
		APIKey:       s.config.APIKey,
	}, registry, nil), nil
}

func (s *server) sessionFor(conversationID string) (*sessions.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[conversationID]; ok {
		return session, nil
	}
	agent, err := s.newAgent()
	if err != nil {
		return nil, err
	}
	session := sessions.NewChatSession(conversationID, agent, s.store, s.config.SaveChatHistory)
	s.sessions[conversationID] = session
	return session, nil
}

func main() {
	config, err := gemchat.Load_Config()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	store, err := config.OpenStore()
	if err != nil {
		log.Fatalf("Failed to open history store: %v", err)
	}
	if store != nil {
		defer store.Close()
	}

	srv := &server{
		config:   config,
		store:    store,
		sessions: make(map[string]*sessions.ChatSession),
	}

	router := gin.Default()
	r := router.Group("/api/v1")

	r.POST("/chat/:conversationID", srv.handleChat)
	r.GET("/chat/history/:conversationID", srv.handleHistory)
	r.GET("/conversations", srv.handleConversations)
	router.GET("/ws/chat/:conversationID", srv.handleWebSocket)

	log.Println("Server starting on :8000")
	if err := router.Run(":8000"); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *server) handleChat(c *gin.Context) {
	conversationID := c.Param("conversationID")

	var req models.Chat_Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := collectText(req.Message)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request must contain a user message"})
		return
	}

	session, err := s.sessionFor(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	turn, err := session.Submit(text)
	if err != nil {
		var loopErr *sessions.ToolLoopExceededError
		if errors.As(err, &loopErr) {
			c.JSON(http.StatusOK, gin.H{
				"error":    loopErr.Error(),
				"messages": turn,
			})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": turn})
}

func (s *server) handleHistory(c *gin.Context) {
	conversationID := c.Param("conversationID")

	session, err := s.sessionFor(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": session.History()})
}

func (s *server) handleConversations(c *gin.Context) {
	if s.store == nil {
		s.mu.Lock()
		ids := make([]string, 0, len(s.sessions))
		for id := range s.sessions {
			ids = append(ids, id)
		}
		s.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"conversations": ids})
		return
	}
	ids, err := s.store.ListConversations()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": ids})
}

// handleWebSocket upgrades the connection and streams each incoming text
// message as one full turn.
func (s *server) handleWebSocket(c *gin.Context) {
	conversationID := c.Param("conversationID")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	agent, err := s.newAgent()
	if err != nil {
		log.Printf("Failed to build agent: %v", err)
		return
	}
	ws := sessions.NewWebSocketSession(conversationID, conn, agent, s.store, s.config.SaveChatHistory)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		text := string(raw)
		// Clients may send either plain text or {"message": "..."}.
		var framed struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &framed); err == nil && framed.Message != "" {
			text = framed.Message
		}

		if err := ws.RunInteraction(text); err != nil {
			log.Printf("Turn failed for %s: %v", conversationID, err)
		}
	}
}

func collectText(message models.User_Message) string {
	text := ""
	for _, part := range message.Content.Parts {
		text += part.Text
	}
	return text
}
