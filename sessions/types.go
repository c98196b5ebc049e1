package sessions

import (
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mmoreau/gemchat/models"
	"github.com/mmoreau/gemchat/stores"
)

// Max_Tool_Rounds bounds model round trips within one user turn. When the
// model keeps requesting tools past the limit the turn ends with
// ToolLoopExceededError; messages accumulated so far are retained.
const Max_Tool_Rounds = 5

// AgentInterface defines the interface that agents must implement
type AgentInterface interface {
	Run(request models.Model_Request, history []stores.Message) (models.Model_Response, error)
	Run_Stream(request models.Model_Request, history []stores.Message) (<-chan models.Model_Response, <-chan error)
	Execute_Tool(call models.FunctionCall) models.Tool_Result
	Approve_Tool(name string, args map[string]interface{}) bool
}

// UpstreamError reports a failed remote model call. The turn is aborted and
// no partial assistant message is recorded.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return "upstream model request failed: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ToolLoopExceededError reports that the per-turn loop guard tripped.
type ToolLoopExceededError struct {
	Rounds int
}

func (e *ToolLoopExceededError) Error() string {
	return fmt.Sprintf("tool-calling loop exceeded %d model round trips", e.Rounds)
}

// ChatSession drives one conversation. It owns the in-memory ordered message
// history; during a turn it is the sole mutator (single-writer discipline).
// Independent sessions share no mutable state.
type ChatSession struct {
	Agent       AgentInterface
	SessionID   string
	Store       stores.MessageStore // optional history persistence
	SaveHistory bool
	Logger      *log.Logger

	mu      sync.Mutex
	history []stores.Message
}

// WebSocketWriter handles all WebSocket communication for a session.
type WebSocketWriter struct {
	Conn   *websocket.Conn
	Logger *log.Logger
	mu     sync.Mutex
}

func (w *WebSocketWriter) WriteResponse(resp interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(resp)
}

func (w *WebSocketWriter) WriteError(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(map[string]string{"error": message})
}

func (w *WebSocketWriter) WriteDone() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(map[string]string{"type": "done"})
}

// WebSocketToolResultMessage represents tool results sent over WebSocket
type WebSocketToolResultMessage struct {
	Type         string                 `json:"type"` // "tool_result"
	FunctionName string                 `json:"function_name"`
	FunctionID   string                 `json:"function_id"`
	Result       map[string]interface{} `json:"result"`
	ResultJSON   string                 `json:"result_json"`
}

// WebSocketSession streams one conversation's turns over a WebSocket.
type WebSocketSession struct {
	Session *ChatSession
	Writer  *WebSocketWriter
}
