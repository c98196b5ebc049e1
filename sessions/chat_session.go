package sessions

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mmoreau/gemchat/models"
	"github.com/mmoreau/gemchat/stores"
	"github.com/mmoreau/gemchat/tools"
)

// Submit runs one complete user turn: append the user message, call the model
// with the full history and tool catalog, execute any requested tool calls,
// and repeat until the model produces final text or the loop guard trips.
//
// It returns every message appended during this turn. On *UpstreamError the
// session retains only the user message for the turn; on
// *ToolLoopExceededError all accumulated messages are retained.
func (s *ChatSession) Submit(text string) ([]stores.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turnStart := len(s.history)

	userMessage := models.Text_Message(text)
	s.appendMessage("user", "user_message", userMessage.Content.Parts, "")

	currentReq := models.Model_Request{User_Message: &userMessage}
	// History sent alongside the request excludes the request's own payload:
	// the model layer appends the user message / tool results itself.
	histEnd := turnStart

	for round := 1; ; round++ {
		if round > Max_Tool_Rounds {
			s.Logger.Printf("Loop guard tripped after %d round trips", Max_Tool_Rounds)
			s.persistTurn(turnStart)
			return s.turnMessages(turnStart), &ToolLoopExceededError{Rounds: Max_Tool_Rounds}
		}

		history := stores.SanitizeHistory(s.snapshot(histEnd))
		response, err := s.Agent.Run(currentReq, history)
		if err != nil {
			s.Logger.Printf("Model request failed on round %d: %v", round, err)
			if round == 1 {
				// Leave only the user message recorded for this turn.
				s.history = s.history[:turnStart+1]
			}
			return s.turnMessages(turnStart), &UpstreamError{Err: err}
		}

		outcome := response.Outcome()
		switch outcome.Kind {
		case models.Outcome_Tool_Calls:
			toolResults, newHistEnd := s.executeToolBatch(response.Parts, outcome.Calls, nil)
			histEnd = newHistEnd
			currentReq = models.Model_Request{Tool_Results: &toolResults}

		case models.Outcome_Final_Text:
			finalText := outcome.Text
			s.appendMessage("model", "model_message", []models.Model_Part{{Text: &finalText}}, "")
			s.persistTurn(turnStart)
			return s.turnMessages(turnStart), nil

		case models.Outcome_Empty:
			if round == 1 {
				s.history = s.history[:turnStart+1]
			}
			return s.turnMessages(turnStart), &UpstreamError{Err: fmt.Errorf("model returned an empty response")}
		}
	}
}

// executeToolBatch appends the model's function_call message, runs every
// requested call in response order (approval check first), appends each
// result as a function_response message and returns the batch for the next
// model round. notify, when set, observes each result as it is produced.
//
// The returned history end index covers the function_call message but not the
// responses: those travel to the model as the next request's tool results.
func (s *ChatSession) executeToolBatch(parts []models.Model_Part, calls []models.FunctionCall, notify func(models.Tool_Result)) ([]models.Tool_Result, int) {
	// Assign call IDs up front so the function_call message and its
	// responses correlate.
	for i := range parts {
		if parts[i].FunctionCall != nil && parts[i].FunctionCall.ID == "" {
			parts[i].FunctionCall.ID = uuid.NewString()
		}
	}
	for i := range calls {
		if calls[i].ID == "" {
			// Parts were patched above; realign by position among call parts.
			calls[i].ID = callIDByIndex(parts, i)
		}
	}

	functionID := ""
	if len(calls) > 0 {
		functionID = calls[0].ID
	}
	s.appendMessage("model", "function_call", parts, functionID)
	histEnd := len(s.history)

	toolResults := make([]models.Tool_Result, 0, len(calls))
	for _, call := range calls {
		var result models.Tool_Result
		if s.Agent.Approve_Tool(call.Name, call.Args) {
			result = s.Agent.Execute_Tool(call)
		} else {
			s.Logger.Printf("Tool %s denied by user", call.Name)
			result = deniedToolResult(call)
		}

		var respMap map[string]interface{}
		if err := json.Unmarshal([]byte(result.Tool_Output), &respMap); err != nil {
			s.Logger.Printf("Failed to unmarshal tool output for %s, storing raw: %v", result.Tool_Name, err)
			respMap = map[string]interface{}{"raw_output": result.Tool_Output}
		}

		responsePart := models.User_Part{
			FunctionResponse: &models.FunctionResponse{
				ID:       result.Tool_ID,
				Name:     result.Tool_Name,
				Response: respMap,
			},
		}
		s.appendMessage("user", "function_response", []models.User_Part{responsePart}, result.Tool_ID)

		if notify != nil {
			notify(result)
		}
		toolResults = append(toolResults, result)
	}

	return toolResults, histEnd
}

func callIDByIndex(parts []models.Model_Part, index int) string {
	n := 0
	for _, part := range parts {
		if part.FunctionCall == nil {
			continue
		}
		if n == index {
			return part.FunctionCall.ID
		}
		n++
	}
	return uuid.NewString()
}

// deniedToolResult is the tool result recorded when the user refuses a
// sensitive tool; the model sees it like any other tool failure.
func deniedToolResult(call models.FunctionCall) models.Tool_Result {
	errorBytes, _ := json.Marshal(map[string]string{"error": "Execution denied by user"})
	return models.Tool_Result{
		Tool_ID:     call.ID,
		Tool_Name:   call.Name,
		Tool_Output: string(errorBytes),
		Error_Kind:  tools.Error_Execution_Denied,
	}
}

// appendMessage adds a message to the in-memory session history. Messages are
// immutable once appended.
func (s *ChatSession) appendMessage(role, messageType string, parts interface{}, functionID string) {
	partsJSONBytes, err := json.Marshal(parts)
	if err != nil {
		s.Logger.Printf("Error marshalling parts for session history: %v", err)
		partsJSONBytes = []byte("{}")
	}
	s.history = append(s.history, stores.Message{
		ConversationID: s.SessionID,
		Sequence:       len(s.history) + 1,
		Role:           role,
		Type:           messageType,
		FunctionID:     functionID,
		PartsJSON:      string(partsJSONBytes),
	})
}

// snapshot copies the first end messages of the history.
func (s *ChatSession) snapshot(end int) []stores.Message {
	out := make([]stores.Message, end)
	copy(out, s.history[:end])
	return out
}

// turnMessages copies the messages appended since turnStart.
func (s *ChatSession) turnMessages(turnStart int) []stores.Message {
	return s.snapshot(len(s.history))[turnStart:]
}

// persistTurn writes this turn's messages to the configured store. Called at
// turn completion only; persistence failures are logged, never fatal.
func (s *ChatSession) persistTurn(turnStart int) {
	if !s.SaveHistory || s.Store == nil {
		return
	}
	for _, msg := range s.history[turnStart:] {
		if err := s.Store.SaveMessage(s.SessionID, msg.Role, msg.Type, json.RawMessage(msg.PartsJSON), msg.FunctionID); err != nil {
			s.Logger.Printf("Error persisting message (seq %d): %v", msg.Sequence, err)
		}
	}
}

// History returns a copy of the session's full message history.
func (s *ChatSession) History() []stores.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(len(s.history))
}

// Reset clears the in-memory history, starting the conversation over.
func (s *ChatSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}
