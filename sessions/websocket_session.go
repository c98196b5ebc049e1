package sessions

import (
	"encoding/json"
	"fmt"

	"github.com/mmoreau/gemchat/models"
	"github.com/mmoreau/gemchat/stores"
)

// RunInteraction drives one streamed user turn. Model text is forwarded to
// the client chunk by chunk as it arrives; tool results are surfaced as
// tool_result frames; a done frame closes the turn. Turn semantics (ordering,
// loop guard, persistence) match ChatSession.Submit.
func (ws *WebSocketSession) RunInteraction(text string) error {
	s := ws.Session
	s.mu.Lock()
	defer s.mu.Unlock()

	turnStart := len(s.history)

	userMessage := models.Text_Message(text)
	s.appendMessage("user", "user_message", userMessage.Content.Parts, "")

	currentReq := models.Model_Request{User_Message: &userMessage}
	histEnd := turnStart

	for round := 1; ; round++ {
		if round > Max_Tool_Rounds {
			s.Logger.Printf("Loop guard tripped after %d round trips", Max_Tool_Rounds)
			s.persistTurn(turnStart)
			loopErr := &ToolLoopExceededError{Rounds: Max_Tool_Rounds}
			ws.Writer.WriteError(loopErr.Error())
			return loopErr
		}

		history := stores.SanitizeHistory(s.snapshot(histEnd))
		response, err := ws.streamRound(currentReq, history)
		if err != nil {
			s.Logger.Printf("Model request failed on round %d: %v", round, err)
			if round == 1 {
				s.history = s.history[:turnStart+1]
			}
			upstreamErr := &UpstreamError{Err: err}
			ws.Writer.WriteError(upstreamErr.Error())
			return upstreamErr
		}

		outcome := response.Outcome()
		switch outcome.Kind {
		case models.Outcome_Tool_Calls:
			toolResults, newHistEnd := s.executeToolBatch(response.Parts, outcome.Calls, func(result models.Tool_Result) {
				ws.writeToolResult(result)
			})
			histEnd = newHistEnd
			currentReq = models.Model_Request{Tool_Results: &toolResults}

		case models.Outcome_Final_Text:
			finalText := outcome.Text
			s.appendMessage("model", "model_message", []models.Model_Part{{Text: &finalText}}, "")
			s.persistTurn(turnStart)
			return ws.Writer.WriteDone()

		case models.Outcome_Empty:
			if round == 1 {
				s.history = s.history[:turnStart+1]
			}
			upstreamErr := &UpstreamError{Err: fmt.Errorf("model returned an empty response")}
			ws.Writer.WriteError(upstreamErr.Error())
			return upstreamErr
		}
	}
}

// streamRound consumes one streamed model round, forwarding text chunks to
// the client and accumulating the full response for outcome handling.
func (ws *WebSocketSession) streamRound(request models.Model_Request, history []stores.Message) (models.Model_Response, error) {
	respChan, errChan := ws.Session.Agent.Run_Stream(request, history)

	var accumulated models.Model_Response
	for chunk := range respChan {
		for _, part := range chunk.Parts {
			if part.Text != nil && *part.Text != "" {
				if writeErr := ws.Writer.WriteResponse(map[string]string{
					"type": "chunk",
					"text": *part.Text,
				}); writeErr != nil {
					ws.Session.Logger.Printf("Failed to forward chunk: %v", writeErr)
				}
			}
		}
		accumulated.Parts = append(accumulated.Parts, chunk.Parts...)
	}
	if err := <-errChan; err != nil {
		return models.Model_Response{}, err
	}
	return mergeTextParts(accumulated), nil
}

// mergeTextParts collapses consecutive streamed text fragments into a single
// text part so the recorded message matches the non-streaming shape.
func mergeTextParts(response models.Model_Response) models.Model_Response {
	var merged models.Model_Response
	text := ""
	for _, part := range response.Parts {
		if part.Text != nil {
			text += *part.Text
			continue
		}
		merged.Parts = append(merged.Parts, part)
	}
	if text != "" {
		t := text
		merged.Parts = append([]models.Model_Part{{Text: &t}}, merged.Parts...)
	}
	return merged
}

func (ws *WebSocketSession) writeToolResult(result models.Tool_Result) {
	var resultMap map[string]interface{}
	if err := json.Unmarshal([]byte(result.Tool_Output), &resultMap); err != nil {
		resultMap = map[string]interface{}{"raw_output": result.Tool_Output}
	}
	msg := WebSocketToolResultMessage{
		Type:         "tool_result",
		FunctionName: result.Tool_Name,
		FunctionID:   result.Tool_ID,
		Result:       resultMap,
		ResultJSON:   result.Tool_Output,
	}
	if err := ws.Writer.WriteResponse(msg); err != nil {
		ws.Session.Logger.Printf("Failed to forward tool result for %s: %v", result.Tool_Name, err)
	}
}
