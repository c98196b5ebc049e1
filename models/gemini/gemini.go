package gemini

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	models "github.com/mmoreau/gemchat/models"
	"github.com/mmoreau/gemchat/stores"
)

func init() {
	// Load .env file if it exists (not present in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
}

const defaultModel = "gemini-2.0-flash"

// Gemini_Model talks to the generativelanguage REST API directly. APIKey and
// BaseURL default from the environment and the public endpoint.
type Gemini_Model struct {
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	APIKey       string `json:"-"`
	BaseURL      string `json:"-"`
}

func (g *Gemini_Model) apiKey() string {
	if g.APIKey != "" {
		return g.APIKey
	}
	return os.Getenv("GEMINI_API_KEY")
}

func (g *Gemini_Model) baseURL() string {
	if g.BaseURL != "" {
		return g.BaseURL
	}
	return "https://generativelanguage.googleapis.com"
}

func (g *Gemini_Model) Model_Request(request models.Model_Request, tools []models.FunctionDeclaration, conversationHistory []stores.Message) (models.Model_Response, error) {
	// Allow request if either User_Message OR Tool_Results are present
	if request.User_Message == nil && request.Tool_Results == nil {
		return models.Model_Response{}, fmt.Errorf("request must contain either user message or tool results")
	}

	var msg models.User_Message
	if request.User_Message != nil {
		msg = *request.User_Message
	}

	modelToUse := g.Model
	if modelToUse == "" {
		modelToUse = defaultModel
	}
	geminiResponse, err := g.model_request(modelToUse, msg, tools, request.Tool_Results, conversationHistory)
	if err != nil {
		return models.Model_Response{}, err
	}
	return g.gemini_response_to_model_response(geminiResponse)
}

func (g *Gemini_Model) gemini_response_to_model_response(response Gemini_response) (models.Model_Response, error) {
	modelResponse := models.Model_Response{}
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			var modelPart models.Model_Part
			if part.Text != nil && *part.Text != "" {
				modelPart.Text = part.Text
			}
			if part.FunctionCall != nil {
				modelPart.FunctionCall = &models.FunctionCall{
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				}
			}
			modelResponse.Parts = append(modelResponse.Parts, modelPart)
		}
	}
	return modelResponse, nil
}

func convertStream(g *Gemini_Model, geminiResponseChan <-chan Gemini_response, geminiErrChan <-chan error) (<-chan models.Model_Response, <-chan error) {
	modelResponseChan := make(chan models.Model_Response)
	finalErrChan := make(chan error, 1)

	go func() {
		defer close(modelResponseChan)
		defer close(finalErrChan)

		for {
			select {
			case geminiResp, ok := <-geminiResponseChan:
				if !ok {
					return
				}
				modelResp, err := g.gemini_response_to_model_response(geminiResp)
				if err != nil {
					finalErrChan <- fmt.Errorf("error converting gemini response: %w", err)
					return
				}
				modelResponseChan <- modelResp

			case geminiErr, ok := <-geminiErrChan:
				if ok && geminiErr != nil {
					finalErrChan <- geminiErr
					return
				}
				if !ok {
					geminiErrChan = nil
				}
			}

			if geminiResponseChan == nil && geminiErrChan == nil {
				return
			}
		}
	}()

	return modelResponseChan, finalErrChan
}

func (g *Gemini_Model) Stream_Model_Request(request models.Model_Request, tools []models.FunctionDeclaration, conversationHistory []stores.Message) (<-chan models.Model_Response, <-chan error) {
	if request.User_Message == nil && request.Tool_Results == nil {
		errChan := make(chan error, 1)
		respChan := make(chan models.Model_Response)
		errChan <- fmt.Errorf("request must contain either user message or tool results")
		close(errChan)
		close(respChan)
		return respChan, errChan
	}

	var msg models.User_Message
	if request.User_Message != nil {
		msg = *request.User_Message
	}

	modelToUse := g.Model
	if modelToUse == "" {
		modelToUse = defaultModel
	}
	geminiRespChan, geminiErrChan := g.stream_model_request(modelToUse, msg, tools, request.Tool_Results, conversationHistory)
	return convertStream(g, geminiRespChan, geminiErrChan)
}

func (g *Gemini_Model) model_request(model string, message models.User_Message, tools []models.FunctionDeclaration, toolResults *[]models.Tool_Result, conversationHistory []stores.Message) (Gemini_response, error) {
	request_body, err := create_gemini_request(message, tools, toolResults, conversationHistory, g.SystemPrompt)
	if err != nil {
		return Gemini_response{}, fmt.Errorf("failed to create gemini request: %w", err)
	}
	jsonBytes, err := json.Marshal(request_body)
	if err != nil {
		return Gemini_response{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	return g.make_request(string(jsonBytes), model)
}

func (g *Gemini_Model) stream_model_request(model string, message models.User_Message, tools []models.FunctionDeclaration, toolResults *[]models.Tool_Result, conversationHistory []stores.Message) (<-chan Gemini_response, <-chan error) {
	request_body, err := create_gemini_request(message, tools, toolResults, conversationHistory, g.SystemPrompt)
	if err != nil {
		errChan := make(chan error, 1)
		errChan <- fmt.Errorf("failed to create gemini stream request body: %w", err)
		close(errChan)
		respChan := make(chan Gemini_response)
		close(respChan)
		return respChan, errChan
	}

	jsonBytes, err := json.Marshal(request_body)
	if err != nil {
		errChan := make(chan error, 1)
		errChan <- fmt.Errorf("failed to marshal stream request body: %w", err)
		close(errChan)
		respChan := make(chan Gemini_response)
		close(respChan)
		return respChan, errChan
	}

	return g.make_request_stream(string(jsonBytes), model)
}

func (g *Gemini_Model) make_request(request_body string, model string) (Gemini_response, error) {
	client := &http.Client{Timeout: 2 * time.Minute}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL(), model, g.apiKey())

	resp, err := client.Post(url, "application/json", strings.NewReader(request_body))
	if err != nil {
		return Gemini_response{}, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Gemini_response{}, fmt.Errorf("error reading gemini response body: %w", err)
	}

	var response Gemini_response
	if err := json.Unmarshal(body, &response); err != nil {
		return Gemini_response{}, fmt.Errorf("error unmarshalling gemini response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if response.Error != nil {
			return Gemini_response{}, fmt.Errorf("gemini API error %d (%s): %s", response.Error.Code, response.Error.Status, response.Error.Message)
		}
		return Gemini_response{}, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	return response, nil
}

func (g *Gemini_Model) make_request_stream(request_body string, model string) (<-chan Gemini_response, <-chan error) {
	resChan := make(chan Gemini_response)
	errChan := make(chan error, 1)

	go func() {
		defer close(resChan)
		defer close(errChan)

		url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?key=%s", g.baseURL(), model, g.apiKey())
		resp, err := http.Post(url, "application/json", strings.NewReader(request_body))
		if err != nil {
			errChan <- fmt.Errorf("error making POST request: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			errChan <- fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
			return
		}

		// The streaming endpoint returns a JSON array of response chunks;
		// decode each element as it arrives.
		decoder := json.NewDecoder(resp.Body)

		t, err := decoder.Token()
		if err != nil {
			errChan <- fmt.Errorf("error reading opening bracket: %w", err)
			return
		}
		if delim, ok := t.(json.Delim); !ok || delim != '[' {
			remainingBody, _ := io.ReadAll(io.MultiReader(decoder.Buffered(), resp.Body))
			errChan <- fmt.Errorf("expected '[' at start of stream, got %T: %v. Body: %s", t, t, string(remainingBody))
			return
		}

		for decoder.More() {
			var response Gemini_response
			if err := decoder.Decode(&response); err != nil {
				errChan <- fmt.Errorf("error decoding JSON object in stream: %w", err)
				return
			}
			resChan <- response
		}

		t, err = decoder.Token()
		if err != nil && err != io.EOF {
			errChan <- fmt.Errorf("error reading closing bracket: %w", err)
			return
		}
		if err != io.EOF {
			if delim, ok := t.(json.Delim); !ok || delim != ']' {
				errChan <- fmt.Errorf("expected ']' at end of stream, got %T: %v", t, t)
				return
			}
		}
	}()

	return resChan, errChan
}

// create_gemini_request turns the stored history plus the current turn input
// into the request body the generateContent endpoint expects.
func create_gemini_request(message models.User_Message, tools []models.FunctionDeclaration, toolResults *[]models.Tool_Result, conversationHistory []stores.Message, systemPrompt string) (Gemini_Request_Body, error) {

	allContents := []Gemini_Content{}

	// 1. Process conversation history. Messages persist their parts as JSON;
	// the target type depends on the role.
	for _, histMsg := range conversationHistory {
		role := histMsg.Role
		var historyParts []Request_Part

		if histMsg.PartsJSON == "" || histMsg.PartsJSON == "{}" || histMsg.PartsJSON == "null" {
			log.Printf("Warning: history message %d (Role: %s, Type: %s) has empty PartsJSON, skipping", histMsg.ID, role, histMsg.Type)
			continue
		}

		switch role {
		case "user":
			var userParts []models.User_Part
			if err := json.Unmarshal([]byte(histMsg.PartsJSON), &userParts); err != nil {
				log.Printf("Warning: failed to unmarshal PartsJSON for user history message %d: %v", histMsg.ID, err)
				continue
			}
			historyParts = make([]Request_Part, len(userParts))
			for i, p := range userParts {
				historyParts[i] = Request_Part{
					Text:             p.Text,
					FunctionResponse: p.FunctionResponse,
				}
			}
		case "model":
			var modelParts []models.Model_Part
			if err := json.Unmarshal([]byte(histMsg.PartsJSON), &modelParts); err != nil {
				log.Printf("Warning: failed to unmarshal PartsJSON for model history message %d: %v", histMsg.ID, err)
				continue
			}
			historyParts = make([]Request_Part, len(modelParts))
			for i, p := range modelParts {
				var textContent string
				if p.Text != nil {
					textContent = *p.Text
				}
				historyParts[i] = Request_Part{
					Text:         textContent,
					FunctionCall: p.FunctionCall,
				}
			}
		default:
			log.Printf("Warning: unknown role '%s' for history message %d, skipping", role, histMsg.ID)
			continue
		}

		if len(historyParts) > 0 {
			allContents = append(allContents, Gemini_Content{
				Role:  role,
				Parts: historyParts,
			})
		}
	}

	// 2. Tool results for the current turn become individual user-role
	// function responses.
	if toolResults != nil && len(*toolResults) > 0 {
		for _, tr := range *toolResults {
			var respMap map[string]interface{}
			if err := json.Unmarshal([]byte(tr.Tool_Output), &respMap); err != nil {
				log.Printf("Warning: failed to unmarshal tool output for %s as JSON: %v, wrapping as {\"output\": ...}", tr.Tool_Name, err)
				respMap = map[string]interface{}{"output": tr.Tool_Output}
			}
			toolResponsePart := Request_Part{FunctionResponse: &models.FunctionResponse{ID: tr.Tool_ID, Name: tr.Tool_Name, Response: respMap}}
			allContents = append(allContents, Gemini_Content{
				Role:  "user", // Function responses always get the 'user' role
				Parts: []Request_Part{toolResponsePart},
			})
		}
	} else {
		// 3. Current user message, only when no tool results were provided.
		currentUserParts := []Request_Part{}
		for _, part := range message.Content.Parts {
			if part.FunctionResponse != nil {
				log.Printf("Warning: skipping FunctionResponse found in input User_Message parts; should arrive via toolResults or history")
				continue
			}
			if part.Text != "" {
				currentUserParts = append(currentUserParts, Request_Part{Text: part.Text})
			}
		}

		if len(currentUserParts) > 0 {
			allContents = append(allContents, Gemini_Content{
				Role:  "user",
				Parts: currentUserParts,
			})
		}
	}

	if len(allContents) == 0 {
		return Gemini_Request_Body{}, fmt.Errorf("cannot create Gemini request with no content (history, tool results, or user message)")
	}

	// 4. Prepare tools
	gemini_tools := []Gemini_Tools{}
	if len(tools) > 0 {
		gemini_tools = append(gemini_tools, Gemini_Tools{FunctionDeclarations: ConvertToGeminiFunctionDeclarations(tools)})
	}

	// 5. System instruction and deterministic sampling
	var systemInstruction *SystemInstruction
	if systemPrompt != "" {
		systemInstruction = &SystemInstruction{
			Parts: []SystemPart{{Text: systemPrompt}},
		}
	}
	temperature := 0.0

	request_body := Gemini_Request_Body{
		Contents:          &allContents,
		Tools:             &gemini_tools,
		SystemInstruction: systemInstruction,
		GenerationConfig:  &GenerationConfig{Temperature: &temperature},
	}

	return request_body, nil
}
