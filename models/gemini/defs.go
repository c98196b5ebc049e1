package gemini

import "github.com/mmoreau/gemchat/models"

type Gemini_response struct {
	Candidates    []Candidate   `json:"candidates"`
	UsageMetadata UsageMetadata `json:"usageMetadata"`
	ModelVersion  string        `json:"modelVersion"`
	Error         *APIError     `json:"error,omitempty"`
}

// APIError is the error envelope the generativelanguage API returns on
// non-2xx responses.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type Content struct {
	Parts []Part `json:"parts"`
	Role  string `json:"role"`
}

type Part struct {
	Text         *string       `json:"text,omitempty"`
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
}

type FunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type Request_Part struct {
	Text             string                   `json:"text,omitempty"`
	FunctionCall     *models.FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *models.FunctionResponse `json:"functionResponse,omitempty"`
}

type Gemini_Request_Body struct {
	Contents          *[]Gemini_Content  `json:"contents"`
	Tools             *[]Gemini_Tools    `json:"tools,omitempty"`
	SystemInstruction *SystemInstruction `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig  `json:"generationConfig,omitempty"`
}

type SystemInstruction struct {
	Parts []SystemPart `json:"parts"`
}

type SystemPart struct {
	Text string `json:"text"`
}

// GenerationConfig carries sampling settings. The chat app pins temperature
// to zero for deterministic demo turns.
type GenerationConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type Gemini_Content struct {
	Role  string         `json:"role"`
	Parts []Request_Part `json:"parts"`
}

type Gemini_Tools struct {
	FunctionDeclarations []GeminiFunctionDeclaration `json:"functionDeclarations"`
}

// GeminiFunctionDeclaration is a sanitized version of FunctionDeclaration for
// the Gemini API (no Callable, never-null properties).
type GeminiFunctionDeclaration struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  GeminiParameters `json:"parameters"`
}

type GeminiParameters struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required,omitempty"`
}

// ConvertToGeminiFunctionDeclarations converts registry declarations to the
// Gemini-safe wire format.
func ConvertToGeminiFunctionDeclarations(fds []models.FunctionDeclaration) []GeminiFunctionDeclaration {
	result := make([]GeminiFunctionDeclaration, len(fds))
	for i, fd := range fds {
		params := GeminiParameters{
			Type:       fd.Parameters.Type,
			Properties: fd.Parameters.Properties,
			Required:   fd.Parameters.Required,
		}

		// The API rejects null for properties; send an empty object instead.
		if params.Properties == nil {
			params.Properties = make(map[string]interface{})
		}
		if params.Type == "" {
			params.Type = "object"
		}

		result[i] = GeminiFunctionDeclaration{
			Name:        fd.Name,
			Description: fd.Description,
			Parameters:  params,
		}
	}
	return result
}
