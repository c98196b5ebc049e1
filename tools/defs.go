package tools

import (
	"github.com/mmoreau/gemchat/models"
)

// ApprovalMarker in a tool description flags the tool as requiring user
// approval before execution.
const ApprovalMarker = "[USER-APPROVAL-REQUIRED]"

// CalculatorTool returns the FunctionDeclaration for the calculator.
func CalculatorTool() models.FunctionDeclaration {
	return models.FunctionDeclaration{
		Name:        "calculate",
		Description: ApprovalMarker + " Performs a mathematical calculation.",
		Parameters: models.Parameters{
			Type: "object",
			Properties: map[string]interface{}{
				"expression": map[string]interface{}{
					"type":        "string",
					"description": "The mathematical expression to evaluate.",
				},
			},
			Required: []string{"expression"},
		},
		Callable: Calculate,
	}
}

// WeatherTool returns the FunctionDeclaration for the weather lookup.
func WeatherTool() models.FunctionDeclaration {
	return models.FunctionDeclaration{
		Name:        "get_current_weather",
		Description: "Get the current weather for a specified location.",
		Parameters: models.Parameters{
			Type: "object",
			Properties: map[string]interface{}{
				"location": map[string]interface{}{
					"type":        "string",
					"description": "The city.",
				},
			},
			Required: []string{"location"},
		},
		Callable: GetCurrentWeather,
	}
}

// DefaultTools returns the standard tool set for the chat app.
func DefaultTools() []models.FunctionDeclaration {
	return []models.FunctionDeclaration{
		CalculatorTool(),
		WeatherTool(),
	}
}

// DefaultRegistry builds the registry over DefaultTools. The set is fixed for
// the process lifetime.
func DefaultRegistry() (*Registry, error) {
	return New_Registry(DefaultTools()...)
}
