package models

// Tool_Func is the signature every registered tool satisfies. The single
// string argument is the tool's one declared parameter; the closed signature
// keeps dispatch a direct call, no reflection.
type Tool_Func func(string) (string, error)

type FunctionDeclaration struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
	Callable    Tool_Func  `json:"-"`
}

// Parameters defines the JSON Schema for function parameters
type Parameters struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}
