package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/mmoreau/gemchat/models"
)

// Error kinds carried on Tool_Result.Error_Kind. Tool failures never abort a
// turn: they are fed back to the model as ordinary tool results so it can
// react.
const (
	Error_Unknown_Tool       = "unknown_tool"
	Error_Invalid_Arguments  = "invalid_arguments"
	Error_Execution_Failed   = "execution_failed"
	Error_Invalid_Expression = "invalid_expression"
	// Error_Execution_Denied is produced by the approval layer, not the
	// executor, when the user refuses a sensitive tool.
	Error_Execution_Denied = "execution_denied"
)

// Executor validates tool-call arguments against the registered schema and
// invokes the callable inside a failure boundary. Dispatch is a direct typed
// call through the registry; the tool set is closed at startup.
type Executor struct {
	registry *Registry
}

func New_Executor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute runs one tool call and always returns a result, never a Go error:
// every failure mode becomes a structured error payload for the model.
func (e *Executor) Execute(call models.FunctionCall) models.Tool_Result {
	id := call.ID
	if id == "" {
		id = uuid.NewString()
	}

	decl, found := e.registry.Resolve(call.Name)
	if !found {
		return failedResult(id, call.Name, Error_Unknown_Tool,
			fmt.Sprintf("unknown or unavailable tool: %s", call.Name))
	}

	arg, kind, errMsg := validateArguments(decl, call.Args)
	if kind != "" {
		return failedResult(id, call.Name, kind, errMsg)
	}

	output, err := invokeCallable(decl, arg)
	if err != nil {
		kind := Error_Execution_Failed
		if errors.Is(err, ErrInvalidExpression) {
			kind = Error_Invalid_Expression
		}
		return failedResult(id, call.Name, kind, err.Error())
	}

	resultBytes, err := json.Marshal(map[string]string{"result": output})
	if err != nil {
		return failedResult(id, call.Name, Error_Execution_Failed,
			fmt.Sprintf("failed to marshal result for %s: %v", call.Name, err))
	}

	return models.Tool_Result{
		Tool_ID:     id,
		Tool_Name:   call.Name,
		Tool_Output: string(resultBytes),
	}
}

// validateArguments checks the argument mapping against the declared schema
// and extracts the tool's single string argument. Returns the argument value,
// or an error kind plus message naming the offending parameter.
func validateArguments(decl models.FunctionDeclaration, args map[string]interface{}) (string, string, string) {
	for _, required := range decl.Parameters.Required {
		if _, present := args[required]; !present {
			return "", Error_Invalid_Arguments,
				fmt.Sprintf("missing required parameter %q for tool %s", required, decl.Name)
		}
	}

	for name, value := range args {
		propDef, declared := decl.Parameters.Properties[name]
		if !declared {
			return "", Error_Invalid_Arguments,
				fmt.Sprintf("unexpected parameter %q for tool %s", name, decl.Name)
		}
		expected := declaredType(propDef)
		if expected == "" {
			continue
		}
		if _, ok := coerceValue(value, expected); !ok {
			return "", Error_Invalid_Arguments,
				fmt.Sprintf("parameter %q: expected %s, got %T", name, expected, value)
		}
	}

	// Shipped tools all take a single string argument; the first required
	// parameter names it.
	paramName := ""
	if len(decl.Parameters.Required) > 0 {
		paramName = decl.Parameters.Required[0]
	} else if len(args) == 1 {
		for name := range args {
			paramName = name
		}
	}
	if paramName == "" {
		return "", Error_Invalid_Arguments,
			fmt.Sprintf("tool %s expects 1 argument, got %d", decl.Name, len(args))
	}

	value, _ := coerceValue(args[paramName], "string")
	arg, ok := value.(string)
	if !ok {
		return "", Error_Invalid_Arguments,
			fmt.Sprintf("parameter %q: expected string, got %T", paramName, args[paramName])
	}
	return arg, "", ""
}

// declaredType extracts the "type" field from a property definition.
func declaredType(definition interface{}) string {
	if def, ok := definition.(map[string]interface{}); ok {
		if value, ok := def["type"].(string); ok {
			return value
		}
	}
	return ""
}

// coerceValue checks a JSON-decoded value against an expected schema type,
// coercing scalars to string where the schema asks for one.
func coerceValue(value interface{}, expected string) (interface{}, bool) {
	switch expected {
	case "string":
		switch v := value.(type) {
		case string:
			return v, true
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64), true
		case bool:
			return strconv.FormatBool(v), true
		}
	case "number":
		if _, ok := value.(float64); ok {
			return value, true
		}
	case "integer":
		if v, ok := value.(float64); ok && v == float64(int64(v)) {
			return value, true
		}
	case "boolean":
		if _, ok := value.(bool); ok {
			return value, true
		}
	}
	return nil, false
}

// invokeCallable runs the tool function inside a failure boundary. Panics
// inside the tool are recovered and reported as errors.
func invokeCallable(decl models.FunctionDeclaration, arg string) (output string, err error) {
	if decl.Callable == nil {
		return "", fmt.Errorf("internal error: tool '%s' is not callable", decl.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			output = ""
			err = fmt.Errorf("tool '%s' panicked: %v", decl.Name, r)
		}
	}()

	return decl.Callable(arg)
}

// failedResult wraps an error description as the tool output JSON.
func failedResult(id, name, kind, message string) models.Tool_Result {
	errorBytes, _ := json.Marshal(map[string]string{"error": message})
	return models.Tool_Result{
		Tool_ID:     id,
		Tool_Name:   name,
		Tool_Output: string(errorBytes),
		Error_Kind:  kind,
	}
}
