package models

type Model_Response struct {
	Parts []Model_Part `json:"parts"`
}

//may be a string or a function call and it will be parts

type FunctionCall struct {
	ID   string                 `json:"id,omitempty"` // Unique ID for this specific call instance
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type Model_Part struct {
	Text         *string       `json:"text,omitempty"`
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
}

// Outcome_Kind is the closed classification of a model response consumed by
// the turn driver. A response either requests tool calls, carries final text,
// or carries nothing usable.
type Outcome_Kind int

const (
	Outcome_Empty Outcome_Kind = iota
	Outcome_Final_Text
	Outcome_Tool_Calls
)

type Response_Outcome struct {
	Kind  Outcome_Kind
	Text  string         // concatenated text parts, set for Outcome_Final_Text
	Calls []FunctionCall // in response order, set for Outcome_Tool_Calls
}

// Outcome collapses the part list into a single tagged variant. A response
// mixing text and function calls classifies as Outcome_Tool_Calls: the text is
// interim commentary and the calls still have to be executed.
func (r Model_Response) Outcome() Response_Outcome {
	out := Response_Outcome{}
	for _, part := range r.Parts {
		if part.FunctionCall != nil {
			out.Calls = append(out.Calls, *part.FunctionCall)
		}
		if part.Text != nil {
			out.Text += *part.Text
		}
	}
	switch {
	case len(out.Calls) > 0:
		out.Kind = Outcome_Tool_Calls
	case out.Text != "":
		out.Kind = Outcome_Final_Text
	default:
		out.Kind = Outcome_Empty
	}
	return out
}
