package sessions

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mmoreau/gemchat/models"
	"github.com/mmoreau/gemchat/stores"
	"github.com/mmoreau/gemchat/tools"
)

// scriptedAgent replays canned model responses in order while executing tool
// calls for real against the default registry.
type scriptedAgent struct {
	t         *testing.T
	script    []scriptStep
	calls     int
	histories [][]stores.Message
	requests  []models.Model_Request
	deny      map[string]bool
	executor  *tools.Executor
}

type scriptStep struct {
	response models.Model_Response
	err      error
}

func newScriptedAgent(t *testing.T, steps ...scriptStep) *scriptedAgent {
	t.Helper()
	registry, err := tools.DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry failed: %v", err)
	}
	return &scriptedAgent{
		t:        t,
		script:   steps,
		deny:     map[string]bool{},
		executor: tools.New_Executor(registry),
	}
}

func (a *scriptedAgent) Run(request models.Model_Request, history []stores.Message) (models.Model_Response, error) {
	a.histories = append(a.histories, history)
	a.requests = append(a.requests, request)
	if a.calls >= len(a.script) {
		a.t.Fatalf("model called %d times, script has %d steps", a.calls+1, len(a.script))
	}
	step := a.script[a.calls]
	a.calls++
	return step.response, step.err
}

func (a *scriptedAgent) Run_Stream(request models.Model_Request, history []stores.Message) (<-chan models.Model_Response, <-chan error) {
	respChan := make(chan models.Model_Response, 1)
	errChan := make(chan error, 1)
	response, err := a.Run(request, history)
	if err != nil {
		errChan <- err
	} else {
		respChan <- response
	}
	close(respChan)
	close(errChan)
	return respChan, errChan
}

func (a *scriptedAgent) Execute_Tool(call models.FunctionCall) models.Tool_Result {
	return a.executor.Execute(call)
}

func (a *scriptedAgent) Approve_Tool(name string, args map[string]interface{}) bool {
	return !a.deny[name]
}

func textStep(text string) scriptStep {
	return scriptStep{response: models.Model_Response{
		Parts: []models.Model_Part{{Text: &text}},
	}}
}

func callStep(calls ...models.FunctionCall) scriptStep {
	parts := make([]models.Model_Part, len(calls))
	for i := range calls {
		call := calls[i]
		parts[i] = models.Model_Part{FunctionCall: &call}
	}
	return scriptStep{response: models.Model_Response{Parts: parts}}
}

func calcCall(expression string) models.FunctionCall {
	return models.FunctionCall{
		Name: "calculate",
		Args: map[string]interface{}{"expression": expression},
	}
}

func messageTypes(msgs []stores.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func TestSubmitPlainTextTurn(t *testing.T) {
	agent := newScriptedAgent(t, textStep("Hello there."))
	session := NewChatSession("conv-1", agent, nil, false)

	turn, err := session.Submit("Hi")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got := messageTypes(turn); len(got) != 2 || got[0] != "user_message" || got[1] != "model_message" {
		t.Fatalf("turn types = %v", got)
	}
	if !strings.Contains(turn[1].PartsJSON, "Hello there.") {
		t.Errorf("final message parts = %s", turn[1].PartsJSON)
	}
	if len(session.History()) != 2 {
		t.Errorf("session history length = %d, want 2", len(session.History()))
	}
}

func TestSubmitSingleToolRound(t *testing.T) {
	agent := newScriptedAgent(t,
		callStep(calcCall("12*(3+4)")),
		textStep("The answer is 84."),
	)
	session := NewChatSession("conv-1", agent, nil, false)

	turn, err := session.Submit("What is 12*(3+4)?")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	want := []string{"user_message", "function_call", "function_response", "model_message"}
	got := messageTypes(turn)
	if len(got) != len(want) {
		t.Fatalf("turn types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn types = %v, want %v", got, want)
		}
	}

	if !strings.Contains(turn[2].PartsJSON, "84") {
		t.Errorf("function_response parts = %s", turn[2].PartsJSON)
	}
	if turn[1].FunctionID == "" || turn[1].FunctionID != turn[2].FunctionID {
		t.Errorf("call/response IDs do not correlate: %q vs %q", turn[1].FunctionID, turn[2].FunctionID)
	}

	// The second model call carries the tool results as the request payload,
	// not as history.
	if len(agent.requests) != 2 {
		t.Fatalf("model called %d times", len(agent.requests))
	}
	second := agent.requests[1]
	if second.Tool_Results == nil || len(*second.Tool_Results) != 1 {
		t.Fatalf("second request tool results = %+v", second.Tool_Results)
	}
	if (*second.Tool_Results)[0].Failed() {
		t.Errorf("tool result unexpectedly failed: %+v", (*second.Tool_Results)[0])
	}
}

func TestSubmitHistoryExcludesRequestPayload(t *testing.T) {
	agent := newScriptedAgent(t,
		callStep(calcCall("1+1")),
		textStep("2"),
	)
	session := NewChatSession("conv-1", agent, nil, false)

	if _, err := session.Submit("compute"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Round 1: nothing before this turn, the user message travels in the
	// request itself.
	if len(agent.histories[0]) != 0 {
		t.Errorf("round 1 history length = %d, want 0", len(agent.histories[0]))
	}
	// Round 2: user message and function_call are history; the responses
	// travel as tool results.
	got := messageTypes(agent.histories[1])
	if len(got) != 2 || got[0] != "user_message" || got[1] != "function_call" {
		t.Errorf("round 2 history types = %v", got)
	}
}

func TestSubmitSequentialToolRounds(t *testing.T) {
	agent := newScriptedAgent(t,
		callStep(calcCall("3+4")),
		callStep(calcCall("12*7")),
		textStep("12*(3+4) is 84."),
	)
	session := NewChatSession("conv-1", agent, nil, false)

	turn, err := session.Submit("step by step please")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	want := []string{
		"user_message",
		"function_call", "function_response",
		"function_call", "function_response",
		"model_message",
	}
	got := messageTypes(turn)
	if len(got) != len(want) {
		t.Fatalf("turn types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn types = %v, want %v", got, want)
		}
	}

	// The second round's result reflects the second expression.
	if !strings.Contains(turn[4].PartsJSON, "84") {
		t.Errorf("second function_response parts = %s", turn[4].PartsJSON)
	}
	if agent.calls != 3 {
		t.Errorf("model called %d times, want 3", agent.calls)
	}
}

func TestSubmitParallelToolCalls(t *testing.T) {
	agent := newScriptedAgent(t,
		callStep(
			calcCall("2+2"),
			models.FunctionCall{Name: "get_current_weather", Args: map[string]interface{}{"location": "Lyon"}},
		),
		textStep("4 and sunny."),
	)
	session := NewChatSession("conv-1", agent, nil, false)

	turn, err := session.Submit("both please")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	want := []string{"user_message", "function_call", "function_response", "function_response", "model_message"}
	got := messageTypes(turn)
	if len(got) != len(want) {
		t.Fatalf("turn types = %v, want %v", got, want)
	}

	second := agent.requests[1]
	if second.Tool_Results == nil || len(*second.Tool_Results) != 2 {
		t.Fatalf("expected 2 tool results, got %+v", second.Tool_Results)
	}
	// Results keep the model's call order.
	if (*second.Tool_Results)[0].Tool_Name != "calculate" || (*second.Tool_Results)[1].Tool_Name != "get_current_weather" {
		t.Errorf("tool result order = %s, %s", (*second.Tool_Results)[0].Tool_Name, (*second.Tool_Results)[1].Tool_Name)
	}
}

func TestSubmitUnknownToolFeedsErrorBack(t *testing.T) {
	agent := newScriptedAgent(t,
		callStep(models.FunctionCall{Name: "launch_rocket", Args: map[string]interface{}{}}),
		textStep("I cannot do that."),
	)
	session := NewChatSession("conv-1", agent, nil, false)

	turn, err := session.Submit("launch")
	if err != nil {
		t.Fatalf("a failed tool must not abort the turn: %v", err)
	}
	if len(turn) != 4 {
		t.Fatalf("turn length = %d, want 4", len(turn))
	}

	second := agent.requests[1]
	result := (*second.Tool_Results)[0]
	if result.Error_Kind != tools.Error_Unknown_Tool {
		t.Errorf("Error_Kind = %q, want %q", result.Error_Kind, tools.Error_Unknown_Tool)
	}
	if !strings.Contains(turn[2].PartsJSON, "error") {
		t.Errorf("function_response should carry the error payload: %s", turn[2].PartsJSON)
	}
}

func TestSubmitDeniedToolBecomesErrorResult(t *testing.T) {
	agent := newScriptedAgent(t,
		callStep(calcCall("40+2")),
		textStep("Understood."),
	)
	agent.deny["calculate"] = true
	session := NewChatSession("conv-1", agent, nil, false)

	turn, err := session.Submit("compute")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	result := (*agent.requests[1].Tool_Results)[0]
	if result.Error_Kind != tools.Error_Execution_Denied {
		t.Errorf("Error_Kind = %q, want %q", result.Error_Kind, tools.Error_Execution_Denied)
	}
	if !strings.Contains(turn[2].PartsJSON, "Execution denied by user") {
		t.Errorf("function_response parts = %s", turn[2].PartsJSON)
	}
}

func TestSubmitLoopGuard(t *testing.T) {
	steps := make([]scriptStep, Max_Tool_Rounds)
	for i := range steps {
		steps[i] = callStep(calcCall("1+1"))
	}
	agent := newScriptedAgent(t, steps...)
	session := NewChatSession("conv-1", agent, nil, false)

	turn, err := session.Submit("loop forever")

	var loopErr *ToolLoopExceededError
	if !errors.As(err, &loopErr) {
		t.Fatalf("error = %v, want ToolLoopExceededError", err)
	}
	if loopErr.Rounds != Max_Tool_Rounds {
		t.Errorf("Rounds = %d, want %d", loopErr.Rounds, Max_Tool_Rounds)
	}
	if agent.calls != Max_Tool_Rounds {
		t.Errorf("model called %d times, want %d", agent.calls, Max_Tool_Rounds)
	}
	// Messages accumulated before the guard tripped are retained.
	wantLen := 1 + 2*Max_Tool_Rounds
	if len(turn) != wantLen {
		t.Errorf("turn length = %d, want %d", len(turn), wantLen)
	}
	if len(session.History()) != wantLen {
		t.Errorf("session history length = %d, want %d", len(session.History()), wantLen)
	}
}

func TestSubmitUpstreamErrorFirstRound(t *testing.T) {
	agent := newScriptedAgent(t, scriptStep{err: errors.New("503 from upstream")})
	session := NewChatSession("conv-1", agent, nil, false)

	turn, err := session.Submit("hello")

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
	if !strings.Contains(upstream.Error(), "503 from upstream") {
		t.Errorf("error message = %q", upstream.Error())
	}
	// Only the user message survives a failed first round.
	if got := messageTypes(turn); len(got) != 1 || got[0] != "user_message" {
		t.Errorf("turn types = %v, want [user_message]", got)
	}
	if len(session.History()) != 1 {
		t.Errorf("session history length = %d, want 1", len(session.History()))
	}
}

func TestSubmitEmptyResponseIsUpstreamError(t *testing.T) {
	agent := newScriptedAgent(t, scriptStep{response: models.Model_Response{}})
	session := NewChatSession("conv-1", agent, nil, false)

	_, err := session.Submit("hello")

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
	if len(session.History()) != 1 {
		t.Errorf("session history length = %d, want 1", len(session.History()))
	}
}

func TestSubmitPersistsCompletedTurn(t *testing.T) {
	store, err := stores.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	agent := newScriptedAgent(t,
		callStep(calcCall("2+3")),
		textStep("5"),
	)
	session := NewChatSession("conv-1", agent, store, true)

	if _, err := session.Submit("add"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	persisted, err := store.FetchHistory("conv-1", 0)
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}
	if len(persisted) != 4 {
		t.Fatalf("persisted %d messages, want 4", len(persisted))
	}
	// PartsJSON round-trips through the store unchanged.
	var parts []map[string]interface{}
	if err := json.Unmarshal([]byte(persisted[0].PartsJSON), &parts); err != nil {
		t.Errorf("persisted parts are not valid JSON: %v", err)
	}
}

func TestSubmitDoesNotPersistFailedFirstRound(t *testing.T) {
	store, err := stores.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	agent := newScriptedAgent(t, scriptStep{err: errors.New("down")})
	session := NewChatSession("conv-1", agent, store, true)

	session.Submit("hello")

	persisted, _ := store.FetchHistory("conv-1", 0)
	if len(persisted) != 0 {
		t.Errorf("persisted %d messages after upstream failure, want 0", len(persisted))
	}
}

func TestSubmitTurnsAccumulate(t *testing.T) {
	agent := newScriptedAgent(t,
		textStep("First."),
		textStep("Second."),
	)
	session := NewChatSession("conv-1", agent, nil, false)

	session.Submit("one")
	session.Submit("two")

	history := session.History()
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}
	// The second turn sees the first turn as history.
	if got := len(agent.histories[1]); got != 2 {
		t.Errorf("second turn history length = %d, want 2", got)
	}
	for i, m := range history {
		if m.Sequence != i+1 {
			t.Errorf("message %d has sequence %d", i, m.Sequence)
		}
	}
}

func TestReset(t *testing.T) {
	agent := newScriptedAgent(t, textStep("Hi."), textStep("Fresh."))
	session := NewChatSession("conv-1", agent, nil, false)

	session.Submit("hello")
	session.Reset()
	if len(session.History()) != 0 {
		t.Fatalf("history not cleared by Reset")
	}

	session.Submit("again")
	if got := len(agent.histories[1]); got != 0 {
		t.Errorf("history after Reset = %d messages, want 0", got)
	}
}

func TestMergeTextParts(t *testing.T) {
	a, b := "Hel", "lo"
	call := models.FunctionCall{Name: "calculate", Args: map[string]interface{}{"expression": "1"}}
	merged := mergeTextParts(models.Model_Response{Parts: []models.Model_Part{
		{Text: &a},
		{FunctionCall: &call},
		{Text: &b},
	}})

	if len(merged.Parts) != 2 {
		t.Fatalf("merged parts = %d, want 2", len(merged.Parts))
	}
	if merged.Parts[0].Text == nil || *merged.Parts[0].Text != "Hello" {
		t.Errorf("merged text = %v", merged.Parts[0].Text)
	}
	if merged.Parts[1].FunctionCall == nil {
		t.Errorf("function call dropped by merge")
	}
}
