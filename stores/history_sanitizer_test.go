package stores

import (
	"testing"
)

func msg(msgType, role string) Message {
	return Message{Role: role, Type: msgType, PartsJSON: "[]"}
}

func types(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func equalTypes(a []string, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSanitizeHistoryCleanHistoryUnchanged(t *testing.T) {
	history := []Message{
		msg("user_message", "user"),
		msg("function_call", "model"),
		msg("function_response", "user"),
		msg("model_message", "model"),
	}

	got := SanitizeHistory(history)
	if !equalTypes(types(got), types(history)) {
		t.Errorf("clean history changed: %v", types(got))
	}
}

func TestSanitizeHistoryEmptyInput(t *testing.T) {
	if got := SanitizeHistory(nil); len(got) != 0 {
		t.Errorf("sanitizing nil returned %d messages", len(got))
	}
}

func TestSanitizeHistoryDropsLeadingDebris(t *testing.T) {
	history := []Message{
		msg("function_response", "user"),
		msg("function_call", "model"),
		msg("user_message", "user"),
		msg("model_message", "model"),
	}

	got := SanitizeHistory(history)
	want := []string{"user_message", "model_message"}
	if !equalTypes(types(got), want) {
		t.Errorf("got %v, want %v", types(got), want)
	}
}

func TestSanitizeHistoryRemovesMidHistoryCallWithoutResponse(t *testing.T) {
	history := []Message{
		msg("user_message", "user"),
		msg("function_call", "model"),
		msg("model_message", "model"),
	}

	got := SanitizeHistory(history)
	want := []string{"user_message", "model_message"}
	if !equalTypes(types(got), want) {
		t.Errorf("got %v, want %v", types(got), want)
	}
}

func TestSanitizeHistoryKeepsTrailingCall(t *testing.T) {
	// The response to a trailing call arrives with the current request, so
	// the call must survive sanitizing.
	history := []Message{
		msg("user_message", "user"),
		msg("function_call", "model"),
	}

	got := SanitizeHistory(history)
	want := []string{"user_message", "function_call"}
	if !equalTypes(types(got), want) {
		t.Errorf("got %v, want %v", types(got), want)
	}
}

func TestSanitizeHistoryRemovesOrphanedResponse(t *testing.T) {
	history := []Message{
		msg("user_message", "user"),
		msg("model_message", "model"),
		msg("function_response", "user"),
		msg("model_message", "model"),
	}

	got := SanitizeHistory(history)
	want := []string{"user_message", "model_message", "model_message"}
	if !equalTypes(types(got), want) {
		t.Errorf("got %v, want %v", types(got), want)
	}
}

func TestSanitizeHistoryParallelCallsOneCycle(t *testing.T) {
	history := []Message{
		msg("user_message", "user"),
		msg("function_call", "model"),
		msg("function_call", "model"),
		msg("function_response", "user"),
		msg("function_response", "user"),
		msg("model_message", "model"),
	}

	got := SanitizeHistory(history)
	if !equalTypes(types(got), types(history)) {
		t.Errorf("parallel-call cycle changed: %v", types(got))
	}
}

func TestSanitizeHistoryFallbackToLastUserMessage(t *testing.T) {
	// A history holding only tool debris falls back to the newest
	// user-flavored message it can find: nothing here, so empty.
	history := []Message{
		msg("function_call", "model"),
		msg("function_response", "user"),
	}

	got := SanitizeHistory(history)
	if len(got) != 0 {
		t.Errorf("expected empty history, got %v", types(got))
	}
}

func TestDetectCorruptedHistory(t *testing.T) {
	clean := []Message{
		msg("user_message", "user"),
		msg("model_message", "model"),
	}
	if issues := DetectCorruptedHistory(clean); len(issues) != 0 {
		t.Errorf("clean history flagged: %v", issues)
	}

	broken := []Message{
		msg("function_response", "user"),
		msg("user_message", "user"),
		msg("user_message", "user"),
		msg("function_call", "model"),
	}
	issues := DetectCorruptedHistory(broken)
	if len(issues) < 3 {
		t.Errorf("expected at least 3 issues, got %v", issues)
	}
}
