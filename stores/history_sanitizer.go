package stores

import (
	"log"
)

// SanitizeHistory repairs a message sequence before it is sent to the model.
// The API rejects histories that start mid tool cycle or contain orphaned
// function messages, which can happen after truncation or a crashed turn.
//
// Valid turn patterns:
// - user_message -> model_message
// - user_message -> function_call -> function_response -> ... -> model_message
//
// Guarantees after sanitizing:
// - history starts with a user_message or model_message
// - every mid-history function_call is followed by at least one
//   function_response (trailing calls are kept: their responses arrive with
//   the current request)
// - no function_response appears without a preceding function_call
func SanitizeHistory(msgs []Message) []Message {
	if len(msgs) == 0 {
		return msgs
	}

	startIdx := findValidStartIndex(msgs)
	if startIdx == -1 {
		// No clean start at all. Fall back to the most recent user message
		// to preserve at least some context.
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Type == "user_message" {
				log.Printf("[HISTORY_SANITIZER] No valid start, falling back to user_message at index %d", i)
				return []Message{msgs[i]}
			}
		}
		log.Printf("[HISTORY_SANITIZER] No valid starting point found, returning empty history")
		return []Message{}
	}

	if startIdx > 0 {
		log.Printf("[HISTORY_SANITIZER] Skipping first %d messages to find valid start (was type: %s)", startIdx, msgs[0].Type)
		msgs = msgs[startIdx:]
	}

	sanitized := sanitizeToolCycles(msgs)
	if len(sanitized) != len(msgs) {
		log.Printf("[HISTORY_SANITIZER] Removed %d messages with broken tool cycles", len(msgs)-len(sanitized))
	}
	return sanitized
}

// findValidStartIndex returns the first index holding a user_message or
// model_message. Leading function_call/function_response messages are
// truncation debris.
func findValidStartIndex(msgs []Message) int {
	for i, msg := range msgs {
		switch msg.Type {
		case "user_message", "model_message":
			return i
		case "function_call", "function_response":
			continue
		default:
			// Unknown type, try to use it
			return i
		}
	}
	return -1
}

// sanitizeToolCycles drops incomplete tool cycles in the middle of history
// and orphaned function_responses anywhere.
func sanitizeToolCycles(msgs []Message) []Message {
	result := make([]Message, 0, len(msgs))
	i := 0

	for i < len(msgs) {
		msg := msgs[i]

		switch msg.Type {
		case "user_message", "model_message":
			result = append(result, msg)
			i++

		case "function_call":
			cycleStart := i
			cycleMessages, nextIdx, valid := collectCompleteCycle(msgs, i)

			switch {
			case valid:
				result = append(result, cycleMessages...)
				i = nextIdx
			case nextIdx >= len(msgs):
				// Trailing function_call(s) at the end of history: keep them,
				// the response is expected in the current request's tool
				// results.
				log.Printf("[HISTORY_SANITIZER] Keeping trailing function_call(s) at index %d-%d", cycleStart, nextIdx-1)
				result = append(result, cycleMessages...)
				i = nextIdx
			default:
				log.Printf("[HISTORY_SANITIZER] Removing incomplete tool cycle at index %d (function_call without response)", cycleStart)
				i = nextIdx
			}

		case "function_response":
			// Orphaned response without a preceding call.
			log.Printf("[HISTORY_SANITIZER] Removing orphaned function_response at index %d", i)
			i++

		default:
			log.Printf("[HISTORY_SANITIZER] Unknown message type '%s' at index %d, including anyway", msg.Type, i)
			result = append(result, msg)
			i++
		}
	}

	return result
}

// collectCompleteCycle gathers one tool cycle: one or more function_calls
// followed by their function_responses. Returns the cycle messages, the index
// to continue from, and whether at least one response was present.
func collectCompleteCycle(msgs []Message, startIdx int) ([]Message, int, bool) {
	cycleMessages := []Message{}
	responses := 0
	i := startIdx

	for i < len(msgs) && msgs[i].Type == "function_call" {
		cycleMessages = append(cycleMessages, msgs[i])
		i++
	}
	for i < len(msgs) && msgs[i].Type == "function_response" {
		cycleMessages = append(cycleMessages, msgs[i])
		responses++
		i++
	}

	if responses == 0 {
		return cycleMessages, i, false
	}
	return cycleMessages, i, true
}

// DetectCorruptedHistory reports sequencing problems without fixing them.
// Returns an empty slice when the history is clean.
func DetectCorruptedHistory(msgs []Message) []string {
	issues := []string{}

	if len(msgs) == 0 {
		return issues
	}

	if msgs[0].Type == "function_response" {
		issues = append(issues, "History starts with function_response (orphaned)")
	}
	if msgs[0].Type == "function_call" {
		issues = append(issues, "History starts with function_call (truncated mid-cycle)")
	}

	pendingCalls := 0
	for _, msg := range msgs {
		switch msg.Type {
		case "function_call":
			pendingCalls++
		case "function_response":
			if pendingCalls > 0 {
				pendingCalls--
			} else {
				issues = append(issues, "function_response without preceding function_call")
			}
		}
	}
	if pendingCalls > 0 {
		issues = append(issues, "Orphaned function_call(s) without responses at end of history")
	}

	for i := 1; i < len(msgs); i++ {
		if msgs[i-1].Role == "user" && msgs[i].Role == "user" &&
			msgs[i-1].Type == "user_message" && msgs[i].Type == "user_message" {
			issues = append(issues, "Two consecutive user_messages")
		}
	}

	return issues
}
