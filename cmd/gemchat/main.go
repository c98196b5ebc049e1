package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/mmoreau/gemchat"
	"github.com/mmoreau/gemchat/models/gemini"
	"github.com/mmoreau/gemchat/sessions"
	"github.com/mmoreau/gemchat/stores"
	"github.com/mmoreau/gemchat/tools"
)

const (
	userColor  = "\033[94m"
	modelColor = "\033[92m"
	resetColor = "\033[0m"
)

func main() {
	config, err := gemchat.Load_Config()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	registry, err := tools.DefaultRegistry()
	if err != nil {
		log.Fatalf("Failed to build tool registry: %v", err)
	}

	store, err := config.OpenStore()
	if err != nil {
		log.Fatalf("Failed to open history store: %v", err)
	}
	if store != nil {
		defer store.Close()
	}

	reader := bufio.NewReader(os.Stdin)

	agent := gemchat.Create_Agent(
		&gemini.Gemini_Model{
			Model:        config.ModelName,
			SystemPrompt: config.SystemInstruction,
			APIKey:       config.APIKey,
		},
		registry,
		func(toolName string, toolArgs map[string]interface{}) bool {
			return promptApproval(reader, toolName, toolArgs)
		},
	)

	session := sessions.NewChatSession("", agent, store, config.SaveChatHistory)

	fmt.Println("Welcome to the chat with Gemini.")
	fmt.Println("Type 'exit' to end the conversation.")
	for {
		fmt.Printf("%sYou: %s", userColor, resetColor)
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") {
			break
		}

		turn, err := session.Submit(input)
		if err != nil {
			var loopErr *sessions.ToolLoopExceededError
			if errors.As(err, &loopErr) {
				fmt.Printf("%sGemini: The request needed too many tool calls; please rephrase.%s\n", modelColor, resetColor)
				continue
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Printf("%sGemini: %s%s\n", modelColor, finalText(turn), resetColor)
	}
}

// promptApproval asks the user y/n before running a sensitive tool.
func promptApproval(reader *bufio.Reader, toolName string, toolArgs map[string]interface{}) bool {
	argsJSON, _ := json.Marshal(toolArgs)
	fmt.Printf("Tool %q requests to run with arguments %s. Approve? [y/N] ", toolName, argsJSON)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// finalText extracts the closing model message of a turn.
func finalText(turn []stores.Message) string {
	for i := len(turn) - 1; i >= 0; i-- {
		if turn[i].Type != "model_message" {
			continue
		}
		var parts []struct {
			Text *string `json:"text"`
		}
		if err := json.Unmarshal([]byte(turn[i].PartsJSON), &parts); err != nil {
			return ""
		}
		text := ""
		for _, part := range parts {
			if part.Text != nil {
				text += *part.Text
			}
		}
		return text
	}
	return ""
}
