package gemchat

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mmoreau/gemchat/stores"
)

const defaultModelName = "gemini-2.0-flash"

// fallbackSystemInstruction applies when data/system_instruction.txt does not
// exist.
const fallbackSystemInstruction = `You are an exceptionally helpful and friendly chatbot.
Your purpose is to provide concise and accurate information as requested by the user.
If a question is outside of your capabilities, politely inform the user that you are unable to help with that request.`

// Config holds the app-level settings, resolved from environment variables
// (a .env file is loaded first if present).
type Config struct {
	APIKey            string
	ModelName         string
	SystemInstruction string
	SaveChatHistory   bool

	// StoreKind selects the history backend: "file" (default), "sqlite" or
	// "postgres". StoreConn is the sqlite path or postgres DSN.
	StoreKind string
	StoreConn string
}

// Load_Config reads configuration from the environment. GEMINI_API_KEY is
// required; everything else has defaults.
func Load_Config() (*Config, error) {
	godotenv.Load()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set in .env file or environment variables")
	}

	modelName := os.Getenv("GEMINI_MODEL")
	if modelName == "" {
		modelName = defaultModelName
	}

	systemInstruction := fallbackSystemInstruction
	if data, err := os.ReadFile("data/system_instruction.txt"); err == nil {
		systemInstruction = string(data)
	}

	storeKind := os.Getenv("GEMCHAT_STORE")
	if storeKind == "" {
		storeKind = "file"
	}

	return &Config{
		APIKey:            apiKey,
		ModelName:         modelName,
		SystemInstruction: systemInstruction,
		SaveChatHistory:   isTruthy(os.Getenv("GEMINI_SAVE_CHAT_HISTORY")),
		StoreKind:         storeKind,
		StoreConn:         os.Getenv("GEMCHAT_STORE_CONN"),
	}, nil
}

// OpenStore connects the configured history backend. Returns nil when history
// persistence is disabled.
func (c *Config) OpenStore() (stores.MessageStore, error) {
	if !c.SaveChatHistory {
		return nil, nil
	}
	return stores.NewStore(stores.NewStoreConfig(c.StoreKind, c.StoreConn))
}

func isTruthy(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	}
	return false
}
