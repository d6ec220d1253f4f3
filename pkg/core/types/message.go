// Package types holds the conversational records shared by the session
// controller and the generation engines.
package types

import "fmt"

// Role identifies who contributed a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(text string) Message    { return Message{Role: RoleSystem, Content: text} }
func HumanMessage(text string) Message     { return Message{Role: RoleHuman, Content: text} }
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Content: text} }

// ValidateHistory checks the history shape every engine relies on: at most
// one system message, only at index 0, and known roles throughout.
func ValidateHistory(history []Message) error {
	for i, m := range history {
		switch m.Role {
		case RoleSystem:
			if i != 0 {
				return fmt.Errorf("system message at position %d", i)
			}
		case RoleHuman, RoleAssistant:
		default:
			return fmt.Errorf("unknown role %q at position %d", m.Role, i)
		}
	}
	return nil
}

// SplitSystem separates the leading system prompt from the rest of history.
func SplitSystem(history []Message) (system string, rest []Message) {
	if len(history) > 0 && history[0].Role == RoleSystem {
		return history[0].Content, history[1:]
	}
	return "", history
}
