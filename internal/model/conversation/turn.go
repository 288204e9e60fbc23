package conversation

// Role identifies who authored a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultSystemPrompt seeds every new session history.
const DefaultSystemPrompt = "You are a helpful AI avatar."

// Turn is one entry of a conversation history. Turns are values and are never
// modified once appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemTurn builds a system turn.
func SystemTurn(content string) Turn {
	return Turn{Role: RoleSystem, Content: content}
}

// UserTurn builds a user turn.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn builds an assistant turn.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}
