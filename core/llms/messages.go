package llms

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is a single role-tagged entry of a conversation.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

func SystemMessage(content string) Message {
	return Message{Role: MessageRoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: MessageRoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: MessageRoleAssistant, Content: content}
}

// TrimHistory keeps the leading system message, if any, and the last
// 2*turns messages after it.
func TrimHistory(history []Message, turns int) []Message {
	var system []Message
	rest := history
	if len(history) > 0 && history[0].Role == MessageRoleSystem {
		system = history[:1]
		rest = history[1:]
	}

	if keep := 2 * turns; keep >= 0 && len(rest) > keep {
		rest = rest[len(rest)-keep:]
	}

	trimmed := make([]Message, 0, len(system)+len(rest))
	trimmed = append(trimmed, system...)
	return append(trimmed, rest...)
}
