package llms

type StreamingPromptOptions struct {
	Instructions string
	Messages     []Message
	// ConversationID names the conversation for providers that keep the
	// history server side.
	ConversationID string
}

type StreamingPromptOption func(*StreamingPromptOptions)

func WithInstructions(instructions string) StreamingPromptOption {
	return func(o *StreamingPromptOptions) { o.Instructions = instructions }
}

func WithConversationID(id string) StreamingPromptOption {
	return func(o *StreamingPromptOptions) { o.ConversationID = id }
}

// WithMessages sets the conversation so far. System messages are dropped in
// favour of the instructions.
func WithMessages(messages ...Message) StreamingPromptOption {
	return func(o *StreamingPromptOptions) {
		o.Messages = nil
		for _, message := range messages {
			if message.Role == MessageRoleSystem {
				continue
			}
			o.Messages = append(o.Messages, message)
		}
	}
}

// BuildMessages returns the instructions followed by the conversation and the
// prompt.
func (o StreamingPromptOptions) BuildMessages(prompt string) []Message {
	messages := make([]Message, 0, len(o.Messages)+2)
	if o.Instructions != "" {
		messages = append(messages, SystemMessage(o.Instructions))
	}
	messages = append(messages, o.Messages...)
	if prompt != "" {
		messages = append(messages, UserMessage(prompt))
	}
	return messages
}
