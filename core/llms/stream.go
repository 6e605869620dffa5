package llms

import "context"

type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamReasoningChunk interface {
	StreamChunk
	Reasoning() string
}

// StreamConversationChunk reports the conversation the answer belongs to,
// when the provider assigns one.
type StreamConversationChunk interface {
	StreamChunk
	ConversationID() string
}
