package llms

import (
	"reflect"
	"testing"
)

func TestTrimHistory(t *testing.T) {
	system := SystemMessage("be brief")
	conversation := []Message{
		UserMessage("1"), AssistantMessage("a"),
		UserMessage("2"), AssistantMessage("b"),
		UserMessage("3"), AssistantMessage("c"),
	}

	testCases := []struct {
		name     string
		history  []Message
		turns    int
		expected []Message
	}{
		{
			name:     "keeps system and last turns",
			history:  append([]Message{system}, conversation...),
			turns:    2,
			expected: []Message{system, UserMessage("2"), AssistantMessage("b"), UserMessage("3"), AssistantMessage("c")},
		},
		{
			name:     "short history is untouched",
			history:  append([]Message{system}, conversation...),
			turns:    12,
			expected: append([]Message{system}, conversation...),
		},
		{
			name:     "without system message",
			history:  conversation,
			turns:    1,
			expected: []Message{UserMessage("3"), AssistantMessage("c")},
		},
		{
			name:     "empty",
			history:  nil,
			turns:    12,
			expected: []Message{},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got := TrimHistory(testCase.history, testCase.turns)
			if !reflect.DeepEqual(got, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, got)
			}
		})
	}
}

func TestBuildMessagesDropsSystemFromHistory(t *testing.T) {
	options := StreamingPromptOptions{}
	for _, opt := range []StreamingPromptOption{
		WithInstructions("be brief"),
		WithMessages(SystemMessage("old"), UserMessage("hi"), AssistantMessage("hello")),
	} {
		opt(&options)
	}

	got := options.BuildMessages("what time is it")
	expected := []Message{
		SystemMessage("be brief"),
		UserMessage("hi"),
		AssistantMessage("hello"),
		UserMessage("what time is it"),
	}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
