package pipeline

import "testing"

func TestTextBufferFlushHeuristic(t *testing.T) {
	tests := []struct {
		name    string
		deltas  []string
		flushed []string
		rest    string
	}{
		{
			name:    "sentence end",
			deltas:  []string{"Hello", ", ", "world", "."},
			flushed: []string{"Hello, world."},
		},
		{
			name:    "long token",
			deltas:  []string{"This is exactly forty characters long!!"},
			flushed: []string{"This is exactly forty characters long!!"},
		},
		{
			name:   "short token",
			deltas: []string{"Hi"},
			rest:   "Hi",
		},
		{
			name:    "length threshold",
			deltas:  []string{"one two three four five six seven ", "eight nine"},
			flushed: []string{"one two three four five six seven eight nine"},
		},
		{
			name:    "question and newline",
			deltas:  []string{"Ready? ", "Steps", ":\n", "go"},
			flushed: []string{"Ready? ", "Steps:\n"},
			rest:    "go",
		},
		{
			name:   "whitespace only",
			deltas: []string{" ", "  "},
			rest:   "   ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buffer := newTextBuffer(DefaultFlushLength)
			var flushed []string
			for _, delta := range tt.deltas {
				if fragment, ok := buffer.add(delta); ok {
					flushed = append(flushed, fragment)
				}
			}
			if !equalStrings(flushed, tt.flushed) {
				t.Fatalf("expected flushes %q, got %q", tt.flushed, flushed)
			}
			if rest := buffer.rest(); rest != tt.rest {
				t.Fatalf("expected rest %q, got %q", tt.rest, rest)
			}
		})
	}
}

func TestTextBufferFlushesOnlyOncePerFragment(t *testing.T) {
	buffer := newTextBuffer(DefaultFlushLength)
	if _, ok := buffer.add("Done."); !ok {
		t.Fatalf("expected flush")
	}
	if _, ok := buffer.add(" "); ok {
		t.Fatalf("did not expect a flush of a lone space")
	}
}

func equalStrings(a, b []string) bool {
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
