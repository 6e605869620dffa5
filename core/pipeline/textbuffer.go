package pipeline

import "strings"

const DefaultFlushLength = 40

// textBuffer collects answer deltas into fragments worth synthesizing. A
// fragment is released once it ends a sentence or line, or grows to limit
// characters.
type textBuffer struct {
	limit   int
	pending strings.Builder
}

func newTextBuffer(limit int) *textBuffer {
	if limit <= 0 {
		limit = DefaultFlushLength
	}
	return &textBuffer{limit: limit}
}

// add appends delta and returns the fragment to flush, if any.
func (b *textBuffer) add(delta string) (string, bool) {
	b.pending.WriteString(delta)
	if !b.shouldFlush() {
		return "", false
	}
	return b.take(), true
}

// rest returns whatever is still pending.
func (b *textBuffer) rest() string {
	return b.take()
}

func (b *textBuffer) shouldFlush() bool {
	pending := b.pending.String()
	if len(pending) >= b.limit {
		return true
	}
	trimmed := strings.TrimRight(pending, " \t")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}

func (b *textBuffer) take() string {
	fragment := b.pending.String()
	b.pending.Reset()
	return fragment
}
