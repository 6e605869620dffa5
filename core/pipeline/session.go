package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-voice/core/texttospeech"
)

// runHandle is one invocation of Process. Cancelling it aborts the chat
// stream and every other stage of that invocation.
type runHandle struct {
	cancel context.CancelFunc
}

// runSlot holds the invocation allowed to generate an answer. A new
// invocation aborts the previous one.
type runSlot struct {
	current atomic.Pointer[runHandle]
}

// claim makes a new invocation current and aborts the one it replaces.
func (s *runSlot) claim(cancel context.CancelFunc) *runHandle {
	next := &runHandle{cancel: cancel}
	for {
		prev := s.current.Load()
		if s.current.CompareAndSwap(prev, next) {
			if prev != nil {
				prev.cancel()
			}
			return next
		}
	}
}

// release clears the slot if h is still current.
func (s *runSlot) release(h *runHandle) {
	s.current.CompareAndSwap(h, nil)
}

func (s *runSlot) isCurrent(h *runHandle) bool {
	return s.current.Load() == h
}

func (s *runSlot) abortCurrent() {
	if h := s.current.Swap(nil); h != nil {
		h.cancel()
	}
}

type sessionHandle struct {
	session   texttospeech.Session
	closeOnce sync.Once
}

func (h *sessionHandle) close() {
	h.closeOnce.Do(func() {
		if err := h.session.Close(); err != nil {
			logger.Warn("failed to close speech session", "error", err)
		}
	})
}

// sessionSlot holds the one speech session that may be open at a time.
type sessionSlot struct {
	current atomic.Pointer[sessionHandle]
}

// install makes session current as long as owns reports true, closing the
// session it displaces. When owns reports false a newer invocation holds
// the slot: session is closed instead and the slot is left alone.
func (s *sessionSlot) install(session texttospeech.Session, owns func() bool) (*sessionHandle, bool) {
	next := &sessionHandle{session: session}
	for {
		prev := s.current.Load()
		if !owns() {
			next.close()
			return nil, false
		}
		if s.current.CompareAndSwap(prev, next) {
			if prev != nil {
				prev.close()
			}
			return next, true
		}
	}
}

// closeCurrent closes the current session while owns reports true. It
// leaves a session installed by a newer invocation untouched.
func (s *sessionSlot) closeCurrent(owns func() bool) {
	for {
		prev := s.current.Load()
		if prev == nil || !owns() {
			return
		}
		if s.current.CompareAndSwap(prev, nil) {
			prev.close()
			return
		}
	}
}

// release closes h and clears the slot if h is still current.
func (s *sessionSlot) release(h *sessionHandle) {
	if h == nil {
		return
	}
	s.current.CompareAndSwap(h, nil)
	h.close()
}

func (s *sessionSlot) closeAll() {
	if h := s.current.Swap(nil); h != nil {
		h.close()
	}
}

func (s *sessionSlot) active() bool {
	return s.current.Load() != nil
}
