package pipeline

import "testing"

func owner(owns bool) func() bool { return func() bool { return owns } }

func TestSessionSlotKeepsOneSessionOpen(t *testing.T) {
	slot := sessionSlot{}
	first := &sessionStub{done: make(chan struct{})}
	second := &sessionStub{done: make(chan struct{})}

	firstHandle, ok := slot.install(first, owner(true))
	if !ok {
		t.Fatalf("expected the first session to be installed")
	}
	secondHandle, ok := slot.install(second, owner(true))
	if !ok {
		t.Fatalf("expected the second session to be installed")
	}
	if _, _, closes := first.stats(); closes != 1 {
		t.Fatalf("expected install to close the displaced session, got %d", closes)
	}

	slot.release(firstHandle)
	if !slot.active() {
		t.Fatalf("releasing a stale handle must not clear the slot")
	}
	if _, _, closes := first.stats(); closes != 1 {
		t.Fatalf("expected closing twice to be a no-op, got %d", closes)
	}

	slot.release(secondHandle)
	if slot.active() {
		t.Fatalf("expected the slot to be empty")
	}
	slot.closeAll()
	if _, _, closes := second.stats(); closes != 1 {
		t.Fatalf("expected one close of the second session, got %d", closes)
	}
}

func TestSessionSlotRejectsSessionOfSupersededRun(t *testing.T) {
	slot := sessionSlot{}
	current := &sessionStub{done: make(chan struct{})}
	stale := &sessionStub{done: make(chan struct{})}

	if _, ok := slot.install(current, owner(true)); !ok {
		t.Fatalf("expected the session to be installed")
	}
	if handle, ok := slot.install(stale, owner(false)); ok || handle != nil {
		t.Fatalf("expected a superseded run to be refused the slot")
	}

	if _, _, closes := current.stats(); closes != 0 {
		t.Fatalf("expected the current session to stay open, got %d closes", closes)
	}
	if _, _, closes := stale.stats(); closes != 1 {
		t.Fatalf("expected the refused session to be closed, got %d closes", closes)
	}

	slot.closeCurrent(owner(false))
	if _, _, closes := current.stats(); closes != 0 || !slot.active() {
		t.Fatalf("a superseded run must not close the current session")
	}
	slot.closeCurrent(owner(true))
	if _, _, closes := current.stats(); closes != 1 || slot.active() {
		t.Fatalf("expected the current session closed, got %d closes", closes)
	}
}

func TestRunSlotAbortsPreviousRun(t *testing.T) {
	slot := runSlot{}
	var firstCancelled, secondCancelled int

	first := slot.claim(func() { firstCancelled++ })
	second := slot.claim(func() { secondCancelled++ })
	if firstCancelled != 1 || secondCancelled != 0 {
		t.Fatalf("expected only the first run aborted, got %d and %d", firstCancelled, secondCancelled)
	}
	if slot.isCurrent(first) || !slot.isCurrent(second) {
		t.Fatalf("expected the second run to be current")
	}

	slot.release(first)
	if !slot.isCurrent(second) {
		t.Fatalf("releasing a stale run must not clear the slot")
	}

	slot.abortCurrent()
	slot.abortCurrent()
	if secondCancelled != 1 {
		t.Fatalf("expected the current run aborted once, got %d", secondCancelled)
	}
	slot.release(second)
	if slot.isCurrent(second) {
		t.Fatalf("expected the slot to be empty")
	}
}
