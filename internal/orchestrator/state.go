package orchestrator

import (
	"sync"

	"fieldpilot/internal/logging"
)

// Phase is one step of the fill lifecycle. Transitions are linear per fill;
// PhaseError preserves the phase that failed so the operator sees where.
type Phase string

const (
	PhaseIdle           Phase = "IDLE"
	PhaseDetecting      Phase = "DETECTING"
	PhaseAnalyzing      Phase = "ANALYZING"
	PhaseRetrieving     Phase = "RETRIEVING"
	PhaseInferring      Phase = "INFERRING"
	PhaseFilling        Phase = "FILLING"
	PhaseAwaitingReview Phase = "AWAITING_REVIEW"
	PhaseLearning       Phase = "LEARNING"
	PhaseError          Phase = "ERROR"
)

// Event is one progress notification emitted during a fill.
type Event struct {
	ProfileID string
	Phase     Phase
	// FailedIn carries the phase that was active when an ERROR event fires.
	FailedIn Phase
	Detail   string
}

// ProgressFunc receives fill progress events. Calls happen on the resolving
// goroutine; sinks must not block.
type ProgressFunc func(Event)

// tracker holds the current phase of one fill and pushes events to the sink.
type tracker struct {
	mu        sync.Mutex
	profileID string
	phase     Phase
	sink      ProgressFunc
}

func newTracker(profileID string, sink ProgressFunc) *tracker {
	return &tracker{profileID: profileID, phase: PhaseIdle, sink: sink}
}

func (t *tracker) to(phase Phase, detail string) {
	t.mu.Lock()
	t.phase = phase
	t.mu.Unlock()

	logging.ResolveDebug("profile %s entered %s %s", t.profileID, phase, detail)
	if t.sink != nil {
		t.sink(Event{ProfileID: t.profileID, Phase: phase, Detail: detail})
	}
}

func (t *tracker) fail(detail string) {
	t.mu.Lock()
	prior := t.phase
	t.phase = PhaseError
	t.mu.Unlock()

	logging.Resolve("profile %s errored in %s: %s", t.profileID, prior, detail)
	if t.sink != nil {
		t.sink(Event{ProfileID: t.profileID, Phase: PhaseError, FailedIn: prior, Detail: detail})
	}
}
