package schemas

import "time"

// -- Progress Events --

// EventKind names a step in the submission state machine.
type EventKind string

const (
	EventNavigated       EventKind = "navigated"
	EventCandidatesFound EventKind = "candidates_found"
	EventCandidateTried  EventKind = "candidate_tried"
	EventSlotFilled      EventKind = "slot_filled"
	EventVerdictReached  EventKind = "verdict_reached"
)

// ProgressEvent is emitted by the orchestrator as an attempt advances.
// Subscribers must treat the stream as lossy.
type ProgressEvent struct {
	AttemptID string    `json:"attempt_id"`
	Kind      EventKind `json:"kind"`
	URL       string    `json:"url,omitempty"`
	Candidate int       `json:"candidate,omitempty"`
	Slot      string    `json:"slot,omitempty"`
	Verdict   Verdict   `json:"verdict,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}
