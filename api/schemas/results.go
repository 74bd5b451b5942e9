package schemas

import (
	"encoding/base64"
	"time"
)

// -- Verdicts and Outcomes --

// Verdict is the three-way classification of post-submit page state.
type Verdict string

const (
	VerdictSuccess Verdict = "success"
	VerdictMaybe   Verdict = "maybe"
	VerdictFail    Verdict = "fail"
)

// Status is the terminal state reported for a submission request. It extends
// Verdict with an error state for transient or fatal failures.
type Status string

const (
	StatusSuccess Status = "success"
	StatusMaybe   Status = "maybe"
	StatusFail    Status = "fail"
	StatusError   Status = "error"
)

// StatusFromVerdict maps a classifier verdict onto a result status.
func StatusFromVerdict(v Verdict) Status {
	switch v {
	case VerdictSuccess:
		return StatusSuccess
	case VerdictMaybe:
		return StatusMaybe
	default:
		return StatusFail
	}
}

// Reasons attached to fail results. These are normal business outcomes.
const (
	ReasonNoFormFound     = "no_form_found"
	ReasonNoSuccessSignal = "no_success_signal"
	ReasonRequestTimeout  = "request_timeout"
	ReasonNavTimeout      = "navigation_timeout"
)

// -- Requests and Results --

// Request is a single submission request fed into the orchestrator.
type Request struct {
	ID      string  `json:"id,omitempty"`
	URL     string  `json:"url"`
	Payload Payload `json:"payload"`
}

// CandidateTrace records what happened to one form candidate.
type CandidateTrace struct {
	Ref     string   `json:"ref"`
	Score   int      `json:"score"`
	Slots   []string `json:"slots,omitempty"`
	Skipped bool     `json:"skipped,omitempty"`
	Verdict Verdict  `json:"verdict,omitempty"`
	Retried bool     `json:"retried,omitempty"`
}

// Result is the terminal record produced for every request.
type Result struct {
	ID         string           `json:"id"`
	Status     Status           `json:"status"`
	Verdict    Verdict          `json:"verdict,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	URL        string           `json:"url"`
	Host       string           `json:"host"`
	ElapsedMS  int64            `json:"ms"`
	Error      string           `json:"error,omitempty"`
	Screenshot []byte           `json:"-"`
	Candidates []CandidateTrace `json:"candidates,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}

// ScreenshotDataURL renders the screenshot as a JPEG data URL, or "" when no
// screenshot was captured.
func (r Result) ScreenshotDataURL() string {
	if len(r.Screenshot) == 0 {
		return ""
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(r.Screenshot)
}

// ResultView is the wire form of Result, with the screenshot inlined.
type ResultView struct {
	Result
	Screenshot string `json:"screenshot,omitempty"`
}

// View converts the result into its wire form.
func (r Result) View() ResultView {
	return ResultView{Result: r, Screenshot: r.ScreenshotDataURL()}
}
