// Package transcript maintains the reconciled transcript for one
// conversation: an ordered, append-only set of display lines folded from
// live stream events or rebuilt from stored history. Both paths produce the
// same Line shape, so renderers never know which source fed the store.
package transcript

// LineKind categorizes transcript lines.
type LineKind string

const (
	LineUser      LineKind = "user"
	LineReasoning LineKind = "reasoning"
	LineAssistant LineKind = "assistant"
	LineToolCall  LineKind = "tool_call"
	LineError     LineKind = "error"
	LineSummary   LineKind = "summary"
)

// LinePhase is the lifecycle of a streaming line. Phases only move forward:
// streaming -> ready|running -> finished. "ready" is specific to tool calls
// and means the call is parked awaiting human approval.
type LinePhase string

const (
	PhaseStreaming LinePhase = "streaming"
	PhaseReady     LinePhase = "ready"
	PhaseRunning   LinePhase = "running"
	PhaseFinished  LinePhase = "finished"
)

// rank orders phases for the monotonicity check. Ready and running are
// peers: an approval request may arrive after execution started and vice
// versa, but neither ever reverts to streaming.
func (p LinePhase) rank() int {
	switch p {
	case PhaseStreaming:
		return 0
	case PhaseReady, PhaseRunning:
		return 1
	case PhaseFinished:
		return 2
	default:
		return 0
	}
}

// Finished reports whether the line has reached its terminal phase.
func (p LinePhase) Finished() bool { return p == PhaseFinished }

// Line is one row of reconstructed transcript state.
type Line struct {
	ID    string
	Kind  LineKind
	Phase LinePhase
	Otid  string
	Text  string

	// Tool-call fields. ToolCallID is assigned once and never changes;
	// ArgsText accumulates argument fragments and is append-only.
	ToolCallID string
	ToolName   string
	ArgsText   string
	ResultText string
	ResultOK   bool
	HasResult  bool

	// Interrupted marks a tool call that was force-finalized because the
	// user cancelled the turn before its return arrived.
	Interrupted bool

	// SummaryCount is the number of prior messages a summary line stands
	// in for. Only set on LineSummary lines.
	SummaryCount int
}

// ApprovalRequest is a tool call awaiting explicit accept/deny. It is
// derived from a tool-call line the moment its phase is ready; it is never
// stored independently.
type ApprovalRequest struct {
	ToolCallID string
	ToolName   string
	ToolArgs   string
}

// DerivedID builds the deterministic line id used when several tool calls
// share one source identifier (parallel calls in one stored message, or a
// backend reusing a correlation id across distinct content). The suffix is
// the tail of the distinguishing token so that repeated reconstruction
// yields the same id.
func DerivedID(base, distinct string) string {
	const suffixLen = 8
	if len(distinct) > suffixLen {
		distinct = distinct[len(distinct)-suffixLen:]
	}
	return base + "#" + distinct
}

// cloneLine returns a copy safe to hand outside the store. Line has no
// reference-typed fields today, but routing every export through one place
// keeps that a local concern.
func cloneLine(l *Line) Line { return *l }
