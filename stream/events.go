package stream

import "context"

// Cursor identifies a position in a live run stream. RunID names the run the
// event belongs to; Seq is the server-assigned sequence number within it.
// A Cursor is the resume token: reopening a stream "after" a cursor must
// deliver only events with a strictly greater sequence.
type Cursor struct {
	RunID string
	Seq   int64
}

// Valid reports whether the cursor points at a real stream position.
func (c Cursor) Valid() bool {
	return c.RunID != "" || c.Seq > 0
}

// After reports whether c is strictly later than other within the same run.
// Cursors from different runs are never comparable; the newer run wins.
func (c Cursor) After(other Cursor) bool {
	if c.RunID != other.RunID {
		return c.RunID != ""
	}
	return c.Seq > other.Seq
}

// Event is the interface implemented by all normalized stream events.
type Event interface {
	EventCursor() Cursor
}

// ReasoningDelta is an incremental chunk of the agent's reasoning text.
// Successive deltas sharing an Otid belong to the same transcript line.
type ReasoningDelta struct {
	Cursor Cursor
	Otid   string
	Text   string
}

func (e ReasoningDelta) EventCursor() Cursor { return e.Cursor }

// AssistantDelta is an incremental chunk of the agent's visible reply.
type AssistantDelta struct {
	Cursor Cursor
	Otid   string
	Text   string
}

func (e AssistantDelta) EventCursor() Cursor { return e.Cursor }

// ToolCallDelta is a fragment of a tool invocation: the name arrives on the
// first fragment, the argument JSON accumulates across fragments. Approval
// marks the approval-request variant, which parks the call until a human
// accepts or denies it instead of letting it run.
type ToolCallDelta struct {
	Cursor   Cursor
	Otid     string
	CallID   string
	Name     string
	Args     string
	Approval bool
}

func (e ToolCallDelta) EventCursor() Cursor { return e.Cursor }

// ToolReturn carries the result of a completed tool invocation. It is
// matched to its call by CallID only; its own identifiers differ from the
// call's.
type ToolReturn struct {
	Cursor Cursor
	CallID string
	Status string
	Text   string
}

func (e ToolReturn) EventCursor() Cursor { return e.Cursor }

// OK reports whether the tool invocation succeeded.
func (e ToolReturn) OK() bool { return e.Status == StatusSuccess }

// StatusSuccess is the wire status value for a successful tool return.
const StatusSuccess = "success"

// UsageDelta carries token accounting for the turn so far. It never creates
// a transcript line; totals accumulate on the store.
type UsageDelta struct {
	Cursor           Cursor
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
	ReasoningTokens  int
	Steps            int
}

func (e UsageDelta) EventCursor() Cursor { return e.Cursor }

// StopReason encodes why the server ended a run.
type StopReason string

const (
	StopEndTurn          StopReason = "end_turn"
	StopCancelled        StopReason = "cancelled"
	StopError            StopReason = "error"
	StopRequiresApproval StopReason = "requires_approval"
)

// Stop is the explicit end-of-run marker. A stream that terminates without
// one ended abnormally.
type Stop struct {
	Cursor Cursor
	Reason StopReason
}

func (e Stop) EventCursor() Cursor { return e.Cursor }

// Unknown is an event of a kind this client does not recognize. It is
// folded as a no-op so newer servers stay compatible with older clients.
type Unknown struct {
	Cursor Cursor
	Kind   string
}

func (e Unknown) EventCursor() Cursor { return e.Cursor }

// Source is a live event stream. Next blocks until an event arrives, the
// context is cancelled, or the stream ends; a clean end without a prior
// Stop event is reported as io.EOF and treated as abnormal termination.
type Source interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}
