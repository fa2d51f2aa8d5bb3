package transcript

import (
	"log/slog"

	"github.com/bazelment/quill/stream"
)

// Reduce folds one normalized stream event into the store. It mutates the
// store in place but is behaviorally a pure fold: feeding the same event
// sequence into an empty store always yields the same lines. Deduplication
// across a resume boundary is the drain controller's job (via the resume
// cursor), not the reducer's.
func Reduce(s *Store, ev stream.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case stream.ReasoningDelta:
		s.foldDeltaLocked(LineReasoning, e.Otid, e.Text)
	case stream.AssistantDelta:
		s.foldDeltaLocked(LineAssistant, e.Otid, e.Text)
	case stream.ToolCallDelta:
		s.foldToolCallLocked(e)
	case stream.ToolReturn:
		s.foldToolReturnLocked(e)
	case stream.UsageDelta:
		s.usage.PromptTokens += e.PromptTokens
		s.usage.CompletionTokens += e.CompletionTokens
		s.usage.CachedTokens += e.CachedTokens
		s.usage.ReasoningTokens += e.ReasoningTokens
		s.usage.Steps += e.Steps
	case stream.Stop:
		// The stream ended; whatever was mid-flight is done streaming.
		s.finalizeActiveLocked()
	case stream.Unknown:
		slog.Debug("skipping unknown stream event kind", "kind", e.Kind)
	default:
		// Forward compatible: event types this reducer does not know are
		// ignored, same as Unknown.
	}
}

// foldDeltaLocked handles reasoning and assistant text deltas. A changed or
// absent correlation id finalizes the previously active line before the new
// one is created or extended.
func (s *Store) foldDeltaLocked(kind LineKind, otid, text string) {
	if otid == "" {
		// A disappearing otid finalizes the correlated line. Consecutive
		// uncorrelated deltas of the same kind then extend one synthetic
		// line rather than fragmenting.
		if s.activeOtid != "" {
			s.finalizeActiveLocked()
		}
		if l, ok := s.byID[s.activeID]; ok && l.Kind == kind && !l.Phase.Finished() {
			l.Text += text
			s.usage.addDelta(text, s.counter)
			return
		}
		s.finalizeActiveLocked()
		id := s.syntheticIDLocked(kind)
		l := &Line{ID: id, Kind: kind, Phase: PhaseStreaming, Text: text}
		s.appendLocked(l)
		s.activeID = id
		s.usage.addDelta(text, s.counter)
		return
	}

	if s.activeOtid != otid {
		s.finalizeActiveLocked()
	}

	id := otid
	l, ok := s.byID[id]
	if ok && l.Kind != kind {
		// Correlation id collision: the backend reused one token across
		// logically distinct content. Fork a derived id instead of
		// overwriting the existing line.
		id = forkCollidingID(id, string(kind))
		l, ok = s.byID[id]
	}
	if !ok {
		l = &Line{ID: id, Kind: kind, Phase: PhaseStreaming, Otid: otid}
		s.appendLocked(l)
	}
	// Text always extends, even on a line already finalized by a stop or an
	// otid rotation; the phase is never revived.
	l.Text += text
	s.usage.addDelta(text, s.counter)
	s.activeOtid = otid
	s.activeID = id
}

// foldToolCallLocked handles plain tool-call fragments and approval-request
// fragments. The toolCallID -> line mapping takes priority over the generic
// correlation id: once a call id is bound to a line, every later fragment
// for that call routes there no matter what otid it carries.
func (s *Store) foldToolCallLocked(e stream.ToolCallDelta) {
	l, ok := s.lineForCallLocked(e.CallID)
	if !ok {
		// A new tool call interrupts any in-flight reasoning/assistant
		// line even when the backend forgot to rotate the otid.
		s.finalizeActiveLocked()
		l = s.createToolLineLocked(e)
	}

	if e.Name != "" && l.ToolName == "" {
		l.ToolName = e.Name
	}
	if l.ToolCallID == "" && e.CallID != "" {
		l.ToolCallID = e.CallID
		s.bindCallLocked(e.CallID, l.ID)
	}
	l.ArgsText += e.Args

	if e.Approval {
		advancePhaseLocked(l, PhaseReady)
	}
}

// createToolLineLocked makes the line for the first fragment of a call.
func (s *Store) createToolLineLocked(e stream.ToolCallDelta) *Line {
	id := e.Otid
	if id == "" {
		id = e.CallID
	}
	if id == "" {
		id = s.syntheticIDLocked(LineToolCall)
	}

	if existing, taken := s.byID[id]; taken {
		if existing.Kind == LineToolCall && e.CallID == "" && !existing.Phase.Finished() {
			// A call-id-free fragment cannot be told apart from the open
			// call already at this otid; extend it instead of forking a
			// new line per fragment.
			return existing
		}
		id = forkToolCallID(id, e.CallID)
	}
	if _, taken := s.byID[id]; taken {
		// The derived id is deterministic, so with no call id to vary it
		// a repeat collision needs a fresh synthetic id to keep every
		// ordered id unique.
		id = s.syntheticIDLocked(LineToolCall)
	}

	phase := PhaseStreaming
	if e.Approval {
		phase = PhaseReady
	}
	l := &Line{
		ID:         id,
		Kind:       LineToolCall,
		Phase:      phase,
		Otid:       e.Otid,
		ToolCallID: e.CallID,
		ToolName:   e.Name,
	}
	s.appendLocked(l)
	s.bindCallLocked(e.CallID, l.ID)
	return l
}

// foldToolReturnLocked merges a return into the line created by its call,
// located only via the call index. A return without a matching call is
// dropped: defensively a no-op, not an error. Returns arriving while the
// store still carries a cancellation mark are also dropped; the resumed
// drain clears the mark first when those returns should land.
func (s *Store) foldToolReturnLocked(e stream.ToolReturn) {
	if s.interrupted {
		slog.Debug("dropping tool return after interruption", "call_id", e.CallID)
		return
	}
	l, ok := s.lineForCallLocked(e.CallID)
	if !ok {
		slog.Debug("dropping tool return with no matching call", "call_id", e.CallID)
		return
	}
	l.ResultText = e.Text
	l.ResultOK = e.OK()
	l.HasResult = true
	l.Phase = PhaseFinished
}
