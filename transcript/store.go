package transcript

import (
	"fmt"
	"sync"
)

// Store is the ordered line registry. Order reflects arrival order and is
// never re-sorted; every id in order has exactly one entry in byID. The
// call index maps toolCallID to the owning line id so a tool return can
// find its call even though the two carry different primary identifiers.
//
// Folding is strictly sequential (one drain at a time), so the lock only
// guards renderer snapshots taken while a drain is in flight.
type Store struct {
	mu        sync.RWMutex
	order     []string
	byID      map[string]*Line
	callIndex map[string]string
	usage     UsageTotals
	counter   TokenCounter

	// Reducer cursor: the correlation id and line id of the in-flight
	// reasoning/assistant line, if any.
	activeOtid string
	activeID   string

	// interrupted is set when a cancellation force-finalized open lines.
	// While set, late tool returns are dropped; a resumed drain clears it
	// first so server-side returns that survived the disconnect still land.
	interrupted bool

	// synth numbers lines created for deltas that arrived without any
	// correlation id.
	synth int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTokenCounter attaches a token estimator used for streamed-text
// accounting.
func WithTokenCounter(c TokenCounter) StoreOption {
	return func(s *Store) { s.counter = c }
}

// NewStore creates an empty line store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		byID:      make(map[string]*Line),
		callIndex: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reset clears all lines, indexes, and usage, keeping the configuration.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.byID = make(map[string]*Line)
	s.callIndex = make(map[string]string)
	s.usage = UsageTotals{}
	s.activeOtid = ""
	s.activeID = ""
	s.interrupted = false
	s.synth = 0
}

// Len returns the number of lines.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Lines returns a copied snapshot of all lines in order.
func (s *Store) Lines() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Line, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneLine(s.byID[id]))
	}
	return out
}

// Get returns a copy of the line with the given id.
func (s *Store) Get(id string) (Line, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.byID[id]
	if !ok {
		return Line{}, false
	}
	return cloneLine(l), true
}

// Usage returns the accumulated usage totals.
func (s *Store) Usage() UsageTotals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// Interrupted reports whether the store carries a cancellation mark.
func (s *Store) Interrupted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interrupted
}

// ClearInterrupted removes the cancellation mark. Callers must do this
// before folding a resumed stream, otherwise late tool returns for
// server-side tools would be dropped.
func (s *Store) ClearInterrupted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupted = false
}

// PendingApprovals collects an approval request for every tool-call line
// currently parked in the ready phase, in transcript order. Parallel tool
// calls yield multiple requests.
func (s *Store) PendingApprovals() []ApprovalRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ApprovalRequest
	for _, id := range s.order {
		l := s.byID[id]
		if l.Kind == LineToolCall && l.Phase == PhaseReady {
			out = append(out, ApprovalRequest{
				ToolCallID: l.ToolCallID,
				ToolName:   l.ToolName,
				ToolArgs:   l.ArgsText,
			})
		}
	}
	return out
}

// Append registers a fully-formed line, used by history reconstruction
// where lines arrive whole rather than as deltas. Returns false without
// mutating anything when the id is already taken.
func (s *Store) Append(l Line) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[l.ID]; exists {
		return false
	}
	cp := l
	s.appendLocked(&cp)
	return true
}

// Update applies fn to the line with the given id under the store lock.
// Returns false when no such line exists. Phase moves applied by fn are the
// caller's responsibility to keep monotonic.
func (s *Store) Update(id string, fn func(*Line)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byID[id]
	if !ok {
		return false
	}
	fn(l)
	return true
}

// BindCall records the toolCallID -> line id mapping for reconstruction.
// As in the live path, the first binding wins.
func (s *Store) BindCall(callID, lineID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindCallLocked(callID, lineID)
}

// ResolveCall returns the line id a tool-call id is bound to.
func (s *Store) ResolveCall(callID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.callIndex[callID]
	return id, ok
}

// OrderedIDs returns the line ids in transcript order.
func (s *Store) OrderedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// FinalizeOpenLines force-finishes every non-terminal line. Tool calls
// without a result get a synthetic failure; when interrupted is true they
// are additionally tagged as user-interrupted and the store keeps the
// cancellation mark until ClearInterrupted.
func (s *Store) FinalizeOpenLines(interrupted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		l := s.byID[id]
		if l.Phase.Finished() {
			continue
		}
		if l.Kind == LineToolCall && !l.HasResult {
			l.ResultText = "interrupted before the tool returned"
			l.ResultOK = false
			l.HasResult = true
			l.Interrupted = interrupted
		}
		l.Phase = PhaseFinished
	}
	s.activeOtid = ""
	s.activeID = ""
	if interrupted {
		s.interrupted = true
	}
}

// FinalizeActive finishes the in-flight reasoning/assistant line, if any.
// Called when the correlation id changes, disappears, or the stream ends.
func (s *Store) FinalizeActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizeActiveLocked()
}

func (s *Store) finalizeActiveLocked() {
	if s.activeID == "" {
		return
	}
	if l, ok := s.byID[s.activeID]; ok && !l.Phase.Finished() {
		l.Phase = PhaseFinished
	}
	s.activeOtid = ""
	s.activeID = ""
}

// append registers a new line. The id must not already exist.
func (s *Store) appendLocked(l *Line) {
	s.order = append(s.order, l.ID)
	s.byID[l.ID] = l
}

// bindCallLocked records the toolCallID -> line id mapping once. The first
// binding wins; later fragments carrying the same call id route to it.
func (s *Store) bindCallLocked(callID, lineID string) {
	if callID == "" {
		return
	}
	if _, exists := s.callIndex[callID]; !exists {
		s.callIndex[callID] = lineID
	}
}

// lineForCallLocked resolves a tool-call line purely via the call index.
func (s *Store) lineForCallLocked(callID string) (*Line, bool) {
	id, ok := s.callIndex[callID]
	if !ok {
		return nil, false
	}
	l, ok := s.byID[id]
	return l, ok
}

// advancePhaseLocked moves a line forward, never backward.
func advancePhaseLocked(l *Line, next LinePhase) {
	if next.rank() >= l.Phase.rank() {
		l.Phase = next
	}
}

// syntheticIDLocked mints an id for a delta that arrived with no
// correlation token at all.
func (s *Store) syntheticIDLocked(kind LineKind) string {
	s.synth++
	return fmt.Sprintf("%s-%d", kind, s.synth)
}
