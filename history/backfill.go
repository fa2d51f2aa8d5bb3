package history

import (
	"log/slog"

	"github.com/bazelment/quill/transcript"
)

// orphanResult marks a tool call whose return fell outside the fetched
// history window.
const orphanResult = "tool return not found in history"

// Backfill clears the store and rebuilds it from a chronologically ordered
// message list. It is idempotent: running it twice with the same input
// leaves the store in the same state. The lines it produces are shaped
// exactly like the live reducer's, so renderers cannot tell a replayed
// transcript from a drained one.
func Backfill(store *transcript.Store, msgs []Message) {
	store.Reset()

	var summaryID string
	for _, m := range msgs {
		switch m.Kind {
		case KindUser:
			appendWhole(store, m, transcript.LineUser)
		case KindAssistant:
			appendWhole(store, m, transcript.LineAssistant)
		case KindReasoning:
			appendWhole(store, m, transcript.LineReasoning)
		case KindToolCall:
			replayToolCalls(store, m, transcript.PhaseRunning)
		case KindApprovalRequest:
			replayToolCalls(store, m, transcript.PhaseReady)
		case KindToolReturn:
			replayReturns(store, m)
		case KindSummary:
			summaryID = replaySummary(store, m, summaryID)
		default:
			slog.Debug("skipping unknown stored message kind", "kind", m.Kind, "id", m.ID)
		}
	}

	finalizeOrphanedCalls(store)
}

// appendWhole adds one already-complete line for a plain text message.
// Duplicate ids (a variant the dedup pass did not catch) merge by keeping
// the first occurrence.
func appendWhole(store *transcript.Store, m Message, kind transcript.LineKind) {
	store.Append(transcript.Line{
		ID:    lineID(m),
		Kind:  kind,
		Phase: transcript.PhaseFinished,
		Otid:  m.Otid,
		Text:  m.Text,
	})
}

// replayToolCalls fans a message's tool calls out to lines. The first call
// claims the message id; every later call in the same message gets a
// deterministic derived id so parallel calls never collide.
func replayToolCalls(store *transcript.Store, m Message, phase transcript.LinePhase) {
	base := lineID(m)
	for i, tc := range m.ToolCalls {
		id := base
		if i > 0 {
			id = transcript.DerivedID(base, tc.CallID)
		}
		if !store.Append(transcript.Line{
			ID:         id,
			Kind:       transcript.LineToolCall,
			Phase:      phase,
			Otid:       m.Otid,
			ToolCallID: tc.CallID,
			ToolName:   tc.Name,
			ArgsText:   tc.Args,
		}) {
			// The plain-call variant and the approval variant of the
			// same turn share an id; the approval phase still applies.
			if phase == transcript.PhaseReady {
				store.Update(id, func(l *transcript.Line) {
					if !l.Phase.Finished() {
						l.Phase = transcript.PhaseReady
					}
				})
			}
		}
		store.BindCall(tc.CallID, id)
	}
}

// replayReturns merges each persisted return into the line its call
// created, resolved purely via the call index. A return whose call is
// missing from the window is dropped.
func replayReturns(store *transcript.Store, m Message) {
	for _, r := range m.Returns {
		id, ok := store.ResolveCall(r.CallID)
		if !ok {
			slog.Debug("dropping stored tool return with no matching call", "call_id", r.CallID)
			continue
		}
		store.Update(id, func(l *transcript.Line) {
			l.ResultText = r.Text
			l.ResultOK = r.Status == "success"
			l.HasResult = true
			l.Phase = transcript.PhaseFinished
		})
	}
}

// replaySummary renders a compaction marker as one summary line, updated
// in place when later summaries arrive.
func replaySummary(store *transcript.Store, m Message, summaryID string) string {
	if summaryID != "" {
		store.Update(summaryID, func(l *transcript.Line) {
			l.Text = m.Text
			l.SummaryCount = m.SummaryCount
		})
		return summaryID
	}
	id := lineID(m)
	store.Append(transcript.Line{
		ID:           id,
		Kind:         transcript.LineSummary,
		Phase:        transcript.PhaseFinished,
		Text:         m.Text,
		SummaryCount: m.SummaryCount,
	})
	return id
}

// finalizeOrphanedCalls walks the reconstructed order newest to oldest.
// The most recent trailing run of open tool calls stays genuinely pending;
// any ready or running call older than the first line of a different kind
// lost its return outside the fetched window and is force-finished.
func finalizeOrphanedCalls(store *transcript.Store) {
	ids := store.OrderedIDs()
	transitioned := false
	for i := len(ids) - 1; i >= 0; i-- {
		l, ok := store.Get(ids[i])
		if !ok {
			continue
		}
		if l.Kind != transcript.LineToolCall {
			transitioned = true
			continue
		}
		if !l.Phase.Finished() && transitioned {
			store.Update(l.ID, func(l *transcript.Line) {
				l.ResultText = orphanResult
				l.ResultOK = false
				l.HasResult = true
				l.Phase = transcript.PhaseFinished
			})
		}
	}
}

// lineID picks the stable line id for a stored message: the shared variant
// token when the backend assigned one, otherwise the message id.
func lineID(m Message) string {
	if m.Otid != "" {
		return m.Otid
	}
	return m.ID
}
