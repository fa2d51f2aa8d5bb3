package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/quill/stream"
)

func cur(seq int64) stream.Cursor { return stream.Cursor{RunID: "run-1", Seq: seq} }

func feed(s *Store, events ...stream.Event) {
	for _, ev := range events {
		Reduce(s, ev)
	}
}

func TestReduce_ReasoningDeltasConcatenate(t *testing.T) {
	s := NewStore()
	feed(s,
		stream.ReasoningDelta{Cursor: cur(1), Otid: "A", Text: "Thin"},
		stream.ReasoningDelta{Cursor: cur(2), Otid: "A", Text: "king"},
	)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "Thinking", lines[0].Text)
	assert.Equal(t, LineReasoning, lines[0].Kind)
	assert.Equal(t, PhaseStreaming, lines[0].Phase, "line stays streaming until the otid moves on")
}

func TestReduce_OtidChangeFinalizesPreviousLine(t *testing.T) {
	s := NewStore()
	feed(s,
		stream.ReasoningDelta{Cursor: cur(1), Otid: "A", Text: "first"},
		stream.AssistantDelta{Cursor: cur(2), Otid: "B", Text: "second"},
	)

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, PhaseFinished, lines[0].Phase)
	assert.Equal(t, PhaseStreaming, lines[1].Phase)
	assert.Equal(t, LineAssistant, lines[1].Kind)
}

func TestReduce_MissingOtidFinalizesThenExtendsSynthetic(t *testing.T) {
	s := NewStore()
	feed(s,
		stream.ReasoningDelta{Cursor: cur(1), Otid: "A", Text: "done"},
		stream.AssistantDelta{Cursor: cur(2), Text: "Hello"},
		stream.AssistantDelta{Cursor: cur(3), Text: " world"},
	)

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, PhaseFinished, lines[0].Phase)
	assert.Equal(t, "Hello world", lines[1].Text)
}

func TestReduce_ToolCallThenReturn(t *testing.T) {
	s := NewStore()
	feed(s,
		stream.ToolCallDelta{Cursor: cur(1), CallID: "T1", Name: "Read", Args: `{"path":`},
		stream.ToolCallDelta{Cursor: cur(2), CallID: "T1", Args: `"x"}`},
		stream.ToolReturn{Cursor: cur(3), CallID: "T1", Status: stream.StatusSuccess, Text: "ok"},
	)

	lines := s.Lines()
	require.Len(t, lines, 1)
	l := lines[0]
	assert.Equal(t, LineToolCall, l.Kind)
	assert.Equal(t, "Read", l.ToolName)
	assert.Equal(t, `{"path":"x"}`, l.ArgsText)
	assert.Equal(t, "ok", l.ResultText)
	assert.True(t, l.ResultOK)
	assert.True(t, l.HasResult)
	assert.Equal(t, PhaseFinished, l.Phase)
}

func TestReduce_ToolReturnFailureStatus(t *testing.T) {
	s := NewStore()
	feed(s,
		stream.ToolCallDelta{Cursor: cur(1), CallID: "T1", Name: "Bash", Args: `{}`},
		stream.ToolReturn{Cursor: cur(2), CallID: "T1", Status: "error", Text: "boom"},
	)

	l := s.Lines()[0]
	assert.False(t, l.ResultOK)
	assert.Equal(t, "boom", l.ResultText)
	assert.Equal(t, PhaseFinished, l.Phase)
}

func TestReduce_ToolReturnWithoutCallIsDropped(t *testing.T) {
	s := NewStore()
	feed(s, stream.ToolReturn{Cursor: cur(1), CallID: "ghost", Status: stream.StatusSuccess, Text: "ok"})
	assert.Equal(t, 0, s.Len())
}

func TestReduce_ToolReturnDroppedWhileInterrupted(t *testing.T) {
	s := NewStore()
	feed(s, stream.ToolCallDelta{Cursor: cur(1), CallID: "T1", Name: "Read"})
	s.FinalizeOpenLines(true)

	feed(s, stream.ToolReturn{Cursor: cur(2), CallID: "T1", Status: stream.StatusSuccess, Text: "late"})
	l := s.Lines()[0]
	assert.NotEqual(t, "late", l.ResultText, "late return must not land on an interrupted line")
	assert.True(t, l.Interrupted)

	// After the mark clears (resume path), returns land again.
	s.ClearInterrupted()
	feed(s, stream.ToolCallDelta{Cursor: cur(3), CallID: "T2", Name: "Read"})
	feed(s, stream.ToolReturn{Cursor: cur(4), CallID: "T2", Status: stream.StatusSuccess, Text: "ok"})
	assert.Equal(t, "ok", s.Lines()[1].ResultText)
}

func TestReduce_ApprovalFragmentSetsReady(t *testing.T) {
	s := NewStore()
	feed(s,
		stream.ToolCallDelta{Cursor: cur(1), Otid: "O1", CallID: "T1", Name: "Bash", Args: `{"cmd":"ls"}`, Approval: true},
	)

	l := s.Lines()[0]
	assert.Equal(t, PhaseReady, l.Phase)

	reqs := s.PendingApprovals()
	require.Len(t, reqs, 1)
	assert.Equal(t, "T1", reqs[0].ToolCallID)
	assert.Equal(t, "Bash", reqs[0].ToolName)
	assert.Equal(t, `{"cmd":"ls"}`, reqs[0].ToolArgs)
}

func TestReduce_ApprovalDoesNotRevertFinishedLine(t *testing.T) {
	s := NewStore()
	feed(s,
		stream.ToolCallDelta{Cursor: cur(1), CallID: "T1", Name: "Read"},
		stream.ToolReturn{Cursor: cur(2), CallID: "T1", Status: stream.StatusSuccess},
		stream.ToolCallDelta{Cursor: cur(3), CallID: "T1", Approval: true},
	)
	assert.Equal(t, PhaseFinished, s.Lines()[0].Phase)
	assert.Empty(t, s.PendingApprovals())
}

func TestReduce_CallIndexWinsOverOtid(t *testing.T) {
	// Fragments of one call arriving under different correlation ids still
	// route to the line the call id was first bound to.
	s := NewStore()
	feed(s,
		stream.ToolCallDelta{Cursor: cur(1), Otid: "O1", CallID: "T1", Name: "Read", Args: `{"a":`},
		stream.ToolCallDelta{Cursor: cur(2), Otid: "O2", CallID: "T1", Args: `1}`},
	)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, `{"a":1}`, lines[0].ArgsText)
}

func TestReduce_OtidCollisionForksDerivedID(t *testing.T) {
	// One otid reused across reasoning and a tool call must yield two lines.
	s := NewStore()
	feed(s,
		stream.ReasoningDelta{Cursor: cur(1), Otid: "shared", Text: "thinking"},
		stream.ToolCallDelta{Cursor: cur(2), Otid: "shared", CallID: "call-abcdef12", Name: "Read"},
	)

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, LineReasoning, lines[0].Kind)
	assert.Equal(t, LineToolCall, lines[1].Kind)
	assert.NotEqual(t, lines[0].ID, lines[1].ID)

	// Deterministic: replaying the same events into a fresh store yields
	// the same ids.
	s2 := NewStore()
	feed(s2,
		stream.ReasoningDelta{Cursor: cur(1), Otid: "shared", Text: "thinking"},
		stream.ToolCallDelta{Cursor: cur(2), Otid: "shared", CallID: "call-abcdef12", Name: "Read"},
	)
	assert.Equal(t, lines[1].ID, s2.Lines()[1].ID)
}

func TestReduce_ParallelCallsSharingOtidGetDistinctLines(t *testing.T) {
	s := NewStore()
	feed(s,
		stream.ToolCallDelta{Cursor: cur(1), Otid: "O1", CallID: "call-1", Name: "Read"},
		stream.ToolCallDelta{Cursor: cur(2), Otid: "O1", CallID: "call-2", Name: "Write"},
	)

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.NotEqual(t, lines[0].ID, lines[1].ID)
	assert.Equal(t, "Read", lines[0].ToolName)
	assert.Equal(t, "Write", lines[1].ToolName)
}

func TestReduce_CallIDFreeFragmentsExtendOpenCall(t *testing.T) {
	// Fragments carrying an otid but no call id cannot be routed through the
	// call index; they extend the open call at that otid instead of minting
	// a new line each.
	s := NewStore()
	feed(s,
		stream.ToolCallDelta{Cursor: cur(1), Otid: "O", Name: "Read", Args: `{"pa`},
		stream.ToolCallDelta{Cursor: cur(2), Otid: "O", Args: `th":`},
		stream.ToolCallDelta{Cursor: cur(3), Otid: "O", Args: `"x"}`},
	)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, `{"path":"x"}`, lines[0].ArgsText)
}

func TestReduce_CallIDFreeFragmentsKeepOrderedIDsUnique(t *testing.T) {
	// Once the line at the shared otid is finished, later call-id-free
	// fragments fork; repeat collisions fall back to synthetic ids so no
	// ordered id is ever minted twice.
	s := NewStore()
	feed(s, stream.ToolCallDelta{Cursor: cur(1), Otid: "O", Name: "Read"})
	s.FinalizeOpenLines(false)
	feed(s, stream.ToolCallDelta{Cursor: cur(2), Otid: "O", Name: "Write"})
	s.FinalizeOpenLines(false)
	feed(s, stream.ToolCallDelta{Cursor: cur(3), Otid: "O", Name: "Edit"})

	ids := s.OrderedIDs()
	require.Len(t, ids, 3)
	seen := make(map[string]int)
	for _, id := range ids {
		seen[id]++
	}
	for id, n := range seen {
		assert.Equalf(t, 1, n, "line id %q appears %d times in order", id, n)
	}
	require.Len(t, s.Lines(), 3)
}

func TestReduce_NewToolCallFinalizesActiveDelta(t *testing.T) {
	s := NewStore()
	feed(s,
		stream.AssistantDelta{Cursor: cur(1), Otid: "A", Text: "Let me check."},
		stream.ToolCallDelta{Cursor: cur(2), Otid: "A", CallID: "T1", Name: "Read"},
	)

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, PhaseFinished, lines[0].Phase)
}

func TestReduce_UsageAccumulates(t *testing.T) {
	s := NewStore()
	feed(s,
		stream.UsageDelta{Cursor: cur(1), PromptTokens: 10, CompletionTokens: 5, Steps: 1},
		stream.UsageDelta{Cursor: cur(2), PromptTokens: 3, CachedTokens: 7, ReasoningTokens: 2, Steps: 1},
	)

	u := s.Usage()
	assert.Equal(t, 13, u.PromptTokens)
	assert.Equal(t, 5, u.CompletionTokens)
	assert.Equal(t, 7, u.CachedTokens)
	assert.Equal(t, 2, u.ReasoningTokens)
	assert.Equal(t, 2, u.Steps)
	assert.Equal(t, 0, s.Len(), "usage events create no lines")
}

func TestReduce_StopFinalizesActiveLine(t *testing.T) {
	s := NewStore()
	feed(s,
		stream.AssistantDelta{Cursor: cur(1), Otid: "A", Text: "done"},
		stream.Stop{Cursor: cur(2), Reason: stream.StopEndTurn},
	)
	assert.Equal(t, PhaseFinished, s.Lines()[0].Phase)
}

func TestReduce_UnknownEventIgnored(t *testing.T) {
	s := NewStore()
	feed(s, stream.Unknown{Cursor: cur(1), Kind: "future_thing"})
	assert.Equal(t, 0, s.Len())
}

func TestReduce_StreamedTokenCounting(t *testing.T) {
	s := NewStore(WithTokenCounter(fakeCounter{}))
	feed(s, stream.AssistantDelta{Cursor: cur(1), Otid: "A", Text: "abcd"})

	u := s.Usage()
	assert.Equal(t, 4, u.StreamedChars)
	assert.Equal(t, 1, u.StreamedTokens)
}

// fakeCounter counts 4 characters per token, close enough for tests without
// pulling BPE tables over the network.
type fakeCounter struct{}

func (fakeCounter) Count(text string) int { return (len(text) + 3) / 4 }
