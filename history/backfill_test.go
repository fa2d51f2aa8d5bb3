package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/quill/transcript"
)

func at(sec int) time.Time {
	return time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC)
}

func TestBackfill_BasicConversation(t *testing.T) {
	store := transcript.NewStore()
	Backfill(store, []Message{
		{ID: "m1", Kind: KindUser, Text: "read x for me", CreatedAt: at(1)},
		{ID: "m2", Kind: KindReasoning, Text: "Need to open the file.", CreatedAt: at(2)},
		{ID: "m3", Kind: KindToolCall, ToolCalls: []ToolCall{{CallID: "T1", Name: "Read", Args: `{"path":"x"}`}}, CreatedAt: at(3)},
		{ID: "m4", Kind: KindToolReturn, Returns: []ToolReturn{{CallID: "T1", Status: "success", Text: "contents"}}, CreatedAt: at(4)},
		{ID: "m5", Kind: KindAssistant, Text: "Here you go.", CreatedAt: at(5)},
	})

	lines := store.Lines()
	require.Len(t, lines, 5)
	assert.Equal(t, transcript.LineUser, lines[0].Kind)
	assert.Equal(t, transcript.LineReasoning, lines[1].Kind)
	assert.Equal(t, transcript.LineToolCall, lines[2].Kind)
	assert.Equal(t, transcript.LineAssistant, lines[4].Kind)

	tool := lines[2]
	assert.Equal(t, "Read", tool.ToolName)
	assert.Equal(t, "contents", tool.ResultText)
	assert.True(t, tool.ResultOK)
	assert.Equal(t, transcript.PhaseFinished, tool.Phase)

	for _, l := range lines {
		assert.Equal(t, transcript.PhaseFinished, l.Phase)
	}
}

func TestBackfill_Idempotent(t *testing.T) {
	msgs := []Message{
		{ID: "m1", Kind: KindUser, Text: "hi", CreatedAt: at(1)},
		{ID: "m2", Kind: KindApprovalRequest, ToolCalls: []ToolCall{
			{CallID: "T1", Name: "Bash", Args: `{"cmd":"ls"}`},
			{CallID: "T2", Name: "Write", Args: `{}`},
		}, CreatedAt: at(2)},
	}

	store := transcript.NewStore()
	Backfill(store, msgs)
	first := store.Lines()
	Backfill(store, msgs)
	second := store.Lines()

	assert.Equal(t, first, second)
}

func TestBackfill_ParallelCallsGetDerivedIDs(t *testing.T) {
	store := transcript.NewStore()
	Backfill(store, []Message{
		{ID: "m1", Kind: KindToolCall, ToolCalls: []ToolCall{
			{CallID: "call-aaaa1111", Name: "Read"},
			{CallID: "call-bbbb2222", Name: "Write"},
		}, CreatedAt: at(1)},
		{ID: "m2", Kind: KindToolReturn, Returns: []ToolReturn{
			{CallID: "call-aaaa1111", Status: "success", Text: "one"},
			{CallID: "call-bbbb2222", Status: "error", Text: "two"},
		}, CreatedAt: at(2)},
	})

	lines := store.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "m1", lines[0].ID, "first call claims the message id")
	assert.Equal(t, "m1#bbbb2222", lines[1].ID)
	assert.Equal(t, "one", lines[0].ResultText)
	assert.True(t, lines[0].ResultOK)
	assert.Equal(t, "two", lines[1].ResultText)
	assert.False(t, lines[1].ResultOK)
}

func TestBackfill_ApprovalVariantUpgradesPlainCall(t *testing.T) {
	// The same logical turn persisted as both a plain call and an
	// approval request shares one id: one line, phase ready.
	store := transcript.NewStore()
	Backfill(store, []Message{
		{ID: "m1", Kind: KindToolCall, ToolCalls: []ToolCall{{CallID: "T1", Name: "Bash", Args: "{}"}}, CreatedAt: at(1)},
		{ID: "m1", Kind: KindApprovalRequest, ToolCalls: []ToolCall{{CallID: "T1", Name: "Bash", Args: "{}"}}, CreatedAt: at(1)},
	})

	lines := store.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, transcript.PhaseReady, lines[0].Phase)
	require.Len(t, store.PendingApprovals(), 1)
}

func TestBackfill_OrphanedCallsFinalized(t *testing.T) {
	// An old approval request followed by newer conversation lost its
	// return outside the window; only the trailing pending run survives.
	store := transcript.NewStore()
	Backfill(store, []Message{
		{ID: "m1", Kind: KindApprovalRequest, ToolCalls: []ToolCall{{CallID: "T1", Name: "Bash"}}, CreatedAt: at(1)},
		{ID: "m2", Kind: KindAssistant, Text: "moving on", CreatedAt: at(2)},
		{ID: "m3", Kind: KindApprovalRequest, ToolCalls: []ToolCall{{CallID: "T2", Name: "Write"}}, CreatedAt: at(3)},
	})

	lines := store.Lines()
	require.Len(t, lines, 3)

	old := lines[0]
	assert.Equal(t, transcript.PhaseFinished, old.Phase)
	assert.Equal(t, "tool return not found in history", old.ResultText)
	assert.False(t, old.ResultOK)

	recent := lines[2]
	assert.Equal(t, transcript.PhaseReady, recent.Phase)

	reqs := store.PendingApprovals()
	require.Len(t, reqs, 1)
	assert.Equal(t, "T2", reqs[0].ToolCallID)
}

func TestBackfill_StaleRunningCallFinalized(t *testing.T) {
	// A plain call whose return fell outside the window must not render as
	// running forever once newer conversation follows it; a trailing plain
	// call stays open for the live run to finish.
	store := transcript.NewStore()
	Backfill(store, []Message{
		{ID: "m1", Kind: KindToolCall, ToolCalls: []ToolCall{{CallID: "T1", Name: "Bash"}}, CreatedAt: at(1)},
		{ID: "m2", Kind: KindAssistant, Text: "moving on", CreatedAt: at(2)},
		{ID: "m3", Kind: KindToolCall, ToolCalls: []ToolCall{{CallID: "T2", Name: "Write"}}, CreatedAt: at(3)},
	})

	lines := store.Lines()
	require.Len(t, lines, 3)

	stale := lines[0]
	assert.Equal(t, transcript.PhaseFinished, stale.Phase)
	assert.Equal(t, "tool return not found in history", stale.ResultText)
	assert.True(t, stale.HasResult)
	assert.False(t, stale.ResultOK)

	assert.Equal(t, transcript.PhaseRunning, lines[2].Phase)
}

func TestBackfill_SummaryLineUpdatedInPlace(t *testing.T) {
	store := transcript.NewStore()
	Backfill(store, []Message{
		{ID: "m1", Kind: KindSummary, Text: "Earlier: set up the repo.", SummaryCount: 12, CreatedAt: at(1)},
		{ID: "m2", Kind: KindUser, Text: "continue", CreatedAt: at(2)},
		{ID: "m3", Kind: KindSummary, Text: "Earlier: set up the repo and ran tests.", SummaryCount: 20, CreatedAt: at(3)},
	})

	lines := store.Lines()
	require.Len(t, lines, 2, "later summaries update the existing line")
	assert.Equal(t, transcript.LineSummary, lines[0].Kind)
	assert.Equal(t, 20, lines[0].SummaryCount)
	assert.Equal(t, "Earlier: set up the repo and ran tests.", lines[0].Text)
}

func TestBackfill_ReturnWithoutCallDropped(t *testing.T) {
	store := transcript.NewStore()
	Backfill(store, []Message{
		{ID: "m1", Kind: KindToolReturn, Returns: []ToolReturn{{CallID: "ghost", Status: "success"}}, CreatedAt: at(1)},
	})
	assert.Equal(t, 0, store.Len())
}

func TestDedup_PrefersOtidThenIDKind(t *testing.T) {
	msgs := []Message{
		{ID: "m1", Otid: "o1", Kind: KindUser},
		{ID: "m1-copy", Otid: "o1", Kind: KindUser},
		{ID: "m2", Kind: KindToolCall},
		{ID: "m2", Kind: KindApprovalRequest},
		{ID: "m2", Kind: KindToolCall},
	}
	out := Dedup(msgs)
	require.Len(t, out, 3)
	assert.Equal(t, "m1", out[0].ID)
	assert.Equal(t, KindToolCall, out[1].Kind)
	assert.Equal(t, KindApprovalRequest, out[2].Kind)
}

func TestSortChronological_StableOnTies(t *testing.T) {
	msgs := []Message{
		{ID: "b", CreatedAt: at(2)},
		{ID: "a", CreatedAt: at(1)},
		{ID: "c", CreatedAt: at(2)},
	}
	SortChronological(msgs)
	assert.Equal(t, "a", msgs[0].ID)
	assert.Equal(t, "b", msgs[1].ID)
	assert.Equal(t, "c", msgs[2].ID)
}
