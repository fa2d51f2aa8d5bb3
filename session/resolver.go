package session

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bazelment/quill/api"
	"github.com/bazelment/quill/config"
	"github.com/bazelment/quill/history"
	"github.com/bazelment/quill/transcript"
)

// Snapshot is what a cold session start resolves to: the tool calls the
// agent is waiting on, any calls too malformed to promote, and the
// reconstructed display history. It is recomputed fresh each resume and
// never persisted.
type Snapshot struct {
	PendingApprovals []transcript.ApprovalRequest
	MalformedCalls   []history.ToolCall
	History          []transcript.Line
}

// Resolver determines resume state for one agent. Approval detection and
// history backfill are independent fetches; a backfill failure degrades to
// an empty history and never suppresses a real pending approval.
type Resolver struct {
	client     api.Client
	agentID    string
	thresholds config.Thresholds
	backfill   bool
	log        *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithoutBackfill degrades resume to approval detection only.
func WithoutBackfill() ResolverOption {
	return func(r *Resolver) { r.backfill = false }
}

// WithResolverLogger overrides the resolver's logger.
func WithResolverLogger(log *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.log = log }
}

// NewResolver creates a resolver for one agent.
func NewResolver(client api.Client, agentID string, thresholds config.Thresholds, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client:     client,
		agentID:    agentID,
		thresholds: thresholds,
		backfill:   true,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve computes the resume snapshot. An empty conversationID means the
// agent's implicit default conversation: the agent-level in-context list
// is used, and an empty one skips backfill entirely so a fresh default
// conversation does not surface unrelated historical noise. A not-found
// error on an explicitly named conversation propagates to the caller.
func (r *Resolver) Resolve(ctx context.Context, conversationID string) (*Snapshot, error) {
	inContext, err := r.inContextIDs(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	runBackfill := r.backfill
	if conversationID == "" && len(inContext) == 0 {
		runBackfill = false
	}

	var (
		approvals []transcript.ApprovalRequest
		malformed []history.ToolCall
		lines     []transcript.Line
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(inContext) == 0 {
			// Nothing in context means nothing pending, regardless of
			// what history contains.
			return nil
		}
		var err error
		approvals, malformed, err = r.resolveApprovals(gctx, inContext[len(inContext)-1])
		return err
	})
	g.Go(func() error {
		if !runBackfill {
			return nil
		}
		msgs, err := r.fetchWindow(gctx, conversationID)
		if err != nil {
			// Display history is best effort: log and resume with an
			// empty transcript rather than blocking session start.
			r.log.Warn("history backfill failed, resuming without display history", "error", err)
			return nil
		}
		store := transcript.NewStore()
		history.Backfill(store, msgs)
		lines = store.Lines()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Snapshot{
		PendingApprovals: approvals,
		MalformedCalls:   malformed,
		History:          lines,
	}, nil
}

// inContextIDs fetches the authoritative in-context message id list: from
// the conversation when one is named, from the agent otherwise.
func (r *Resolver) inContextIDs(ctx context.Context, conversationID string) ([]string, error) {
	if conversationID != "" {
		conv, err := r.client.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		return conv.InContextMessageIDs, nil
	}
	agent, err := r.client.GetAgentContext(ctx, r.agentID)
	if err != nil {
		return nil, err
	}
	return agent.InContextMessageIDs, nil
}

// resolveApprovals fetches the last in-context message directly and reads
// pending tool calls out of its approval-request variant, if it has one.
// Calls without a call id cannot be promoted to pending; they are surfaced
// for downstream denial instead of being dropped.
func (r *Resolver) resolveApprovals(ctx context.Context, lastID string) ([]transcript.ApprovalRequest, []history.ToolCall, error) {
	variants, err := r.client.RetrieveMessage(ctx, r.agentID, lastID)
	if err != nil {
		return nil, nil, err
	}

	var pick *history.Message
	for i := range variants {
		if variants[i].Kind == history.KindApprovalRequest {
			pick = &variants[i]
			break
		}
	}
	if pick == nil {
		return nil, nil, nil
	}

	var approvals []transcript.ApprovalRequest
	var malformed []history.ToolCall
	for _, tc := range pick.ToolCalls {
		if tc.CallID == "" {
			malformed = append(malformed, tc)
			continue
		}
		approvals = append(approvals, transcript.ApprovalRequest{
			ToolCallID: tc.CallID,
			ToolName:   tc.Name,
			ToolArgs:   tc.Args,
		})
	}
	return approvals, malformed, nil
}

// fetchWindow pages the conversation newest first until the collected set
// is conversationally meaningful: at least one assistant message and a
// minimum number of user/assistant anchors, or history is exhausted, or
// the page ceiling is hit. Variants are deduplicated across overlapping
// pages as they arrive so the anchor counts stay honest.
func (r *Resolver) fetchWindow(ctx context.Context, conversationID string) ([]history.Message, error) {
	th := r.thresholds

	var collected []history.Message
	seen := make(map[string]struct{})
	assistants, anchors := 0, 0
	before := ""

	for page := 0; page < th.MaxPages; page++ {
		msgs, err := r.client.ListMessagesBefore(ctx, r.agentID, conversationID, before, th.PageSize)
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			break
		}
		before = msgs[len(msgs)-1].ID

		for _, m := range msgs {
			key := m.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			collected = append(collected, m)
			if m.Kind == history.KindAssistant {
				assistants++
			}
			if m.IsAnchor() {
				anchors++
			}
		}

		if len(msgs) < th.PageSize {
			break
		}
		if assistants >= 1 && anchors >= th.AnchorMin {
			break
		}
	}

	history.SortChronological(collected)
	return r.selectWindow(collected), nil
}

// selectWindow trims the chronological set to the rendered window: walk
// back from the newest message until enough primary (user/assistant/
// summary) messages are included, keep everything from that point on so
// tool activity between primaries survives, then apply the hard cap. The
// cap never excludes the most recent assistant message: if the trailing
// messages are all non-assistant, the window slides back to include it.
func (r *Resolver) selectWindow(msgs []history.Message) []history.Message {
	th := r.thresholds

	start := len(msgs)
	primaries := 0
	for start > 0 && primaries < th.PrimaryLimit {
		start--
		if msgs[start].IsPrimary() {
			primaries++
		}
	}

	if len(msgs)-start > th.MaxRenderable {
		start = len(msgs) - th.MaxRenderable
	}

	lastAssistant := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind == history.KindAssistant {
			lastAssistant = i
			break
		}
	}
	if lastAssistant >= 0 && lastAssistant < start {
		start = lastAssistant
	}

	return msgs[start:]
}
