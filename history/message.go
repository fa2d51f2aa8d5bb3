// Package history reconstructs transcript state from previously stored
// messages. Its input is the normalized stored-message shape produced at
// the ingestion boundary by package api; wire-format variants (deprecated
// single tool-call fields, multi-return lists, system-alert summaries) are
// already collapsed by the time a Message reaches this package.
package history

import (
	"sort"
	"time"
)

// MessageKind is the normalized role/type of one stored message.
type MessageKind string

const (
	KindUser            MessageKind = "user"
	KindAssistant       MessageKind = "assistant"
	KindReasoning       MessageKind = "reasoning"
	KindToolCall        MessageKind = "tool_call"
	KindApprovalRequest MessageKind = "approval_request"
	KindToolReturn      MessageKind = "tool_return"
	KindSummary         MessageKind = "summary"
)

// ToolCall is one tool invocation as persisted in history.
type ToolCall struct {
	CallID string
	Name   string
	Args   string
}

// ToolReturn is one persisted tool result.
type ToolReturn struct {
	CallID string
	Status string
	Text   string
}

// Message is one stored message in normalized form. A message of kind
// tool_call or approval_request may carry several parallel ToolCalls; a
// tool_return message may carry several Returns.
type Message struct {
	ID        string
	Otid      string
	Kind      MessageKind
	Text      string
	ToolCalls []ToolCall
	Returns   []ToolReturn

	// SummaryCount is how many prior messages a summary stands in for.
	SummaryCount int

	CreatedAt time.Time
}

// DedupKey identifies a message variant across overlapping pages: the
// per-variant correlation token when present, otherwise id plus kind (two
// variants of one logical turn share an id but never a kind).
func (m Message) DedupKey() string {
	if m.Otid != "" {
		return m.Otid
	}
	return m.ID + "/" + string(m.Kind)
}

// IsAnchor reports whether the message is a user or assistant turn, the
// kinds that anchor a conversationally meaningful backfill window.
func (m Message) IsAnchor() bool {
	return m.Kind == KindUser || m.Kind == KindAssistant
}

// IsPrimary reports whether the message is one of the kinds rendered when
// the backfill window is restricted to primary content.
func (m Message) IsPrimary() bool {
	switch m.Kind {
	case KindUser, KindAssistant, KindSummary:
		return true
	}
	return false
}

// Dedup removes repeated variants, keeping the first occurrence of each
// DedupKey. Input order is preserved.
func Dedup(msgs []Message) []Message {
	seen := make(map[string]struct{}, len(msgs))
	out := msgs[:0:0]
	for _, m := range msgs {
		k := m.DedupKey()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, m)
	}
	return out
}

// SortChronological orders messages oldest first. Ties on the stored
// timestamp keep their relative order, so paginated input that was already
// ordered within a page stays stable.
func SortChronological(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
