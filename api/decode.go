package api

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/bazelment/quill/history"
	"github.com/bazelment/quill/stream"
)

// Wire message types. Stored messages and stream frames share the same
// discriminator field.
const (
	typeUser            = "user_message"
	typeAssistant       = "assistant_message"
	typeReasoning       = "reasoning_message"
	typeToolCall        = "tool_call_message"
	typeApprovalRequest = "approval_request_message"
	typeToolReturn      = "tool_return_message"
	typeUsage           = "usage_statistics"
	typeStop            = "stop_reason"
)

type wireToolCall struct {
	CallID    string `json:"tool_call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolReturn struct {
	CallID string `json:"tool_call_id"`
	Status string `json:"status"`
	Return string `json:"tool_return"`
}

// wireMessage is the superset of every message/frame shape the server
// emits. Deprecated single-value fields (tool_call, tool_return at the top
// level) coexist with their list-valued replacements; decoding collapses
// both into one canonical form.
type wireMessage struct {
	ID          string          `json:"id"`
	MessageType string          `json:"message_type"`
	Otid        string          `json:"otid"`
	Content     json.RawMessage `json:"content"`
	Reasoning   string          `json:"reasoning"`

	ToolCall  *wireToolCall  `json:"tool_call,omitempty"` // deprecated single-call field
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`

	ToolReturn  string           `json:"tool_return,omitempty"` // deprecated single-return field
	Status      string           `json:"status,omitempty"`
	ToolCallID  string           `json:"tool_call_id,omitempty"`
	ToolReturns []wireToolReturn `json:"tool_returns,omitempty"`

	// Stream-only envelope fields.
	RunID string `json:"run_id"`
	SeqID int64  `json:"seq_id"`

	// Usage frame fields.
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	CachedTokens     int `json:"cached_tokens"`
	ReasoningTokens  int `json:"reasoning_tokens"`
	StepCount        int `json:"step_count"`

	StopReason string `json:"stop_reason"`

	CreatedAt time.Time `json:"date"`
}

// contentPart is one element of a structured content list.
type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// systemAlert is the structured payload a summary-bearing user message
// carries instead of plain text.
type systemAlert struct {
	Type            string `json:"type"`
	Message         string `json:"message"`
	SummarizedCount int    `json:"summarized_count"`
}

// contentText flattens a content field that may be a bare string or a list
// of typed parts.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			if p.Type == "" || p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
		return b.String()
	}
	return ""
}

// asSystemAlert reports whether a user message's content is a structured
// history summary.
func asSystemAlert(raw json.RawMessage) (systemAlert, bool) {
	var alert systemAlert
	if len(raw) == 0 {
		return alert, false
	}
	if err := json.Unmarshal(raw, &alert); err != nil || alert.Type != "system_alert" {
		return alert, false
	}
	return alert, true
}

// toolCalls collapses the deprecated single-call field and the multi-call
// list into one slice. Entries missing a call id are kept: downstream
// denial logic wants to see malformed calls, not lose them.
func (w *wireMessage) toolCalls() []history.ToolCall {
	var out []history.ToolCall
	if w.ToolCall != nil {
		out = append(out, history.ToolCall{
			CallID: w.ToolCall.CallID,
			Name:   w.ToolCall.Name,
			Args:   w.ToolCall.Arguments,
		})
	}
	for _, tc := range w.ToolCalls {
		out = append(out, history.ToolCall{CallID: tc.CallID, Name: tc.Name, Args: tc.Arguments})
	}
	return out
}

// toolReturns collapses the deprecated single-return shape and the
// multi-return list.
func (w *wireMessage) toolReturns() []history.ToolReturn {
	var out []history.ToolReturn
	if len(w.ToolReturns) > 0 {
		for _, r := range w.ToolReturns {
			out = append(out, history.ToolReturn{CallID: r.CallID, Status: r.Status, Text: r.Return})
		}
		return out
	}
	if w.ToolCallID != "" || w.ToolReturn != "" {
		out = append(out, history.ToolReturn{CallID: w.ToolCallID, Status: w.Status, Text: w.ToolReturn})
	}
	return out
}

// decodeStoredMessage normalizes one stored wire message. The second
// return is false for message types that do not map to transcript content.
func decodeStoredMessage(w wireMessage) (history.Message, bool) {
	m := history.Message{
		ID:        w.ID,
		Otid:      w.Otid,
		CreatedAt: w.CreatedAt,
	}
	switch w.MessageType {
	case typeUser:
		if alert, ok := asSystemAlert(w.Content); ok {
			m.Kind = history.KindSummary
			m.Text = alert.Message
			m.SummaryCount = alert.SummarizedCount
			return m, true
		}
		m.Kind = history.KindUser
		m.Text = contentText(w.Content)
	case typeAssistant:
		m.Kind = history.KindAssistant
		m.Text = contentText(w.Content)
	case typeReasoning:
		m.Kind = history.KindReasoning
		m.Text = w.Reasoning
		if m.Text == "" {
			m.Text = contentText(w.Content)
		}
	case typeToolCall:
		m.Kind = history.KindToolCall
		m.ToolCalls = w.toolCalls()
	case typeApprovalRequest:
		m.Kind = history.KindApprovalRequest
		m.ToolCalls = w.toolCalls()
	case typeToolReturn:
		m.Kind = history.KindToolReturn
		m.Returns = w.toolReturns()
	default:
		slog.Debug("skipping stored message with unknown type", "message_type", w.MessageType, "id", w.ID)
		return history.Message{}, false
	}
	return m, true
}

// decodeStoredMessages normalizes a page, dropping frames that do not
// parse rather than failing the whole page.
func decodeStoredMessages(data []byte) ([]history.Message, error) {
	var raw []wireMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]history.Message, 0, len(raw))
	for _, w := range raw {
		if m, ok := decodeStoredMessage(w); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// decodeStreamEvents normalizes one websocket frame. A frame carrying a
// call or return list fans out into one event per entry, so parallel tool
// calls survive the boundary and the reducer folds them one at a time.
// Unknown frame types come back as stream.Unknown so the reducer stays
// forward compatible.
func decodeStreamEvents(data []byte) ([]stream.Event, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	cursor := stream.Cursor{RunID: w.RunID, Seq: w.SeqID}
	switch w.MessageType {
	case typeReasoning:
		text := w.Reasoning
		if text == "" {
			text = contentText(w.Content)
		}
		return []stream.Event{stream.ReasoningDelta{Cursor: cursor, Otid: w.Otid, Text: text}}, nil
	case typeAssistant:
		return []stream.Event{stream.AssistantDelta{Cursor: cursor, Otid: w.Otid, Text: contentText(w.Content)}}, nil
	case typeToolCall, typeApprovalRequest:
		calls := w.toolCalls()
		if len(calls) == 0 {
			// Fragments with no call payload still carry otid and phase
			// information.
			calls = []history.ToolCall{{}}
		}
		out := make([]stream.Event, 0, len(calls))
		for _, tc := range calls {
			out = append(out, stream.ToolCallDelta{
				Cursor:   cursor,
				Otid:     w.Otid,
				CallID:   tc.CallID,
				Name:     tc.Name,
				Args:     tc.Args,
				Approval: w.MessageType == typeApprovalRequest,
			})
		}
		return out, nil
	case typeToolReturn:
		returns := w.toolReturns()
		if len(returns) == 0 {
			returns = []history.ToolReturn{{}}
		}
		out := make([]stream.Event, 0, len(returns))
		for _, r := range returns {
			out = append(out, stream.ToolReturn{Cursor: cursor, CallID: r.CallID, Status: r.Status, Text: r.Text})
		}
		return out, nil
	case typeUsage:
		return []stream.Event{stream.UsageDelta{
			Cursor:           cursor,
			PromptTokens:     w.PromptTokens,
			CompletionTokens: w.CompletionTokens,
			CachedTokens:     w.CachedTokens,
			ReasoningTokens:  w.ReasoningTokens,
			Steps:            w.StepCount,
		}}, nil
	case typeStop:
		return []stream.Event{stream.Stop{Cursor: cursor, Reason: stream.StopReason(w.StopReason)}}, nil
	default:
		return []stream.Event{stream.Unknown{Cursor: cursor, Kind: w.MessageType}}, nil
	}
}
