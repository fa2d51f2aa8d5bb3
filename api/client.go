// Package api talks to the agent service: REST endpoints for conversations,
// stored messages, and sends, plus the websocket event stream. Wire-format
// variants are normalized here, at the ingestion boundary, into the
// history.Message and stream.Event shapes the rest of the pipeline uses.
package api

import (
	"context"

	"github.com/bazelment/quill/history"
	"github.com/bazelment/quill/stream"
)

// Conversation is the server's view of one isolated conversation. The
// in-context id list is authoritative for what the agent currently holds,
// as opposed to whatever the newest stored page happens to contain.
type Conversation struct {
	ID                  string
	InContextMessageIDs []string
}

// AgentContext is the agent-level equivalent, used for the implicit
// default conversation.
type AgentContext struct {
	AgentID             string
	InContextMessageIDs []string
}

// SendResult identifies the run started by a send.
type SendResult struct {
	RunID string
}

// Client is the REST surface the resolver and session layer consume.
// HTTPClient implements it against a live server; tests substitute fakes.
type Client interface {
	// GetConversation fetches one conversation, including its in-context
	// message id list. Returns a NotFoundError for unknown ids.
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)

	// GetAgentContext fetches the agent-level in-context id list, used
	// when no explicit conversation id is in play.
	GetAgentContext(ctx context.Context, agentID string) (*AgentContext, error)

	// RetrieveMessage fetches every stored variant of one message id.
	RetrieveMessage(ctx context.Context, agentID, messageID string) ([]history.Message, error)

	// ListMessagesBefore fetches up to limit stored messages strictly
	// before the cursor, newest first. An empty cursor starts from the
	// newest message. The returned page keeps the server's descending
	// order.
	ListMessagesBefore(ctx context.Context, agentID, conversationID, before string, limit int) ([]history.Message, error)

	// SendMessage submits a user turn and returns the run it started.
	SendMessage(ctx context.Context, agentID, conversationID, text string) (*SendResult, error)
}

// StreamOpener opens the live event stream for a run. A valid cursor asks
// the server to replay strictly after that position.
type StreamOpener interface {
	OpenStream(ctx context.Context, agentID string, after stream.Cursor) (stream.Source, error)
}
