package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bazelment/quill/api"
	"github.com/bazelment/quill/config"
	"github.com/bazelment/quill/stream"
	"github.com/bazelment/quill/transcript"
)

// Session owns one conversation end to end: cold resume, sending turns,
// and draining the resulting streams into a single store.
type Session struct {
	client         api.Client
	opener         api.StreamOpener
	store          *transcript.Store
	resolver       *Resolver
	agentID        string
	conversationID string
	log            *slog.Logger

	ctrlOpts []ControllerOption
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithConversation pins the session to an explicit conversation instead of
// the agent's default one.
func WithConversation(id string) SessionOption {
	return func(s *Session) { s.conversationID = id }
}

// WithStore substitutes the transcript store, e.g. one built with a token
// counter.
func WithStore(store *transcript.Store) SessionOption {
	return func(s *Session) { s.store = store }
}

// WithSessionLogger overrides the session's logger.
func WithSessionLogger(log *slog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// WithControllerOptions forwards options to every drain controller the
// session creates, e.g. a redraw callback.
func WithControllerOptions(opts ...ControllerOption) SessionOption {
	return func(s *Session) { s.ctrlOpts = opts }
}

// New creates a session for one agent.
func New(client api.Client, opener api.StreamOpener, agentID string, cfg *config.Config, opts ...SessionOption) *Session {
	s := &Session{
		client:  client,
		opener:  opener,
		store:   transcript.NewStore(),
		agentID: agentID,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var ropts []ResolverOption
	if !cfg.BackfillEnabled() {
		ropts = append(ropts, WithoutBackfill())
	}
	ropts = append(ropts, WithResolverLogger(s.log))
	s.resolver = NewResolver(client, agentID, cfg.Thresholds, ropts...)
	return s
}

// Store exposes the transcript store for rendering.
func (s *Session) Store() *transcript.Store { return s.store }

// Resume resolves pending approvals and display history at session start
// and seeds the store with the reconstructed lines.
func (s *Session) Resume(ctx context.Context) (*Snapshot, error) {
	snap, err := s.resolver.Resolve(ctx, s.conversationID)
	if err != nil {
		return nil, err
	}
	s.store.Reset()
	for _, l := range snap.History {
		s.store.Append(l)
		if l.ToolCallID != "" {
			s.store.BindCall(l.ToolCallID, l.ID)
		}
	}
	return snap, nil
}

// Send submits a user turn and drains the agent's response to a terminal
// condition. The user's own text is appended locally; the server does not
// echo it back on the stream.
func (s *Session) Send(ctx context.Context, text string) (Result, error) {
	if _, err := s.client.SendMessage(ctx, s.agentID, s.conversationID, text); err != nil {
		return Result{}, fmt.Errorf("send message: %w", err)
	}

	// Appended only once the server accepted the turn, so a failed send
	// never leaves a phantom user line in the transcript.
	s.store.Append(transcript.Line{
		ID:    "user-" + uuid.NewString(),
		Kind:  transcript.LineUser,
		Phase: transcript.PhaseFinished,
		Text:  text,
	})

	src, err := s.opener.OpenStream(ctx, s.agentID, stream.Cursor{})
	if err != nil {
		return Result{}, fmt.Errorf("open stream: %w", err)
	}
	return s.drain(ctx, src), nil
}

// Attach drains an already-running turn, e.g. after resume found the agent
// mid-run.
func (s *Session) Attach(ctx context.Context, after stream.Cursor) (Result, error) {
	src, err := s.opener.OpenStream(ctx, s.agentID, after)
	if err != nil {
		return Result{}, fmt.Errorf("open stream: %w", err)
	}
	return s.drain(ctx, src), nil
}

func (s *Session) drain(ctx context.Context, src stream.Source) Result {
	open := func(ctx context.Context, after stream.Cursor) (stream.Source, error) {
		return s.opener.OpenStream(ctx, s.agentID, after)
	}
	opts := append([]ControllerOption{WithLogger(s.log)}, s.ctrlOpts...)
	ctrl := NewController(s.store, open, opts...)
	return ctrl.Drain(ctx, src)
}
