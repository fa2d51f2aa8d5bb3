// Package session orchestrates one conversation: draining the live event
// stream into the transcript store and resolving resume state (pending
// approvals plus backfilled history) at session start.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/bazelment/quill/stream"
	"github.com/bazelment/quill/transcript"
)

// TerminalReason is why a drain ended.
type TerminalReason string

const (
	// ReasonCompleted is a normal end of turn.
	ReasonCompleted TerminalReason = "completed"
	// ReasonCancelled means the caller's context fired mid-stream, or the
	// server reported the run cancelled.
	ReasonCancelled TerminalReason = "cancelled"
	// ReasonApprovalRequired means one or more tool calls are parked
	// awaiting accept/deny.
	ReasonApprovalRequired TerminalReason = "approval_required"
	// ReasonDisconnected means the stream ended without a stop event and
	// could not be resumed.
	ReasonDisconnected TerminalReason = "disconnected"
)

// Result is the outcome of one drain, including any resume that happened
// inside it.
type Result struct {
	Reason    TerminalReason
	Cursor    stream.Cursor
	Approvals []transcript.ApprovalRequest
}

// OpenFunc reopens the live stream, replaying strictly after the cursor.
type OpenFunc func(ctx context.Context, after stream.Cursor) (stream.Source, error)

// Controller drives a live event stream through the reducer into one
// store. It is not safe for concurrent Drain calls on the same value.
type Controller struct {
	store          *transcript.Store
	open           OpenFunc
	notify         func()
	notifyInterval time.Duration
	lastNotify     time.Time
	log            *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithNotify registers a redraw callback invoked as events fold, coalesced
// to at most one call per notify interval plus one at every terminal.
func WithNotify(fn func()) ControllerOption {
	return func(c *Controller) { c.notify = fn }
}

// WithNotifyInterval overrides the redraw coalescing interval.
func WithNotifyInterval(d time.Duration) ControllerOption {
	return func(c *Controller) { c.notifyInterval = d }
}

// WithLogger overrides the controller's logger.
func WithLogger(log *slog.Logger) ControllerOption {
	return func(c *Controller) { c.log = log }
}

// NewController creates a drain controller. open is used only for the
// single resume attempt after an abnormal termination; it may be nil when
// resumption is not wanted.
func NewController(store *transcript.Store, open OpenFunc, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:          store,
		open:           open,
		notifyInterval: 50 * time.Millisecond,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Drain consumes src to a terminal condition, folding every event into the
// store. On abnormal termination it resumes exactly once: the stream is
// reopened strictly after the last cursor and drained into the same store.
// A second abnormal termination is returned as ReasonDisconnected rather
// than retried, bounding total drain time.
func (c *Controller) Drain(ctx context.Context, src stream.Source) Result {
	res := c.drainOnce(ctx, src)
	if res.Reason != ReasonDisconnected || !res.Cursor.Valid() || ctx.Err() != nil || c.open == nil {
		return res
	}

	c.log.Warn("stream ended without stop event, resuming", "run_id", res.Cursor.RunID, "after_seq", res.Cursor.Seq)

	// Late returns for server-side tools would be dropped while the
	// cancellation mark is set.
	c.store.ClearInterrupted()

	next, err := c.open(ctx, res.Cursor)
	if err != nil {
		c.log.Warn("resume failed", "error", err)
		return res
	}
	resumed := c.drainOnce(ctx, next)
	if !resumed.Cursor.Valid() {
		resumed.Cursor = res.Cursor
	}
	return resumed
}

func (c *Controller) drainOnce(ctx context.Context, src stream.Source) Result {
	defer src.Close()

	var last stream.Cursor
	for {
		// Checked before each event so a fired token never waits on the
		// next network read; Next itself also aborts on cancellation.
		if ctx.Err() != nil {
			return c.cancelled(last)
		}

		ev, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.cancelled(last)
			}
			// io.EOF or a transport error without a prior stop event:
			// ambiguous network/server failure.
			return c.terminal(ReasonDisconnected, last)
		}

		if cur := ev.EventCursor(); cur.After(last) {
			last = cur
		}
		transcript.Reduce(c.store, ev)
		c.maybeNotify()

		if st, ok := ev.(stream.Stop); ok {
			return c.stopped(st, last)
		}
	}
}

// cancelled force-finalizes every open line with a synthetic failure and
// tags the store user-interrupted.
func (c *Controller) cancelled(last stream.Cursor) Result {
	c.store.FinalizeOpenLines(true)
	return c.terminal(ReasonCancelled, last)
}

// stopped maps an explicit stop event to its terminal reason. Every line
// parked in ready contributes an approval request, not just the first, so
// parallel tool calls all surface.
func (c *Controller) stopped(st stream.Stop, last stream.Cursor) Result {
	if st.Reason == stream.StopCancelled {
		return c.cancelled(last)
	}
	res := c.terminal(ReasonCompleted, last)
	if len(res.Approvals) > 0 || st.Reason == stream.StopRequiresApproval {
		res.Reason = ReasonApprovalRequired
	}
	return res
}

func (c *Controller) terminal(reason TerminalReason, last stream.Cursor) Result {
	c.flushNotify()
	return Result{
		Reason:    reason,
		Cursor:    last,
		Approvals: c.store.PendingApprovals(),
	}
}

func (c *Controller) maybeNotify() {
	if c.notify == nil {
		return
	}
	now := time.Now()
	if now.Sub(c.lastNotify) < c.notifyInterval {
		return
	}
	c.lastNotify = now
	c.notify()
}

func (c *Controller) flushNotify() {
	if c.notify == nil {
		return
	}
	c.lastNotify = time.Now()
	c.notify()
}
