package main

import (
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/bazelment/quill/session"
	"github.com/bazelment/quill/stream"
	"github.com/bazelment/quill/transcript"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Attach to the agent's live event stream",
	Long: `Attaches to the agent's current run and prints lines as they
finish, without sending a new turn. Useful after resume reported the agent
still mid-run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.AgentID == "" {
			return errors.New("no agent id configured (use --agent or QUILL_AGENT_ID)")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		log := newLogger()
		store := transcript.NewStore()

		printed := 0
		redraw := func() {
			for _, l := range store.Lines()[printed:] {
				if !l.Phase.Finished() && l.Phase != transcript.PhaseReady {
					break
				}
				printLine(l)
				printed++
			}
		}

		sess := newSession(cfg, log,
			session.WithStore(store),
			session.WithControllerOptions(session.WithNotify(redraw)),
		)

		res, err := sess.Attach(ctx, stream.Cursor{})
		if err != nil {
			return err
		}
		redraw()

		if res.Reason == session.ReasonApprovalRequired {
			printApprovals(res.Approvals)
		}
		if res.Reason == session.ReasonDisconnected {
			return errors.New("stream disconnected and could not be resumed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(streamCmd)
}
