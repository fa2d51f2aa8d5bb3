package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bazelment/quill/session"
	"github.com/bazelment/quill/transcript"
)

var sendCmd = &cobra.Command{
	Use:   "send <message...>",
	Short: "Send a turn and stream the agent's reply",
	Args:  cobra.MinimumNArgs(1),
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
			// Print finished lines as they land; the active streaming line
			// waits for its terminal state.
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

		res, err := sess.Send(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		redraw()

		switch res.Reason {
		case session.ReasonApprovalRequired:
			printApprovals(res.Approvals)
		case session.ReasonCancelled:
			fmt.Println("\nInterrupted.")
		case session.ReasonDisconnected:
			return errors.New("stream disconnected and could not be resumed")
		}

		u := store.Usage()
		if verbose && u.Steps > 0 {
			log.Debug("turn usage",
				"prompt_tokens", u.PromptTokens,
				"completion_tokens", u.CompletionTokens,
				"steps", u.Steps)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
