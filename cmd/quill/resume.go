package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bazelment/quill/api"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Rebuild the transcript and show anything awaiting approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.AgentID == "" {
			return errors.New("no agent id configured (use --agent or QUILL_AGENT_ID)")
		}

		log := newLogger()
		sess := newSession(cfg, log)

		snap, err := sess.Resume(cmd.Context())
		if err != nil {
			if api.IsNotFound(err) {
				return fmt.Errorf("%v (check the conversation id)", err)
			}
			return err
		}

		for _, l := range snap.History {
			printLine(l)
		}
		printApprovals(snap.PendingApprovals)
		for _, tc := range snap.MalformedCalls {
			log.Warn("tool call missing its call id, cannot approve", "name", tc.Name)
		}
		if len(snap.History) == 0 && len(snap.PendingApprovals) == 0 {
			fmt.Println("Nothing to resume.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
