package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bazelment/quill/session"
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "List tool calls awaiting approval",
	Long: `Checks the agent's in-context messages for pending tool approvals
without rebuilding display history. Useful as a quick poll before deciding
whether to resume the full session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.AgentID == "" {
			return errors.New("no agent id configured (use --agent or QUILL_AGENT_ID)")
		}

		log := newLogger()
		client := newHTTPClient(cfg)
		resolver := session.NewResolver(client, cfg.AgentID, cfg.Thresholds,
			session.WithoutBackfill(),
			session.WithResolverLogger(log),
		)

		snap, err := resolver.Resolve(cmd.Context(), flagConversation)
		if err != nil {
			return err
		}
		if len(snap.PendingApprovals) == 0 {
			fmt.Println("Nothing awaiting approval.")
			return nil
		}
		printApprovals(snap.PendingApprovals)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(approvalsCmd)
}
