// Command quill is an interactive client for a remote conversational
// agent: it sends turns, streams the agent's reply, and reconstructs the
// transcript when resuming a session cold.
package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/bazelment/quill/api"
	"github.com/bazelment/quill/config"
	"github.com/bazelment/quill/session"
)

var (
	flagBaseURL      string
	flagToken        string
	flagAgentID      string
	flagConversation string
	verbose          bool
)

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Interactive client for a remote conversational agent",
	Long: `Quill talks to a remote agent service: it sends user turns, streams
the agent's reasoning and tool activity live, and on resume rebuilds the
transcript from stored history, including any tool calls still awaiting
approval.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "Server base URL (default from .quill.yaml or QUILL_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "API token (default from .quill.yaml or QUILL_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&flagAgentID, "agent", "", "Agent id (default from .quill.yaml or QUILL_AGENT_ID)")
	rootCmd.PersistentFlags().StringVar(&flagConversation, "conversation", "", "Conversation id (default: the agent's default conversation)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges .quill.yaml, environment, and flags.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}
	if flagToken != "" {
		cfg.Token = flagToken
	}
	if flagAgentID != "" {
		cfg.AgentID = flagAgentID
	}
	return cfg, nil
}

// newLogger creates a structured logger with the configured verbosity.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func newHTTPClient(cfg *config.Config) *api.HTTPClient {
	return api.NewHTTPClient(cfg.BaseURL, cfg.Token)
}

// newSession wires a session from the merged configuration.
func newSession(cfg *config.Config, log *slog.Logger, opts ...session.SessionOption) *session.Session {
	client := newHTTPClient(cfg)
	opener := api.NewStreamDialer(cfg.BaseURL, cfg.Token)
	opts = append(opts, session.WithSessionLogger(log))
	if flagConversation != "" {
		opts = append(opts, session.WithConversation(flagConversation))
	}
	return session.New(client, opener, cfg.AgentID, cfg, opts...)
}
