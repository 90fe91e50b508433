package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"promptpal/internal/api"
	"promptpal/internal/config"
	"promptpal/internal/engine"
	"promptpal/internal/middleware"
	"promptpal/internal/models"
	"promptpal/internal/utils"
)

// app holds what every command needs once the root command has run.
type app struct {
	// Flags
	apiURL      string
	token       string
	verbose     bool
	showMetrics bool

	cfg        *config.Config
	logger     *zap.Logger
	metrics    *utils.MetricsCollector
	metricsOut io.Writer
	engine     *engine.Engine
	user       models.Identity
}

func newApp() *app {
	return &app{}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "promptpal",
		Short: "Browse PromptPal trends and discuss them from the terminal",
		Long: `promptpal talks to the PromptPal backend. Comments, deletes and votes
show up immediately and are rolled back if the server rejects them.

Configuration comes from a .env file or the environment
(PROMPTPAL_API_URL, PROMPTPAL_TOKEN, PROMPTPAL_REQUEST_TIMEOUT,
PROMPTPAL_ACTOR_TIMEOUT, DEBUG); flags override both.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "backend base URL (overrides PROMPTPAL_API_URL)")
	root.PersistentFlags().StringVar(&a.token, "token", "", "bearer token (overrides PROMPTPAL_TOKEN)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&a.showMetrics, "metrics", false, "print request metrics to stderr on exit")

	root.AddCommand(
		&cobra.Command{
			Use:   "trends",
			Short: "List trends",
			Args:  cobra.NoArgs,
			RunE:  a.runTrends,
		},
		&cobra.Command{
			Use:   "vote-trend [trend-id] [up|down]",
			Short: "Vote on a trend",
			Args:  cobra.ExactArgs(2),
			RunE:  a.runVoteTrend,
		},
		&cobra.Command{
			Use:   "thread [trend-id]",
			Short: "Show the comment thread of a trend",
			Args:  cobra.ExactArgs(1),
			RunE:  a.runThread,
		},
		&cobra.Command{
			Use:   "comment [trend-id] [text...]",
			Short: "Comment on a trend",
			Args:  cobra.MinimumNArgs(2),
			RunE:  a.runComment,
		},
		&cobra.Command{
			Use:   "reply [trend-id] [comment-id] [text...]",
			Short: "Reply to a comment",
			Args:  cobra.MinimumNArgs(3),
			RunE:  a.runReply,
		},
		&cobra.Command{
			Use:   "delete [trend-id] [comment-id]",
			Short: "Delete a comment and all of its replies",
			Args:  cobra.ExactArgs(2),
			RunE:  a.runDelete,
		},
		&cobra.Command{
			Use:   "vote [trend-id] [comment-id] [up|down]",
			Short: "Vote on a comment; voting the same way twice retracts the vote",
			Args:  cobra.ExactArgs(3),
			RunE:  a.runVote,
		},
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.API.BaseURL = strings.TrimRight(a.apiURL, "/")
	}
	if a.token != "" {
		cfg.API.Token = a.token
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if a.logger == nil {
		config := zap.NewProductionConfig()
		if a.verbose || cfg.Debug {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		if a.logger, err = config.Build(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	if a.user, err = middleware.IdentityFromToken(cfg.API.Token); err != nil {
		return err
	}

	a.metrics = utils.NewMetricsCollector()
	a.metricsOut = cmd.ErrOrStderr()
	client := api.NewClient(cfg.API.BaseURL,
		middleware.NewHTTPClient(cfg.API.Token, cfg.API.RequestTimeout), a.metrics, a.logger)
	a.engine = engine.NewEngine(actor.NewActorSystem(), client, a.metrics, a.logger, cfg.Engine)

	a.logger.Debug("promptpal ready",
		zap.String("api", cfg.API.BaseURL), zap.Bool("signed_in", !a.user.IsAnonymous()))
	return nil
}

// teardown stops the engine and flushes the logger. It is safe to call
// whether or not setup ran.
func (a *app) teardown() {
	if a.engine != nil {
		a.engine.Shutdown()
		a.engine = nil
	}
	if a.logger != nil && a.metrics != nil {
		snap := a.metrics.Snapshot()
		a.logger.Debug("session metrics",
			zap.Uint64("requests", snap.Requests),
			zap.Uint64("errors", snap.Errors),
			zap.Uint64("rollbacks", snap.Rollbacks))
		if a.showMetrics && a.metricsOut != nil {
			if err := a.metrics.WriteText(a.metricsOut); err != nil {
				a.logger.Warn("failed to write metrics", zap.Error(err))
			}
		}
		a.metrics = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// reportError prints a failed command's error, pointing at the backend when
// the round trip itself failed.
func (a *app) reportError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err)
	if utils.IsRemoteError(err) && a.cfg != nil {
		fmt.Fprintf(w, "Check that the PromptPal API at %s is reachable and healthy.\n", a.cfg.API.BaseURL)
	}
}

func (a *app) runTrends(cmd *cobra.Command, args []string) error {
	trends, err := a.engine.LoadTrends(cmd.Context())
	if err != nil {
		return err
	}
	renderTrends(cmd.OutOrStdout(), trends)
	return nil
}

func (a *app) runVoteTrend(cmd *cobra.Command, args []string) error {
	dir, err := parseDirection(args[1])
	if err != nil {
		return err
	}
	if _, err := a.engine.LoadTrends(cmd.Context()); err != nil {
		return err
	}
	result, err := a.engine.VoteTrend(cmd.Context(), args[0], dir, a.user)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Trend %s now has %d points (your vote: %s)\n", result.ID, result.VoteScore, result.UserVote)
	return nil
}

func (a *app) runThread(cmd *cobra.Command, args []string) error {
	forest, err := a.engine.OpenTrend(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	renderThread(cmd.OutOrStdout(), forest)
	return nil
}

func (a *app) runComment(cmd *cobra.Command, args []string) error {
	return a.submit(cmd, args[0], nil, strings.Join(args[1:], " "))
}

func (a *app) runReply(cmd *cobra.Command, args []string) error {
	parent := args[1]
	return a.submit(cmd, args[0], &parent, strings.Join(args[2:], " "))
}

func (a *app) submit(cmd *cobra.Command, trendID string, parentID *string, content string) error {
	if _, err := a.engine.OpenTrend(cmd.Context(), trendID); err != nil {
		return err
	}
	created, err := a.engine.Submit(cmd.Context(), trendID, content, parentID, a.user)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Posted comment %s\n", created.ID)
	return nil
}

func (a *app) runDelete(cmd *cobra.Command, args []string) error {
	if _, err := a.engine.OpenTrend(cmd.Context(), args[0]); err != nil {
		return err
	}
	removed, err := a.engine.Delete(cmd.Context(), args[0], args[1], a.user)
	if err != nil {
		return err
	}
	if removed == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Comment %s was already gone\n", args[1])
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d comment(s)\n", removed)
	return nil
}

func (a *app) runVote(cmd *cobra.Command, args []string) error {
	dir, err := parseDirection(args[2])
	if err != nil {
		return err
	}
	if _, err := a.engine.OpenTrend(cmd.Context(), args[0]); err != nil {
		return err
	}
	result, err := a.engine.Vote(cmd.Context(), args[0], args[1], dir, a.user)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Comment %s now has %d points (your vote: %s)\n", result.ID, result.VoteScore, result.UserVote)
	return nil
}

func parseDirection(arg string) (models.VoteDirection, error) {
	switch strings.ToLower(arg) {
	case "up", "upvote", "+":
		return models.VoteUp, nil
	case "down", "downvote", "-":
		return models.VoteDown, nil
	}
	return "", utils.NewValidationError("vote direction must be up or down, got " + arg)
}
