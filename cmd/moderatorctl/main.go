// moderatorctl manages the pages, reply rules and apps the webhook server
// moderates with.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"comment-moderator/cache"
	"comment-moderator/config"
	"comment-moderator/db"
	"comment-moderator/logx"
	"comment-moderator/pkg/graph"
)

// app holds what every subcommand needs. Fields left nil are filled in by
// open() the first time a command runs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer

	db       *db.Database
	redis    *redis.Client
	rules    *cache.RuleCache
	newGraph func(token string) *graph.Client
}

func main() {
	cfg, err := config.LoadForTools()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ configuration: %v\n", err)
		os.Exit(1)
	}
	// Command output owns stdout; the CLI logs to stderr only.
	cfg.Log.File = ""
	cfg.Log.Stderr = true
	cfg.Log.Pretty = true
	logger, err := logx.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, logger: logger, out: os.Stdout}
	err = newRootCmd(a).ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "moderatorctl",
		Short:         "Administer the comment moderator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}
	root.SetOut(a.out)

	root.AddCommand(
		createMigrateCmd(a),
		createPagesCmd(a),
		createRulesCmd(a),
		createAppsCmd(a),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	if a.db == nil {
		if a.cfg.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}
		database, err := db.Open(ctx, a.cfg.Database.URL, a.logger.Named("db"))
		if err != nil {
			return err
		}
		a.db = database
	}
	if a.rules == nil {
		a.redis = cache.Connect(ctx, a.cfg.Redis, a.logger)
		a.rules = cache.NewRuleCache(a.redis, a.db, a.cfg.Redis.CacheTTL, a.logger.Named("cache"))
	}
	if a.newGraph == nil {
		opts := graph.OptionsFromConfig(a.cfg.Graph, a.logger.Named("graph"))
		a.newGraph = func(token string) *graph.Client {
			return graph.NewClient(token, opts)
		}
	}
	return nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// invalidate drops cached config for a page. The database write already
// happened, so a cache failure is only logged; entries expire on their own.
func (a *app) invalidate(ctx context.Context, pageID string) {
	if err := a.rules.Invalidate(ctx, pageID); err != nil {
		a.logger.Warn("cache invalidation failed", zap.String("page_id", pageID), zap.Error(err))
	}
}
