package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/tradeagent/agent"
	"github.com/rustyeddy/tradeagent/command"
	"github.com/rustyeddy/tradeagent/config"
	"github.com/rustyeddy/tradeagent/httpapi"
	"github.com/rustyeddy/tradeagent/logger"
	"github.com/rustyeddy/tradeagent/metrics"
	sig "github.com/rustyeddy/tradeagent/signal"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the broker and run the daily trade cycle",
	Long: `Run connects to the configured broker gateway, starts the order event
classifier and the admin HTTP server, runs one trade cycle immediately
and then one per scheduled weekday slot until interrupted.

Example:
  tradeagent run --config agent.yaml`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var runOnce bool

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single trade cycle and exit")
}

func runRun(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.LoggerOptions()); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Named("agent")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, store, err := openRepository(ctx, cfg.State, log)
	if err != nil {
		return err
	}
	j, err := openJournal(cfg.Journal)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create journal: %w", err)
	}
	defer func() { err = multierr.Combine(err, j.Close(), store.Close()) }()

	gw, err := newGateway(cfg, log)
	if err != nil {
		return err
	}
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = gw.Connect(connectCtx)
	cancel()
	if err != nil {
		log.Error("broker connection failed", zap.String("broker", cfg.Broker.Type), zap.Error(err))
		return fmt.Errorf("connect %s broker: %w", cfg.Broker.Type, err)
	}
	defer func() { err = multierr.Append(err, gw.Disconnect()) }()
	log.Info("broker connected", zap.String("broker", cfg.Broker.Type))

	opts, err := cfg.AgentOptions()
	if err != nil {
		return err
	}
	sigTimeout, err := config.Duration(cfg.Signal.Timeout)
	if err != nil {
		return err
	}
	m := metrics.New()
	inbox := command.NewFileInbox(cfg.Inbox.Path)

	a, err := agent.New(opts, agent.Deps{
		Gateway: gw,
		Signal:  sig.NewClient(cfg.Signal.URL, sigTimeout),
		State:   repo,
		Inbox:   inbox,
		Journal: j,
		Metrics: m,
		Log:     log,
	})
	if err != nil {
		return err
	}

	if runOnce {
		return a.RunCycle(ctx)
	}

	daily, err := cfg.Schedule.Daily()
	if err != nil {
		return err
	}

	events, unsubscribe := gw.Subscribe(64)
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.RunEventsFrom(gctx, events) })
	g.Go(func() error {
		daily.Start(gctx, a.Trigger)
		return nil
	})
	if cfg.HTTP.Enabled {
		srv, err := httpapi.NewServer(httpapi.Config{
			Addr:    cfg.HTTP.Addr,
			State:   repo,
			Inbox:   inbox,
			Metrics: m,
			Agent:   a,
			Log:     logger.Named("http"),
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Start(gctx) })
	}

	log.Info("agent running",
		zap.String("mode", string(opts.Mode)),
		zap.String("symbol", opts.Contract.Symbol),
		zap.Stringer("schedule", daily))
	if err := g.Wait(); err != nil {
		log.Error("agent stopped with error", zap.Error(err))
		return err
	}
	log.Info("agent stopped")
	return nil
}
