package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlabot/charla/pkg/bridge"
	"github.com/charlabot/charla/pkg/bus"
	"github.com/charlabot/charla/pkg/classify"
	"github.com/charlabot/charla/pkg/commands"
	"github.com/charlabot/charla/pkg/config"
	"github.com/charlabot/charla/pkg/convstate"
	"github.com/charlabot/charla/pkg/dispatch"
	"github.com/charlabot/charla/pkg/logger"
	"github.com/charlabot/charla/pkg/ratelimit"
	"github.com/charlabot/charla/pkg/storage"
	"github.com/charlabot/charla/pkg/users"
)

func newServeCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve(debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// runner holds the started components so shutdown can walk them in
// reverse order.
type runner struct {
	cfg        *config.Config
	db         *sql.DB
	msgBus     *bus.MessageBus
	contexts   *convstate.Manager
	sweeper    *convstate.Sweeper
	dispatcher *dispatch.Dispatcher
	whatsapp   *bridge.Bridge
	cancel     context.CancelFunc
}

// createRunner wires every component but starts nothing.
func createRunner(debug bool) (*runner, error) {
	cfg, paths, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	if debug {
		logger.SetLevel(logger.DEBUG)
	} else {
		logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	}
	logger.SetRedactionEnabled(cfg.Logging.Redact)
	if logFile := cfg.LogFilePath(); logFile != "" {
		if err := logger.EnableFileLogging(logFile); err != nil {
			return nil, fmt.Errorf("error opening log file: %w", err)
		}
	}

	db, err := storage.Open(cfg.StoreDBPath(paths))
	if err != nil {
		return nil, fmt.Errorf("error opening storage: %w", err)
	}

	userStore, err := users.NewStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error preparing user store: %w", err)
	}

	cmdLog, err := commands.NewLog(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error preparing command log: %w", err)
	}

	ctxStore, err := convstate.NewSQLStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error preparing context store: %w", err)
	}

	manager := convstate.NewManager(ctxStore, time.Duration(cfg.Context.TTLSeconds)*time.Second, cfg.Context.HistoryLimit)
	if err := manager.Load(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("error restoring contexts: %w", err)
	}

	sweeper, err := convstate.NewSweeper(manager, cfg.Context.SweepSchedule)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating sweeper: %w", err)
	}

	registry, err := commands.NewRegistry(commands.BuiltinDefinitions())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error building command registry: %w", err)
	}

	classifier := classify.NewClassifier(
		cfg.Dispatch.CommandPrefix,
		registry.Has,
		classify.BuildEscapeMap(cfg.Escapes.Reset, cfg.Escapes.Pause, cfg.Escapes.Resume, cfg.Escapes.Back),
	)

	msgBus := bus.NewMessageBus()

	var whatsapp *bridge.Bridge
	env := &commands.Env{
		Users:     userStore,
		Contexts:  manager,
		Registry:  registry,
		Log:       cmdLog,
		Owner:     cfg.Dispatch.Owner,
		StartedAt: time.Now(),
		Version:   formatVersion(),
	}
	if cfg.WhatsApp.Enabled {
		cfg.WhatsApp.DBPath = cfg.SessionDBPath(paths)
		whatsapp = bridge.New(cfg.WhatsApp, msgBus, cfg.RateLimits)
		env.Transport = whatsapp
	}

	dispatcher := dispatch.New(dispatch.Deps{
		Bus:           msgBus,
		Users:         userStore,
		Contexts:      manager,
		Classifier:    classifier,
		Limiter:       ratelimit.New(cfg.RateLimits.MaxMessagesPerMinute),
		Handlers:      dispatch.DefaultChain(env, manager, userStore, cfg.Dispatch.CommandPrefix),
		Owner:         cfg.Dispatch.Owner,
		DefaultAction: cfg.Dispatch.DefaultAction,
		FallbackReply: cfg.Dispatch.FallbackReply,
	})

	return &runner{
		cfg:        cfg,
		db:         db,
		msgBus:     msgBus,
		contexts:   manager,
		sweeper:    sweeper,
		dispatcher: dispatcher,
		whatsapp:   whatsapp,
	}, nil
}

// run starts the services and blocks until the context is cancelled.
func (r *runner) run() error {
	fmt.Printf("charla %s\n", formatVersion())

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	if restored := r.contexts.ActiveCount(); restored > 0 {
		fmt.Printf("✓ Restored %d active conversation(s)\n", restored)
	}

	if err := r.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("error starting context sweeper: %w", err)
	}
	fmt.Println("✓ Context sweeper started")

	if r.whatsapp != nil {
		if err := r.whatsapp.Start(ctx); err != nil {
			return fmt.Errorf("error starting WhatsApp bridge: %w", err)
		}
		fmt.Println("✓ WhatsApp bridge connected")
	} else {
		fmt.Println("⚠ WhatsApp bridge disabled; messages only flow on the bus")
	}

	go r.dispatcher.Run(ctx)
	fmt.Println("✓ Dispatcher running")
	fmt.Println("Press Ctrl+C to stop")

	<-ctx.Done()
	return nil
}

// stop shuts the services down in reverse start order.
func (r *runner) stop() {
	logger.InfoC("serve", "Shutting down...")

	if r.cancel != nil {
		r.cancel()
	}

	r.dispatcher.Stop()
	if r.whatsapp != nil {
		r.whatsapp.Stop()
	}
	r.sweeper.Stop()
	r.msgBus.Close()
	if r.db != nil {
		r.db.Close()
	}

	logger.InfoC("serve", "Shutdown complete")
}

func serve(debug bool) error {
	r, err := createRunner(debug)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- r.run()
	}()

	select {
	case err := <-errChan:
		r.stop()
		return err
	case <-sigChan:
		fmt.Println("\nShutting down...")
		r.stop()
		return nil
	}
}
