package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/durak/cmd/durak/shared"
	"github.com/lox/durak/internal/config"
	"github.com/lox/durak/internal/events"
	"github.com/lox/durak/internal/jackpot"
	"github.com/lox/durak/internal/room"
	"github.com/lox/durak/internal/server"
	"github.com/lox/durak/internal/settlement"
	"github.com/lox/durak/internal/store"
)

// ServerCmd runs rooms, the jackpot and the websocket gateway in one process
type ServerCmd struct {
	Config    string   `kong:"default='durak.hcl',help='Path to the HCL config file'"`
	EnvFile   []string `kong:"default='.env',help='Env files to load before reading the environment'"`
	Addr      string   `kong:"help='Listen address, overrides the config file (host:port)'"`
	Debug     bool     `kong:"help='Enable debug logging'"`
	JSONLogs  bool     `kong:"name='json-logs',help='Log as JSON'"`
	DrainWait int      `kong:"default='10',help='Seconds to wait for pending settlements on shutdown'"`
}

func (c *ServerCmd) Run() error {
	if err := config.LoadEnv(c.EnvFile...); err != nil {
		return err
	}
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return err
	}
	if c.Addr != "" {
		err := cfg.ApplyEnv(func(key string) (string, bool) {
			return c.Addr, key == config.EnvAddr
		})
		if err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := shared.SetupLogger(c.Debug, cfg.Server.LogLevel)
	if c.JSONLogs {
		logger = shared.SetupStructuredLogger(c.Debug, cfg.Server.LogLevel)
	}

	// Validate already converted every section, so these cannot fail
	roomCfg, _ := cfg.RoomConfig()
	settleCfg, _ := cfg.SettlementConfig()
	jackpotCfg, _ := cfg.JackpotConfig()
	interval, _ := cfg.TickInterval()
	validator, _ := cfg.AuthValidator()

	ctx := shared.SetupSignalHandler(logger)

	st, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	clock := quartz.NewReal()
	bus := events.NewBus()

	settler := settlement.NewEngine(st, clock, logger, settleCfg)
	rooms := room.NewManager(roomCfg, st, settler, bus, clock, logger)
	supervisor := room.NewSupervisor(rooms, clock, interval, logger)
	jp := jackpot.NewEngine(st, bus, clock, logger, jackpotCfg, jackpot.WithCommitter(settler))

	srv := server.NewServer(cfg.ListenAddress(), rooms, jp, logger, server.WithAuth(validator))
	unsubscribe := srv.Subscribe(bus)
	defer unsubscribe()

	logger.Info("Starting durak server",
		"address", cfg.ListenAddress(),
		"store", cfg.Store.Driver,
		"commission", settleCfg.Commission.Percent(),
		"turnTimeout", roomCfg.TurnTimeout,
		"botsEnabled", roomCfg.BotsEnabled,
		"verifiedAuth", cfg.Server.AuthURL != "",
		"jackpotRound", jackpotCfg.RoundDuration,
		"jackpotRake", jackpotCfg.Rake.Percent())

	if err := jp.Start(ctx); err != nil {
		return fmt.Errorf("start jackpot: %w", err)
	}
	defer jp.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return supervisor.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), time.Duration(c.DrainWait)*time.Second)
	defer cancel()
	if werr := settler.Wait(drainCtx); werr != nil {
		stats := settler.Stats()
		logger.Warn("Shutting down with settlements pending", "pending", stats.Pending, "error", werr)
	}

	logger.Info("Server stopped")
	return err
}
