// Package app wires config, storage, fetch, delivery and the engine
// into one runnable process.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"courtcast/internal/api"
	"courtcast/internal/config"
	"courtcast/internal/deliver"
	"courtcast/internal/engine"
	"courtcast/internal/fetch"
	"courtcast/internal/metrics"
	"courtcast/internal/storage"
	"courtcast/internal/summary"
	logx "courtcast/pkg/logx"
)

const defaultCronSpec = "@every 2m"

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store storage.Store
	sink  *metrics.Sink
	eng   *engine.Service
	api   *api.Server

	cronMu   sync.Mutex
	cron     *cron.Cron
	cronSpec string

	sup *Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, logs: logs, log: log}
	if err := a.build(cfg); err != nil {
		logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	logFor := func(comp string) logx.Logger {
		return a.logs.Logger().With(logx.String("comp", comp))
	}

	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	driver := cfg.Storage.Driver
	if driver == "" {
		driver = "sqlite"
	}
	store, err := storage.Open(storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, logFor("storage"))
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("storage.driver %q: schedules need a persistent store", cfg.Storage.Driver)
	}
	a.store = store

	fetchTimeout, err := config.ParseDurationOrDefault("fetch.timeout", cfg.Fetch.Timeout, 10*time.Second)
	if err != nil {
		return err
	}
	fc := fetch.New(fetch.Config{
		BaseURL: cfg.Fetch.BaseURL,
		Token:   cfg.Fetch.Token,
		Timeout: fetchTimeout,
	}, logFor("fetch"))

	router := &deliver.Router{}
	if cfg.Delivery.GatewayURL != "" {
		router.Gateway = deliver.NewGateway(deliver.GatewayConfig{
			URL:        cfg.Delivery.GatewayURL,
			Token:      cfg.Delivery.Token,
			RatePerSec: cfg.Delivery.RatePerSec,
		}, logFor("gateway"))
	}
	if cfg.Delivery.Telegram.Enabled {
		tg, err := deliver.NewTelegram(cfg.Delivery.Telegram.Token, logFor("telegram"))
		if err != nil {
			return err
		}
		router.Telegram = tg
	}

	retryDelay, err := config.ParseDurationOrDefault("delivery.retry_delay", cfg.Delivery.RetryDelay, 2*time.Second)
	if err != nil {
		return err
	}
	attemptTimeout, err := config.ParseDurationOrDefault("delivery.attempt_timeout", cfg.Delivery.AttemptTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	attempts := 0 // Policy default applies: 3 total
	if cfg.Delivery.RetryMax > 0 {
		attempts = cfg.Delivery.RetryMax + 1
	}
	dlv := &deliver.Deliverer{
		S: router,
		P: deliver.Policy{
			MaxAttempts:    attempts,
			Delay:          retryDelay,
			AttemptTimeout: attemptTimeout,
		},
		Log: logFor("deliver"),
	}

	sink, err := metrics.NewSink(nil)
	if err != nil {
		return err
	}
	a.sink = sink
	dlv.OnAttempt = sink.RecordDeliveryAttempt

	var f summary.Fetcher = fc
	a.eng = engine.New(engine.Config{BatchSize: cfg.Engine.BatchSize},
		store, f, dlv, sink, logFor("engine"))

	if cfg.API.Enabled {
		a.api = api.New(cfg.API.Addr, a.eng, store, logFor("api"))
	}
	return nil
}

// Engine exposes the scan service for manual triggering.
func (a *App) Engine() *engine.Service { return a.eng }

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log))

	cfg := a.cfgm.Get()
	if err := a.armCron(cronSpecOrDefault(cfg.Engine.Spec)); err != nil {
		return err
	}

	a.sup.Go("config.watch", a.cfgm.Watch)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Logging and the scan spec reload live; storage and
				// delivery take effect on restart.
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})
				if spec := cronSpecOrDefault(newCfg.Engine.Spec); spec != a.cronSpec {
					if err := a.armCron(spec); err != nil {
						a.log.Warn("engine.spec rejected, keeping previous trigger", logx.Err(err))
					}
				}
				a.log.Info("config reloaded")
			}
		}
	})

	if a.api != nil {
		a.sup.Go("http.api", func(c context.Context) error {
			errCh := make(chan error, 1)
			go func() { errCh <- a.api.Start() }()
			select {
			case <-c.Done():
				shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = a.api.Shutdown(shCtx)
				return <-errCh
			case err := <-errCh:
				return err
			}
		})
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			t := time.NewTicker(interval / 2)
			defer t.Stop()
			for {
				select {
				case <-c.Done():
					return
				case <-t.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		})
	}

	a.log.Info("app started")
	return nil
}

func cronSpecOrDefault(spec string) string {
	if spec == "" {
		return defaultCronSpec
	}
	return spec
}

// armCron swaps in a trigger for spec, stopping the previous one only
// after the new schedule validated.
func (a *App) armCron(spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, a.scanTick); err != nil {
		return fmt.Errorf("engine.spec %q: %w", spec, err)
	}

	a.cronMu.Lock()
	old := a.cron
	a.cron = c
	a.cronSpec = spec
	a.cronMu.Unlock()

	c.Start()
	if old != nil {
		<-old.Stop().Done()
	}
	a.log.Info("scan trigger armed", logx.String("spec", spec))
	return nil
}

func (a *App) scanTick() {
	ctx := context.Background()
	if a.sup != nil {
		ctx = a.sup.Context()
	}
	res, err := a.eng.Run(ctx)
	if err != nil {
		a.log.Error("scheduled scan failed", logx.Err(err))
		return
	}
	if res.Processed > 0 {
		a.log.Info("scheduled scan done",
			logx.String("invocation", res.InvocationID),
			logx.Int("processed", res.Processed),
		)
	}
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	a.cronMu.Lock()
	c := a.cron
	a.cron = nil
	a.cronMu.Unlock()
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && err != context.Canceled {
			a.log.Warn("shutdown", logx.Err(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("close storage", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	a.logs.Close()
	return nil
}
