package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brewforge/brewd/engine"
	"github.com/brewforge/brewd/health"
	"github.com/brewforge/brewd/internal/logging"
	"github.com/brewforge/brewd/internal/server"
	"github.com/brewforge/brewd/internal/store"
	"github.com/brewforge/brewd/machine"
	"github.com/brewforge/brewd/serial"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the brew daemon with its web API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logging.New(cfg.Logging)
		defer func() { _ = log.Sync() }()

		st, err := store.Open(cfg.Store.Path, log)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		errlog := health.NewLog(256)
		rec := recorderFromConfig(cfg)
		tuner := tunerFromConfig(cfg, log)

		priority, err := cfg.BreakoutPriority()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var (
			sampler  engine.Sampler
			actuator engine.Actuator
			mach     server.Machine
			probes   health.Probes
		)
		if cfg.Engine.Simulate {
			sim := machine.NewSimulator(cfg.Engine.SimSeed)
			go sim.Run(ctx, 20*time.Millisecond)
			sampler, actuator, mach = sim, sim, sim
			probes = health.Probes{
				Sensors: sim.SensorStatus,
				Network: func() (bool, string) { return true, "simulator" },
			}
			log.Info("running against the simulator")
		} else {
			link := serial.NewLink(serial.Config{
				Port:         cfg.Serial.Port,
				Baud:         cfg.Serial.Baud,
				DeviceID:     cfg.Serial.DeviceID,
				PollInterval: time.Duration(cfg.Serial.PollMS) * time.Millisecond,
			}, log)
			if err := link.Connect(); err != nil {
				log.Warn("machine not connected at startup; use /api/connect", zap.Error(err))
				errlog.Record(health.SevWarning, "serial", err.Error())
			}
			go link.Run(ctx)
			sampler, actuator, mach = link, link, link
			probes = health.Probes{
				Sensors: link.SensorStatus,
				Network: func() (bool, string) { return link.Connected(), link.Port() },
			}
		}

		srv := server.New(server.Options{
			WebDir: cfg.Server.WebDir,
			Engine: engine.Config{
				TickPeriod:   cfg.TickPeriod(),
				GraceSamples: cfg.Engine.GraceSamples,
				Priority:     priority,
			},
			Sampler:  sampler,
			Actuator: actuator,
			Machine:  mach,
			Store:    st,
			Tuner:    tuner,
			Recorder: rec,
			Errors:   errlog,
			Health:   health.NewAggregator(errlog, probes),
			Log:      log,
		})

		go srv.Sequencer().Run(ctx)
		go srv.RunHealthTicker(ctx, 5*time.Second)

		httpSrv := &http.Server{Addr: cfg.Server.Listen, Handler: srv.Handler()}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		log.Info("brewd listening", zap.String("addr", cfg.Server.Listen))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		log.Info("brewd stopped")
		return nil
	},
}
