package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/brewforge/brewd/engine"
	"github.com/brewforge/brewd/health"
	"github.com/brewforge/brewd/internal/logging"
	"github.com/brewforge/brewd/machine"
	"github.com/brewforge/brewd/models"
	"github.com/brewforge/brewd/ui"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Pull an interactive simulated shot with a live terminal readout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Logging.Console = false // keep the readout line clean
		log := logging.New(cfg.Logging)
		defer func() { _ = log.Sync() }()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sim := machine.NewSimulator(cfg.Engine.SimSeed)
		go sim.Run(ctx, 20*time.Millisecond)

		tuner := tunerFromConfig(cfg, log)

		var console *ui.Console
		seq := engine.New(engine.Config{
			TickPeriod:   cfg.TickPeriod(),
			GraceSamples: cfg.Engine.GraceSamples,
		}, engine.Deps{
			Sampler:  sim,
			Actuator: sim,
			Gains:    tuner,
			Recorder: recorderFromConfig(cfg),
			Errors:   health.NewLog(64),
			Log:      log,
			Callbacks: engine.Callbacks{
				OnTick: func(t models.TickTelemetry) {
					if console != nil {
						console.HandleTick(t)
					}
				},
				OnComplete: func(r *models.ShotRecord) {
					if console != nil {
						console.HandleComplete(r)
					}
				},
			},
		})
		console = ui.NewConsole(seq)

		go seq.Run(ctx)

		if _, err := seq.StartShot(benchProfile(), 0); err != nil {
			return err
		}
		if err := console.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
