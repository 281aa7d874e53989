package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brewforge/brewd/engine"
	"github.com/brewforge/brewd/health"
	"github.com/brewforge/brewd/internal/logging"
	"github.com/brewforge/brewd/machine"
	"github.com/brewforge/brewd/models"
)

var simShots int

func init() {
	simulateCmd.Flags().IntVarP(&simShots, "shots", "n", 5, "number of shots to simulate")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run back-to-back simulated shots and show what the tuner learns",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logging.New(cfg.Logging)
		defer func() { _ = log.Sync() }()

		sim := machine.NewSimulator(cfg.Engine.SimSeed)
		errlog := health.NewLog(64)
		rec := recorderFromConfig(cfg)
		tuner := tunerFromConfig(cfg, log)

		done := make(chan *models.ShotRecord, 1)
		seq := engine.New(engine.Config{
			TickPeriod:   cfg.TickPeriod(),
			GraceSamples: cfg.Engine.GraceSamples,
		}, engine.Deps{
			Sampler:  sim,
			Actuator: sim,
			Gains:    tuner,
			Recorder: rec,
			Errors:   errlog,
			Log:      log,
			Callbacks: engine.Callbacks{
				OnComplete: func(r *models.ShotRecord) { done <- r },
			},
		})

		profile := benchProfile()
		dt := cfg.TickPeriod().Seconds()
		for i := 1; i <= simShots; i++ {
			_ = sim.Tare()
			if _, err := seq.StartShot(profile, 0); err != nil {
				return err
			}
			// Drive physics and control from the same virtual clock.
			for seq.State() == engine.StatePhaseActive {
				sim.Step(dt)
				seq.Tick(dt)
			}
			r := <-done
			tuner.Observe(r, rec.History())
			g := tuner.Snapshot()
			fmt.Printf("shot %d/%d: %-9s quality %5.1f (%s)  weight %5.1fg in %4.1fs  gains kp=%.3f ki=%.3f kd=%.3f\n",
				i, simShots, endState(r), r.Summary.QualityScore, r.Summary.QualityClass,
				r.Summary.FinalWeightG, r.Summary.DurationS, g.Kp, g.Ki, g.Kd)

			// Settle pressure back down between shots.
			_ = sim.SetPower(0)
			for j := 0; j < int(5/dt); j++ {
				sim.Step(dt)
			}
		}
		return nil
	},
}

func endState(r *models.ShotRecord) string {
	if r.Completed {
		return "completed"
	}
	return "aborted"
}
