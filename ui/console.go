// Package ui is the terminal front panel: a live one-line shot readout with
// single-key control, for bench use without the web UI.
package ui

import (
	"context"
	"fmt"
	"os"

	"github.com/eiannone/keyboard"

	"github.com/brewforge/brewd/engine"
	"github.com/brewforge/brewd/models"
)

// Console renders tick telemetry and maps keys onto sequencer commands:
// space or 'a' aborts the shot, 'q' or Esc leaves the console.
type Console struct {
	seq *engine.Sequencer
	out *os.File
}

// NewConsole binds a console to the sequencer.
func NewConsole(seq *engine.Sequencer) *Console {
	return &Console{seq: seq, out: os.Stdout}
}

// HandleTick is wired as the sequencer's OnTick callback.
func (c *Console) HandleTick(t models.TickTelemetry) {
	fmt.Fprintf(c.out, "\r t=%5.1fs  phase %d (%s/%s)  target %5.2f  P %5.2f bar  F %4.2f ml/s  W %5.1f g  cmd %4.2f   ",
		t.ElapsedS, t.Phase, t.PhaseName, t.Mode, t.Target, t.PressureB, t.FlowMLs, t.WeightG, t.Command)
}

// HandleComplete is wired as the sequencer's OnComplete callback.
func (c *Console) HandleComplete(rec *models.ShotRecord) {
	fmt.Fprintf(c.out, "\nshot %s: completed=%v quality=%.0f (%s) weight=%.1fg in %.1fs\n",
		rec.ShotID, rec.Completed,
		rec.Summary.QualityScore, rec.Summary.QualityClass,
		rec.Summary.FinalWeightG, rec.Summary.DurationS)
}

// Run reads keys until ctx is cancelled or the operator quits.
func (c *Console) Run(ctx context.Context) error {
	keys, err := keyboard.GetKeys(4)
	if err != nil {
		return fmt.Errorf("open keyboard: %w", err)
	}
	defer func() { _ = keyboard.Close() }()

	fmt.Fprintln(c.out, "console: [space/a] abort shot, [q/esc] quit")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-keys:
			if ev.Err != nil {
				return ev.Err
			}
			switch {
			case ev.Key == keyboard.KeySpace || ev.Rune == 'a':
				if err := c.seq.Abort(); err != nil {
					fmt.Fprintf(c.out, "\nabort: %v\n", err)
				}
			case ev.Key == keyboard.KeyEsc || ev.Rune == 'q':
				fmt.Fprintln(c.out)
				return nil
			}
		}
	}
}
