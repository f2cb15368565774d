package train

import (
	"fmt"
	"io"
	"time"
)

// EpochReport is what the trainer logs after an evaluated epoch.
type EpochReport struct {
	Epoch int

	// Loss is the summed per-example loss of the last batch of the epoch.
	// This is the historical "total_loss" value of the training script.
	Loss float64
	// EpochLoss is the summed per-example loss over every batch of the epoch.
	EpochLoss float64

	Correct int // Predictions matching labels at threshold 0.5
	Total   int // Dataset size

	Losses []float64 // Loss of every epoch so far

	AvgEpochTime time.Duration // Elapsed time divided by epochs completed
	TotalTime    time.Duration // Elapsed since training started
	Timing       Timing        // Forward/backward time of this epoch
}

// LogFunc receives one report per evaluated epoch.
type LogFunc func(EpochReport)

// WriterLog returns a LogFunc that prints one line per report to w.
func WriterLog(w io.Writer) LogFunc {
	return func(r EpochReport) {
		fmt.Fprintf(w, "Epoch %d loss %.6f epoch_loss %.6f correct %d/%d per-epoch avg time %.4fs total time %.4fs forward %.4fs backward %.4fs avg step %.6fs\n",
			r.Epoch,
			r.Loss,
			r.EpochLoss,
			r.Correct,
			r.Total,
			r.AvgEpochTime.Seconds(),
			r.TotalTime.Seconds(),
			r.Timing.Forward.Seconds(),
			r.Timing.Backward.Seconds(),
			r.Timing.AvgStep().Seconds(),
		)
	}
}
