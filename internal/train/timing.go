package train

import "time"

// stepTimer accumulates forward and backward wall time across the batches
// of one epoch.
type stepTimer struct {
	forward  time.Duration
	backward time.Duration
	batches  int
}

func (s *stepTimer) record(forward, backward time.Duration) {
	s.forward += forward
	s.backward += backward
	s.batches++
}

// snapshot returns the accumulated totals and resets the timer.
func (s *stepTimer) snapshot() Timing {
	snap := Timing{
		Forward:  s.forward,
		Backward: s.backward,
		Batches:  s.batches,
	}
	*s = stepTimer{}
	return snap
}

// Timing is the forward/backward wall time spent in one epoch.
type Timing struct {
	Forward  time.Duration
	Backward time.Duration
	Batches  int
}

// AvgStep returns the mean forward+backward time per batch.
func (t Timing) AvgStep() time.Duration {
	if t.Batches == 0 {
		return 0
	}
	return (t.Forward + t.Backward) / time.Duration(t.Batches)
}
