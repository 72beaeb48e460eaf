package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when the number of goroutines exceeds threshold.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		count := runtime.NumGoroutine()
		if count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when a recent GC pause exceeds threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		for _, pause := range stats.Pause {
			if pause > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, threshold)
			}
		}
		return nil
	}
}

// HeartbeatCheck fails when the last beat reported by last is older than
// maxAge. A zero time is measured from the creation of the check, giving
// background workers maxAge to report their first beat.
func HeartbeatCheck(last func() time.Time, maxAge time.Duration) CheckFunc {
	return heartbeatCheck(last, maxAge, time.Now)
}

func heartbeatCheck(last func() time.Time, maxAge time.Duration, now func() time.Time) CheckFunc {
	created := now()
	return func(_ context.Context) error {
		beat := last()
		if beat.IsZero() {
			beat = created
		}
		if age := now().Sub(beat); age > maxAge {
			return errors.Errorf("last heartbeat %s ago exceeds %s", age.Round(time.Second), maxAge)
		}
		return nil
	}
}
