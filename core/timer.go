package core

import (
	"context"
	"time"
)

// Timer frequencies for common MCUs
const (
	TimerFreq = 1000000 // 1MHz, the RP2040 microsecond counter
)

// TimerFromUS converts microseconds to ticks of a freq Hz timer
func TimerFromUS(freq, us uint32) uint32 {
	return uint32(uint64(us) * uint64(freq) / 1000000)
}

// TimerToUS converts ticks of a freq Hz timer to microseconds
func TimerToUS(freq, ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / uint64(freq))
}

// TimerFromDuration converts a duration to ticks of a freq Hz timer
func TimerFromDuration(freq uint32, d time.Duration) uint32 {
	return uint32(uint64(d) * uint64(freq) / uint64(time.Second))
}

// RunVirtual dispatches queued timers back to back, jumping the clock to each
// wake time instead of waiting for it. Host simulations and tests use it to
// run step generation as fast as the CPU allows.
func (s *Scheduler) RunVirtual(ctx context.Context) {
	for ctx.Err() == nil {
		if !s.Step() {
			time.Sleep(20 * time.Microsecond)
		}
	}
}

// RunRealtime dispatches timers against the wall clock until ctx is done.
// On hardware the main loop does the same against the timer peripheral.
func (s *Scheduler) RunRealtime(ctx context.Context) {
	start := time.Now()
	base := s.Now()
	for ctx.Err() == nil {
		now := base + TimerFromDuration(s.freq, time.Since(start))
		s.Dispatch(now)

		wait := time.Millisecond
		if wake, ok := s.NextWake(); ok {
			ahead := int32(wake - now)
			if ahead <= 0 {
				continue
			}
			if d := time.Duration(TimerToUS(s.freq, uint32(ahead))) * time.Microsecond; d < wait {
				wait = d
			}
		}
		time.Sleep(wait)
	}
}
