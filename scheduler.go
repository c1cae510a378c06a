package mdpreview

import (
	"time"
)

// Debounce delay clamp bounds.
const (
	DefaultMinDelay = 100 * time.Millisecond
	DefaultMaxDelay = 2 * time.Second
)

// delayTiers maps document size (block count) to a base debounce delay.
// Bigger documents debounce longer since a full cycle costs more.
var delayTiers = []struct {
	maxBlocks int
	delay     time.Duration
}{
	{maxBlocks: 100, delay: 150 * time.Millisecond},
	{maxBlocks: 400, delay: 250 * time.Millisecond},
	{maxBlocks: 1600, delay: 400 * time.Millisecond},
}

// delayTierCeiling applies beyond the last tier.
const delayTierCeiling = 600 * time.Millisecond

// pipelineState is the debounce state machine position:
// Idle -> (edit) -> Debouncing -> (timer fires) -> Dispatching ->
// (all jobs terminal) -> Idle. An edit during Debouncing or Dispatching
// returns to Debouncing with a fresh timer and a bumped generation.
type pipelineState int

const (
	stateIdle pipelineState = iota
	stateDebouncing
	stateDispatching
)

func (s pipelineState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateDebouncing:
		return "debouncing"
	case stateDispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

// Scheduler computes the adaptive debounce delay:
// base_delay(document size tier) * load_factor(current load), clamped to
// [minDelay, maxDelay]. Load stretches the factor linearly from 1 (idle)
// to 2 (saturated).
type Scheduler struct {
	minDelay time.Duration
	maxDelay time.Duration
	load     LoadMonitor
}

// NewScheduler creates a Scheduler. Zero bounds fall back to the defaults;
// a nil monitor means no load stretching.
func NewScheduler(minDelay, maxDelay time.Duration, load LoadMonitor) *Scheduler {
	if minDelay <= 0 {
		minDelay = DefaultMinDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return &Scheduler{minDelay: minDelay, maxDelay: maxDelay, load: load}
}

// Delay returns the debounce delay for a document of blockCount blocks.
func (s *Scheduler) Delay(blockCount int) time.Duration {
	base := delayTierCeiling
	for _, tier := range delayTiers {
		if blockCount < tier.maxBlocks {
			base = tier.delay
			break
		}
	}

	factor := 1.0
	if s.load != nil {
		factor = 1 + clamp01(s.load.Load())
	}

	d := time.Duration(float64(base) * factor)
	if d < s.minDelay {
		d = s.minDelay
	}
	if d > s.maxDelay {
		d = s.maxDelay
	}
	return d
}

// debounceState is the per-document debounce bookkeeping. Owned
// exclusively by the pipeline goroutine; workers never touch it.
type debounceState struct {
	state        pipelineState
	pendingDelay time.Duration
	timer        *time.Timer
	epoch        uint64 // invalidates in-flight fires from replaced timers
}

// restart arms a fresh timer for delay. Restarting on every edit is
// mandatory: the previous timer is stopped and its epoch invalidated, so a
// fire already in flight is discarded instead of triggering a redundant
// cycle. fire runs on the timer goroutine and must hand off to the owner.
func (d *debounceState) restart(delay time.Duration, fire func(epoch uint64)) {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.epoch++
	epoch := d.epoch
	d.pendingDelay = delay
	d.state = stateDebouncing
	d.timer = time.AfterFunc(delay, func() { fire(epoch) })
}

// live reports whether a timer fire belongs to the currently armed timer.
func (d *debounceState) live(epoch uint64) bool {
	return epoch == d.epoch && d.state == stateDebouncing
}

// cancel stops any armed timer without dispatching.
func (d *debounceState) cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.epoch++
	d.state = stateIdle
}
