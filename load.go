package mdpreview

import (
	"runtime"
	"sync"
	"time"
)

const (
	// loadSampleInterval is the monitor's ticker period.
	loadSampleInterval = 500 * time.Millisecond

	// loadSmoothing is the EWMA weight of the newest sample.
	loadSmoothing = 0.3

	// gcSaturationFraction is the GC CPU fraction treated as full
	// saturation. Spending 10% of CPU in GC means the machine has no
	// headroom for render bursts.
	gcSaturationFraction = 0.10
)

// LoadMonitor reports recent system pressure as a value in [0, 1]:
// 0 idle, 1 saturated. The scheduler stretches debounce delays with it.
type LoadMonitor interface {
	Load() float64
}

// RuntimeLoadMonitor samples scheduling lateness and GC pressure on a
// fixed ticker and blends them into an exponentially weighted moving
// average. Ticker lateness approximates CPU saturation: a busy runtime
// delivers ticks late.
type RuntimeLoadMonitor struct {
	mu   sync.Mutex
	load float64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRuntimeLoadMonitor starts the sampling goroutine.
func NewRuntimeLoadMonitor() *RuntimeLoadMonitor {
	m := &RuntimeLoadMonitor{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go m.run()
	return m
}

// Load returns the current smoothed pressure estimate.
func (m *RuntimeLoadMonitor) Load() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load
}

// Stop terminates the sampling goroutine and waits for it to exit.
func (m *RuntimeLoadMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *RuntimeLoadMonitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(loadSampleInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			sample := loadSample(now.Sub(last))
			last = now

			m.mu.Lock()
			m.load = m.load*(1-loadSmoothing) + sample*loadSmoothing
			m.mu.Unlock()
		}
	}
}

// loadSample scores one ticker interval: how late the tick arrived, or how
// much CPU the collector is eating, whichever is worse.
func loadSample(elapsed time.Duration) float64 {
	lateness := float64(elapsed-loadSampleInterval) / float64(loadSampleInterval)
	lateness = clamp01(lateness)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	gc := clamp01(ms.GCCPUFraction / gcSaturationFraction)

	if gc > lateness {
		return gc
	}
	return lateness
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
