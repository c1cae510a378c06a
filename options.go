package mdpreview

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// pipelineConfig holds internal configuration for Pipeline.
type pipelineConfig struct {
	renderer   BlockRenderer
	logger     *slog.Logger
	registerer prometheus.Registerer
	monitor    LoadMonitor
	cacheBytes int
	workers    int
	minDelay   time.Duration
	maxDelay   time.Duration
	watchQuiet time.Duration
	similarity float64
}

// validate rejects impossible configurations before any goroutine starts.
func (c *pipelineConfig) validate() error {
	if c.cacheBytes < 0 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidCapacity, c.cacheBytes)
	}
	if c.workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkerCount, c.workers)
	}
	if c.minDelay < 0 || c.maxDelay < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidDelayBounds)
	}

	minDelay := c.minDelay
	if minDelay == 0 {
		minDelay = DefaultMinDelay
	}
	maxDelay := c.maxDelay
	if maxDelay == 0 {
		maxDelay = DefaultMaxDelay
	}
	if minDelay > maxDelay {
		return fmt.Errorf("%w: min %v exceeds max %v", ErrInvalidDelayBounds, minDelay, maxDelay)
	}

	if c.watchQuiet < 0 {
		return fmt.Errorf("%w: negative watch quiet window", ErrInvalidDelayBounds)
	}
	if c.similarity < 0 || c.similarity > 1 {
		return fmt.Errorf("%w: %v not in [0, 1]", ErrInvalidThreshold, c.similarity)
	}
	return nil
}

// WithRenderer replaces the default goldmark block renderer.
func WithRenderer(r BlockRenderer) Option {
	return func(p *Pipeline) {
		p.cfg.renderer = r
	}
}

// WithLogger sets the structured logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.cfg.logger = l
	}
}

// WithMetrics registers the pipeline's instruments on reg instead of a
// private registry. The instrument names are fixed, so at most one
// pipeline can share a registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(p *Pipeline) {
		p.cfg.registerer = reg
	}
}

// WithLoadMonitor replaces the runtime load monitor. Meant for tests and
// hosts that already measure their own pressure; the pipeline does not
// stop a monitor it did not create.
func WithLoadMonitor(m LoadMonitor) Option {
	return func(p *Pipeline) {
		p.cfg.monitor = m
	}
}

// WithCacheCapacity bounds the fragment cache in bytes.
// Zero means DefaultCacheCapacity.
func WithCacheCapacity(bytes int) Option {
	return func(p *Pipeline) {
		p.cfg.cacheBytes = bytes
	}
}

// WithWorkers fixes the render worker count.
// Zero resolves via ResolveWorkerCount.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		p.cfg.workers = n
	}
}

// WithDelayBounds clamps the adaptive debounce delay to [minDelay, maxDelay].
// A zero keeps the corresponding default (DefaultMinDelay, DefaultMaxDelay).
func WithDelayBounds(minDelay, maxDelay time.Duration) Option {
	return func(p *Pipeline) {
		p.cfg.minDelay = minDelay
		p.cfg.maxDelay = maxDelay
	}
}

// WithWatchQuiet sets the quiet window for coalescing external file
// change notifications. Zero means DefaultWatchQuiet.
func WithWatchQuiet(d time.Duration) Option {
	return func(p *Pipeline) {
		p.cfg.watchQuiet = d
	}
}

// WithSimilarityThreshold tunes how aggressively edited blocks keep
// their identity, in (0, 1]: 1 requires identical content, lower values
// tolerate heavier edits. Zero keeps the default of 0.5.
func WithSimilarityThreshold(threshold float64) Option {
	return func(p *Pipeline) {
		p.cfg.similarity = threshold
	}
}
