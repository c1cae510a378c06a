package mdpreview

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Compile-time interface checks.
var (
	_ Splitter      = (*MarkdownSplitter)(nil)
	_ Differ        = (*BlockDiffer)(nil)
	_ BlockRenderer = (*GoldmarkRenderer)(nil)
	_ LoadMonitor   = (*RuntimeLoadMonitor)(nil)
)

// eventBuffer is the capacity of the status event channel. When it fills,
// the oldest event is dropped so a consumer that stops reading can never
// stall a render cycle.
const eventBuffer = 32

// message is a request posted to the pipeline goroutine. All mutation of
// document state happens by handling messages on that single goroutine;
// public methods only post.
type message interface {
	msg()
}

type editMsg struct {
	text     string
	viewport SourceRange
}

type viewportMsg struct {
	viewport SourceRange
}

type openMsg struct {
	path string
}

type saveMsg struct {
	path string
}

// timerMsg hands a debounce timer fire from the timer goroutine to the
// pipeline goroutine. The epoch lets the handler discard fires from timers
// that were re-armed after this one was scheduled.
type timerMsg struct {
	epoch uint64
}

func (editMsg) msg()     {}
func (viewportMsg) msg() {}
func (openMsg) msg()     {}
func (saveMsg) msg()     {}
func (timerMsg) msg()    {}

// renderCycle tracks one dispatched generation until every submitted block
// reached a terminal state.
type renderCycle struct {
	generation Generation
	started    time.Time
	fragments  map[BlockID]Fragment
	pending    map[BlockID]struct{}
}

// ownerState is the document state owned exclusively by the pipeline
// goroutine. Nothing here is guarded by a mutex; it must never be touched
// from another goroutine.
type ownerState struct {
	text       string
	blocks     []Block
	path       string
	generation Generation
	debounce   debounceState

	// cycle is the in-flight render, nil between cycles. An edit
	// supersedes it: the pool discards its jobs and its patch is skipped.
	cycle *renderCycle

	// pendingRemoved accumulates deleted block IDs across edits until the
	// next emitted patch reports them.
	pendingRemoved []BlockID

	// emittedAny and lastOrder describe the consumer's view: the first
	// emitted patch is Full, and a settled window with no dirty blocks
	// still patches when the block order or set changed since lastOrder.
	emittedAny bool
	lastOrder  []BlockID

	// lastCorruption is the cache corruption count at the last dispatch.
	// A change forces every block dirty so the rebuilt cache repopulates.
	lastCorruption uint64
}

// Pipeline coordinates the whole live preview for one markdown document:
// it splits edits into blocks, diffs them against the previous revision,
// debounces with an adaptive delay, renders dirty blocks on a worker pool,
// and emits patches a consumer applies to its rendered view.
//
// All methods are safe for concurrent use. Edits and file operations are
// asynchronous: they post to the pipeline goroutine and return immediately;
// outcomes surface on Patches and Events.
type Pipeline struct {
	cfg pipelineConfig

	splitter MarkdownSplitter
	differ   *BlockDiffer
	viewport *ViewportTracker
	cache    *BlockCache
	sched    *Scheduler
	pool     *WorkerPool
	gateway  *FileGateway
	metrics  *Metrics
	logger   *slog.Logger

	// registry is non-nil only when the pipeline owns its metrics
	// registry (no WithMetrics option).
	registry *prometheus.Registry

	// ownedMonitor is non-nil only when the pipeline created the load
	// monitor itself and must stop it on Close.
	ownedMonitor *RuntimeLoadMonitor

	inbox   chan message
	patches chan Patch
	events  chan Event
	closing chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error

	st ownerState
}

// NewPipeline creates a Pipeline and starts its goroutines. The zero
// configuration is usable: goldmark rendering, a private metrics registry,
// and defaults for cache size, workers, and delays. Close releases
// everything the pipeline started.
func NewPipeline(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		inbox:   make(chan message, 16),
		patches: make(chan Patch, 1),
		events:  make(chan Event, eventBuffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.cfg.validate(); err != nil {
		return nil, err
	}

	p.logger = p.cfg.logger
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	renderer := p.cfg.renderer
	if renderer == nil {
		renderer = NewGoldmarkRenderer()
	}

	monitor := p.cfg.monitor
	if monitor == nil {
		m := NewRuntimeLoadMonitor()
		p.ownedMonitor = m
		monitor = m
	}

	registerer := p.cfg.registerer
	if registerer == nil {
		p.registry = prometheus.NewRegistry()
		registerer = p.registry
	}

	p.viewport = &ViewportTracker{}
	p.differ = NewBlockDiffer()
	if p.cfg.similarity > 0 {
		p.differ.SimilarityThreshold = p.cfg.similarity
	}
	p.cache = NewBlockCache(int64(p.cfg.cacheBytes))
	p.pool = NewWorkerPool(p.cfg.workers, renderer, p.cache)
	p.sched = NewScheduler(p.cfg.minDelay, p.cfg.maxDelay, monitor)
	p.gateway = NewFileGateway(p.cfg.watchQuiet, p.logger)
	p.metrics = newMetrics(registerer, p.pool, p.cache)

	go p.run()
	return p, nil
}

// Edit replaces the document text. viewport optionally moves the visible
// range in the same call; the zero SourceRange leaves it untouched. The
// render is debounced: rapid successive edits collapse into one cycle that
// sees only the final text.
func (p *Pipeline) Edit(text string, viewport SourceRange) {
	p.post(editMsg{text: text, viewport: viewport})
}

// SetViewport moves the visible range without editing. It influences the
// priority of blocks in subsequent render cycles.
func (p *Pipeline) SetViewport(viewport SourceRange) {
	p.post(viewportMsg{viewport: viewport})
}

// OpenFile loads path asynchronously and watches it for external changes.
// The content arrives as an edit; completion surfaces as FileLoaded or
// IOError on Events.
func (p *Pipeline) OpenFile(path string) {
	p.post(openMsg{path: path})
}

// SaveTo writes the current document text to path asynchronously, using a
// temp file and rename so the destination is never seen half-written. An
// empty path reuses the last opened or saved path. Completion surfaces as
// FileSaved or IOError on Events.
func (p *Pipeline) SaveTo(path string) {
	p.post(saveMsg{path: path})
}

// Patches returns the channel of render patches, in generation order. The
// consumer must drain it; the pipeline blocks rather than drop a patch.
// Closed by Close.
func (p *Pipeline) Patches() <-chan Patch {
	return p.patches
}

// Events returns the channel of status events. Unlike Patches it is lossy:
// when the consumer lags, the oldest events are dropped. Closed by Close.
func (p *Pipeline) Events() <-chan Event {
	return p.events
}

// CacheStats returns a snapshot of the fragment cache counters.
func (p *Pipeline) CacheStats() CacheStats {
	return p.cache.Stats()
}

// Gatherer exposes the pipeline's private metrics registry, or nil when
// WithMetrics supplied an external registerer.
func (p *Pipeline) Gatherer() prometheus.Gatherer {
	if p.registry == nil {
		return nil
	}
	return p.registry
}

// Close stops the pipeline: pending messages and queued renders are
// dropped, the worker pool and file gateway shut down, and the Patches and
// Events channels are closed. Safe to call more than once.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		close(p.closing)
		<-p.done
		p.pool.Close()
		p.closeErr = p.gateway.Close()
		if p.ownedMonitor != nil {
			p.ownedMonitor.Stop()
		}
		close(p.patches)
		close(p.events)
	})
	return p.closeErr
}

// post hands a message to the pipeline goroutine, dropping it when the
// pipeline is closing.
func (p *Pipeline) post(m message) {
	select {
	case p.inbox <- m:
	case <-p.closing:
	}
}

// run is the pipeline goroutine: the single owner of ownerState.
func (p *Pipeline) run() {
	defer close(p.done)
	for {
		select {
		case <-p.closing:
			p.st.debounce.cancel()
			return
		case m := <-p.inbox:
			p.handleMessage(m)
		case res := <-p.pool.Results():
			p.handleResult(res)
		case fr := <-p.gateway.Results():
			p.handleFile(fr)
		}
	}
}

func (p *Pipeline) handleMessage(m message) {
	switch m := m.(type) {
	case editMsg:
		p.handleEdit(m.text, m.viewport)
	case viewportMsg:
		p.viewport.SetViewport(m.viewport)
	case openMsg:
		p.handleOpen(m.path)
	case saveMsg:
		p.handleSave(m.path)
	case timerMsg:
		p.handleTimer(m.epoch)
	}
}

// handleEdit ingests a new document revision: split, diff against the
// previous blocks, bump the generation, invalidate queued renders, and
// re-arm the debounce timer.
func (p *Pipeline) handleEdit(text string, viewport SourceRange) {
	if viewport != (SourceRange{}) {
		p.viewport.SetViewport(viewport)
	}

	// Saved text must match the byte offsets in Block.Range, so normalize
	// before storing, not just inside Split.
	text = NormalizeNewlines(text)
	next := p.splitter.Split(text)

	// Dirty means changed since the last emitted patch, not since the last
	// diff. Blocks still awaiting a render keep the flag across further
	// edits in the same debounce window.
	prevDirty := make(map[BlockID]bool, len(p.st.blocks))
	for _, b := range p.st.blocks {
		if b.Dirty {
			prevDirty[b.ID] = true
		}
	}

	ch := p.differ.Diff(p.st.blocks, next)
	blocks := ch.Blocks
	for i := range blocks {
		if prevDirty[blocks[i].ID] {
			blocks[i].Dirty = true
		}
	}

	p.st.text = text
	p.st.blocks = blocks
	p.st.pendingRemoved = append(p.st.pendingRemoved, ch.Deleted...)
	p.st.generation++
	if p.st.cycle != nil {
		p.logger.Debug("render cycle superseded by edit",
			"generation", uint64(p.st.cycle.generation))
		p.st.cycle = nil
	}
	p.pool.CancelStale(p.st.generation)

	delay := p.sched.Delay(len(blocks))
	p.st.debounce.restart(delay, func(epoch uint64) {
		p.post(timerMsg{epoch: epoch})
	})
	p.logger.Debug("edit accepted",
		"generation", uint64(p.st.generation),
		"blocks", len(blocks),
		"dirty", len(ch.Dirty)+len(ch.Inserted),
		"deleted", len(ch.Deleted),
		"delay", delay)
}

// handleTimer dispatches a render cycle when the debounce window for the
// current generation elapses without another edit.
func (p *Pipeline) handleTimer(epoch uint64) {
	if !p.st.debounce.live(epoch) {
		return
	}
	p.st.debounce.state = stateDispatching

	// A corruption reset wiped cached fragments; re-render everything so
	// the next patch is built from a repopulated cache.
	if cc := p.cache.corruptionCount(); cc != p.st.lastCorruption {
		p.st.lastCorruption = cc
		p.logger.Warn("fragment cache was reset, re-rendering all blocks",
			"err", ErrCacheCorrupted)
		for i := range p.st.blocks {
			p.st.blocks[i].Dirty = true
		}
	}

	var dirty []Block
	for _, b := range p.st.blocks {
		if b.Dirty {
			dirty = append(dirty, b)
		}
	}
	gen := p.st.generation
	if len(dirty) == 0 {
		p.finishWithoutRender(gen)
		return
	}

	p.emitEvent(RenderStarted{Generation: gen})
	cy := &renderCycle{
		generation: gen,
		started:    time.Now(),
		fragments:  make(map[BlockID]Fragment, len(dirty)),
		pending:    make(map[BlockID]struct{}, len(dirty)),
	}
	for _, b := range dirty {
		cy.pending[b.ID] = struct{}{}
	}
	p.st.cycle = cy

	var bands [3][]Block
	for _, b := range dirty {
		pr := p.viewport.Priority(b)
		bands[pr] = append(bands[pr], b)
	}
	for pr, blocks := range bands {
		if len(blocks) > 0 {
			p.pool.Submit(gen, Priority(pr), blocks)
		}
	}
	p.logger.Debug("render cycle dispatched",
		"generation", uint64(gen),
		"dirty", len(dirty),
		"visible", len(bands[PriorityVisible]),
		"near", len(bands[PriorityNear]),
		"hidden", len(bands[PriorityHidden]))
}

// finishWithoutRender settles a debounce window in which no block needs
// rendering. Deletions and reorders still changed the document shape and
// get a fragment-less patch; a window where nothing observable changed,
// like the re-read after our own save, ends silently. The very first
// settle always emits, so consumers see an initial snapshot even for an
// empty document.
func (p *Pipeline) finishWithoutRender(gen Generation) {
	order := blockOrder(p.st.blocks)
	if p.st.emittedAny && len(p.st.pendingRemoved) == 0 && sameOrder(order, p.st.lastOrder) {
		p.st.debounce.state = stateIdle
		p.logger.Debug("debounce settled with no changes", "generation", uint64(gen))
		return
	}

	pt := Patch{
		Generation: gen,
		Full:       !p.st.emittedAny,
		Order:      order,
		Removed:    p.st.pendingRemoved,
	}
	select {
	case p.patches <- pt:
	case <-p.closing:
		return
	}
	p.st.emittedAny = true
	p.st.lastOrder = order
	p.st.pendingRemoved = nil
	p.metrics.CyclesTotal.Inc()
	p.st.debounce.state = stateIdle
	p.logger.Debug("structural patch emitted",
		"generation", uint64(gen),
		"removed", len(pt.Removed))
}

// handleResult folds one worker pool result into the in-flight cycle.
// Results from superseded generations are dropped; their fragments already
// warmed the cache.
func (p *Pipeline) handleResult(res RenderResult) {
	cy := p.st.cycle
	if cy == nil || res.Generation != cy.generation {
		p.logger.Debug("discarding result from superseded generation",
			"generation", uint64(res.Generation))
		return
	}
	for _, fr := range res.Fragments {
		// Coalesced jobs can carry blocks this cycle never asked for.
		if _, ok := cy.pending[fr.ID]; !ok {
			continue
		}
		cy.fragments[fr.ID] = fr
		delete(cy.pending, fr.ID)
	}
	for _, f := range res.Failures {
		p.metrics.BlockFailuresTotal.Inc()
		p.emitEvent(BlockRenderFailed{ID: f.ID, Reason: f.Err})
		p.logger.Warn("block render failed",
			"block", uint64(f.ID),
			"err", f.Err)
	}
	if len(cy.pending) == 0 {
		p.completeCycle()
	}
}

// completeCycle emits the patch for a finished render cycle and returns the
// pipeline to idle.
func (p *Pipeline) completeCycle() {
	cy := p.st.cycle
	p.st.cycle = nil

	order := blockOrder(p.st.blocks)
	frs := make([]Fragment, 0, len(cy.fragments))
	for _, b := range p.st.blocks {
		if fr, ok := cy.fragments[b.ID]; ok {
			frs = append(frs, fr)
		}
	}
	pt := Patch{
		Generation: cy.generation,
		Full:       !p.st.emittedAny,
		Order:      order,
		Fragments:  frs,
		Removed:    p.st.pendingRemoved,
	}
	select {
	case p.patches <- pt:
	case <-p.closing:
		return
	}
	p.st.emittedAny = true
	p.st.lastOrder = order
	p.st.pendingRemoved = nil

	// Fallback fragments leave the block dirty so the next cycle retries
	// the render instead of freezing the escaped source in place.
	for i := range p.st.blocks {
		if fr, ok := cy.fragments[p.st.blocks[i].ID]; ok && !fr.Fallback {
			p.st.blocks[i].Dirty = false
		}
	}

	dur := time.Since(cy.started)
	p.metrics.CyclesTotal.Inc()
	p.metrics.RenderDuration.Observe(dur.Seconds())
	p.emitEvent(RenderCompleted{Generation: cy.generation, Duration: dur})
	p.st.debounce.state = stateIdle
	p.logger.Debug("render cycle completed",
		"generation", uint64(cy.generation),
		"fragments", len(frs),
		"duration", dur)
}

// handleFile folds one gateway result into pipeline state. Loaded content
// enters as an edit; a watch notification triggers a fresh read.
func (p *Pipeline) handleFile(res FileResult) {
	if res.Err != nil {
		p.emitEvent(IOError{Op: string(res.Op), Path: res.Path, Err: res.Err})
		p.logger.Warn("file operation failed",
			"op", string(res.Op),
			"path", res.Path,
			"err", res.Err)
		return
	}
	switch res.Op {
	case OpRead:
		p.emitEvent(FileLoaded{Path: res.Path})
		p.handleEdit(res.Text, SourceRange{})
	case OpWrite:
		p.emitEvent(FileSaved{Path: res.Path})
	case OpWatch:
		p.gateway.ReadFile(res.Path)
	}
}

func (p *Pipeline) handleOpen(path string) {
	p.st.path = path
	if err := p.gateway.Watch(path); err != nil {
		p.emitEvent(IOError{Op: string(OpWatch), Path: path, Err: err})
	}
	p.gateway.ReadFile(path)
}

// handleSave writes the current text. An explicit path becomes the new
// default save target; watching stays on the opened file.
func (p *Pipeline) handleSave(path string) {
	if path == "" {
		path = p.st.path
	}
	if path == "" {
		p.emitEvent(IOError{Op: string(OpWrite), Err: ErrNoDocument})
		return
	}
	p.st.path = path
	p.gateway.WriteFile(path, p.st.text)
}

// emitEvent sends without blocking: on a full buffer the oldest event is
// dropped to make room. Only the pipeline goroutine sends events.
func (p *Pipeline) emitEvent(ev Event) {
	select {
	case p.events <- ev:
		return
	default:
	}
	select {
	case <-p.events:
	default:
	}
	select {
	case p.events <- ev:
	default:
	}
}

func blockOrder(blocks []Block) []BlockID {
	if len(blocks) == 0 {
		return nil
	}
	order := make([]BlockID, len(blocks))
	for i, b := range blocks {
		order[i] = b.ID
	}
	return order
}

func sameOrder(a, b []BlockID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
