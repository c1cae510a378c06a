package mdpreview

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Worker sizing constants.
const (
	// MinWorkers ensures at least one render worker runs.
	MinWorkers = 1

	// MaxAutoWorkers caps the automatic worker count. Block renders are
	// short-lived CPU work and extra workers past four add little.
	MaxAutoWorkers = 4
)

// ResolveWorkerCount determines the render worker count.
// Priority: explicit workers > GOMAXPROCS-based calculation.
// Exported for use by servers and CLIs.
func ResolveWorkerCount(workers int) int {
	// Explicit value takes priority
	if workers > 0 {
		return workers
	}

	// Leave one CPU for the coordinator and the editor host process
	// (GOMAXPROCS is adjusted by automaxprocs in containers).
	n := runtime.GOMAXPROCS(0) - 1

	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxAutoWorkers {
		return MaxAutoWorkers
	}
	return n
}

// BlockFailure records a block whose render failed and was replaced by
// an escaped fallback fragment.
type BlockFailure struct {
	ID  BlockID
	Err error
}

// RenderResult is the outcome of one render job. Fragments holds one
// entry per block in the job, cached or freshly rendered, with failed
// blocks carried as fallback fragments rather than omitted.
type RenderResult struct {
	Generation Generation
	Priority   Priority
	Fragments  []Fragment
	Failures   []BlockFailure
}

// renderJob is a batch of blocks queued at a single priority.
type renderJob struct {
	id         uint64
	generation Generation
	priority   Priority
	blocks     []Block
	enqueuedAt time.Time
	heapIndex  int
}

// containsID reports whether the job already carries the given block.
func (j *renderJob) containsID(id BlockID) bool {
	for _, b := range j.blocks {
		if b.ID == id {
			return true
		}
	}
	return false
}

// absorb merges another block set into the job. Blocks already present
// are replaced by the newer version, the job keeps the lower priority
// number and the newer generation.
func (j *renderJob) absorb(blocks []Block, priority Priority, gen Generation) {
	for _, b := range blocks {
		replaced := false
		for i := range j.blocks {
			if j.blocks[i].ID == b.ID {
				j.blocks[i] = b
				replaced = true
				break
			}
		}
		if !replaced {
			j.blocks = append(j.blocks, b)
		}
	}
	if priority < j.priority {
		j.priority = priority
	}
	if gen > j.generation {
		j.generation = gen
	}
}

// jobQueue implements heap.Interface for priority queue ordering.
// Jobs are ordered by:
// 1. Priority (ascending): visible (0) before near (1) before hidden (2)
// 2. Generation (ascending): older edits drain (or discard) first
// 3. id (ascending): FIFO within the same priority and generation
type jobQueue []*renderJob

var _ heap.Interface = (*jobQueue)(nil)

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	if q[i].generation != q[j].generation {
		return q[i].generation < q[j].generation
	}
	return q[i].id < q[j].id
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].heapIndex = i
	q[j].heapIndex = j
}

func (q *jobQueue) Push(x any) {
	job := x.(*renderJob)
	job.heapIndex = len(*q)
	*q = append(*q, job)
}

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.heapIndex = -1
	*q = old[0 : n-1]
	return job
}

// WorkerPool renders block batches on a fixed set of goroutines.
// Jobs are dequeued by (priority, submission order) and carry the edit
// generation that produced them; once a newer generation is submitted,
// older jobs and their late results are discarded instead of delivered.
type WorkerPool struct {
	renderer BlockRenderer
	cache    *BlockCache
	size     int

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	cond   *sync.Cond
	queue  jobQueue
	nextID uint64
	closed bool

	latest        atomic.Uint64
	renders       atomic.Uint64
	staleDiscards atomic.Uint64

	results chan RenderResult
	wg      sync.WaitGroup
}

// NewWorkerPool starts n render workers over the given renderer and
// cache. Non-positive n resolves via ResolveWorkerCount.
func NewWorkerPool(n int, renderer BlockRenderer, cache *BlockCache) *WorkerPool {
	size := ResolveWorkerCount(n)
	ctx, cancel := context.WithCancel(context.Background())

	p := &WorkerPool{
		renderer: renderer,
		cache:    cache,
		size:     size,
		ctx:      ctx,
		cancel:   cancel,
		results:  make(chan RenderResult, size),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

// Submit queues a batch of blocks for rendering at the given priority.
// The generation becomes the pool's current one: queued or running jobs
// from older generations turn stale and are discarded, not rendered.
// A pending job sharing blocks with the batch is coalesced with it,
// keeping the lower priority number and the newer generation.
// Submitting on a closed pool is a no-op.
func (p *WorkerPool) Submit(gen Generation, priority Priority, blocks []Block) {
	if len(blocks) == 0 {
		return
	}
	p.advance(gen)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	var overlapping []*renderJob
	for _, job := range p.queue {
		for _, b := range blocks {
			if job.containsID(b.ID) {
				overlapping = append(overlapping, job)
				break
			}
		}
	}

	if len(overlapping) == 0 {
		p.nextID++
		job := &renderJob{
			id:         p.nextID,
			generation: gen,
			priority:   priority,
			blocks:     append([]Block(nil), blocks...),
			enqueuedAt: time.Now(),
		}
		heap.Push(&p.queue, job)
		p.cond.Signal()
		return
	}

	// Coalesce into the earliest overlapping job, folding any others in.
	target := overlapping[0]
	for _, job := range overlapping[1:] {
		target.absorb(job.blocks, job.priority, job.generation)
		heap.Remove(&p.queue, job.heapIndex)
	}
	target.absorb(blocks, priority, gen)
	heap.Fix(&p.queue, target.heapIndex)
	p.cond.Signal()
}

// CancelStale marks every queued or running job with a generation below
// g as stale. Stale jobs are discarded cooperatively: queued ones are
// dropped when dequeued, running ones stop at the next block boundary,
// and finished ones have their results withheld.
func (p *WorkerPool) CancelStale(g Generation) {
	p.advance(g)
}

// Results delivers completed render jobs in completion order.
// The channel is closed by Close.
func (p *WorkerPool) Results() <-chan RenderResult {
	return p.results
}

// Size returns the worker count.
func (p *WorkerPool) Size() int {
	return p.size
}

// QueueDepth returns the number of pending jobs.
func (p *WorkerPool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// OldestJobAge returns how long the oldest pending job has been queued,
// or zero when the queue is empty.
func (p *WorkerPool) OldestJobAge() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	var oldest time.Time
	for _, job := range p.queue {
		if oldest.IsZero() || job.enqueuedAt.Before(oldest) {
			oldest = job.enqueuedAt
		}
	}
	if oldest.IsZero() {
		return 0
	}
	return time.Since(oldest)
}

// Renders returns the number of blocks rendered, excluding cache hits.
func (p *WorkerPool) Renders() uint64 {
	return p.renders.Load()
}

// StaleDiscards returns the number of jobs dropped for carrying an
// outdated generation, before, during, or after rendering.
func (p *WorkerPool) StaleDiscards() uint64 {
	return p.staleDiscards.Load()
}

// Close stops the workers, drops pending jobs, and closes the results
// channel. Safe to call more than once.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.cond.Broadcast()
	p.wg.Wait()
	close(p.results)
}

// advance raises the pool's current generation; it never lowers it.
func (p *WorkerPool) advance(gen Generation) {
	for {
		cur := p.latest.Load()
		if uint64(gen) <= cur || p.latest.CompareAndSwap(cur, uint64(gen)) {
			return
		}
	}
}

// stale reports whether a job generation has been superseded.
func (p *WorkerPool) stale(gen Generation) bool {
	return uint64(gen) < p.latest.Load()
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		job, ok := p.next()
		if !ok {
			return
		}
		p.run(job)
	}
}

// next blocks until a job is available or the pool closes.
func (p *WorkerPool) next() (*renderJob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return nil, false
	}
	return heap.Pop(&p.queue).(*renderJob), true
}

func (p *WorkerPool) run(job *renderJob) {
	if p.stale(job.generation) {
		p.staleDiscards.Add(1)
		return
	}

	res := RenderResult{
		Generation: job.generation,
		Priority:   job.priority,
		Fragments:  make([]Fragment, 0, len(job.blocks)),
	}

	for i, b := range job.blocks {
		if p.ctx.Err() != nil {
			return
		}
		// Cooperative cancellation between blocks.
		if i > 0 && p.stale(job.generation) {
			p.staleDiscards.Add(1)
			return
		}

		if html, ok := p.cache.Get(b.Fingerprint); ok {
			res.Fragments = append(res.Fragments, Fragment{ID: b.ID, HTML: html})
			continue
		}

		html, err := p.renderer.RenderBlock(p.ctx, b.Source)
		if err != nil {
			// A failed block never aborts the batch: deliver an escaped
			// fallback so the preview keeps showing the source text.
			res.Fragments = append(res.Fragments, Fragment{
				ID:       b.ID,
				HTML:     fallbackHTML(b.Source),
				Fallback: true,
			})
			res.Failures = append(res.Failures, BlockFailure{ID: b.ID, Err: err})
			continue
		}

		p.renders.Add(1)
		p.cache.Put(b.Fingerprint, html)
		res.Fragments = append(res.Fragments, Fragment{ID: b.ID, HTML: html})
	}

	// A result that raced with a newer submission is dropped whole; the
	// successful renders above still warmed the cache for that newer run.
	if p.stale(job.generation) {
		p.staleDiscards.Add(1)
		return
	}

	select {
	case p.results <- res:
	case <-p.ctx.Done():
	}
}
