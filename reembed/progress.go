package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker prints reembedding progress as a single carriage-return
// line: documents done out of total, chunks reembedded, throughput and an
// estimate of the time left.
type ProgressTracker struct {
	writer       io.Writer
	total        int
	every        int
	documents    int
	chunks       int
	lastReported int
	startTime    time.Time
	started      bool
	mu           sync.Mutex
}

// NewProgressTracker creates a tracker for total documents that prints
// after every `every` documents (at least one).
func NewProgressTracker(writer io.Writer, total, every int) *ProgressTracker {
	return &ProgressTracker{
		writer: writer,
		total:  total,
		every:  max(every, 1),
	}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.documents = 0
	p.chunks = 0
	p.lastReported = 0
}

// Advance records one finished document and the chunks it contributed.
func (p *ProgressTracker) Advance(chunks int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.documents = min(p.documents+1, p.total)
	p.chunks += chunks
	if p.documents-p.lastReported >= p.every {
		p.report()
		p.lastReported = p.documents
	}
}

// Counts returns the documents and chunks recorded so far.
func (p *ProgressTracker) Counts() (documents, chunks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.documents, p.chunks
}

// Finish prints the final line. Documents that were skipped still count as
// done.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.documents = p.total
	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time since Start, or zero before it.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// remaining extrapolates the time left from the average so far. Must be
// called with lock held.
func (p *ProgressTracker) remaining(elapsed time.Duration) time.Duration {
	if p.documents == 0 || p.documents >= p.total {
		return 0
	}
	perDoc := elapsed / time.Duration(p.documents)
	return perDoc * time.Duration(p.total-p.documents)
}

// report must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := float64(p.documents) / elapsed.Seconds()

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.documents) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rProgress: %d/%d documents (%.1f%%), %d chunks, %.1f documents/s, ETA %s",
		p.documents, p.total, percentage, p.chunks, rate, p.remaining(elapsed).Round(time.Second))
}
