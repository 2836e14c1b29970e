package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeConflict
	outcomeError
)

// classify maps a client error to a report bucket. Contention and lifecycle
// rejections are expected under load and count as conflicts.
func classify(err error) outcome {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, appointment.ErrSlotTaken),
		errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, appointment.ErrSlotUnavailable),
		errors.Is(err, appointment.ErrInvalidTransition):
		return outcomeConflict
	default:
		return outcomeError
	}
}

type OperationStats struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (o *OperationStats) Record(latency time.Duration, err error) {
	atomic.AddInt64(&o.Total, 1)
	switch classify(err) {
	case outcomeSuccess:
		atomic.AddInt64(&o.Success, 1)
	case outcomeConflict:
		atomic.AddInt64(&o.Conflict, 1)
	default:
		atomic.AddInt64(&o.Error, 1)
	}

	o.mu.Lock()
	o.latencies = append(o.latencies, latency)
	o.mu.Unlock()
}

func (o *OperationStats) Latencies() (avg, p50, p95, max time.Duration) {
	o.mu.Lock()
	sorted := append([]time.Duration(nil), o.latencies...)
	o.mu.Unlock()

	if len(sorted) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	avg = sum / time.Duration(len(sorted))
	p50 = sorted[percentileIndex(len(sorted), 50)]
	p95 = sorted[percentileIndex(len(sorted), 95)]
	max = sorted[len(sorted)-1]
	return avg, p50, p95, max
}

func percentileIndex(n, pct int) int {
	idx := n * pct / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Report struct {
	Booking    OperationStats
	Transition OperationStats
	Read       OperationStats
	Conflicts  OperationStats
	Bulk       OperationStats
	BulkItems  struct{ Succeeded, Failed int64 }
}

func (r *Report) Write(w io.Writer, duration time.Duration, workers int) {
	line := strings.Repeat("=", 72)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "SIMULATION REPORT")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Duration: %s  Workers: %d\n\n", duration, workers)

	writeOperation(w, "Booking wizard", &r.Booking)
	writeOperation(w, "Transitions", &r.Transition)
	writeOperation(w, "Reads", &r.Read)
	writeOperation(w, "Conflict scans", &r.Conflicts)
	writeOperation(w, "Bulk requests", &r.Bulk)

	ok := atomic.LoadInt64(&r.BulkItems.Succeeded)
	failed := atomic.LoadInt64(&r.BulkItems.Failed)
	if ok+failed > 0 {
		fmt.Fprintf(w, "Bulk items: %d succeeded, %d failed\n", ok, failed)
	}
}

func writeOperation(w io.Writer, name string, o *OperationStats) {
	total := atomic.LoadInt64(&o.Total)
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	success := atomic.LoadInt64(&o.Success)
	conflict := atomic.LoadInt64(&o.Conflict)
	errs := atomic.LoadInt64(&o.Error)
	avg, p50, p95, max := o.Latencies()

	fmt.Fprintf(w, "%s:\n", name)
	fmt.Fprintf(w, "  Total: %d  Success: %d (%.1f%%)", total, success, pct(success))
	if conflict > 0 {
		fmt.Fprintf(w, "  Conflicts: %d (%.1f%%)", conflict, pct(conflict))
	}
	if errs > 0 {
		fmt.Fprintf(w, "  Errors: %d (%.1f%%)", errs, pct(errs))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
}
