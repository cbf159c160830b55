// Package progress maintains thread-safe running totals for a capture
// run and renders them as a single live status line.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

const renderUpdateFrequency = 250 * time.Millisecond

// Snapshot is a consistent view of the running totals.
type Snapshot struct {
	OK          int
	Fail        int
	Done        int
	Elapsed     time.Duration
	PerMinute   float64
	AvgTaskSecs float64
}

// Tracker accumulates per-job outcomes and drives the live status line.
// The mutex is held only for counter updates and metric recomputation,
// never across rendering I/O.
type Tracker struct {
	mu            sync.Mutex
	ok            int
	fail          int
	totalTaskSecs float64
	startedAt     time.Time

	writer  progress.Writer
	tracker *progress.Tracker

	now func() time.Time
}

// NewTracker creates a tracker rendering to out. A nil out disables
// rendering; totals are still accumulated.
func NewTracker(out io.Writer) *Tracker {
	t := &Tracker{now: time.Now}
	if out == nil {
		return t
	}

	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(false)
	pw.SetMessageLength(100)
	pw.SetUpdateFrequency(renderUpdateFrequency)
	pw.Style().Visibility.Percentage = false
	pw.Style().Visibility.Value = false
	pw.Style().Visibility.Time = false
	t.writer = pw
	return t
}

// Start resets the totals and begins rendering.
func (t *Tracker) Start() {
	t.mu.Lock()
	t.ok = 0
	t.fail = 0
	t.totalTaskSecs = 0
	t.startedAt = t.now()
	t.mu.Unlock()

	if t.writer == nil {
		return
	}
	t.tracker = &progress.Tracker{Message: "progress: 0 done [starting]"}
	t.writer.AppendTracker(t.tracker)
	go t.writer.Render()
}

// Record registers one terminal job outcome and its total elapsed time
// across retries, then refreshes the status line.
func (t *Tracker) Record(ok bool, taskElapsed time.Duration) {
	t.mu.Lock()
	if ok {
		t.ok++
	} else {
		t.fail++
	}
	t.totalTaskSecs += taskElapsed.Seconds()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if t.tracker != nil {
		t.tracker.UpdateMessage(snap.Line())
		t.tracker.Increment(1)
	}
}

// Snapshot returns the current totals.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Stop halts rendering. Totals remain readable.
func (t *Tracker) Stop() {
	if t.writer == nil {
		return
	}
	if t.tracker != nil {
		t.tracker.MarkAsDone()
	}
	t.writer.Stop()
	// Let the render goroutine flush its final frame.
	for t.writer.IsRenderInProgress() {
		time.Sleep(renderUpdateFrequency / 5)
	}
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{
		OK:   t.ok,
		Fail: t.fail,
		Done: t.ok + t.fail,
	}
	if !t.startedAt.IsZero() {
		s.Elapsed = t.now().Sub(t.startedAt)
	}
	if mins := s.Elapsed.Minutes(); mins > 0 {
		s.PerMinute = float64(s.Done) / mins
	}
	if s.Done > 0 {
		s.AvgTaskSecs = t.totalTaskSecs / float64(s.Done)
	}
	return s
}

// Line renders the snapshot as the single status line.
func (s Snapshot) Line() string {
	return fmt.Sprintf(
		"progress: %d done [running: %.1fm | ok: %d | fail: %d | per-min: %.2f | avg: %.1fs]",
		s.Done, s.Elapsed.Minutes(), s.OK, s.Fail, s.PerMinute, s.AvgTaskSecs,
	)
}
