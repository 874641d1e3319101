package daemon

import (
	"context"
	"sync"
	"time"
)

// PushNotice is one accepted webhook delivery waiting to be coalesced.
type PushNotice struct {
	Branch     string
	Commit     string
	Reason     string
	ReceivedAt time.Time
}

// Coalesced is what the debouncer hands the executor: the newest notice of a
// burst plus counters describing the burst it absorbed.
type Coalesced struct {
	PushNotice
	NoticeCount  int
	FirstNotice  time.Time
	TriggerCause string // "quiet", "max_delay" or "after_running"
}

// DebouncerConfig tunes burst coalescing.
type DebouncerConfig struct {
	QuietWindow time.Duration
	MaxDelay    time.Duration

	// CheckRunning reports whether a pipeline run is in flight. When true the
	// debouncer holds its pending notice and schedules exactly one follow-up
	// run after the current one finishes.
	CheckRunning func() bool

	// PollInterval controls how often the debouncer checks for run completion
	// once it has detected a run in flight.
	PollInterval time.Duration
}

// Debouncer coalesces bursts of push notices into single run triggers.
//
// Rapid pushes (a rebase, a series of small fixes) must not each start a
// full render-and-publish cycle:
//   - the quiet window waits for the burst to settle
//   - the max delay bounds how long a steady trickle can postpone the run
//   - while a run is in flight, at most one follow-up is queued
//
// Safe to run as a single goroutine.
type Debouncer struct {
	cfg  DebouncerConfig
	emit func(context.Context, Coalesced)

	notices   chan PushNotice
	readyOnce sync.Once
	ready     chan struct{}

	mu          sync.Mutex
	pending     bool
	heldForRun  bool
	firstAt     time.Time
	last        PushNotice
	noticeCount int
}

// NewDebouncer creates a debouncer that calls emit for each coalesced burst.
func NewDebouncer(cfg DebouncerConfig, emit func(context.Context, Coalesced)) *Debouncer {
	if cfg.QuietWindow <= 0 {
		cfg.QuietWindow = 5 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.CheckRunning == nil {
		cfg.CheckRunning = func() bool { return false }
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &Debouncer{
		cfg:     cfg,
		emit:    emit,
		notices: make(chan PushNotice, 64),
		ready:   make(chan struct{}),
	}
}

// Notify hands a push notice to the debouncer. Never blocks: when the buffer
// is full the notice is dropped, which is harmless because a pending trigger
// already covers it.
func (d *Debouncer) Notify(n PushNotice) {
	if n.ReceivedAt.IsZero() {
		n.ReceivedAt = time.Now()
	}
	select {
	case d.notices <- n:
	default:
	}
}

// Ready is closed once Run has initialized. Intended for deterministic
// startup sequencing in tests.
func (d *Debouncer) Ready() <-chan struct{} {
	return d.ready
}

// Run processes notices until the context is canceled.
func (d *Debouncer) Run(ctx context.Context) error {
	d.readyOnce.Do(func() { close(d.ready) })

	newStoppedTimer := func() *time.Timer {
		t := time.NewTimer(time.Hour)
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		return t
	}
	quietTimer := newStoppedTimer()
	maxTimer := newStoppedTimer()
	pollTimer := newStoppedTimer()

	var quietC, maxC, pollC <-chan time.Time

	resetTimer := func(t *time.Timer, after time.Duration) {
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		t.Reset(after)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case n := <-d.notices:
			first := d.onNotice(n)
			resetTimer(quietTimer, d.cfg.QuietWindow)
			quietC = quietTimer.C
			if first {
				resetTimer(maxTimer, d.cfg.MaxDelay)
				maxC = maxTimer.C
			}

		case <-quietC:
			if d.tryEmit(ctx, "quiet") {
				quietC, maxC = nil, nil
			}

		case <-maxC:
			if d.tryEmit(ctx, "max_delay") {
				quietC, maxC = nil, nil
			}

		case <-pollC:
			if d.tryEmitAfterRun(ctx) {
				quietC, maxC, pollC = nil, nil, nil
				continue
			}
			resetTimer(pollTimer, d.cfg.PollInterval)
			pollC = pollTimer.C
		}

		if d.waitingForRun() && pollC == nil {
			resetTimer(pollTimer, d.cfg.PollInterval)
			pollC = pollTimer.C
		}
	}
}

// onNotice records a notice and reports whether it opened a new burst.
func (d *Debouncer) onNotice(n PushNotice) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	first := !d.pending
	if first {
		d.pending = true
		d.firstAt = n.ReceivedAt
		d.noticeCount = 0
	}
	d.last = n
	d.noticeCount++
	return first
}

func (d *Debouncer) waitingForRun() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.heldForRun
}

// tryEmit fires the pending trigger unless a run is in flight. Returns true
// when the pending state was consumed (or there was nothing pending).
func (d *Debouncer) tryEmit(ctx context.Context, cause string) bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return true
	}
	if d.cfg.CheckRunning() {
		d.heldForRun = true
		d.mu.Unlock()
		return false
	}

	c := Coalesced{
		PushNotice:   d.last,
		NoticeCount:  d.noticeCount,
		FirstNotice:  d.firstAt,
		TriggerCause: cause,
	}
	d.pending = false
	d.heldForRun = false
	d.mu.Unlock()

	d.emit(ctx, c)
	return true
}

func (d *Debouncer) tryEmitAfterRun(ctx context.Context) bool {
	d.mu.Lock()
	held := d.heldForRun
	d.mu.Unlock()
	if !held {
		return true
	}
	if d.cfg.CheckRunning() {
		return false
	}
	return d.tryEmit(ctx, "after_running")
}
