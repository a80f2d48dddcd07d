package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid events into a single callback invocation.
// Only the last event within the configured interval triggers the callback.
//
// A Debouncer is idle until Trigger moves it to pending. Further triggers
// while pending restart the timer; when the timer fires the callback runs
// once and the debouncer is idle again.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func(path string)
	lastPath string
	pending  bool
	gen      uint64
}

// NewDebouncer creates a debouncer that waits for interval of quiet before
// firing callback with the path of the last event.
func NewDebouncer(interval time.Duration, callback func(path string)) *Debouncer {
	return &Debouncer{
		interval: interval,
		callback: callback,
	}
}

// Trigger records an event for the given path. If no further events arrive
// within the debounce interval, the callback fires with the last path seen.
func (d *Debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastPath = path
	d.pending = true

	if d.timer != nil {
		d.timer.Stop()
	}

	d.gen++
	gen := d.gen

	d.timer = time.AfterFunc(d.interval, func() {
		d.fire(gen)
	})
}

// Pending reports whether a callback is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.pending
}

// Stop cancels any pending debounced callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	d.pending = false
	d.gen++
}

// fire runs the callback unless a later Trigger or Stop superseded the timer
// that called it.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}

	p := d.lastPath
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("debouncer callback panicked", slog.Any("error", r))
		}
	}()

	d.callback(p)
}

// Coalesce debounces in and emits the path of the last event of each burst.
//
// The returned channel holds at most one signal. While a signal is waiting
// to be consumed, later bursts are folded into it, so a slow consumer sees
// exactly one follow-up signal however many bursts happened meanwhile. The
// channel is never closed; consumers should stop when ctx is done.
func Coalesce(ctx context.Context, in <-chan Event, window time.Duration) <-chan string {
	out := make(chan string, 1)

	d := NewDebouncer(window, func(path string) {
		select {
		case out <- path:
		default:
			// A signal is already queued and will trigger a full rescan.
		}
	})

	go func() {
		defer d.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					return
				}

				d.Trigger(ev.Path)
			}
		}
	}()

	return out
}
