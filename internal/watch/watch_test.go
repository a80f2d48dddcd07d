package watch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assetmanifest/internal/manifest"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// ---------------------------------------------------------------------------
// Debouncer
// ---------------------------------------------------------------------------

func TestDebouncer_SingleEvent(t *testing.T) {
	var callCount atomic.Int32
	var lastPath atomic.Value

	d := NewDebouncer(50*time.Millisecond, func(path string) {
		callCount.Add(1)
		lastPath.Store(path)
	})
	defer d.Stop()

	d.Trigger("a.jpg")
	assert.True(t, d.Pending())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
	assert.Equal(t, "a.jpg", lastPath.Load())
	assert.False(t, d.Pending())
}

func TestDebouncer_MultipleEventsCoalesced(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(100*time.Millisecond, func(string) {
		callCount.Add(1)
	})
	defer d.Stop()

	// Fire 10 rapid events; they should coalesce into one.
	for i := 0; i < 10; i++ {
		d.Trigger("photo.jpg")
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
}

func TestDebouncer_FiresAfterLastEvent(t *testing.T) {
	var firedAt atomic.Int64

	d := NewDebouncer(80*time.Millisecond, func(string) {
		firedAt.Store(time.Now().UnixNano())
	})
	defer d.Stop()

	d.Trigger("a.jpg")
	time.Sleep(50 * time.Millisecond)
	last := time.Now()
	d.Trigger("b.jpg")

	time.Sleep(200 * time.Millisecond)
	require.NotZero(t, firedAt.Load())
	assert.GreaterOrEqual(t, time.Duration(firedAt.Load()-last.UnixNano()), 80*time.Millisecond)
}

func TestDebouncer_LastEventWins(t *testing.T) {
	var lastPath atomic.Value

	d := NewDebouncer(50*time.Millisecond, func(path string) {
		lastPath.Store(path)
	})
	defer d.Stop()

	d.Trigger("first.jpg")
	time.Sleep(10 * time.Millisecond)
	d.Trigger("second.jpg")
	time.Sleep(10 * time.Millisecond)
	d.Trigger("third.jpg")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, "third.jpg", lastPath.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(50*time.Millisecond, func(string) {
		callCount.Add(1)
	})

	d.Trigger("a.jpg")
	d.Stop()
	assert.False(t, d.Pending())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), callCount.Load())
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(30*time.Millisecond, func(string) {
		callCount.Add(1)
	})
	defer d.Stop()

	d.Trigger("a.jpg")
	time.Sleep(100 * time.Millisecond)
	d.Trigger("b.jpg")
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(2), callCount.Load())
}

func TestDebouncer_PanicRecovered(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(10*time.Millisecond, func(string) {
		callCount.Add(1)
		panic("boom")
	})
	defer d.Stop()

	d.Trigger("a.jpg")
	time.Sleep(60 * time.Millisecond)
	d.Trigger("b.jpg")
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, int32(2), callCount.Load())
}

// ---------------------------------------------------------------------------
// Coalesce
// ---------------------------------------------------------------------------

func TestCoalesce_BurstYieldsOneSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan Event)
	out := Coalesce(ctx, in, 50*time.Millisecond)

	for i := 0; i < 20; i++ {
		in <- Event{Path: "photos/a.jpg", Op: fsnotify.Write}
	}

	select {
	case p := <-out:
		assert.Equal(t, "photos/a.jpg", p)
	case <-time.After(time.Second):
		t.Fatal("no signal")
	}

	select {
	case p := <-out:
		t.Fatalf("unexpected second signal %q", p)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestCoalesce_SingleSlot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan Event)
	out := Coalesce(ctx, in, 20*time.Millisecond)

	// Three separate bursts while nobody consumes.
	for i := 0; i < 3; i++ {
		in <- Event{Path: "x.jpg"}
		time.Sleep(60 * time.Millisecond)
	}

	assert.Len(t, out, 1)
	<-out

	select {
	case <-out:
		t.Fatal("only one queued signal expected")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestCoalesce_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	in := make(chan Event, 1)
	out := Coalesce(ctx, in, 30*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)

	select {
	case in <- Event{Path: "late.jpg"}:
	default:
	}

	select {
	case <-out:
		t.Fatal("no signal expected after cancel")
	case <-time.After(100 * time.Millisecond):
	}
}

// ---------------------------------------------------------------------------
// loop
// ---------------------------------------------------------------------------

func TestLoop_SerializesRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan string, 1)
	release := make(chan struct{})

	var inFlight, maxInFlight, calls atomic.Int32

	runFn := func(context.Context) (*manifest.Result, error) {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}

		if calls.Add(1) == 1 {
			<-release
		}

		inFlight.Add(-1)

		return &manifest.Result{Count: 1, Changed: true}, nil
	}

	opts := DefaultOptions()
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() { done <- loop(ctx, opts, "/assets", signals, nil, runFn) }()

	signals <- "/assets/a.jpg"
	time.Sleep(30 * time.Millisecond)

	// The first run is blocked; further signals collapse into one slot.
	for i := 0; i < 5; i++ {
		select {
		case signals <- "/assets/b.jpg":
		default:
		}
	}

	close(release)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), maxInFlight.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestLoop_ErrorDoesNotStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan string, 1)
	out := &syncBuffer{}

	var calls atomic.Int32

	runFn := func(context.Context) (*manifest.Result, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("permission denied")
		}

		return &manifest.Result{Count: 3}, nil
	}

	opts := DefaultOptions()
	opts.Out = out

	done := make(chan error, 1)
	go func() { done <- loop(ctx, opts, "/assets", signals, nil, runFn) }()

	signals <- "/assets/a.jpg"
	time.Sleep(30 * time.Millisecond)
	signals <- "/assets/sub/b.jpg"
	time.Sleep(30 * time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, out.String(), "a.jpg → ERROR: permission denied")
	assert.Contains(t, out.String(), "sub/b.jpg → OK (3 items, unchanged)")
	assert.Contains(t, out.String(), "shutting down watcher")
}

func TestLoop_WatcherErrorsLogged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	errs := make(chan error, 1)
	errs <- errors.New("queue overflow")
	close(errs)

	opts := DefaultOptions()
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- loop(ctx, opts, "/assets", make(chan string), errs, func(context.Context) (*manifest.Result, error) {
			return &manifest.Result{}, nil
		})
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

// ---------------------------------------------------------------------------
// isRelevant
// ---------------------------------------------------------------------------

func TestIsRelevant(t *testing.T) {
	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want bool
	}{
		{"image write", "photo.jpg", fsnotify.Write, true},
		{"create event", "new.png", fsnotify.Create, true},
		{"remove event", "old.webp", fsnotify.Remove, true},
		{"rename event", "renamed.jpeg", fsnotify.Rename, true},
		{"non-image still relevant", "notes.txt", fsnotify.Write, true},
		{"hidden image", ".cover.jpg", fsnotify.Create, true},
		{"hidden file", ".DS_Store", fsnotify.Write, true},
		{"hidden swap file", ".photo.jpg.swp", fsnotify.Write, false},
		{"swap file", "file.swp", fsnotify.Write, false},
		{"backup tilde", "file~", fsnotify.Write, false},
		{"emacs hash", "#file#", fsnotify.Write, false},
		{"zero op", "file.jpg", 0, false},
		{"chmod only", "file.jpg", fsnotify.Chmod, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := fsnotify.Event{Name: tt.path, Op: tt.op}
			assert.Equal(t, tt.want, isRelevant(event))
		})
	}
}

// ---------------------------------------------------------------------------
// Source
// ---------------------------------------------------------------------------

func watchedSet(s *Source) map[string]bool {
	watched := make(map[string]bool)
	for _, p := range s.watcher.WatchList() {
		watched[filepath.Clean(p)] = true
	}

	return watched
}

func TestNewSource_Recursive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "photos", "2024"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".thumbs"), 0o750))

	src, err := NewSource(dir)
	require.NoError(t, err)
	defer src.Close()

	assert.True(t, src.Recursive())

	watched := watchedSet(src)
	assert.True(t, watched[dir], "root should be watched")
	assert.True(t, watched[filepath.Join(dir, "photos")])
	assert.True(t, watched[filepath.Join(dir, "photos", "2024")])
	assert.True(t, watched[filepath.Join(dir, ".thumbs")], "hidden directories hold listed images")
}

func TestNewSource_FallbackToTopLevel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b"), 0o750))

	var adds atomic.Int32
	failNested := withAdder(func(w *fsnotify.Watcher, p string) error {
		// Root and the first nested directory succeed, the next one fails.
		if adds.Add(1) > 2 {
			return errors.New("no space left on device")
		}

		return w.Add(p)
	})

	src, err := NewSource(dir, failNested)
	require.NoError(t, err)
	defer src.Close()

	assert.False(t, src.Recursive())
	assert.Equal(t, map[string]bool{dir: true}, watchedSet(src))
}

func TestNewSource_MissingRoot(t *testing.T) {
	_, err := NewSource(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestNewSource_RootIsFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "file.jpg")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))

	_, err := NewSource(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func waitEvent(t *testing.T, src *Source, match func(Event) bool) Event {
	t.Helper()

	deadline := time.After(2 * time.Second)

	for {
		select {
		case ev := <-src.Events():
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestSource_EmitsEventsAndIgnoresOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "manifest.js")

	src, err := NewSource(dir, WithIgnore(out))
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, os.WriteFile(out, []byte("ignored"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("x"), 0o600))

	ev := waitEvent(t, src, func(Event) bool { return true })
	assert.Equal(t, filepath.Join(dir, "a.jpg"), ev.Path)
}

func TestSource_IgnoresWriterTempFiles(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "manifest.js")

	src, err := NewSource(dir, WithIgnore(out))
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".manifest.js.123456.tmp"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".cover.jpg"), []byte("x"), 0o600))

	ev := waitEvent(t, src, func(Event) bool { return true })
	assert.Equal(t, filepath.Join(dir, ".cover.jpg"), ev.Path)
}

func TestSource_WatchesNewDirectories(t *testing.T) {
	dir := t.TempDir()

	src, err := NewSource(dir)
	require.NoError(t, err)
	defer src.Close()

	sub := filepath.Join(dir, "new")
	require.NoError(t, os.Mkdir(sub, 0o750))
	waitEvent(t, src, func(ev Event) bool { return ev.Path == sub })

	nested := filepath.Join(sub, "pic.png")
	require.NoError(t, os.WriteFile(nested, []byte("x"), 0o600))
	waitEvent(t, src, func(ev Event) bool { return ev.Path == nested })
}

func TestSource_CloseEndsStream(t *testing.T) {
	src, err := NewSource(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	select {
	case _, ok := <-src.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events channel not closed")
	}
}

// ---------------------------------------------------------------------------
// Run (integration)
// ---------------------------------------------------------------------------

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 200*time.Millisecond, opts.Debounce)
	assert.False(t, opts.Initial)
	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Out)
}

func TestRun_InvalidRoot(t *testing.T) {
	opts := DefaultOptions()
	opts.Root = filepath.Join(t.TempDir(), "missing")
	opts.Out = io.Discard

	err := Run(context.Background(), opts, func(context.Context) (*manifest.Result, error) {
		return &manifest.Result{}, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watching assets directory")
}

func TestRun_InitialAndShutdown(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())

	var runCount atomic.Int32
	out := &syncBuffer{}

	opts := DefaultOptions()
	opts.Root = dir
	opts.Initial = true
	opts.Debounce = 50 * time.Millisecond
	opts.Out = out

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(context.Context) (*manifest.Result, error) {
			runCount.Add(1)
			return &manifest.Result{Count: 0, Changed: true}, nil
		})
	}()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), runCount.Load())

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not shut down in time")
	}

	assert.True(t, strings.HasPrefix(out.String(), "watching "+dir+" (recursive, debounce=50ms)"))
	assert.Contains(t, out.String(), "(initial) → OK (0 items, updated)")
}

func TestRun_BurstTriggersOneRegeneration(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "photos"), 0o750))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runCount atomic.Int32

	opts := DefaultOptions()
	opts.Root = dir
	opts.Debounce = 100 * time.Millisecond
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(context.Context) (*manifest.Result, error) {
			runCount.Add(1)
			return &manifest.Result{Count: 1}, nil
		})
	}()

	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, "photos", "img"+string(rune('a'+i))+".jpg")
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), runCount.Load(), "burst should coalesce into one regeneration")

	cancel()
	<-done
}

func TestRun_OwnOutputDoesNotRetrigger(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "manifest.js")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runCount atomic.Int32

	opts := DefaultOptions()
	opts.Root = dir
	opts.Ignore = []string{out}
	opts.Initial = true
	opts.Debounce = 30 * time.Millisecond
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(context.Context) (*manifest.Result, error) {
			runCount.Add(1)
			return &manifest.Result{}, os.WriteFile(out, []byte("generated"), 0o600)
		})
	}()

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), runCount.Load())

	cancel()
	<-done
}

func TestRun_HiddenImageTriggersRegeneration(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".thumbs"), 0o750))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runCount atomic.Int32

	opts := DefaultOptions()
	opts.Root = dir
	opts.Ignore = []string{filepath.Join(dir, "manifest.js")}
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(context.Context) (*manifest.Result, error) {
			runCount.Add(1)
			return &manifest.Result{Count: 1}, nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".cover.jpg"), []byte("x"), 0o600))

	require.Eventually(t, func() bool { return runCount.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".thumbs", "a.png"), []byte("x"), 0o600))

	require.Eventually(t, func() bool { return runCount.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
