package controller

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/gifwiggle/internal/config"
	"github.com/ivlev/gifwiggle/internal/engine"
	"github.com/ivlev/gifwiggle/internal/source"
	"github.com/ivlev/gifwiggle/internal/video"
)

func testSource() *source.Image {
	return source.NewImage("square", image.NewNRGBA(image.Rect(0, 0, 8, 8)))
}

func paramsWithFrames(n int) config.AnimationParameters {
	p := config.DefaultParameters()
	p.FrameCount = n
	return p
}

// fakeClock fires scheduled callbacks only when advanced
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves time forward to `to`, firing due timers in order
func (c *fakeClock) Advance(to time.Duration) {
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at > to {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			c.now = to
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type runCall struct {
	params config.AnimationParameters
	at     time.Duration
}

// fakePipeline reports each call and returns an artifact tagged with the frame count
type fakePipeline struct {
	clock *fakeClock
	calls chan runCall
	err   error
}

func (p *fakePipeline) Run(ctx context.Context, src *source.Image, params config.AnimationParameters) (*video.Artifact, error) {
	var at time.Duration
	if p.clock != nil {
		at = p.clock.Now()
	}
	p.calls <- runCall{params: params, at: at}
	if p.err != nil {
		return nil, p.err
	}
	return &video.Artifact{Data: make([]byte, params.FrameCount), SizeBytes: params.FrameCount, Format: video.FormatGIF}, nil
}

func waitFor(t *testing.T, ch <-chan State, kind Kind) State {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				t.Fatalf("Subscription closed while waiting for %s", kind)
			}
			if s.Kind == kind {
				return s
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for %s", kind)
		}
	}
}

func TestGenerateTransitions(t *testing.T) {
	p := &fakePipeline{calls: make(chan runCall, 4)}
	c := New(p, Options{})
	defer c.Close()

	ch, unsubscribe := c.RequestGeneration(testSource(), paramsWithFrames(7))
	defer unsubscribe()

	var kinds []Kind
	for s := range ch {
		kinds = append(kinds, s.Kind)
		if s.Kind == Done {
			if s.Artifact == nil || s.Artifact.SizeBytes != 7 {
				t.Errorf("Unexpected artifact %+v", s.Artifact)
			}
			if s.RunID == "" {
				t.Error("Expected a run id")
			}
			break
		}
	}

	want := []Kind{Idle, Idle, Pending, Running, Done}
	if len(kinds) != len(want) {
		t.Fatalf("Transitions = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("Transitions = %v, want %v", kinds, want)
		}
	}
}

func TestFailureSurfaces(t *testing.T) {
	p := &fakePipeline{calls: make(chan runCall, 4), err: video.ErrBudgetUnreachable}
	c := New(p, Options{})
	defer c.Close()

	ch, unsubscribe := c.RequestGeneration(testSource(), paramsWithFrames(3))
	defer unsubscribe()

	s := waitFor(t, ch, Failed)
	if !errors.Is(s.Err, video.ErrBudgetUnreachable) {
		t.Errorf("Expected ErrBudgetUnreachable, got %v", s.Err)
	}
}

func TestCancelledRunIsNotFailure(t *testing.T) {
	p := &fakePipeline{calls: make(chan runCall, 4), err: engine.ErrCancelled}
	c := New(p, Options{})
	defer c.Close()

	ch, unsubscribe := c.RequestGeneration(testSource(), paramsWithFrames(3))
	defer unsubscribe()

	waitFor(t, ch, Running)
	s := waitFor(t, ch, Idle)
	if s.Err != nil {
		t.Errorf("Cancellation leaked an error: %v", s.Err)
	}
}

func TestGenerateWithoutSource(t *testing.T) {
	c := New(&fakePipeline{calls: make(chan runCall, 1)}, Options{})
	defer c.Close()

	c.Generate(paramsWithFrames(3))
	if s := c.Current(); s.Kind != Failed || !errors.Is(s.Err, ErrNoSource) {
		t.Errorf("Expected Failed(ErrNoSource), got %s %v", s.Kind, s.Err)
	}
}

// gatedPipeline blocks each run until its gate is released and ignores cancellation
type gatedPipeline struct {
	mu      sync.Mutex
	gates   map[int]chan error
	started chan int
}

func newGatedPipeline() *gatedPipeline {
	return &gatedPipeline{gates: make(map[int]chan error), started: make(chan int, 8)}
}

func (p *gatedPipeline) gate(frames int) chan error {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.gates[frames]
	if !ok {
		g = make(chan error, 1)
		p.gates[frames] = g
	}
	return g
}

func (p *gatedPipeline) Run(ctx context.Context, src *source.Image, params config.AnimationParameters) (*video.Artifact, error) {
	p.started <- params.FrameCount
	if err := <-p.gate(params.FrameCount); err != nil {
		return nil, err
	}
	return &video.Artifact{SizeBytes: params.FrameCount, Format: video.FormatGIF}, nil
}

func TestSupersededRunNeverTransitions(t *testing.T) {
	tests := []struct {
		name   string
		result error
	}{
		{"stale success", nil},
		{"stale failure", video.ErrEncode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newGatedPipeline()
			c := New(p, Options{})
			defer c.Close()

			stale := make(chan string, 1)
			c.onStale = func(r *Run) { stale <- r.ID }

			ch, unsubscribe := c.RequestGeneration(testSource(), paramsWithFrames(1))
			defer unsubscribe()
			runA := waitFor(t, ch, Running)
			<-p.started

			c.Generate(paramsWithFrames(2))
			runB := waitFor(t, ch, Running)
			<-p.started

			p.gate(2) <- nil
			done := waitFor(t, ch, Done)
			if done.RunID != runB.RunID || done.Artifact.SizeBytes != 2 {
				t.Fatalf("Expected Done from run B, got %+v", done)
			}

			p.gate(1) <- tt.result
			select {
			case id := <-stale:
				if id != runA.RunID {
					t.Errorf("Dropped run %s, want %s", id, runA.RunID)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Run A never finished")
			}

			if s := c.Current(); s.Seq != done.Seq || s.Kind != Done || s.RunID != runB.RunID {
				t.Errorf("Run A changed state after run B: %+v", s)
			}
		})
	}
}

func TestCancelCurrent(t *testing.T) {
	p := newGatedPipeline()
	c := New(p, Options{})
	defer c.Close()

	stale := make(chan string, 1)
	c.onStale = func(r *Run) { stale <- r.ID }

	ch, unsubscribe := c.RequestGeneration(testSource(), paramsWithFrames(1))
	defer unsubscribe()
	waitFor(t, ch, Running)
	<-p.started

	c.CancelCurrent()
	if s := c.Current(); s.Kind != Idle {
		t.Fatalf("Expected Idle after cancel, got %s", s.Kind)
	}

	p.gate(1) <- nil
	<-stale
	if s := c.Current(); s.Kind != Idle || s.Artifact != nil {
		t.Errorf("Cancelled run leaked into state: %+v", s)
	}
}

func TestSetSourceDiscardsArtifact(t *testing.T) {
	p := &fakePipeline{calls: make(chan runCall, 4)}
	c := New(p, Options{})
	defer c.Close()

	ch, unsubscribe := c.RequestGeneration(testSource(), paramsWithFrames(3))
	defer unsubscribe()
	waitFor(t, ch, Done)

	c.SetSource(testSource())
	if s := c.Current(); s.Kind != Idle || s.Artifact != nil {
		t.Errorf("Expected Idle without artifact, got %+v", s)
	}
}

func TestDebounceCoalescing(t *testing.T) {
	clock := &fakeClock{}
	p := &fakePipeline{clock: clock, calls: make(chan runCall, 8)}
	c := New(p, Options{Debounce: 500 * time.Millisecond, AfterFunc: clock.AfterFunc})
	defer c.Close()

	ch, unsubscribe := c.RequestGeneration(testSource(), paramsWithFrames(4))
	defer unsubscribe()
	<-p.calls
	waitFor(t, ch, Done)

	c.UpdateParameters(paramsWithFrames(10))
	clock.Advance(100 * time.Millisecond)
	c.UpdateParameters(paramsWithFrames(11))
	clock.Advance(150 * time.Millisecond)
	c.UpdateParameters(paramsWithFrames(12))

	clock.Advance(649 * time.Millisecond)
	if s := c.Current(); s.Kind != Pending || s.Params.FrameCount != 12 {
		t.Fatalf("Expected Pending(12) before the window closes, got %s(%d)", s.Kind, s.Params.FrameCount)
	}
	select {
	case call := <-p.calls:
		t.Fatalf("Run started early at %v", call.at)
	default:
	}

	clock.Advance(650 * time.Millisecond)
	select {
	case call := <-p.calls:
		if call.params.FrameCount != 12 {
			t.Errorf("Run used frame count %d, want 12", call.params.FrameCount)
		}
		if call.at != 650*time.Millisecond {
			t.Errorf("Run started at %v, want 650ms", call.at)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Debounced run never started")
	}
	if s := waitFor(t, ch, Done); s.Artifact.SizeBytes != 12 {
		t.Errorf("Done artifact from wrong params: %d", s.Artifact.SizeBytes)
	}

	clock.Advance(5 * time.Second)
	select {
	case call := <-p.calls:
		t.Fatalf("Unexpected extra run with %d frames", call.params.FrameCount)
	default:
	}
}

func TestUpdateParametersWhileIdle(t *testing.T) {
	clock := &fakeClock{}
	p := &fakePipeline{clock: clock, calls: make(chan runCall, 2)}
	c := New(p, Options{AfterFunc: clock.AfterFunc})
	defer c.Close()

	c.SetSource(testSource())
	c.UpdateParameters(paramsWithFrames(9))

	if s := c.Current(); s.Kind != Idle {
		t.Errorf("Expected Idle, got %s", s.Kind)
	}
	if n := clock.Active(); n != 0 {
		t.Errorf("Expected no timer, got %d", n)
	}

	// The stored params are used by the next explicit request.
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()
	c.Generate(c.Params())
	if call := <-p.calls; call.params.FrameCount != 9 {
		t.Errorf("Generate used %d frames, want 9", call.params.FrameCount)
	}
	waitFor(t, ch, Done)
}

func TestUpdateParametersCancelsRunningRun(t *testing.T) {
	clock := &fakeClock{}
	p := newGatedPipeline()
	c := New(p, Options{AfterFunc: clock.AfterFunc})
	defer c.Close()

	stale := make(chan string, 1)
	c.onStale = func(r *Run) { stale <- r.ID }

	ch, unsubscribe := c.RequestGeneration(testSource(), paramsWithFrames(1))
	defer unsubscribe()
	waitFor(t, ch, Running)
	<-p.started

	c.UpdateParameters(paramsWithFrames(2))
	if s := c.Current(); s.Kind != Pending {
		t.Fatalf("Expected Pending, got %s", s.Kind)
	}

	p.gate(1) <- nil
	<-stale
	if s := c.Current(); s.Kind != Pending {
		t.Errorf("Superseded run moved state to %s", s.Kind)
	}

	clock.Advance(DefaultDebounce)
	if got := <-p.started; got != 2 {
		t.Errorf("Debounced run used %d frames, want 2", got)
	}
	p.gate(2) <- nil
	waitFor(t, ch, Done)
}

func TestClose(t *testing.T) {
	c := New(&fakePipeline{calls: make(chan runCall, 1)}, Options{})
	ch, _ := c.Subscribe()
	<-ch

	c.Close()
	if _, ok := <-ch; ok {
		t.Error("Expected subscription to be closed")
	}
	c.Generate(paramsWithFrames(2))
	if s := c.Current(); s.Kind != Idle {
		t.Errorf("Closed controller changed state to %s", s.Kind)
	}
}
