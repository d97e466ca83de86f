// Package controller owns the regeneration state machine: it starts
// pipeline runs on explicit requests, coalesces rapid parameter changes
// behind a debounce window and makes sure only the newest run can ever
// change the published state.
//
// The lifecycle of one request is
//
//	Idle -> Pending -> Running -> Done | Failed
//
// Selecting a new source resets to Idle. A newer request supersedes the
// active run: its context is cancelled and its eventual result is dropped.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/gifwiggle/internal/config"
	"github.com/ivlev/gifwiggle/internal/engine"
	"github.com/ivlev/gifwiggle/internal/source"
	"github.com/ivlev/gifwiggle/internal/video"
)

// DefaultDebounce is the quiet period after the last parameter change
const DefaultDebounce = 500 * time.Millisecond

// Per-subscriber buffer; a slow reader loses intermediate states, never the latest
const subscriberBuffer = 16

// ErrNoSource is reported as Failed when a run is requested before any source was selected.
var ErrNoSource = errors.New("no source image selected")

type Kind int

const (
	Idle Kind = iota
	Pending
	Running
	Done
	Failed
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is one published snapshot of the controller. Seq increases with
// every transition.
type State struct {
	Kind     Kind
	Params   config.AnimationParameters
	RunID    string
	Artifact *video.Artifact
	Err      error
	Seq      uint64
}

// Run is the token of one pipeline execution
type Run struct {
	ID     string
	Params config.AnimationParameters

	gen    uint64
	cancel context.CancelFunc
}

// Pipeline produces an artifact from a source image
type Pipeline interface {
	Run(ctx context.Context, src *source.Image, params config.AnimationParameters) (*video.Artifact, error)
}

// Timer is the handle returned by Options.AfterFunc
type Timer interface {
	Stop() bool
}

type Options struct {
	// Debounce is the quiet period for parameter changes. Default: 500ms.
	Debounce time.Duration
	Logger   *slog.Logger
	// AfterFunc schedules f after d. Default: time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer
}

type Controller struct {
	pipeline  Pipeline
	debounce  time.Duration
	logger    *slog.Logger
	afterFunc func(time.Duration, func()) Timer

	mu     sync.Mutex
	state  State
	src    *source.Image
	params config.AnimationParameters
	timer  Timer
	gen    uint64
	run    *Run
	subs   map[int]chan State
	nextID int
	closed bool
	wg     sync.WaitGroup

	// onStale is called with the lock held when a superseded run finishes.
	onStale func(*Run)
}

func New(p Pipeline, opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return &Controller{
		pipeline:  p,
		debounce:  opts.Debounce,
		logger:    opts.Logger,
		afterFunc: opts.AfterFunc,
		params:    config.DefaultParameters(),
		subs:      make(map[int]chan State),
	}
}

// RequestGeneration selects src and immediately requests a run with params.
// The returned channel observes every following transition until the
// returned function is called.
func (c *Controller) RequestGeneration(src *source.Image, params config.AnimationParameters) (<-chan State, func()) {
	ch, unsubscribe := c.Subscribe()
	c.SetSource(src)
	c.Generate(params)
	return ch, unsubscribe
}

// Subscribe returns a channel that first receives the current state and
// then each transition in order.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan State, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	ch <- c.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// SetSource selects a new source image, cancelling any work on the previous
// one and discarding its artifact.
func (c *Controller) SetSource(src *source.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.supersedeLocked()
	c.src = src
	c.setStateLocked(State{Kind: Idle, Params: c.params})
}

// Generate is an explicit request: it passes through Pending and starts a
// run right away, superseding any active one.
func (c *Controller) Generate(params config.AnimationParameters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.params = params
	c.supersedeLocked()
	c.setStateLocked(State{Kind: Pending, Params: params})
	c.startRunLocked()
}

// UpdateParameters records params. Once generation has been requested for
// the current source, the change moves the controller to Pending and
// (re)arms the debounce timer; it never starts a run synchronously.
func (c *Controller) UpdateParameters(params config.AnimationParameters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.params = params
	if c.state.Kind == Idle {
		return
	}

	c.supersedeLocked()
	c.setStateLocked(State{Kind: Pending, Params: params})

	gen := c.gen
	c.timer = c.afterFunc(c.debounce, func() { c.fire(gen) })
}

// CancelCurrent cancels the active run and any pending timer and returns to Idle.
func (c *Controller) CancelCurrent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.supersedeLocked()
	c.setStateLocked(State{Kind: Idle, Params: c.params})
}

// Params returns the most recently recorded parameters
func (c *Controller) Params() config.AnimationParameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

func (c *Controller) Current() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close cancels outstanding work, closes every subscription and waits for
// run goroutines to return.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.supersedeLocked()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A later change re-armed the timer or something else superseded it.
	if c.closed || gen != c.gen || c.state.Kind != Pending {
		return
	}
	c.timer = nil
	c.startRunLocked()
}

// supersedeLocked invalidates the active run and the pending timer
func (c *Controller) supersedeLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.run != nil {
		c.logger.Debug("run superseded", "run", c.run.ID)
		c.run.cancel()
		c.run = nil
	}
}

func (c *Controller) startRunLocked() {
	if c.run != nil {
		c.run.cancel()
		c.run = nil
	}
	if c.src == nil {
		c.setStateLocked(State{Kind: Failed, Params: c.params, Err: ErrNoSource})
		return
	}

	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	run := &Run{
		ID:     uuid.NewString(),
		Params: c.params,
		gen:    c.gen,
		cancel: cancel,
	}
	c.run = run
	c.setStateLocked(State{Kind: Running, Params: run.Params, RunID: run.ID})
	c.logger.Debug("run started", "run", run.ID, "frames", run.Params.FrameCount)

	src := c.src
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		art, err := c.pipeline.Run(ctx, src, run.Params)
		c.finish(run, art, err)
	}()
}

func (c *Controller) finish(run *Run, art *video.Artifact, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run.cancel()

	if c.closed || run != c.run || run.gen != c.gen {
		c.logger.Debug("stale result dropped", "run", run.ID, "error", err)
		if c.onStale != nil {
			c.onStale(run)
		}
		return
	}
	c.run = nil

	switch {
	case err == nil:
		c.setStateLocked(State{Kind: Done, Params: run.Params, RunID: run.ID, Artifact: art})
	case errors.Is(err, engine.ErrCancelled) || errors.Is(err, context.Canceled):
		// Cancellation is not a failure.
		c.setStateLocked(State{Kind: Idle, Params: run.Params})
	default:
		c.logger.Warn("run failed", "run", run.ID, "error", err)
		c.setStateLocked(State{Kind: Failed, Params: run.Params, RunID: run.ID, Err: err})
	}
}

func (c *Controller) setStateLocked(s State) {
	s.Seq = c.state.Seq + 1
	c.state = s
	for _, ch := range c.subs {
		publish(ch, s)
	}
}

// publish never blocks: when the buffer is full the oldest state is dropped
func publish(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}
