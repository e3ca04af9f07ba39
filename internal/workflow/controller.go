// Package workflow sequences the virtual try-on interaction: capture the
// person photo, capture the garment, call the image synthesis provider and
// present the result or recover from its failure.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/metrics"
)

const (
	// TimeoutMessage is recorded when the provider does not answer in time.
	TimeoutMessage = "Image synthesis timed out. Please try again."
	// FailureMessage is recorded when the provider fails without a description.
	FailureMessage = "Image processing failed. Please try again."
)

// ErrClosed is returned by mutators once the controller has been closed.
var ErrClosed = errors.New("workflow: session closed")

var errEmptyResult = errors.New("provider returned an empty image")

// Synthesizer is the image synthesis provider: given a person and a garment
// it produces the composited try-on image.
type Synthesizer interface {
	Synthesize(ctx context.Context, person, clothing domain.Image) (domain.Image, error)
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, person, clothing domain.Image) (domain.Image, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, person, clothing domain.Image) (domain.Image, error) {
	return f(ctx, person, clothing)
}

// Options configures a Controller.
type Options struct {
	ID string
	// Timeout bounds a single synthesis call. Zero means no bound.
	Timeout time.Duration
	Logger  *infra.Logger
	// OnResult is invoked outside the controller lock every time a synthesis
	// result is applied to the session.
	OnResult func(domain.Session)
}

// Controller owns the state of one session. All mutators are safe for
// concurrent use; the synthesis call runs on its own goroutine and its
// outcome is applied only if the session generation is unchanged.
type Controller struct {
	id       string
	synth    Synthesizer
	timeout  time.Duration
	logger   *infra.Logger
	onResult func(domain.Session)

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu         sync.Mutex
	step       domain.Step
	person     *domain.Image
	clothing   *domain.Image
	result     *domain.Image
	lastError  string
	generation uint64
	cancel     context.CancelFunc
	subs       map[int]chan domain.Session
	nextSub    int
	closed     bool
}

// New creates a controller in the AwaitingPerson step. Cancelling ctx
// cancels any synthesis call the controller starts.
func New(ctx context.Context, synth Synthesizer, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	ctx, stop := context.WithCancel(ctx)
	return &Controller{
		id:       opts.ID,
		synth:    synth,
		timeout:  opts.Timeout,
		logger:   logger,
		onResult: opts.OnResult,
		ctx:      ctx,
		stop:     stop,
		step:     domain.StepAwaitingPerson,
		subs:     make(map[int]chan domain.Session),
	}
}

func (c *Controller) ID() string { return c.id }

// Snapshot returns the current session state.
func (c *Controller) Snapshot() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SubmitPersonImage stores the person photo and advances to AwaitingClothing.
// An empty image leaves the session untouched.
func (c *Controller) SubmitPersonImage(img domain.Image) error {
	if img.IsEmpty() {
		return domain.ErrEmptyImage
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(domain.StepAwaitingPerson, "submit person image"); err != nil {
		return err
	}
	c.person = &img
	c.lastError = ""
	c.transitionLocked(domain.StepAwaitingClothing)
	return nil
}

// SubmitClothingImage stores the garment, moves to Synthesizing and starts
// exactly one synthesis call. It returns as soon as the call is dispatched.
func (c *Controller) SubmitClothingImage(img domain.Image) error {
	if img.IsEmpty() {
		return domain.ErrEmptyImage
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(domain.StepAwaitingClothing, "submit clothing image"); err != nil {
		return err
	}
	c.clothing = &img
	c.lastError = ""
	c.generation++
	gen := c.generation

	var ctx context.Context
	var cancel context.CancelFunc
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.timeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	c.cancel = cancel

	person := *c.person
	c.wg.Add(1)
	go c.synthesize(ctx, cancel, gen, person, img)

	metrics.TryOnsStarted.Inc()
	c.transitionLocked(domain.StepSynthesizing)
	return nil
}

// TryAnotherGarment keeps the person photo and returns to AwaitingClothing.
func (c *Controller) TryAnotherGarment() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(domain.StepShowingResult, "try another garment"); err != nil {
		return err
	}
	c.clothing = nil
	c.result = nil
	c.lastError = ""
	c.transitionLocked(domain.StepAwaitingClothing)
	return nil
}

// Reset clears the session and returns to AwaitingPerson. A synthesis call
// still in flight is cancelled and its eventual outcome is dropped.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.person = nil
	c.clothing = nil
	c.result = nil
	c.lastError = ""
	c.transitionLocked(domain.StepAwaitingPerson)
}

// Subscribe returns a channel that receives the latest snapshot after every
// change, starting with the current one. Slow readers only ever see the most
// recent snapshot. The returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan domain.Session, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan domain.Session, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()

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

// Wait blocks until every synthesis call started by the controller returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels outstanding work and closes every subscription. Further
// submissions fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.stop()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

func (c *Controller) synthesize(ctx context.Context, cancel context.CancelFunc, gen uint64, person, clothing domain.Image) {
	defer c.wg.Done()
	defer cancel()

	start := time.Now()
	result, err := c.invoke(ctx, person, clothing)
	metrics.SynthesisDuration.Observe(time.Since(start).Seconds())
	c.complete(gen, result, err)
}

func (c *Controller) invoke(ctx context.Context, person, clothing domain.Image) (result domain.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("synthesis panic: %v", r)
		}
	}()
	return c.synth.Synthesize(ctx, person, clothing)
}

func (c *Controller) complete(gen uint64, result domain.Image, err error) {
	c.mu.Lock()
	if gen != c.generation || c.step != domain.StepSynthesizing {
		c.mu.Unlock()
		metrics.SynthesisTotal.WithLabelValues(metrics.OutcomeDiscarded).Inc()
		c.logger.Debug().
			Str("session_id", c.id).
			Uint64("generation", gen).
			Msg("workflow: discarded stale synthesis response")
		return
	}
	c.cancel = nil
	if err == nil && result.IsEmpty() {
		err = errEmptyResult
	}
	if err != nil {
		c.clothing = nil
		c.result = nil
		c.lastError = failureMessage(err)
		c.transitionLocked(domain.StepAwaitingClothing)
		c.mu.Unlock()
		metrics.SynthesisTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		c.logger.Warn().
			Err(err).
			Str("session_id", c.id).
			Uint64("generation", gen).
			Msg("workflow: synthesis failed")
		return
	}
	c.result = &result
	c.transitionLocked(domain.StepShowingResult)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	metrics.SynthesisTotal.WithLabelValues(metrics.OutcomeSucceeded).Inc()
	if c.onResult != nil {
		c.onResult(snap)
	}
}

func (c *Controller) requireLocked(want domain.Step, op string) error {
	if c.closed {
		return ErrClosed
	}
	if c.step != want {
		return fmt.Errorf("%s in step %s: %w", op, c.step, domain.ErrInvalidTransition)
	}
	return nil
}

func (c *Controller) transitionLocked(to domain.Step) {
	c.logger.Debug().
		Str("session_id", c.id).
		Str("from", string(c.step)).
		Str("to", string(to)).
		Uint64("generation", c.generation).
		Msg("workflow: transition")
	c.step = to
	c.publishLocked()
}

func (c *Controller) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// Replace the unread snapshot; this goroutine is the only sender.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (c *Controller) snapshotLocked() domain.Session {
	return domain.Session{
		ID:         c.id,
		Step:       c.step,
		Person:     c.person,
		Clothing:   c.clothing,
		Result:     c.result,
		LastError:  c.lastError,
		Generation: c.generation,
	}
}

func failureMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutMessage
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return FailureMessage
	}
	return msg
}
