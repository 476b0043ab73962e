package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TickAction reports what a Tick did.
type TickAction int

const (
	// TickNone means nothing was due.
	TickNone TickAction = iota
	// TickPolled means a status request was started.
	TickPolled
	// TickSkipped means a poll was due but the previous one is outstanding.
	TickSkipped
	// TickStopped means polling has ended for this task.
	TickStopped
)

func (a TickAction) String() string {
	switch a {
	case TickPolled:
		return "polled"
	case TickSkipped:
		return "skipped"
	case TickStopped:
		return "stopped"
	default:
		return "none"
	}
}

// Poller drives one analysis task from upload to a terminal state. At most
// one status request is outstanding at any time.
type Poller struct {
	backend  Backend
	interval time.Duration
	maxPolls int
	observer PollObserver
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	task      Task
	inFlight  bool
	nextPoll  time.Time
	gen       uint64
	cancelled bool
	onChange  func(Task)

	wg sync.WaitGroup
}

// NewPoller creates a poller over backend.
func NewPoller(backend Backend, opts ...Option) *Poller {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Poller{
		backend:  backend,
		interval: cfg.Interval,
		maxPolls: cfg.MaxAttempts,
		observer: cfg.Observer,
		logger:   cfg.Logger.With("component", "analysis.poller"),
		now:      time.Now,
		task:     Task{State: StateIdle},
	}
}

// OnChange registers fn to be called with a copy of the task after every
// state or progress change. fn runs with no locks held.
func (p *Poller) OnChange(fn func(Task)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Task returns a snapshot of the current task.
func (p *Poller) Task() Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.task
}

// Submit uploads the video and starts processing. It blocks for the upload
// only; polling happens on Tick. A failed upload leaves the task Failed with
// a *TransportError.
func (p *Poller) Submit(ctx context.Context, up Upload) error {
	p.mu.Lock()
	if p.cancelled {
		p.mu.Unlock()
		return ErrCancelled
	}
	if s := p.task.State; s == StateUploading || s == StateProcessing {
		p.mu.Unlock()
		return ErrBusy
	}
	p.gen++
	gen := p.gen
	p.task = Task{State: StateUploading, SubmittedAt: p.now()}
	p.mu.Unlock()
	p.notify()

	id, err := p.backend.Submit(ctx, up)

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return ErrCancelled
	}
	if err != nil {
		p.task.State = StateFailed
		p.task.Err = wrapTransport("submit", err)
		err = p.task.Err
		p.mu.Unlock()
		p.logger.Error("submit failed", "error", err)
		p.notify()
		return err
	}
	p.task.ID = id
	p.task.State = StateProcessing
	p.nextPoll = p.now().Add(p.interval)
	p.mu.Unlock()

	p.logger.Info("analysis processing", "task", id)
	p.notify()
	return nil
}

// Tick starts a status poll when one is due. The poll runs in its own
// goroutine; use Wait to block until it has been applied.
func (p *Poller) Tick(ctx context.Context, now time.Time) TickAction {
	p.mu.Lock()

	switch {
	case p.cancelled || p.task.State.Terminal():
		p.mu.Unlock()
		return TickStopped
	case p.task.State != StateProcessing:
		p.mu.Unlock()
		return TickNone
	case p.inFlight:
		p.mu.Unlock()
		return TickSkipped
	case now.Before(p.nextPoll):
		p.mu.Unlock()
		return TickNone
	case p.maxPolls > 0 && p.task.Polls >= p.maxPolls:
		p.task.State = StateFailed
		p.task.Err = fmt.Errorf("%w after %d polls", ErrPollTimeout, p.task.Polls)
		id := p.task.ID
		p.mu.Unlock()
		p.observe("timeout")
		p.logger.Warn("analysis poll limit reached", "task", id)
		p.notify()
		return TickStopped
	}

	p.inFlight = true
	p.task.Polls++
	p.nextPoll = now.Add(p.interval)
	id, gen := p.task.ID, p.gen
	p.wg.Add(1)
	p.mu.Unlock()

	go p.poll(ctx, id, gen)
	return TickPolled
}

func (p *Poller) poll(ctx context.Context, id string, gen uint64) {
	defer p.wg.Done()

	rep, err := p.backend.AnalysisStatus(ctx, id)

	p.mu.Lock()
	p.inFlight = false
	if gen != p.gen || p.cancelled {
		p.mu.Unlock()
		return
	}
	if errors.Is(err, ErrMalformedResult) {
		p.task.State = StateFailed
		p.task.Err = fmt.Errorf("%w: %w", ErrTaskFailed, err)
		p.mu.Unlock()
		p.observe("error")
		p.logger.Error("analysis result unreadable", "task", id, "error", err)
		p.notify()
		return
	}
	if err != nil {
		p.mu.Unlock()
		p.observe("error")
		p.logger.Warn("status poll failed", "task", id, "error", wrapTransport("status", err))
		return
	}

	switch rep.Status {
	case RemoteCompleted:
		p.task.State = StateCompleted
		p.task.Progress = 100
		p.task.Result = rep.Result
	case RemoteFailed:
		p.task.State = StateFailed
		p.task.Err = ErrTaskFailed
		if rep.Error != "" {
			p.task.Err = fmt.Errorf("%w: %s", ErrTaskFailed, rep.Error)
		}
	default:
		p.task.Progress = rep.Progress
	}
	state := p.task.State
	p.mu.Unlock()

	p.observe("ok")
	if state.Terminal() {
		p.logger.Info("analysis finished", "task", id, "state", state)
	}
	p.notify()
}

// Wait blocks until every started poll has been applied or discarded.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// Cancel stops polling for good. Results arriving afterwards are discarded.
func (p *Poller) Cancel() {
	p.mu.Lock()
	p.cancelled = true
	p.gen++
	p.mu.Unlock()
}

// Reset returns a terminal task to Idle so it can be resubmitted.
func (p *Poller) Reset() error {
	p.mu.Lock()
	if !p.task.State.Terminal() && p.task.State != StateIdle {
		p.mu.Unlock()
		return ErrBusy
	}
	p.gen++
	p.task = Task{State: StateIdle}
	p.inFlight = false
	p.mu.Unlock()
	p.notify()
	return nil
}

// Run ticks every interval until the task is terminal, the poller is
// cancelled, or ctx is done. It returns the task's error, if any.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Cancel()
			p.Wait()
			return ctx.Err()
		case now := <-ticker.C:
			if p.Tick(ctx, now) == TickStopped {
				p.Wait()
				t := p.Task()
				if p.isCancelled() && t.Err == nil {
					return ErrCancelled
				}
				return t.Err
			}
		}
	}
}

func (p *Poller) isCancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

func (p *Poller) observe(outcome string) {
	if p.observer != nil {
		p.observer.PollCompleted(outcome)
	}
}

func (p *Poller) notify() {
	p.mu.Lock()
	fn, t := p.onChange, p.task
	p.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

// IsTerminalFailure reports whether err means the job itself failed, as
// opposed to a transport problem worth retrying.
func IsTerminalFailure(err error) bool {
	return errors.Is(err, ErrTaskFailed)
}
