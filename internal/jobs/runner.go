// Package jobs admits render tasks per account and waits for their results.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bluemap-render/internal/render"
)

var (
	// ErrQueueFull is returned when the account already has max_concurrent + queue_limit tasks.
	ErrQueueFull = errors.New("queue full")
	// ErrTimedOut is returned when no result arrives before the timeout.
	ErrTimedOut = errors.New("render timed out")
)

// Limits bounds one account's tasks.
type Limits struct {
	MaxConcurrent int
	QueueLimit    int
}

// Enqueuer hands queue items to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, item render.QueueItem) error
}

// Runner tracks running and waiting tasks per account.
type Runner struct {
	queue  Enqueuer
	store  render.JobStore
	ids    render.IDGenerator
	clock  render.Clock
	logger *zap.Logger

	mu       sync.Mutex
	accounts map[int64]*usage

	done      chan struct{}
	closeOnce sync.Once
}

type usage struct {
	running int
	waiting int
	// wake is closed and replaced whenever a slot frees up.
	wake chan struct{}
}

// NewRunner constructs a Runner.
func NewRunner(
	queue Enqueuer,
	store render.JobStore,
	ids render.IDGenerator,
	clock render.Clock,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		queue:    queue,
		store:    store,
		ids:      ids,
		clock:    clock,
		logger:   logger,
		accounts: make(map[int64]*usage),
		done:     make(chan struct{}),
	}
}

// Close stops waiting on jobs abandoned after a timeout and frees their slots.
// Call it once the worker pool has shut down.
func (r *Runner) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

// Run admits task for accountID, waits for a slot, queues it, and waits for the result.
// The timeout covers slot waiting, queueing and rendering.
func (r *Runner) Run(
	ctx context.Context,
	accountID int64,
	task render.Task,
	limits Limits,
	timeout time.Duration,
) (render.Result, error) {
	if limits.MaxConcurrent <= 0 {
		limits.MaxConcurrent = 1
	}
	if limits.QueueLimit < 0 {
		limits.QueueLimit = 0
	}

	deadline := r.clock.Now().Add(timeout)
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.acquire(waitCtx, accountID, limits); err != nil {
		return render.Result{}, err
	}

	jobID, err := r.ids.NewID()
	if err != nil {
		r.release(accountID)
		return render.Result{}, fmt.Errorf("generate job id: %w", err)
	}

	job := render.Job{
		ID:        jobID,
		Status:    render.JobStatusQueued,
		Task:      task,
		Submitted: r.clock.Now(),
	}
	if err := r.store.CreateJob(waitCtx, job); err != nil {
		r.release(accountID)
		return render.Result{}, fmt.Errorf("create job: %w", err)
	}

	reply := make(chan render.Result, 1)
	item := render.QueueItem{JobID: jobID, Task: task, Deadline: deadline, Reply: reply}
	if err := r.queue.Enqueue(waitCtx, item); err != nil {
		r.release(accountID)
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return render.Result{}, ErrTimedOut
		}
		return render.Result{}, fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	r.logger.Info("render queued",
		zap.String("job_id", jobID),
		zap.Int64("account_id", accountID),
		zap.String("to", task.To),
	)

	select {
	case res := <-reply:
		r.release(accountID)
		if res.Err != nil {
			return res, res.Err
		}
		return res, nil
	case <-waitCtx.Done():
		// The slot stays held until the worker lets go of the job.
		go func() {
			select {
			case <-reply:
			case <-r.done:
			}
			r.release(accountID)
		}()
		if ctx.Err() != nil {
			return render.Result{JobID: jobID}, fmt.Errorf("await job %s: %w", jobID, ctx.Err())
		}
		return render.Result{JobID: jobID}, ErrTimedOut
	}
}

// Load reports the running and waiting task counts for accountID.
func (r *Runner) Load(accountID int64) (running, waiting int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.accounts[accountID]; ok {
		return u.running, u.waiting
	}
	return 0, 0
}

func (r *Runner) acquire(ctx context.Context, accountID int64, limits Limits) error {
	r.mu.Lock()
	u, ok := r.accounts[accountID]
	if !ok {
		u = &usage{wake: make(chan struct{})}
		r.accounts[accountID] = u
	}
	if u.running+u.waiting >= limits.MaxConcurrent+limits.QueueLimit {
		r.mu.Unlock()
		return ErrQueueFull
	}
	if u.running < limits.MaxConcurrent {
		u.running++
		r.mu.Unlock()
		return nil
	}
	u.waiting++
	for {
		wake := u.wake
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			r.mu.Lock()
			u.waiting--
			r.forgetIdle(accountID, u)
			r.mu.Unlock()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrTimedOut
			}
			return fmt.Errorf("await slot: %w", ctx.Err())
		case <-wake:
		}

		r.mu.Lock()
		if u.running < limits.MaxConcurrent {
			u.waiting--
			u.running++
			r.mu.Unlock()
			return nil
		}
	}
}

func (r *Runner) release(accountID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.accounts[accountID]
	if !ok {
		return
	}
	u.running--
	close(u.wake)
	u.wake = make(chan struct{})
	r.forgetIdle(accountID, u)
}

// forgetIdle must be called with r.mu held.
func (r *Runner) forgetIdle(accountID int64, u *usage) {
	if u.running == 0 && u.waiting == 0 {
		delete(r.accounts, accountID)
	}
}
