package csvbatch

import (
	"context"
	"fmt"
	"sync"
)

// Setup builds the runner inside the job goroutine, so configuration errors are
// reported through the observer like any other failure.
type Setup func(ctx context.Context) (*Runner, error)

// Job is one background run. Stop requests a cooperative stop; Wait blocks until the
// observer has been told Completed.
type Job struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	running bool
	summary Summary
	err     error
}

// Start launches the run on its own goroutine. observer receives Completed exactly once,
// whether the run finishes, is stopped, or fails during setup.
func Start(parent context.Context, setup Setup, observer Observer) *Job {
	if observer == nil {
		observer = nopObserver{}
	}
	ctx, cancel := context.WithCancel(parent)
	job := &Job{cancel: cancel, done: make(chan struct{}), running: true}
	notifier := &onceObserver{Observer: observer}

	go func() {
		defer close(job.done)
		defer cancel()
		defer notifier.Completed()

		summary, err := job.run(ctx, setup, notifier)

		job.mu.Lock()
		job.running = false
		job.summary = summary
		job.err = err
		job.mu.Unlock()
	}()
	return job
}

func (j *Job) run(ctx context.Context, setup Setup, observer Observer) (summary Summary, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("run panicked: %v", recovered)
			observer.Log(err.Error())
		}
	}()
	runner, setupErr := setup(ctx)
	if setupErr != nil {
		observer.Log(fmt.Sprintf("Setup failed: %v", setupErr))
		return Summary{}, setupErr
	}
	return runner.Run(ctx, observer)
}

// Stop asks the run to stop at its next checkpoint. It does not wait.
func (j *Job) Stop() { j.cancel() }

// Running reports whether the worker goroutine is still active.
func (j *Job) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// Done is closed after Completed has been delivered.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the run ends and returns its summary and setup error, if any.
func (j *Job) Wait() (Summary, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.summary, j.err
}
