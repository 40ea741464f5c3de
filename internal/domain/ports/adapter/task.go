package adapter

import "context"

// Job is a unit of background work producing a text result.
type Job func(ctx context.Context) (string, error)

// TaskHandle observes one submitted job.
type TaskHandle interface {
	// Ready reports whether the job has finished. It never blocks.
	Ready() bool
	// Done is closed once the job has finished.
	Done() <-chan struct{}
	// Result returns the job output. Before Ready it returns domain.ErrTaskNotReady.
	Result() (string, error)
}

// TaskRunner executes jobs off the caller's goroutine.
type TaskRunner interface {
	Submit(job Job) (TaskHandle, error)
}
