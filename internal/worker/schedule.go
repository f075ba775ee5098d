package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Enqueuer accepts jobs; *Pool satisfies it
type Enqueuer interface {
	Enqueue(job Job) (bool, error)
}

// Schedule enqueues every job immediately and then once per interval until
// ctx is done or the queue is stopped.
func Schedule(ctx context.Context, q Enqueuer, jobs []Job, every time.Duration, log logrus.FieldLogger) error {
	if every <= 0 {
		return errors.New("schedule interval must be positive")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "scheduler")

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		for _, job := range jobs {
			job.Trigger = "schedule"
			if _, err := q.Enqueue(job); err != nil {
				if errors.Is(err, ErrStopped) {
					return nil
				}
				log.WithError(err).WithField("job", job.String()).Warn("failed to schedule scan")
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
