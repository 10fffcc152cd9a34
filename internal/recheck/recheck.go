// Package recheck periodically enqueues a Full check task even in the
// absence of filesystem changes, so stale external state (a dependency
// published upstream, a clock-based lint rule) still gets re-evaluated.
package recheck

import (
	"github.com/robfig/cron/v3"

	"github.com/dxhq/dx/internal/logging"
	"github.com/dxhq/dx/internal/taskqueue"
)

// Scheduler drives a single cron entry that pushes a Full task onto a
// taskqueue.Queue on every tick.
type Scheduler struct {
	cron    *cron.Cron
	queue   *taskqueue.Queue
	entryID cron.EntryID
}

// New creates a Scheduler that pushes onto queue.
func New(queue *taskqueue.Queue) *Scheduler {
	return &Scheduler{
		cron:  cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		queue: queue,
	}
}

// Start registers spec and starts the cron scheduler. spec is a standard
// 5-field cron expression or a descriptor like "@every 10m".
func (s *Scheduler) Start(spec string) error {
	entryID, err := s.cron.AddFunc(spec, s.fire)
	if err != nil {
		return err
	}
	s.entryID = entryID
	s.cron.Start()
	return nil
}

// Stop stops the cron scheduler. It blocks until the running entry (if
// any) completes.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) fire() {
	task := s.queue.Push(taskqueue.Full, nil, 0)
	logging.Op().Info("periodic recheck enqueued", "task_id", task.ID)
}
