package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/adhocore/gronx"
)

// Task is one scheduled unit of work.
type Task func(ctx context.Context) error

// Scheduler runs a Task at every tick of a cron expression until its context ends.
type Scheduler struct {
	name  string
	expr  string
	task  Task
	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func NewScheduler(name, expr string, task Task) (*Scheduler, error) {
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("jobs: invalid cron expression %q for %s", expr, name)
	}
	return &Scheduler{name: name, expr: expr, task: task, now: time.Now, after: time.After}, nil
}

// Next returns the first tick strictly after ref.
func (s *Scheduler) Next(ref time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, ref, false)
}

// Run blocks until ctx is done. Runs never overlap: a slow task delays the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("job %s scheduled cron=%q", s.name, s.expr)
	for {
		next, err := s.Next(s.now().UTC())
		if err != nil {
			log.Printf("job %s: next tick: %v", s.name, err)
			select {
			case <-s.after(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-s.after(time.Until(next)):
		case <-ctx.Done():
			log.Printf("job %s stopping", s.name)
			return
		}

		if err := s.task(ctx); err != nil {
			log.Printf("job %s failed: %v", s.name, err)
		}
	}
}
