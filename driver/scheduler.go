package driver

import (
	"container/heap"
	"time"
)

// Action is a deferred step run by the scheduler.
type Action func() error

type scheduled struct {
	deadline time.Duration
	seq      uint64
	action   Action
}

type actionQueue []*scheduled

func (q actionQueue) Len() int { return len(q) }

func (q actionQueue) Less(i, j int) bool {
	if q[i].deadline != q[j].deadline {
		return q[i].deadline < q[j].deadline
	}
	return q[i].seq < q[j].seq
}

func (q actionQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *actionQueue) Push(x interface{}) { *q = append(*q, x.(*scheduled)) }

func (q *actionQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Scheduler orders actions on a virtual clock. Actions with the same deadline
// run in the order they were scheduled. It is not safe for concurrent use;
// the driver guards it with its own lock.
type Scheduler struct {
	now   time.Duration
	seq   uint64
	queue actionQueue
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Now returns the virtual time elapsed since the scheduler was created.
func (s *Scheduler) Now() time.Duration { return s.now }

// Len returns the number of pending actions.
func (s *Scheduler) Len() int { return s.queue.Len() }

// Schedule queues action to run delay after the current virtual time.
// Negative delays are treated as zero.
func (s *Scheduler) Schedule(delay time.Duration, action Action) {
	if delay < 0 {
		delay = 0
	}
	s.seq++
	heap.Push(&s.queue, &scheduled{deadline: s.now + delay, seq: s.seq, action: action})
}

// next pops the earliest action due at or before until and moves the clock to
// its deadline. It returns nil when nothing is due.
func (s *Scheduler) next(until time.Duration) Action {
	if s.queue.Len() == 0 || s.queue[0].deadline > until {
		return nil
	}
	item := heap.Pop(&s.queue).(*scheduled)
	if item.deadline > s.now {
		s.now = item.deadline
	}
	return item.action
}

// settle moves the clock forward to until once every due action has run.
func (s *Scheduler) settle(until time.Duration) {
	if until > s.now {
		s.now = until
	}
}

// Advance runs every action due within d of the current virtual time, in
// deadline order, and stops at the first error.
func (s *Scheduler) Advance(d time.Duration) error {
	until := s.now + d
	for {
		action := s.next(until)
		if action == nil {
			break
		}
		if err := action(); err != nil {
			return err
		}
	}
	s.settle(until)
	return nil
}
