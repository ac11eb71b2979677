// timer/timer.go
package timer

import (
	"container/heap"
	"time"
)

// TimerTask is a callback due at a point of the scheduler's virtual time.
type TimerTask struct {
	Id       int64
	Execute  time.Duration
	Interval time.Duration
	Callback func()
	seq      int64
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	if q[i].Execute == q[j].Execute {
		return q[i].seq < q[j].seq
	}
	return q[i].Execute < q[j].Execute
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// Scheduler 定时任务队列，由调用方的 tick 驱动，回调在调用 Advance 的 goroutine 上执行。
// It is not safe for concurrent use; the owner serialises access.
type Scheduler struct {
	queue  TimerQueue
	now    time.Duration
	nextId int64
	seq    int64
}

func NewScheduler() *Scheduler {
	s := &Scheduler{
		queue:  make(TimerQueue, 0),
		nextId: 1,
	}
	heap.Init(&s.queue)
	return s
}

// AddTimer schedules callback after delay. A positive interval makes it repeat.
func (s *Scheduler) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	s.seq++
	task := &TimerTask{
		Id:       s.nextId,
		Execute:  s.now + delay,
		Interval: interval,
		Callback: callback,
		seq:      s.seq,
	}
	s.nextId++

	heap.Push(&s.queue, task)
	return task.Id
}

func (s *Scheduler) RemoveTimer(timerId int64) {
	for i, task := range s.queue {
		if task.Id == timerId {
			heap.Remove(&s.queue, i)
			break
		}
	}
}

// Advance moves virtual time forward by dt and runs every task that became due,
// in deadline order. Callbacks may add or remove timers.
func (s *Scheduler) Advance(dt time.Duration) {
	if dt > 0 {
		s.now += dt
	}

	for s.queue.Len() > 0 {
		task := s.queue[0]
		if task.Execute > s.now {
			break
		}

		heap.Pop(&s.queue)
		if task.Interval > 0 {
			s.seq++
			task.Execute += task.Interval
			task.seq = s.seq
			heap.Push(&s.queue, task)
		}
		task.Callback()
	}
}

func (s *Scheduler) Len() int {
	return s.queue.Len()
}

// Clear drops every pending task.
func (s *Scheduler) Clear() {
	s.queue = s.queue[:0]
}
