// Package scheduler coordinates the capture run: a shared task queue
// consumed by one worker per sandbox, retry-on-failure with a fixed
// budget, and per-batch accounting.
package scheduler

import (
	"sync"

	"github.com/chuanzhoupan/goingest/internal/domain"
)

// TaskQueue is a pool of pending jobs shared by all workers. It tracks
// outstanding work the way a join barrier does: every Push and Requeue
// raises the outstanding count, every TaskDone lowers it, and Join
// blocks until the count reaches zero. No ordering is guaranteed once
// retries interleave.
type TaskQueue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	jobs        []domain.Job
	outstanding int
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue() *TaskQueue {
	q := &TaskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a freshly submitted job.
func (q *TaskQueue) Push(job domain.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	q.outstanding++
}

// Requeue puts a failed job back for another worker to pick up. The
// caller still owes a TaskDone for the pop that failed.
func (q *TaskQueue) Requeue(job domain.Job) {
	q.Push(job)
}

// TryPop removes a job without blocking. The second return is false
// when the queue is empty, which ends the calling worker's pass.
func (q *TaskQueue) TryPop() (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return domain.Job{}, false
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, true
}

// TaskDone marks one popped job as finished for this iteration. A
// requeued job was already re-counted by Requeue, so the balance only
// reaches zero once every job has a terminal outcome.
func (q *TaskQueue) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.outstanding--
	if q.outstanding <= 0 {
		q.cond.Broadcast()
	}
}

// Join blocks until every submitted job has been fully processed.
func (q *TaskQueue) Join() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.outstanding > 0 {
		q.cond.Wait()
	}
}

// Len reports the number of jobs currently waiting in the queue.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
