package scheduler_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuanzhoupan/goingest/internal/domain"
	"github.com/chuanzhoupan/goingest/internal/scheduler"
)

func TestTaskQueuePushPop(t *testing.T) {
	q := scheduler.NewTaskQueue()
	q.Push(domain.Job{ID: "1"})
	q.Push(domain.Job{ID: "2"})
	assert.Equal(t, 2, q.Len())

	job, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "1", job.ID)

	job, ok = q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "2", job.ID)

	_, ok = q.TryPop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestTaskQueueJoinWaitsForOutstanding(t *testing.T) {
	q := scheduler.NewTaskQueue()
	q.Push(domain.Job{ID: "1"})

	joined := make(chan struct{})
	go func() {
		q.Join()
		close(joined)
	}()

	select {
	case <-joined:
		t.Fatal("join returned before the job was done")
	case <-time.After(20 * time.Millisecond):
	}

	_, ok := q.TryPop()
	require.True(t, ok)
	q.TaskDone()

	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("join did not return after the job was done")
	}
}

func TestTaskQueueJoinCountsRequeues(t *testing.T) {
	q := scheduler.NewTaskQueue()
	q.Push(domain.Job{ID: "1"})

	job, ok := q.TryPop()
	require.True(t, ok)
	job.Attempt++
	q.Requeue(job)
	q.TaskDone()

	joined := make(chan struct{})
	go func() {
		q.Join()
		close(joined)
	}()

	select {
	case <-joined:
		t.Fatal("join returned with a requeued job still pending")
	case <-time.After(20 * time.Millisecond):
	}

	job, ok = q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 1, job.Attempt)
	q.TaskDone()

	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("join did not return after the requeued job was done")
	}
}

func TestTaskQueueConcurrentConsumers(t *testing.T) {
	q := scheduler.NewTaskQueue()
	const jobs = 100
	for i := range jobs {
		q.Push(domain.Job{ID: string(rune('a' + i%26))})
	}

	var count int64
	var mu sync.Mutex

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, ok := q.TryPop()
				if !ok {
					return
				}
				mu.Lock()
				count++
				mu.Unlock()
				q.TaskDone()
			}
		}()
	}

	q.Join()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.EqualValues(t, jobs, count)
}
