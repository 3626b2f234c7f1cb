package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/seller-scraper/internal/models"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// Task is one product whose seller still has to be resolved.
type Task struct {
	ID        string
	Product   *models.Product
	Priority  int
	Retries   int
	CreatedAt time.Time
}

func NewTask(product *models.Product, priority int) *Task {
	return &Task{
		ID:        uuid.New().String(),
		Product:   product,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue keeps tasks ordered by descending priority, FIFO within a
// priority. Pop blocks until a task arrives, the queue closes or ctx ends.
type InMemoryQueue struct {
	mu     sync.Mutex
	tasks  []*Task
	notify chan struct{}
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		notify: make(chan struct{}),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.tasks = append(q.tasks, task)
	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].Priority > q.tasks[j].Priority
	})
	q.wake()

	return nil
}

func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			return task, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// TryPop returns ErrQueueEmpty instead of blocking.
func (q *InMemoryQueue) TryPop() (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		if q.closed {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}

	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, nil
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops accepting tasks. Queued tasks can still be popped.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.wake()

	return nil
}

// wake releases every waiting Pop. Callers hold mu.
func (q *InMemoryQueue) wake() {
	close(q.notify)
	q.notify = make(chan struct{})
}

type BatchQueue struct {
	queue     Queue
	batchSize int
}

func NewBatchQueue(q Queue, batchSize int) *BatchQueue {
	return &BatchQueue{
		queue:     q,
		batchSize: batchSize,
	}
}

func (b *BatchQueue) PushBatch(tasks []*Task) error {
	for _, task := range tasks {
		if err := b.queue.Push(task); err != nil {
			return err
		}
	}
	return nil
}

// PopBatch blocks for the first task and then drains up to batchSize without
// waiting for more.
func (b *BatchQueue) PopBatch(ctx context.Context) ([]*Task, error) {
	first, err := b.queue.Pop(ctx)
	if err != nil {
		return nil, err
	}
	tasks := []*Task{first}

	for len(tasks) < b.batchSize && b.queue.Size() > 0 {
		task, err := b.queue.Pop(ctx)
		if err != nil {
			break
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}
