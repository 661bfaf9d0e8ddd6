package utils

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

var ErrQueueTimeout = errors.New("utils: timed out waiting for queue item")

// Queue is an unbounded FIFO whose Get blocks until an item is available.
type Queue[T any] struct {
	sync.Mutex
	notEmptyNotify chan struct{}
	container      *list.List
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{container: list.New(), notEmptyNotify: make(chan struct{}, 1)}
}

// Put appends item and wakes one waiting Get.
func (q *Queue[T]) Put(item T) {
	q.Lock()
	q.container.PushBack(item)
	q.Unlock()
	select {
	case q.notEmptyNotify <- struct{}{}:
	default:
	}
}

// Get removes and returns the oldest item, waiting until one is available or
// ctx is done.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		q.Lock()
		if front := q.container.Front(); front != nil {
			item := q.container.Remove(front).(T)
			more := q.container.Len() > 0
			q.Unlock()
			if more {
				// pass the wakeup on to the next waiter
				select {
				case q.notEmptyNotify <- struct{}{}:
				default:
				}
			}
			return item, nil
		}
		q.Unlock()

		select {
		case <-q.notEmptyNotify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// GetTimeout is Get bounded by timeout.
func (q *Queue[T]) GetTimeout(timeout time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	item, err := q.Get(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return item, ErrQueueTimeout
	}
	return item, err
}

// Drain removes and returns every queued item without blocking.
func (q *Queue[T]) Drain() []T {
	q.Lock()
	defer q.Unlock()
	items := make([]T, 0, q.container.Len())
	for e := q.container.Front(); e != nil; e = q.container.Front() {
		items = append(items, q.container.Remove(e).(T))
	}
	return items
}

func (q *Queue[T]) Len() int {
	q.Lock()
	defer q.Unlock()
	return q.container.Len()
}
