package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	ddomain "github.com/corvusHold/certify/internal/delivery/domain"
)

var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)

// Memory is an in-process queue for single-instance deployments and tests.
// Jobs do not survive restarts.
type Memory struct {
	jobs chan ddomain.Job

	mu     sync.Mutex
	dead   []ddomain.Job
	closed bool
	done   chan struct{}
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Memory{jobs: make(chan ddomain.Job, capacity), done: make(chan struct{})}
}

// Enqueue never blocks. A full buffer returns ErrFull.
func (m *Memory) Enqueue(ctx context.Context, job ddomain.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.jobs <- job:
		return nil
	default:
		return ErrFull
	}
}

func (m *Memory) Consume(ctx context.Context) (<-chan ddomain.Delivery, error) {
	out := make(chan ddomain.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case job := <-m.jobs:
				d := ddomain.Delivery{
					Job:    job,
					Ack:    func() error { return nil },
					Reject: func() error { m.deadLetter(job); return nil },
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *Memory) deadLetter(job ddomain.Job) {
	m.mu.Lock()
	m.dead = append(m.dead, job)
	m.mu.Unlock()
}

// DeadLetters returns the jobs that exhausted their attempts.
func (m *Memory) DeadLetters() []ddomain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ddomain.Job(nil), m.dead...)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}
