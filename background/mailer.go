// Package background contains services that run independently of the
// request-response cycle.
package background

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/contacts-api/mail"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 100
	sendTimeout      = 30 * time.Second
)

// Mailer delivers queued messages with a fixed pool of workers.
// Enqueue never blocks; a full queue drops the message.
type Mailer struct {
	sender mail.Sender
	log    *zap.Logger

	queue   chan mail.Message
	workers int

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewMailer(sender mail.Sender, workers, queueSize int, log *zap.Logger) *Mailer {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{
		sender:  sender,
		log:     log.Named("mailer"),
		queue:   make(chan mail.Message, queueSize),
		workers: workers,
	}
}

// Start launches the workers.
func (m *Mailer) Start() {
	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}
	m.log.Info("mailer started", zap.Int("workers", m.workers), zap.Int("queue_size", cap(m.queue)))
}

func (m *Mailer) worker(id int) {
	defer m.wg.Done()
	for msg := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := m.sender.Send(ctx, msg)
		cancel()
		if err != nil {
			m.log.Error("send failed", zap.Int("worker", id), zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.Error(err))
			continue
		}
		m.log.Debug("sent", zap.Int("worker", id), zap.String("to", msg.To), zap.String("subject", msg.Subject))
	}
}

// Enqueue hands msg to the workers. It reports false when the queue is full
// or the mailer is stopped.
func (m *Mailer) Enqueue(msg mail.Message) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		return false
	}
	select {
	case m.queue <- msg:
		return true
	default:
		m.log.Warn("queue full, dropping message", zap.String("to", msg.To), zap.String("subject", msg.Subject))
		return false
	}
}

// Stop closes the queue and waits for the workers to drain it, or for ctx
// to end.
func (m *Mailer) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.stopped {
		m.stopped = true
		close(m.queue)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.log.Info("mailer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ mail.Queue = (*Mailer)(nil)
