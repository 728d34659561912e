// Package faults implements the process-wide error-observation channel.
// Every upstream failure, terminal or transient, is reported here; the pump
// forwards each entry to the structured logger and, when configured, to a
// Kafka topic for external alerting. Reporting never blocks the caller, and
// the queue is unbounded so a flood of upstream errors cannot stall a rescue
// or acquisition task.
package faults

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"holdfast/pkg/kafka"
	"holdfast/pkg/logger"
)

// Publisher is the subset of the Kafka producer the sink needs.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type entry struct {
	At      time.Time `json:"at"`
	Source  string    `json:"source"`
	Message string    `json:"message"`
}

type Sink struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []entry
	closed  bool
	done    chan struct{}
	log     *logger.Logger
	pub     Publisher
	service string
}

// New creates a sink and starts its pump goroutine. pub may be nil, in which
// case entries only reach the logger.
func New(log *logger.Logger, pub Publisher, service string) *Sink {
	s := &Sink{
		done:    make(chan struct{}),
		log:     log,
		pub:     pub,
		service: service,
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// Report enqueues one human-readable failure description. Safe for
// concurrent use; never blocks.
func (s *Sink) Report(source, message string) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, entry{At: time.Now(), Source: source, Message: message})
		s.cond.Signal()
	}
	s.mu.Unlock()
}

// Len reports the number of undelivered entries, for tests and diagnostics.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Sink) pump() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, e := range batch {
			s.deliver(e)
		}
	}
}

func (s *Sink) deliver(e entry) {
	s.log.Error("upstream fault", "source", e.Source, "message", e.Message)

	if s.pub == nil {
		return
	}

	value, err := json.Marshal(e)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.pub.Publish(ctx, kafka.Message{
		Key:   e.Source,
		Value: value,
		Headers: map[string]string{
			"event-type": "fault",
			"source":     s.service,
		},
		Timestamp: e.At,
	}); err != nil {
		s.log.Warn("fault event publish failed", "error", err)
	}
}

// Close drains the queue and stops the pump. Further Reports are dropped.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
	<-s.done
}
