package audit

import (
	"context"
	"sync"
	"time"

	"ledgercore/internal/core/reqctx"
	"ledgercore/pkg/logger"
)

// Spool buffers informational records and writes them behind the request.
// Request latency never waits on the audit store for non-critical events;
// when the store is down the spool retries with backoff and only sheds load
// once the buffer fills.
type Spool struct {
	repo    Repository
	queue   chan *Record
	retry   time.Duration
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSpool creates a spool with the given buffer capacity.
func NewSpool(repo Repository, capacity int) *Spool {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Spool{
		repo:  repo,
		queue: make(chan *Record, capacity),
		retry: 2 * time.Second,
	}
}

// Start launches the drain worker. The worker outlives individual requests;
// it stops when Close is called or parent is canceled.
func (s *Spool) Start(parent context.Context) {
	s.baseCtx, s.cancel = context.WithCancel(parent)
	s.wg.Add(1)
	go s.drain()
}

// Enqueue hands a record to the spool. When the buffer is full the record
// is dropped with an error log rather than blocking the request path.
func (s *Spool) Enqueue(rec *Record) {
	select {
	case s.queue <- rec:
	default:
		logger.Error(context.Background(), "audit spool full, dropping record",
			"tenant_id", rec.TenantID, "action", rec.Action)
	}
}

// Close stops the worker after flushing what remains in the buffer.
func (s *Spool) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Spool) drain() {
	defer s.wg.Done()
	for {
		select {
		case rec := <-s.queue:
			s.write(rec)
		case <-s.baseCtx.Done():
			s.flush()
			return
		}
	}
}

// flush empties the buffer on shutdown with a bounded deadline per write.
func (s *Spool) flush() {
	for {
		select {
		case rec := <-s.queue:
			s.write(rec)
		default:
			return
		}
	}
}

func (s *Spool) write(rec *Record) {
	// The append runs under the record's own tenant so the storage layer
	// sees the same session scoping as a request-path write.
	scoped, cancel := reqctx.OpenScope(s.baseCtx, &reqctx.Context{TenantID: rec.TenantID})
	defer cancel()

	for attempt := 0; ; attempt++ {
		err := s.repo.Append(scoped, rec)
		if err == nil {
			return
		}
		if attempt >= 2 {
			logger.Error(scoped, "audit spool write failed, dropping record",
				"tenant_id", rec.TenantID, "action", rec.Action, "error", err)
			return
		}
		select {
		case <-time.After(s.retry):
		case <-s.baseCtx.Done():
			logger.Error(scoped, "audit spool shutting down with unwritten record",
				"tenant_id", rec.TenantID, "action", rec.Action, "error", err)
			return
		}
	}
}
